package session

import "github.com/rfsilva/zapmux/internal/wire"

// Step identifies one state-machine action produced by Transition.
type Step int

const (
	// StepSetPairing stores a freshly rendered pairing artifact and moves
	// the session to AwaitingPairing.
	StepSetPairing Step = iota
	// StepMarkConnected clears the pairing artifact and moves to Connected.
	StepMarkConnected
	// StepMarkDisconnected records the close reason and schedules a delayed
	// fresh bootstrap.
	StepMarkDisconnected
	// StepTerminate purges the session and its credentials; no retry.
	StepTerminate
)

// Action is one instruction for the controller to execute.
type Action struct {
	Step   Step
	Token  string
	Reason wire.DisconnectReason
}

// Transition is the pure state-machine core: given the current status and a
// connection update it returns the actions to apply, in order. A single
// update may carry several signals (pairing token, open, closed); they are
// interpreted independently, matching the emission order of the protocol
// layer.
func Transition(status Status, u wire.ConnectionUpdate) []Action {
	if status == StatusTerminated {
		return nil
	}

	var actions []Action

	// A pairing token only matters while the session has never been open.
	if u.PairingToken != "" && (status == StatusInitializing || status == StatusAwaitingPairing) {
		actions = append(actions, Action{Step: StepSetPairing, Token: u.PairingToken})
	}

	if u.Open {
		actions = append(actions, Action{Step: StepMarkConnected})
	}

	if u.Closed {
		if u.Reason.IsLoggedOut() {
			// Logout invalidates the credential material: retrying would
			// fail pairing again, so the session is purged instead.
			actions = append(actions, Action{Step: StepTerminate, Reason: u.Reason})
		} else {
			// Every other reason, including an absent one, is treated as
			// transient. Fail open toward availability.
			actions = append(actions, Action{Step: StepMarkDisconnected, Reason: u.Reason})
		}
	}

	return actions
}
