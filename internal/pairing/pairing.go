// Package pairing renders raw pairing tokens into displayable artifacts.
// The token itself comes from the wire protocol during an unauthenticated
// handshake; rendering is pure and holds no state.
package pairing

import (
	"encoding/base64"
	"fmt"

	qrcode "github.com/skip2/go-qrcode"
)

const qrSize = 256

// DataURI renders a pairing token as a PNG QR code wrapped in a data URI,
// ready to drop into an <img> tag.
func DataURI(token string) (string, error) {
	if token == "" {
		return "", fmt.Errorf("empty pairing token")
	}
	png, err := qrcode.Encode(token, qrcode.Medium, qrSize)
	if err != nil {
		return "", fmt.Errorf("encode qr: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}
