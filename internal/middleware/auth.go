package middleware

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/rfsilva/zapmux/internal/config"
	"github.com/rfsilva/zapmux/internal/database"
	"golang.org/x/crypto/bcrypt"
)

// TokenSetting is the settings key holding the bcrypt hash of the API token.
const TokenSetting = "api_token_hash"

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// SetAPIToken hashes and stores the API token. Used by the --set-token CLI.
func SetAPIToken(token string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	return database.SetSetting(TokenSetting, string(hash))
}

// requestToken extracts the bearer token. Websocket clients cannot set
// headers from a browser, so a token query parameter is accepted too.
func requestToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

// RequireAuth guards the API with the provisioned token. With
// ZAPMUX_AUTH_DISABLED the check is skipped entirely.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if config.Cfg.AuthDisabled {
			next.ServeHTTP(w, r)
			return
		}

		hash, err := database.GetSetting(TokenSetting)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "API token not provisioned"})
			return
		}

		token := requestToken(r)
		if token == "" || bcrypt.CompareHashAndPassword([]byte(hash), []byte(token)) != nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Authentication required"})
			return
		}

		next.ServeHTTP(w, r)
	})
}
