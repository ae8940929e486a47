// Package crypto encrypts credential blobs at rest. Tenants' protocol
// credentials are opaque secrets that authorize a live session without
// re-pairing, so they are never stored in plaintext. The Fernet key is
// generated on first use and kept in the settings table.
package crypto

import (
	"fmt"
	"time"

	"github.com/fernet/fernet-go"
	"github.com/rfsilva/zapmux/internal/database"
)

const keySetting = "credential_key"

func getKey() (*fernet.Key, error) {
	keyStr, err := database.GetSetting(keySetting)
	if err != nil {
		// Generate new key
		var k fernet.Key
		k.Generate()
		keyStr = k.Encode()
		if err := database.SetSetting(keySetting, keyStr); err != nil {
			return nil, fmt.Errorf("save credential key: %w", err)
		}
		return &k, nil
	}

	key, err := fernet.DecodeKey(keyStr)
	if err != nil {
		return nil, fmt.Errorf("decode credential key: %w", err)
	}
	return key, nil
}

// Encrypt seals a credential blob into a Fernet token.
func Encrypt(plaintext []byte) (string, error) {
	key, err := getKey()
	if err != nil {
		return "", err
	}
	tok, err := fernet.EncryptAndSign(plaintext, key)
	if err != nil {
		return "", fmt.Errorf("encrypt: %w", err)
	}
	return string(tok), nil
}

// Decrypt opens a Fernet token produced by Encrypt. Tokens do not expire;
// credential blobs stay valid until the tenant logs out.
func Decrypt(ciphertext string) ([]byte, error) {
	if ciphertext == "" {
		return nil, nil
	}
	key, err := getKey()
	if err != nil {
		return nil, err
	}
	msg := fernet.VerifyAndDecrypt([]byte(ciphertext), 0*time.Second, []*fernet.Key{key})
	if msg == nil {
		return nil, fmt.Errorf("decrypt: invalid token")
	}
	return msg, nil
}
