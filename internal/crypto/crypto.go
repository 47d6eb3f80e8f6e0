package crypto

import (
	"errors"
	"fmt"
	"time"

	"github.com/fernet/fernet-go"
	"gorm.io/gorm"

	"github.com/gluk-w/tmuxremote/internal/database"
)

const keySetting = "fernet_key"

// getKey loads the fernet key from settings, generating and storing one on
// first use.
func getKey() (*fernet.Key, error) {
	keyStr, err := database.GetSetting(keySetting)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		var k fernet.Key
		if err := k.Generate(); err != nil {
			return nil, fmt.Errorf("generate fernet key: %w", err)
		}
		if err := database.SetSetting(keySetting, k.Encode()); err != nil {
			return nil, fmt.Errorf("save fernet key: %w", err)
		}
		return &k, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load fernet key: %w", err)
	}

	key, err := fernet.DecodeKey(keyStr)
	if err != nil {
		return nil, fmt.Errorf("decode fernet key: %w", err)
	}
	return key, nil
}

// Encrypt seals plaintext. Empty input stays empty so unset secrets remain
// distinguishable.
func Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	key, err := getKey()
	if err != nil {
		return "", err
	}
	tok, err := fernet.EncryptAndSign([]byte(plaintext), key)
	if err != nil {
		return "", fmt.Errorf("encrypt: %w", err)
	}
	return string(tok), nil
}

func Decrypt(ciphertext string) (string, error) {
	if ciphertext == "" {
		return "", nil
	}
	key, err := getKey()
	if err != nil {
		return "", err
	}
	msg := fernet.VerifyAndDecrypt([]byte(ciphertext), 0*time.Second, []*fernet.Key{key})
	if msg == nil {
		return "", fmt.Errorf("decrypt: invalid token")
	}
	return string(msg), nil
}
