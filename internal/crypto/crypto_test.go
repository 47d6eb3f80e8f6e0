package crypto

import (
	"testing"

	"gorm.io/gorm/logger"

	"github.com/gluk-w/tmuxremote/internal/database"
)

func setupTestDB(t *testing.T) {
	t.Helper()
	db, err := database.Open(":memory:", logger.Silent)
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	prev := database.DB
	database.DB = db
	t.Cleanup(func() { database.DB = prev })
}

func TestEncryptDecrypt(t *testing.T) {
	setupTestDB(t)

	tok, err := Encrypt("hunter2")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if tok == "" || tok == "hunter2" {
		t.Fatalf("token = %q", tok)
	}
	got, err := Decrypt(tok)
	if err != nil || got != "hunter2" {
		t.Errorf("Decrypt = %q, %v", got, err)
	}

	stored, err := database.GetSetting(keySetting)
	if err != nil || stored == "" {
		t.Errorf("key not persisted: %q, %v", stored, err)
	}

	tok2, _ := Encrypt("hunter2")
	if again, _ := database.GetSetting(keySetting); again != stored {
		t.Error("key regenerated on second use")
	}
	if got, _ := Decrypt(tok2); got != "hunter2" {
		t.Errorf("second token decrypts to %q", got)
	}
}

func TestEmptyValues(t *testing.T) {
	setupTestDB(t)
	if tok, err := Encrypt(""); err != nil || tok != "" {
		t.Errorf("Encrypt(\"\") = %q, %v", tok, err)
	}
	if got, err := Decrypt(""); err != nil || got != "" {
		t.Errorf("Decrypt(\"\") = %q, %v", got, err)
	}
}

func TestDecryptInvalid(t *testing.T) {
	setupTestDB(t)
	if _, err := Decrypt("not-a-token"); err == nil {
		t.Error("invalid token decrypted")
	}
}
