package identity

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestSaveAndLoadKey(t *testing.T) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(t.TempDir(), "keys", "identity.pem")
	if err := SaveKey(path, priv); err != nil {
		t.Fatalf("SaveKey() error = %v", err)
	}

	loaded, err := LoadKey(path)
	if err != nil {
		t.Fatalf("LoadKey() error = %v", err)
	}
	if !bytes.Equal(loaded, priv) {
		t.Error("loaded key differs from saved key")
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("key file permissions = %o, want 600", perm)
	}
}

func TestSaveKey_InvalidKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "identity.pem")

	if err := SaveKey(path, nil); err == nil {
		t.Error("SaveKey(nil) should fail")
	}
	if err := SaveKey(path, make(ed25519.PrivateKey, 10)); err == nil {
		t.Error("SaveKey with truncated key should fail")
	}
}

func TestLoadKey_Missing(t *testing.T) {
	_, err := LoadKey(filepath.Join(t.TempDir(), "absent.pem"))
	if err == nil {
		t.Fatal("LoadKey of missing file should fail")
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected not-exist error, got %v", err)
	}
}

func TestLoadKey_NotPEM(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garbage.pem")
	if err := os.WriteFile(path, []byte("not a pem file"), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadKey(path); err == nil {
		t.Error("LoadKey of non-PEM content should fail")
	}
}

func TestLoadKey_WrongBlockType(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cert.pem")
	content := "-----BEGIN CERTIFICATE-----\nYWJj\n-----END CERTIFICATE-----\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadKey(path); err == nil {
		t.Error("LoadKey of a certificate PEM should fail")
	}
}

func TestLoadOrCreateKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "identity.pem")

	first, err := LoadOrCreateKey(path)
	if err != nil {
		t.Fatalf("LoadOrCreateKey() error = %v", err)
	}
	if err := ValidateKey(first); err != nil {
		t.Fatalf("created key invalid: %v", err)
	}

	// Second call loads the same key instead of generating a new one.
	second, err := LoadOrCreateKey(path)
	if err != nil {
		t.Fatalf("LoadOrCreateKey() second call error = %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Error("LoadOrCreateKey generated a new key instead of loading")
	}

	// The identity derived from the stored key is stable.
	a, err := FromKey(first)
	if err != nil {
		t.Fatal(err)
	}
	b, err := FromKey(second)
	if err != nil {
		t.Fatal(err)
	}
	if a.Fingerprint() != b.Fingerprint() {
		t.Error("fingerprint changed across key reload")
	}
}

func TestValidateKey(t *testing.T) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}

	if err := ValidateKey(priv); err != nil {
		t.Errorf("ValidateKey(valid) error = %v", err)
	}
	if err := ValidateKey(nil); err == nil {
		t.Error("ValidateKey(nil) should fail")
	}
	if err := ValidateKey(priv[:16]); err == nil {
		t.Error("ValidateKey(short) should fail")
	}
}
