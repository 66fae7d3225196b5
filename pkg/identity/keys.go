package identity

import (
	"crypto/ed25519"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// keyPEMType is the PEM block type for stored identity keys (PKCS#8).
const keyPEMType = "PRIVATE KEY"

// ValidateKey checks that the provided key is a well-formed Ed25519
// private key.
func ValidateKey(key ed25519.PrivateKey) error {
	if key == nil {
		return errors.New("private key is nil")
	}
	if len(key) != ed25519.PrivateKeySize {
		return fmt.Errorf("invalid Ed25519 private key size: expected %d, got %d",
			ed25519.PrivateKeySize, len(key))
	}
	return nil
}

// SaveKey writes the private key to path as PKCS#8 PEM with owner-only
// permissions. The write goes through a temp file and rename so a crash
// never leaves a truncated key.
func SaveKey(path string, key ed25519.PrivateKey) error {
	if err := ValidateKey(key); err != nil {
		return err
	}

	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return fmt.Errorf("marshal private key: %w", err)
	}
	data := pem.EncodeToMemory(&pem.Block{Type: keyPEMType, Bytes: der})

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create key directory: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write key file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("install key file: %w", err)
	}
	return nil
}

// LoadKey reads an Ed25519 private key from a PKCS#8 PEM file.
func LoadKey(path string) (ed25519.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}

	block, _ := pem.Decode(data)
	if block == nil || block.Type != keyPEMType {
		return nil, fmt.Errorf("key file %s: no %s PEM block", path, keyPEMType)
	}

	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	key, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("key file %s: not an Ed25519 key (%T)", path, parsed)
	}
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	return key, nil
}

// LoadOrCreateKey loads the key at path, generating and saving a fresh
// one when the file does not exist. This is the usual way a long-running
// endpoint keeps a stable identity across restarts.
func LoadOrCreateKey(path string) (ed25519.PrivateKey, error) {
	key, err := LoadKey(path)
	if err == nil {
		return key, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	id, err := Generate()
	if err != nil {
		return nil, err
	}
	key = id.PrivateKey()
	if err := SaveKey(path, key); err != nil {
		return nil, err
	}
	return key, nil
}
