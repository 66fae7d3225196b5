// Package identity provides self-issued peer identities for the transport.
//
// There is no certificate authority: each peer generates an Ed25519 key
// pair and a self-signed X.509 certificate, and trust decisions reduce to
// comparing the fingerprint of the certificate's public key against an
// expected value. A single mismatched fingerprint is sufficient and
// necessary to reject a peer.
package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"time"
)

// certValidity is the self-signed certificate lifetime. Certificates are
// regenerated from the key pair on load, so a modest lifetime is fine.
const certValidity = 180 * 24 * time.Hour

// ErrKeyGeneration indicates the entropy source failed during key
// generation. This is unrecoverable and must be surfaced to the process
// owner.
var ErrKeyGeneration = errors.New("identity key generation failed")

// Identity is a local peer identity: an Ed25519 key pair plus a
// self-signed certificate, ready for use with the secure transport.
type Identity struct {
	priv        ed25519.PrivateKey
	cert        tls.Certificate
	leaf        *x509.Certificate
	fingerprint Fingerprint
}

// Generate creates a fresh identity. It fails only when the entropy
// source is unavailable.
func Generate() (*Identity, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyGeneration, err)
	}
	return FromKey(priv)
}

// FromKey builds an identity from an existing Ed25519 private key,
// issuing a new self-signed certificate for it. Persisting and loading
// the key is the caller's responsibility.
func FromKey(priv ed25519.PrivateKey) (*Identity, error) {
	if len(priv) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("invalid private key length %d", len(priv))
	}

	pub := priv.Public().(ed25519.PublicKey)

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyGeneration, err)
	}

	now := time.Now()
	template := &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			CommonName: "wireberry peer " + hex.EncodeToString(pub[:6]),
		},
		NotBefore:             now.Add(-time.Hour),
		NotAfter:              now.Add(certValidity),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, pub, priv)
	if err != nil {
		return nil, fmt.Errorf("create certificate: %w", err)
	}

	leaf, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("parse generated certificate: %w", err)
	}

	return &Identity{
		priv: priv,
		cert: tls.Certificate{
			Certificate: [][]byte{der},
			PrivateKey:  priv,
			Leaf:        leaf,
		},
		leaf:        leaf,
		fingerprint: FingerprintOf(leaf),
	}, nil
}

// Fingerprint returns the digest of this identity's public key.
func (id *Identity) Fingerprint() Fingerprint {
	return id.fingerprint
}

// PublicKey returns the identity's Ed25519 public key.
func (id *Identity) PublicKey() ed25519.PublicKey {
	return id.priv.Public().(ed25519.PublicKey)
}

// PrivateKey returns the identity's Ed25519 private key.
// The caller owns persistence; the transport never writes it anywhere.
func (id *Identity) PrivateKey() ed25519.PrivateKey {
	return id.priv
}

// Certificate returns the self-signed leaf certificate.
func (id *Identity) Certificate() *x509.Certificate {
	return id.leaf
}
