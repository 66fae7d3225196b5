package identity

import (
	"crypto/sha256"
	"crypto/subtle"
	"crypto/x509"
	"encoding/hex"
	"fmt"
)

// FingerprintSize is the length of a public-key fingerprint in bytes.
const FingerprintSize = sha256.Size

// Fingerprint is the SHA-256 digest of a certificate's SubjectPublicKeyInfo.
// It is the sole unit of trust between peers.
type Fingerprint [FingerprintSize]byte

// FingerprintOf computes the fingerprint of a parsed certificate.
func FingerprintOf(cert *x509.Certificate) Fingerprint {
	return sha256.Sum256(cert.RawSubjectPublicKeyInfo)
}

// FingerprintDER parses a DER-encoded certificate and computes its
// fingerprint.
func FingerprintDER(der []byte) (Fingerprint, error) {
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return Fingerprint{}, fmt.Errorf("parse certificate: %w", err)
	}
	return FingerprintOf(cert), nil
}

// Verify reports whether the certificate's public key matches the expected
// fingerprint. The comparison is constant-time and never involves chain
// validation, network, or disk I/O.
func Verify(cert *x509.Certificate, expected Fingerprint) bool {
	got := FingerprintOf(cert)
	return subtle.ConstantTimeCompare(got[:], expected[:]) == 1
}

// String returns the fingerprint as lowercase hex.
func (f Fingerprint) String() string {
	return hex.EncodeToString(f[:])
}

// Short returns an abbreviated fingerprint for log output.
func (f Fingerprint) Short() string {
	return hex.EncodeToString(f[:6])
}

// IsZero reports whether the fingerprint is the zero value.
func (f Fingerprint) IsZero() bool {
	return f == Fingerprint{}
}

// ParseFingerprint parses a lowercase or uppercase hex fingerprint.
func ParseFingerprint(s string) (Fingerprint, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return Fingerprint{}, fmt.Errorf("invalid fingerprint %q: %w", s, err)
	}
	if len(raw) != FingerprintSize {
		return Fingerprint{}, fmt.Errorf("invalid fingerprint length %d, want %d", len(raw), FingerprintSize)
	}
	var f Fingerprint
	copy(f[:], raw)
	return f, nil
}
