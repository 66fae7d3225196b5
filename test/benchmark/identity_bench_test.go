package benchmark

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"

	"github.com/blockberries/wireberry/pkg/identity"
)

// Benchmark identity generation (key + self-signed certificate)
func BenchmarkIdentityGenerate(b *testing.B) {
	for i := 0; i < b.N; i++ {
		if _, err := identity.Generate(); err != nil {
			b.Fatal(err)
		}
	}
}

// Benchmark certificate minting from an existing key
func BenchmarkIdentityFromKey(b *testing.B) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := identity.FromKey(priv); err != nil {
			b.Fatal(err)
		}
	}
}

// Benchmark fingerprint computation from a certificate
func BenchmarkFingerprintOf(b *testing.B) {
	id, err := identity.Generate()
	if err != nil {
		b.Fatal(err)
	}
	cert := id.Certificate()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = identity.FingerprintOf(cert)
	}
}

// Benchmark fingerprint verification (the pinning check on every handshake)
func BenchmarkFingerprintVerify(b *testing.B) {
	id, err := identity.Generate()
	if err != nil {
		b.Fatal(err)
	}
	cert := id.Certificate()
	expected := id.Fingerprint()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if !identity.Verify(cert, expected) {
			b.Fatal("verification failed")
		}
	}
}

// Benchmark DER parse + fingerprint, the inbound certificate path
func BenchmarkFingerprintDER(b *testing.B) {
	id, err := identity.Generate()
	if err != nil {
		b.Fatal(err)
	}
	der := id.Certificate().Raw

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := identity.FingerprintDER(der); err != nil {
			b.Fatal(err)
		}
	}
}

// Benchmark fingerprint string parsing
func BenchmarkParseFingerprint(b *testing.B) {
	id, err := identity.Generate()
	if err != nil {
		b.Fatal(err)
	}
	s := id.Fingerprint().String()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := identity.ParseFingerprint(s); err != nil {
			b.Fatal(err)
		}
	}
}
