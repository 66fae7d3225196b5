package fuzz

import (
	"strings"
	"testing"

	"github.com/blockberries/wireberry/pkg/identity"
)

// FuzzParseFingerprint tests fingerprint parsing with malformed input.
// Fingerprints arrive from configuration files and operator input, so
// parsing must be robust against arbitrary strings.
func FuzzParseFingerprint(f *testing.F) {
	// Add seed corpus

	// Valid fingerprint (64 hex chars)
	f.Add(strings.Repeat("ab", 32))
	f.Add(strings.Repeat("00", 32))
	f.Add(strings.Repeat("ff", 32))

	// Uppercase hex
	f.Add(strings.Repeat("AB", 32))

	// Wrong lengths
	f.Add("")
	f.Add("ab")
	f.Add(strings.Repeat("ab", 31))
	f.Add(strings.Repeat("ab", 33))

	// Non-hex characters
	f.Add(strings.Repeat("zz", 32))
	f.Add(strings.Repeat("ab", 31) + "g!")

	// Unicode and control characters
	f.Add("\x00\x01\x02")
	f.Add(strings.Repeat("�", 32))

	// Very long input
	f.Add(strings.Repeat("ab", 10000))

	f.Fuzz(func(t *testing.T, s string) {
		// ParseFingerprint must not panic regardless of input
		fp, err := identity.ParseFingerprint(s)
		if err != nil {
			return
		}

		// A successfully parsed fingerprint must round-trip through its
		// string form.
		again, err := identity.ParseFingerprint(fp.String())
		if err != nil {
			t.Fatalf("re-parse of %q failed: %v", fp.String(), err)
		}
		if again != fp {
			t.Errorf("fingerprint changed across round trip")
		}

		// Short form is a prefix of the full form.
		if !strings.HasPrefix(fp.String(), fp.Short()) {
			t.Errorf("Short() %q is not a prefix of String() %q", fp.Short(), fp.String())
		}
	})
}
