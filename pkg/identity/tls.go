package identity

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"time"

	"golang.org/x/crypto/hkdf"

	"crypto/sha256"
)

// ALPN is the application protocol negotiated during the TLS handshake.
const ALPN = "wireberry/1"

// ErrUntrustedPeer indicates the peer presented a certificate whose
// fingerprint does not match the expected one.
var ErrUntrustedPeer = errors.New("untrusted peer: fingerprint mismatch")

// ticketKeyInfo is the HKDF info string for session-ticket key derivation.
const ticketKeyInfo = "wireberry session ticket key v1"

// ServerTLSConfig returns the TLS configuration for the accepting side.
//
// Standard CA verification is disabled: peers present self-signed
// certificates and identity is established by fingerprint, not chain of
// trust. The client is required to present a certificate (mutual TLS) and
// verifyPeerCertificate checks basic validity; the transport layer above
// derives the peer's fingerprint from the presented certificate and makes
// the trust decision there.
//
// Session-ticket keys are derived deterministically from the identity key,
// so fast-path resumption tickets stay valid across process restarts.
func (id *Identity) ServerTLSConfig() *tls.Config {
	conf := &tls.Config{
		Certificates:          []tls.Certificate{id.cert},
		NextProtos:            []string{ALPN},
		MinVersion:            tls.VersionTLS13,
		InsecureSkipVerify:    true,
		ClientAuth:            tls.RequireAnyClientCert,
		VerifyPeerCertificate: verifyPeerCertificate(Fingerprint{}),
	}
	conf.SetSessionTicketKeys([][32]byte{id.sessionTicketKey()})
	return conf
}

// ClientTLSConfig returns the TLS configuration for the dialing side.
//
// expected is the fingerprint the dialer requires from the listener; the
// handshake fails with ErrUntrustedPeer on any mismatch, before any
// application data flows. cache, if non-nil, enables abbreviated
// resumption handshakes.
func (id *Identity) ClientTLSConfig(expected Fingerprint, cache tls.ClientSessionCache) *tls.Config {
	// ServerName is never chain-verified here, but crypto/tls keys the
	// session cache on it, so it carries the peer fingerprint to keep
	// resumption tickets per-peer.
	serverName := "wireberry"
	if !expected.IsZero() {
		serverName = expected.String()
	}
	return &tls.Config{
		Certificates:          []tls.Certificate{id.cert},
		NextProtos:            []string{ALPN},
		MinVersion:            tls.VersionTLS13,
		InsecureSkipVerify:    true,
		VerifyPeerCertificate: verifyPeerCertificate(expected),
		ClientSessionCache:    cache,
		ServerName:            serverName,
	}
}

// sessionTicketKey derives a stable ticket key from the identity's private
// key seed via HKDF-SHA256.
func (id *Identity) sessionTicketKey() [32]byte {
	var key [32]byte
	r := hkdf.New(sha256.New, id.priv.Seed(), nil, []byte(ticketKeyInfo))
	if _, err := io.ReadFull(r, key[:]); err != nil {
		// HKDF over a fixed-size seed cannot fail; keep the zero key
		// unreachable regardless.
		panic(err)
	}
	return key
}

// verifyPeerCertificate builds the TLS verification callback.
//
// The callback replaces chain validation entirely: it parses the leaf,
// checks the validity window, and, when an expected fingerprint is set,
// performs the constant-time digest comparison. An empty expected
// fingerprint (accepting side) defers the trust decision to the caller,
// which reads the fingerprint off the established connection.
func verifyPeerCertificate(expected Fingerprint) func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
	return func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
		if len(rawCerts) == 0 {
			return errors.New("peer presented no certificate")
		}
		cert, err := x509.ParseCertificate(rawCerts[0])
		if err != nil {
			return fmt.Errorf("parse peer certificate: %w", err)
		}

		now := time.Now()
		if now.Before(cert.NotBefore) || now.After(cert.NotAfter) {
			return fmt.Errorf("peer certificate outside validity window (%s - %s)",
				cert.NotBefore.Format(time.RFC3339), cert.NotAfter.Format(time.RFC3339))
		}

		if !expected.IsZero() && !Verify(cert, expected) {
			return ErrUntrustedPeer
		}
		return nil
	}
}

// PeerFingerprint extracts the fingerprint of the peer certificate from a
// completed TLS handshake state.
func PeerFingerprint(state tls.ConnectionState) (Fingerprint, error) {
	if len(state.PeerCertificates) == 0 {
		return Fingerprint{}, errors.New("no peer certificate in connection state")
	}
	return FingerprintOf(state.PeerCertificates[0]), nil
}
