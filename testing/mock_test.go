package testing

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"testing"
	"time"

	"github.com/multiformats/go-multiaddr"

	"github.com/blockberries/wireberry"
	"github.com/blockberries/wireberry/pkg/identity"
)

func mustParseMultiaddr(t *testing.T, s string) multiaddr.Multiaddr {
	t.Helper()
	ma, err := multiaddr.NewMultiaddr(s)
	if err != nil {
		t.Fatalf("failed to parse multiaddr %q: %v", s, err)
	}
	return ma
}

func peerFingerprint(label string) identity.Fingerprint {
	return identity.Fingerprint(sha256.Sum256([]byte(label)))
}

func TestNewMockEndpoint(t *testing.T) {
	ep := NewMockEndpoint()

	if ep.Fingerprint().IsZero() {
		t.Error("expected non-zero fingerprint")
	}
	if len(ep.PublicKey()) == 0 {
		t.Error("expected non-empty public key")
	}
}

func TestMockEndpoint_StartStop(t *testing.T) {
	ep := NewMockEndpoint()

	if err := ep.Start(); err != nil {
		t.Errorf("Start() failed: %v", err)
	}
	if !ep.Started() {
		t.Error("expected Started() after Start")
	}

	if err := ep.Stop(); err != nil {
		t.Errorf("Stop() failed: %v", err)
	}
	if ep.Started() {
		t.Error("expected not Started() after Stop")
	}
}

func TestMockEndpoint_AddPeer(t *testing.T) {
	ep := NewMockEndpoint()
	fp := peerFingerprint("test-peer")
	addr := mustParseMultiaddr(t, "/ip4/127.0.0.1/udp/9000/quic-v1")

	err := ep.AddPeer(fp, []multiaddr.Multiaddr{addr}, map[string]string{"key": "value"})
	if err != nil {
		t.Fatalf("AddPeer() failed: %v", err)
	}

	entry, err := ep.GetPeer(fp)
	if err != nil {
		t.Fatalf("GetPeer() failed: %v", err)
	}

	if entry.Fingerprint != fp {
		t.Errorf("fingerprint mismatch: got %v, want %v", entry.Fingerprint, fp)
	}
	if entry.Metadata["key"] != "value" {
		t.Errorf("metadata mismatch: got %v", entry.Metadata)
	}
}

func TestMockEndpoint_RemovePeer(t *testing.T) {
	ep := NewMockEndpoint()
	fp := peerFingerprint("test-peer")
	addr := mustParseMultiaddr(t, "/ip4/127.0.0.1/udp/9000/quic-v1")

	ep.AddPeer(fp, []multiaddr.Multiaddr{addr}, nil)

	if err := ep.RemovePeer(fp); err != nil {
		t.Fatalf("RemovePeer() failed: %v", err)
	}

	_, err := ep.GetPeer(fp)
	if !errors.Is(err, ErrPeerNotFound) {
		t.Errorf("expected ErrPeerNotFound, got %v", err)
	}
}

func TestMockEndpoint_RemovePeer_NotFound(t *testing.T) {
	ep := NewMockEndpoint()
	fp := peerFingerprint("nonexistent")

	err := ep.RemovePeer(fp)
	if !errors.Is(err, ErrPeerNotFound) {
		t.Errorf("expected ErrPeerNotFound, got %v", err)
	}
}

func TestMockEndpoint_Dial(t *testing.T) {
	ep := NewMockEndpoint()
	fp := peerFingerprint("test-peer")
	addr := mustParseMultiaddr(t, "/ip4/127.0.0.1/udp/9000/quic-v1")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := ep.Dial(ctx, addr, fp); err != nil {
		t.Fatalf("Dial() failed: %v", err)
	}

	if !ep.IsConnected(fp) {
		t.Error("expected to be connected")
	}

	isOutbound, err := ep.IsOutbound(fp)
	if err != nil {
		t.Fatalf("IsOutbound() failed: %v", err)
	}
	if !isOutbound {
		t.Error("expected outbound connection")
	}
}

func TestMockEndpoint_Disconnect(t *testing.T) {
	ep := NewMockEndpoint()
	fp := peerFingerprint("test-peer")
	addr := mustParseMultiaddr(t, "/ip4/127.0.0.1/udp/9000/quic-v1")

	ep.Dial(context.Background(), addr, fp)

	if err := ep.Disconnect(fp); err != nil {
		t.Fatalf("Disconnect() failed: %v", err)
	}

	if ep.IsConnected(fp) {
		t.Error("expected to be disconnected")
	}
	if state := ep.ConnectionState(fp); state != wireberry.StateClosed {
		t.Errorf("state = %v, want %v", state, wireberry.StateClosed)
	}
}

func TestMockEndpoint_Send(t *testing.T) {
	ep := NewMockEndpoint()
	fp := peerFingerprint("test-peer")
	addr := mustParseMultiaddr(t, "/ip4/127.0.0.1/udp/9000/quic-v1")

	ep.Dial(context.Background(), addr, fp)

	data := []byte("hello world")
	if err := ep.Send(context.Background(), fp, 1, data); err != nil {
		t.Fatalf("Send() failed: %v", err)
	}

	msgs := ep.SentMessages()
	if len(msgs) != 1 {
		t.Fatalf("expected 1 sent message, got %d", len(msgs))
	}

	if msgs[0].Peer != fp {
		t.Errorf("peer mismatch: got %v, want %v", msgs[0].Peer, fp)
	}
	if msgs[0].Channel != 1 {
		t.Errorf("channel mismatch: got %v, want 1", msgs[0].Channel)
	}
	if !bytes.Equal(msgs[0].Payload, data) {
		t.Errorf("payload mismatch: got %v, want %v", msgs[0].Payload, data)
	}
}

func TestMockEndpoint_Send_NotConnected(t *testing.T) {
	ep := NewMockEndpoint()
	fp := peerFingerprint("test-peer")

	err := ep.Send(context.Background(), fp, 1, []byte("data"))
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
}

func TestMockEndpoint_SimulateConnect(t *testing.T) {
	ep := NewMockEndpoint()
	fp := peerFingerprint("test-peer")

	ep.SimulateConnect(fp)

	if !ep.IsConnected(fp) {
		t.Error("expected to be connected")
	}

	isOutbound, err := ep.IsOutbound(fp)
	if err != nil {
		t.Fatalf("IsOutbound() failed: %v", err)
	}
	if isOutbound {
		t.Error("simulated connection should be inbound")
	}

	// Check for event
	select {
	case event := <-ep.Events():
		if event.Peer != fp {
			t.Errorf("event peer mismatch")
		}
		if event.State != wireberry.StateEstablished {
			t.Errorf("event state mismatch: got %v, want %v", event.State, wireberry.StateEstablished)
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("expected connection event")
	}
}

func TestMockEndpoint_SimulateDisconnect(t *testing.T) {
	ep := NewMockEndpoint()
	fp := peerFingerprint("test-peer")

	ep.SimulateConnect(fp)
	// Drain the connect event
	<-ep.Events()

	ep.SimulateDisconnect(fp)

	if ep.IsConnected(fp) {
		t.Error("expected to be disconnected")
	}

	// Check for event
	select {
	case event := <-ep.Events():
		if event.State != wireberry.StateClosed {
			t.Errorf("event state mismatch: got %v, want %v", event.State, wireberry.StateClosed)
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("expected disconnect event")
	}
}

func TestMockEndpoint_SimulateMessage(t *testing.T) {
	ep := NewMockEndpoint()
	fp := peerFingerprint("test-peer")
	data := []byte("test message")

	ep.SimulateMessage(fp, 2, data)

	select {
	case msg := <-ep.Messages():
		if msg.Peer != fp {
			t.Errorf("peer mismatch")
		}
		if msg.Channel != 2 {
			t.Errorf("channel mismatch")
		}
		if !bytes.Equal(msg.Payload, data) {
			t.Errorf("payload mismatch")
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("expected message")
	}
}

func TestMockEndpoint_SetDialError(t *testing.T) {
	ep := NewMockEndpoint()
	fp := peerFingerprint("test-peer")
	addr := mustParseMultiaddr(t, "/ip4/127.0.0.1/udp/9000/quic-v1")
	expectedErr := errors.New("connection failed")

	ep.SetDialError(expectedErr)

	err := ep.Dial(context.Background(), addr, fp)
	if !errors.Is(err, expectedErr) {
		t.Errorf("expected error %v, got %v", expectedErr, err)
	}
}

func TestMockEndpoint_SetSendError(t *testing.T) {
	ep := NewMockEndpoint()
	fp := peerFingerprint("test-peer")
	addr := mustParseMultiaddr(t, "/ip4/127.0.0.1/udp/9000/quic-v1")
	expectedErr := errors.New("send failed")

	ep.Dial(context.Background(), addr, fp)
	ep.SetSendError(expectedErr)

	err := ep.Send(context.Background(), fp, 1, []byte("data"))
	if !errors.Is(err, expectedErr) {
		t.Errorf("expected error %v, got %v", expectedErr, err)
	}
}

func TestMockEndpoint_SentOn(t *testing.T) {
	ep := NewMockEndpoint()
	fp := peerFingerprint("test-peer")
	addr := mustParseMultiaddr(t, "/ip4/127.0.0.1/udp/9000/quic-v1")

	ep.Dial(context.Background(), addr, fp)

	ep.Send(context.Background(), fp, 1, []byte("msg1"))
	ep.Send(context.Background(), fp, 2, []byte("msg2"))
	ep.Send(context.Background(), fp, 1, []byte("msg3"))

	msgs := ep.SentOn(fp, 1)
	if len(msgs) != 2 {
		t.Errorf("expected 2 messages on channel 1, got %d", len(msgs))
	}

	msgs = ep.SentOn(fp, 2)
	if len(msgs) != 1 {
		t.Errorf("expected 1 message on channel 2, got %d", len(msgs))
	}

	if !ep.NothingSentOn(fp, 3) {
		t.Error("expected no messages on channel 3")
	}
}

func TestMockEndpoint_ClearSentMessages(t *testing.T) {
	ep := NewMockEndpoint()
	fp := peerFingerprint("test-peer")
	addr := mustParseMultiaddr(t, "/ip4/127.0.0.1/udp/9000/quic-v1")

	ep.Dial(context.Background(), addr, fp)
	ep.Send(context.Background(), fp, 1, []byte("data"))

	ep.ClearSentMessages()

	if len(ep.SentMessages()) != 0 {
		t.Error("expected empty sent messages after clear")
	}
}

func TestMockEndpoint_ConnectedPeers(t *testing.T) {
	ep := NewMockEndpoint()
	peer1 := peerFingerprint("peer1")
	peer2 := peerFingerprint("peer2")
	addr := mustParseMultiaddr(t, "/ip4/127.0.0.1/udp/9000/quic-v1")

	ep.Dial(context.Background(), addr, peer1)
	ep.Dial(context.Background(), addr, peer2)

	peers := ep.ConnectedPeers()
	if len(peers) != 2 {
		t.Errorf("expected 2 connected peers, got %d", len(peers))
	}
}

func TestMockEndpoint_Reset(t *testing.T) {
	ep := NewMockEndpoint()
	fp := peerFingerprint("test-peer")
	addr := mustParseMultiaddr(t, "/ip4/127.0.0.1/udp/9000/quic-v1")

	ep.AddPeer(fp, []multiaddr.Multiaddr{addr}, nil)
	ep.Dial(context.Background(), addr, fp)
	ep.Send(context.Background(), fp, 1, []byte("data"))
	ep.SetDialError(errors.New("error"))

	ep.Reset()

	if len(ep.ListPeers()) != 0 {
		t.Error("expected no peers after reset")
	}
	if len(ep.SentMessages()) != 0 {
		t.Error("expected no sent messages after reset")
	}
	if len(ep.ConnectedPeers()) != 0 {
		t.Error("expected no connected peers after reset")
	}
}

func TestNewMockEndpointWithIdentity(t *testing.T) {
	fp := peerFingerprint("custom-identity")
	pubKey := make([]byte, 32)

	ep := NewMockEndpointWithIdentity(fp, pubKey)

	if ep.Fingerprint() != fp {
		t.Errorf("fingerprint mismatch: got %v, want %v", ep.Fingerprint(), fp)
	}
}
