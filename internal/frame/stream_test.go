package frame

import (
	"net"
	"testing"
	"time"
)

type ping struct {
	N int `json:"n"`
}

func TestStreamChannelSendRecv(t *testing.T) {
	a, b := net.Pipe()
	ca := NewStream(a)
	cb := NewStream(b)
	defer ca.Close()
	defer cb.Close()

	done := make(chan error, 1)
	go func() { done <- ca.Send(ping{N: 42}) }()

	var got ping
	if err := cb.Recv(&got); err != nil {
		t.Fatalf("Recv: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got.N != 42 {
		t.Fatalf("expected N=42, got %+v", got)
	}
}

func TestStreamChannelKeepaliveFrameIsSwallowed(t *testing.T) {
	a, b := net.Pipe()
	ca := NewStream(a)
	cb := NewStream(b)
	defer ca.Close()
	defer cb.Close()

	// A zero-length frame (raw keepalive) must never surface to Recv.
	go func() {
		_ = ca.writeFrame(nil)
		_ = ca.Send(ping{N: 7})
	}()

	var got ping
	if err := cb.Recv(&got); err != nil {
		t.Fatalf("Recv: %v", err)
	}
	if got.N != 7 {
		t.Fatalf("expected the real frame after the keepalive, got %+v", got)
	}
}

func TestStreamChannelRecvErrorsAfterClose(t *testing.T) {
	a, b := net.Pipe()
	ca := NewStream(a)
	cb := NewStream(b)
	defer cb.Close()

	if err := ca.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	var got ping
	err := cb.Recv(&got)
	if err == nil {
		t.Fatal("expected Recv to fail once the peer is closed")
	}
}

func TestStreamChannelOversizedFrameRejected(t *testing.T) {
	a, b := net.Pipe()
	ca := NewStream(a)
	cb := NewStream(b)
	defer ca.Close()
	defer cb.Close()

	go func() {
		// Write a length prefix claiming an absurd body size; the
		// reader must bail out rather than allocate it.
		buf := []byte{0xFF, 0xFF, 0xFF, 0xFF}
		_, _ = a.Write(buf)
	}()

	var got ping
	err := cb.Recv(&got)
	if err == nil {
		t.Fatal("expected Recv to reject an oversized frame")
	}
}

func TestPingPongConstants(t *testing.T) {
	if PongTimeout != 2*PingInterval {
		t.Fatalf("PongTimeout should be twice PingInterval, got %v vs %v", PongTimeout, PingInterval)
	}
	if PingInterval != 60*time.Second {
		t.Fatalf("expected 60s ping interval, got %v", PingInterval)
	}
}
