package client_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/omochice/toy-chat-client/internal/client"
	"github.com/omochice/toy-chat-client/internal/transport"
)

var fastPolicy = client.ReconnectPolicy{
	MaxAttempts: 2,
	MinDelay:    5 * time.Millisecond,
	MaxDelay:    10 * time.Millisecond,
}

func TestReconnector_RetriesThenFails(t *testing.T) {
	c, tr, ff := connected(t)
	r := client.NewReconnector(c.Connection(), fastPolicy)
	t.Cleanup(r.Stop)

	tr.emit(transport.Error{Err: errors.New("reset")})
	waitState(t, c, client.StateDisconnected)

	for i := 0; i < fastPolicy.MaxAttempts; i++ {
		next := ff.next(t)
		waitState(t, c, client.StateConnecting)
		next.emit(transport.Error{Err: errors.New("refused")})
		waitState(t, c, client.StateDisconnected)
	}

	ev := waitState(t, c, client.StateFailed)
	if ev.From != client.StateDisconnected {
		t.Errorf("From = %s, want disconnected", ev.From)
	}
	if ev.Err == nil {
		t.Error("Err = nil, want the last failure")
	}

	select {
	case <-ff.created:
		t.Error("reconnected after giving up")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestReconnector_ResetsAfterConnected(t *testing.T) {
	c, tr, ff := connected(t)
	r := client.NewReconnector(c.Connection(), fastPolicy)
	t.Cleanup(r.Stop)

	tr.emit(transport.Disconnected{Code: 1001, Reason: "going away"})
	next := ff.next(t)
	next.emit(transport.Connected{})
	waitState(t, c, client.StateConnected)

	deadline := time.Now().Add(time.Second)
	for r.Attempts() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("Attempts() = %d, want 0 after connecting", r.Attempts())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestReconnector_IgnoresClientDisconnect(t *testing.T) {
	c, _, ff := connected(t)
	r := client.NewReconnector(c.Connection(), fastPolicy)
	t.Cleanup(r.Stop)

	c.Close()
	waitState(t, c, client.StateDisconnected)

	select {
	case <-ff.created:
		t.Error("reconnected after Close")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestReconnector_Stop(t *testing.T) {
	c, tr, ff := connected(t)
	r := client.NewReconnector(c.Connection(), client.ReconnectPolicy{MinDelay: 20 * time.Millisecond, MaxDelay: 20 * time.Millisecond})

	r.Stop()
	tr.emit(transport.Error{Err: errors.New("reset")})
	waitState(t, c, client.StateDisconnected)

	select {
	case <-ff.created:
		t.Error("reconnected after Stop")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestClient_ConnectFromFailed(t *testing.T) {
	c, tr, ff := connected(t)
	r := client.NewReconnector(c.Connection(), client.ReconnectPolicy{MaxAttempts: -1})
	t.Cleanup(r.Stop)

	tr.emit(transport.Error{Err: errors.New("reset")})
	waitState(t, c, client.StateFailed)

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	ff.next(t)
	ev := waitState(t, c, client.StateConnecting)
	if ev.From != client.StateFailed {
		t.Errorf("From = %s, want failed", ev.From)
	}
}

func TestReconnector_CloseDuringBackoff(t *testing.T) {
	c, tr, ff := connected(t)
	r := client.NewReconnector(c.Connection(), client.ReconnectPolicy{
		MinDelay: 100 * time.Millisecond,
		MaxDelay: 100 * time.Millisecond,
	})
	t.Cleanup(r.Stop)

	tr.emit(transport.Error{Err: errors.New("reset")})
	waitState(t, c, client.StateDisconnected)

	c.Close()

	select {
	case <-ff.created:
		t.Errorf("reconnected after Close, state = %s", c.State())
	case <-time.After(400 * time.Millisecond):
	}
	if got := c.State(); got != client.StateDisconnected {
		t.Errorf("State() = %s, want disconnected", got)
	}
}
