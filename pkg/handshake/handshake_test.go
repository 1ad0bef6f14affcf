package handshake

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rtgs-lab/sdlink/pkg/protocol"
)

// bootConn simulates a device over serial: queued lines are served one read
// at a time, then reads time out (0, nil). Writes are captured.
type bootConn struct {
	mu      sync.Mutex
	pending bytes.Buffer
	written bytes.Buffer

	// onTrigger, if set, enqueues lines when the trigger arrives.
	onTrigger func(c *bootConn)
	triggered bool
}

func (c *bootConn) push(lines ...string) {
	for _, l := range lines {
		c.pending.WriteString(l + "\r\n")
	}
}

func (c *bootConn) Read(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending.Len() == 0 {
		return 0, nil
	}
	return c.pending.Read(p)
}

func (c *bootConn) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.written.Write(p)
	if !c.triggered && bytes.Contains(c.written.Bytes(), protocol.Trigger) {
		c.triggered = true
		if c.onTrigger != nil {
			c.onTrigger(c)
		}
	}
	return len(p), nil
}

func newEngine(c *bootConn, timeout time.Duration) *Engine {
	e := New(c, protocol.NewLineReader(c), nil)
	e.Timeout = timeout
	e.Poll = time.Millisecond
	return e
}

func TestHandshakeConfirms(t *testing.T) {
	c := &bootConn{}
	c.push("GEMS boot v2.1", "initializing sensors")
	c.onTrigger = func(c *bootConn) {
		c.push("Here be Dragons - Command Mode")
	}

	e := newEngine(c, time.Second)
	if err := e.Run(context.Background()); err != nil {
		t.Fatalf("handshake failed: %v", err)
	}
	if e.State() != StateConfirmed {
		t.Errorf("state = %v, want confirmed", e.State())
	}
	if !c.triggered {
		t.Error("trigger was never sent")
	}
}

func TestHandshakeTriggerSentOnce(t *testing.T) {
	c := &bootConn{}
	c.push("boot line 1", "boot line 2", "boot line 3")
	c.onTrigger = func(c *bootConn) {
		c.push("Command Mode")
	}

	e := newEngine(c, time.Second)
	if err := e.Run(context.Background()); err != nil {
		t.Fatalf("handshake failed: %v", err)
	}

	if got := bytes.Count(c.written.Bytes(), protocol.Trigger); got != 1 {
		t.Errorf("trigger written %d times, want 1", got)
	}
}

func TestHandshakeTimeoutNoOutput(t *testing.T) {
	// A silent device must time out without the trigger ever being sent.
	c := &bootConn{}

	e := newEngine(c, 20*time.Millisecond)
	err := e.Run(context.Background())
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if e.State() != StateTimedOut {
		t.Errorf("state = %v, want timed out", e.State())
	}
	if c.written.Len() != 0 {
		t.Errorf("trigger sent to a silent device: %q", c.written.Bytes())
	}
}

func TestHandshakeTimeoutNoConfirmation(t *testing.T) {
	// Boot output but no sentinel: trigger fires, handshake still times out.
	c := &bootConn{}
	c.push("boot output only")

	e := newEngine(c, 20*time.Millisecond)
	if err := e.Run(context.Background()); !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if !c.triggered {
		t.Error("trigger should have been sent after boot output")
	}
}

func TestHandshakeCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := &bootConn{}
	e := newEngine(c, time.Second)
	if err := e.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
