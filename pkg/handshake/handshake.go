// Package handshake drives a booting device into command mode. The firmware
// only listens for the trigger during a short boot window, so the engine
// watches for boot output, fires the trigger once, and then waits for the
// command-mode sentinel.
package handshake

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/rtgs-lab/sdlink/pkg/protocol"
)

// ErrTimeout is returned when the device never confirms command mode within
// the window. It is fatal for the invocation; the caller must power cycle
// the device and retry the whole operation.
var ErrTimeout = errors.New("device did not enter command mode")

// State tracks handshake progress.
type State int

const (
	StateAwaitingBoot State = iota
	StateTriggerSent
	StateConfirmed
	StateTimedOut
)

func (s State) String() string {
	switch s {
	case StateAwaitingBoot:
		return "awaiting_boot"
	case StateTriggerSent:
		return "trigger_sent"
	case StateConfirmed:
		return "confirmed"
	case StateTimedOut:
		return "timed_out"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Engine runs the boot-time handshake over an open serial connection.
type Engine struct {
	rw    io.ReadWriter
	lines *protocol.LineReader
	log   *slog.Logger

	// Timeout bounds the whole handshake, independent of how many boot
	// lines were seen.
	Timeout time.Duration

	// Poll is the idle sleep between empty reads.
	Poll time.Duration

	state State
}

// New creates an engine sharing the transfer engines' line reader so no
// buffered bytes are lost between phases.
func New(rw io.ReadWriter, lines *protocol.LineReader, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		rw:      rw,
		lines:   lines,
		log:     log,
		Timeout: 60 * time.Second,
		Poll:    100 * time.Millisecond,
	}
}

// State reports the current handshake state.
func (e *Engine) State() State {
	return e.state
}

// Run waits for boot output, sends the trigger exactly once, and returns nil
// when the device confirms command mode. Returns ErrTimeout if no
// confirmation arrives within Timeout.
func (e *Engine) Run(ctx context.Context) error {
	e.state = StateAwaitingBoot
	deadline := time.Now().Add(e.Timeout)

	e.log.Info("handshake_waiting_for_boot", "timeout", e.Timeout)

	for time.Now().Before(deadline) {
		if err := ctx.Err(); err != nil {
			return err
		}

		line, err := e.lines.ReadLine()
		if err != nil {
			return fmt.Errorf("handshake read: %w", err)
		}

		if line != "" {
			if e.confirmed(line) {
				e.state = StateConfirmed
				e.log.Info("handshake_confirmed", "line", line)
				return nil
			}
			if e.state == StateAwaitingBoot {
				// First boot output: the device is listening, fire the
				// trigger now. Single-shot per session.
				e.log.Info("handshake_boot_detected", "line", line)
				if _, err := e.rw.Write(protocol.Trigger); err != nil {
					return fmt.Errorf("handshake trigger write: %w", err)
				}
				e.state = StateTriggerSent
			}
			continue
		}

		time.Sleep(e.Poll)
	}

	e.state = StateTimedOut
	e.log.Error("handshake_timeout", "timeout", e.Timeout)
	return ErrTimeout
}

func (e *Engine) confirmed(line string) bool {
	for _, sentinel := range protocol.CommandModeSentinels {
		if strings.Contains(line, sentinel) {
			return true
		}
	}
	return false
}
