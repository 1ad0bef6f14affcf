// Package fsm implements the transfer workflows for SD dump and SD write.
// Each invocation walks connect, handshake, and transfer states over a
// single exclusively-owned serial connection, using the superfly/fsm
// library for state registration and execution.
package fsm

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/rtgs-lab/sdlink/pkg/db"
	"github.com/rtgs-lab/sdlink/pkg/errors"
	"github.com/rtgs-lab/sdlink/pkg/protocol"
	"github.com/rtgs-lab/sdlink/pkg/security"
	"github.com/rtgs-lab/sdlink/pkg/serialport"
	"github.com/rtgs-lab/sdlink/pkg/storage"
	"github.com/superfly/fsm"
)

// resetDelay gives the device time to finish its USB reset after the port
// opens, before boot output is expected.
const resetDelay = 2 * time.Second

// Machine holds dependencies for workflow transitions. One Machine serves
// one invocation: the open serial port lives here between states and is
// released by Close on every exit path.
type Machine struct {
	repo       *db.Repository
	store      *storage.Client // nil disables archival
	validator  *security.Validator
	maxRetries int

	progressOut io.Writer

	port  serialport.Port
	lines *protocol.LineReader
}

// NewMachine creates a workflow machine with dependencies
func NewMachine(repo *db.Repository, store *storage.Client, validator *security.Validator, maxRetries int) *Machine {
	return &Machine{
		repo:        repo,
		store:       store,
		validator:   validator,
		maxRetries:  maxRetries,
		progressOut: os.Stderr,
	}
}

// Close releases the serial port if one is open. Safe to call on every exit
// path; the deferred call in the command is the single cleanup point for
// the connection.
func (m *Machine) Close() error {
	if m.port == nil {
		return nil
	}
	port := m.port
	m.port = nil
	m.lines = nil
	slog.Info("serial_close")
	return port.Close()
}

// RegisterDump registers the SD dump workflow
func (m *Machine) RegisterDump(ctx context.Context, manager *fsm.Manager) (fsm.Start[DumpRequest, TransferResponse], fsm.Resume, error) {
	start, resume, err := fsm.Register[DumpRequest, TransferResponse](manager, "sd-dump").
		Start(StateConnect, m.handleDumpConnect).
		To(StateHandshake, m.handleDumpHandshake).
		To(StateTransfer, m.handleDumpTransfer).
		To(StateArchive, m.handleDumpArchive).
		To(StateComplete, m.handleDumpComplete).
		End(StateFailed).
		Build(ctx)

	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to register dump FSM")
	}

	return start, resume, nil
}

// RegisterWrite registers the SD write workflow
func (m *Machine) RegisterWrite(ctx context.Context, manager *fsm.Manager) (fsm.Start[WriteRequest, TransferResponse], fsm.Resume, error) {
	start, resume, err := fsm.Register[WriteRequest, TransferResponse](manager, "sd-write").
		Start(StateConnect, m.handleWriteConnect).
		To(StateHandshake, m.handleWriteHandshake).
		To(StateTransfer, m.handleWriteTransfer).
		To(StateComplete, m.handleWriteComplete).
		End(StateFailed).
		Build(ctx)

	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to register write FSM")
	}

	return start, resume, nil
}

// connect resolves the port name (auto-detecting a Particle device when
// empty), opens the serial connection, and waits out the device reset.
func (m *Machine) connect(portName string, baud int) (string, error) {
	if portName == "" {
		detected, err := serialport.FindDevice()
		if err != nil {
			return "", err
		}
		slog.Info("device_auto_detected", "port", detected)
		portName = detected
	}

	cfg := serialport.DefaultConfig(portName)
	if baud > 0 {
		cfg.Baud = baud
	}

	port, err := serialport.Open(cfg)
	if err != nil {
		return "", err
	}
	// Drop any stale bytes from a previous session before boot output starts.
	if err := port.ResetInputBuffer(); err != nil {
		port.Close()
		return "", errors.Wrap(err, "failed to flush serial input")
	}
	m.port = port
	m.lines = protocol.NewLineReader(port)

	// Opening the port can reset the device; give it a moment.
	time.Sleep(resetDelay)
	return portName, nil
}
