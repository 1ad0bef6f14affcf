package protocol

import (
	"bytes"
	"io"
	"strings"
)

// LineReader reads newline-terminated protocol lines from a serial stream.
// It is the sole consumer of the raw port: all other components receive
// decoded lines from it.
//
// Serial reads are expected to use a short read timeout; go.bug.st/serial
// reports a timeout as (0, nil). In that case ReadLine returns an empty
// line rather than an error, so engines can keep polling. Bytes that are
// not valid UTF-8 (boot-time garbage before the firmware starts printing
// protocol text) are dropped, matching the lossy decode the firmware
// expects hosts to perform.
type LineReader struct {
	r    io.Reader
	buf  []byte
	read [512]byte
}

// NewLineReader wraps a serial stream.
func NewLineReader(r io.Reader) *LineReader {
	return &LineReader{r: r}
}

// ReadLine returns the next complete line with the terminator and any
// trailing \r stripped, or an empty string if no complete line arrived
// before the underlying read timed out. Partial lines are retained across
// calls. A non-nil error is a transport failure and is fatal for the
// current operation.
func (lr *LineReader) ReadLine() (string, error) {
	for {
		if i := bytes.IndexByte(lr.buf, '\n'); i >= 0 {
			line := lr.buf[:i]
			lr.buf = lr.buf[i+1:]
			return decodeLine(line), nil
		}

		n, err := lr.r.Read(lr.read[:])
		if n > 0 {
			lr.buf = append(lr.buf, lr.read[:n]...)
			continue
		}
		if err != nil {
			return "", err
		}
		// Read timed out with no complete line; let the caller poll again.
		return "", nil
	}
}

// decodeLine drops undecodable bytes and surrounding whitespace (including
// the \r of CRLF-terminated lines).
func decodeLine(raw []byte) string {
	return strings.TrimSpace(strings.ToValidUTF8(string(raw), ""))
}
