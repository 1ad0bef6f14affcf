package transfer

import (
	"bytes"
	"strings"
)

// scriptConn simulates the device end of the serial link for the
// single-threaded engines. Reads drain a pending buffer and report a serial
// timeout (0, nil) when it runs dry. Written bytes are split into lines
// (commands end in \r, acks in \n) and handed to respond, which may queue
// replies.
type scriptConn struct {
	pending bytes.Buffer
	partial bytes.Buffer
	written []string
	respond func(line string)
}

// push queues device output lines for the host to read.
func (c *scriptConn) push(lines ...string) {
	for _, l := range lines {
		c.pending.WriteString(l + "\r\n")
	}
}

func (c *scriptConn) Read(p []byte) (int, error) {
	if c.pending.Len() == 0 {
		return 0, nil
	}
	return c.pending.Read(p)
}

func (c *scriptConn) Write(p []byte) (int, error) {
	for _, b := range p {
		if b == '\n' || b == '\r' {
			if line := c.partial.String(); line != "" {
				c.written = append(c.written, line)
				if c.respond != nil {
					c.respond(line)
				}
			}
			c.partial.Reset()
			continue
		}
		c.partial.WriteByte(b)
	}
	return len(p), nil
}

// wrote reports whether any written line starts with prefix.
func (c *scriptConn) wrote(prefix string) bool {
	for _, l := range c.written {
		if strings.HasPrefix(l, prefix) {
			return true
		}
	}
	return false
}

// countWrites counts written lines starting with prefix.
func (c *scriptConn) countWrites(prefix string) int {
	n := 0
	for _, l := range c.written {
		if strings.HasPrefix(l, prefix) {
			n++
		}
	}
	return n
}
