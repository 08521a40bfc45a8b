package broker

import (
	"net"
	"time"

	"github.com/axmq/broker/network"
	"github.com/axmq/broker/session"
)

// connState is the connection FSM's current state, per the protocol's
// CONNECT handshake.
type connState byte

const (
	stateAwaitingConnect connState = iota
	stateConnected
	stateClosing
)

// Conn is one client's live TCP connection together with the protocol
// bookkeeping the event loop needs to drive it: a growing inbound buffer
// that accumulates bytes until a full packet is available, and an
// outbound queue of already-encoded packets waiting for the socket to
// become writable.
type Conn struct {
	nc  *network.Connection
	fd  int
	raw net.Conn

	state    connState
	clientID string
	sess     *session.Session

	inbound  []byte
	consumed int

	outbound      [][]byte
	outboundPos   int
	outboundBytes int
	writeBlocked  bool

	keepaliveSecs uint16
	lastRecv      time.Time

	closeReason CloseReason
	closing     bool
}

// newConn wraps an accepted net.Conn for event-loop handling.
func newConn(raw net.Conn, nc *network.Connection, fd int) *Conn {
	return &Conn{
		nc:       nc,
		fd:       fd,
		raw:      raw,
		state:    stateAwaitingConnect,
		lastRecv: time.Now(),
	}
}

// readInto appends freshly read bytes to the inbound buffer, compacting
// already-consumed bytes first so the buffer doesn't grow unbounded across
// many small packets.
func (c *Conn) readInto(buf []byte) {
	if c.consumed > 0 {
		c.inbound = append(c.inbound[:0], c.inbound[c.consumed:]...)
		c.consumed = 0
	}
	c.inbound = append(c.inbound, buf...)
}

// queueOutbound appends an already-encoded packet to the outbound queue
// and returns the new total queued byte count.
func (c *Conn) queueOutbound(b []byte) int {
	c.outbound = append(c.outbound, b)
	c.outboundBytes += len(b)
	return c.outboundBytes
}

// hasPendingWrite reports whether any outbound bytes remain unsent.
func (c *Conn) hasPendingWrite() bool {
	return c.outboundPos < len(c.outbound)
}

// flushOutbound drains as much of the outbound queue as the socket will
// accept without blocking. It returns true once the queue is fully
// drained, false if a write returned EAGAIN and the connection must wait
// for the poller to report writability again.
func (c *Conn) flushOutbound() (drained bool, err error) {
	for c.outboundPos < len(c.outbound) {
		chunk := c.outbound[c.outboundPos]
		n, werr := rawWrite(c.fd, chunk)
		if n > 0 {
			c.outboundBytes -= n
			if n == len(chunk) {
				c.outboundPos++
			} else {
				c.outbound[c.outboundPos] = chunk[n:]
			}
		}
		if werr != nil {
			if werr == errWouldBlock {
				return false, nil
			}
			return false, werr
		}
	}
	c.outbound = nil
	c.outboundPos = 0
	c.outboundBytes = 0
	return true, nil
}
