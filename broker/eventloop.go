// Package broker implements the connection FSM and the single-threaded,
// edge-triggered event loop that drives it. Exactly one goroutine —
// runEventLoop's caller — ever touches a Conn, the topic router, the
// retained-message store, or the broker's connsByFd/connsByClientID
// tables, so none of them carry a mutex. The only other goroutine in the
// broker is acceptLoop, which does nothing but block in Listener.Accept
// and hand the result to the event loop over a channel.
package broker

import (
	"context"
	"io"
	"net"
	"time"

	"github.com/axmq/broker/mqttcodec"
	"github.com/axmq/broker/network"
	"github.com/axmq/broker/session"
)

// periodicTask fires callback every interval, checked once per event-loop
// iteration; this stands in for the reference design's
// Add-periodic(interval, closure) primitive.
type periodicTask struct {
	interval time.Duration
	next     time.Time
	callback func()
}

func (b *Broker) addPeriodic(interval time.Duration, callback func()) {
	b.periodic = append(b.periodic, &periodicTask{interval: interval, next: time.Now().Add(interval), callback: callback})
}

func (b *Broker) runPeriodic(now time.Time) {
	for _, t := range b.periodic {
		if !now.Before(t.next) {
			t.callback()
			t.next = now.Add(t.interval)
		}
	}
}

const readChunkSize = 64 * 1024

// runEventLoop is the broker's single cooperative-scheduling loop: drain
// newly accepted connections, wait on the readiness multiplexer, service
// whatever fired, then sweep keepalives and periodic tasks before
// blocking again.
func (b *Broker) runEventLoop(ctx context.Context) error {
	readBuf := make([]byte, readChunkSize)
	var waitFailures int

	for {
		select {
		case <-ctx.Done():
			b.Shutdown()
			return ctx.Err()
		default:
		}

		b.drainNewConns()

		events, err := b.poller.Wait(b.cfg.PollTimeout)
		if err != nil {
			if b.closed {
				return nil
			}
			// The poller already swallows EINTR, so anything reaching
			// here is a real fault (e.g. a bad fd in the set); back off
			// instead of spinning the CPU retrying it every iteration.
			waitFailures++
			backoff := time.Duration(waitFailures) * 10 * time.Millisecond
			if backoff > time.Second {
				backoff = time.Second
			}
			b.log.Error("poller wait failed", "error", err, "consecutive_failures", waitFailures)
			time.Sleep(backoff)
			continue
		}
		waitFailures = 0

		for _, ev := range events {
			conn, ok := b.connsByFd[ev.Fd]
			if !ok {
				continue
			}
			if ev.Error != nil {
				b.closeConn(conn, PeerClosed)
				continue
			}
			b.handleReadable(conn, readBuf)
			if conn.closing {
				continue
			}
			if conn.hasPendingWrite() {
				b.handleWritable(conn)
			}
		}

		now := time.Now()
		b.sweepKeepalives(now)
		b.runPeriodic(now)
	}
}

// drainNewConns registers every connection acceptLoop has handed off
// since the last iteration, without blocking.
func (b *Broker) drainNewConns() {
	for {
		select {
		case raw := <-b.newConns:
			b.registerConn(raw)
		default:
			return
		}
	}
}

func (b *Broker) registerConn(raw net.Conn) {
	fd, err := rawFd(raw)
	if err != nil {
		raw.Close()
		return
	}

	nc := network.NewConnection(raw, raw.RemoteAddr().String(), &network.ConnectionConfig{})
	if err := b.poller.Add(nc, network.EventRead); err != nil {
		raw.Close()
		return
	}

	c := newConn(raw, nc, fd)
	b.connsByFd[fd] = c
	b.stats.onConnect()
}

// handleReadable drains fd until it would block, decoding and dispatching
// every complete packet that accumulates in the connection's inbound
// buffer. Edge-triggered readiness means every available byte must be
// read now; the poller will not fire again for data that arrived before
// this call returned.
func (b *Broker) handleReadable(c *Conn, buf []byte) {
	for {
		n, err := rawRead(c.fd, buf)
		if err != nil {
			if err == errWouldBlock {
				break
			}
			if err == io.EOF {
				b.closeConn(c, PeerClosed)
				return
			}
			b.closeConn(c, IoError)
			return
		}
		c.lastRecv = time.Now()
		b.stats.addBytesReceived(n)
		c.readInto(buf[:n])

		if !b.drainPackets(c) {
			return
		}
	}
}

// drainPackets decodes and dispatches every complete packet currently
// sitting in c's inbound buffer. It returns false if the connection was
// closed while doing so.
func (b *Broker) drainPackets(c *Conn) bool {
	for {
		unread := c.inbound[c.consumed:]
		if len(unread) == 0 {
			c.inbound = c.inbound[:0]
			c.consumed = 0
			return true
		}

		pkt, n, err := mqttcodec.Decode(unread)
		if err == mqttcodec.ErrShortBuffer {
			if len(unread) > b.cfg.MaxPacketSize {
				b.closeConn(c, MaxRequestSize)
				return false
			}
			return true
		}
		if err != nil {
			b.closeConn(c, ProtocolError)
			return false
		}
		if n > b.cfg.MaxPacketSize {
			b.closeConn(c, MaxRequestSize)
			return false
		}

		c.consumed += n
		b.stats.addMessageReceived()

		shouldClose, reason := b.handlePacket(c, pkt)
		if shouldClose {
			b.closeConn(c, reason)
			return false
		}
	}
}

func (b *Broker) handleWritable(c *Conn) {
	drained, err := c.flushOutbound()
	if err != nil {
		b.closeConn(c, IoError)
		return
	}
	if drained && c.writeBlocked {
		c.writeBlocked = false
		_ = b.poller.Modify(c.nc, network.EventRead)
	}
}

// queueWrite attempts an immediate non-blocking write; whatever doesn't
// fit is queued and the connection is armed for writability.
func (b *Broker) queueWrite(c *Conn, data []byte) error {
	if c.closing {
		return ErrConnClosed
	}

	if c.outboundBytes+len(data) > b.cfg.OutboundHighWaterBytes {
		// Backpressure: drop rather than grow the queue without bound.
		return nil
	}

	if !c.hasPendingWrite() {
		n, err := rawWrite(c.fd, data)
		if err != nil && err != errWouldBlock {
			return err
		}
		if n > 0 {
			b.stats.addBytesSent(n)
		}
		if n == len(data) {
			return nil
		}
		data = data[n:]
	}

	c.queueOutbound(data)
	if !c.writeBlocked {
		c.writeBlocked = true
		return b.poller.Modify(c.nc, network.EventRead|network.EventWrite)
	}
	return nil
}

// detachSocket removes a connection from the poller and the broker's
// fd/client tables and closes its socket. It does not touch session
// state: CloseForTakeover uses this alone, since session.Manager.Open is
// already holding the session store lock and mid-flight on reattaching
// the very same session to a new connection.
func (b *Broker) detachSocket(c *Conn, reason CloseReason) {
	if c.closing {
		return
	}
	c.closing = true
	c.state = stateClosing
	c.closeReason = reason

	if c.hasPendingWrite() {
		// Best effort: push out what is already queued (e.g. a refusing
		// CONNACK) before the socket goes away.
		_, _ = c.flushOutbound()
	}

	_ = b.poller.Remove(c.nc)
	delete(b.connsByFd, c.fd)
	if c.clientID != "" {
		if cur, ok := b.connsByClientID[c.clientID]; ok && cur == c {
			delete(b.connsByClientID, c.clientID)
		}
	}
	c.nc.Close()
	b.stats.onDisconnect()
}

// closeConn tears a connection down, drops a clean session's routes from
// the router and, unless reason suppresses it, drives the session's close
// through the manager so its will fires.
func (b *Broker) closeConn(c *Conn, reason CloseReason) {
	if c.closing {
		return
	}
	clientID := c.clientID
	cleanSession := c.sess != nil && c.sess.CleanSession
	b.detachSocket(c, reason)
	if clientID != "" {
		if cleanSession {
			b.router.UnsubscribeAll(clientID)
		}
		_ = b.sessions.Close(context.Background(), clientID, reason.SuppressesWill())
	}
}

// sweepKeepalives closes any connection that has gone silent for longer
// than its negotiated keepalive times the configured grace multiplier, and
// any connection still awaiting its first CONNECT past ConnectTimeout — a
// client that completes the TCP handshake and never sends CONNECT would
// otherwise hold its fd and poller registration forever.
func (b *Broker) sweepKeepalives(now time.Time) {
	for _, c := range b.connsByFd {
		switch c.state {
		case stateAwaitingConnect:
			if now.Sub(c.lastRecv) > b.cfg.ConnectTimeout {
				b.closeConn(c, ConnectTimeout)
			}
		case stateConnected:
			if c.keepaliveSecs == 0 {
				continue
			}
			grace := time.Duration(float64(c.keepaliveSecs)*b.cfg.KeepaliveGraceMultiplier) * time.Second
			if now.Sub(c.lastRecv) > grace {
				b.closeConn(c, KeepaliveTimeout)
			}
		}
	}
}

// publishStats republishes every $SYS topic at the configured interval.
func (b *Broker) publishStats() {
	for _, st := range sysTopics {
		b.routePublish(st.topic, []byte(st.render(b.stats)), 0, true)
	}
}

// PublishWill implements session.WillPublisher: it routes a disconnected
// client's Last Will and Testament exactly like any other publish.
func (b *Broker) PublishWill(ctx context.Context, will *session.Will, clientID string) error {
	b.routePublish(will.Topic, will.Payload, will.QoS, will.Retain)
	return nil
}

// CloseForTakeover implements session.TakeoverNotifier: it forces the
// previous live connection for clientID closed so a new CONNECT can take
// over the session. It only detaches the socket — session.Manager.Open is
// still holding the store lock and about to reattach this very session to
// the new connection, so running the full close lifecycle here would
// both deadlock on that lock and race the takeover itself.
func (b *Broker) CloseForTakeover(clientID string) {
	if c, ok := b.connsByClientID[clientID]; ok {
		b.detachSocket(c, TakeOver)
	}
}
