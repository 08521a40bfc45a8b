package broker

import (
	"fmt"
	"sync/atomic"
	"time"
)

// Stats holds the broker-wide counters published under $SYS/broker/... .
// Every field is touched only from the single event-loop goroutine except
// where noted, so plain counters (not atomics) would do; they are kept as
// atomics anyway since Stats is also read by any future out-of-loop
// introspection (an admin HTTP endpoint, a signal handler) without needing
// to hop back onto the event loop.
type Stats struct {
	startTime time.Time

	clientsConnected atomic.Int64
	clientsTotal      atomic.Int64
	bytesReceived     atomic.Uint64
	bytesSent         atomic.Uint64
	messagesReceived  atomic.Uint64
	messagesSent      atomic.Uint64
}

// NewStats creates a Stats with its start time set to now.
func NewStats() *Stats {
	return &Stats{startTime: time.Now()}
}

func (s *Stats) onConnect() {
	s.clientsConnected.Add(1)
	s.clientsTotal.Add(1)
}

func (s *Stats) onDisconnect() {
	s.clientsConnected.Add(-1)
}

func (s *Stats) addBytesReceived(n int)  { s.bytesReceived.Add(uint64(n)) }
func (s *Stats) addBytesSent(n int)      { s.bytesSent.Add(uint64(n)) }
func (s *Stats) addMessageReceived()     { s.messagesReceived.Add(1) }
func (s *Stats) addMessageSent()         { s.messagesSent.Add(1) }

// sysTopic is one $SYS statistics topic paired with the function that
// renders its current value.
type sysTopic struct {
	topic  string
	render func(s *Stats) string
}

// sysTopics lists every $SYS topic the broker republishes on its stats
// interval.
var sysTopics = []sysTopic{
	{"$SYS/broker/uptime", func(s *Stats) string {
		return fmt.Sprintf("%d", int64(time.Since(s.startTime).Seconds()))
	}},
	{"$SYS/broker/clients/connected", func(s *Stats) string {
		return fmt.Sprintf("%d", s.clientsConnected.Load())
	}},
	{"$SYS/broker/clients/total", func(s *Stats) string {
		return fmt.Sprintf("%d", s.clientsTotal.Load())
	}},
	{"$SYS/broker/bytes/received", func(s *Stats) string {
		return fmt.Sprintf("%d", s.bytesReceived.Load())
	}},
	{"$SYS/broker/bytes/sent", func(s *Stats) string {
		return fmt.Sprintf("%d", s.bytesSent.Load())
	}},
	{"$SYS/broker/messages/received", func(s *Stats) string {
		return fmt.Sprintf("%d", s.messagesReceived.Load())
	}},
	{"$SYS/broker/messages/sent", func(s *Stats) string {
		return fmt.Sprintf("%d", s.messagesSent.Load())
	}},
}
