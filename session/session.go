package session

import (
	"sync"
	"time"
)

// InflightState is the state of an entry in a session's outbound inflight
// table.
type InflightState byte

const (
	AwaitingPuback InflightState = iota
	AwaitingPubrec
	AwaitingPubcomp
)

// Will is the Last Will and Testament recorded at CONNECT time.
type Will struct {
	Topic   string
	Payload []byte
	QoS     byte
	Retain  bool
}

// OutboundMessage is a QoS 1/2 PUBLISH either sitting in outbound_inflight
// awaiting acknowledgment, or queued in queued_while_offline awaiting a
// pkt_id assignment on send.
type OutboundMessage struct {
	PacketID uint16
	Topic    string
	Payload  []byte
	QoS      byte
	Retain   bool
	Dup      bool
	State    InflightState
	Deadline time.Time
}

// Session is a client session as described by the broker's session store:
// the per-client_id state that survives a clean_session=false disconnect
// and is looked up again on reconnect.
type Session struct {
	mu sync.Mutex

	ClientID      string
	CleanSession  bool
	Connected     bool
	KeepaliveSecs uint16
	Will          *Will

	// Subs is the set of topic filters this client is subscribed to. The
	// router keeps the live trie; this copy is what the broker re-registers
	// in the router when a clean_session=false client reconnects.
	Subs map[string]byte // filter -> granted QoS

	// OutboundInflight is pkt_id -> in-flight QoS1/2 outbound message.
	OutboundInflight map[uint16]*OutboundMessage

	// InboundInflight is the set of pkt_ids for inbound QoS2 PUBLISH
	// packets awaiting PUBREL.
	InboundInflight map[uint16]struct{}

	// QueuedWhileOffline holds QoS1/2 PUBLISH messages destined for this
	// session while it has no live connection; no pkt_id is assigned
	// until the message is actually sent.
	QueuedWhileOffline []*OutboundMessage

	nextPktID uint16

	CreatedAt      time.Time
	DisconnectedAt time.Time
}

// New creates a fresh session for clientID.
func New(clientID string, cleanSession bool, keepaliveSecs uint16) *Session {
	return &Session{
		ClientID:         clientID,
		CleanSession:     cleanSession,
		KeepaliveSecs:    keepaliveSecs,
		Subs:             make(map[string]byte),
		OutboundInflight: make(map[uint16]*OutboundMessage),
		InboundInflight:  make(map[uint16]struct{}),
		nextPktID:        1,
		CreatedAt:        time.Now(),
	}
}

// AllocatePktID returns the next id in [1, 65535], counting on from the last
// one handed out and wrapping past 65535 back to 1, skipping ids currently
// used in OutboundInflight. Returns ErrInflightExhausted if every id is in
// use.
func (s *Session) AllocatePktID() (uint16, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := s.nextPktID
	for {
		id := s.nextPktID
		if s.nextPktID == 65535 {
			s.nextPktID = 1
		} else {
			s.nextPktID++
		}

		if _, inUse := s.OutboundInflight[id]; !inUse {
			return id, nil
		}

		if s.nextPktID == start {
			return 0, ErrInflightExhausted
		}
	}
}

// SetActive attaches the session to a live connection.
func (s *Session) SetActive() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Connected = true
}

// SetDisconnected detaches the session from its connection, recording the
// detach time in DisconnectedAt.
func (s *Session) SetDisconnected() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Connected = false
	s.DisconnectedAt = time.Now()
}

// AddSub records filter/qos in the session's subscription set.
func (s *Session) AddSub(filter string, qos byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Subs[filter] = qos
}

// RemoveSub drops filter from the session's subscription set.
func (s *Session) RemoveSub(filter string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.Subs, filter)
}

// AllSubs returns a copy of the session's subscription set.
func (s *Session) AllSubs() map[string]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	subs := make(map[string]byte, len(s.Subs))
	for k, v := range s.Subs {
		subs[k] = v
	}
	return subs
}

// AddOutboundInflight records msg under msg.PacketID.
func (s *Session) AddOutboundInflight(msg *OutboundMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.OutboundInflight[msg.PacketID] = msg
}

// RemoveOutboundInflight drops pktID from outbound_inflight.
func (s *Session) RemoveOutboundInflight(pktID uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.OutboundInflight, pktID)
}

// GetOutboundInflight looks up pktID in outbound_inflight.
func (s *Session) GetOutboundInflight(pktID uint16) (*OutboundMessage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.OutboundInflight[pktID]
	return msg, ok
}

// SetOutboundState transitions an in-flight entry's acknowledgment state,
// e.g. AwaitingPubrec -> AwaitingPubcomp on receipt of PUBREC.
func (s *Session) SetOutboundState(pktID uint16, state InflightState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg, ok := s.OutboundInflight[pktID]; ok {
		msg.State = state
	}
}

// MarkInboundInflight records pktID as an inbound QoS2 PUBLISH awaiting
// PUBREL, returning whether it was already present (meaning this PUBLISH is
// a retransmit that must not be re-routed).
func (s *Session) MarkInboundInflight(pktID uint16) (alreadyPresent bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, alreadyPresent = s.InboundInflight[pktID]
	s.InboundInflight[pktID] = struct{}{}
	return alreadyPresent
}

// ClearInboundInflight drops pktID from inbound_inflight on PUBREL.
func (s *Session) ClearInboundInflight(pktID uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.InboundInflight, pktID)
}

// AllOutboundInflight returns a snapshot slice of every outbound_inflight
// entry, for resending with DUP set when a session resumes.
func (s *Session) AllOutboundInflight() []*OutboundMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := make([]*OutboundMessage, 0, len(s.OutboundInflight))
	for _, msg := range s.OutboundInflight {
		msgs = append(msgs, msg)
	}
	return msgs
}

// EnqueueOffline appends msg to queued_while_offline.
func (s *Session) EnqueueOffline(msg *OutboundMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.QueuedWhileOffline = append(s.QueuedWhileOffline, msg)
}

// DrainOffline returns and clears queued_while_offline, for replay once the
// session reattaches to a connection.
func (s *Session) DrainOffline() []*OutboundMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	drained := s.QueuedWhileOffline
	s.QueuedWhileOffline = nil
	return drained
}

// SetWill records the Last Will and Testament supplied at CONNECT.
func (s *Session) SetWill(will *Will) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Will = will
}

// TakeWill returns the session's will and clears it, so it is emitted at
// most once.
func (s *Session) TakeWill() *Will {
	s.mu.Lock()
	defer s.mu.Unlock()
	w := s.Will
	s.Will = nil
	return w
}

// Clear resets subscriptions, inflight state, and queued messages, as done
// when a clean_session session is discarded or recreated.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Subs = make(map[string]byte)
	s.OutboundInflight = make(map[uint16]*OutboundMessage)
	s.InboundInflight = make(map[uint16]struct{})
	s.QueuedWhileOffline = nil
	s.Will = nil
	s.nextPktID = 1
}

// IsConnected reports whether the session is currently attached to a
// connection.
func (s *Session) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Connected
}
