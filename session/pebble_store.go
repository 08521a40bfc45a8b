package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/fxamacker/cbor/v2"
)

var sessionPrefix = []byte("session:")

// PebbleStore is a Pebble-backed Store, serializing sessions with cbor.
type PebbleStore struct {
	db     *pebble.DB
	mu     sync.RWMutex
	closed bool
}

// PebbleStoreConfig configures the Pebble store.
type PebbleStoreConfig struct {
	Path string
	Opts *pebble.Options
}

// sessionData is the cbor-serializable representation of a Session.
type sessionData struct {
	ClientID           string                      `cbor:"client_id"`
	CleanSession       bool                        `cbor:"clean_session"`
	KeepaliveSecs      uint16                      `cbor:"keepalive_secs"`
	Will               *Will                       `cbor:"will,omitempty"`
	Subs               map[string]byte             `cbor:"subs"`
	OutboundInflight   map[uint16]*OutboundMessage `cbor:"outbound_inflight"`
	InboundInflight    []uint16                    `cbor:"inbound_inflight"`
	QueuedWhileOffline []*OutboundMessage          `cbor:"queued_while_offline"`
	NextPktID          uint16                      `cbor:"next_pkt_id"`
	CreatedAt          time.Time                   `cbor:"created_at"`
	DisconnectedAt     time.Time                   `cbor:"disconnected_at"`
}

// NewPebbleStore opens (or creates) a Pebble-backed session store at path.
func NewPebbleStore(config PebbleStoreConfig) (*PebbleStore, error) {
	opts := config.Opts
	if opts == nil {
		opts = &pebble.Options{ErrorIfExists: false}
	}

	db, err := pebble.Open(config.Path, opts)
	if err != nil {
		return nil, err
	}

	return &PebbleStore{db: db}, nil
}

func sessionToData(s *Session) *sessionData {
	s.mu.Lock()
	defer s.mu.Unlock()

	data := &sessionData{
		ClientID:       s.ClientID,
		CleanSession:   s.CleanSession,
		KeepaliveSecs:  s.KeepaliveSecs,
		Will:           s.Will,
		NextPktID:      s.nextPktID,
		CreatedAt:      s.CreatedAt,
		DisconnectedAt: s.DisconnectedAt,
	}

	// Copy every map/slice field while still holding s.mu, rather than
	// sharing the live maps with the caller: cbor.Marshal runs after this
	// function returns and the lock is released, and a concurrent AddSub
	// or AddOutboundInflight racing that marshal would otherwise trigger
	// Go's concurrent map read/write panic.
	data.Subs = make(map[string]byte, len(s.Subs))
	for k, v := range s.Subs {
		data.Subs[k] = v
	}

	data.OutboundInflight = make(map[uint16]*OutboundMessage, len(s.OutboundInflight))
	for k, v := range s.OutboundInflight {
		msg := *v
		data.OutboundInflight[k] = &msg
	}

	data.QueuedWhileOffline = make([]*OutboundMessage, len(s.QueuedWhileOffline))
	for i, v := range s.QueuedWhileOffline {
		msg := *v
		data.QueuedWhileOffline[i] = &msg
	}

	data.InboundInflight = make([]uint16, 0, len(s.InboundInflight))
	for id := range s.InboundInflight {
		data.InboundInflight = append(data.InboundInflight, id)
	}

	return data
}

func dataToSession(data *sessionData) *Session {
	s := &Session{
		ClientID:           data.ClientID,
		CleanSession:       data.CleanSession,
		KeepaliveSecs:      data.KeepaliveSecs,
		Will:               data.Will,
		Subs:               data.Subs,
		OutboundInflight:   data.OutboundInflight,
		QueuedWhileOffline: data.QueuedWhileOffline,
		nextPktID:          data.NextPktID,
		CreatedAt:          data.CreatedAt,
		DisconnectedAt:     data.DisconnectedAt,
	}

	if s.Subs == nil {
		s.Subs = make(map[string]byte)
	}
	if s.OutboundInflight == nil {
		s.OutboundInflight = make(map[uint16]*OutboundMessage)
	}

	s.InboundInflight = make(map[uint16]struct{}, len(data.InboundInflight))
	for _, id := range data.InboundInflight {
		s.InboundInflight[id] = struct{}{}
	}

	return s
}

func makeKey(clientID string) []byte {
	key := make([]byte, len(sessionPrefix)+len(clientID))
	copy(key, sessionPrefix)
	copy(key[len(sessionPrefix):], clientID)
	return key
}

func (p *PebbleStore) Save(ctx context.Context, session *Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.RLock()
	closed := p.closed
	p.mu.RUnlock()
	if closed {
		return ErrStoreClosed
	}

	value, err := cbor.Marshal(sessionToData(session))
	if err != nil {
		return err
	}

	return p.db.Set(makeKey(session.ClientID), value, pebble.Sync)
}

func (p *PebbleStore) Load(ctx context.Context, clientID string) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.RLock()
	closed := p.closed
	p.mu.RUnlock()
	if closed {
		return nil, ErrStoreClosed
	}

	value, closer, err := p.db.Get(makeKey(clientID))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	defer closer.Close()

	var data sessionData
	if err := cbor.Unmarshal(value, &data); err != nil {
		return nil, err
	}

	return dataToSession(&data), nil
}

func (p *PebbleStore) Delete(ctx context.Context, clientID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.RLock()
	closed := p.closed
	p.mu.RUnlock()
	if closed {
		return ErrStoreClosed
	}

	return p.db.Delete(makeKey(clientID), pebble.Sync)
}

func (p *PebbleStore) Exists(ctx context.Context, clientID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	p.mu.RLock()
	closed := p.closed
	p.mu.RUnlock()
	if closed {
		return false, ErrStoreClosed
	}

	_, closer, err := p.db.Get(makeKey(clientID))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	closer.Close()
	return true, nil
}

func (p *PebbleStore) List(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.RLock()
	closed := p.closed
	p.mu.RUnlock()
	if closed {
		return nil, ErrStoreClosed
	}

	var clientIDs []string

	iter, err := p.db.NewIter(&pebble.IterOptions{
		LowerBound: sessionPrefix,
		UpperBound: append(append([]byte{}, sessionPrefix...), 0xff),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		key := iter.Key()
		clientIDs = append(clientIDs, string(key[len(sessionPrefix):]))
	}

	if err := iter.Error(); err != nil {
		return nil, err
	}

	return clientIDs, nil
}

func (p *PebbleStore) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrStoreClosed
	}

	p.closed = true
	return p.db.Close()
}

// Count returns the total number of sessions, for the $SYS stats publisher.
func (p *PebbleStore) Count(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	p.mu.RLock()
	closed := p.closed
	p.mu.RUnlock()
	if closed {
		return 0, ErrStoreClosed
	}

	var count int64

	iter, err := p.db.NewIter(&pebble.IterOptions{
		LowerBound: sessionPrefix,
		UpperBound: append(append([]byte{}, sessionPrefix...), 0xff),
	})
	if err != nil {
		return 0, err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		count++
	}

	if err := iter.Error(); err != nil {
		return 0, err
	}

	return count, nil
}
