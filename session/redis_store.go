package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisSessionPrefix = "session:"
	redisSessionIndex  = "sessions:index"
)

// redisSessionData is the JSON-serializable representation of a Session
// used by RedisStore. Kept separate from sessionData (which carries cbor
// struct tags for the Pebble backend) so each backend's wire format can
// evolve independently.
type redisSessionData struct {
	ClientID           string                      `json:"client_id"`
	CleanSession       bool                        `json:"clean_session"`
	KeepaliveSecs      uint16                      `json:"keepalive_secs"`
	Will               *Will                       `json:"will,omitempty"`
	Subs               map[string]byte             `json:"subs"`
	OutboundInflight   map[uint16]*OutboundMessage `json:"outbound_inflight"`
	InboundInflight    []uint16                    `json:"inbound_inflight"`
	QueuedWhileOffline []*OutboundMessage          `json:"queued_while_offline"`
	NextPktID          uint16                      `json:"next_pkt_id"`
	CreatedAt          time.Time                   `json:"created_at"`
	DisconnectedAt     time.Time                   `json:"disconnected_at"`
}

func sessionToRedisData(s *Session) *redisSessionData {
	s.mu.Lock()
	defer s.mu.Unlock()

	data := &redisSessionData{
		ClientID:       s.ClientID,
		CleanSession:   s.CleanSession,
		KeepaliveSecs:  s.KeepaliveSecs,
		Will:           s.Will,
		NextPktID:      s.nextPktID,
		CreatedAt:      s.CreatedAt,
		DisconnectedAt: s.DisconnectedAt,
	}

	// Copied while still holding s.mu, same reasoning as
	// pebble_store.go's sessionToData: json.Marshal runs after the lock
	// is released, and sharing the live maps would let a concurrent
	// session mutation race it into a map-read/map-write panic.
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

func redisDataToSession(data *redisSessionData) *Session {
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

// RedisStore is a Redis-backed Store, for deployments sharing session
// state across multiple broker processes.
type RedisStore struct {
	client *redis.Client
	mu     sync.RWMutex
	closed bool
	ttl    time.Duration
}

// RedisStoreConfig configures the Redis store.
type RedisStoreConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
	Options  *redis.Options
}

// NewRedisStore creates a new Redis-backed session store.
func NewRedisStore(config RedisStoreConfig) (*RedisStore, error) {
	var client *redis.Client
	if config.Options != nil {
		client = redis.NewClient(config.Options)
	} else {
		client = redis.NewClient(&redis.Options{
			Addr:     config.Addr,
			Password: config.Password,
			DB:       config.DB,
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisStore{client: client, ttl: config.TTL}, nil
}

func makeRedisKey(clientID string) string {
	return redisSessionPrefix + clientID
}

func (r *RedisStore) Save(ctx context.Context, session *Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.RLock()
	closed := r.closed
	r.mu.RUnlock()
	if closed {
		return ErrStoreClosed
	}

	value, err := json.Marshal(sessionToRedisData(session))
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	pipe := r.client.Pipeline()
	if r.ttl > 0 {
		pipe.Set(ctx, makeRedisKey(session.ClientID), value, r.ttl)
	} else {
		pipe.Set(ctx, makeRedisKey(session.ClientID), value, 0)
	}
	pipe.SAdd(ctx, redisSessionIndex, session.ClientID)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

func (r *RedisStore) Load(ctx context.Context, clientID string) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	closed := r.closed
	r.mu.RUnlock()
	if closed {
		return nil, ErrStoreClosed
	}

	value, err := r.client.Get(ctx, makeRedisKey(clientID)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	var data redisSessionData
	if err := json.Unmarshal([]byte(value), &data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}

	return redisDataToSession(&data), nil
}

func (r *RedisStore) Delete(ctx context.Context, clientID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.RLock()
	closed := r.closed
	r.mu.RUnlock()
	if closed {
		return ErrStoreClosed
	}

	pipe := r.client.Pipeline()
	pipe.Del(ctx, makeRedisKey(clientID))
	pipe.SRem(ctx, redisSessionIndex, clientID)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func (r *RedisStore) Exists(ctx context.Context, clientID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	r.mu.RLock()
	closed := r.closed
	r.mu.RUnlock()
	if closed {
		return false, ErrStoreClosed
	}

	count, err := r.client.Exists(ctx, makeRedisKey(clientID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check session existence: %w", err)
	}
	return count > 0, nil
}

func (r *RedisStore) List(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	closed := r.closed
	r.mu.RUnlock()
	if closed {
		return nil, ErrStoreClosed
	}

	members, err := r.client.SMembers(ctx, redisSessionIndex).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return members, nil
}

func (r *RedisStore) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrStoreClosed
	}

	r.closed = true
	return r.client.Close()
}

// Count returns the total number of sessions, for the $SYS stats publisher.
func (r *RedisStore) Count(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	r.mu.RLock()
	closed := r.closed
	r.mu.RUnlock()
	if closed {
		return 0, ErrStoreClosed
	}

	count, err := r.client.SCard(ctx, redisSessionIndex).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count sessions: %w", err)
	}
	return count, nil
}

// Flush removes all sessions from the store. Used by tests against a real
// Redis instance to reset state between runs.
func (r *RedisStore) Flush(ctx context.Context) error {
	r.mu.RLock()
	closed := r.closed
	r.mu.RUnlock()
	if closed {
		return ErrStoreClosed
	}

	clientIDs, err := r.List(ctx)
	if err != nil {
		return err
	}
	if len(clientIDs) == 0 {
		return nil
	}

	pipe := r.client.Pipeline()
	for _, clientID := range clientIDs {
		pipe.Del(ctx, makeRedisKey(clientID))
	}
	pipe.Del(ctx, redisSessionIndex)

	_, err = pipe.Exec(ctx)
	return err
}
