package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"sync"
)

// WillPublisher routes a session's Last Will and Testament into the broker
// the moment a non-graceful close determines it must be emitted.
type WillPublisher interface {
	PublishWill(ctx context.Context, will *Will, clientID string) error
}

// TakeoverNotifier lets the Manager ask whatever is holding a session's
// live connection to close it during a takeover, before the new connection
// is attached.
type TakeoverNotifier interface {
	CloseForTakeover(clientID string)
}

// Manager is the broker's session store: it owns the open/close/
// allocate-pkt-id operations the connection FSM drives a session through.
type Manager struct {
	mu             sync.Mutex
	store          Store
	active         map[string]*Session // clientID -> attached session
	willPublisher  WillPublisher
	takeover       TakeoverNotifier
	assignedPrefix string
}

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	Store            Store
	WillPublisher    WillPublisher
	TakeoverNotifier TakeoverNotifier
	AssignedIDPrefix string
}

// NewManager creates a Manager backed by config.Store.
func NewManager(config ManagerConfig) *Manager {
	if config.AssignedIDPrefix == "" {
		config.AssignedIDPrefix = "auto-"
	}

	return &Manager{
		store:          config.Store,
		active:         make(map[string]*Session),
		willPublisher:  config.WillPublisher,
		takeover:       config.TakeoverNotifier,
		assignedPrefix: config.AssignedIDPrefix,
	}
}

// Open attaches clientID to a session, following the connection FSM's
// CONNECT handling: if the client is already connected, the existing
// connection is closed for takeover and the new one attached (tookOver =
// true). If cleanSession, any existing persisted session is discarded and a
// fresh one is returned (present = false). Otherwise the persisted session,
// if any, is resumed (present = true).
func (m *Manager) Open(ctx context.Context, clientID string, cleanSession bool, keepaliveSecs uint16) (sess *Session, tookOver bool, present bool, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, live := m.active[clientID]
	if live && existing.IsConnected() {
		if m.takeover != nil {
			m.takeover.CloseForTakeover(clientID)
		}
		tookOver = true
	}

	// A still-attached session (taken over or otherwise) is reused
	// directly rather than reloaded from the store: subscriptions and
	// outbound_inflight only get persisted on Open/Close, so an
	// intervening store round trip would discard every mutation the live
	// Session has accumulated since its last Save in favor of stale bytes.
	if live && !cleanSession {
		existing.CleanSession = false
		existing.KeepaliveSecs = keepaliveSecs
		existing.SetActive()
		if err := m.store.Save(ctx, existing); err != nil {
			return nil, false, false, err
		}
		return existing, tookOver, true, nil
	}

	loaded, loadErr := m.store.Load(ctx, clientID)
	if loadErr != nil && loadErr != ErrSessionNotFound {
		return nil, false, false, loadErr
	}

	if loaded != nil && !cleanSession {
		loaded.CleanSession = false
		loaded.KeepaliveSecs = keepaliveSecs
		loaded.SetActive()
		m.active[clientID] = loaded
		if err := m.store.Save(ctx, loaded); err != nil {
			return nil, false, false, err
		}
		return loaded, tookOver, true, nil
	}

	if loaded != nil {
		_ = m.store.Delete(ctx, clientID)
	}

	sess = New(clientID, cleanSession, keepaliveSecs)
	sess.SetActive()
	m.active[clientID] = sess

	if err := m.store.Save(ctx, sess); err != nil {
		delete(m.active, clientID)
		return nil, false, false, err
	}

	return sess, tookOver, false, nil
}

// Close detaches clientID's session. A clean_session session is erased;
// otherwise subscriptions, outbound_inflight, and queued_while_offline are
// preserved for a future reconnect. If graceful is false and the session
// carries a will, the
// will is published through willPublisher before detachment completes.
func (m *Manager) Close(ctx context.Context, clientID string, graceful bool) error {
	m.mu.Lock()
	sess, ok := m.active[clientID]
	if ok {
		delete(m.active, clientID)
	}
	m.mu.Unlock()

	if !ok {
		var err error
		sess, err = m.store.Load(ctx, clientID)
		if err != nil {
			if err == ErrSessionNotFound {
				return nil
			}
			return err
		}
	}

	sess.SetDisconnected()

	if !graceful {
		if will := sess.TakeWill(); will != nil && m.willPublisher != nil {
			_ = m.willPublisher.PublishWill(ctx, will, clientID)
		}
	} else {
		sess.TakeWill()
	}

	if sess.CleanSession {
		return m.store.Delete(ctx, clientID)
	}
	return m.store.Save(ctx, sess)
}

// EnqueueOffline appends msg to clientID's queued_while_offline list so it
// survives until the client reconnects and DrainOffline runs. The session
// is looked up in active first (a still-attached but momentarily
// undeliverable session); otherwise it is loaded from the store, appended
// to, and saved back, since a disconnected non-clean session lives only in
// the store between CONNECTs. A clean session or an unknown clientID
// drops msg silently, matching a publish to a client that no longer
// persists state.
func (m *Manager) EnqueueOffline(ctx context.Context, clientID string, msg *OutboundMessage) error {
	m.mu.Lock()
	if sess, ok := m.active[clientID]; ok {
		m.mu.Unlock()
		sess.EnqueueOffline(msg)
		return nil
	}
	m.mu.Unlock()

	sess, err := m.store.Load(ctx, clientID)
	if err != nil {
		if err == ErrSessionNotFound {
			return nil
		}
		return err
	}
	if sess.CleanSession {
		return nil
	}

	sess.EnqueueOffline(msg)
	return m.store.Save(ctx, sess)
}

// AllocatePktID delegates to sess.AllocatePktID, matching the session
// store's documented allocate_pkt_id operation.
func (m *Manager) AllocatePktID(sess *Session) (uint16, error) {
	return sess.AllocatePktID()
}

// Get returns the attached session for clientID, if any is currently open.
func (m *Manager) Get(clientID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.active[clientID]
	return sess, ok
}

// GenerateClientID produces a broker-assigned client id for a CONNECT with
// an empty client identifier.
func (m *Manager) GenerateClientID(ctx context.Context) (string, error) {
	for i := 0; i < 10; i++ {
		b := make([]byte, 16)
		if _, err := rand.Read(b); err != nil {
			return "", err
		}
		clientID := m.assignedPrefix + hex.EncodeToString(b)

		exists, err := m.store.Exists(ctx, clientID)
		if err != nil {
			return "", err
		}
		if !exists {
			return clientID, nil
		}
	}
	return "", ErrSessionNotFound
}

// ActiveCount returns the number of sessions currently attached to a live
// connection.
func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}

// Shutdown stops the manager, closing the underlying store.
func (m *Manager) Shutdown() error {
	return m.store.Close()
}
