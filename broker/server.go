package broker

import (
	"context"
	"fmt"
	"log/slog"
	"net"

	"github.com/axmq/broker/network"
	"github.com/axmq/broker/session"
	"github.com/axmq/broker/topic"
)

// Broker owns every piece of shared state the single event-loop goroutine
// touches: the listener, the readiness multiplexer, the routing table,
// the session store, and the live connection table. None of it is
// guarded by a mutex, by design — see the package doc comment in
// eventloop.go.
type Broker struct {
	cfg    Config
	log    *slog.Logger
	auth   Authenticator
	router *topic.Router

	retained *topic.RetainedStore
	sessions *session.Manager
	stats    *Stats

	listener net.Listener
	poller   network.Poller

	newConns chan net.Conn

	connsByFd       map[int]*Conn
	connsByClientID map[string]*Conn

	periodic []*periodicTask

	closed bool
}

// Deps are the constructed components New assembles a Broker from. Tests
// and cmd/mqttbroker both build these explicitly so the wiring between a
// session store backend, an authenticator, and the broker stays visible
// at the call site rather than hidden behind a factory.
type Deps struct {
	Config   Config
	Logger   *slog.Logger
	Auth     Authenticator
	Store    session.Store
}

// New builds a Broker. It does not yet bind the listener; call ListenAndServe
// or Serve for that.
func New(deps Deps) *Broker {
	cfg := deps.Config.fillDefaults()
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	auth := deps.Auth
	if auth == nil {
		auth = NewAnonymousAuthHook(cfg.AllowAnonymous)
	}

	b := &Broker{
		cfg:             cfg,
		log:             logger,
		auth:            auth,
		router:          topic.NewRouter(),
		retained:        topic.NewRetainedStore(),
		stats:           NewStats(),
		newConns:        make(chan net.Conn, 128),
		connsByFd:       make(map[int]*Conn),
		connsByClientID: make(map[string]*Conn),
	}
	b.sessions = session.NewManager(session.ManagerConfig{
		Store:            deps.Store,
		WillPublisher:    b,
		TakeoverNotifier: b,
	})
	return b
}

// ListenAndServe binds the configured address and runs the event loop
// until ctx is canceled. A failed bind is returned as an error; failed
// Accept calls on the listener are retried, not returned.
func (b *Broker) ListenAndServe(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", b.cfg.ListenHost, b.cfg.ListenPort)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return b.Serve(ctx, ln)
}

// Serve runs the event loop over an already-bound listener.
func (b *Broker) Serve(ctx context.Context, ln net.Listener) error {
	b.listener = ln

	poller, err := network.NewPoller(&network.PollerConfig{MaxEvents: 1024, Timeout: b.cfg.PollTimeout})
	if err != nil {
		ln.Close()
		return err
	}
	b.poller = poller

	b.addPeriodic(b.cfg.StatsPublishInterval, b.publishStats)

	go b.acceptLoop()

	b.log.Info("broker listening", "addr", ln.Addr().String())
	return b.runEventLoop(ctx)
}

// acceptLoop accepts connections on its own goroutine and hands them off
// to the single-threaded event loop over a channel; it performs no
// protocol work itself, only net.Listener.Accept's inherent blocking call.
func (b *Broker) acceptLoop() {
	for {
		conn, err := b.listener.Accept()
		if err != nil {
			if b.closed {
				return
			}
			continue
		}
		if tc, ok := conn.(*net.TCPConn); ok {
			_ = tc.SetNoDelay(true)
		}
		b.newConns <- conn
	}
}

// Shutdown stops accepting new connections, closes the listener and
// poller, and shuts down the session manager. It does not close
// already-accepted connections or send them anything.
func (b *Broker) Shutdown() error {
	b.closed = true
	if b.listener != nil {
		b.listener.Close()
	}
	if b.poller != nil {
		b.poller.Close()
	}
	return b.sessions.Shutdown()
}

// Stats exposes the broker's live counters, e.g. for an admin endpoint.
func (b *Broker) Stats() *Stats { return b.stats }
