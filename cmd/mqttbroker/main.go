package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/axmq/broker/broker"
	"github.com/axmq/broker/internal/logging"
	"github.com/axmq/broker/session"
	"github.com/cockroachdb/pebble"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := flag.String("config", "./config/broker.json", "Path to config file")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		// No logger exists yet at this point, so fall back to the default
		// handler rather than dropping the error silently.
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logging.New(logging.Config{
		Level:  logging.ParseLevel(cfg.Log.Level),
		Format: logging.Format(cfg.Log.Format),
	})

	store, err := newStore(cfg.Store)
	if err != nil {
		logger.Error("failed to open session store", "backend", cfg.Store.Backend, "error", err)
		os.Exit(1)
	}

	auth := newAuthenticator(cfg)

	b := broker.New(broker.Deps{
		Config: cfg.Broker,
		Logger: logger,
		Auth:   auth,
		Store:  store,
	})

	group, ctx := errgroup.WithContext(signalContext())
	group.Go(func() error {
		return b.ListenAndServe(ctx)
	})

	if err := group.Wait(); err != nil && ctx.Err() == nil {
		logger.Error("broker exited with error", "error", err)
		os.Exit(1)
	}
}

// signalContext returns a context canceled on SIGINT/SIGTERM, so
// ListenAndServe's own shutdown path runs instead of the process dying
// mid-write.
func signalContext() context.Context {
	ctx, _ := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	return ctx
}

func newAuthenticator(cfg appConfig) broker.Authenticator {
	if len(cfg.Users) == 0 {
		return broker.NewAnonymousAuthHook(cfg.Broker.AllowAnonymous)
	}

	basic := broker.NewBasicAuthHook()
	users := make(map[string]string, len(cfg.Users))
	for _, u := range cfg.Users {
		users[u.Username] = u.Password
	}
	basic.LoadUsers(users)

	if cfg.Broker.AllowAnonymous {
		return broker.NewChainAuthenticator(broker.NewAnonymousAuthHook(true), basic)
	}
	return basic
}

func newStore(cfg storeConfig) (session.Store, error) {
	switch cfg.Backend {
	case "pebble":
		return session.NewPebbleStore(session.PebbleStoreConfig{
			Path: cfg.PebblePath,
			Opts: &pebble.Options{},
		})
	case "redis":
		return session.NewRedisStore(session.RedisStoreConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			TTL:      cfg.RedisTTL,
			Options:  &redis.Options{},
		})
	default:
		return session.NewMemoryStore(), nil
	}
}
