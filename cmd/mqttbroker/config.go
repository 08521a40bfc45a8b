package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/axmq/broker/broker"
)

// appConfig is the on-disk shape of the -config file: broker wire/runtime
// settings plus the ambient concerns (logging, store backend, static user
// list) that broker.Config itself has no opinion about.
type appConfig struct {
	Broker broker.Config `json:"broker"`
	Log    logConfig     `json:"log"`
	Store  storeConfig   `json:"store"`
	Users  []userConfig  `json:"users"`
}

type logConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

type storeConfig struct {
	// Backend selects the session store: "memory" (default), "pebble", or
	// "redis".
	Backend string `json:"backend"`

	PebblePath string `json:"pebble_path"`

	RedisAddr     string        `json:"redis_addr"`
	RedisPassword string        `json:"redis_password"`
	RedisDB       int           `json:"redis_db"`
	RedisTTL      time.Duration `json:"redis_ttl"`
}

type userConfig struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func loadConfig(path string) (appConfig, error) {
	cfg := appConfig{Broker: broker.DefaultConfig()}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := json.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = "memory"
	}
	return cfg, nil
}
