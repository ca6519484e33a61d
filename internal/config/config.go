// Package config reads per-process configuration from the environment.
//
// This mirrors the teacher's flag/env-parsing register (cmd/server/main.go
// used flag.String + strconv.Atoi); spec.md §6 scopes configuration
// reading as an external collaborator, so this stays on the standard
// library rather than pulling in a declarative config package.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Common holds the fields every node kind reads: its own identity, the
// port it listens on, and the full peer set (including itself) that the
// cluster membership is fixed to for the run.
type Common struct {
	NodeID string
	Port   int
	Peers  []string // all peer addresses, self included
}

// LockConfig is the lock-manager node's configuration. It carries no
// fields beyond Common: election timing and heartbeat interval are
// protocol constants (spec.md §4.3), not environment-tunable policy.
type LockConfig struct {
	Common
}

// QueueConfig is the queue node's configuration.
type QueueConfig struct {
	Common
	RedisHost         string
	RedisPort         int
	VirtualReplicas   int // R in spec.md §4.2, default 10
	ReconcileInterval time.Duration
	AckTimeout        time.Duration
}

// CacheConfig is the cache node's configuration.
type CacheConfig struct {
	Common
	Capacity int      // LRU bound, spec.md §3 default 5
	SeedKeys []string // keys pre-populated in mainMemory, identical across nodes
}

func loadCommon() Common {
	port, _ := strconv.Atoi(os.Getenv("PORT"))
	var peers []string
	if raw := os.Getenv("PEERS"); raw != "" {
		peers = strings.Split(raw, ",")
	}
	return Common{
		NodeID: os.Getenv("NODE_ID"),
		Port:   port,
		Peers:  peers,
	}
}

// LoadLock reads a LockConfig from the environment.
func LoadLock() LockConfig {
	return LockConfig{Common: loadCommon()}
}

// LoadQueue reads a QueueConfig from the environment, applying the
// spec.md §4.5 policy defaults (30s scan, 60s ack timeout) when the
// corresponding overrides are absent.
func LoadQueue() QueueConfig {
	cfg := QueueConfig{
		Common:            loadCommon(),
		RedisHost:         envOr("REDIS_HOST", "localhost"),
		RedisPort:         envIntOr("REDIS_PORT", 6379),
		VirtualReplicas:   envIntOr("HASH_RING_REPLICAS", 10),
		ReconcileInterval: envDurationOr("RECONCILE_INTERVAL", 30*time.Second),
		AckTimeout:        envDurationOr("ACK_TIMEOUT", 60*time.Second),
	}
	return cfg
}

// LoadCache reads a CacheConfig from the environment.
func LoadCache() CacheConfig {
	seed := []string{"A", "B", "C", "D", "E"}
	if raw := os.Getenv("CACHE_SEED_KEYS"); raw != "" {
		seed = strings.Split(raw, ",")
	}
	return CacheConfig{
		Common:   loadCommon(),
		Capacity: envIntOr("CACHE_CAPACITY", 5),
		SeedKeys: seed,
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
