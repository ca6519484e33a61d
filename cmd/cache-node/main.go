// Command cache-node runs one node of the distributed MESI cache
// cluster: a bounded LRU key/value store whose reads and writes
// synchronize with peers over a broadcast snoop bus.
package main

import (
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/reno99986/sync-and-distributed/internal/cache"
	"github.com/reno99986/sync-and-distributed/internal/config"
	"github.com/reno99986/sync-and-distributed/internal/logging"
	"github.com/reno99986/sync-and-distributed/internal/server"
	"github.com/reno99986/sync-and-distributed/internal/transport"
)

func main() {
	cfg := config.LoadCache()
	if cfg.NodeID == "" {
		log.Fatal("NODE_ID is required")
	}

	logger := logging.New(cfg.NodeID, "cache")
	defer logger.Sync()

	var peers []string
	for _, p := range cfg.Peers {
		if p != cfg.NodeID {
			peers = append(peers, p)
		}
	}

	seed := make(map[string]string, len(cfg.SeedKeys))
	for _, k := range cfg.SeedKeys {
		seed[k] = k // deterministic placeholder value, identical across nodes
	}

	tc := transport.New(2 * time.Second)
	engine := cache.New(cfg.NodeID, peers, tc, logger, cfg.Capacity, seed)
	metrics := server.NewMetrics()
	cacheServer := server.NewCacheServer(engine, metrics)

	addr := fmt.Sprintf(":%d", cfg.Port)
	logger.Infow("cache node listening", "addr", addr, "peers", peers, "capacity", cfg.Capacity)
	if err := http.ListenAndServe(addr, cacheServer.Router()); err != nil {
		logger.Fatalw("http server exited", "error", err)
	}
}
