// Command lock-node runs one node of the distributed lock manager
// cluster: a Raft elector for leadership plus the leader-local lock
// state machine, served over HTTP.
//
// Grounded on the teacher's cmd/server/main.go bottom-up wiring order
// (storage, then consensus, then the HTTP server on top).
package main

import (
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/reno99986/sync-and-distributed/internal/config"
	"github.com/reno99986/sync-and-distributed/internal/logging"
	"github.com/reno99986/sync-and-distributed/internal/lock"
	"github.com/reno99986/sync-and-distributed/internal/raft"
	"github.com/reno99986/sync-and-distributed/internal/server"
	"github.com/reno99986/sync-and-distributed/internal/transport"
)

func main() {
	cfg := config.LoadLock()
	if cfg.NodeID == "" {
		log.Fatal("NODE_ID is required")
	}

	logger := logging.New(cfg.NodeID, "lock")
	defer logger.Sync()

	var peers []string
	for _, p := range cfg.Peers {
		if p != cfg.NodeID {
			peers = append(peers, p)
		}
	}

	tc := transport.New(25 * time.Millisecond)
	elector := raft.New(cfg.NodeID, peers, tc, logger)
	manager := lock.New(elector)
	metrics := server.NewMetrics()

	elector.Start()
	logger.Infow("elector started", "peers", peers)

	lockServer := server.NewLockServer(cfg.NodeID, elector, manager, metrics)
	addr := fmt.Sprintf(":%d", cfg.Port)
	logger.Infow("lock node listening", "addr", addr)
	if err := http.ListenAndServe(addr, lockServer.Router()); err != nil {
		logger.Fatalw("http server exited", "error", err)
	}
}
