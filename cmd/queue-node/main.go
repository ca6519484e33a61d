// Command queue-node runs one node of the distributed message queue
// cluster: consistent-hash ownership routing over a Redis-backed list
// store, with at-least-once delivery via ack-timeout redelivery.
package main

import (
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/reno99986/sync-and-distributed/internal/config"
	"github.com/reno99986/sync-and-distributed/internal/logging"
	"github.com/reno99986/sync-and-distributed/internal/queue"
	"github.com/reno99986/sync-and-distributed/internal/queuestore"
	"github.com/reno99986/sync-and-distributed/internal/server"
	"github.com/reno99986/sync-and-distributed/internal/transport"
)

func main() {
	cfg := config.LoadQueue()
	if cfg.NodeID == "" {
		log.Fatal("NODE_ID is required")
	}

	logger := logging.New(cfg.NodeID, "queue")
	defer logger.Sync()

	redisAddr := fmt.Sprintf("%s:%d", cfg.RedisHost, cfg.RedisPort)
	store := queuestore.New(redisAddr)

	tc := transport.New(2 * time.Second)
	router := queue.New(cfg.NodeID, cfg.Peers, cfg.VirtualReplicas, store, tc, cfg.AckTimeout, cfg.ReconcileInterval, logger)
	router.StartReconciliation()
	defer router.Stop()

	metrics := server.NewMetrics()
	queueServer := server.NewQueueServer(router, metrics)

	addr := fmt.Sprintf(":%d", cfg.Port)
	logger.Infow("queue node listening", "addr", addr, "redis", redisAddr, "peers", cfg.Peers)
	if err := http.ListenAndServe(addr, queueServer.Router()); err != nil {
		logger.Fatalw("http server exited", "error", err)
	}
}
