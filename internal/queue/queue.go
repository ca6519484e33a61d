// Package queue implements the consistent-hash queue router and
// at-least-once delivery tracker of spec.md §4.5. A node services
// produce/consume locally when its ring lookup names itself as owner,
// and single-hop forwards to the owning peer otherwise.
//
// Grounded on original_source/src/nodes/queue_node.py's QueueNode: the
// ConsistentHashRing-based ownership check, the pendingAcks dict keyed
// by a fresh UUID per delivery, and the cleanup_unacked_messages
// background task (30s scan / 60s timeout constants, now configurable
// per spec.md §4.5's closing note).
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/reno99986/sync-and-distributed/internal/hashring"
	"github.com/reno99986/sync-and-distributed/internal/queuestore"
	"github.com/reno99986/sync-and-distributed/internal/transport"
)

// ErrUnreachableOwner is returned when a produce/consume must be
// forwarded but the owning peer cannot be reached (spec.md §7: "no retry
// is performed by the router").
var ErrUnreachableOwner = errors.New("queue: owning peer unreachable")

// ErrUnknownMessage is returned by Ack for a message ID with no pending
// entry.
var ErrUnknownMessage = errors.New("queue: unknown message id")

const (
	StatusSuccess = "success"
	StatusEmpty   = "empty"
	StatusAcked   = "acked"
)

// ProduceRequest is the body of POST /produce.
type ProduceRequest struct {
	Queue   string `json:"queue"`
	Message string `json:"message"`
}

// ProduceResponse is the body returned from POST /produce.
type ProduceResponse struct {
	Status    string `json:"status"`
	HandledBy string `json:"handled_by"`
}

// ConsumeRequest is the body of POST /consume.
type ConsumeRequest struct {
	Queue      string `json:"queue"`
	ConsumerID string `json:"consumer_id"`
}

// ConsumeResponse is the body returned from POST /consume.
type ConsumeResponse struct {
	Status    string  `json:"status"`
	Message   *string `json:"message"`
	MessageID string  `json:"message_id,omitempty"`
	HandledBy string  `json:"handled_by"`
}

// AckRequest is the body of POST /ack.
type AckRequest struct {
	MessageID string `json:"message_id"`
}

// AckResponse is the body returned from POST /ack.
type AckResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// StatusSnapshot is the body returned from GET /status.
type StatusSnapshot struct {
	NodeID        string           `json:"node_id"`
	Queues        map[string]int64 `json:"queues"`
	PendingAcks   int              `json:"pending_acks"`
	HashRingNodes []string         `json:"hash_ring_nodes"`
	Counters      Counters         `json:"counters"`
}

// Counters is the node-local operational tally supplementing spec.md
// §6's GET /status, mirroring the lifecycle log lines
// original_source/src/nodes/queue_node.py emits on each operation.
type Counters struct {
	Produced    int64 `json:"produced"`
	Consumed    int64 `json:"consumed"`
	Acked       int64 `json:"acked"`
	Redelivered int64 `json:"redelivered"`
}

type pendingEntry struct {
	queue       string
	payload     string
	consumer    string
	deliveredAt time.Time
}

// Router is one node's queue: ring-based ownership routing plus the
// in-flight delivery tracker and its reconciliation loop.
type Router struct {
	selfID    string
	ring      *hashring.Ring
	store     queuestore.Store
	transport *transport.Client
	logger    *zap.SugaredLogger

	ackTimeout        time.Duration
	reconcileInterval time.Duration

	mu          sync.Mutex
	pendingAcks map[string]*pendingEntry

	produced    int64
	consumed    int64
	acked       int64
	redelivered int64

	stopCh chan struct{}
}

// New builds a Router. peers must include selfID (spec.md §6: PEERS
// "includes self").
func New(selfID string, peers []string, replicas int, store queuestore.Store, tc *transport.Client, ackTimeout, reconcileInterval time.Duration, logger *zap.SugaredLogger) *Router {
	ring := hashring.New(replicas)
	for _, p := range peers {
		ring.Add(p)
	}
	return &Router{
		selfID:            selfID,
		ring:              ring,
		store:             store,
		transport:         tc,
		logger:            logger,
		ackTimeout:        ackTimeout,
		reconcileInterval: reconcileInterval,
		pendingAcks:       make(map[string]*pendingEntry),
		stopCh:            make(chan struct{}),
	}
}

// StartReconciliation launches the periodic unacked-message scan.
// Calling Stop shuts it down.
func (r *Router) StartReconciliation() {
	go func() {
		ticker := time.NewTicker(r.reconcileInterval)
		defer ticker.Stop()
		for {
			select {
			case <-r.stopCh:
				return
			case <-ticker.C:
				r.reconcileOnce()
			}
		}
	}()
}

// Stop halts the reconciliation loop.
func (r *Router) Stop() {
	close(r.stopCh)
}

func (r *Router) reconcileOnce() {
	now := time.Now()

	r.mu.Lock()
	var expired []struct {
		id    string
		entry *pendingEntry
	}
	for id, e := range r.pendingAcks {
		if now.Sub(e.deliveredAt) > r.ackTimeout {
			expired = append(expired, struct {
				id    string
				entry *pendingEntry
			}{id, e})
			delete(r.pendingAcks, id)
		}
	}
	r.mu.Unlock()

	for _, x := range expired {
		if err := r.store.LPushFront(context.Background(), x.entry.queue, x.entry.payload); err != nil {
			r.logger.Errorw("redelivery requeue failed", "message_id", x.id, "queue", x.entry.queue, "error", err)
			continue
		}
		atomic.AddInt64(&r.redelivered, 1)
		r.logger.Infow("requeued unacked message", "message_id", x.id, "queue", x.entry.queue)
	}
}

// Produce implements POST /produce: local append if this node owns
// queue, otherwise a single forward to the owner.
func (r *Router) Produce(ctx context.Context, queue, payload string) (ProduceResponse, error) {
	owner, ok := r.ring.Lookup(queue)
	if !ok {
		return ProduceResponse{}, errors.New("queue: empty hash ring")
	}

	if owner == r.selfID {
		if err := r.store.RPush(ctx, queue, payload); err != nil {
			return ProduceResponse{}, err
		}
		atomic.AddInt64(&r.produced, 1)
		return ProduceResponse{Status: StatusSuccess, HandledBy: r.selfID}, nil
	}

	reply := r.transport.Forward(ctx, owner, "/produce", ProduceRequest{Queue: queue, Message: payload})
	if !reply.Ok {
		return ProduceResponse{}, ErrUnreachableOwner
	}
	var resp ProduceResponse
	if err := json.Unmarshal(reply.Body, &resp); err != nil {
		return ProduceResponse{}, err
	}
	return resp, nil
}

// Consume implements POST /consume: local pop-and-track if this node
// owns queue, otherwise a single forward to the owner.
func (r *Router) Consume(ctx context.Context, queue, consumerID string) (ConsumeResponse, error) {
	owner, ok := r.ring.Lookup(queue)
	if !ok {
		return ConsumeResponse{}, errors.New("queue: empty hash ring")
	}

	if owner != r.selfID {
		reply := r.transport.Forward(ctx, owner, "/consume", ConsumeRequest{Queue: queue, ConsumerID: consumerID})
		if !reply.Ok {
			return ConsumeResponse{}, ErrUnreachableOwner
		}
		var resp ConsumeResponse
		if err := json.Unmarshal(reply.Body, &resp); err != nil {
			return ConsumeResponse{}, err
		}
		return resp, nil
	}

	payload, found, err := r.store.LPopFront(ctx, queue)
	if err != nil {
		return ConsumeResponse{}, err
	}
	if !found {
		return ConsumeResponse{Status: StatusEmpty, Message: nil, HandledBy: r.selfID}, nil
	}

	messageID := uuid.NewString()

	r.mu.Lock()
	r.pendingAcks[messageID] = &pendingEntry{
		queue:       queue,
		payload:     payload,
		consumer:    consumerID,
		deliveredAt: time.Now(),
	}
	r.mu.Unlock()
	atomic.AddInt64(&r.consumed, 1)

	return ConsumeResponse{
		Status:    StatusSuccess,
		Message:   &payload,
		MessageID: messageID,
		HandledBy: r.selfID,
	}, nil
}

// Ack implements POST /ack: always node-local, since a consumer only
// acks the node that actually handed it the message.
func (r *Router) Ack(messageID string) (AckResponse, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.pendingAcks[messageID]; !ok {
		return AckResponse{}, ErrUnknownMessage
	}
	delete(r.pendingAcks, messageID)
	atomic.AddInt64(&r.acked, 1)
	return AckResponse{Status: StatusAcked}, nil
}

// Status implements GET /status.
func (r *Router) Status(ctx context.Context) (StatusSnapshot, error) {
	names, err := r.store.Keys(ctx)
	if err != nil {
		return StatusSnapshot{}, err
	}
	queues := make(map[string]int64, len(names))
	for _, name := range names {
		n, err := r.store.Len(ctx, name)
		if err != nil {
			return StatusSnapshot{}, err
		}
		queues[name] = n
	}

	r.mu.Lock()
	pending := len(r.pendingAcks)
	r.mu.Unlock()

	return StatusSnapshot{
		NodeID:        r.selfID,
		Queues:        queues,
		PendingAcks:   pending,
		HashRingNodes: r.ring.Nodes(),
		Counters: Counters{
			Produced:    atomic.LoadInt64(&r.produced),
			Consumed:    atomic.LoadInt64(&r.consumed),
			Acked:       atomic.LoadInt64(&r.acked),
			Redelivered: atomic.LoadInt64(&r.redelivered),
		},
	}, nil
}
