package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/reno99986/sync-and-distributed/internal/queue"
)

// QueueServer exposes a queue node's HTTP surface (spec.md §6).
type QueueServer struct {
	router  *queue.Router
	metrics *Metrics
}

// NewQueueServer builds a QueueServer.
func NewQueueServer(router *queue.Router, metrics *Metrics) *QueueServer {
	return &QueueServer{router: router, metrics: metrics}
}

// Router builds the gorilla/mux router for this node's routes.
func (s *QueueServer) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(corsMiddleware)
	r.HandleFunc("/produce", s.handleProduce).Methods(http.MethodPost, http.MethodOptions)
	r.HandleFunc("/consume", s.handleConsume).Methods(http.MethodPost, http.MethodOptions)
	r.HandleFunc("/ack", s.handleAck).Methods(http.MethodPost, http.MethodOptions)
	r.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/metrics", s.handleMetrics).Methods(http.MethodGet)
	return r
}

func (s *QueueServer) handleProduce(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req queue.ProduceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, nil)
		return
	}

	resp, err := s.router.Produce(r.Context(), req.Queue, req.Message)
	if err != nil {
		s.metrics.RecordFailure()
		writeJSON(w, http.StatusInternalServerError, map[string]string{"status": "error", "message": err.Error()})
		return
	}
	s.metrics.RecordSuccess(time.Since(start))
	writeJSON(w, http.StatusOK, resp)
}

func (s *QueueServer) handleConsume(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req queue.ConsumeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, nil)
		return
	}

	resp, err := s.router.Consume(r.Context(), req.Queue, req.ConsumerID)
	if err != nil {
		s.metrics.RecordFailure()
		writeJSON(w, http.StatusInternalServerError, map[string]string{"status": "error", "message": err.Error()})
		return
	}
	s.metrics.RecordSuccess(time.Since(start))
	writeJSON(w, http.StatusOK, resp)
}

func (s *QueueServer) handleAck(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req queue.AckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, nil)
		return
	}

	resp, err := s.router.Ack(req.MessageID)
	if err != nil {
		s.metrics.RecordSuccess(time.Since(start))
		writeJSON(w, http.StatusOK, queue.AckResponse{Status: "message-not-found", Message: err.Error()})
		return
	}
	s.metrics.RecordSuccess(time.Since(start))
	writeJSON(w, http.StatusOK, resp)
}

func (s *QueueServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap, err := s.router.Status(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, nil)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *QueueServer) handleMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.metrics.GetSnapshot())
}
