package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/reno99986/sync-and-distributed/internal/cache"
)

// CacheServer exposes a cache node's HTTP surface (spec.md §6),
// routed with gorilla/mux for its {key} path parameters.
type CacheServer struct {
	engine  *cache.Engine
	metrics *Metrics
}

// NewCacheServer builds a CacheServer.
func NewCacheServer(engine *cache.Engine, metrics *Metrics) *CacheServer {
	return &CacheServer{engine: engine, metrics: metrics}
}

type readResponse struct {
	Key            string      `json:"key"`
	Value          string      `json:"value"`
	State          cache.State `json:"state"`
	ResponseTimeMs int64       `json:"response_time_ms"`
}

type writeRequest struct {
	Value string `json:"value"`
}

type writeResponse struct {
	Key            string      `json:"key"`
	Value          string      `json:"value"`
	State          cache.State `json:"state"`
	ResponseTimeMs int64       `json:"response_time_ms"`
}

// Router builds the gorilla/mux router for this node's routes.
func (s *CacheServer) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(corsMiddleware)
	r.HandleFunc("/read/{key}", s.handleRead).Methods(http.MethodGet)
	r.HandleFunc("/write/{key}", s.handleWrite).Methods(http.MethodPost, http.MethodOptions)
	r.HandleFunc("/bus/read_miss/{key}", s.handleBusReadMiss).Methods(http.MethodPost)
	r.HandleFunc("/bus/invalidate/{key}", s.handleBusInvalidate).Methods(http.MethodPost)
	r.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/metrics", s.handleMetrics).Methods(http.MethodGet)
	return r
}

func (s *CacheServer) handleRead(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]

	var value string
	var state cache.State
	elapsed := cache.Timed(func() {
		value, state, _ = s.engine.Read(r.Context(), key)
	})
	s.metrics.RecordSuccess(time.Duration(elapsed) * time.Millisecond)
	writeJSON(w, http.StatusOK, readResponse{Key: key, Value: value, State: state, ResponseTimeMs: elapsed})
}

func (s *CacheServer) handleWrite(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	var req writeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, nil)
		return
	}

	var state cache.State
	elapsed := cache.Timed(func() {
		state, _ = s.engine.Write(r.Context(), key, req.Value)
	})
	s.metrics.RecordSuccess(time.Duration(elapsed) * time.Millisecond)
	writeJSON(w, http.StatusOK, writeResponse{Key: key, Value: req.Value, State: state, ResponseTimeMs: elapsed})
}

func (s *CacheServer) handleBusReadMiss(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	writeJSON(w, http.StatusOK, s.engine.HandleBusReadMiss(key))
}

func (s *CacheServer) handleBusInvalidate(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	writeJSON(w, http.StatusOK, s.engine.HandleBusInvalidate(key))
}

func (s *CacheServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Snapshot())
}

func (s *CacheServer) handleMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.metrics.GetSnapshot())
}
