package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/reno99986/sync-and-distributed/internal/lock"
	"github.com/reno99986/sync-and-distributed/internal/raft"
)

// LockServer exposes a lock-manager node's HTTP surface (spec.md §6).
//
// Grounded on the teacher's internal/server/http.go: a bare ServeMux
// wired up in Start, CORS headers on every handler, and the
// metrics-wrapped request path — here routed through gorilla/mux
// instead of the teacher's raw mux since the cache surface downstream
// needs path parameters.
type LockServer struct {
	nodeID  string
	elector *raft.Elector
	manager *lock.Manager
	metrics *Metrics
}

// NewLockServer builds a LockServer.
func NewLockServer(nodeID string, elector *raft.Elector, manager *lock.Manager, metrics *Metrics) *LockServer {
	return &LockServer{nodeID: nodeID, elector: elector, manager: manager, metrics: metrics}
}

// acquireRequest is the body of POST /acquire.
type acquireRequest struct {
	ResourceID string `json:"resource_id"`
	ClientID   string `json:"client_id"`
	LockType   string `json:"lock_type"`
}

type lockResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type releaseRequest struct {
	ResourceID string `json:"resource_id"`
	ClientID   string `json:"client_id"`
}

type locksSnapshot struct {
	NodeID       string `json:"node_id"`
	RaftState    string `json:"raft_state"`
	Locks        map[string]lock.LockView       `json:"locks"`
	Dependencies map[string]lock.DependencyView `json:"dependencies"`
}

// Router builds the gorilla/mux router for this node's routes.
func (s *LockServer) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(corsMiddleware)
	r.HandleFunc("/acquire", s.handleAcquire).Methods(http.MethodPost, http.MethodOptions)
	r.HandleFunc("/release", s.handleRelease).Methods(http.MethodPost, http.MethodOptions)
	r.HandleFunc("/locks", s.handleLocks).Methods(http.MethodGet)
	r.HandleFunc("/request-vote", s.handleRequestVote).Methods(http.MethodPost)
	r.HandleFunc("/append-entries", s.handleAppendEntries).Methods(http.MethodPost)
	r.HandleFunc("/metrics", s.handleMetrics).Methods(http.MethodGet)
	return r
}

func (s *LockServer) handleAcquire(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req acquireRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, lockResponse{Status: "error", Message: "malformed request body"})
		return
	}

	mode := lock.Mode(req.LockType)
	if mode != lock.Shared && mode != lock.Exclusive {
		writeJSON(w, http.StatusBadRequest, lockResponse{Status: "error", Message: "lock_type must be shared or exclusive"})
		return
	}

	status, err := s.manager.Acquire(req.ResourceID, req.ClientID, mode)
	if err != nil {
		s.metrics.RecordSuccess(time.Since(start))
		writeJSON(w, http.StatusOK, lockResponse{Status: "not-leader", Message: err.Error()})
		return
	}
	s.metrics.RecordSuccess(time.Since(start))
	writeJSON(w, http.StatusOK, lockResponse{Status: string(status)})
}

func (s *LockServer) handleRelease(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req releaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, lockResponse{Status: "error", Message: "malformed request body"})
		return
	}

	status, err := s.manager.Release(req.ResourceID, req.ClientID)
	if err != nil {
		s.metrics.RecordSuccess(time.Since(start))
		writeJSON(w, http.StatusOK, lockResponse{Status: domainRejectStatus(err), Message: err.Error()})
		return
	}
	s.metrics.RecordSuccess(time.Since(start))
	writeJSON(w, http.StatusOK, lockResponse{Status: string(status)})
}

func domainRejectStatus(err error) string {
	switch err {
	case lock.ErrNotLeader:
		return "not-leader"
	case lock.ErrUnknownKey:
		return "error"
	case lock.ErrNotHolder:
		return "client-does-not-hold"
	default:
		return "error"
	}
}

func (s *LockServer) handleLocks(w http.ResponseWriter, r *http.Request) {
	snap := s.manager.Snapshot()
	writeJSON(w, http.StatusOK, locksSnapshot{
		NodeID:       s.nodeID,
		RaftState:    s.elector.State().String(),
		Locks:        snap.Locks,
		Dependencies: snap.Dependencies,
	})
}

func (s *LockServer) handleRequestVote(w http.ResponseWriter, r *http.Request) {
	var args raft.RequestVoteArgs
	if err := json.NewDecoder(r.Body).Decode(&args); err != nil {
		writeJSON(w, http.StatusBadRequest, nil)
		return
	}
	writeJSON(w, http.StatusOK, s.elector.HandleRequestVote(args.Term, args.CandidateID))
}

func (s *LockServer) handleAppendEntries(w http.ResponseWriter, r *http.Request) {
	var args raft.AppendEntriesArgs
	if err := json.NewDecoder(r.Body).Decode(&args); err != nil {
		writeJSON(w, http.StatusBadRequest, nil)
		return
	}
	writeJSON(w, http.StatusOK, s.elector.HandleAppendEntries(args.Term, args.LeaderID))
}

func (s *LockServer) handleMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.metrics.GetSnapshot())
}
