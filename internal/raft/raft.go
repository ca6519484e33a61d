// Package raft implements the election-only Raft elector the lock
// manager uses to pick a single mutating leader (spec.md §4.3). Log
// replication is out of scope per spec.md's Non-goals; only
// (state, term, votedFor) plus the election timer and heartbeat loop are
// modeled.
//
// Grounded on the teacher's internal/raft/raft.go state machine: the
// Follower/Candidate/Leader states are kept, the per-state run loops
// become one electionLoop plus a leader-only heartbeatLoop, RPCs move
// onto internal/transport's HTTP+JSON broadcaster, and
// the log-replication fields (Log, nextIndex, matchIndex, Replicate...)
// are dropped — see DESIGN.md for why they have no home in this spec.
package raft

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/reno99986/sync-and-distributed/internal/transport"
)

// State is one of the three Raft roles a node can hold.
type State int

const (
	Follower State = iota
	Candidate
	Leader
)

func (s State) String() string {
	switch s {
	case Follower:
		return "follower"
	case Candidate:
		return "candidate"
	case Leader:
		return "leader"
	default:
		return "unknown"
	}
}

const (
	electionTimeoutMin = 150 * time.Millisecond
	electionTimeoutMax = 300 * time.Millisecond
	HeartbeatInterval  = 50 * time.Millisecond
)

// RequestVoteArgs is the body of POST /request-vote.
type RequestVoteArgs struct {
	Term        int    `json:"term"`
	CandidateID string `json:"candidate_id"`
}

// RequestVoteReply is the body returned from POST /request-vote.
type RequestVoteReply struct {
	Term        int  `json:"term"`
	VoteGranted bool `json:"vote_granted"`
}

// AppendEntriesArgs is the body of POST /append-entries. This elector
// only ever sends heartbeats (no Entries field), per the Non-goal on log
// replication.
type AppendEntriesArgs struct {
	Term     int    `json:"term"`
	LeaderID string `json:"leader_id"`
}

// AppendEntriesReply is the body returned from POST /append-entries.
type AppendEntriesReply struct {
	Term    int  `json:"term"`
	Success bool `json:"success"`
}

// Elector holds one node's Raft election state and drives its election
// timer and (while leader) heartbeat loop.
type Elector struct {
	mu sync.Mutex

	id    string
	peers []string // other nodes' addresses, self excluded

	transport *transport.Client
	logger    *zap.SugaredLogger

	state         State
	currentTerm   int
	votedFor      string
	votesReceived map[string]struct{}

	// generation increments on every state transition; callers (like the
	// lock manager) can snapshot it before checking IsLeader and detect a
	// step-down that raced their check.
	generation uint64

	signalCh        chan struct{} // non-blocking wake for the election loop
	stopCh          chan struct{}
	heartbeatCancel context.CancelFunc

	started bool
}

// New builds an Elector for id, with peers being every other node's
// address (self excluded).
func New(id string, peers []string, tc *transport.Client, logger *zap.SugaredLogger) *Elector {
	return &Elector{
		id:            id,
		peers:         peers,
		transport:     tc,
		logger:        logger,
		state:         Follower,
		votesReceived: make(map[string]struct{}),
		signalCh:      make(chan struct{}, 1),
		stopCh:        make(chan struct{}),
	}
}

// Start begins the election-timer loop. Calling it more than once is a
// no-op.
func (e *Elector) Start() {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return
	}
	e.started = true
	e.mu.Unlock()

	go e.electionLoop()
}

// Stop halts the election timer loop and any running heartbeat loop.
func (e *Elector) Stop() {
	close(e.stopCh)
	e.mu.Lock()
	if e.heartbeatCancel != nil {
		e.heartbeatCancel()
	}
	e.mu.Unlock()
}

// State returns the current Raft role.
func (e *Elector) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Term returns the current term.
func (e *Elector) Term() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.currentTerm
}

// IsLeader reports whether this node currently believes itself leader.
func (e *Elector) IsLeader() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state == Leader
}

// Generation returns a counter that increments on every state transition.
// A mutation gated on IsLeader() should reject if Generation() changed
// between the check and the commit (spec.md §5's "serialize Raft state
// transitions with lock-state mutations").
func (e *Elector) Generation() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.generation
}

func jitteredTimeout() time.Duration {
	span := electionTimeoutMax - electionTimeoutMin
	return electionTimeoutMin + time.Duration(rand.Int63n(int64(span)))
}

func (e *Elector) signal() {
	select {
	case e.signalCh <- struct{}{}:
	default:
	}
}

// electionLoop is the single goroutine that owns the election timer.
// While leader it parks waiting for a step-down signal instead of
// running a timeout (spec.md §4.3: the leader drives heartbeats, not an
// election timer).
func (e *Elector) electionLoop() {
	for {
		e.mu.Lock()
		state := e.state
		e.mu.Unlock()

		if state == Leader {
			select {
			case <-e.stopCh:
				return
			case <-e.signalCh:
				continue
			}
		}

		select {
		case <-e.stopCh:
			return
		case <-e.signalCh:
			continue
		case <-time.After(jitteredTimeout()):
			e.startElection()
		}
	}
}

func (e *Elector) startElection() {
	e.mu.Lock()
	e.currentTerm++
	term := e.currentTerm
	e.state = Candidate
	e.votedFor = e.id
	e.votesReceived = map[string]struct{}{e.id: {}}
	e.generation++
	e.mu.Unlock()

	e.logger.Infow("became candidate", "term", term)
	go e.collectVotes(term)
}

func (e *Elector) collectVotes(term int) {
	replies := e.transport.Broadcast(context.Background(), e.peers, "/request-vote", RequestVoteArgs{
		Term:        term,
		CandidateID: e.id,
	})

	votes := 1 // self
	highestSeenTerm := term
	for _, r := range replies {
		if !r.Ok {
			continue
		}
		var vr RequestVoteReply
		if err := decodeReply(r.Body, &vr); err != nil {
			continue
		}
		if vr.Term > highestSeenTerm {
			highestSeenTerm = vr.Term
		}
		if vr.VoteGranted {
			votes++
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if highestSeenTerm > e.currentTerm {
		e.stepDownLocked(highestSeenTerm)
		return
	}
	if e.state != Candidate || e.currentTerm != term {
		return // stale: already moved on
	}

	quorum := (len(e.peers)+1)/2 + 1
	if votes >= quorum {
		e.becomeLeaderLocked()
	}
}

func (e *Elector) becomeLeaderLocked() {
	e.state = Leader
	e.generation++
	term := e.currentTerm
	e.logger.Infow("won election", "term", term)

	ctx, cancel := context.WithCancel(context.Background())
	e.heartbeatCancel = cancel
	go e.heartbeatLoop(ctx, term)
	e.signal()
}

func (e *Elector) heartbeatLoop(ctx context.Context, term int) {
	ticker := time.NewTicker(HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.mu.Lock()
			if e.state != Leader || e.currentTerm != term {
				e.mu.Unlock()
				return
			}
			e.mu.Unlock()

			e.transport.Broadcast(context.Background(), e.peers, "/append-entries", AppendEntriesArgs{
				Term:     term,
				LeaderID: e.id,
			})
		}
	}
}

// stepDownLocked must be called with mu held. It adopts newTerm, reverts
// to Follower, cancels any running heartbeat loop, and wakes the election
// loop so its timer restarts.
func (e *Elector) stepDownLocked(newTerm int) {
	if e.heartbeatCancel != nil {
		e.heartbeatCancel()
		e.heartbeatCancel = nil
	}
	e.state = Follower
	e.currentTerm = newTerm
	e.votedFor = ""
	e.votesReceived = make(map[string]struct{})
	e.generation++
	e.signal()
}

// HandleRequestVote implements the RequestVote RPC handler of spec.md
// §4.3: grant iff the candidate's term is at least as current and this
// node hasn't voted for someone else this term.
func (e *Elector) HandleRequestVote(term int, candidateID string) RequestVoteReply {
	e.mu.Lock()
	defer e.mu.Unlock()

	if term < e.currentTerm {
		return RequestVoteReply{Term: e.currentTerm, VoteGranted: false}
	}
	if term > e.currentTerm {
		e.stepDownLocked(term)
	}

	if e.votedFor == "" || e.votedFor == candidateID {
		e.votedFor = candidateID
		e.signal()
		return RequestVoteReply{Term: e.currentTerm, VoteGranted: true}
	}
	return RequestVoteReply{Term: e.currentTerm, VoteGranted: false}
}

// HandleAppendEntries implements the heartbeat RPC handler of spec.md
// §4.3: reject a stale term, otherwise step down to follower and reset
// the election timer.
func (e *Elector) HandleAppendEntries(term int, leaderID string) AppendEntriesReply {
	e.mu.Lock()
	defer e.mu.Unlock()

	if term < e.currentTerm {
		return AppendEntriesReply{Term: e.currentTerm, Success: false}
	}
	if term > e.currentTerm || e.state != Follower {
		e.stepDownLocked(term)
	} else {
		e.signal()
	}
	return AppendEntriesReply{Term: e.currentTerm, Success: true}
}

// VotedFor returns the candidate this node voted for this term, or "" if
// none.
func (e *Elector) VotedFor() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.votedFor
}
