// Package transport is the peer RPC fan-out shared by every node kind
// (spec.md §4.1): broadcast a JSON payload to every peer concurrently and
// collect one reply slot per peer, never failing the caller over an
// individual peer being unreachable.
//
// Grounded on the teacher's goroutine-per-peer fan-out in
// internal/raft/raft.go (requestVoteFromPeer, broadcastHeartbeat), which
// dialed raw TCP per peer; here the wire format is HTTP+JSON per spec.md
// §6's external interface instead.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

// Reply is one peer's outcome from a Broadcast call. A peer that timed
// out, refused the connection, or returned an undecodable body comes back
// as Ok: false — the sentinel "unreachable" slot spec.md §4.1 calls for.
type Reply struct {
	Peer string
	Ok   bool
	Body json.RawMessage
}

// Client issues HTTP JSON requests to peers with a bounded per-call
// timeout, set by the caller through New. The lock node passes 25ms,
// under the 50ms Raft heartbeat interval, so a missing peer never delays
// an election or heartbeat cycle (spec.md §4.1, §5); the queue and cache
// nodes pass 2s.
type Client struct {
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New builds a Client with the given per-call timeout.
func New(timeout time.Duration) *Client {
	return &Client{
		HTTPClient: &http.Client{Timeout: timeout},
		Timeout:    timeout,
	}
}

// Broadcast POSTs body as JSON to path on every peer concurrently and
// returns one Reply per peer, in the same order as peers. It never
// returns an error: individual peer failures become Reply{Ok: false}.
func (c *Client) Broadcast(ctx context.Context, peers []string, path string, body any) []Reply {
	replies := make([]Reply, len(peers))

	var wg sync.WaitGroup
	for i, peer := range peers {
		wg.Add(1)
		go func(i int, peer string) {
			defer wg.Done()
			replies[i] = c.call(ctx, peer, path, body)
		}(i, peer)
	}
	wg.Wait()

	return replies
}

// Forward sends a single request to one peer and returns its reply,
// used by queue routing to forward a produce/consume to the owning node
// without retry (spec.md §4.5).
func (c *Client) Forward(ctx context.Context, peer, path string, body any) Reply {
	return c.call(ctx, peer, path, body)
}

func (c *Client) call(ctx context.Context, peer, path string, body any) Reply {
	reqCtx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	payload, err := json.Marshal(body)
	if err != nil {
		return Reply{Peer: peer, Ok: false}
	}

	url := fmt.Sprintf("http://%s%s", peer, path)
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return Reply{Peer: peer, Ok: false}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return Reply{Peer: peer, Ok: false}
	}
	defer resp.Body.Close()

	var raw json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		if err == io.EOF {
			// A peer replying with no body is still a valid, reachable reply
			// (spec.md §4.1: "an empty structure").
			return Reply{Peer: peer, Ok: true, Body: json.RawMessage(`{}`)}
		}
		return Reply{Peer: peer, Ok: false}
	}

	return Reply{Peer: peer, Ok: true, Body: raw}
}
