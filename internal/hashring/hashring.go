// Package hashring implements the consistent-hash ring that routes queue
// keys to owning nodes (spec.md §4.2).
//
// Grounded on original_source/src/utils/hashing.py's ConsistentHashRing:
// same MD5-point construction and sorted-list lookup, translated into Go's
// sort package instead of Python's bisect module.
package hashring

import (
	"crypto/md5"
	"fmt"
	"sort"
	"sync"
)

// Ring maps string keys onto a fixed set of nodes using consistent
// hashing with Replicas virtual points per physical node.
type Ring struct {
	mu       sync.RWMutex
	replicas int
	points   []uint32          // sorted hash points
	byPoint  map[uint32]string // point -> node id
}

// New creates an empty ring with the given number of virtual replicas per
// node. R defaults to 10 per spec.md §3 if replicas <= 0.
func New(replicas int) *Ring {
	if replicas <= 0 {
		replicas = 10
	}
	return &Ring{
		replicas: replicas,
		byPoint:  make(map[uint32]string),
	}
}

func hashPoint(s string) uint32 {
	sum := md5.Sum([]byte(s))
	return uint32(sum[0])<<24 | uint32(sum[1])<<16 | uint32(sum[2])<<8 | uint32(sum[3])
}

// Add inserts nodeID's virtual points into the ring. Re-adding a node
// already present rewrites its points (last add wins on any collision, as
// spec.md §4.2 requires).
func (r *Ring) Add(nodeID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := 0; i < r.replicas; i++ {
		h := hashPoint(fmt.Sprintf("%s:%d", nodeID, i))
		if _, exists := r.byPoint[h]; !exists {
			r.points = append(r.points, h)
		}
		r.byPoint[h] = nodeID
	}
	sort.Slice(r.points, func(i, j int) bool { return r.points[i] < r.points[j] })
}

// Remove erases nodeID's virtual points, matching each (point, node) pair
// exactly per spec.md §4.2's tie-break rule.
func (r *Ring) Remove(nodeID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := 0; i < r.replicas; i++ {
		h := hashPoint(fmt.Sprintf("%s:%d", nodeID, i))
		if r.byPoint[h] != nodeID {
			continue
		}
		delete(r.byPoint, h)
		idx := sort.Search(len(r.points), func(j int) bool { return r.points[j] >= h })
		if idx < len(r.points) && r.points[idx] == h {
			r.points = append(r.points[:idx], r.points[idx+1:]...)
		}
	}
}

// Lookup returns the node owning key: the node at the smallest point >=
// hash(key), wrapping to the first point past the end of the ring.
func (r *Ring) Lookup(key string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.points) == 0 {
		return "", false
	}

	h := hashPoint(key)
	idx := sort.Search(len(r.points), func(i int) bool { return r.points[i] >= h })
	if idx == len(r.points) {
		idx = 0
	}
	return r.byPoint[r.points[idx]], true
}

// Nodes returns the distinct set of node ids currently on the ring, in no
// particular order.
func (r *Ring) Nodes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]struct{})
	out := make([]string, 0, len(r.byPoint))
	for _, n := range r.byPoint {
		if _, ok := seen[n]; !ok {
			seen[n] = struct{}{}
			out = append(out, n)
		}
	}
	return out
}
