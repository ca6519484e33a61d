package lock

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLeader struct {
	leader     bool
	generation uint64
}

func (f *fakeLeader) IsLeader() bool     { return f.leader }
func (f *fakeLeader) Generation() uint64 { return f.generation }

// steppingLeader reports leadership at generation 1 on its first call and
// a bumped generation 2 on every call after, modeling a step-down racing
// in between the pre-lock IsLeader check and the mutation itself.
type steppingLeader struct{ calls int }

func (s *steppingLeader) IsLeader() bool { return true }
func (s *steppingLeader) Generation() uint64 {
	s.calls++
	if s.calls <= 1 {
		return 1
	}
	return 2
}

func TestAcquireReleaseExclusivity(t *testing.T) {
	l := &fakeLeader{leader: true}
	m := New(l)

	status, err := m.Acquire("resource_1", "client_1", Exclusive)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, status)

	status, err = m.Acquire("resource_1", "client_2", Exclusive)
	require.NoError(t, err)
	assert.Equal(t, StatusWaiting, status)

	status, err = m.Release("resource_1", "client_1")
	require.NoError(t, err)
	assert.Equal(t, StatusReleased, status)

	snap := m.Snapshot()
	rec := snap.Locks["resource_1"]
	assert.Equal(t, Exclusive, rec.Mode)
	assert.Contains(t, rec.Holders, "client_2")
	assert.Empty(t, rec.Waiters)
}

func TestAcquireRejectsWhenNotLeader(t *testing.T) {
	l := &fakeLeader{leader: false}
	m := New(l)

	_, err := m.Acquire("r", "c", Exclusive)
	assert.ErrorIs(t, err, ErrNotLeader)
}

func TestSharedLocksAreCompatible(t *testing.T) {
	l := &fakeLeader{leader: true}
	m := New(l)

	status, _ := m.Acquire("r", "c1", Shared)
	assert.Equal(t, StatusSuccess, status)

	status, _ = m.Acquire("r", "c2", Shared)
	assert.Equal(t, StatusSuccess, status)

	snap := m.Snapshot()
	assert.ElementsMatch(t, []string{"c1", "c2"}, snap.Locks["r"].Holders)
}

func TestReacquireByCurrentHolderIsAlreadyHeld(t *testing.T) {
	l := &fakeLeader{leader: true}
	m := New(l)

	m.Acquire("r", "c1", Exclusive)
	status, err := m.Acquire("r", "c1", Exclusive)
	require.NoError(t, err)
	assert.Equal(t, StatusAlreadyHeld, status)
}

func TestReleaseByNonHolderErrors(t *testing.T) {
	l := &fakeLeader{leader: true}
	m := New(l)

	m.Acquire("r", "c1", Exclusive)
	_, err := m.Release("r", "c2")
	assert.ErrorIs(t, err, ErrNotHolder)
}

func TestReleaseUnknownKeyErrors(t *testing.T) {
	l := &fakeLeader{leader: true}
	m := New(l)

	_, err := m.Release("nope", "c1")
	assert.ErrorIs(t, err, ErrUnknownKey)
}

// TestDeadlockRejection mirrors the spec.md §8 end-to-end scenario:
// client_1 holds R1, client_2 holds R2; client_1 waits on R2; client_2's
// request for R1 must be rejected, not enqueued.
func TestDeadlockRejection(t *testing.T) {
	l := &fakeLeader{leader: true}
	m := New(l)

	status, _ := m.Acquire("R1", "client_1", Exclusive)
	require.Equal(t, StatusSuccess, status)

	status, _ = m.Acquire("R2", "client_2", Exclusive)
	require.Equal(t, StatusSuccess, status)

	status, _ = m.Acquire("R2", "client_1", Exclusive)
	require.Equal(t, StatusWaiting, status)

	status, _ = m.Acquire("R1", "client_2", Exclusive)
	assert.Equal(t, StatusDeadlockRejected, status)

	snap := m.Snapshot()
	assert.NotContains(t, snap.Locks["R1"].Waiters, "client_2")
}

func TestDependencyCoherenceInvariant(t *testing.T) {
	l := &fakeLeader{leader: true}
	m := New(l)

	m.Acquire("k", "holder", Exclusive)
	m.Acquire("k", "waiter", Exclusive)

	snap := m.Snapshot()
	assert.Contains(t, snap.Locks["k"].Waiters, "waiter")
	assert.Equal(t, "k", snap.Dependencies["waiter"].WaitingFor)
	assert.Contains(t, snap.Dependencies["holder"].Holding, "k")
}

func TestWaiterGrantedWithItsOwnRequestedMode(t *testing.T) {
	l := &fakeLeader{leader: true}
	m := New(l)

	m.Acquire("k", "holder", Exclusive)
	status, _ := m.Acquire("k", "waiter", Shared)
	require.Equal(t, StatusWaiting, status)

	m.Release("k", "holder")

	snap := m.Snapshot()
	assert.Equal(t, Shared, snap.Locks["k"].Mode)
	assert.Contains(t, snap.Locks["k"].Holders, "waiter")
}

// TestAcquireAbortsOnGenerationRace exercises spec.md §5's requirement
// that a step-down racing between the leader check and the mutation
// aborts the mutation rather than applying it.
func TestAcquireAbortsOnGenerationRace(t *testing.T) {
	m := New(&steppingLeader{})
	_, err := m.Acquire("r", "c", Exclusive)
	assert.ErrorIs(t, err, ErrNotLeader)

	snap := m.Snapshot()
	assert.NotContains(t, snap.Locks, "r")
}
