package hashring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupIsDeterministic(t *testing.T) {
	r := New(10)
	r.Add("qa")
	r.Add("qb")
	r.Add("qc")

	first, ok := r.Lookup("orders")
	require.True(t, ok)

	for i := 0; i < 50; i++ {
		again, ok := r.Lookup("orders")
		require.True(t, ok)
		assert.Equal(t, first, again)
	}
}

func TestLookupEmptyRing(t *testing.T) {
	r := New(10)
	_, ok := r.Lookup("anything")
	assert.False(t, ok)
}

func TestRemoveStopsOwning(t *testing.T) {
	r := New(10)
	r.Add("qa")
	r.Add("qb")

	owner, ok := r.Lookup("orders")
	require.True(t, ok)

	r.Remove(owner)
	nodes := r.Nodes()
	assert.NotContains(t, nodes, owner)

	newOwner, ok := r.Lookup("orders")
	require.True(t, ok)
	assert.NotEqual(t, owner, newOwner)
}

func TestAddIsIdempotentForLookup(t *testing.T) {
	r := New(5)
	r.Add("a")
	r.Add("b")
	r.Add("c")
	before, _ := r.Lookup("k")

	// re-adding an existing node must not perturb ownership of unrelated keys
	r.Add("b")
	after, _ := r.Lookup("k")
	assert.Equal(t, before, after)
}
