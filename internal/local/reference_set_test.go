package local

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codetrek/syntrix-client/pkg/model"
)

func TestReferenceSetCountsDistinctIDs(t *testing.T) {
	refs := NewReferenceSet()
	k := key("rooms/eros")

	refs.AddReference(k, 2)
	refs.AddReference(k, 4)
	ok, err := refs.ContainsKey(k)
	require.NoError(t, err)
	assert.True(t, ok)

	refs.RemoveReference(k, 2)
	ok, _ = refs.ContainsKey(k)
	assert.True(t, ok, "still held by target 4")

	refs.RemoveReference(k, 4)
	ok, _ = refs.ContainsKey(k)
	assert.False(t, ok)
}

func TestReferenceSetRemoveForID(t *testing.T) {
	refs := NewReferenceSet()
	a := key("rooms/a")
	b := key("rooms/b")
	refs.AddReference(a, 2)
	refs.AddReference(b, 2)
	refs.AddReference(b, 4)

	released := refs.RemoveReferencesForID(2)
	assert.Equal(t, 2, released.Len())

	ok, _ := refs.ContainsKey(a)
	assert.False(t, ok)
	ok, _ = refs.ContainsKey(b)
	assert.True(t, ok, "b survives via target 4")
	assert.Equal(t, 1, refs.ReferencesForID(4).Len())
}

func TestEagerCollectorConsultsAllSources(t *testing.T) {
	gc := NewEagerGarbageCollector()
	pinned := model.NewKeySet(key("rooms/pinned"))
	gc.AddGarbageSource(garbageSourceFunc(func(k model.DocumentKey) (bool, error) {
		return pinned.Contains(k), nil
	}))

	gc.AddPotentialGarbageKeys(key("rooms/pinned"), key("rooms/loose"))
	garbage, err := gc.CollectGarbage()
	require.NoError(t, err)
	assert.Equal(t, 1, garbage.Len())
	assert.True(t, garbage.Contains(key("rooms/loose")))

	// Marks are consumed.
	garbage, err = gc.CollectGarbage()
	require.NoError(t, err)
	assert.Equal(t, 0, garbage.Len())
}

func TestDeferredCollectorOnlySweepsOnDemand(t *testing.T) {
	gc := NewDeferredGarbageCollector()
	gc.AddGarbageSource(garbageSourceFunc(func(k model.DocumentKey) (bool, error) {
		return false, nil
	}))
	gc.AddPotentialGarbageKeys(key("rooms/loose"))

	garbage, err := gc.CollectGarbage()
	require.NoError(t, err)
	assert.Equal(t, 0, garbage.Len(), "the hot path reclaims nothing")

	swept, err := gc.Sweep()
	require.NoError(t, err)
	assert.Equal(t, 1, swept.Len())
}
