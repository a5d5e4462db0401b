package memory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codetrek/syntrix-client/internal/auth"
	"github.com/codetrek/syntrix-client/internal/mutation"
	"github.com/codetrek/syntrix-client/internal/storage/types"
	"github.com/codetrek/syntrix-client/pkg/model"
)

func testKey(t *testing.T, path string) model.DocumentKey {
	t.Helper()
	k, err := model.ParseDocumentKey(path)
	require.NoError(t, err)
	return k
}

func testDoc(t *testing.T, path string, version int64) *model.Document {
	t.Helper()
	return &model.Document{
		DocKey:     testKey(t, path),
		DocVersion: model.VersionFromMicros(version),
		Fields:     map[string]interface{}{"v": path},
	}
}

func TestRemoteDocumentCacheRoundTrip(t *testing.T) {
	p := NewPersistence()
	require.NoError(t, p.Start())
	cache := p.RemoteDocuments()

	doc := testDoc(t, "rooms/eros", 1)
	require.NoError(t, cache.Add(doc))

	got, err := cache.Get(testKey(t, "rooms/eros"))
	require.NoError(t, err)
	assert.Equal(t, model.MaybeDocument(doc), got)

	require.NoError(t, cache.Remove(testKey(t, "rooms/eros")))
	got, err = cache.Get(testKey(t, "rooms/eros"))
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRemoteDocumentCacheGetMatching(t *testing.T) {
	p := NewPersistence()
	cache := p.RemoteDocuments()

	for _, tc := range []struct {
		path    string
		version int64
	}{
		{"rooms/eros", 1},
		{"rooms/hades", 2},
		{"rooms/eros/messages/1", 3}, // too deep for a "rooms" query
		{"halls/eros", 4},
	} {
		require.NoError(t, cache.Add(testDoc(t, tc.path, tc.version)))
	}
	// Tombstones never surface from queries.
	require.NoError(t, cache.Add(&model.NoDocument{DocKey: testKey(t, "rooms/styx"), DocVersion: model.VersionFromMicros(5)}))

	docs, err := cache.GetMatching(model.NewQuery(model.MustParseResourcePath("rooms")))
	require.NoError(t, err)
	var paths []string
	for _, k := range docs.Keys() {
		paths = append(paths, k.String())
	}
	assert.Equal(t, []string{"rooms/eros", "rooms/hades"}, paths)

	// Document queries hit exactly one key.
	docs, err = cache.GetMatching(model.NewQuery(model.MustParseResourcePath("rooms/hades")))
	require.NoError(t, err)
	assert.Equal(t, 1, docs.Len())
}

func TestMutationQueueOrderAndIndex(t *testing.T) {
	p := NewPersistence()
	queue := p.MutationQueue(auth.Unauthenticated)
	require.NoError(t, queue.Start())

	barKey := testKey(t, "rooms/bar")
	bazKey := testKey(t, "rooms/baz")

	b1, err := queue.AddBatch(time.Now(), []mutation.Mutation{mutation.NewSet(barKey, map[string]interface{}{"a": "1"})})
	require.NoError(t, err)
	b2, err := queue.AddBatch(time.Now(), []mutation.Mutation{
		mutation.NewSet(bazKey, map[string]interface{}{"a": "2"}),
		mutation.NewPatch(barKey, map[string]interface{}{"a": "3"}),
	})
	require.NoError(t, err)
	assert.Equal(t, b1.BatchID+1, b2.BatchID)

	affecting, err := queue.AllBatchesAffectingKey(barKey)
	require.NoError(t, err)
	require.Len(t, affecting, 2)
	assert.Equal(t, b1.BatchID, affecting[0].BatchID)
	assert.Equal(t, b2.BatchID, affecting[1].BatchID)

	contains, err := queue.ContainsKey(bazKey)
	require.NoError(t, err)
	assert.True(t, contains)

	// Only the head may be removed.
	err = queue.RemoveBatch(b2)
	assert.ErrorIs(t, err, model.ErrPreconditionFailed)

	require.NoError(t, queue.RemoveBatch(b1))
	contains, err = queue.ContainsKey(barKey)
	require.NoError(t, err)
	assert.True(t, contains, "bar is still touched by the second batch")

	require.NoError(t, queue.RemoveBatch(b2))
	empty, err := queue.IsEmpty()
	require.NoError(t, err)
	assert.True(t, empty)
}

func TestMutationQueuesAreScopedPerUser(t *testing.T) {
	p := NewPersistence()
	anon := p.MutationQueue(auth.Unauthenticated)
	alice := p.MutationQueue(auth.User{UID: "alice"})

	_, err := anon.AddBatch(time.Now(), []mutation.Mutation{
		mutation.NewSet(testKey(t, "rooms/anon"), map[string]interface{}{}),
	})
	require.NoError(t, err)

	empty, err := alice.IsEmpty()
	require.NoError(t, err)
	assert.True(t, empty)

	// Same user yields the same queue.
	assert.Equal(t, anon, p.MutationQueue(auth.Unauthenticated))
}

func TestQueryCacheTargets(t *testing.T) {
	p := NewPersistence()
	cache := p.Queries()

	id, err := cache.AllocateTargetID()
	require.NoError(t, err)
	assert.Equal(t, 2, id)
	id, err = cache.AllocateTargetID()
	require.NoError(t, err)
	assert.Equal(t, 4, id)

	q := model.NewQuery(model.MustParseResourcePath("rooms"))
	data := types.NewQueryData(q, 2, types.PurposeListen, 1)
	require.NoError(t, cache.AddQueryData(data))

	got, err := cache.GetQueryData(q)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	count, err := cache.TargetCount()
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	keys := []model.DocumentKey{testKey(t, "rooms/eros"), testKey(t, "rooms/hades")}
	require.NoError(t, cache.AddMatchingKeys(keys, 2))
	contains, err := cache.ContainsKey(keys[0])
	require.NoError(t, err)
	assert.True(t, contains)

	matching, err := cache.MatchingKeysForTarget(2)
	require.NoError(t, err)
	assert.Equal(t, 2, matching.Len())

	require.NoError(t, cache.RemoveMatchingKeys(keys[:1], 2))
	contains, err = cache.ContainsKey(keys[0])
	require.NoError(t, err)
	assert.False(t, contains)

	require.NoError(t, cache.RemoveMatchingKeysForTarget(2))
	matching, err = cache.MatchingKeysForTarget(2)
	require.NoError(t, err)
	assert.Equal(t, 0, matching.Len())

	require.NoError(t, cache.RemoveQueryData(data))
	got, err = cache.GetQueryData(q)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestNestedTransactionsAreForbidden(t *testing.T) {
	p := NewPersistence()
	err := p.RunTransaction("outer", func() error {
		return p.RunTransaction("inner", func() error { return nil })
	})
	assert.Error(t, err)
}
