package sqlite

import (
	"path/filepath"
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

func openPersistence(t *testing.T, path string) *Persistence {
	t.Helper()
	p := NewPersistence(path)
	require.NoError(t, p.Start())
	t.Cleanup(func() { _ = p.Shutdown() })
	return p
}

func TestSQLitePersistenceSurvivesRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "local.db")

	p := openPersistence(t, path)
	doc := &model.Document{
		DocKey:     testKey(t, "rooms/eros"),
		DocVersion: model.VersionFromMicros(7),
		Fields:     map[string]interface{}{"name": "eros"},
	}
	require.NoError(t, p.RunTransaction("seed", func() error {
		if err := p.RemoteDocuments().Add(doc); err != nil {
			return err
		}
		q := model.NewQuery(model.MustParseResourcePath("rooms"))
		data := types.NewQueryData(q, 2, types.PurposeListen, 1).
			WithResumeToken([]byte("tok-7"), model.VersionFromMicros(7))
		if err := p.Queries().AddQueryData(data); err != nil {
			return err
		}
		return p.Queries().SetLastRemoteSnapshotVersion(model.VersionFromMicros(7))
	}))
	require.NoError(t, p.Shutdown())

	// A fresh handle over the same file sees everything.
	p2 := openPersistence(t, path)
	got, err := p2.RemoteDocuments().Get(testKey(t, "rooms/eros"))
	require.NoError(t, err)
	require.IsType(t, &model.Document{}, got)
	assert.Equal(t, "eros", got.(*model.Document).Fields["name"])
	assert.Equal(t, int64(7), got.Version().Micros())

	data, err := p2.Queries().GetQueryData(model.NewQuery(model.MustParseResourcePath("rooms")))
	require.NoError(t, err)
	require.NotNil(t, data)
	assert.Equal(t, []byte("tok-7"), data.ResumeToken)
	assert.Equal(t, 2, data.TargetID)

	version, err := p2.Queries().LastRemoteSnapshotVersion()
	require.NoError(t, err)
	assert.Equal(t, int64(7), version.Micros())
}

func TestSQLiteMutationQueuePersistsBatchIDs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "local.db")

	p := openPersistence(t, path)
	queue := p.MutationQueue(auth.Unauthenticated)
	var firstID int
	require.NoError(t, p.RunTransaction("write", func() error {
		if err := queue.Start(); err != nil {
			return err
		}
		batch, err := queue.AddBatch(time.Now(), []mutation.Mutation{
			mutation.NewSet(testKey(t, "rooms/eros"), map[string]interface{}{"a": "b"}),
		})
		if err != nil {
			return err
		}
		firstID = batch.BatchID
		return queue.SetLastStreamToken([]byte("stream-1"))
	}))
	require.NoError(t, p.Shutdown())

	p2 := openPersistence(t, path)
	queue2 := p2.MutationQueue(auth.Unauthenticated)
	require.NoError(t, queue2.Start())

	// Batch IDs keep increasing across restarts.
	var secondID int
	require.NoError(t, p2.RunTransaction("write", func() error {
		batch, err := queue2.AddBatch(time.Now(), []mutation.Mutation{
			mutation.NewSet(testKey(t, "rooms/hades"), map[string]interface{}{"a": "b"}),
		})
		if err != nil {
			return err
		}
		secondID = batch.BatchID
		return nil
	}))
	assert.Equal(t, firstID+1, secondID)

	token, err := queue2.LastStreamToken()
	require.NoError(t, err)
	assert.Equal(t, []byte("stream-1"), token)

	batches, err := queue2.AllBatches()
	require.NoError(t, err)
	require.Len(t, batches, 2)
	assert.Equal(t, firstID, batches[0].BatchID)

	affecting, err := queue2.AllBatchesAffectingKey(testKey(t, "rooms/eros"))
	require.NoError(t, err)
	require.Len(t, affecting, 1)
	set, ok := affecting[0].Mutations[0].(*mutation.Set)
	require.True(t, ok)
	assert.Equal(t, "b", set.Fields["a"])
}

func TestSQLiteTransactionRollsBackOnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "local.db")
	p := openPersistence(t, path)

	doc := &model.Document{
		DocKey:     testKey(t, "rooms/eros"),
		DocVersion: model.VersionFromMicros(1),
		Fields:     map[string]interface{}{},
	}
	err := p.RunTransaction("failing", func() error {
		if err := p.RemoteDocuments().Add(doc); err != nil {
			return err
		}
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	got, err := p.RemoteDocuments().Get(testKey(t, "rooms/eros"))
	require.NoError(t, err)
	assert.Nil(t, got, "the write must have been rolled back")
}

func TestSQLiteAffectingQueryScansDirectChildrenOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "local.db")
	p := openPersistence(t, path)
	queue := p.MutationQueue(auth.Unauthenticated)
	require.NoError(t, p.RunTransaction("write", func() error {
		if err := queue.Start(); err != nil {
			return err
		}
		for _, docPath := range []string{"fo/bar", "foo/bar", "foo/bar/deep/doc", "fooo/blah"} {
			if _, err := queue.AddBatch(time.Now(), []mutation.Mutation{
				mutation.NewSet(testKey(t, docPath), map[string]interface{}{}),
			}); err != nil {
				return err
			}
		}
		return nil
	}))

	batches, err := queue.AllBatchesAffectingQuery(model.NewQuery(model.MustParseResourcePath("foo")))
	require.NoError(t, err)
	require.Len(t, batches, 1)
	assert.Equal(t, testKey(t, "foo/bar"), batches[0].Mutations[0].Key())
}
