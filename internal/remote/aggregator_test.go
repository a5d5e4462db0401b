package remote

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codetrek/syntrix-client/internal/storage/types"
	"github.com/codetrek/syntrix-client/pkg/model"
)

// fakeProvider serves a fixed set of targets and synced keys.
type fakeProvider struct {
	targets    map[int]*types.QueryData
	remoteKeys map[int]model.KeySet
}

func (p *fakeProvider) QueryDataForTarget(targetID int) *types.QueryData {
	return p.targets[targetID]
}

func (p *fakeProvider) RemoteKeysForTarget(targetID int) model.KeySet {
	if keys, ok := p.remoteKeys[targetID]; ok {
		return keys
	}
	return model.NewKeySet()
}

func testKey(t *testing.T, path string) model.DocumentKey {
	t.Helper()
	k, err := model.ParseDocumentKey(path)
	require.NoError(t, err)
	return k
}

func listenTarget(t *testing.T, targetID int, path string) *types.QueryData {
	t.Helper()
	return types.NewQueryData(model.NewQuery(model.MustParseResourcePath(path)), targetID, types.PurposeListen, 1)
}

func TestAggregatorSplitsAddedAndModified(t *testing.T) {
	known := testKey(t, "rooms/known")
	fresh := testKey(t, "rooms/fresh")
	provider := &fakeProvider{
		targets:    map[int]*types.QueryData{2: listenTarget(t, 2, "rooms")},
		remoteKeys: map[int]model.KeySet{2: model.NewKeySet(known)},
	}
	aggregator := NewChangeAggregator(provider)

	aggregator.HandleDocumentChange(&WatchDocumentChange{
		UpdatedTargetIDs: []int{2},
		Key:              known,
		NewDocument:      &model.Document{DocKey: known, DocVersion: model.VersionFromMicros(10)},
	})
	aggregator.HandleDocumentChange(&WatchDocumentChange{
		UpdatedTargetIDs: []int{2},
		Key:              fresh,
		NewDocument:      &model.Document{DocKey: fresh, DocVersion: model.VersionFromMicros(10)},
	})

	event := aggregator.CreateRemoteEvent(model.VersionFromMicros(10))
	change := event.TargetChanges[2]
	require.NotNil(t, change)
	assert.True(t, change.ModifiedDocuments.Contains(known))
	assert.True(t, change.AddedDocuments.Contains(fresh))
	assert.Equal(t, 2, event.DocumentUpdates.Len())
}

func TestAggregatorIgnoresInactiveTargets(t *testing.T) {
	provider := &fakeProvider{targets: map[int]*types.QueryData{}}
	aggregator := NewChangeAggregator(provider)

	key := testKey(t, "rooms/eros")
	aggregator.HandleDocumentChange(&WatchDocumentChange{
		UpdatedTargetIDs: []int{7},
		Key:              key,
		NewDocument:      &model.Document{DocKey: key, DocVersion: model.VersionFromMicros(1)},
	})
	aggregator.HandleTargetChange(&WatchTargetChange{
		ChangeType:  WatchTargetCurrent,
		TargetIDs:   []int{7},
		ResumeToken: []byte("tok"),
	})

	event := aggregator.CreateRemoteEvent(model.VersionFromMicros(1))
	assert.Empty(t, event.TargetChanges)
	assert.Equal(t, 0, event.DocumentUpdates.Len())
}

func TestAggregatorCurrentAndResumeToken(t *testing.T) {
	provider := &fakeProvider{targets: map[int]*types.QueryData{2: listenTarget(t, 2, "rooms")}}
	aggregator := NewChangeAggregator(provider)

	aggregator.HandleTargetChange(&WatchTargetChange{
		ChangeType:  WatchTargetCurrent,
		TargetIDs:   []int{2},
		ResumeToken: []byte("tok-1"),
	})
	event := aggregator.CreateRemoteEvent(model.VersionFromMicros(100))
	change := event.TargetChanges[2]
	require.NotNil(t, change)
	assert.True(t, change.Current)
	assert.Equal(t, []byte("tok-1"), change.ResumeToken)

	// State is consumed per event.
	next := aggregator.CreateRemoteEvent(model.VersionFromMicros(200))
	assert.Empty(t, next.TargetChanges)
}

func TestAggregatorResetResyncsTarget(t *testing.T) {
	synced := testKey(t, "rooms/eros")
	provider := &fakeProvider{
		targets:    map[int]*types.QueryData{2: listenTarget(t, 2, "rooms")},
		remoteKeys: map[int]model.KeySet{2: model.NewKeySet(synced)},
	}
	aggregator := NewChangeAggregator(provider)

	aggregator.HandleTargetChange(&WatchTargetChange{ChangeType: WatchTargetReset, TargetIDs: []int{2}})
	event := aggregator.CreateRemoteEvent(model.VersionFromMicros(1))
	change := event.TargetChanges[2]
	require.NotNil(t, change)
	assert.True(t, change.RemovedDocuments.Contains(synced))
}

func TestAggregatorFlagsLimboDocuments(t *testing.T) {
	key := testKey(t, "rooms/limbo")
	limbo := types.NewQueryData(model.NewQuery(model.MustParseResourcePath("rooms/limbo")), 5, types.PurposeLimboResolution, 1)
	provider := &fakeProvider{targets: map[int]*types.QueryData{5: limbo}}
	aggregator := NewChangeAggregator(provider)

	aggregator.HandleDocumentChange(&WatchDocumentChange{
		UpdatedTargetIDs: []int{5},
		Key:              key,
		NewDocument:      &model.Document{DocKey: key, DocVersion: model.VersionFromMicros(3)},
	})
	event := aggregator.CreateRemoteEvent(model.VersionFromMicros(3))
	assert.True(t, event.LimboDocumentChanges.Contains(key))
}
