package memory

import (
	"fmt"

	"github.com/codetrek/syntrix-client/internal/storage/types"
	"github.com/codetrek/syntrix-client/pkg/model"
)

// queryCache is the in-memory target registry.
type queryCache struct {
	queries           map[string]*types.QueryData
	byTargetID        map[int]*types.QueryData
	matchingKeys      map[int]model.KeySet
	keyReferences     map[model.DocumentKey]map[int]struct{}
	highestTargetID   int
	lastRemoteVersion model.SnapshotVersion
}

func newQueryCache() *queryCache {
	return &queryCache{
		queries:       map[string]*types.QueryData{},
		byTargetID:    map[int]*types.QueryData{},
		matchingKeys:  map[int]model.KeySet{},
		keyReferences: map[model.DocumentKey]map[int]struct{}{},
	}
}

func (c *queryCache) AllocateTargetID() (int, error) {
	c.highestTargetID += 2
	return c.highestTargetID, nil
}

func (c *queryCache) AddQueryData(data *types.QueryData) error {
	c.queries[data.Query.CanonicalID()] = data
	c.byTargetID[data.TargetID] = data
	if data.TargetID > c.highestTargetID {
		c.highestTargetID = data.TargetID
	}
	return nil
}

func (c *queryCache) UpdateQueryData(data *types.QueryData) error {
	if _, ok := c.byTargetID[data.TargetID]; !ok {
		return fmt.Errorf("%w: updating unknown target %d", model.ErrPreconditionFailed, data.TargetID)
	}
	c.queries[data.Query.CanonicalID()] = data
	c.byTargetID[data.TargetID] = data
	return nil
}

func (c *queryCache) RemoveQueryData(data *types.QueryData) error {
	delete(c.queries, data.Query.CanonicalID())
	delete(c.byTargetID, data.TargetID)
	return nil
}

func (c *queryCache) GetQueryData(query model.Query) (*types.QueryData, error) {
	return c.queries[query.CanonicalID()], nil
}

func (c *queryCache) TargetCount() (int, error) {
	return len(c.queries), nil
}

func (c *queryCache) AddMatchingKeys(keys []model.DocumentKey, targetID int) error {
	set, ok := c.matchingKeys[targetID]
	if !ok {
		set = model.NewKeySet()
		c.matchingKeys[targetID] = set
	}
	for _, key := range keys {
		set.Add(key)
		refs, ok := c.keyReferences[key]
		if !ok {
			refs = map[int]struct{}{}
			c.keyReferences[key] = refs
		}
		refs[targetID] = struct{}{}
	}
	return nil
}

func (c *queryCache) RemoveMatchingKeys(keys []model.DocumentKey, targetID int) error {
	set := c.matchingKeys[targetID]
	for _, key := range keys {
		if set != nil {
			set.Remove(key)
		}
		c.dropReference(key, targetID)
	}
	return nil
}

func (c *queryCache) RemoveMatchingKeysForTarget(targetID int) error {
	for key := range c.matchingKeys[targetID] {
		c.dropReference(key, targetID)
	}
	delete(c.matchingKeys, targetID)
	return nil
}

func (c *queryCache) dropReference(key model.DocumentKey, targetID int) {
	refs := c.keyReferences[key]
	delete(refs, targetID)
	if len(refs) == 0 {
		delete(c.keyReferences, key)
	}
}

func (c *queryCache) MatchingKeysForTarget(targetID int) (model.KeySet, error) {
	out := model.NewKeySet()
	for key := range c.matchingKeys[targetID] {
		out.Add(key)
	}
	return out, nil
}

func (c *queryCache) ContainsKey(key model.DocumentKey) (bool, error) {
	return len(c.keyReferences[key]) > 0, nil
}

func (c *queryCache) LastRemoteSnapshotVersion() (model.SnapshotVersion, error) {
	return c.lastRemoteVersion, nil
}

func (c *queryCache) SetLastRemoteSnapshotVersion(version model.SnapshotVersion) error {
	c.lastRemoteVersion = version
	return nil
}
