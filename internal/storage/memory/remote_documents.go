package memory

import (
	"sort"

	"github.com/codetrek/syntrix-client/pkg/model"
)

// remoteDocumentCache keeps the remote baseline in a map plus a sorted key
// slice acting as the path-prefix index for collection scans.
type remoteDocumentCache struct {
	docs       map[model.DocumentKey]model.MaybeDocument
	sortedKeys []model.DocumentKey
}

func newRemoteDocumentCache() *remoteDocumentCache {
	return &remoteDocumentCache{docs: map[model.DocumentKey]model.MaybeDocument{}}
}

func (c *remoteDocumentCache) Add(doc model.MaybeDocument) error {
	key := doc.Key()
	if _, ok := c.docs[key]; !ok {
		i := sort.Search(len(c.sortedKeys), func(i int) bool { return c.sortedKeys[i].Compare(key) >= 0 })
		c.sortedKeys = append(c.sortedKeys, model.DocumentKey{})
		copy(c.sortedKeys[i+1:], c.sortedKeys[i:])
		c.sortedKeys[i] = key
	}
	c.docs[key] = doc
	return nil
}

func (c *remoteDocumentCache) Remove(key model.DocumentKey) error {
	if _, ok := c.docs[key]; !ok {
		return nil
	}
	delete(c.docs, key)
	i := sort.Search(len(c.sortedKeys), func(i int) bool { return c.sortedKeys[i].Compare(key) >= 0 })
	c.sortedKeys = append(c.sortedKeys[:i], c.sortedKeys[i+1:]...)
	return nil
}

func (c *remoteDocumentCache) Get(key model.DocumentKey) (model.MaybeDocument, error) {
	return c.docs[key], nil
}

func (c *remoteDocumentCache) GetAll(keys []model.DocumentKey) (*model.MaybeDocumentMap, error) {
	out := model.NewMaybeDocumentMap()
	for _, key := range keys {
		if doc, ok := c.docs[key]; ok {
			out.Set(key, doc)
		}
	}
	return out, nil
}

func (c *remoteDocumentCache) GetMatching(query model.Query) (*model.DocumentMap, error) {
	out := model.NewDocumentMap()
	if query.IsDocumentQuery() {
		key, err := query.DocumentKey()
		if err != nil {
			return nil, err
		}
		if doc, ok := c.docs[key].(*model.Document); ok && query.Matches(doc) {
			out.Set(key, doc)
		}
		return out, nil
	}

	// Keys sort path-wise, so the query's subtree is one contiguous run.
	prefix := query.Path
	start := sort.Search(len(c.sortedKeys), func(i int) bool {
		return prefix.Compare(c.sortedKeys[i].Path()) <= 0
	})
	for _, key := range c.sortedKeys[start:] {
		if !prefix.IsPrefixOf(key.Path()) {
			break
		}
		if !prefix.IsImmediateParentOf(key.Path()) {
			continue
		}
		if doc, ok := c.docs[key].(*model.Document); ok && query.Matches(doc) {
			out.Set(key, doc)
		}
	}
	return out, nil
}
