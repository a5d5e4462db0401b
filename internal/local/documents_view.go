package local

import (
	"github.com/codetrek/syntrix-client/internal/storage/types"
	"github.com/codetrek/syntrix-client/pkg/model"
)

// DocumentsView computes the locally visible state of documents by overlaying
// pending mutations on the remote baseline. It holds no state of its own.
type DocumentsView struct {
	remoteDocuments types.RemoteDocumentCache
	mutationQueue   types.MutationQueue
}

func NewDocumentsView(remoteDocuments types.RemoteDocumentCache, mutationQueue types.MutationQueue) *DocumentsView {
	return &DocumentsView{remoteDocuments: remoteDocuments, mutationQueue: mutationQueue}
}

// GetDocument returns the local view of key, or nil when nothing is known.
func (v *DocumentsView) GetDocument(key model.DocumentKey) (model.MaybeDocument, error) {
	maybeDoc, err := v.remoteDocuments.Get(key)
	if err != nil {
		return nil, err
	}
	batches, err := v.mutationQueue.AllBatchesAffectingKey(key)
	if err != nil {
		return nil, err
	}
	for _, batch := range batches {
		maybeDoc = batch.ApplyToLocalView(key, maybeDoc)
	}
	return maybeDoc, nil
}

// GetDocuments returns the local view for every key. Keys with no known state
// come back as tombstones at version 0 so change-sets name every key asked
// about.
func (v *DocumentsView) GetDocuments(keys []model.DocumentKey) (*model.MaybeDocumentMap, error) {
	out := model.NewMaybeDocumentMap()
	for _, key := range keys {
		maybeDoc, err := v.GetDocument(key)
		if err != nil {
			return nil, err
		}
		if maybeDoc == nil {
			maybeDoc = &model.NoDocument{DocKey: key, DocVersion: model.SnapshotVersionMin}
		}
		out.Set(key, maybeDoc)
	}
	return out, nil
}

// GetDocumentsMatchingQuery runs the query against the local view: the remote
// candidates plus every document a pending mutation creates inside the
// query's scope.
func (v *DocumentsView) GetDocumentsMatchingQuery(query model.Query) (*model.DocumentMap, error) {
	if query.IsDocumentQuery() {
		return v.getDocumentsMatchingDocumentQuery(query)
	}
	return v.getDocumentsMatchingCollectionQuery(query)
}

func (v *DocumentsView) getDocumentsMatchingDocumentQuery(query model.Query) (*model.DocumentMap, error) {
	out := model.NewDocumentMap()
	key, err := query.DocumentKey()
	if err != nil {
		return nil, err
	}
	maybeDoc, err := v.GetDocument(key)
	if err != nil {
		return nil, err
	}
	if doc, ok := maybeDoc.(*model.Document); ok && query.Matches(doc) {
		out.Set(key, doc)
	}
	return out, nil
}

func (v *DocumentsView) getDocumentsMatchingCollectionQuery(query model.Query) (*model.DocumentMap, error) {
	results, err := v.remoteDocuments.GetMatching(query)
	if err != nil {
		return nil, err
	}
	batches, err := v.mutationQueue.AllBatchesAffectingQuery(query)
	if err != nil {
		return nil, err
	}
	for _, batch := range batches {
		for _, m := range batch.Mutations {
			key := m.Key()
			if !query.Path.IsImmediateParentOf(key.Path()) {
				continue
			}
			var baseDoc model.MaybeDocument
			if doc, ok := results.Get(key); ok {
				baseDoc = doc
			}
			mutated := m.ApplyToLocalView(baseDoc, batch.LocalWriteTime)
			if doc, ok := mutated.(*model.Document); ok {
				results.Set(key, doc)
			} else {
				results.Delete(key)
			}
		}
	}
	// Mutations may have pushed documents out of the query's filters.
	for _, doc := range results.Values() {
		if !query.Matches(doc) {
			results.Delete(doc.DocKey)
		}
	}
	return results, nil
}
