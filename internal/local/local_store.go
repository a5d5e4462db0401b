// Package local implements the client-side local store: the authoritative
// cache that overlays pending writes on the last known server state, keeps
// listener resume state, and reclaims documents nothing references anymore.
package local

import (
	"fmt"
	"log"
	"time"

	"github.com/codetrek/syntrix-client/internal/auth"
	"github.com/codetrek/syntrix-client/internal/mutation"
	"github.com/codetrek/syntrix-client/internal/remote"
	"github.com/codetrek/syntrix-client/internal/storage/types"
	"github.com/codetrek/syntrix-client/pkg/model"
)

// Store coordinates the remote document cache, the mutation queue, the target
// registry and the local view. All methods run on one serial executor; each
// public operation is atomic end-to-end.
type Store struct {
	persistence     types.Persistence
	remoteDocuments types.RemoteDocumentCache
	mutationQueue   types.MutationQueue
	queryCache      types.QueryCache
	localDocuments  *DocumentsView

	gc GarbageCollector

	// localViewReferences pins keys visible in a target's user-facing view.
	localViewReferences *ReferenceSet

	// targets are the currently allocated targets, by ID.
	targets map[int]*types.QueryData

	sequenceNumber int64
}

type garbageSourceFunc func(key model.DocumentKey) (bool, error)

func (f garbageSourceFunc) ContainsKey(key model.DocumentKey) (bool, error) {
	return f(key)
}

func NewStore(persistence types.Persistence, gc GarbageCollector, user auth.User) *Store {
	s := &Store{
		persistence:         persistence,
		remoteDocuments:     persistence.RemoteDocuments(),
		mutationQueue:       persistence.MutationQueue(user),
		queryCache:          persistence.Queries(),
		gc:                  gc,
		localViewReferences: NewReferenceSet(),
		targets:             map[int]*types.QueryData{},
	}
	s.localDocuments = NewDocumentsView(s.remoteDocuments, s.mutationQueue)

	// The three reference sources. Closures so a user change rebinding the
	// queue is picked up transparently.
	gc.AddGarbageSource(garbageSourceFunc(func(key model.DocumentKey) (bool, error) {
		return s.mutationQueue.ContainsKey(key)
	}))
	gc.AddGarbageSource(garbageSourceFunc(func(key model.DocumentKey) (bool, error) {
		return s.queryCache.ContainsKey(key)
	}))
	gc.AddGarbageSource(s.localViewReferences)
	return s
}

// Start loads queue metadata. It must run once before any other operation.
func (s *Store) Start() error {
	return s.persistence.RunTransaction("Start LocalStore", func() error {
		return s.mutationQueue.Start()
	})
}

// WriteLocally appends a batch to the queue and returns the new local view of
// every key it touches.
func (s *Store) WriteLocally(mutations []mutation.Mutation) (*WriteResult, error) {
	var result *WriteResult
	err := s.persistence.RunTransaction("Locally write mutations", func() error {
		batch, err := s.mutationQueue.AddBatch(time.Now(), mutations)
		if err != nil {
			return err
		}
		changes, err := s.localDocuments.GetDocuments(batch.Keys().Sorted())
		if err != nil {
			return err
		}
		result = &WriteResult{BatchID: batch.BatchID, Changes: changes}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// AcknowledgeBatch removes the acknowledged batch from the head of the queue,
// folds the acknowledged values into the remote baseline where the cache is
// not already newer, and returns the resulting view changes.
func (s *Store) AcknowledgeBatch(batchResult *mutation.BatchResult) (*model.MaybeDocumentMap, error) {
	var changes *model.MaybeDocumentMap
	err := s.persistence.RunTransaction("Acknowledge batch", func() error {
		batch := batchResult.Batch
		head, err := s.mutationQueue.NextBatchAfter(mutation.BatchIDUnknown)
		if err != nil {
			return err
		}
		if head == nil || head.BatchID != batch.BatchID {
			return fmt.Errorf("%w: can only acknowledge the first batch in the mutation queue", model.ErrPreconditionFailed)
		}
		if err := s.applyBatchResult(batchResult); err != nil {
			return err
		}
		if err := s.mutationQueue.RemoveBatch(batch); err != nil {
			return err
		}
		if err := s.mutationQueue.SetLastStreamToken(batchResult.StreamToken); err != nil {
			return err
		}
		keys := batch.Keys()
		s.gc.AddPotentialGarbageKeys(keys.Sorted()...)
		changes, err = s.localDocuments.GetDocuments(keys.Sorted())
		if err != nil {
			return err
		}
		return s.collectGarbage()
	})
	if err != nil {
		return nil, err
	}
	return changes, nil
}

func (s *Store) applyBatchResult(batchResult *mutation.BatchResult) error {
	batch := batchResult.Batch
	for i, m := range batch.Mutations {
		existing, err := s.remoteDocuments.Get(m.Key())
		if err != nil {
			return err
		}
		ackDoc := m.ApplyToRemoteDocument(existing, batchResult.MutationResults[i])
		if ackDoc == nil {
			continue
		}
		// Skip when the cache has already seen a newer remote state; the
		// acknowledged value is stale by then.
		if existing == nil || ackDoc.Version().After(existing.Version()) {
			if err := s.remoteDocuments.Add(ackDoc); err != nil {
				return err
			}
		}
	}
	return nil
}

// RejectBatch drops the rejected batch from the head of the queue. Its
// overlays vanish; nothing is written to the remote baseline.
func (s *Store) RejectBatch(batchID int) (*model.MaybeDocumentMap, error) {
	var changes *model.MaybeDocumentMap
	err := s.persistence.RunTransaction("Reject batch", func() error {
		batch, err := s.mutationQueue.LookupBatch(batchID)
		if err != nil {
			return err
		}
		if batch == nil {
			return fmt.Errorf("%w: attempt to reject nonexistent batch %d", model.ErrPreconditionFailed, batchID)
		}
		if err := s.mutationQueue.RemoveBatch(batch); err != nil {
			return err
		}
		keys := batch.Keys()
		s.gc.AddPotentialGarbageKeys(keys.Sorted()...)
		changes, err = s.localDocuments.GetDocuments(keys.Sorted())
		if err != nil {
			return err
		}
		return s.collectGarbage()
	})
	if err != nil {
		return nil, err
	}
	return changes, nil
}

// ApplyRemoteEvent folds a watch snapshot into the store: target resume
// state, matching-key membership, and the remote baseline. Stale and orphaned
// document updates are dropped silently; they are valid protocol states.
func (s *Store) ApplyRemoteEvent(event *remote.RemoteEvent) (*model.MaybeDocumentMap, error) {
	var changes *model.MaybeDocumentMap
	err := s.persistence.RunTransaction("Apply remote event", func() error {
		// A reverted stream is rejected before anything else is written.
		if err := s.advanceRemoteVersion(event.SnapshotVersion); err != nil {
			return err
		}
		if err := s.applyTargetChanges(event); err != nil {
			return err
		}
		changedKeys, err := s.applyDocumentUpdates(event)
		if err != nil {
			return err
		}
		changes, err = s.localDocuments.GetDocuments(changedKeys.Sorted())
		if err != nil {
			return err
		}
		return s.collectGarbage()
	})
	if err != nil {
		return nil, err
	}
	return changes, nil
}

func (s *Store) applyTargetChanges(event *remote.RemoteEvent) error {
	for targetID, change := range event.TargetChanges {
		queryData, ok := s.targets[targetID]
		if !ok {
			// Watch may still reference targets released mid-stream.
			continue
		}
		removed := change.RemovedDocuments.Sorted()
		if err := s.queryCache.RemoveMatchingKeys(removed, targetID); err != nil {
			return err
		}
		s.gc.AddPotentialGarbageKeys(removed...)
		// Modified documents are still synced to the target, so they count
		// as matching keys just like newly added ones.
		synced := append(change.AddedDocuments.Sorted(), change.ModifiedDocuments.Sorted()...)
		if err := s.queryCache.AddMatchingKeys(synced, targetID); err != nil {
			return err
		}

		if len(change.ResumeToken) > 0 {
			version := change.SnapshotVersion
			if version.IsMin() {
				version = event.SnapshotVersion
			}
			if version.Before(queryData.SnapshotVersion) {
				version = queryData.SnapshotVersion
			}
			updated := queryData.WithResumeToken(change.ResumeToken, version)
			s.targets[targetID] = updated
			if err := s.queryCache.UpdateQueryData(updated); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Store) applyDocumentUpdates(event *remote.RemoteEvent) (model.KeySet, error) {
	changedKeys := model.NewKeySet()
	for _, key := range event.DocumentUpdates.Keys() {
		doc, _ := event.DocumentUpdates.Get(key)
		if !s.updateIsForAllocatedTarget(event, key) {
			// An update only known targets we never allocated care about
			// is an orphan; caching it would leak it forever.
			continue
		}
		existing, err := s.remoteDocuments.Get(key)
		if err != nil {
			return nil, err
		}
		switch {
		case existing == nil,
			doc.Version().After(existing.Version()),
			doc.Version().Equal(existing.Version()) && upgradesVariant(existing, doc):
			if err := s.remoteDocuments.Add(doc); err != nil {
				return nil, err
			}
		default:
			log.Printf("[LocalStore] Ignoring outdated update for %s (existing version %s, update version %s)",
				key.String(), existing.Version(), doc.Version())
		}
		changedKeys.Add(key)
		s.gc.AddPotentialGarbageKeys(key)
	}
	return changedKeys, nil
}

func (s *Store) updateIsForAllocatedTarget(event *remote.RemoteEvent, key model.DocumentKey) bool {
	for targetID := range event.DocumentTargets[key] {
		if _, ok := s.targets[targetID]; ok {
			return true
		}
	}
	return false
}

// upgradesVariant reports whether an equal-version update still adds
// information: tombstones and unknown documents upgrade to full documents.
func upgradesVariant(existing, update model.MaybeDocument) bool {
	if _, ok := update.(*model.Document); !ok {
		return false
	}
	switch existing.(type) {
	case *model.NoDocument, *model.UnknownDocument:
		return true
	default:
		return false
	}
}

func (s *Store) advanceRemoteVersion(version model.SnapshotVersion) error {
	if version.IsMin() {
		return nil
	}
	last, err := s.queryCache.LastRemoteSnapshotVersion()
	if err != nil {
		return err
	}
	if version.Before(last) {
		return fmt.Errorf("%w: watch stream reverted to previous snapshot (%s < %s)", model.ErrCorruption, version, last)
	}
	return s.queryCache.SetLastRemoteSnapshotVersion(version)
}

// AllocateQuery registers a target for the query, reusing the persisted
// registration (and its resume state) when one exists.
func (s *Store) AllocateQuery(query model.Query) (*types.QueryData, error) {
	var queryData *types.QueryData
	err := s.persistence.RunTransaction("Allocate query", func() error {
		cached, err := s.queryCache.GetQueryData(query)
		if err != nil {
			return err
		}
		if cached != nil {
			queryData = cached
		} else {
			targetID, err := s.queryCache.AllocateTargetID()
			if err != nil {
				return err
			}
			s.sequenceNumber++
			queryData = types.NewQueryData(query, targetID, types.PurposeListen, s.sequenceNumber)
			if err := s.queryCache.AddQueryData(queryData); err != nil {
				return err
			}
		}
		s.targets[queryData.TargetID] = queryData
		return nil
	})
	if err != nil {
		return nil, err
	}
	return queryData, nil
}

// ReleaseQuery deactivates the query's target. Under eager GC the
// registration and its synced keys are removed outright; under deferred GC
// the registration stays inactive so a later allocation resumes where it
// left off.
func (s *Store) ReleaseQuery(query model.Query) error {
	return s.persistence.RunTransaction("Release query", func() error {
		queryData, err := s.queryCache.GetQueryData(query)
		if err != nil {
			return err
		}
		if queryData == nil {
			return fmt.Errorf("%w: attempt to release nonexistent query: %s", model.ErrPreconditionFailed, query.CanonicalString())
		}
		viewKeys := s.localViewReferences.RemoveReferencesForID(queryData.TargetID)
		s.gc.AddPotentialGarbageKeys(viewKeys.Sorted()...)
		delete(s.targets, queryData.TargetID)

		if s.gc.IsEager() {
			matching, err := s.queryCache.MatchingKeysForTarget(queryData.TargetID)
			if err != nil {
				return err
			}
			if err := s.queryCache.RemoveMatchingKeysForTarget(queryData.TargetID); err != nil {
				return err
			}
			if err := s.queryCache.RemoveQueryData(queryData); err != nil {
				return err
			}
			s.gc.AddPotentialGarbageKeys(matching.Sorted()...)
		}
		return s.collectGarbage()
	})
}

// ExecuteQuery runs the query against the local view.
func (s *Store) ExecuteQuery(query model.Query) (*model.DocumentMap, error) {
	return s.localDocuments.GetDocumentsMatchingQuery(query)
}

// NotifyLocalViewChanges updates the view pins: keys a target's view gained
// are held, keys it lost become collectable.
func (s *Store) NotifyLocalViewChanges(viewChanges []ViewChanges) error {
	return s.persistence.RunTransaction("Notify of local view changes", func() error {
		for _, vc := range viewChanges {
			for key := range vc.Added {
				s.localViewReferences.AddReference(key, vc.TargetID)
			}
			for key := range vc.Removed {
				s.localViewReferences.RemoveReference(key, vc.TargetID)
				s.gc.AddPotentialGarbageKeys(key)
			}
		}
		return s.collectGarbage()
	})
}

// ReadDocument returns the local view of key, or nil when nothing is known.
func (s *Store) ReadDocument(key model.DocumentKey) (model.MaybeDocument, error) {
	return s.localDocuments.GetDocument(key)
}

// GetRemoteDocumentKeys returns the keys the server has synced to the target.
func (s *Store) GetRemoteDocumentKeys(targetID int) (model.KeySet, error) {
	return s.queryCache.MatchingKeysForTarget(targetID)
}

// HandleUserChange swaps in the new user's mutation queue and recomputes the
// view for every key either queue touches.
func (s *Store) HandleUserChange(user auth.User) (*model.MaybeDocumentMap, error) {
	var changes *model.MaybeDocumentMap
	err := s.persistence.RunTransaction("Handle user change", func() error {
		oldBatches, err := s.mutationQueue.AllBatches()
		if err != nil {
			return err
		}
		s.mutationQueue = s.persistence.MutationQueue(user)
		if err := s.mutationQueue.Start(); err != nil {
			return err
		}
		newBatches, err := s.mutationQueue.AllBatches()
		if err != nil {
			return err
		}
		s.localDocuments = NewDocumentsView(s.remoteDocuments, s.mutationQueue)

		keys := model.NewKeySet()
		for _, batch := range append(oldBatches, newBatches...) {
			for key := range batch.Keys() {
				keys.Add(key)
			}
		}
		s.gc.AddPotentialGarbageKeys(keys.Sorted()...)
		changes, err = s.localDocuments.GetDocuments(keys.Sorted())
		if err != nil {
			return err
		}
		return s.collectGarbage()
	})
	if err != nil {
		return nil, err
	}
	return changes, nil
}

// CollectGarbage runs a sweep under deferred GC and returns how many
// documents were reclaimed. Under eager GC there is never anything to sweep.
func (s *Store) CollectGarbage() (int, error) {
	deferred, ok := s.gc.(*DeferredGarbageCollector)
	if !ok {
		return 0, nil
	}
	removed := 0
	err := s.persistence.RunTransaction("Collect garbage", func() error {
		garbage, err := deferred.Sweep()
		if err != nil {
			return err
		}
		for key := range garbage {
			if err := s.remoteDocuments.Remove(key); err != nil {
				return err
			}
		}
		removed = garbage.Len()
		return nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

func (s *Store) collectGarbage() error {
	garbage, err := s.gc.CollectGarbage()
	if err != nil {
		return err
	}
	for key := range garbage {
		if err := s.remoteDocuments.Remove(key); err != nil {
			return err
		}
	}
	return nil
}

// QueryDataForTarget implements remote.TargetMetadataProvider.
func (s *Store) QueryDataForTarget(targetID int) *types.QueryData {
	return s.targets[targetID]
}

// RemoteKeysForTarget implements remote.TargetMetadataProvider.
func (s *Store) RemoteKeysForTarget(targetID int) model.KeySet {
	keys, err := s.queryCache.MatchingKeysForTarget(targetID)
	if err != nil {
		log.Printf("[LocalStore] Failed to read matching keys for target %d: %v", targetID, err)
		return model.NewKeySet()
	}
	return keys
}
