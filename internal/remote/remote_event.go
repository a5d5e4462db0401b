// Package remote defines the shapes the watch stream hands to the local
// store. The wire protocol itself lives elsewhere; these are the in-process
// aggregates.
package remote

import (
	"github.com/codetrek/syntrix-client/pkg/model"
)

// TargetChange is one target's slice of a remote event.
type TargetChange struct {
	// ResumeToken identifies the stream position for this target. Empty
	// tokens never overwrite a persisted one.
	ResumeToken []byte

	// SnapshotVersion is the per-target consistency point, when the server
	// sent one; zero means "use the event's version".
	SnapshotVersion model.SnapshotVersion

	// Current is set once the server has delivered a consistent snapshot
	// for the target.
	Current bool

	// AddedDocuments are keys newly matching the target.
	AddedDocuments model.KeySet
	// ModifiedDocuments are keys already synced whose contents changed.
	ModifiedDocuments model.KeySet
	// RemovedDocuments are keys explicitly removed from the target.
	RemovedDocuments model.KeySet
}

func NewTargetChange() *TargetChange {
	return &TargetChange{
		AddedDocuments:    model.NewKeySet(),
		ModifiedDocuments: model.NewKeySet(),
		RemovedDocuments:  model.NewKeySet(),
	}
}

// RemoteEvent is an aggregated, consistent view of one watch snapshot.
type RemoteEvent struct {
	// SnapshotVersion is the version the whole event is consistent at.
	SnapshotVersion model.SnapshotVersion

	// TargetChanges maps target IDs to their per-target delta. IDs unknown
	// to the local store are tolerated and ignored there.
	TargetChanges map[int]*TargetChange

	// DocumentUpdates carries the new state of every document in the event.
	DocumentUpdates *model.MaybeDocumentMap

	// DocumentTargets records which targets each document update was
	// attributed to. An update attributed only to unknown targets is an
	// orphan and is discarded by the local store.
	DocumentTargets map[model.DocumentKey]map[int]struct{}

	// LimboDocumentChanges are keys whose updates arrived via limbo
	// resolution targets.
	LimboDocumentChanges model.KeySet
}

func NewRemoteEvent(snapshotVersion model.SnapshotVersion) *RemoteEvent {
	return &RemoteEvent{
		SnapshotVersion:      snapshotVersion,
		TargetChanges:        map[int]*TargetChange{},
		DocumentUpdates:      model.NewMaybeDocumentMap(),
		DocumentTargets:      map[model.DocumentKey]map[int]struct{}{},
		LimboDocumentChanges: model.NewKeySet(),
	}
}

// AddDocumentUpdate records a document update attributed to the given
// targets.
func (e *RemoteEvent) AddDocumentUpdate(doc model.MaybeDocument, targetIDs ...int) {
	key := doc.Key()
	e.DocumentUpdates.Set(key, doc)
	attribution, ok := e.DocumentTargets[key]
	if !ok {
		attribution = map[int]struct{}{}
		e.DocumentTargets[key] = attribution
	}
	for _, id := range targetIDs {
		attribution[id] = struct{}{}
	}
}

// TargetChange returns the delta for a target, creating it on first use.
func (e *RemoteEvent) TargetChange(targetID int) *TargetChange {
	change, ok := e.TargetChanges[targetID]
	if !ok {
		change = NewTargetChange()
		e.TargetChanges[targetID] = change
	}
	return change
}
