package remote

import (
	"github.com/codetrek/syntrix-client/internal/storage/types"
	"github.com/codetrek/syntrix-client/pkg/model"
)

// TargetMetadataProvider supplies the aggregator with what the client already
// knows about its targets. The local store implements it.
type TargetMetadataProvider interface {
	// QueryDataForTarget returns the registration for an active target, or
	// nil for targets the client is not listening to.
	QueryDataForTarget(targetID int) *types.QueryData

	// RemoteKeysForTarget returns the keys already synced to the target.
	RemoteKeysForTarget(targetID int) model.KeySet
}

// WatchTargetChangeType enumerates the states the stream reports per target.
type WatchTargetChangeType int

const (
	WatchTargetNoChange WatchTargetChangeType = iota
	WatchTargetAdded
	WatchTargetRemoved
	WatchTargetCurrent
	WatchTargetReset
)

// WatchTargetChange is a per-target state change from the stream.
type WatchTargetChange struct {
	ChangeType  WatchTargetChangeType
	TargetIDs   []int
	ResumeToken []byte
}

// WatchDocumentChange is a document update from the stream, tagged with the
// targets it applies to and those it no longer matches.
type WatchDocumentChange struct {
	UpdatedTargetIDs []int
	RemovedTargetIDs []int
	Key              model.DocumentKey
	NewDocument      model.MaybeDocument
}

type targetState struct {
	resumeToken []byte
	current     bool
	added       model.KeySet
	modified    model.KeySet
	removed     model.KeySet
}

func newTargetState() *targetState {
	return &targetState{
		added:    model.NewKeySet(),
		modified: model.NewKeySet(),
		removed:  model.NewKeySet(),
	}
}

// ChangeAggregator folds individual watch changes into one consistent
// RemoteEvent per snapshot version.
type ChangeAggregator struct {
	provider        TargetMetadataProvider
	targetStates    map[int]*targetState
	documentUpdates *model.MaybeDocumentMap
	documentTargets map[model.DocumentKey]map[int]struct{}
}

func NewChangeAggregator(provider TargetMetadataProvider) *ChangeAggregator {
	return &ChangeAggregator{
		provider:        provider,
		targetStates:    map[int]*targetState{},
		documentUpdates: model.NewMaybeDocumentMap(),
		documentTargets: map[model.DocumentKey]map[int]struct{}{},
	}
}

func (a *ChangeAggregator) state(targetID int) *targetState {
	s, ok := a.targetStates[targetID]
	if !ok {
		s = newTargetState()
		a.targetStates[targetID] = s
	}
	return s
}

func (a *ChangeAggregator) isActiveTarget(targetID int) bool {
	return a.provider.QueryDataForTarget(targetID) != nil
}

// HandleTargetChange applies a per-target state change. An empty TargetIDs
// list addresses every target that already has state in the current event;
// active targets not seen since the last CreateRemoteEvent are not addressed.
func (a *ChangeAggregator) HandleTargetChange(change *WatchTargetChange) {
	targetIDs := change.TargetIDs
	if len(targetIDs) == 0 {
		for id := range a.targetStates {
			targetIDs = append(targetIDs, id)
		}
	}
	for _, targetID := range targetIDs {
		if !a.isActiveTarget(targetID) {
			continue
		}
		s := a.state(targetID)
		switch change.ChangeType {
		case WatchTargetCurrent:
			s.current = true
		case WatchTargetReset:
			// The server forgot the target's state; resync from scratch.
			for key := range a.provider.RemoteKeysForTarget(targetID) {
				s.removed.Add(key)
			}
			s.added = model.NewKeySet()
			s.modified = model.NewKeySet()
		case WatchTargetRemoved:
			delete(a.targetStates, targetID)
			continue
		}
		if len(change.ResumeToken) > 0 {
			s.resumeToken = append([]byte(nil), change.ResumeToken...)
		}
	}
}

// HandleDocumentChange applies a document update to every target it names.
func (a *ChangeAggregator) HandleDocumentChange(change *WatchDocumentChange) {
	_, isDocument := change.NewDocument.(*model.Document)
	for _, targetID := range change.UpdatedTargetIDs {
		if !a.isActiveTarget(targetID) {
			continue
		}
		s := a.state(targetID)
		switch {
		case !isDocument:
			// A tombstone means the document no longer matches the target.
			s.removed.Add(change.Key)
			s.added.Remove(change.Key)
			s.modified.Remove(change.Key)
		case a.provider.RemoteKeysForTarget(targetID).Contains(change.Key):
			s.modified.Add(change.Key)
		default:
			s.added.Add(change.Key)
		}
		a.recordUpdate(change.Key, change.NewDocument, targetID)
	}
	for _, targetID := range change.RemovedTargetIDs {
		if !a.isActiveTarget(targetID) {
			continue
		}
		s := a.state(targetID)
		s.removed.Add(change.Key)
		s.added.Remove(change.Key)
		s.modified.Remove(change.Key)
		if change.NewDocument != nil {
			a.recordUpdate(change.Key, change.NewDocument, targetID)
		}
	}
}

func (a *ChangeAggregator) recordUpdate(key model.DocumentKey, doc model.MaybeDocument, targetID int) {
	if doc != nil {
		a.documentUpdates.Set(key, doc)
	}
	attribution, ok := a.documentTargets[key]
	if !ok {
		attribution = map[int]struct{}{}
		a.documentTargets[key] = attribution
	}
	attribution[targetID] = struct{}{}
}

// CreateRemoteEvent seals the accumulated changes into an event consistent at
// the given version and resets the per-event state.
func (a *ChangeAggregator) CreateRemoteEvent(snapshotVersion model.SnapshotVersion) *RemoteEvent {
	event := NewRemoteEvent(snapshotVersion)
	for targetID, s := range a.targetStates {
		change := event.TargetChange(targetID)
		change.ResumeToken = s.resumeToken
		change.Current = s.current
		change.AddedDocuments = s.added
		change.ModifiedDocuments = s.modified
		change.RemovedDocuments = s.removed
		if qd := a.provider.QueryDataForTarget(targetID); qd != nil && qd.Purpose == types.PurposeLimboResolution {
			for key := range s.added {
				event.LimboDocumentChanges.Add(key)
			}
			for key := range s.modified {
				event.LimboDocumentChanges.Add(key)
			}
		}
	}
	event.DocumentUpdates = a.documentUpdates
	event.DocumentTargets = a.documentTargets

	a.targetStates = map[int]*targetState{}
	a.documentUpdates = model.NewMaybeDocumentMap()
	a.documentTargets = map[model.DocumentKey]map[int]struct{}{}
	return event
}
