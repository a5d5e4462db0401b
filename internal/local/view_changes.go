package local

import (
	"github.com/codetrek/syntrix-client/pkg/model"
)

// WriteResult is what writeLocally hands back: the batch's ID and the new
// local view of every key the batch touches.
type WriteResult struct {
	BatchID int
	Changes *model.MaybeDocumentMap
}

// ViewChanges reports which keys a target's user-facing view gained or lost.
// Keys in a visible view are pinned so garbage collection cannot evict them
// out from under the UI.
type ViewChanges struct {
	TargetID int
	Added    model.KeySet
	Removed  model.KeySet
}

func NewViewChanges(targetID int, added, removed []model.DocumentKey) ViewChanges {
	return ViewChanges{
		TargetID: targetID,
		Added:    model.NewKeySet(added...),
		Removed:  model.NewKeySet(removed...),
	}
}
