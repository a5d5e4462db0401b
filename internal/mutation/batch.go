package mutation

import (
	"time"

	"github.com/codetrek/syntrix-client/pkg/model"
)

// BatchIDUnknown sorts before every real batch ID.
const BatchIDUnknown = -1

// Batch is an ordered group of mutations written together. Batches are issued
// with strictly increasing IDs per user and acknowledged or rejected only from
// the head of the queue.
type Batch struct {
	BatchID        int
	LocalWriteTime time.Time
	Mutations      []Mutation
}

// Keys returns the union of the mutations' target keys.
func (b *Batch) Keys() model.KeySet {
	keys := model.NewKeySet()
	for _, m := range b.Mutations {
		keys.Add(m.Key())
	}
	return keys
}

// ApplyToLocalView overlays every mutation in the batch that targets key, in
// order, so later mutations see the output of earlier ones.
func (b *Batch) ApplyToLocalView(key model.DocumentKey, maybeDoc model.MaybeDocument) model.MaybeDocument {
	for _, m := range b.Mutations {
		if m.Key() == key {
			maybeDoc = m.ApplyToLocalView(maybeDoc, b.LocalWriteTime)
		}
	}
	return maybeDoc
}

// BatchResult is the server's acknowledgement of a whole batch.
type BatchResult struct {
	Batch           *Batch
	CommitVersion   model.SnapshotVersion
	MutationResults []Result
	StreamToken     []byte
}

// NewBatchResult pairs a batch with its per-mutation results. Results are
// padded with the commit version when the server sends fewer than one per
// mutation.
func NewBatchResult(batch *Batch, commitVersion model.SnapshotVersion, results []Result, streamToken []byte) *BatchResult {
	padded := make([]Result, len(batch.Mutations))
	for i := range padded {
		if i < len(results) {
			padded[i] = results[i]
		} else {
			padded[i] = Result{Version: commitVersion}
		}
	}
	return &BatchResult{
		Batch:           batch,
		CommitVersion:   commitVersion,
		MutationResults: padded,
		StreamToken:     streamToken,
	}
}
