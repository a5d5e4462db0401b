package memory

import (
	"fmt"
	"sort"
	"time"

	"github.com/codetrek/syntrix-client/internal/mutation"
	"github.com/codetrek/syntrix-client/pkg/model"
)

// mutationQueue is the per-user ordered batch log. A secondary index from key
// to batch IDs keeps AllBatchesAffectingKey fast.
type mutationQueue struct {
	batches     []*mutation.Batch
	nextBatchID int
	keyIndex    map[model.DocumentKey]map[int]struct{}
	streamToken []byte
}

func newMutationQueue() *mutationQueue {
	return &mutationQueue{
		nextBatchID: 1,
		keyIndex:    map[model.DocumentKey]map[int]struct{}{},
	}
}

func (q *mutationQueue) Start() error {
	return nil
}

func (q *mutationQueue) IsEmpty() (bool, error) {
	return len(q.batches) == 0, nil
}

func (q *mutationQueue) AddBatch(localWriteTime time.Time, mutations []mutation.Mutation) (*mutation.Batch, error) {
	batch := &mutation.Batch{
		BatchID:        q.nextBatchID,
		LocalWriteTime: localWriteTime,
		Mutations:      mutations,
	}
	q.nextBatchID++
	q.batches = append(q.batches, batch)
	for key := range batch.Keys() {
		ids, ok := q.keyIndex[key]
		if !ok {
			ids = map[int]struct{}{}
			q.keyIndex[key] = ids
		}
		ids[batch.BatchID] = struct{}{}
	}
	return batch, nil
}

func (q *mutationQueue) LookupBatch(batchID int) (*mutation.Batch, error) {
	for _, b := range q.batches {
		if b.BatchID == batchID {
			return b, nil
		}
	}
	return nil, nil
}

func (q *mutationQueue) NextBatchAfter(batchID int) (*mutation.Batch, error) {
	for _, b := range q.batches {
		if b.BatchID > batchID {
			return b, nil
		}
	}
	return nil, nil
}

func (q *mutationQueue) AllBatches() ([]*mutation.Batch, error) {
	out := make([]*mutation.Batch, len(q.batches))
	copy(out, q.batches)
	return out, nil
}

func (q *mutationQueue) AllBatchesAffectingKey(key model.DocumentKey) ([]*mutation.Batch, error) {
	ids := q.keyIndex[key]
	if len(ids) == 0 {
		return nil, nil
	}
	sorted := make([]int, 0, len(ids))
	for id := range ids {
		sorted = append(sorted, id)
	}
	sort.Ints(sorted)
	out := make([]*mutation.Batch, 0, len(sorted))
	for _, id := range sorted {
		batch, err := q.LookupBatch(id)
		if err != nil {
			return nil, err
		}
		if batch != nil {
			out = append(out, batch)
		}
	}
	return out, nil
}

func (q *mutationQueue) AllBatchesAffectingQuery(query model.Query) ([]*mutation.Batch, error) {
	ids := map[int]struct{}{}
	for key, batchIDs := range q.keyIndex {
		if !query.MatchesPath(key) {
			continue
		}
		for id := range batchIDs {
			ids[id] = struct{}{}
		}
	}
	sorted := make([]int, 0, len(ids))
	for id := range ids {
		sorted = append(sorted, id)
	}
	sort.Ints(sorted)
	out := make([]*mutation.Batch, 0, len(sorted))
	for _, id := range sorted {
		batch, err := q.LookupBatch(id)
		if err != nil {
			return nil, err
		}
		if batch != nil {
			out = append(out, batch)
		}
	}
	return out, nil
}

func (q *mutationQueue) RemoveBatch(batch *mutation.Batch) error {
	if len(q.batches) == 0 || q.batches[0].BatchID != batch.BatchID {
		return fmt.Errorf("%w: can only remove the first entry of the mutation queue", model.ErrPreconditionFailed)
	}
	q.batches = q.batches[1:]
	for key := range batch.Keys() {
		ids := q.keyIndex[key]
		delete(ids, batch.BatchID)
		if len(ids) == 0 {
			delete(q.keyIndex, key)
		}
	}
	return nil
}

func (q *mutationQueue) ContainsKey(key model.DocumentKey) (bool, error) {
	return len(q.keyIndex[key]) > 0, nil
}

func (q *mutationQueue) LastStreamToken() ([]byte, error) {
	return q.streamToken, nil
}

func (q *mutationQueue) SetLastStreamToken(token []byte) error {
	q.streamToken = append([]byte(nil), token...)
	return nil
}
