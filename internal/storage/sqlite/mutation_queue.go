package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/codetrek/syntrix-client/internal/mutation"
	"github.com/codetrek/syntrix-client/pkg/model"
)

// mutationQueue persists one user's batch log. Batch rows carry the encoded
// mutations; document_mutations is the key → batch index.
type mutationQueue struct {
	p           *Persistence
	uid         string
	nextBatchID int
	started     bool
}

func (q *mutationQueue) Start() error {
	if q.started {
		return nil
	}
	row := q.p.querier().QueryRow(
		`SELECT COALESCE(MAX(batch_id), 0) FROM mutation_batches WHERE uid = ?`, q.uid)
	var highest int
	if err := row.Scan(&highest); err != nil {
		return fmt.Errorf("failed to load mutation queue for %q: %w", q.uid, err)
	}
	q.nextBatchID = highest + 1
	q.started = true
	return nil
}

func (q *mutationQueue) IsEmpty() (bool, error) {
	row := q.p.querier().QueryRow(`SELECT COUNT(*) FROM mutation_batches WHERE uid = ?`, q.uid)
	var count int
	if err := row.Scan(&count); err != nil {
		return false, fmt.Errorf("failed to count batches: %w", err)
	}
	return count == 0, nil
}

func (q *mutationQueue) AddBatch(localWriteTime time.Time, mutations []mutation.Mutation) (*mutation.Batch, error) {
	if err := q.Start(); err != nil {
		return nil, err
	}
	batch := &mutation.Batch{
		BatchID:        q.nextBatchID,
		LocalWriteTime: localWriteTime,
		Mutations:      mutations,
	}
	encoded, err := mutation.EncodeMutations(mutations)
	if err != nil {
		return nil, err
	}
	if _, err := q.p.querier().Exec(
		`INSERT INTO mutation_batches (uid, batch_id, local_write_time_millis, mutations) VALUES (?, ?, ?, ?)`,
		q.uid, batch.BatchID, localWriteTime.UnixMilli(), encoded); err != nil {
		return nil, fmt.Errorf("failed to write batch: %w", err)
	}
	for key := range batch.Keys() {
		if _, err := q.p.querier().Exec(
			`INSERT INTO document_mutations (uid, path, batch_id) VALUES (?, ?, ?)`,
			q.uid, key.String(), batch.BatchID); err != nil {
			return nil, fmt.Errorf("failed to index batch: %w", err)
		}
	}
	q.nextBatchID++
	return batch, nil
}

func (q *mutationQueue) scanBatch(row *sql.Row) (*mutation.Batch, error) {
	var batchID int
	var writeTimeMillis int64
	var encoded []byte
	if err := row.Scan(&batchID, &writeTimeMillis, &encoded); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read batch: %w", err)
	}
	mutations, err := mutation.DecodeMutations(encoded)
	if err != nil {
		return nil, err
	}
	return &mutation.Batch{
		BatchID:        batchID,
		LocalWriteTime: time.UnixMilli(writeTimeMillis).UTC(),
		Mutations:      mutations,
	}, nil
}

func (q *mutationQueue) LookupBatch(batchID int) (*mutation.Batch, error) {
	return q.scanBatch(q.p.querier().QueryRow(
		`SELECT batch_id, local_write_time_millis, mutations FROM mutation_batches WHERE uid = ? AND batch_id = ?`,
		q.uid, batchID))
}

func (q *mutationQueue) NextBatchAfter(batchID int) (*mutation.Batch, error) {
	return q.scanBatch(q.p.querier().QueryRow(
		`SELECT batch_id, local_write_time_millis, mutations FROM mutation_batches WHERE uid = ? AND batch_id > ? ORDER BY batch_id LIMIT 1`,
		q.uid, batchID))
}

func (q *mutationQueue) batchesWhere(clause string, args ...interface{}) ([]*mutation.Batch, error) {
	rows, err := q.p.querier().Query(
		`SELECT batch_id, local_write_time_millis, mutations FROM mutation_batches WHERE `+clause+` ORDER BY batch_id`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list batches: %w", err)
	}
	defer rows.Close()
	var out []*mutation.Batch
	for rows.Next() {
		var batchID int
		var writeTimeMillis int64
		var encoded []byte
		if err := rows.Scan(&batchID, &writeTimeMillis, &encoded); err != nil {
			return nil, fmt.Errorf("failed to scan batch row: %w", err)
		}
		mutations, err := mutation.DecodeMutations(encoded)
		if err != nil {
			return nil, err
		}
		out = append(out, &mutation.Batch{
			BatchID:        batchID,
			LocalWriteTime: time.UnixMilli(writeTimeMillis).UTC(),
			Mutations:      mutations,
		})
	}
	return out, rows.Err()
}

func (q *mutationQueue) AllBatches() ([]*mutation.Batch, error) {
	return q.batchesWhere(`uid = ?`, q.uid)
}

func (q *mutationQueue) AllBatchesAffectingKey(key model.DocumentKey) ([]*mutation.Batch, error) {
	return q.batchesWhere(
		`uid = ? AND batch_id IN (SELECT batch_id FROM document_mutations WHERE uid = ? AND path = ?)`,
		q.uid, q.uid, key.String())
}

func (q *mutationQueue) AllBatchesAffectingQuery(query model.Query) ([]*mutation.Batch, error) {
	if query.IsDocumentQuery() {
		key, err := query.DocumentKey()
		if err != nil {
			return nil, err
		}
		return q.AllBatchesAffectingKey(key)
	}
	// Index rows for direct children of the collection sit in a contiguous
	// path range; deeper descendants are filtered out after the scan.
	prefix := query.Path.String() + "/"
	batches, err := q.batchesWhere(
		`uid = ? AND batch_id IN (SELECT batch_id FROM document_mutations WHERE uid = ? AND path > ? AND path < ?)`,
		q.uid, q.uid, prefix, prefix+"￿")
	if err != nil {
		return nil, err
	}
	out := batches[:0]
	for _, batch := range batches {
		for key := range batch.Keys() {
			if query.MatchesPath(key) {
				out = append(out, batch)
				break
			}
		}
	}
	return out, nil
}

func (q *mutationQueue) RemoveBatch(batch *mutation.Batch) error {
	head, err := q.NextBatchAfter(mutation.BatchIDUnknown)
	if err != nil {
		return err
	}
	if head == nil || head.BatchID != batch.BatchID {
		return fmt.Errorf("%w: can only remove the first entry of the mutation queue", model.ErrPreconditionFailed)
	}
	if _, err := q.p.querier().Exec(
		`DELETE FROM mutation_batches WHERE uid = ? AND batch_id = ?`, q.uid, batch.BatchID); err != nil {
		return fmt.Errorf("failed to remove batch: %w", err)
	}
	if _, err := q.p.querier().Exec(
		`DELETE FROM document_mutations WHERE uid = ? AND batch_id = ?`, q.uid, batch.BatchID); err != nil {
		return fmt.Errorf("failed to unindex batch: %w", err)
	}
	return nil
}

func (q *mutationQueue) ContainsKey(key model.DocumentKey) (bool, error) {
	row := q.p.querier().QueryRow(
		`SELECT COUNT(*) FROM document_mutations WHERE uid = ? AND path = ?`, q.uid, key.String())
	var count int
	if err := row.Scan(&count); err != nil {
		return false, fmt.Errorf("failed to probe document mutations: %w", err)
	}
	return count > 0, nil
}

func (q *mutationQueue) LastStreamToken() ([]byte, error) {
	row := q.p.querier().QueryRow(`SELECT last_stream_token FROM mutation_queues WHERE uid = ?`, q.uid)
	var token []byte
	if err := row.Scan(&token); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read stream token: %w", err)
	}
	return token, nil
}

func (q *mutationQueue) SetLastStreamToken(token []byte) error {
	if _, err := q.p.querier().Exec(
		`INSERT OR REPLACE INTO mutation_queues (uid, last_stream_token) VALUES (?, ?)`, q.uid, token); err != nil {
		return fmt.Errorf("failed to write stream token: %w", err)
	}
	return nil
}
