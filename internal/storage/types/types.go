package types

import (
	"time"

	"github.com/codetrek/syntrix-client/internal/auth"
	"github.com/codetrek/syntrix-client/internal/mutation"
	"github.com/codetrek/syntrix-client/pkg/model"
)

// RemoteDocumentCache stores the latest server-known state of each document:
// present documents, tombstones, and unknown documents. No mutation overlay is
// applied at this layer.
type RemoteDocumentCache interface {
	// Add overwrites the entry for the document's key unconditionally.
	// Callers enforce version monotonicity.
	Add(doc model.MaybeDocument) error

	// Remove drops the entry for key, if any.
	Remove(key model.DocumentKey) error

	// Get returns the entry for key, or nil when nothing is known.
	Get(key model.DocumentKey) (model.MaybeDocument, error)

	// GetAll fetches entries for all keys; absent keys are omitted.
	GetAll(keys []model.DocumentKey) (*model.MaybeDocumentMap, error)

	// GetMatching returns present documents in the query's scope, in path
	// order, using a path-prefix index.
	GetMatching(query model.Query) (*model.DocumentMap, error)
}

// MutationQueue is the per-user ordered log of not-yet-acknowledged batches.
type MutationQueue interface {
	// Start loads queue metadata (the next batch ID). The stream token is
	// read on demand by LastStreamToken.
	Start() error

	IsEmpty() (bool, error)

	// AddBatch appends a batch with the next batch ID.
	AddBatch(localWriteTime time.Time, mutations []mutation.Mutation) (*mutation.Batch, error)

	// LookupBatch returns the batch with the given ID, or nil.
	LookupBatch(batchID int) (*mutation.Batch, error)

	// NextBatchAfter returns the first batch with an ID greater than
	// batchID, or nil. Pass mutation.BatchIDUnknown for the head.
	NextBatchAfter(batchID int) (*mutation.Batch, error)

	// AllBatches returns every pending batch in insertion order.
	AllBatches() ([]*mutation.Batch, error)

	// AllBatchesAffectingKey returns, in insertion order, the pending
	// batches with at least one mutation targeting key.
	AllBatchesAffectingKey(key model.DocumentKey) ([]*mutation.Batch, error)

	// AllBatchesAffectingQuery returns, in insertion order, the pending
	// batches with at least one mutation inside the query's path scope.
	AllBatchesAffectingQuery(query model.Query) ([]*mutation.Batch, error)

	// RemoveBatch removes the batch. Only the head may be removed.
	RemoveBatch(batch *mutation.Batch) error

	// ContainsKey reports whether any pending batch targets key.
	ContainsKey(key model.DocumentKey) (bool, error)

	LastStreamToken() ([]byte, error)
	SetLastStreamToken(token []byte) error
}

// QueryCache is the registry of targets: their queries, resume state, and the
// set of document keys each target has synced.
type QueryCache interface {
	// AllocateTargetID hands out the next target ID. IDs are even and start
	// at 2; 0 and 1 are reserved, odd IDs belong to limbo resolution.
	AllocateTargetID() (int, error)

	AddQueryData(data *QueryData) error
	UpdateQueryData(data *QueryData) error
	RemoveQueryData(data *QueryData) error

	// GetQueryData looks a target up by the query's canonical form.
	GetQueryData(query model.Query) (*QueryData, error)

	TargetCount() (int, error)

	AddMatchingKeys(keys []model.DocumentKey, targetID int) error
	RemoveMatchingKeys(keys []model.DocumentKey, targetID int) error
	RemoveMatchingKeysForTarget(targetID int) error
	MatchingKeysForTarget(targetID int) (model.KeySet, error)

	// ContainsKey reports whether any target has synced key.
	ContainsKey(key model.DocumentKey) (bool, error)

	LastRemoteSnapshotVersion() (model.SnapshotVersion, error)
	SetLastRemoteSnapshotVersion(version model.SnapshotVersion) error
}

// Persistence owns the component caches and the transaction discipline: every
// mutating public operation of the local store runs inside exactly one
// transaction, and either all component writes commit or none do.
type Persistence interface {
	Start() error
	Shutdown() error

	RemoteDocuments() RemoteDocumentCache

	// MutationQueue returns the queue scoped to the given user, creating it
	// on first use.
	MutationQueue(user auth.User) MutationQueue

	Queries() QueryCache

	// RunTransaction executes fn inside a write transaction. An error from
	// fn is returned as-is. The SQLite implementation rolls every component
	// write back on error; the memory implementation keeps no undo log, so
	// writes made before the error stay in place. Nesting is forbidden.
	RunTransaction(label string, fn func() error) error
}
