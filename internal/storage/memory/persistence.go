// Package memory implements the in-memory persistence regime. Nothing
// survives a restart; the eager garbage collector keeps the footprint tight.
package memory

import (
	"fmt"

	"github.com/codetrek/syntrix-client/internal/auth"
	"github.com/codetrek/syntrix-client/internal/storage/types"
)

// Persistence keeps every component cache in process memory. The local store
// executor is single-threaded, so there is no locking; transactions exist only
// to honor the one-transaction-per-operation discipline.
type Persistence struct {
	remoteDocuments *remoteDocumentCache
	queues          map[string]*mutationQueue
	queryCache      *queryCache
	inTransaction   bool
	started         bool
}

func NewPersistence() *Persistence {
	return &Persistence{
		remoteDocuments: newRemoteDocumentCache(),
		queues:          map[string]*mutationQueue{},
		queryCache:      newQueryCache(),
	}
}

func (p *Persistence) Start() error {
	p.started = true
	return nil
}

func (p *Persistence) Shutdown() error {
	p.started = false
	return nil
}

func (p *Persistence) RemoteDocuments() types.RemoteDocumentCache {
	return p.remoteDocuments
}

func (p *Persistence) MutationQueue(user auth.User) types.MutationQueue {
	queue, ok := p.queues[user.QueueKey()]
	if !ok {
		queue = newMutationQueue()
		p.queues[user.QueueKey()] = queue
	}
	return queue
}

func (p *Persistence) Queries() types.QueryCache {
	return p.queryCache
}

func (p *Persistence) RunTransaction(label string, fn func() error) error {
	if p.inTransaction {
		return fmt.Errorf("nested transaction in %q", label)
	}
	p.inTransaction = true
	defer func() { p.inTransaction = false }()
	// There is no undo log: writes fn made before returning an error stay in
	// place. Memory writes themselves cannot fail, and the local store runs
	// its checks before its first write, so its operations fail cleanly.
	return fn()
}
