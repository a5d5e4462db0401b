// Package sqlite implements the persistent regime on an embedded SQLite
// database. Documents, mutation queues, targets and globals each get a table;
// every local store operation runs in one SQL transaction.
package sqlite

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/mattn/go-sqlite3"

	"github.com/codetrek/syntrix-client/internal/auth"
	"github.com/codetrek/syntrix-client/internal/storage/types"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// querier is the subset of database/sql shared by *sql.DB and *sql.Tx. All
// component reads and writes go through it so they land in the operation's
// transaction when one is open.
type querier interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
	Query(query string, args ...interface{}) (*sql.Rows, error)
	QueryRow(query string, args ...interface{}) *sql.Row
}

// Persistence is the SQLite-backed persistence.
type Persistence struct {
	path            string
	db              *sql.DB
	tx              *sql.Tx
	remoteDocuments *remoteDocumentCache
	queues          map[string]*mutationQueue
	queryCache      *queryCache
}

func NewPersistence(path string) *Persistence {
	p := &Persistence{path: path, queues: map[string]*mutationQueue{}}
	p.remoteDocuments = &remoteDocumentCache{p: p}
	p.queryCache = &queryCache{p: p}
	return p
}

func (p *Persistence) Start() error {
	if err := os.MkdirAll(filepath.Dir(p.path), 0o700); err != nil {
		return fmt.Errorf("failed to create database directory: %w", err)
	}
	db, err := sql.Open("sqlite3", p.path+"?_foreign_keys=on")
	if err != nil {
		return fmt.Errorf("failed to open sqlite database: %w", err)
	}
	if err := runMigrations(db, p.path); err != nil {
		db.Close()
		return err
	}
	p.db = db
	return nil
}

func runMigrations(db *sql.DB, path string) error {
	source, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}
	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, path, driver)
	if err != nil {
		return fmt.Errorf("failed to instantiate migrations: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

func (p *Persistence) Shutdown() error {
	if p.db == nil {
		return nil
	}
	err := p.db.Close()
	p.db = nil
	return err
}

// querier returns the open transaction, or the database for reads outside
// one.
func (p *Persistence) querier() querier {
	if p.tx != nil {
		return p.tx
	}
	return p.db
}

func (p *Persistence) RemoteDocuments() types.RemoteDocumentCache {
	return p.remoteDocuments
}

func (p *Persistence) MutationQueue(user auth.User) types.MutationQueue {
	queue, ok := p.queues[user.QueueKey()]
	if !ok {
		queue = &mutationQueue{p: p, uid: user.QueueKey()}
		p.queues[user.QueueKey()] = queue
	}
	return queue
}

func (p *Persistence) Queries() types.QueryCache {
	return p.queryCache
}

func (p *Persistence) RunTransaction(label string, fn func() error) error {
	if p.tx != nil {
		return fmt.Errorf("nested transaction in %q", label)
	}
	tx, err := p.db.Begin()
	if err != nil {
		return fmt.Errorf("%s: failed to begin transaction: %w", label, err)
	}
	p.tx = tx
	defer func() { p.tx = nil }()

	if err := fn(); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%s: rollback failed: %v (after: %w)", label, rbErr, err)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s: failed to commit: %w", label, err)
	}
	return nil
}
