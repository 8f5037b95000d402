// Package store persists users and books in an embedded Badger database.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"

	"github.com/shelfmark/shelfmark-server/internal/domain"
)

// Key prefixes.
const (
	userPrefix = "user:"
	bookPrefix = "book:"

	userEmailIndex = "email"
)

// SearchIndexer keeps the search index in sync with book writes.
// The store calls it after a successful commit; failures are logged and
// never fail the write.
type SearchIndexer interface {
	IndexBook(ctx context.Context, book *domain.Book) error
	DeleteBook(ctx context.Context, bookID string) error
}

// NoopSearchIndexer is a no-op implementation for testing.
type NoopSearchIndexer struct{}

// IndexBook is a no-op.
func (NoopSearchIndexer) IndexBook(context.Context, *domain.Book) error { return nil }

// DeleteBook is a no-op.
func (NoopSearchIndexer) DeleteBook(context.Context, string) error { return nil }

// Store wraps a Badger database instance.
type Store struct {
	db     *badger.DB
	logger *slog.Logger

	// Set via SetSearchIndexer after creation; the index is built from the
	// store on startup, so the store has to exist first.
	searchIndexer SearchIndexer

	Users *Entity[domain.User]
	Books *Entity[domain.Book]
}

// New opens (or creates) the database at path.
func New(path string, logger *slog.Logger) (*Store, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil            // Badger's own logger is too chatty
	opts.SyncWrites = true       // Ensure writes hit disk before the commit returns
	opts.CompactL0OnClose = true // Faster startup

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger db: %w", err)
	}

	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	s := &Store{
		db:            db,
		logger:        logger,
		searchIndexer: NoopSearchIndexer{},
	}
	s.initUsers()
	s.initBooks()

	logger.Info("badger database opened", "path", path)
	return s, nil
}

// Close gracefully closes the database connection.
func (s *Store) Close() error {
	s.logger.Info("closing database connection")
	return s.db.Close()
}

// Ping verifies the database can serve reads.
func (s *Store) Ping(ctx context.Context) error {
	if s.db.IsClosed() {
		return errors.New("database is closed")
	}
	return s.db.View(func(txn *badger.Txn) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		_, err := txn.Get([]byte(userPrefix))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		return err
	})
}

// SetSearchIndexer sets the search indexer used on book writes.
func (s *Store) SetSearchIndexer(indexer SearchIndexer) {
	if indexer == nil {
		indexer = NoopSearchIndexer{}
	}
	s.searchIndexer = indexer
}

// initUsers registers the user entity with a unique, case-sensitive email
// index. Two addresses that differ only in case are different accounts.
func (s *Store) initUsers() {
	s.Users = NewEntity[domain.User](s, userPrefix).
		WithIndex(userEmailIndex, func(u *domain.User) []string {
			return []string{u.Email}
		})
}

func (s *Store) initBooks() {
	s.Books = NewEntity[domain.Book](s, bookPrefix)
}
