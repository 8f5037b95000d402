package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"strings"

	"github.com/dgraph-io/badger/v4"
)

const indexSegment = "idx:"

// Entity provides generic CRUD operations for any document type stored
// under a key prefix.
type Entity[T any] struct {
	store   *Store
	prefix  string
	indexes []Index[T]
}

// Index is a unique secondary index on an entity. Every key produced by
// keyGen maps to exactly one entity ID.
type Index[T any] struct {
	name   string
	keyGen func(*T) []string
}

// IndexConflictError reports a write rejected by a unique index.
type IndexConflictError struct {
	Index string
	Value string
}

func (e *IndexConflictError) Error() string {
	return fmt.Sprintf("index %s conflict on key %q", e.Index, e.Value)
}

// Unwrap lets callers match conflicts with errors.Is(err, ErrAlreadyExists).
func (e *IndexConflictError) Unwrap() error { return ErrAlreadyExists }

// NewEntity creates a new Entity instance for type T.
func NewEntity[T any](s *Store, prefix string) *Entity[T] {
	return &Entity[T]{
		store:  s,
		prefix: prefix,
	}
}

// WithIndex adds a unique secondary index. Values are stored verbatim, so
// lookups are exact and case-sensitive.
func (e *Entity[T]) WithIndex(name string, keyGen func(*T) []string) *Entity[T] {
	e.indexes = append(e.indexes, Index[T]{name: name, keyGen: keyGen})
	return e
}

func (e *Entity[T]) key(id string) []byte {
	return []byte(e.prefix + id)
}

func (e *Entity[T]) indexKey(name, value string) []byte {
	return []byte(e.prefix + indexSegment + name + ":" + value)
}

// Create stores a new entity under id.
// Returns ErrAlreadyExists if the id is taken and an *IndexConflictError if
// a unique index value is taken. Both checks run inside the write
// transaction, so of two racing creates only one commits.
func (e *Entity[T]) Create(ctx context.Context, id string, entity *T) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(entity)
	if err != nil {
		return fmt.Errorf("marshal entity: %w", err)
	}

	return e.store.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(e.key(id)); err == nil {
			return ErrAlreadyExists
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("check existing key: %w", err)
		}

		for _, idx := range e.indexes {
			for _, value := range idx.keyGen(entity) {
				if err := e.checkIndexFree(txn, idx.name, value); err != nil {
					return err
				}
			}
		}

		if err := txn.Set(e.key(id), data); err != nil {
			return fmt.Errorf("set key: %w", err)
		}
		return e.setIndexes(txn, id, entity)
	})
}

// Get retrieves an entity by ID.
// Returns ErrNotFound if the entity does not exist.
func (e *Entity[T]) Get(ctx context.Context, id string) (*T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var entity *T
	err := e.store.db.View(func(txn *badger.Txn) error {
		var err error
		entity, err = e.read(txn, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entity, nil
}

// GetByIndex retrieves an entity through a secondary index.
func (e *Entity[T]) GetByIndex(ctx context.Context, indexName, value string) (*T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var entity *T
	err := e.store.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(e.indexKey(indexName, value))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("get index key: %w", err)
		}

		id, err := item.ValueCopy(nil)
		if err != nil {
			return fmt.Errorf("read index value: %w", err)
		}

		entity, err = e.read(txn, string(id))
		return err
	})
	if err != nil {
		return nil, err
	}
	return entity, nil
}

// Update replaces an existing entity and moves its index entries.
// Returns ErrNotFound if the entity does not exist.
func (e *Entity[T]) Update(ctx context.Context, id string, entity *T) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(entity)
	if err != nil {
		return fmt.Errorf("marshal entity: %w", err)
	}

	return e.store.db.Update(func(txn *badger.Txn) error {
		old, err := e.read(txn, id)
		if err != nil {
			return err
		}

		for _, idx := range e.indexes {
			owned := make(map[string]bool)
			for _, value := range idx.keyGen(old) {
				owned[value] = true
			}
			for _, value := range idx.keyGen(entity) {
				if owned[value] {
					continue
				}
				if err := e.checkIndexFree(txn, idx.name, value); err != nil {
					return err
				}
			}
		}

		if err := e.deleteIndexes(txn, old); err != nil {
			return err
		}
		if err := txn.Set(e.key(id), data); err != nil {
			return fmt.Errorf("set key: %w", err)
		}
		return e.setIndexes(txn, id, entity)
	})
}

// Delete removes an entity and its index entries.
// Returns ErrNotFound if the entity does not exist.
func (e *Entity[T]) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return e.store.db.Update(func(txn *badger.Txn) error {
		old, err := e.read(txn, id)
		if err != nil {
			return err
		}
		if err := e.deleteIndexes(txn, old); err != nil {
			return err
		}
		if err := txn.Delete(e.key(id)); err != nil {
			return fmt.Errorf("delete key: %w", err)
		}
		return nil
	})
}

// List returns an iterator over all entities in key order.
// Index entries under the same prefix are skipped.
func (e *Entity[T]) List(ctx context.Context) iter.Seq2[*T, error] {
	return func(yield func(*T, error) bool) {
		prefix := []byte(e.prefix)
		err := e.store.db.View(func(txn *badger.Txn) error {
			opts := badger.DefaultIteratorOptions
			opts.Prefix = prefix

			it := txn.NewIterator(opts)
			defer it.Close()

			for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
				if err := ctx.Err(); err != nil {
					return err
				}

				item := it.Item()
				if strings.HasPrefix(string(item.Key()[len(prefix):]), indexSegment) {
					continue
				}

				var entity T
				if err := item.Value(func(val []byte) error {
					return json.Unmarshal(val, &entity)
				}); err != nil {
					return fmt.Errorf("unmarshal %s: %w", item.Key(), err)
				}

				if !yield(&entity, nil) {
					return errStopIteration
				}
			}
			return nil
		})
		if err != nil && !errors.Is(err, errStopIteration) {
			yield(nil, err)
		}
	}
}

// Collect drains List into a slice.
func (e *Entity[T]) Collect(ctx context.Context) ([]*T, error) {
	var out []*T
	for entity, err := range e.List(ctx) {
		if err != nil {
			return nil, err
		}
		out = append(out, entity)
	}
	return out, nil
}

var errStopIteration = errors.New("iteration stopped")

func (e *Entity[T]) read(txn *badger.Txn, id string) (*T, error) {
	item, err := txn.Get(e.key(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get key: %w", err)
	}

	var entity T
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &entity)
	}); err != nil {
		return nil, fmt.Errorf("unmarshal entity %s: %w", id, err)
	}
	return &entity, nil
}

func (e *Entity[T]) checkIndexFree(txn *badger.Txn, name, value string) error {
	_, err := txn.Get(e.indexKey(name, value))
	if err == nil {
		return &IndexConflictError{Index: name, Value: value}
	}
	if !errors.Is(err, badger.ErrKeyNotFound) {
		return fmt.Errorf("check index key: %w", err)
	}
	return nil
}

func (e *Entity[T]) setIndexes(txn *badger.Txn, id string, entity *T) error {
	for _, idx := range e.indexes {
		for _, value := range idx.keyGen(entity) {
			if err := txn.Set(e.indexKey(idx.name, value), []byte(id)); err != nil {
				return fmt.Errorf("set index key: %w", err)
			}
		}
	}
	return nil
}

func (e *Entity[T]) deleteIndexes(txn *badger.Txn, entity *T) error {
	for _, idx := range e.indexes {
		for _, value := range idx.keyGen(entity) {
			if err := txn.Delete(e.indexKey(idx.name, value)); err != nil {
				return fmt.Errorf("delete index key: %w", err)
			}
		}
	}
	return nil
}
