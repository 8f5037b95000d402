package service

import (
	"context"
	"crypto/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/shelfmark/shelfmark-server/internal/auth"
	"github.com/shelfmark/shelfmark-server/internal/cache"
	"github.com/shelfmark/shelfmark-server/internal/domain"
	"github.com/shelfmark/shelfmark-server/internal/search"
	"github.com/shelfmark/shelfmark-server/internal/store"
)

// setupTestStore opens a badger store in a temp dir.
func setupTestStore(t *testing.T) *store.Store {
	t.Helper()

	s, err := store.New(t.TempDir(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	return s
}

func testIssuer(t *testing.T) auth.TokenIssuer {
	t.Helper()

	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)

	issuer, err := auth.NewPasetoIssuer(key, time.Hour)
	require.NoError(t, err)
	return issuer
}

// recordingCleaner captures scheduled image deletions.
type recordingCleaner struct {
	mu   sync.Mutex
	jobs []string
	err  error
}

func (c *recordingCleaner) Enqueue(ref, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.jobs = append(c.jobs, reason+":"+ref)
	return c.err
}

func (c *recordingCleaner) Jobs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.jobs...)
}

type catalogFixture struct {
	catalog *CatalogService
	store   *store.Store
	cleaner *recordingCleaner
	cache   *cache.Memory
	index   *search.SearchIndex
}

func setupCatalog(t *testing.T) *catalogFixture {
	t.Helper()

	s := setupTestStore(t)

	index, err := search.NewSearchIndex(search.Options{DataPath: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = index.Close() })
	s.SetSearchIndexer(index)

	cleaner := &recordingCleaner{}
	memCache := cache.NewMemory(time.Minute)

	return &catalogFixture{
		catalog: NewCatalogService(s, cleaner, memCache, index, nil),
		store:   s,
		cleaner: cleaner,
		cache:   memCache,
		index:   index,
	}
}

func intPtr(v int) *int { return &v }

func floatPtr(v float64) *float64 { return &v }

func strPtr(v string) *string { return &v }

func (f *catalogFixture) createBook(t *testing.T, ownerID, title string, year int) *domain.Book {
	t.Helper()

	book, err := f.catalog.Create(context.Background(), ownerID, BookInput{
		Title:  title,
		Author: "Author of " + title,
		Genre:  "Fantasy",
		Year:   intPtr(year),
	}, ImageChange{Ref: "uploads/" + title + ".jpg"})
	require.NoError(t, err)
	return book
}
