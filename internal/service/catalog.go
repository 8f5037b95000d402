package service

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"sync"

	"github.com/shelfmark/shelfmark-server/internal/cache"
	"github.com/shelfmark/shelfmark-server/internal/cleanup"
	"github.com/shelfmark/shelfmark-server/internal/domain"
	domainerrors "github.com/shelfmark/shelfmark-server/internal/errors"
	"github.com/shelfmark/shelfmark-server/internal/id"
	"github.com/shelfmark/shelfmark-server/internal/search"
	"github.com/shelfmark/shelfmark-server/internal/store"
	"github.com/shelfmark/shelfmark-server/internal/validation"
)

// DefaultBestRatedLimit is the number of books BestRated returns when n is
// not positive.
const DefaultBestRatedLimit = 3

// Cache keys.
const (
	cacheKeyAllBooks  = "books:all"
	cacheKeyBestRated = "books:best:%d"
)

// ImageCleaner schedules stored images for background deletion.
type ImageCleaner interface {
	Enqueue(ref, reason string) error
}

// BookSearcher runs full-text queries over the book index.
type BookSearcher interface {
	Search(ctx context.Context, params search.SearchParams) (*search.SearchResult, error)
}

// BookInput holds the fields required to create a book.
type BookInput struct {
	Title  string `json:"title" validate:"required,max=200"`
	Author string `json:"author" validate:"required,max=100"`
	Genre  string `json:"genre" validate:"required,max=50"`
	Year   *int   `json:"year" validate:"required,gte=0"`
}

// ImageChange points a book at a newly stored cover.
type ImageChange struct {
	Ref      string
	BlurHash string
}

// CatalogService manages books and their ratings.
//
// Mutating operations take the acting user explicitly. Ownership is
// checked here, never in the store.
type CatalogService struct {
	store     *store.Store
	cleaner   ImageCleaner
	cache     cache.Cache
	searcher  BookSearcher
	validator *validation.Validator
	logger    *slog.Logger

	// cacheMu guards cacheGen and cacheStale. A read only fills the cache
	// when no write invalidated it since the read began.
	cacheMu    sync.Mutex
	cacheGen   uint64
	cacheStale bool
}

// NewCatalogService creates a catalog service. A nil cache disables caching.
func NewCatalogService(
	store *store.Store,
	cleaner ImageCleaner,
	bookCache cache.Cache,
	searcher BookSearcher,
	logger *slog.Logger,
) *CatalogService {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if bookCache == nil {
		bookCache = cache.Noop{}
	}
	return &CatalogService{
		store:     store,
		cleaner:   cleaner,
		cache:     bookCache,
		searcher:  searcher,
		validator: validation.New(),
		logger:    logger,
	}
}

// ValidateInput checks the book fields of a create request.
func (s *CatalogService) ValidateInput(in BookInput) error {
	return s.validator.Validate(in)
}

// Create stores a new book owned by actorID with no ratings.
func (s *CatalogService) Create(ctx context.Context, actorID string, in BookInput, image ImageChange) (*domain.Book, error) {
	if err := s.ValidateInput(in); err != nil {
		return nil, err
	}
	if image.Ref == "" {
		return nil, domainerrors.ValidationWithDetails("image is required",
			map[string]string{"image": "is required"})
	}

	bookID, err := id.Generate(id.PrefixBook)
	if err != nil {
		return nil, fmt.Errorf("generate book ID: %w", err)
	}

	book := &domain.Book{
		Record:        domain.Record{ID: bookID},
		UserID:        actorID,
		Title:         in.Title,
		Author:        in.Author,
		Genre:         in.Genre,
		Year:          *in.Year,
		ImageRef:      image.Ref,
		ImageBlurHash: image.BlurHash,
	}
	book.InitTimestamps()

	if err := s.store.CreateBook(ctx, book); err != nil {
		return nil, domainerrors.Persistence(err)
	}

	s.invalidate(ctx)
	return book, nil
}

// Get returns a single book.
func (s *CatalogService) Get(ctx context.Context, bookID string) (*domain.Book, error) {
	book, err := s.store.GetBook(ctx, bookID)
	if err != nil {
		return nil, bookError(err)
	}
	return book, nil
}

// Update applies patch and, when image is non-nil, swaps the cover.
// Only the owner may update a book. The replaced cover is queued for
// deletion once the new record is persisted.
func (s *CatalogService) Update(
	ctx context.Context,
	actorID, bookID string,
	patch domain.BookPatch,
	image *ImageChange,
) (*domain.Book, error) {
	book, err := s.ownedBook(ctx, actorID, bookID)
	if err != nil {
		return nil, err
	}

	if err := s.validatePatch(patch); err != nil {
		return nil, err
	}

	changed := patch.Apply(book)

	var oldRef string
	if image != nil && image.Ref != "" && image.Ref != book.ImageRef {
		oldRef = book.ImageRef
		book.ImageRef = image.Ref
		book.ImageBlurHash = image.BlurHash
		changed = true
	}

	if !changed {
		return book, nil
	}

	if err := s.store.UpdateBook(ctx, book); err != nil {
		return nil, bookError(err)
	}

	if oldRef != "" {
		s.scheduleImageCleanup(oldRef, cleanup.ReasonReplaced)
	}
	s.invalidate(ctx)
	return book, nil
}

// Delete removes a book owned by actorID, then queues its cover for
// deletion. Cleanup failures are logged, never returned.
func (s *CatalogService) Delete(ctx context.Context, actorID, bookID string) error {
	book, err := s.ownedBook(ctx, actorID, bookID)
	if err != nil {
		return err
	}

	if err := s.store.DeleteBook(ctx, bookID); err != nil {
		return bookError(err)
	}

	s.scheduleImageCleanup(book.ImageRef, cleanup.ReasonBookDeleted)
	s.invalidate(ctx)
	return nil
}

// List returns every book in store order.
// Returns a NotFound error when the catalog is empty.
func (s *CatalogService) List(ctx context.Context) ([]*domain.Book, error) {
	books, err := s.cachedBooks(ctx, cacheKeyAllBooks, func() ([]*domain.Book, error) {
		return s.store.ListBooks(ctx)
	})
	if err != nil {
		return nil, domainerrors.Persistence(err)
	}
	if len(books) == 0 {
		return nil, domainerrors.NotFound("no books found")
	}
	return books, nil
}

// BestRated returns up to n books by descending average rating. Books with
// equal averages keep their store order. n <= 0 means DefaultBestRatedLimit.
// Returns a NotFound error when the catalog is empty.
func (s *CatalogService) BestRated(ctx context.Context, n int) ([]*domain.Book, error) {
	if n <= 0 {
		n = DefaultBestRatedLimit
	}

	books, err := s.cachedBooks(ctx, fmt.Sprintf(cacheKeyBestRated, n), func() ([]*domain.Book, error) {
		all, err := s.store.ListBooks(ctx)
		if err != nil {
			return nil, err
		}
		slices.SortStableFunc(all, func(a, b *domain.Book) int {
			return cmp.Compare(b.AverageRating(), a.AverageRating())
		})
		return all[:min(n, len(all))], nil
	})
	if err != nil {
		return nil, domainerrors.Persistence(err)
	}
	if len(books) == 0 {
		return nil, domainerrors.NotFound("no books found")
	}
	return books, nil
}

// Rate records raterID's grade on a book and returns the updated book.
// The grade is checked first, then the book's existence, then whether the
// rater already rated it. Owners may rate their own books.
//
// The read and the write are separate transactions: two concurrent
// first-time ratings by the same rater can both be accepted.
func (s *CatalogService) Rate(ctx context.Context, raterID, bookID string, grade *float64) (*domain.Book, error) {
	g, err := parseGrade(grade)
	if err != nil {
		return nil, err
	}

	book, err := s.store.GetBook(ctx, bookID)
	if err != nil {
		return nil, bookError(err)
	}

	if err := book.AddRating(raterID, g); err != nil {
		return nil, err
	}

	if err := s.store.UpdateBook(ctx, book); err != nil {
		return nil, bookError(err)
	}

	s.logger.Info("book rated",
		"book_id", bookID,
		"user_id", raterID,
		"grade", g,
		"average", book.AverageRating(),
	)
	s.invalidate(ctx)
	return book, nil
}

// Search runs a full-text query and loads the matching books in rank order.
// No match is an empty list, not an error.
func (s *CatalogService) Search(ctx context.Context, params search.SearchParams) ([]*domain.Book, error) {
	if s.searcher == nil {
		return nil, domainerrors.Internal("search is not available")
	}

	result, err := s.searcher.Search(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("search books: %w", err)
	}

	books := make([]*domain.Book, 0, len(result.Hits))
	for _, bookID := range result.IDs() {
		book, err := s.store.GetBook(ctx, bookID)
		if errors.Is(err, store.ErrNotFound) {
			// Index lagging behind a delete
			s.logger.Debug("search hit for missing book", "book_id", bookID)
			continue
		}
		if err != nil {
			return nil, domainerrors.Persistence(err)
		}
		books = append(books, book)
	}
	return books, nil
}

// GenreCount is the number of books filed under a genre slug.
type GenreCount struct {
	Genre string
	Count int
}

// Genres returns the most common genre slugs across the catalog, most
// frequent first.
func (s *CatalogService) Genres(ctx context.Context) ([]GenreCount, error) {
	if s.searcher == nil {
		return nil, domainerrors.Internal("search is not available")
	}

	result, err := s.searcher.Search(ctx, search.SearchParams{Limit: 1, IncludeFacets: true})
	if err != nil {
		return nil, fmt.Errorf("count genres: %w", err)
	}

	genres := make([]GenreCount, 0, len(result.Genres))
	for _, facet := range result.Genres {
		genres = append(genres, GenreCount{Genre: facet.Value, Count: facet.Count})
	}
	return genres, nil
}

// ownedBook loads a book and checks that actorID owns it.
func (s *CatalogService) ownedBook(ctx context.Context, actorID, bookID string) (*domain.Book, error) {
	book, err := s.store.GetBook(ctx, bookID)
	if err != nil {
		return nil, bookError(err)
	}
	if book.UserID != actorID {
		return nil, domainerrors.Forbidden("only the owner can modify this book")
	}
	return book, nil
}

// validatePatch checks the length and range limits of the fields a patch
// would actually apply.
func (s *CatalogService) validatePatch(patch domain.BookPatch) error {
	checks := []struct {
		field string
		value *string
		tag   string
	}{
		{"title", patch.Title, "max=200"},
		{"author", patch.Author, "max=100"},
		{"genre", patch.Genre, "max=50"},
	}
	for _, c := range checks {
		if c.value == nil || *c.value == "" {
			continue
		}
		if err := s.validator.Var(c.field, *c.value, c.tag); err != nil {
			return err
		}
	}

	if patch.Year != nil && *patch.Year != 0 {
		if err := s.validator.Var("year", *patch.Year, "gte=0"); err != nil {
			return err
		}
	}
	return nil
}

func (s *CatalogService) scheduleImageCleanup(ref, reason string) {
	if s.cleaner == nil || ref == "" {
		return
	}
	if err := s.cleaner.Enqueue(ref, reason); err != nil {
		s.logger.Warn("image cleanup not scheduled", "ref", ref, "reason", reason, "error", err)
	}
}

// cachedBooks serves key from the cache or fills it from load. Cache
// failures degrade to a direct load. Empty results are not cached, and a
// load that raced with a write is returned but not stored.
func (s *CatalogService) cachedBooks(
	ctx context.Context,
	key string,
	load func() ([]*domain.Book, error),
) ([]*domain.Book, error) {
	gen, usable := s.cacheGeneration(ctx)

	if usable {
		data, ok, err := s.cache.Get(ctx, key)
		if err != nil {
			s.logger.Warn("book cache read failed", "key", key, "error", err)
		}
		if ok {
			var books []*domain.Book
			if err := json.Unmarshal(data, &books); err == nil {
				return books, nil
			}
			s.logger.Warn("discarding unreadable book cache entry", "key", key)
		}
	}

	books, err := load()
	if err != nil || len(books) == 0 || !usable {
		return books, err
	}

	data, err := json.Marshal(books)
	if err != nil {
		return books, nil
	}

	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()

	if s.cacheGen != gen || s.cacheStale {
		s.logger.Debug("book cache fill skipped after concurrent write", "key", key)
		return books, nil
	}
	if err := s.cache.Set(ctx, key, data); err != nil {
		s.logger.Warn("book cache write failed", "key", key, "error", err)
	}
	return books, nil
}

// cacheGeneration returns the current write generation and whether the
// cache may be used. After a failed invalidation the cache is bypassed
// until an invalidation succeeds.
func (s *CatalogService) cacheGeneration(ctx context.Context) (uint64, bool) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()

	if s.cacheStale {
		if err := s.cache.Invalidate(ctx); err != nil {
			return s.cacheGen, false
		}
		s.cacheStale = false
	}
	return s.cacheGen, true
}

// invalidate drops cached lists after a write. It must run after the write
// is persisted.
func (s *CatalogService) invalidate(ctx context.Context) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()

	s.cacheGen++
	if err := s.cache.Invalidate(ctx); err != nil {
		s.cacheStale = true
		s.logger.Warn("book cache invalidation failed; bypassing cache", "error", err)
		return
	}
	s.cacheStale = false
}

// parseGrade accepts whole numbers in [MinGrade, MaxGrade].
func parseGrade(grade *float64) (int, error) {
	if grade == nil {
		return 0, domainerrors.InvalidGrade("grade is required")
	}
	g := *grade
	if math.IsNaN(g) || math.IsInf(g, 0) || g != math.Trunc(g) {
		return 0, domainerrors.InvalidGrade("grade must be a whole number")
	}
	if g < domain.MinGrade || g > domain.MaxGrade {
		return 0, domainerrors.ErrInvalidGrade
	}
	return int(g), nil
}

// bookError maps store errors to domain errors.
func bookError(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return domainerrors.NotFound("book not found")
	}
	return domainerrors.Persistence(err)
}
