package service

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shelfmark/shelfmark-server/internal/domain"
	domainerrors "github.com/shelfmark/shelfmark-server/internal/errors"
	"github.com/shelfmark/shelfmark-server/internal/search"
)

func TestCatalog_Create(t *testing.T) {
	f := setupCatalog(t)

	book, err := f.catalog.Create(context.Background(), "user-a", BookInput{
		Title:  "The Hobbit",
		Author: "J.R.R. Tolkien",
		Genre:  "Fantasy",
		Year:   intPtr(1937),
	}, ImageChange{Ref: "uploads/hobbit.jpg", BlurHash: "LEHV6nWB2yk8"})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(book.ID, "book-"))
	assert.Equal(t, "user-a", book.UserID)
	assert.Equal(t, "uploads/hobbit.jpg", book.ImageRef)
	assert.Equal(t, "LEHV6nWB2yk8", book.ImageBlurHash)
	assert.Empty(t, book.Ratings())
	assert.Zero(t, book.AverageRating())

	stored, err := f.catalog.Get(context.Background(), book.ID)
	require.NoError(t, err)
	assert.Equal(t, "The Hobbit", stored.Title)
}

func TestCatalog_Create_YearZeroIsValid(t *testing.T) {
	f := setupCatalog(t)

	book := f.createBook(t, "user-a", "Gilgamesh", 0)
	assert.Equal(t, 0, book.Year)
}

func TestCatalog_Create_ValidationErrors(t *testing.T) {
	f := setupCatalog(t)
	valid := func() BookInput {
		return BookInput{Title: "T", Author: "A", Genre: "G", Year: intPtr(2000)}
	}

	tests := []struct {
		name   string
		mutate func(in *BookInput)
		image  string
	}{
		{name: "missing title", mutate: func(in *BookInput) { in.Title = "" }, image: "uploads/x.jpg"},
		{name: "missing author", mutate: func(in *BookInput) { in.Author = "" }, image: "uploads/x.jpg"},
		{name: "missing genre", mutate: func(in *BookInput) { in.Genre = "" }, image: "uploads/x.jpg"},
		{name: "missing year", mutate: func(in *BookInput) { in.Year = nil }, image: "uploads/x.jpg"},
		{name: "negative year", mutate: func(in *BookInput) { in.Year = intPtr(-1) }, image: "uploads/x.jpg"},
		{name: "title too long", mutate: func(in *BookInput) { in.Title = strings.Repeat("t", 201) }, image: "uploads/x.jpg"},
		{name: "author too long", mutate: func(in *BookInput) { in.Author = strings.Repeat("a", 101) }, image: "uploads/x.jpg"},
		{name: "genre too long", mutate: func(in *BookInput) { in.Genre = strings.Repeat("g", 51) }, image: "uploads/x.jpg"},
		{name: "missing image", mutate: func(*BookInput) {}, image: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := valid()
			tt.mutate(&in)
			_, err := f.catalog.Create(context.Background(), "user-a", in, ImageChange{Ref: tt.image})
			assert.ErrorIs(t, err, domainerrors.ErrValidation)
		})
	}

	_, err := f.catalog.List(context.Background())
	assert.ErrorIs(t, err, domainerrors.ErrNotFound, "nothing should have been stored")
}

func TestCatalog_ValidateInput(t *testing.T) {
	f := setupCatalog(t)

	assert.NoError(t, f.catalog.ValidateInput(BookInput{Title: "T", Author: "A", Genre: "G", Year: intPtr(1)}))

	err := f.catalog.ValidateInput(BookInput{Author: "A", Genre: "G", Year: intPtr(1)})
	require.ErrorIs(t, err, domainerrors.ErrValidation)

	var domainErr *domainerrors.Error
	require.ErrorAs(t, err, &domainErr)
	assert.Contains(t, domainErr.Details, "title")
}

func TestCatalog_Get_NotFound(t *testing.T) {
	f := setupCatalog(t)

	_, err := f.catalog.Get(context.Background(), "book-missing")
	assert.ErrorIs(t, err, domainerrors.ErrNotFound)
}

func TestCatalog_Update_OwnershipScenario(t *testing.T) {
	f := setupCatalog(t)
	ctx := context.Background()

	b1 := f.createBook(t, "user-a", "B1", 2000)

	_, err := f.catalog.Update(ctx, "user-c", b1.ID, domain.BookPatch{Year: intPtr(1999)}, nil)
	require.ErrorIs(t, err, domainerrors.ErrForbidden)

	unchanged, err := f.catalog.Get(ctx, b1.ID)
	require.NoError(t, err)
	assert.Equal(t, 2000, unchanged.Year)

	updated, err := f.catalog.Update(ctx, "user-a", b1.ID, domain.BookPatch{Year: intPtr(1999)}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1999, updated.Year)

	stored, err := f.catalog.Get(ctx, b1.ID)
	require.NoError(t, err)
	assert.Equal(t, 1999, stored.Year)
	assert.Equal(t, "user-a", stored.UserID)
}

func TestCatalog_Update_NotFound(t *testing.T) {
	f := setupCatalog(t)

	_, err := f.catalog.Update(context.Background(), "user-a", "book-missing", domain.BookPatch{Title: strPtr("x")}, nil)
	assert.ErrorIs(t, err, domainerrors.ErrNotFound)
}

func TestCatalog_Update_PartialByPresence(t *testing.T) {
	f := setupCatalog(t)
	ctx := context.Background()
	book := f.createBook(t, "user-a", "Original", 2000)

	updated, err := f.catalog.Update(ctx, "user-a", book.ID, domain.BookPatch{
		Title:  strPtr("Renamed"),
		Author: strPtr(""), // falsy, ignored
		Year:   intPtr(0),  // falsy, ignored
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, "Renamed", updated.Title)
	assert.Equal(t, book.Author, updated.Author)
	assert.Equal(t, 2000, updated.Year)
	assert.Equal(t, book.ImageRef, updated.ImageRef)
}

func TestCatalog_Update_RejectsOversizedFields(t *testing.T) {
	f := setupCatalog(t)
	book := f.createBook(t, "user-a", "Original", 2000)

	_, err := f.catalog.Update(context.Background(), "user-a", book.ID,
		domain.BookPatch{Genre: strPtr(strings.Repeat("g", 51))}, nil)
	assert.ErrorIs(t, err, domainerrors.ErrValidation)

	_, err = f.catalog.Update(context.Background(), "user-a", book.ID,
		domain.BookPatch{Year: intPtr(-5)}, nil)
	assert.ErrorIs(t, err, domainerrors.ErrValidation)
}

func TestCatalog_Update_ReplacesImage(t *testing.T) {
	f := setupCatalog(t)
	ctx := context.Background()
	book := f.createBook(t, "user-a", "Covered", 2000)
	oldRef := book.ImageRef

	updated, err := f.catalog.Update(ctx, "user-a", book.ID, domain.BookPatch{},
		&ImageChange{Ref: "uploads/new.png", BlurHash: "hash"})
	require.NoError(t, err)

	assert.Equal(t, "uploads/new.png", updated.ImageRef)
	assert.Equal(t, "hash", updated.ImageBlurHash)
	assert.Equal(t, []string{"replaced:" + oldRef}, f.cleaner.Jobs())
}

func TestCatalog_Update_ForbiddenDoesNotTouchImage(t *testing.T) {
	f := setupCatalog(t)
	book := f.createBook(t, "user-a", "Covered", 2000)

	_, err := f.catalog.Update(context.Background(), "user-b", book.ID, domain.BookPatch{},
		&ImageChange{Ref: "uploads/new.png"})
	require.ErrorIs(t, err, domainerrors.ErrForbidden)
	assert.Empty(t, f.cleaner.Jobs())
}

func TestCatalog_Delete(t *testing.T) {
	f := setupCatalog(t)
	ctx := context.Background()
	book := f.createBook(t, "user-a", "Doomed", 2000)

	err := f.catalog.Delete(ctx, "user-b", book.ID)
	require.ErrorIs(t, err, domainerrors.ErrForbidden)
	_, err = f.catalog.Get(ctx, book.ID)
	require.NoError(t, err, "forbidden delete must leave the book in place")

	require.NoError(t, f.catalog.Delete(ctx, "user-a", book.ID))

	_, err = f.catalog.Get(ctx, book.ID)
	assert.ErrorIs(t, err, domainerrors.ErrNotFound)
	assert.Equal(t, []string{"book_deleted:" + book.ImageRef}, f.cleaner.Jobs())

	err = f.catalog.Delete(ctx, "user-a", book.ID)
	assert.ErrorIs(t, err, domainerrors.ErrNotFound)
}

func TestCatalog_Delete_CleanupFailureIsSwallowed(t *testing.T) {
	f := setupCatalog(t)
	f.cleaner.err = assert.AnError
	book := f.createBook(t, "user-a", "Doomed", 2000)

	assert.NoError(t, f.catalog.Delete(context.Background(), "user-a", book.ID))
}

func TestCatalog_List(t *testing.T) {
	f := setupCatalog(t)
	ctx := context.Background()

	_, err := f.catalog.List(ctx)
	require.ErrorIs(t, err, domainerrors.ErrNotFound)

	f.createBook(t, "user-a", "One", 2000)
	f.createBook(t, "user-b", "Two", 2001)

	books, err := f.catalog.List(ctx)
	require.NoError(t, err)
	assert.Len(t, books, 2)
}

func TestCatalog_List_CacheInvalidatedOnWrite(t *testing.T) {
	f := setupCatalog(t)
	ctx := context.Background()

	book := f.createBook(t, "user-a", "One", 2000)

	books, err := f.catalog.List(ctx)
	require.NoError(t, err)
	require.Len(t, books, 1)

	_, cached, err := f.cache.Get(ctx, cacheKeyAllBooks)
	require.NoError(t, err)
	assert.True(t, cached)

	_, err = f.catalog.Rate(ctx, "user-b", book.ID, floatPtr(4))
	require.NoError(t, err)

	books, err = f.catalog.List(ctx)
	require.NoError(t, err)
	require.Len(t, books, 1)
	assert.InDelta(t, 4.0, books[0].AverageRating(), 1e-9, "list must reflect the rating")
	assert.Len(t, books[0].Ratings(), 1)
}

func TestCatalog_BestRated_Scenario(t *testing.T) {
	f := setupCatalog(t)
	ctx := context.Background()

	b2 := f.createBook(t, "user-a", "B2", 2000)
	b3 := f.createBook(t, "user-a", "B3", 2001)

	_, err := f.catalog.Rate(ctx, "user-x", b3.ID, floatPtr(4))
	require.NoError(t, err)
	_, err = f.catalog.Rate(ctx, "user-y", b3.ID, floatPtr(5))
	require.NoError(t, err)

	best, err := f.catalog.BestRated(ctx, 3)
	require.NoError(t, err)
	require.Len(t, best, 2)
	assert.Equal(t, b3.ID, best[0].ID)
	assert.InDelta(t, 4.5, best[0].AverageRating(), 1e-9)
	assert.Equal(t, b2.ID, best[1].ID)
}

func TestCatalog_BestRated_LimitAndDefault(t *testing.T) {
	f := setupCatalog(t)
	ctx := context.Background()

	for i, title := range []string{"A", "B", "C", "D", "E"} {
		book := f.createBook(t, "user-a", title, 2000+i)
		_, err := f.catalog.Rate(ctx, "user-r", book.ID, floatPtr(float64(i)))
		require.NoError(t, err)
	}

	best, err := f.catalog.BestRated(ctx, 0)
	require.NoError(t, err)
	require.Len(t, best, DefaultBestRatedLimit)
	assert.Equal(t, "E", best[0].Title)
	assert.Equal(t, "D", best[1].Title)
	assert.Equal(t, "C", best[2].Title)

	best, err = f.catalog.BestRated(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, best, 5)
}

func TestCatalog_BestRated_Empty(t *testing.T) {
	f := setupCatalog(t)

	_, err := f.catalog.BestRated(context.Background(), 3)
	assert.ErrorIs(t, err, domainerrors.ErrNotFound)
}

func TestCatalog_Rate(t *testing.T) {
	f := setupCatalog(t)
	ctx := context.Background()
	book := f.createBook(t, "user-owner", "Rated", 2000)

	rated, err := f.catalog.Rate(ctx, "user-r1", book.ID, floatPtr(5))
	require.NoError(t, err)
	assert.InDelta(t, 5.0, rated.AverageRating(), 1e-9)

	rated, err = f.catalog.Rate(ctx, "user-r2", book.ID, floatPtr(0))
	require.NoError(t, err)
	assert.InDelta(t, 2.5, rated.AverageRating(), 1e-9)
	assert.Equal(t, []domain.Rating{
		{UserID: "user-r1", Grade: 5},
		{UserID: "user-r2", Grade: 0},
	}, rated.Ratings())

	// Owners may rate their own books.
	rated, err = f.catalog.Rate(ctx, "user-owner", book.ID, floatPtr(3))
	require.NoError(t, err)
	assert.Len(t, rated.Ratings(), 3)

	stored, err := f.catalog.Get(ctx, book.ID)
	require.NoError(t, err)
	assert.InDelta(t, 8.0/3.0, stored.AverageRating(), 1e-9)
}

func TestCatalog_Rate_AlreadyRated(t *testing.T) {
	f := setupCatalog(t)
	ctx := context.Background()
	book := f.createBook(t, "user-owner", "Rated", 2000)

	_, err := f.catalog.Rate(ctx, "user-r", book.ID, floatPtr(4))
	require.NoError(t, err)

	_, err = f.catalog.Rate(ctx, "user-r", book.ID, floatPtr(1))
	require.ErrorIs(t, err, domainerrors.ErrAlreadyRated)

	stored, err := f.catalog.Get(ctx, book.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Ratings(), 1)
	assert.InDelta(t, 4.0, stored.AverageRating(), 1e-9)
}

func TestCatalog_Rate_InvalidGrade(t *testing.T) {
	f := setupCatalog(t)
	book := f.createBook(t, "user-owner", "Rated", 2000)

	for _, grade := range []*float64{nil, floatPtr(6), floatPtr(-1), floatPtr(2.5)} {
		_, err := f.catalog.Rate(context.Background(), "user-r", book.ID, grade)
		assert.ErrorIs(t, err, domainerrors.ErrInvalidGrade)
	}

	stored, err := f.catalog.Get(context.Background(), book.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.Ratings())
}

func TestCatalog_Rate_GradeCheckedBeforeExistence(t *testing.T) {
	f := setupCatalog(t)

	_, err := f.catalog.Rate(context.Background(), "user-r", "book-missing", floatPtr(9))
	assert.ErrorIs(t, err, domainerrors.ErrInvalidGrade)

	_, err = f.catalog.Rate(context.Background(), "user-r", "book-missing", floatPtr(3))
	assert.ErrorIs(t, err, domainerrors.ErrNotFound)
}

func TestCatalog_Rate_ConcurrentDistinctRaters(t *testing.T) {
	f := setupCatalog(t)
	book := f.createBook(t, "user-owner", "Popular", 2000)

	var wg sync.WaitGroup
	for i := range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = f.catalog.Rate(context.Background(), "user-"+string(rune('a'+i)), book.ID, floatPtr(3))
		}()
	}
	wg.Wait()

	// Lost updates are possible, but whatever landed keeps the average consistent.
	stored, err := f.catalog.Get(context.Background(), book.ID)
	require.NoError(t, err)
	require.NotEmpty(t, stored.Ratings())
	assert.InDelta(t, 3.0, stored.AverageRating(), 1e-9)
}

func TestCatalog_Search(t *testing.T) {
	f := setupCatalog(t)
	ctx := context.Background()

	hobbit := f.createBook(t, "user-a", "The Hobbit", 1937)
	f.createBook(t, "user-a", "Dune", 1965)

	books, err := f.catalog.Search(ctx, search.SearchParams{Query: "hobbit"})
	require.NoError(t, err)
	require.Len(t, books, 1)
	assert.Equal(t, hobbit.ID, books[0].ID)

	books, err = f.catalog.Search(ctx, search.SearchParams{Query: "neuromancer"})
	require.NoError(t, err)
	assert.NotNil(t, books)
	assert.Empty(t, books)

	require.NoError(t, f.catalog.Delete(ctx, "user-a", hobbit.ID))
	books, err = f.catalog.Search(ctx, search.SearchParams{Query: "hobbit"})
	require.NoError(t, err)
	assert.Empty(t, books)
}

func TestCatalog_Search_SkipsStaleHits(t *testing.T) {
	f := setupCatalog(t)
	ctx := context.Background()

	stale := &domain.Book{Record: domain.Record{ID: "book-ghost"}, Title: "Ghost Story", Author: "Nobody"}
	require.NoError(t, f.index.IndexBook(ctx, stale))

	books, err := f.catalog.Search(ctx, search.SearchParams{Query: "ghost"})
	require.NoError(t, err)
	assert.Empty(t, books)
}

func TestCatalog_Genres(t *testing.T) {
	f := setupCatalog(t)
	ctx := context.Background()

	f.createBook(t, "user-a", "One", 2000)
	f.createBook(t, "user-a", "Two", 2001)
	_, err := f.catalog.Create(ctx, "user-a", BookInput{
		Title:  "Dune",
		Author: "Frank Herbert",
		Genre:  "Sci-Fi",
		Year:   intPtr(1965),
	}, ImageChange{Ref: "uploads/dune.jpg"})
	require.NoError(t, err)

	genres, err := f.catalog.Genres(ctx)
	require.NoError(t, err)
	require.Len(t, genres, 2)
	assert.Equal(t, GenreCount{Genre: "fantasy", Count: 2}, genres[0])
	assert.Equal(t, GenreCount{Genre: "science-fiction", Count: 1}, genres[1])
}

func TestCatalog_Genres_EmptyCatalog(t *testing.T) {
	f := setupCatalog(t)

	genres, err := f.catalog.Genres(context.Background())
	require.NoError(t, err)
	assert.Empty(t, genres)
}
