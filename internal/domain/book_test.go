package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainerrors "github.com/shelfmark/shelfmark-server/internal/errors"
)

func TestBook_AddRating_RecomputesAverage(t *testing.T) {
	book := &Book{}
	assert.Zero(t, book.AverageRating())

	require.NoError(t, book.AddRating("user-a", 4))
	assert.InDelta(t, 4.0, book.AverageRating(), 1e-9)

	require.NoError(t, book.AddRating("user-b", 5))
	assert.InDelta(t, 4.5, book.AverageRating(), 1e-9)

	require.NoError(t, book.AddRating("user-c", 0))
	assert.InDelta(t, 3.0, book.AverageRating(), 1e-9)

	assert.Equal(t, []Rating{
		{UserID: "user-a", Grade: 4},
		{UserID: "user-b", Grade: 5},
		{UserID: "user-c", Grade: 0},
	}, book.Ratings())
}

func TestBook_AddRating_Bounds(t *testing.T) {
	tests := []struct {
		grade   int
		wantErr bool
	}{
		{grade: -1, wantErr: true},
		{grade: 0},
		{grade: 3},
		{grade: 5},
		{grade: 6, wantErr: true},
	}

	for _, tt := range tests {
		book := &Book{}
		err := book.AddRating("rater", tt.grade)
		if tt.wantErr {
			assert.ErrorIs(t, err, domainerrors.ErrInvalidGrade, "grade %d", tt.grade)
			assert.Empty(t, book.Ratings())
			assert.Zero(t, book.AverageRating())
		} else {
			assert.NoError(t, err, "grade %d", tt.grade)
			assert.InDelta(t, float64(tt.grade), book.AverageRating(), 1e-9)
		}
	}
}

func TestBook_AddRating_SecondRatingRejected(t *testing.T) {
	book := &Book{}
	require.NoError(t, book.AddRating("rater", 2))

	err := book.AddRating("rater", 5)
	assert.ErrorIs(t, err, domainerrors.ErrAlreadyRated)
	assert.Len(t, book.Ratings(), 1)
	assert.InDelta(t, 2.0, book.AverageRating(), 1e-9)
}

func TestBook_OwnerMayRate(t *testing.T) {
	book := &Book{UserID: "owner"}
	require.NoError(t, book.AddRating("owner", 5))
	assert.True(t, book.HasRated("owner"))
}

func TestBook_RatingsReturnsCopy(t *testing.T) {
	book := &Book{}
	require.NoError(t, book.AddRating("rater", 1))

	ratings := book.Ratings()
	ratings[0].Grade = 5

	assert.Equal(t, 1, book.Ratings()[0].Grade)
	assert.InDelta(t, 1.0, book.AverageRating(), 1e-9)
}

func TestBook_JSON(t *testing.T) {
	book := &Book{
		Record:   Record{ID: "book-1"},
		UserID:   "user-1",
		Title:    "Dune",
		Author:   "Frank Herbert",
		Genre:    "Science Fiction",
		Year:     1965,
		ImageRef: "uploads/dune.jpg",
	}
	require.NoError(t, book.AddRating("user-2", 5))
	require.NoError(t, book.AddRating("user-3", 4))

	data, err := json.Marshal(book)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "user-1", raw["userId"])
	assert.InDelta(t, 4.5, raw["averageRating"], 1e-9)
	assert.Len(t, raw["ratings"], 2)

	var decoded Book
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, book.Ratings(), decoded.Ratings())
	assert.InDelta(t, 4.5, decoded.AverageRating(), 1e-9)
	assert.Equal(t, "Dune", decoded.Title)
}

func TestBook_JSON_EmptyRatingsSerializeAsArray(t *testing.T) {
	data, err := json.Marshal(&Book{Title: "Empty"})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"ratings":[]`)
	assert.Contains(t, string(data), `"averageRating":0`)
}

func TestBook_UnmarshalJSON_RecomputesStoredAverage(t *testing.T) {
	// A tampered or stale average never survives a load.
	stored := `{"id":"book-1","ratings":[{"userId":"a","grade":1},{"userId":"b","grade":3}],"averageRating":5}`

	var book Book
	require.NoError(t, json.Unmarshal([]byte(stored), &book))
	assert.InDelta(t, 2.0, book.AverageRating(), 1e-9)
}

func TestBookPatch_Apply(t *testing.T) {
	ptr := func(s string) *string { return &s }
	year := func(y int) *int { return &y }

	base := func() *Book {
		return &Book{
			UserID: "owner",
			Title:  "Old Title",
			Author: "Old Author",
			Genre:  "Drama",
			Year:   2000,
		}
	}

	tests := []struct {
		name        string
		patch       BookPatch
		wantChanged bool
		check       func(t *testing.T, b *Book)
	}{
		{
			name:        "present fields overwrite",
			patch:       BookPatch{Title: ptr("New Title"), Year: year(1999)},
			wantChanged: true,
			check: func(t *testing.T, b *Book) {
				assert.Equal(t, "New Title", b.Title)
				assert.Equal(t, 1999, b.Year)
				assert.Equal(t, "Old Author", b.Author)
				assert.Equal(t, "Drama", b.Genre)
			},
		},
		{
			name:  "absent fields are untouched",
			patch: BookPatch{},
			check: func(t *testing.T, b *Book) {
				assert.Equal(t, "Old Title", b.Title)
				assert.Equal(t, 2000, b.Year)
			},
		},
		{
			name:  "falsy fields are untouched",
			patch: BookPatch{Title: ptr(""), Genre: ptr(""), Year: year(0)},
			check: func(t *testing.T, b *Book) {
				assert.Equal(t, "Old Title", b.Title)
				assert.Equal(t, "Drama", b.Genre)
				assert.Equal(t, 2000, b.Year)
			},
		},
		{
			name:  "same values report no change",
			patch: BookPatch{Author: ptr("Old Author"), Year: year(2000)},
			check: func(t *testing.T, b *Book) {
				assert.Equal(t, "Old Author", b.Author)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			book := base()
			changed := tt.patch.Apply(book)
			assert.Equal(t, tt.wantChanged, changed)
			assert.Equal(t, "owner", book.UserID)
			tt.check(t, book)
		})
	}
}
