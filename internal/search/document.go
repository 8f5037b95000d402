// Package search provides full-text search over the catalog using Bleve.
package search

import (
	"github.com/shelfmark/shelfmark-server/internal/domain"
	"github.com/shelfmark/shelfmark-server/internal/genre"
)

// BookDocument is the indexed form of a book.
type BookDocument struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Author string `json:"author"`
	Genre  string `json:"genre"`

	// Canonical genre slug for exact filtering.
	GenreSlug string `json:"genre_slug"`

	Year          int     `json:"year"`
	AverageRating float64 `json:"average_rating"`
	CreatedAt     int64   `json:"created_at"` // Unix millis
}

// NewBookDocument builds the index document for a book.
func NewBookDocument(book *domain.Book) *BookDocument {
	return &BookDocument{
		ID:            book.ID,
		Title:         book.Title,
		Author:        book.Author,
		Genre:         book.Genre,
		GenreSlug:     genre.Normalize(book.Genre),
		Year:          book.Year,
		AverageRating: book.AverageRating(),
		CreatedAt:     book.CreatedAt.UnixMilli(),
	}
}

// ToMap converts the document to a map whose keys match the index mapping.
func (d *BookDocument) ToMap() map[string]any {
	return map[string]any{
		"id":             d.ID,
		"title":          d.Title,
		"author":         d.Author,
		"genre":          d.Genre,
		"genre_slug":     d.GenreSlug,
		"year":           float64(d.Year),
		"average_rating": d.AverageRating,
		"created_at":     float64(d.CreatedAt),
	}
}
