package dto

import (
	"strings"
	"time"

	"github.com/shelfmark/shelfmark-server/internal/domain"
)

// Rating is one user's grade.
type Rating struct {
	UserID string `json:"userId" doc:"Rater ID"`
	Grade  int    `json:"grade" minimum:"0" maximum:"5" doc:"Grade from 0 to 5"`
}

// Book is the outbound book representation.
type Book struct {
	ID            string    `json:"id" doc:"Book ID"`
	UserID        string    `json:"userId" doc:"Owner ID"`
	Title         string    `json:"title" doc:"Title"`
	Author        string    `json:"author" doc:"Author"`
	Genre         string    `json:"genre" doc:"Genre"`
	Year          int       `json:"year" doc:"Publication year"`
	ImageRef      string    `json:"imageRef" doc:"Stored cover reference"`
	ImageURL      string    `json:"imageUrl" doc:"Absolute cover URL"`
	ImageBlurHash string    `json:"imageBlurHash,omitempty" doc:"BlurHash placeholder for the cover"`
	Ratings       []Rating  `json:"ratings" doc:"Ratings in the order they were given"`
	AverageRating float64   `json:"averageRating" doc:"Mean of all grades, 0 when unrated"`
	CreatedAt     time.Time `json:"createdAt" doc:"Creation timestamp"`
	UpdatedAt     time.Time `json:"updatedAt" doc:"Last update timestamp"`
}

// NewBook converts a domain book, resolving its image against publicURL.
func NewBook(book *domain.Book, publicURL string) Book {
	ratings := make([]Rating, 0, len(book.Ratings()))
	for _, r := range book.Ratings() {
		ratings = append(ratings, Rating{UserID: r.UserID, Grade: r.Grade})
	}

	return Book{
		ID:            book.ID,
		UserID:        book.UserID,
		Title:         book.Title,
		Author:        book.Author,
		Genre:         book.Genre,
		Year:          book.Year,
		ImageRef:      book.ImageRef,
		ImageURL:      ImageURL(publicURL, book.ImageRef),
		ImageBlurHash: book.ImageBlurHash,
		Ratings:       ratings,
		AverageRating: book.AverageRating(),
		CreatedAt:     book.CreatedAt,
		UpdatedAt:     book.UpdatedAt,
	}
}

// NewBooks converts a list of domain books.
func NewBooks(books []*domain.Book, publicURL string) []Book {
	out := make([]Book, len(books))
	for i, book := range books {
		out[i] = NewBook(book, publicURL)
	}
	return out
}

// ImageURL joins the public base URL and a stored image reference.
func ImageURL(publicURL, ref string) string {
	if ref == "" {
		return ""
	}
	return strings.TrimSuffix(publicURL, "/") + "/" + strings.TrimPrefix(ref, "/")
}

// BookOutput wraps a single book for huma.
type BookOutput struct {
	Body Book
}

// BookListOutput wraps a list of books for huma.
type BookListOutput struct {
	Body []Book
}

// GenreCount is a genre slug with the number of books filed under it.
type GenreCount struct {
	Genre string `json:"genre" doc:"Canonical genre slug"`
	Count int    `json:"count" doc:"Number of books"`
}

// GenreListOutput wraps genre counts for huma.
type GenreListOutput struct {
	Body []GenreCount
}

// BookMessageResponse is returned by create and update.
type BookMessageResponse struct {
	Message string `json:"message" doc:"Status message"`
	Book    Book   `json:"book" doc:"The stored book"`
}

// BestRatedInput selects how many top books to return.
type BestRatedInput struct {
	Limit int `query:"limit" default:"3" minimum:"1" maximum:"50" doc:"Number of books"`
}

// SearchBooksInput holds the search query parameters.
type SearchBooksInput struct {
	Query   string `query:"q" maxLength:"200" doc:"Text matched against title and author"`
	Genre   string `query:"genre" maxLength:"50" doc:"Genre filter; aliases such as sci-fi are understood"`
	MinYear int    `query:"minYear" minimum:"0" doc:"Earliest publication year"`
	MaxYear int    `query:"maxYear" minimum:"0" doc:"Latest publication year"`
	Sort    string `query:"sort" enum:"relevance,rating,recent,title,year" default:"relevance" doc:"Result order"`
	Limit   int    `query:"limit" default:"20" minimum:"1" maximum:"100" doc:"Page size"`
	Offset  int    `query:"offset" default:"0" minimum:"0" doc:"Results to skip"`
}

// DeleteBookInput identifies the book to delete.
type DeleteBookInput struct {
	Authorization string `header:"Authorization"`
	ID            string `path:"id" doc:"Book ID"`
}

// RateBookRequest is the rating body. Grade and its alias rating are
// optional in the schema so a missing grade reports INVALID_GRADE rather
// than a schema error.
type RateBookRequest struct {
	UserID string   `json:"userId,omitempty" doc:"Must match the authenticated user when present"`
	Grade  *float64 `json:"grade,omitempty" doc:"Whole number from 0 to 5"`
	Rating *float64 `json:"rating,omitempty" doc:"Alias for grade"`
}

// RateBookInput wraps the rating request for huma.
type RateBookInput struct {
	Authorization string `header:"Authorization"`
	ID            string `path:"id" doc:"Book ID"`
	Body          RateBookRequest
}

// GradeValue returns grade, falling back to rating.
func (r RateBookRequest) GradeValue() *float64 {
	if r.Grade != nil {
		return r.Grade
	}
	return r.Rating
}
