package domain

import (
	"encoding/json"
	"slices"

	domainerrors "github.com/shelfmark/shelfmark-server/internal/errors"
)

// Grade bounds, inclusive.
const (
	MinGrade = 0
	MaxGrade = 5
)

// Rating is one rater's grade for a book.
type Rating struct {
	UserID string `json:"userId"`
	Grade  int    `json:"grade"`
}

// Book is a catalog entry owned by the user who created it.
//
// Ratings and the average are unexported: AddRating is the only way to
// change them, and it recomputes the average in the same step.
type Book struct {
	Record
	UserID        string `json:"userId"`
	Title         string `json:"title"`
	Author        string `json:"author"`
	Genre         string `json:"genre"`
	Year          int    `json:"year"`
	ImageRef      string `json:"imageRef"`
	ImageBlurHash string `json:"imageBlurHash,omitempty"`

	ratings       []Rating
	averageRating float64
}

// Ratings returns a copy of the ratings in insertion order.
func (b *Book) Ratings() []Rating {
	return slices.Clone(b.ratings)
}

// AverageRating returns the mean grade, or 0 when the book has no ratings.
func (b *Book) AverageRating() float64 {
	return b.averageRating
}

// HasRated reports whether userID already rated the book.
func (b *Book) HasRated(userID string) bool {
	return slices.ContainsFunc(b.ratings, func(r Rating) bool {
		return r.UserID == userID
	})
}

// AddRating appends a rating and recomputes the average.
// Returns ErrInvalidGrade for grades outside [MinGrade, MaxGrade] and
// ErrAlreadyRated when userID has rated before; the book is unchanged then.
func (b *Book) AddRating(userID string, grade int) error {
	if grade < MinGrade || grade > MaxGrade {
		return domainerrors.ErrInvalidGrade
	}
	if b.HasRated(userID) {
		return domainerrors.ErrAlreadyRated
	}

	b.ratings = append(b.ratings, Rating{UserID: userID, Grade: grade})
	b.averageRating = meanGrade(b.ratings)
	return nil
}

func meanGrade(ratings []Rating) float64 {
	if len(ratings) == 0 {
		return 0
	}
	sum := 0
	for _, r := range ratings {
		sum += r.Grade
	}
	return float64(sum) / float64(len(ratings))
}

// bookDocument is the serialized shape of a Book.
type bookDocument struct {
	Record
	UserID        string   `json:"userId"`
	Title         string   `json:"title"`
	Author        string   `json:"author"`
	Genre         string   `json:"genre"`
	Year          int      `json:"year"`
	ImageRef      string   `json:"imageRef"`
	ImageBlurHash string   `json:"imageBlurHash,omitempty"`
	Ratings       []Rating `json:"ratings"`
	AverageRating float64  `json:"averageRating"`
}

// MarshalJSON includes ratings and the average.
func (b Book) MarshalJSON() ([]byte, error) {
	ratings := b.ratings
	if ratings == nil {
		ratings = []Rating{}
	}
	return json.Marshal(bookDocument{
		Record:        b.Record,
		UserID:        b.UserID,
		Title:         b.Title,
		Author:        b.Author,
		Genre:         b.Genre,
		Year:          b.Year,
		ImageRef:      b.ImageRef,
		ImageBlurHash: b.ImageBlurHash,
		Ratings:       ratings,
		AverageRating: b.averageRating,
	})
}

// UnmarshalJSON restores a book. The stored average is ignored and
// recomputed from the ratings.
func (b *Book) UnmarshalJSON(data []byte) error {
	var doc bookDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}

	*b = Book{
		Record:        doc.Record,
		UserID:        doc.UserID,
		Title:         doc.Title,
		Author:        doc.Author,
		Genre:         doc.Genre,
		Year:          doc.Year,
		ImageRef:      doc.ImageRef,
		ImageBlurHash: doc.ImageBlurHash,
		ratings:       doc.Ratings,
		averageRating: meanGrade(doc.Ratings),
	}
	return nil
}

// BookPatch carries an update. A nil or zero-valued field means "leave as
// is"; a patch can therefore never blank a string or set year to 0.
type BookPatch struct {
	Title  *string
	Author *string
	Genre  *string
	Year   *int
}

// Apply copies the present, non-zero fields onto b and reports whether
// anything changed. Ownership, ratings and the image are never patched.
func (p BookPatch) Apply(b *Book) bool {
	changed := false
	setString := func(dst *string, src *string) {
		if src != nil && *src != "" && *src != *dst {
			*dst = *src
			changed = true
		}
	}

	setString(&b.Title, p.Title)
	setString(&b.Author, p.Author)
	setString(&b.Genre, p.Genre)
	if p.Year != nil && *p.Year != 0 && *p.Year != b.Year {
		b.Year = *p.Year
		changed = true
	}

	return changed
}
