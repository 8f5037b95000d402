package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/shelfmark/shelfmark-server/internal/api/dto"
	domainerrors "github.com/shelfmark/shelfmark-server/internal/errors"
	"github.com/shelfmark/shelfmark-server/internal/search"
)

var bearerSecurity = []map[string][]string{{"bearer": {}}}

func (s *Server) registerBookRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "listBooks",
		Method:      http.MethodGet,
		Path:        "/api/books",
		Summary:     "List books",
		Description: "Returns every book. Responds 404 when the catalog is empty.",
		Tags:        []string{"Books"},
	}, s.handleListBooks)

	huma.Register(s.api, huma.Operation{
		OperationID: "bestRatedBooks",
		Method:      http.MethodGet,
		Path:        "/api/books/bestrating",
		Summary:     "Best rated books",
		Description: "Returns the books with the highest average rating",
		Tags:        []string{"Books"},
	}, s.handleBestRated)

	huma.Register(s.api, huma.Operation{
		OperationID: "searchBooks",
		Method:      http.MethodGet,
		Path:        "/api/books/search",
		Summary:     "Search books",
		Description: "Full-text search over titles and authors with an optional genre filter",
		Tags:        []string{"Books"},
	}, s.handleSearchBooks)

	huma.Register(s.api, huma.Operation{
		OperationID: "listGenres",
		Method:      http.MethodGet,
		Path:        "/api/books/genres",
		Summary:     "List genres",
		Description: "Returns genre slugs with their book counts, most common first",
		Tags:        []string{"Books"},
	}, s.handleListGenres)

	huma.Register(s.api, huma.Operation{
		OperationID: "getBook",
		Method:      http.MethodGet,
		Path:        "/api/books/{id}",
		Summary:     "Get book",
		Tags:        []string{"Books"},
	}, s.handleGetBook)

	huma.Register(s.api, huma.Operation{
		OperationID: "deleteBook",
		Method:      http.MethodDelete,
		Path:        "/api/books/{id}",
		Summary:     "Delete book",
		Description: "Deletes a book and its cover. Only the owner may delete it.",
		Tags:        []string{"Books"},
		Security:    bearerSecurity,
	}, s.handleDeleteBook)

	huma.Register(s.api, huma.Operation{
		OperationID: "rateBook",
		Method:      http.MethodPost,
		Path:        "/api/books/{id}/rating",
		Summary:     "Rate book",
		Description: "Adds the authenticated user's grade. Each user can rate a book once.",
		Tags:        []string{"Books"},
		Security:    bearerSecurity,
	}, s.handleRateBook)
}

func (s *Server) handleListBooks(ctx context.Context, _ *struct{}) (*dto.BookListOutput, error) {
	books, err := s.services.Catalog.List(ctx)
	if err != nil {
		return nil, err
	}
	return &dto.BookListOutput{Body: dto.NewBooks(books, s.config.PublicURL)}, nil
}

func (s *Server) handleBestRated(ctx context.Context, input *dto.BestRatedInput) (*dto.BookListOutput, error) {
	books, err := s.services.Catalog.BestRated(ctx, input.Limit)
	if err != nil {
		return nil, err
	}
	return &dto.BookListOutput{Body: dto.NewBooks(books, s.config.PublicURL)}, nil
}

func (s *Server) handleSearchBooks(ctx context.Context, input *dto.SearchBooksInput) (*dto.BookListOutput, error) {
	books, err := s.services.Catalog.Search(ctx, search.SearchParams{
		Query:   input.Query,
		Genre:   input.Genre,
		MinYear: input.MinYear,
		MaxYear: input.MaxYear,
		SortBy:  input.Sort,
		Limit:   input.Limit,
		Offset:  input.Offset,
	})
	if err != nil {
		return nil, err
	}
	return &dto.BookListOutput{Body: dto.NewBooks(books, s.config.PublicURL)}, nil
}

func (s *Server) handleListGenres(ctx context.Context, _ *struct{}) (*dto.GenreListOutput, error) {
	genres, err := s.services.Catalog.Genres(ctx)
	if err != nil {
		return nil, err
	}

	body := make([]dto.GenreCount, len(genres))
	for i, g := range genres {
		body[i] = dto.GenreCount{Genre: g.Genre, Count: g.Count}
	}
	return &dto.GenreListOutput{Body: body}, nil
}

func (s *Server) handleGetBook(ctx context.Context, input *dto.IDParam) (*dto.BookOutput, error) {
	book, err := s.services.Catalog.Get(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	return &dto.BookOutput{Body: dto.NewBook(book, s.config.PublicURL)}, nil
}

func (s *Server) handleDeleteBook(ctx context.Context, input *dto.DeleteBookInput) (*dto.MessageOutput, error) {
	userID, err := s.authenticateRequest(ctx, input.Authorization)
	if err != nil {
		return nil, err
	}

	if err := s.services.Catalog.Delete(ctx, userID, input.ID); err != nil {
		return nil, err
	}

	return &dto.MessageOutput{Body: dto.MessageResponse{Message: "Book deleted"}}, nil
}

func (s *Server) handleRateBook(ctx context.Context, input *dto.RateBookInput) (*dto.BookOutput, error) {
	userID, err := s.authenticateRequest(ctx, input.Authorization)
	if err != nil {
		return nil, err
	}

	// The rater is always the token holder; a body userId may only confirm it.
	if input.Body.UserID != "" && input.Body.UserID != userID {
		return nil, domainerrors.Forbidden("userId does not match the authenticated user")
	}

	book, err := s.services.Catalog.Rate(ctx, userID, input.ID, input.Body.GradeValue())
	if err != nil {
		return nil, err
	}

	return &dto.BookOutput{Body: dto.NewBook(book, s.config.PublicURL)}, nil
}
