package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shelfmark/shelfmark-server/internal/domain"
)

// CreateBook stores a new book.
func (s *Store) CreateBook(ctx context.Context, book *domain.Book) error {
	if err := s.Books.Create(ctx, book.ID, book); err != nil {
		return fmt.Errorf("create book: %w", err)
	}

	s.logger.LogAttrs(ctx, slog.LevelInfo, "book created",
		slog.String("id", book.ID),
		slog.String("user_id", book.UserID),
		slog.String("title", book.Title),
	)
	s.indexBook(ctx, book)
	return nil
}

// GetBook retrieves a book by ID.
func (s *Store) GetBook(ctx context.Context, id string) (*domain.Book, error) {
	book, err := s.Books.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get book: %w", err)
	}
	return book, nil
}

// UpdateBook replaces a stored book and bumps its UpdatedAt.
func (s *Store) UpdateBook(ctx context.Context, book *domain.Book) error {
	book.Touch()
	if err := s.Books.Update(ctx, book.ID, book); err != nil {
		return fmt.Errorf("update book: %w", err)
	}

	s.logger.Info("book updated", "id", book.ID, "title", book.Title)
	s.indexBook(ctx, book)
	return nil
}

// DeleteBook removes a book.
func (s *Store) DeleteBook(ctx context.Context, id string) error {
	if err := s.Books.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete book: %w", err)
	}

	s.logger.Info("book deleted", "id", id)
	if err := s.searchIndexer.DeleteBook(ctx, id); err != nil {
		s.logger.Warn("failed to remove book from search index", "book_id", id, "error", err)
	}
	return nil
}

// ListBooks returns every book in store iteration order.
func (s *Store) ListBooks(ctx context.Context) ([]*domain.Book, error) {
	books, err := s.Books.Collect(ctx)
	if err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	return books, nil
}

func (s *Store) indexBook(ctx context.Context, book *domain.Book) {
	if err := s.searchIndexer.IndexBook(ctx, book); err != nil {
		s.logger.Warn("failed to index book for search", "book_id", book.ID, "error", err)
	}
}
