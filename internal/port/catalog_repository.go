package port

import (
	"context"

	"github.com/rl1809/library-circulation/internal/core/domain"
)

type CatalogRepository interface {
	CreateBook(ctx context.Context, book domain.Book) (int64, error)

	// GetBook returns nil when the book does not exist
	GetBook(ctx context.Context, bookID int64) (*domain.Book, error)

	ListBooks(ctx context.Context, query domain.BookQuery) (domain.BookPage, error)
}
