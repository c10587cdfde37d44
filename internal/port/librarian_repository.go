package port

import (
	"context"

	"github.com/rl1809/library-circulation/internal/core/domain"
)

type LibrarianRepository interface {
	CreateLibrarian(ctx context.Context, librarian domain.Librarian) (int64, error)

	// FindActiveLibrarian looks up an active account by normalized email, nil if none
	FindActiveLibrarian(ctx context.Context, email string) (*domain.Librarian, error)

	// FindLibrarian looks up an account by normalized email whether or not it is active
	FindLibrarian(ctx context.Context, email string) (*domain.Librarian, error)
}
