package port

import (
	"context"

	"github.com/rl1809/library-circulation/internal/core/domain"
)

type SessionStore interface {
	Save(ctx context.Context, session domain.Session) error

	// Get returns domain.ErrSessionNotFound for unknown or expired tokens
	Get(ctx context.Context, token string) (domain.Session, error)

	Delete(ctx context.Context, token string) error
}
