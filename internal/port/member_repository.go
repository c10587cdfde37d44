package port

import (
	"context"

	"github.com/rl1809/library-circulation/internal/core/domain"
)

type MemberRepository interface {
	CreateMember(ctx context.Context, member domain.Member) (int64, error)

	// GetMember returns nil when the member does not exist
	GetMember(ctx context.Context, memberID int64) (*domain.Member, error)

	ListMembers(ctx context.Context) ([]domain.Member, error)
}
