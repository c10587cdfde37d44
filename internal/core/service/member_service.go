package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/rl1809/library-circulation/internal/core/domain"
	"github.com/rl1809/library-circulation/internal/port"
)

type MemberService struct {
	repo port.MemberRepository
	log  *zap.Logger
	now  func() time.Time
}

func NewMemberService(repo port.MemberRepository, log *zap.Logger) *MemberService {
	return &MemberService{repo: repo, log: log, now: serverClock}
}

func (s *MemberService) Register(ctx context.Context, member domain.Member) (domain.Member, error) {
	member.FullName = strings.TrimSpace(member.FullName)
	if member.FullName == "" {
		return domain.Member{}, domain.ErrMissingFullName
	}
	member.CreatedAt = s.now()

	id, err := s.repo.CreateMember(ctx, member)
	if err != nil {
		return domain.Member{}, fmt.Errorf("create member: %w", err)
	}

	s.log.Info("member registered", zap.Int64("member_id", id))
	return s.GetMember(ctx, id)
}

func (s *MemberService) GetMember(ctx context.Context, memberID int64) (domain.Member, error) {
	if memberID <= 0 {
		return domain.Member{}, domain.ErrInvalidMemberID
	}

	member, err := s.repo.GetMember(ctx, memberID)
	if err != nil {
		return domain.Member{}, fmt.Errorf("get member: %w", err)
	}
	if member == nil {
		return domain.Member{}, domain.ErrMemberNotFound
	}
	return *member, nil
}

func (s *MemberService) ListMembers(ctx context.Context) ([]domain.Member, error) {
	members, err := s.repo.ListMembers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	if members == nil {
		members = []domain.Member{}
	}
	return members, nil
}
