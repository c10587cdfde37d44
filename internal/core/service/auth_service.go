package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/rl1809/library-circulation/internal/core/domain"
	"github.com/rl1809/library-circulation/internal/port"
)

const (
	DefaultSessionTTL = time.Hour
	bcryptCost        = 10
)

type AuthService struct {
	librarians port.LibrarianRepository
	sessions   port.SessionStore
	ttl        time.Duration
	log        *zap.Logger
	now        func() time.Time
}

func NewAuthService(librarians port.LibrarianRepository, sessions port.SessionStore, ttl time.Duration, log *zap.Logger) *AuthService {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &AuthService{
		librarians: librarians,
		sessions:   sessions,
		ttl:        ttl,
		log:        log,
		now:        time.Now,
	}
}

type sessionKey struct{}

// ContextWithSession marks ctx as acting on behalf of a logged-in librarian.
func ContextWithSession(ctx context.Context, session domain.Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, session)
}

// SessionFromContext returns the session set by ContextWithSession.
func SessionFromContext(ctx context.Context) (domain.Session, bool) {
	session, ok := ctx.Value(sessionKey{}).(domain.Session)
	return session, ok
}

func (s *AuthService) SessionTTL() time.Duration {
	return s.ttl
}

// Login checks a librarian's credentials and opens a session. Accounts that
// still carry a plain-text password are accepted until they are rehashed.
func (s *AuthService) Login(ctx context.Context, email, password string) (domain.Session, error) {
	email = domain.NormalizeEmail(email)
	if email == "" || password == "" {
		return domain.Session{}, domain.ErrMissingCredentials
	}

	librarian, err := s.librarians.FindActiveLibrarian(ctx, email)
	if err != nil {
		return domain.Session{}, fmt.Errorf("find librarian: %w", err)
	}
	if librarian == nil {
		return domain.Session{}, domain.ErrUnknownLibrarian
	}
	if !passwordMatches(*librarian, password) {
		s.log.Info("login rejected", zap.Int64("librarian_id", librarian.ID))
		return domain.Session{}, domain.ErrInvalidCredentials
	}
	if !librarian.HasBcryptHash() {
		s.log.Warn("librarian still uses a plain-text password", zap.Int64("librarian_id", librarian.ID))
	}

	session := domain.Session{
		Token:     uuid.NewString(),
		Librarian: librarian.ID,
		Email:     librarian.Email,
		Name:      librarian.Name,
		ExpiresAt: s.now().Add(s.ttl),
	}
	if err := s.sessions.Save(ctx, session); err != nil {
		return domain.Session{}, fmt.Errorf("save session: %w", err)
	}

	s.log.Info("librarian logged in", zap.Int64("librarian_id", librarian.ID))
	return session, nil
}

func passwordMatches(librarian domain.Librarian, password string) bool {
	if librarian.HasBcryptHash() {
		return bcrypt.CompareHashAndPassword([]byte(librarian.PasswordHash), []byte(password)) == nil
	}
	if librarian.PasswordHash == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(librarian.PasswordHash), []byte(password)) == 1
}

// Authenticate resolves a session token. Expired sessions are removed.
func (s *AuthService) Authenticate(ctx context.Context, token string) (domain.Session, error) {
	if token == "" {
		return domain.Session{}, domain.ErrSessionNotFound
	}

	session, err := s.sessions.Get(ctx, token)
	if err != nil {
		return domain.Session{}, err
	}
	if !session.ExpiresAt.IsZero() && s.now().After(session.ExpiresAt) {
		if err := s.sessions.Delete(ctx, token); err != nil {
			s.log.Warn("failed to drop expired session", zap.Error(err))
		}
		return domain.Session{}, domain.ErrSessionNotFound
	}
	return session, nil
}

func (s *AuthService) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := s.sessions.Delete(ctx, token); err != nil && !errors.Is(err, domain.ErrSessionNotFound) {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// RegisterLibrarian creates an active account with a bcrypt-hashed password.
func (s *AuthService) RegisterLibrarian(ctx context.Context, email, name, password string) (int64, error) {
	email = domain.NormalizeEmail(email)
	if email == "" || password == "" {
		return 0, domain.ErrMissingCredentials
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return 0, fmt.Errorf("hash password: %w", err)
	}

	existing, err := s.librarians.FindLibrarian(ctx, email)
	if err != nil {
		return 0, fmt.Errorf("find librarian: %w", err)
	}
	if existing != nil {
		return 0, domain.ErrEmailTaken
	}

	id, err := s.librarians.CreateLibrarian(ctx, domain.Librarian{
		Email:        email,
		Name:         strings.TrimSpace(name),
		PasswordHash: string(hash),
		Active:       true,
		CreatedAt:    serverClock(),
	})
	if err != nil {
		return 0, fmt.Errorf("create librarian: %w", err)
	}
	return id, nil
}
