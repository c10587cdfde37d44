package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/rl1809/library-circulation/internal/core/domain"
	"github.com/rl1809/library-circulation/internal/port"
)

const (
	instrumentationName  = "github.com/rl1809/library-circulation/internal/core/service"
	idempotencyKeyPrefix = "issue:"

	opIssue   = "issue"
	opReturn  = "return"
	opHistory = "history"
)

type CirculationService struct {
	repo  port.CirculationRepository
	cache port.CacheRepository
	log   *zap.Logger
	now   func() time.Time

	tracer trace.Tracer
	ops    metric.Int64Counter
}

type CirculationOption func(*CirculationService)

// WithIdempotencyCache enables request-id deduplication of issue requests.
func WithIdempotencyCache(cache port.CacheRepository) CirculationOption {
	return func(s *CirculationService) { s.cache = cache }
}

func WithClock(now func() time.Time) CirculationOption {
	return func(s *CirculationService) { s.now = now }
}

func NewCirculationService(repo port.CirculationRepository, log *zap.Logger, opts ...CirculationOption) *CirculationService {
	s := &CirculationService{
		repo:   repo,
		log:    log,
		now:    serverClock,
		tracer: otel.Tracer(instrumentationName),
	}
	for _, opt := range opts {
		opt(s)
	}

	ops, err := otel.Meter(instrumentationName).Int64Counter(
		"library.circulation.operations",
		metric.WithDescription("Issue, return and history calls by outcome"),
	)
	if err != nil {
		log.Warn("circulation counter unavailable", zap.Error(err))
		ops = noop.Int64Counter{}
	}
	s.ops = ops

	return s
}

// serverClock truncates to microseconds, the finest precision the stores keep.
func serverClock() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// Issue lends one copy of a book to a member. The book row stays locked from
// the availability check until commit, so concurrent issues of the same book
// are serialized and the second one sees the first one's decrement.
func (s *CirculationService) Issue(ctx context.Context, req domain.IssueRequest) (issue domain.Issue, err error) {
	ctx, span := s.tracer.Start(ctx, "circulation.issue", trace.WithAttributes(
		attribute.Int64("library.member_id", req.MemberID),
		attribute.Int64("library.book_id", req.BookID),
	))
	defer func() { s.finish(ctx, span, opIssue, err) }()

	if req.MemberID <= 0 || req.BookID <= 0 {
		return domain.Issue{}, domain.ErrMissingIssueFields
	}

	if req.RequestID != "" && s.cache != nil {
		key := idempotencyKeyPrefix + req.RequestID
		ok, cacheErr := s.cache.SetIdempotency(ctx, key)
		if cacheErr != nil {
			return domain.Issue{}, fmt.Errorf("idempotency check failed: %w", cacheErr)
		}
		if !ok {
			return domain.Issue{}, domain.ErrDuplicateRequest
		}
		defer func() {
			if err == nil {
				return
			}
			if clearErr := s.cache.ClearIdempotency(context.WithoutCancel(ctx), key); clearErr != nil {
				s.log.Warn("failed to clear idempotency key", zap.String("key", key), zap.Error(clearErr))
			}
		}()
	}

	issue = domain.Issue{
		MemberID: req.MemberID,
		BookID:   req.BookID,
		DueAt:    req.DueAt,
	}

	err = s.repo.RunInTx(ctx, func(tx port.CirculationTx) error {
		exists, err := tx.MemberExists(ctx, req.MemberID)
		if err != nil {
			return fmt.Errorf("check member: %w", err)
		}
		if !exists {
			return domain.ErrMemberNotFound
		}

		ledger, err := tx.LockBook(ctx, req.BookID)
		if err != nil {
			return fmt.Errorf("lock book: %w", err)
		}
		if ledger == nil {
			return domain.ErrBookNotFound
		}
		if !ledger.CanIssue() {
			return domain.ErrNoCopiesAvailable
		}

		// read under the lock so issued_at follows commit order
		issue.IssuedAt = s.now()
		id, err := tx.InsertIssue(ctx, issue)
		if err != nil {
			return fmt.Errorf("insert issue: %w", err)
		}
		if err := tx.TakeCopy(ctx, req.BookID); err != nil {
			return fmt.Errorf("take copy: %w", err)
		}

		issue.ID = id
		return nil
	})
	if err != nil {
		return domain.Issue{}, err
	}

	return issue, nil
}

// Return closes an open issue and puts its copy back. The issue row lock makes
// the already-returned check and the increment one step, so a copy is never
// released twice.
func (s *CirculationService) Return(ctx context.Context, issueID int64) (returnedAt time.Time, err error) {
	ctx, span := s.tracer.Start(ctx, "circulation.return", trace.WithAttributes(
		attribute.Int64("library.issue_id", issueID),
	))
	defer func() { s.finish(ctx, span, opReturn, err) }()

	if issueID <= 0 {
		return time.Time{}, domain.ErrInvalidIssueID
	}

	err = s.repo.RunInTx(ctx, func(tx port.CirculationTx) error {
		issue, err := tx.LockIssue(ctx, issueID)
		if err != nil {
			return fmt.Errorf("lock issue: %w", err)
		}
		if issue == nil {
			return domain.ErrIssueNotFound
		}
		if issue.Returned() {
			return domain.ErrAlreadyReturned
		}

		at := s.now()
		if err := tx.MarkReturned(ctx, issueID, at); err != nil {
			return fmt.Errorf("mark returned: %w", err)
		}
		if err := tx.ReleaseCopy(ctx, issue.BookID); err != nil {
			return fmt.Errorf("release copy: %w", err)
		}

		returnedAt = at
		return nil
	})
	if err != nil {
		return time.Time{}, err
	}

	return returnedAt, nil
}

// History lists every issue of a member, newest first. A member without
// loans gets an empty slice.
func (s *CirculationService) History(ctx context.Context, memberID int64) (entries []domain.HistoryEntry, err error) {
	ctx, span := s.tracer.Start(ctx, "circulation.history", trace.WithAttributes(
		attribute.Int64("library.member_id", memberID),
	))
	defer func() { s.finish(ctx, span, opHistory, err) }()

	if memberID <= 0 {
		return nil, domain.ErrInvalidMemberID
	}

	entries, err = s.repo.MemberHistory(ctx, memberID)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	if entries == nil {
		entries = []domain.HistoryEntry{}
	}

	return entries, nil
}

func (s *CirculationService) finish(ctx context.Context, span trace.Span, op string, err error) {
	outcome := Outcome(err)
	s.ops.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", op),
		attribute.String("outcome", outcome),
	))

	fields := []zap.Field{zap.String("operation", op)}
	if session, ok := SessionFromContext(ctx); ok {
		fields = append(fields, zap.Int64("librarian_id", session.Librarian))
	}

	switch outcome {
	case "ok":
	case "error":
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.log.Error("circulation operation failed", append(fields, zap.Error(err))...)
	default:
		span.SetAttributes(attribute.String("library.outcome", outcome))
		s.log.Info("circulation operation rejected", append(fields, zap.String("outcome", outcome), zap.Error(err))...)
	}
	span.End()
}

// Outcome names the error category of err, "ok" for nil.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrValidation):
		return "invalid"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrConflict):
		return "conflict"
	default:
		return "error"
	}
}
