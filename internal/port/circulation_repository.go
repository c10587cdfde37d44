package port

import (
	"context"
	"time"

	"github.com/rl1809/library-circulation/internal/core/domain"
)

type CirculationRepository interface {
	// RunInTx runs fn inside one transaction. A non-nil error from fn rolls the
	// transaction back before it is returned; nil commits.
	RunInTx(ctx context.Context, fn func(tx CirculationTx) error) error

	// MemberHistory lists a member's issues joined with their books, newest first
	MemberHistory(ctx context.Context, memberID int64) ([]domain.HistoryEntry, error)
}

// CirculationTx is the set of statements the issue and return protocols run
// while holding a row lock.
type CirculationTx interface {
	// MemberExists reports whether the member row is present
	MemberExists(ctx context.Context, memberID int64) (bool, error)

	// LockBook reads the copy ledger under an exclusive row lock, nil if the book does not exist
	LockBook(ctx context.Context, bookID int64) (*domain.CopyLedger, error)

	// InsertIssue creates an open issue record and returns its id
	InsertIssue(ctx context.Context, issue domain.Issue) (int64, error)

	// TakeCopy decrements copies_available by one
	TakeCopy(ctx context.Context, bookID int64) error

	// LockIssue reads the issue record under an exclusive row lock, nil if it does not exist
	LockIssue(ctx context.Context, issueID int64) (*domain.Issue, error)

	// MarkReturned sets returned_at on an open issue
	MarkReturned(ctx context.Context, issueID int64, at time.Time) error

	// ReleaseCopy increments copies_available by one, never above copies_total
	ReleaseCopy(ctx context.Context, bookID int64) error
}
