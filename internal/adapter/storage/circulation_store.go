package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/jmoiron/sqlx"

	"github.com/rl1809/library-circulation/internal/core/domain"
)

// sqlTx holds the statements of the issue and return protocols. Queries use
// ? placeholders and are rebound to the driver's bind style.
type sqlTx struct {
	tx      *sqlx.Tx
	dialect dialect
}

type ledgerRow struct {
	ID              int64 `db:"id"`
	CopiesTotal     int   `db:"copies_total"`
	CopiesAvailable int   `db:"copies_available"`
}

type issueRow struct {
	ID         int64        `db:"id"`
	MemberID   int64        `db:"member_id"`
	BookID     int64        `db:"book_id"`
	IssuedAt   time.Time    `db:"issued_at"`
	DueAt      sql.NullTime `db:"due_at"`
	ReturnedAt sql.NullTime `db:"returned_at"`
}

func (r issueRow) toDomain() domain.Issue {
	return domain.Issue{
		ID:         r.ID,
		MemberID:   r.MemberID,
		BookID:     r.BookID,
		IssuedAt:   r.IssuedAt.UTC(),
		DueAt:      timePtr(r.DueAt),
		ReturnedAt: timePtr(r.ReturnedAt),
	}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}

func (t *sqlTx) MemberExists(ctx context.Context, memberID int64) (bool, error) {
	var n int
	q := t.tx.Rebind(`SELECT COUNT(*) FROM members WHERE id = ?`)
	if err := t.tx.GetContext(ctx, &n, q, memberID); err != nil {
		return false, fmt.Errorf("check member %d: %w", memberID, err)
	}
	return n > 0, nil
}

func (t *sqlTx) LockBook(ctx context.Context, bookID int64) (*domain.CopyLedger, error) {
	var row ledgerRow
	q := t.tx.Rebind(`SELECT id, copies_total, copies_available FROM books WHERE id = ?` + t.dialect.lockClause)
	err := t.tx.GetContext(ctx, &row, q, bookID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lock book %d: %w", bookID, err)
	}
	return &domain.CopyLedger{BookID: row.ID, Total: row.CopiesTotal, Available: row.CopiesAvailable}, nil
}

func (t *sqlTx) InsertIssue(ctx context.Context, issue domain.Issue) (int64, error) {
	ds := goqu.Dialect(t.dialect.goqu).Insert("issues").Rows(goqu.Record{
		"member_id":   issue.MemberID,
		"book_id":     issue.BookID,
		"issued_at":   issue.IssuedAt,
		"due_at":      nullTime(issue.DueAt),
		"returned_at": nil,
	})
	id, err := insertID(ctx, t.tx, t.dialect, ds)
	if err != nil {
		return 0, fmt.Errorf("insert issue: %w", err)
	}
	return id, nil
}

// TakeCopy refuses to go below zero even though the caller holds the lock.
func (t *sqlTx) TakeCopy(ctx context.Context, bookID int64) error {
	q := t.tx.Rebind(`UPDATE books SET copies_available = copies_available - 1 WHERE id = ? AND copies_available > 0`)
	res, err := t.tx.ExecContext(ctx, q, bookID)
	if err != nil {
		return fmt.Errorf("take copy of book %d: %w", bookID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("take copy of book %d: %w", bookID, err)
	}
	if n == 0 {
		return domain.ErrNoCopiesAvailable
	}
	return nil
}

func (t *sqlTx) LockIssue(ctx context.Context, issueID int64) (*domain.Issue, error) {
	var row issueRow
	q := t.tx.Rebind(`SELECT id, member_id, book_id, issued_at, due_at, returned_at FROM issues WHERE id = ?` + t.dialect.lockClause)
	err := t.tx.GetContext(ctx, &row, q, issueID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lock issue %d: %w", issueID, err)
	}
	issue := row.toDomain()
	return &issue, nil
}

func (t *sqlTx) MarkReturned(ctx context.Context, issueID int64, at time.Time) error {
	q := t.tx.Rebind(`UPDATE issues SET returned_at = ? WHERE id = ? AND returned_at IS NULL`)
	res, err := t.tx.ExecContext(ctx, q, at, issueID)
	if err != nil {
		return fmt.Errorf("mark issue %d returned: %w", issueID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark issue %d returned: %w", issueID, err)
	}
	if n == 0 {
		return domain.ErrAlreadyReturned
	}
	return nil
}

// ReleaseCopy clamps in SQL so concurrent returns of different issues of the
// same book cannot push availability past the total.
func (t *sqlTx) ReleaseCopy(ctx context.Context, bookID int64) error {
	q := t.tx.Rebind(`UPDATE books SET copies_available = CASE WHEN copies_available + 1 > copies_total THEN copies_total ELSE copies_available + 1 END WHERE id = ?`)
	if _, err := t.tx.ExecContext(ctx, q, bookID); err != nil {
		return fmt.Errorf("release copy of book %d: %w", bookID, err)
	}
	return nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

type historyRow struct {
	ID         int64          `db:"id"`
	IssuedAt   time.Time      `db:"issued_at"`
	DueAt      sql.NullTime   `db:"due_at"`
	ReturnedAt sql.NullTime   `db:"returned_at"`
	BookID     int64          `db:"book_id"`
	Title      string         `db:"title"`
	Author     sql.NullString `db:"author"`
}

func (s *SQLStore) MemberHistory(ctx context.Context, memberID int64) ([]domain.HistoryEntry, error) {
	query, args, err := s.builder().
		From(goqu.T("issues").As("i")).
		Join(goqu.T("books").As("b"), goqu.On(goqu.I("b.id").Eq(goqu.I("i.book_id")))).
		Select(
			goqu.I("i.id").As("id"),
			goqu.I("i.issued_at").As("issued_at"),
			goqu.I("i.due_at").As("due_at"),
			goqu.I("i.returned_at").As("returned_at"),
			goqu.I("b.id").As("book_id"),
			goqu.I("b.title").As("title"),
			goqu.I("b.author").As("author"),
		).
		Where(goqu.I("i.member_id").Eq(memberID)).
		Order(goqu.I("i.issued_at").Desc(), goqu.I("i.id").Desc()).
		Prepared(true).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build history query: %w", err)
	}

	var rows []historyRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("member %d history: %w", memberID, err)
	}

	entries := make([]domain.HistoryEntry, 0, len(rows))
	for _, r := range rows {
		entries = append(entries, domain.HistoryEntry{
			ID:         r.ID,
			IssuedAt:   r.IssuedAt.UTC(),
			DueAt:      timePtr(r.DueAt),
			ReturnedAt: timePtr(r.ReturnedAt),
			Book: domain.BookSummary{
				ID:     r.BookID,
				Title:  r.Title,
				Author: r.Author.String,
			},
		})
	}
	return entries, nil
}
