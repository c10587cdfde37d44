package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/rl1809/library-circulation/internal/core/domain"
	"github.com/rl1809/library-circulation/internal/port"
)

var errBoom = errors.New("boom")

func newSQLiteStore(t *testing.T) *SQLStore {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_foreign_keys=1&_txlock=immediate",
		filepath.Join(t.TempDir(), "library.db"))
	store, err := OpenSQLStore(context.Background(), DriverSQLite, dsn, PoolConfig{MaxOpenConns: 8}, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	require.NoError(t, store.Migrate(context.Background()))
	return store
}

func externalStore(t *testing.T, driver, envVar string) *SQLStore {
	t.Helper()

	dsn := os.Getenv(envVar)
	if dsn == "" {
		t.Skipf("%s not set", envVar)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	store, err := OpenSQLStore(ctx, driver, dsn, PoolConfig{MaxOpenConns: 20}, zaptest.NewLogger(t))
	if err != nil {
		t.Skipf("%s not available: %v", driver, err)
	}
	t.Cleanup(func() { store.Close() })

	require.NoError(t, store.Migrate(context.Background()))
	return store
}

// forEachStore runs fn on SQLite, and on MySQL and Postgres when reachable.
// Tests create their own rows, so the shared external databases need no cleanup.
func forEachStore(t *testing.T, fn func(t *testing.T, s *SQLStore)) {
	t.Run("sqlite", func(t *testing.T) { fn(t, newSQLiteStore(t)) })
	t.Run("mysql", func(t *testing.T) { fn(t, externalStore(t, DriverMySQL, "MYSQL_DSN")) })
	t.Run("postgres", func(t *testing.T) { fn(t, externalStore(t, DriverPGX, "POSTGRES_DSN")) })
}

func now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

func seedMember(t *testing.T, s *SQLStore) int64 {
	t.Helper()
	id, err := s.CreateMember(context.Background(), domain.Member{FullName: "Member " + uuid.NewString()[:8], CreatedAt: now()})
	require.NoError(t, err)
	return id
}

func seedBook(t *testing.T, s *SQLStore, total, available int) int64 {
	t.Helper()
	id, err := s.CreateBook(context.Background(), domain.Book{
		Title:           "Book " + uuid.NewString()[:8],
		Author:          "Author",
		CopiesTotal:     total,
		CopiesAvailable: available,
		CreatedAt:       now(),
	})
	require.NoError(t, err)
	return id
}

func available(t *testing.T, s *SQLStore, bookID int64) int {
	t.Helper()
	book, err := s.GetBook(context.Background(), bookID)
	require.NoError(t, err)
	require.NotNil(t, book)
	return book.CopiesAvailable
}

func TestSQLStore_IssueProtocolCommits(t *testing.T) {
	forEachStore(t, func(t *testing.T, s *SQLStore) {
		ctx := context.Background()
		memberID := seedMember(t, s)
		bookID := seedBook(t, s, 2, 2)
		due := now().Add(14 * 24 * time.Hour)

		var issueID int64
		err := s.RunInTx(ctx, func(tx port.CirculationTx) error {
			ok, err := tx.MemberExists(ctx, memberID)
			require.NoError(t, err)
			require.True(t, ok)

			ledger, err := tx.LockBook(ctx, bookID)
			require.NoError(t, err)
			require.NotNil(t, ledger)
			assert.Equal(t, domain.CopyLedger{BookID: bookID, Total: 2, Available: 2}, *ledger)

			issueID, err = tx.InsertIssue(ctx, domain.Issue{MemberID: memberID, BookID: bookID, IssuedAt: now(), DueAt: &due})
			if err != nil {
				return err
			}
			return tx.TakeCopy(ctx, bookID)
		})
		require.NoError(t, err)
		assert.NotZero(t, issueID)
		assert.Equal(t, 1, available(t, s, bookID))

		history, err := s.MemberHistory(ctx, memberID)
		require.NoError(t, err)
		require.Len(t, history, 1)
		assert.Equal(t, issueID, history[0].ID)
		assert.Equal(t, bookID, history[0].Book.ID)
		assert.Equal(t, "Author", history[0].Book.Author)
		require.NotNil(t, history[0].DueAt)
		assert.WithinDuration(t, due, *history[0].DueAt, time.Millisecond)
		assert.Nil(t, history[0].ReturnedAt)
	})
}

func TestSQLStore_ErrorRollsBack(t *testing.T) {
	forEachStore(t, func(t *testing.T, s *SQLStore) {
		ctx := context.Background()
		memberID := seedMember(t, s)
		bookID := seedBook(t, s, 2, 2)

		err := s.RunInTx(ctx, func(tx port.CirculationTx) error {
			if _, err := tx.LockBook(ctx, bookID); err != nil {
				return err
			}
			if _, err := tx.InsertIssue(ctx, domain.Issue{MemberID: memberID, BookID: bookID, IssuedAt: now()}); err != nil {
				return err
			}
			if err := tx.TakeCopy(ctx, bookID); err != nil {
				return err
			}
			return errBoom
		})
		assert.ErrorIs(t, err, errBoom)
		assert.Equal(t, 2, available(t, s, bookID))

		history, err := s.MemberHistory(ctx, memberID)
		require.NoError(t, err)
		assert.Empty(t, history)
	})
}

func TestSQLStore_PanicRollsBack(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()
	bookID := seedBook(t, s, 1, 1)

	assert.Panics(t, func() {
		_ = s.RunInTx(ctx, func(tx port.CirculationTx) error {
			require.NoError(t, tx.TakeCopy(ctx, bookID))
			panic("interrupted")
		})
	})
	assert.Equal(t, 1, available(t, s, bookID))

	// the write lock was released with the rollback
	require.NoError(t, s.RunInTx(ctx, func(tx port.CirculationTx) error {
		return tx.TakeCopy(ctx, bookID)
	}))
	assert.Equal(t, 0, available(t, s, bookID))
}

func TestSQLStore_MissingRows(t *testing.T) {
	forEachStore(t, func(t *testing.T, s *SQLStore) {
		ctx := context.Background()
		err := s.RunInTx(ctx, func(tx port.CirculationTx) error {
			ok, err := tx.MemberExists(ctx, 1<<40)
			require.NoError(t, err)
			assert.False(t, ok)

			ledger, err := tx.LockBook(ctx, 1<<40)
			require.NoError(t, err)
			assert.Nil(t, ledger)

			issue, err := tx.LockIssue(ctx, 1<<40)
			require.NoError(t, err)
			assert.Nil(t, issue)
			return nil
		})
		require.NoError(t, err)

		book, err := s.GetBook(ctx, 1<<40)
		require.NoError(t, err)
		assert.Nil(t, book)
	})
}

func TestSQLStore_TakeCopyNeverGoesNegative(t *testing.T) {
	forEachStore(t, func(t *testing.T, s *SQLStore) {
		ctx := context.Background()
		bookID := seedBook(t, s, 1, 0)

		err := s.RunInTx(ctx, func(tx port.CirculationTx) error {
			return tx.TakeCopy(ctx, bookID)
		})
		assert.ErrorIs(t, err, domain.ErrNoCopiesAvailable)
		assert.Equal(t, 0, available(t, s, bookID))
	})
}

func TestSQLStore_ReleaseCopyClampsAtTotal(t *testing.T) {
	forEachStore(t, func(t *testing.T, s *SQLStore) {
		ctx := context.Background()
		bookID := seedBook(t, s, 2, 1)

		for i := 0; i < 3; i++ {
			require.NoError(t, s.RunInTx(ctx, func(tx port.CirculationTx) error {
				return tx.ReleaseCopy(ctx, bookID)
			}))
		}
		assert.Equal(t, 2, available(t, s, bookID))
	})
}

func TestSQLStore_MarkReturnedOnce(t *testing.T) {
	forEachStore(t, func(t *testing.T, s *SQLStore) {
		ctx := context.Background()
		memberID := seedMember(t, s)
		bookID := seedBook(t, s, 1, 1)
		first := now()

		var issueID int64
		require.NoError(t, s.RunInTx(ctx, func(tx port.CirculationTx) error {
			var err error
			issueID, err = tx.InsertIssue(ctx, domain.Issue{MemberID: memberID, BookID: bookID, IssuedAt: first})
			return err
		}))

		require.NoError(t, s.RunInTx(ctx, func(tx port.CirculationTx) error {
			issue, err := tx.LockIssue(ctx, issueID)
			require.NoError(t, err)
			require.NotNil(t, issue)
			assert.False(t, issue.Returned())
			assert.Equal(t, memberID, issue.MemberID)
			assert.WithinDuration(t, first, issue.IssuedAt, time.Millisecond)
			return tx.MarkReturned(ctx, issueID, first.Add(time.Hour))
		}))

		err := s.RunInTx(ctx, func(tx port.CirculationTx) error {
			return tx.MarkReturned(ctx, issueID, first.Add(2*time.Hour))
		})
		assert.ErrorIs(t, err, domain.ErrAlreadyReturned)

		require.NoError(t, s.RunInTx(ctx, func(tx port.CirculationTx) error {
			issue, err := tx.LockIssue(ctx, issueID)
			require.NoError(t, err)
			require.NotNil(t, issue.ReturnedAt)
			assert.WithinDuration(t, first.Add(time.Hour), *issue.ReturnedAt, time.Millisecond)
			return nil
		}))
	})
}

func TestSQLStore_MemberHistoryNewestFirst(t *testing.T) {
	forEachStore(t, func(t *testing.T, s *SQLStore) {
		ctx := context.Background()
		memberID := seedMember(t, s)
		otherID := seedMember(t, s)
		bookID := seedBook(t, s, 5, 5)
		base := now()

		var ids []int64
		for i, member := range []int64{memberID, otherID, memberID, memberID} {
			require.NoError(t, s.RunInTx(ctx, func(tx port.CirculationTx) error {
				id, err := tx.InsertIssue(ctx, domain.Issue{
					MemberID: member,
					BookID:   bookID,
					IssuedAt: base.Add(time.Duration(i) * time.Minute),
				})
				if member == memberID {
					ids = append(ids, id)
				}
				return err
			}))
		}

		history, err := s.MemberHistory(ctx, memberID)
		require.NoError(t, err)
		require.Len(t, history, 3)
		assert.Equal(t, []int64{ids[2], ids[1], ids[0]}, []int64{history[0].ID, history[1].ID, history[2].ID})

		empty, err := s.MemberHistory(ctx, seedMember(t, s))
		require.NoError(t, err)
		assert.NotNil(t, empty)
		assert.Empty(t, empty)
	})
}

func TestSQLStore_ListBooks(t *testing.T) {
	forEachStore(t, func(t *testing.T, s *SQLStore) {
		ctx := context.Background()
		tag := uuid.NewString()[:8]
		for _, b := range []domain.Book{
			{Title: "Dune " + tag, Author: "Herbert", ISBN: "111", CopiesTotal: 1, CopiesAvailable: 1},
			{Title: "Anathem " + tag, Author: "Stephenson", ISBN: "222", CopiesTotal: 2, CopiesAvailable: 2},
			{Title: "Children of Dune " + tag, Author: "Herbert", ISBN: "333", CopiesTotal: 3, CopiesAvailable: 3},
		} {
			b.CreatedAt = now()
			_, err := s.CreateBook(ctx, b)
			require.NoError(t, err)
		}

		page, err := s.ListBooks(ctx, domain.BookQuery{Search: tag, Sort: domain.BookSortTitle, Page: 1, PageSize: 2})
		require.NoError(t, err)
		assert.Equal(t, 3, page.Total)
		require.Len(t, page.Items, 2)
		assert.Equal(t, "Anathem "+tag, page.Items[0].Title)
		assert.Equal(t, "Children of Dune "+tag, page.Items[1].Title)

		page, err = s.ListBooks(ctx, domain.BookQuery{Search: tag, Sort: domain.BookSortTitle, Page: 2, PageSize: 2})
		require.NoError(t, err)
		require.Len(t, page.Items, 1)
		assert.Equal(t, "Dune "+tag, page.Items[0].Title)

		page, err = s.ListBooks(ctx, domain.BookQuery{Search: "dune " + tag, Sort: domain.BookSortISBN, Descending: true, Page: 1, PageSize: 10})
		require.NoError(t, err)
		require.Len(t, page.Items, 2)
		assert.Equal(t, "333", page.Items[0].ISBN)
		assert.Equal(t, "111", page.Items[1].ISBN)
	})
}

func TestSQLStore_Members(t *testing.T) {
	forEachStore(t, func(t *testing.T, s *SQLStore) {
		ctx := context.Background()
		created := now()
		firstID, err := s.CreateMember(ctx, domain.Member{FullName: "Ada", Email: "ada@example.org", Semester: "3", CreatedAt: created})
		require.NoError(t, err)
		secondID, err := s.CreateMember(ctx, domain.Member{FullName: "Grace", CreatedAt: created})
		require.NoError(t, err)

		member, err := s.GetMember(ctx, firstID)
		require.NoError(t, err)
		require.NotNil(t, member)
		assert.Equal(t, "Ada", member.FullName)
		assert.Equal(t, "ada@example.org", member.Email)
		assert.Equal(t, "3", member.Semester)
		assert.Empty(t, member.Phone)

		members, err := s.ListMembers(ctx)
		require.NoError(t, err)
		position := map[int64]int{}
		for i, m := range members {
			position[m.ID] = i
		}
		assert.Less(t, position[secondID], position[firstID])

		missing, err := s.GetMember(ctx, 1<<40)
		require.NoError(t, err)
		assert.Nil(t, missing)
	})
}

func TestSQLStore_Librarians(t *testing.T) {
	forEachStore(t, func(t *testing.T, s *SQLStore) {
		ctx := context.Background()
		active := uuid.NewString() + "@example.org"
		inactive := uuid.NewString() + "@example.org"

		id, err := s.CreateLibrarian(ctx, domain.Librarian{Email: active, Name: "Desk", PasswordHash: "$2a$10$hash", Active: true, CreatedAt: now()})
		require.NoError(t, err)
		_, err = s.CreateLibrarian(ctx, domain.Librarian{Email: inactive, PasswordHash: "secret", Active: false, CreatedAt: now()})
		require.NoError(t, err)

		found, err := s.FindActiveLibrarian(ctx, active)
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.Equal(t, id, found.ID)
		assert.Equal(t, "Desk", found.Name)
		assert.True(t, found.HasBcryptHash())

		notFound, err := s.FindActiveLibrarian(ctx, inactive)
		require.NoError(t, err)
		assert.Nil(t, notFound)

		held, err := s.FindLibrarian(ctx, inactive)
		require.NoError(t, err)
		require.NotNil(t, held)
		assert.False(t, held.Active)

		none, err := s.FindLibrarian(ctx, uuid.NewString()+"@example.org")
		require.NoError(t, err)
		assert.Nil(t, none)
	})
}

func TestSQLStore_MigrateIsRepeatable(t *testing.T) {
	s := newSQLiteStore(t)
	assert.NoError(t, s.Migrate(context.Background()))
}

func TestOpenSQLStore_UnsupportedDriver(t *testing.T) {
	_, err := OpenSQLStore(context.Background(), "oracle", "", PoolConfig{}, zaptest.NewLogger(t))
	assert.Error(t, err)
}
