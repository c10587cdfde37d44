package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rl1809/library-circulation/internal/core/domain"
	"github.com/rl1809/library-circulation/internal/port"
)

var errBoom = errors.New("boom")

type circulationState struct {
	books   map[int64]domain.CopyLedger
	titles  map[int64]domain.BookSummary
	members map[int64]bool
	issues  map[int64]domain.Issue
	nextID  int64
}

func (s circulationState) clone() circulationState {
	c := circulationState{
		books:   make(map[int64]domain.CopyLedger, len(s.books)),
		titles:  s.titles,
		members: s.members,
		issues:  make(map[int64]domain.Issue, len(s.issues)),
		nextID:  s.nextID,
	}
	for k, v := range s.books {
		c.books[k] = v
	}
	for k, v := range s.issues {
		c.issues[k] = v
	}
	return c
}

// mockCirculationRepo serializes transactions behind one mutex and applies a
// transaction's writes only when fn succeeds.
type mockCirculationRepo struct {
	mu      sync.Mutex
	state   circulationState
	failOn  string
	txCount int
}

func newMockCirculationRepo() *mockCirculationRepo {
	return &mockCirculationRepo{state: circulationState{
		books:   map[int64]domain.CopyLedger{},
		titles:  map[int64]domain.BookSummary{},
		members: map[int64]bool{},
		issues:  map[int64]domain.Issue{},
	}}
}

func (m *mockCirculationRepo) addBook(id int64, total, available int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.books[id] = domain.CopyLedger{BookID: id, Total: total, Available: available}
	m.state.titles[id] = domain.BookSummary{ID: id, Title: "Title", Author: "Author"}
}

func (m *mockCirculationRepo) addMember(id int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.members[id] = true
}

func (m *mockCirculationRepo) setAvailable(bookID int64, available int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l := m.state.books[bookID]
	l.Available = available
	m.state.books[bookID] = l
}

func (m *mockCirculationRepo) ledger(bookID int64) domain.CopyLedger {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.books[bookID]
}

func (m *mockCirculationRepo) openIssues(bookID int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, issue := range m.state.issues {
		if issue.BookID == bookID && !issue.Returned() {
			n++
		}
	}
	return n
}

func (m *mockCirculationRepo) issueCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.state.issues)
}

func (m *mockCirculationRepo) RunInTx(ctx context.Context, fn func(tx port.CirculationTx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.txCount++

	tx := &mockCirculationTx{state: m.state.clone(), failOn: m.failOn}
	if err := fn(tx); err != nil {
		return err
	}
	m.state = tx.state
	return nil
}

func (m *mockCirculationRepo) MemberHistory(ctx context.Context, memberID int64) ([]domain.HistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var entries []domain.HistoryEntry
	for _, issue := range m.state.issues {
		if issue.MemberID != memberID {
			continue
		}
		entries = append(entries, domain.HistoryEntry{
			ID:         issue.ID,
			IssuedAt:   issue.IssuedAt,
			DueAt:      issue.DueAt,
			ReturnedAt: issue.ReturnedAt,
			Book:       m.state.titles[issue.BookID],
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].IssuedAt.Equal(entries[j].IssuedAt) {
			return entries[i].ID > entries[j].ID
		}
		return entries[i].IssuedAt.After(entries[j].IssuedAt)
	})
	return entries, nil
}

type mockCirculationTx struct {
	state  circulationState
	failOn string
}

func (t *mockCirculationTx) fail(op string) error {
	if t.failOn == op {
		return errBoom
	}
	return nil
}

func (t *mockCirculationTx) MemberExists(ctx context.Context, memberID int64) (bool, error) {
	if err := t.fail("MemberExists"); err != nil {
		return false, err
	}
	return t.state.members[memberID], nil
}

func (t *mockCirculationTx) LockBook(ctx context.Context, bookID int64) (*domain.CopyLedger, error) {
	if err := t.fail("LockBook"); err != nil {
		return nil, err
	}
	l, ok := t.state.books[bookID]
	if !ok {
		return nil, nil
	}
	return &l, nil
}

func (t *mockCirculationTx) InsertIssue(ctx context.Context, issue domain.Issue) (int64, error) {
	if err := t.fail("InsertIssue"); err != nil {
		return 0, err
	}
	t.state.nextID++
	issue.ID = t.state.nextID
	t.state.issues[issue.ID] = issue
	return issue.ID, nil
}

func (t *mockCirculationTx) TakeCopy(ctx context.Context, bookID int64) error {
	if err := t.fail("TakeCopy"); err != nil {
		return err
	}
	l := t.state.books[bookID]
	l.Available--
	t.state.books[bookID] = l
	return nil
}

func (t *mockCirculationTx) LockIssue(ctx context.Context, issueID int64) (*domain.Issue, error) {
	if err := t.fail("LockIssue"); err != nil {
		return nil, err
	}
	issue, ok := t.state.issues[issueID]
	if !ok {
		return nil, nil
	}
	return &issue, nil
}

func (t *mockCirculationTx) MarkReturned(ctx context.Context, issueID int64, at time.Time) error {
	if err := t.fail("MarkReturned"); err != nil {
		return err
	}
	issue := t.state.issues[issueID]
	issue.ReturnedAt = &at
	t.state.issues[issueID] = issue
	return nil
}

func (t *mockCirculationTx) ReleaseCopy(ctx context.Context, bookID int64) error {
	if err := t.fail("ReleaseCopy"); err != nil {
		return err
	}
	l := t.state.books[bookID]
	l.Available = l.Released()
	t.state.books[bookID] = l
	return nil
}

// Mock CacheRepository
type mockCacheRepo struct {
	mu             sync.Mutex
	idempotencySet map[string]bool
}

func newMockCacheRepo() *mockCacheRepo {
	return &mockCacheRepo{idempotencySet: make(map[string]bool)}
}

func (m *mockCacheRepo) SetIdempotency(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.idempotencySet[key] {
		return false, nil
	}
	m.idempotencySet[key] = true
	return true, nil
}

func (m *mockCacheRepo) ClearIdempotency(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.idempotencySet, key)
	return nil
}

func (m *mockCacheRepo) has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.idempotencySet[key]
}

func steppingClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	current := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		current = current.Add(time.Second)
		return current
	}
}
