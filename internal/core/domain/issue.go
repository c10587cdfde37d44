package domain

import "time"

// Issue is one lend event. ReturnedAt is nil while the loan is open and is
// written exactly once.
type Issue struct {
	ID         int64
	MemberID   int64
	BookID     int64
	IssuedAt   time.Time
	DueAt      *time.Time
	ReturnedAt *time.Time
}

func (i Issue) Returned() bool {
	return i.ReturnedAt != nil
}

type IssueRequest struct {
	RequestID string
	MemberID  int64
	BookID    int64
	DueAt     *time.Time
}

type BookSummary struct {
	ID     int64
	Title  string
	Author string
}

type HistoryEntry struct {
	ID         int64
	IssuedAt   time.Time
	DueAt      *time.Time
	ReturnedAt *time.Time
	Book       BookSummary
}
