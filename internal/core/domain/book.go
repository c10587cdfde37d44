package domain

import "time"

type Book struct {
	ID              int64
	Title           string
	Author          string
	ISBN            string
	CopiesTotal     int
	CopiesAvailable int
	CreatedAt       time.Time
}

// CopyLedger is the inventory pair of one title. Available stays within
// [0, Total]; only issuing and returning move it.
type CopyLedger struct {
	BookID    int64
	Total     int
	Available int
}

func (l CopyLedger) Valid() bool {
	return l.Available >= 0 && l.Available <= l.Total
}

func (l CopyLedger) CanIssue() bool {
	return l.Available > 0
}

// Released is the availability after one copy comes back, clamped to Total.
func (l CopyLedger) Released() int {
	if l.Available+1 > l.Total {
		return l.Total
	}
	return l.Available + 1
}

type BookSort string

const (
	BookSortTitle  BookSort = "title"
	BookSortAuthor BookSort = "author"
	BookSortISBN   BookSort = "isbn"
)

type BookQuery struct {
	Search     string
	Sort       BookSort
	Descending bool
	Page       int
	PageSize   int
}

type BookPage struct {
	Items    []Book
	Total    int
	Page     int
	PageSize int
}
