package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/rl1809/library-circulation/internal/core/domain"
	"github.com/rl1809/library-circulation/internal/port"
)

const (
	defaultPageSize = 8
	maxPageSize     = 100
	// keeps (page-1)*pageSize far from int overflow on every platform
	maxPage = 1_000_000
)

type CatalogService struct {
	repo port.CatalogRepository
	log  *zap.Logger
}

func NewCatalogService(repo port.CatalogRepository, log *zap.Logger) *CatalogService {
	return &CatalogService{repo: repo, log: log}
}

type NewBook struct {
	Title       string
	Author      string
	ISBN        string
	CopiesTotal int
}

// AddBook catalogs a title with all of its copies on the shelf.
func (s *CatalogService) AddBook(ctx context.Context, in NewBook) (domain.Book, error) {
	book := domain.Book{
		Title:           strings.TrimSpace(in.Title),
		Author:          strings.TrimSpace(in.Author),
		ISBN:            strings.TrimSpace(in.ISBN),
		CopiesTotal:     in.CopiesTotal,
		CopiesAvailable: in.CopiesTotal,
		CreatedAt:       serverClock(),
	}
	if book.Title == "" {
		return domain.Book{}, domain.ErrMissingTitle
	}
	if book.CopiesTotal <= 0 {
		return domain.Book{}, domain.ErrInvalidCopiesTotal
	}

	id, err := s.repo.CreateBook(ctx, book)
	if err != nil {
		return domain.Book{}, fmt.Errorf("create book: %w", err)
	}
	book.ID = id

	s.log.Info("book cataloged", zap.Int64("book_id", id), zap.Int("copies", book.CopiesTotal))
	return book, nil
}

func (s *CatalogService) GetBook(ctx context.Context, bookID int64) (domain.Book, error) {
	if bookID <= 0 {
		return domain.Book{}, domain.ErrInvalidBookID
	}

	book, err := s.repo.GetBook(ctx, bookID)
	if err != nil {
		return domain.Book{}, fmt.Errorf("get book: %w", err)
	}
	if book == nil {
		return domain.Book{}, domain.ErrBookNotFound
	}
	return *book, nil
}

func (s *CatalogService) ListBooks(ctx context.Context, query domain.BookQuery) (domain.BookPage, error) {
	query = NormalizeBookQuery(query)

	page, err := s.repo.ListBooks(ctx, query)
	if err != nil {
		return domain.BookPage{}, fmt.Errorf("list books: %w", err)
	}
	if page.Items == nil {
		page.Items = []domain.Book{}
	}
	page.Page = query.Page
	page.PageSize = query.PageSize
	return page, nil
}

// NormalizeBookQuery fills defaults and clamps paging to sane bounds.
func NormalizeBookQuery(q domain.BookQuery) domain.BookQuery {
	q.Search = strings.TrimSpace(q.Search)
	switch q.Sort {
	case domain.BookSortTitle, domain.BookSortAuthor, domain.BookSortISBN:
	default:
		q.Sort = domain.BookSortTitle
	}
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize < 1 {
		q.PageSize = defaultPageSize
	}
	if q.PageSize > maxPageSize {
		q.PageSize = maxPageSize
	}
	if q.Page > maxPage {
		q.Page = maxPage
	}
	return q
}
