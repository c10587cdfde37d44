package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"

	"github.com/rl1809/library-circulation/internal/core/domain"
)

var bookColumns = []any{"id", "title", "author", "isbn", "copies_total", "copies_available", "created_at"}

type bookRow struct {
	ID              int64          `db:"id"`
	Title           string         `db:"title"`
	Author          sql.NullString `db:"author"`
	ISBN            sql.NullString `db:"isbn"`
	CopiesTotal     int            `db:"copies_total"`
	CopiesAvailable int            `db:"copies_available"`
	CreatedAt       time.Time      `db:"created_at"`
}

func (r bookRow) toDomain() domain.Book {
	return domain.Book{
		ID:              r.ID,
		Title:           r.Title,
		Author:          r.Author.String,
		ISBN:            r.ISBN.String,
		CopiesTotal:     r.CopiesTotal,
		CopiesAvailable: r.CopiesAvailable,
		CreatedAt:       r.CreatedAt.UTC(),
	}
}

func (s *SQLStore) CreateBook(ctx context.Context, book domain.Book) (int64, error) {
	ds := s.builder().Insert("books").Rows(goqu.Record{
		"title":            book.Title,
		"author":           nullString(book.Author),
		"isbn":             nullString(book.ISBN),
		"copies_total":     book.CopiesTotal,
		"copies_available": book.CopiesAvailable,
		"created_at":       book.CreatedAt,
	})
	id, err := s.insertReturningID(ctx, s.db, ds)
	if err != nil {
		return 0, fmt.Errorf("insert book: %w", err)
	}
	return id, nil
}

func (s *SQLStore) GetBook(ctx context.Context, bookID int64) (*domain.Book, error) {
	query, args, err := s.builder().From("books").Select(bookColumns...).
		Where(goqu.C("id").Eq(bookID)).Prepared(true).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build book query: %w", err)
	}

	var row bookRow
	err = s.db.GetContext(ctx, &row, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get book %d: %w", bookID, err)
	}
	book := row.toDomain()
	return &book, nil
}

// ListBooks expects a normalized query: a known sort column and positive paging.
func (s *SQLStore) ListBooks(ctx context.Context, q domain.BookQuery) (domain.BookPage, error) {
	base := s.builder().From("books")
	if q.Search != "" {
		pattern := "%" + q.Search + "%"
		base = base.Where(goqu.Or(
			goqu.C("title").ILike(pattern),
			goqu.C("author").ILike(pattern),
			goqu.C("isbn").ILike(pattern),
		))
	}

	countSQL, countArgs, err := base.Select(goqu.COUNT(goqu.Star())).Prepared(true).ToSQL()
	if err != nil {
		return domain.BookPage{}, fmt.Errorf("build count query: %w", err)
	}
	var total int
	if err := s.db.GetContext(ctx, &total, countSQL, countArgs...); err != nil {
		return domain.BookPage{}, fmt.Errorf("count books: %w", err)
	}

	order := goqu.C(string(q.Sort)).Asc()
	if q.Descending {
		order = goqu.C(string(q.Sort)).Desc()
	}
	listSQL, listArgs, err := base.Select(bookColumns...).
		Order(order, goqu.C("id").Asc()).
		Limit(uint(q.PageSize)).
		Offset(uint((q.Page - 1) * q.PageSize)).
		Prepared(true).
		ToSQL()
	if err != nil {
		return domain.BookPage{}, fmt.Errorf("build list query: %w", err)
	}

	var rows []bookRow
	if err := s.db.SelectContext(ctx, &rows, listSQL, listArgs...); err != nil {
		return domain.BookPage{}, fmt.Errorf("list books: %w", err)
	}

	items := make([]domain.Book, 0, len(rows))
	for _, r := range rows {
		items = append(items, r.toDomain())
	}
	return domain.BookPage{Items: items, Total: total, Page: q.Page, PageSize: q.PageSize}, nil
}

var memberColumns = []any{"id", "full_name", "email", "phone", "address", "department", "semester", "created_at"}

type memberRow struct {
	ID         int64          `db:"id"`
	FullName   string         `db:"full_name"`
	Email      sql.NullString `db:"email"`
	Phone      sql.NullString `db:"phone"`
	Address    sql.NullString `db:"address"`
	Department sql.NullString `db:"department"`
	Semester   sql.NullString `db:"semester"`
	CreatedAt  time.Time      `db:"created_at"`
}

func (r memberRow) toDomain() domain.Member {
	return domain.Member{
		ID:         r.ID,
		FullName:   r.FullName,
		Email:      r.Email.String,
		Phone:      r.Phone.String,
		Address:    r.Address.String,
		Department: r.Department.String,
		Semester:   r.Semester.String,
		CreatedAt:  r.CreatedAt.UTC(),
	}
}

func (s *SQLStore) CreateMember(ctx context.Context, m domain.Member) (int64, error) {
	ds := s.builder().Insert("members").Rows(goqu.Record{
		"full_name":  m.FullName,
		"email":      nullString(m.Email),
		"phone":      nullString(m.Phone),
		"address":    nullString(m.Address),
		"department": nullString(m.Department),
		"semester":   nullString(m.Semester),
		"created_at": m.CreatedAt,
	})
	id, err := s.insertReturningID(ctx, s.db, ds)
	if err != nil {
		return 0, fmt.Errorf("insert member: %w", err)
	}
	return id, nil
}

func (s *SQLStore) GetMember(ctx context.Context, memberID int64) (*domain.Member, error) {
	query, args, err := s.builder().From("members").Select(memberColumns...).
		Where(goqu.C("id").Eq(memberID)).Prepared(true).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build member query: %w", err)
	}

	var row memberRow
	err = s.db.GetContext(ctx, &row, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get member %d: %w", memberID, err)
	}
	member := row.toDomain()
	return &member, nil
}

func (s *SQLStore) ListMembers(ctx context.Context) ([]domain.Member, error) {
	query, args, err := s.builder().From("members").Select(memberColumns...).
		Order(goqu.C("id").Desc()).Prepared(true).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build members query: %w", err)
	}

	var rows []memberRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	members := make([]domain.Member, 0, len(rows))
	for _, r := range rows {
		members = append(members, r.toDomain())
	}
	return members, nil
}

type librarianRow struct {
	ID           int64          `db:"id"`
	Email        string         `db:"email"`
	Name         sql.NullString `db:"name"`
	PasswordHash sql.NullString `db:"password_hash"`
	Active       bool           `db:"active"`
	CreatedAt    time.Time      `db:"created_at"`
}

func (s *SQLStore) CreateLibrarian(ctx context.Context, l domain.Librarian) (int64, error) {
	ds := s.builder().Insert("librarians").Rows(goqu.Record{
		"email":         l.Email,
		"name":          nullString(l.Name),
		"password_hash": l.PasswordHash,
		"active":        l.Active,
		"created_at":    l.CreatedAt,
	})
	id, err := s.insertReturningID(ctx, s.db, ds)
	if err != nil {
		return 0, fmt.Errorf("insert librarian: %w", err)
	}
	return id, nil
}

func (s *SQLStore) FindActiveLibrarian(ctx context.Context, email string) (*domain.Librarian, error) {
	return s.findLibrarian(ctx, goqu.C("email").Eq(email), goqu.C("active").IsTrue())
}

// FindLibrarian matches inactive accounts too; emails stay unique across both.
func (s *SQLStore) FindLibrarian(ctx context.Context, email string) (*domain.Librarian, error) {
	return s.findLibrarian(ctx, goqu.C("email").Eq(email))
}

func (s *SQLStore) findLibrarian(ctx context.Context, where ...goqu.Expression) (*domain.Librarian, error) {
	query, args, err := s.builder().From("librarians").
		Select("id", "email", "name", "password_hash", "active", "created_at").
		Where(where...).
		Limit(1).Prepared(true).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build librarian query: %w", err)
	}

	var row librarianRow
	err = s.db.GetContext(ctx, &row, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find librarian: %w", err)
	}
	return &domain.Librarian{
		ID:           row.ID,
		Email:        row.Email,
		Name:         row.Name.String,
		PasswordHash: row.PasswordHash.String,
		Active:       row.Active,
		CreatedAt:    row.CreatedAt.UTC(),
	}, nil
}
