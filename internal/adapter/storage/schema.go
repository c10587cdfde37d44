package storage

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

var schemas = map[string][]string{
	DriverMySQL: {
		`CREATE TABLE IF NOT EXISTS librarians (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			email VARCHAR(255) NOT NULL UNIQUE,
			name VARCHAR(255) NULL,
			password_hash VARCHAR(255) NULL,
			active TINYINT(1) NOT NULL DEFAULT 1,
			created_at DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6)
		)`,
		`CREATE TABLE IF NOT EXISTS members (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			full_name VARCHAR(255) NOT NULL,
			email VARCHAR(255) NULL,
			phone VARCHAR(64) NULL,
			address VARCHAR(512) NULL,
			department VARCHAR(255) NULL,
			semester VARCHAR(64) NULL,
			created_at DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6)
		)`,
		`CREATE TABLE IF NOT EXISTS books (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			title VARCHAR(512) NOT NULL,
			author VARCHAR(255) NULL,
			isbn VARCHAR(32) NULL,
			copies_total INT NOT NULL,
			copies_available INT NOT NULL,
			created_at DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
			CONSTRAINT chk_books_copies CHECK (copies_available >= 0 AND copies_available <= copies_total)
		)`,
		`CREATE TABLE IF NOT EXISTS issues (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			member_id BIGINT NOT NULL,
			book_id BIGINT NOT NULL,
			issued_at DATETIME(6) NOT NULL,
			due_at DATETIME(6) NULL,
			returned_at DATETIME(6) NULL,
			INDEX idx_issues_member (member_id, issued_at),
			CONSTRAINT fk_issues_member FOREIGN KEY (member_id) REFERENCES members(id),
			CONSTRAINT fk_issues_book FOREIGN KEY (book_id) REFERENCES books(id)
		)`,
	},
	DriverPostgres: {
		`CREATE TABLE IF NOT EXISTS librarians (
			id BIGSERIAL PRIMARY KEY,
			email VARCHAR(255) NOT NULL UNIQUE,
			name VARCHAR(255) NULL,
			password_hash VARCHAR(255) NULL,
			active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS members (
			id BIGSERIAL PRIMARY KEY,
			full_name VARCHAR(255) NOT NULL,
			email VARCHAR(255) NULL,
			phone VARCHAR(64) NULL,
			address VARCHAR(512) NULL,
			department VARCHAR(255) NULL,
			semester VARCHAR(64) NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS books (
			id BIGSERIAL PRIMARY KEY,
			title VARCHAR(512) NOT NULL,
			author VARCHAR(255) NULL,
			isbn VARCHAR(32) NULL,
			copies_total INTEGER NOT NULL,
			copies_available INTEGER NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT chk_books_copies CHECK (copies_available >= 0 AND copies_available <= copies_total)
		)`,
		`CREATE TABLE IF NOT EXISTS issues (
			id BIGSERIAL PRIMARY KEY,
			member_id BIGINT NOT NULL REFERENCES members(id),
			book_id BIGINT NOT NULL REFERENCES books(id),
			issued_at TIMESTAMPTZ NOT NULL,
			due_at TIMESTAMPTZ NULL,
			returned_at TIMESTAMPTZ NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_issues_member ON issues (member_id, issued_at)`,
	},
	DriverSQLite: {
		`CREATE TABLE IF NOT EXISTS librarians (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			email TEXT NOT NULL UNIQUE,
			name TEXT NULL,
			password_hash TEXT NULL,
			active INTEGER NOT NULL DEFAULT 1,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS members (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			full_name TEXT NOT NULL,
			email TEXT NULL,
			phone TEXT NULL,
			address TEXT NULL,
			department TEXT NULL,
			semester TEXT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS books (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			title TEXT NOT NULL,
			author TEXT NULL,
			isbn TEXT NULL,
			copies_total INTEGER NOT NULL,
			copies_available INTEGER NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			CHECK (copies_available >= 0 AND copies_available <= copies_total)
		)`,
		`CREATE TABLE IF NOT EXISTS issues (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			member_id INTEGER NOT NULL REFERENCES members(id),
			book_id INTEGER NOT NULL REFERENCES books(id),
			issued_at DATETIME NOT NULL,
			due_at DATETIME NULL,
			returned_at DATETIME NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_issues_member ON issues (member_id, issued_at)`,
	},
}

// Migrate creates the tables when they are missing. It never alters
// existing ones.
func (s *SQLStore) Migrate(ctx context.Context) error {
	for _, stmt := range schemas[s.dialect.family] {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate %s: %w", s.dialect.family, err)
		}
	}
	s.log.Info("schema ready", zap.String("dialect", s.dialect.family))
	return nil
}
