package domain

import (
	"errors"
	"fmt"
)

// Categories. Every reason below wraps exactly one of them, so callers can
// branch on the category with errors.Is and on the reason for the message.
var (
	ErrValidation = errors.New("validation")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
)

var (
	ErrMissingIssueFields = fmt.Errorf("%w: memberId and bookId are required", ErrValidation)
	ErrInvalidDueAt       = fmt.Errorf("%w: invalid dueAt", ErrValidation)
	ErrInvalidIssueID     = fmt.Errorf("%w: invalid issue id", ErrValidation)
	ErrInvalidMemberID    = fmt.Errorf("%w: invalid member id", ErrValidation)
	ErrInvalidBookID      = fmt.Errorf("%w: invalid book id", ErrValidation)
	ErrMissingFullName    = fmt.Errorf("%w: fullName is required", ErrValidation)
	ErrMissingTitle       = fmt.Errorf("%w: title is required", ErrValidation)
	ErrInvalidCopiesTotal = fmt.Errorf("%w: copiesTotal must be positive", ErrValidation)
	ErrMissingCredentials = fmt.Errorf("%w: email and password are required", ErrValidation)

	ErrBookNotFound   = fmt.Errorf("%w: book", ErrNotFound)
	ErrMemberNotFound = fmt.Errorf("%w: member", ErrNotFound)
	ErrIssueNotFound  = fmt.Errorf("%w: issue", ErrNotFound)

	ErrNoCopiesAvailable = fmt.Errorf("%w: no copies available", ErrConflict)
	ErrAlreadyReturned   = fmt.Errorf("%w: already returned", ErrConflict)
	ErrDuplicateRequest  = fmt.Errorf("%w: duplicate request", ErrConflict)
	ErrEmailTaken        = fmt.Errorf("%w: email already exists", ErrConflict)
)

// Authentication failures are neither of the categories above.
var (
	ErrUnknownLibrarian   = errors.New("librarian not found or inactive")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrSessionNotFound    = errors.New("session not found")
)
