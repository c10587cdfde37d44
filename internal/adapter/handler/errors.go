package handler

import (
	"errors"
	"net/http"

	"google.golang.org/grpc/codes"

	"github.com/rl1809/library-circulation/internal/core/domain"
)

const internalErrorMessage = "internal error"

// reasons maps each domain error to the message clients see.
var reasons = []struct {
	err     error
	message string
}{
	{domain.ErrMissingIssueFields, "memberId and bookId are required"},
	{domain.ErrInvalidDueAt, "Invalid dueAt"},
	{domain.ErrInvalidIssueID, "Invalid issue id"},
	{domain.ErrInvalidMemberID, "Invalid member id"},
	{domain.ErrInvalidBookID, "Invalid book id"},
	{domain.ErrMissingFullName, "fullName is required"},
	{domain.ErrMissingTitle, "title is required"},
	{domain.ErrInvalidCopiesTotal, "copiesTotal must be positive"},
	{domain.ErrMissingCredentials, "Email and password are required"},
	{domain.ErrBookNotFound, "Book not found"},
	{domain.ErrMemberNotFound, "Member not found"},
	{domain.ErrIssueNotFound, "Not found"},
	{domain.ErrNoCopiesAvailable, "No copies available"},
	{domain.ErrAlreadyReturned, "Already returned"},
	{domain.ErrDuplicateRequest, "Duplicate request"},
	{domain.ErrEmailTaken, "Email already exists"},
	{domain.ErrUnknownLibrarian, "User not found or inactive"},
	{domain.ErrInvalidCredentials, "Invalid credentials"},
	{domain.ErrSessionNotFound, "Unauthorized"},
}

func errorMessage(err error) string {
	for _, r := range reasons {
		if errors.Is(err, r.err) {
			return r.message
		}
	}
	return internalErrorMessage
}

func httpStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, domain.ErrUnknownLibrarian),
		errors.Is(err, domain.ErrInvalidCredentials),
		errors.Is(err, domain.ErrSessionNotFound):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

func grpcCode(err error) codes.Code {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return codes.InvalidArgument
	case errors.Is(err, domain.ErrNotFound):
		return codes.NotFound
	case errors.Is(err, domain.ErrConflict):
		return codes.FailedPrecondition
	case errors.Is(err, domain.ErrSessionNotFound):
		return codes.Unauthenticated
	default:
		return codes.Internal
	}
}
