package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rl1809/library-circulation/internal/core/domain"
)

const (
	idempotencyKeyHeader = "Idempotency-Key"
	dateLayout           = "2006-01-02"
)

// flexibleID accepts a JSON number or a numeric string. Anything else
// decodes to 0, which the services reject as a missing id.
type flexibleID int64

func (id *flexibleID) UnmarshalJSON(data []byte) error {
	s := strings.Trim(strings.TrimSpace(string(data)), `"`)
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		*id = 0
		return nil
	}
	*id = flexibleID(n)
	return nil
}

type issueHTTPRequest struct {
	MemberID flexibleID `json:"memberId"`
	BookID   flexibleID `json:"bookId"`
	DueAt    *string    `json:"dueAt"`
}

// issueHTTPResponse echoes dueAt as the caller wrote it.
type issueHTTPResponse struct {
	ID       int64   `json:"id"`
	MemberID int64   `json:"memberId"`
	BookID   int64   `json:"bookId"`
	DueAt    *string `json:"dueAt"`
}

type returnHTTPResponse struct {
	ReturnedAt time.Time `json:"returnedAt"`
}

type bookSummaryJSON struct {
	ID     int64  `json:"id"`
	Title  string `json:"title"`
	Author string `json:"author"`
}

type historyEntryJSON struct {
	ID         int64           `json:"id"`
	IssuedAt   time.Time       `json:"issuedAt"`
	DueAt      *time.Time      `json:"dueAt"`
	ReturnedAt *time.Time      `json:"returnedAt"`
	Book       bookSummaryJSON `json:"book"`
}

func toHistoryJSON(entries []domain.HistoryEntry) []historyEntryJSON {
	out := make([]historyEntryJSON, 0, len(entries))
	for _, e := range entries {
		out = append(out, historyEntryJSON{
			ID:         e.ID,
			IssuedAt:   e.IssuedAt,
			DueAt:      e.DueAt,
			ReturnedAt: e.ReturnedAt,
			Book:       bookSummaryJSON{ID: e.Book.ID, Title: e.Book.Title, Author: e.Book.Author},
		})
	}
	return out
}

// parseDueAt accepts an RFC 3339 timestamp or a calendar date. Empty means no due date.
func parseDueAt(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		t = t.UTC()
		return &t, nil
	}
	if t, err := time.Parse(dateLayout, raw); err == nil {
		return &t, nil
	}
	return nil, domain.ErrInvalidDueAt
}

func (h *HTTPHandler) IssueBook(w http.ResponseWriter, r *http.Request) {
	var req issueHTTPRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	var dueAt *time.Time
	if req.DueAt != nil {
		var err error
		if dueAt, err = parseDueAt(*req.DueAt); err != nil {
			h.writeError(w, r, err)
			return
		}
	}

	issue, err := h.circulation.Issue(r.Context(), domain.IssueRequest{
		RequestID: r.Header.Get(idempotencyKeyHeader),
		MemberID:  int64(req.MemberID),
		BookID:    int64(req.BookID),
		DueAt:     dueAt,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var echoDueAt *string
	if dueAt != nil {
		echoDueAt = req.DueAt
	}
	writeJSON(w, http.StatusCreated, issueHTTPResponse{
		ID:       issue.ID,
		MemberID: issue.MemberID,
		BookID:   issue.BookID,
		DueAt:    echoDueAt,
	})
}

func (h *HTTPHandler) ReturnIssue(w http.ResponseWriter, r *http.Request) {
	returnedAt, err := h.circulation.Return(r.Context(), pathID(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, returnHTTPResponse{ReturnedAt: returnedAt})
}

func (h *HTTPHandler) MemberHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := h.circulation.History(r.Context(), pathID(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toHistoryJSON(entries))
}
