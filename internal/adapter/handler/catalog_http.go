package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rl1809/library-circulation/internal/core/domain"
	"github.com/rl1809/library-circulation/internal/core/service"
)

type bookJSON struct {
	ID              int64     `json:"id"`
	Title           string    `json:"title"`
	Author          string    `json:"author"`
	ISBN            string    `json:"isbn"`
	CopiesTotal     int       `json:"copiesTotal"`
	CopiesAvailable int       `json:"copiesAvailable"`
	CreatedAt       time.Time `json:"createdAt"`
}

func toBookJSON(b domain.Book) bookJSON {
	return bookJSON{
		ID:              b.ID,
		Title:           b.Title,
		Author:          b.Author,
		ISBN:            b.ISBN,
		CopiesTotal:     b.CopiesTotal,
		CopiesAvailable: b.CopiesAvailable,
		CreatedAt:       b.CreatedAt,
	}
}

type bookPageJSON struct {
	Items    []bookJSON `json:"items"`
	Total    int        `json:"total"`
	Page     int        `json:"page"`
	PageSize int        `json:"pageSize"`
}

type createBookHTTPRequest struct {
	Title       string `json:"title"`
	Author      string `json:"author"`
	ISBN        string `json:"isbn"`
	CopiesTotal int    `json:"copiesTotal"`
}

func (h *HTTPHandler) ListBooks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	pageSize, _ := strconv.Atoi(q.Get("pageSize"))

	result, err := h.catalog.ListBooks(r.Context(), domain.BookQuery{
		Search:     q.Get("q"),
		Sort:       domain.BookSort(strings.ToLower(q.Get("sort"))),
		Descending: strings.EqualFold(q.Get("dir"), "desc"),
		Page:       page,
		PageSize:   pageSize,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	items := make([]bookJSON, 0, len(result.Items))
	for _, b := range result.Items {
		items = append(items, toBookJSON(b))
	}
	writeJSON(w, http.StatusOK, bookPageJSON{
		Items:    items,
		Total:    result.Total,
		Page:     result.Page,
		PageSize: result.PageSize,
	})
}

func (h *HTTPHandler) CreateBook(w http.ResponseWriter, r *http.Request) {
	var req createBookHTTPRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	book, err := h.catalog.AddBook(r.Context(), service.NewBook{
		Title:       req.Title,
		Author:      req.Author,
		ISBN:        req.ISBN,
		CopiesTotal: req.CopiesTotal,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, toBookJSON(book))
}

func (h *HTTPHandler) GetBook(w http.ResponseWriter, r *http.Request) {
	book, err := h.catalog.GetBook(r.Context(), pathID(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toBookJSON(book))
}

type memberJSON struct {
	ID         int64     `json:"id"`
	FullName   string    `json:"fullName"`
	Email      string    `json:"email,omitempty"`
	Phone      string    `json:"phone,omitempty"`
	Address    string    `json:"address,omitempty"`
	Department string    `json:"department,omitempty"`
	Semester   string    `json:"semester,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

func toMemberJSON(m domain.Member) memberJSON {
	return memberJSON{
		ID:         m.ID,
		FullName:   m.FullName,
		Email:      m.Email,
		Phone:      m.Phone,
		Address:    m.Address,
		Department: m.Department,
		Semester:   m.Semester,
		CreatedAt:  m.CreatedAt,
	}
}

type createMemberHTTPRequest struct {
	FullName   string `json:"fullName"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	Address    string `json:"address"`
	Department string `json:"department"`
	Semester   string `json:"semester"`
}

func (h *HTTPHandler) ListMembers(w http.ResponseWriter, r *http.Request) {
	members, err := h.members.ListMembers(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	out := make([]memberJSON, 0, len(members))
	for _, m := range members {
		out = append(out, toMemberJSON(m))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *HTTPHandler) CreateMember(w http.ResponseWriter, r *http.Request) {
	var req createMemberHTTPRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	member, err := h.members.Register(r.Context(), domain.Member{
		FullName:   req.FullName,
		Email:      strings.TrimSpace(req.Email),
		Phone:      strings.TrimSpace(req.Phone),
		Address:    strings.TrimSpace(req.Address),
		Department: strings.TrimSpace(req.Department),
		Semester:   strings.TrimSpace(req.Semester),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, toMemberJSON(member))
}

func (h *HTTPHandler) GetMember(w http.ResponseWriter, r *http.Request) {
	member, err := h.members.GetMember(r.Context(), pathID(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toMemberJSON(member))
}
