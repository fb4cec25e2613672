package server

import (
	"errors"
	"net/http"
	"strings"

	"langgrade/internal/usertoken"
	"langgrade/internal/util"
	"langgrade/pkg/domain"
	"langgrade/pkg/library"
	"langgrade/services/grader/internal/app"
)

type bookResponse struct {
	domain.GradedBook
	URL   string `json:"url"`
	JobID string `json:"jobId,omitempty"`
}

func toBookResponse(b domain.GradedBook) bookResponse {
	return bookResponse{GradedBook: b, URL: library.BookURL(b)}
}

func writeBooks(w http.ResponseWriter, books []domain.GradedBook) {
	items := make([]bookResponse, 0, len(books))
	for _, b := range books {
		items = append(items, toBookResponse(b))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": items,
		"count": len(items),
	})
}

func (s *Server) handleListBooks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	books, err := s.app.ListBooks(q.Get("q"), library.Filter{Level: q.Get("level"), Language: q.Get("language")})
	if err != nil {
		s.internalError(w, r, "list books failed", err)
		return
	}
	writeBooks(w, books)
}

func (s *Server) handleLanguages(w http.ResponseWriter, r *http.Request) {
	langs, err := s.app.Languages()
	if err != nil {
		s.internalError(w, r, "list languages failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": langs, "count": len(langs)})
}

func (s *Server) handleGetBook(w http.ResponseWriter, r *http.Request) {
	book, err := s.app.GetBook(r.PathValue("id"))
	if err != nil {
		s.bookError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBookResponse(book))
}

func (s *Server) handleRelatedBooks(w http.ResponseWriter, r *http.Request) {
	books, err := s.app.RelatedBooks(r.PathValue("id"))
	if err != nil {
		s.bookError(w, r, err)
		return
	}
	writeBooks(w, books)
}

func (s *Server) handleSaveBook(w http.ResponseWriter, r *http.Request, user usertoken.Identity) {
	var req app.BookInput
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	res, err := s.app.SaveBook(r.Context(), user.Email, req)
	if err != nil {
		s.internalError(w, r, "save book failed", err)
		return
	}
	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	resp := toBookResponse(res.Book)
	resp.JobID = res.JobID
	writeJSON(w, status, resp)
}

type coverRequest struct {
	CoverURL string `json:"coverUrl"`
}

func (s *Server) handleUpdateCover(w http.ResponseWriter, r *http.Request, user usertoken.Identity) {
	var req coverRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.CoverURL) == "" {
		writeError(w, http.StatusBadRequest, "coverUrl is required")
		return
	}
	book, err := s.app.UpdateCover(r.PathValue("id"), user.Email, req.CoverURL)
	if err != nil {
		s.bookError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBookResponse(book))
}

func (s *Server) handleMyBooks(w http.ResponseWriter, r *http.Request, user usertoken.Identity) {
	books, err := s.app.OwnerBooks(user.Email, r.URL.Query().Get("level"))
	if err != nil {
		s.internalError(w, r, "list own books failed", err)
		return
	}
	writeBooks(w, books)
}

func (s *Server) handleJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.app.Job(r.Context(), r.PathValue("id"))
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, job)
	case errors.Is(err, app.ErrJobNotFound):
		writeError(w, http.StatusNotFound, "job not found")
	default:
		s.internalError(w, r, "job lookup failed", err)
	}
}

func (s *Server) bookError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, app.ErrBookNotFound):
		writeError(w, http.StatusNotFound, "book not found")
	case errors.Is(err, app.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden")
	default:
		s.internalError(w, r, "book request failed", err)
	}
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	util.LoggerFromContext(r.Context()).Error(msg, "err", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}
