package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"langgrade/internal/ratelimit"
	"langgrade/internal/usertoken"
	"langgrade/internal/util"
	"langgrade/services/grader/internal/app"
)

// TokenVerifier resolves a bearer token to the signed-in caller.
type TokenVerifier interface {
	Verify(token string) (usertoken.Identity, error)
}

// Config wires required dependencies for the HTTP server. TokenVerifier and
// Limiter are optional; without a verifier the signed-in routes answer 401.
type Config struct {
	App            *app.App
	TokenVerifier  TokenVerifier
	Limiter        ratelimit.Limiter
	TrustedProxies *util.TrustedProxies
	AllowedOrigins []string
	MaxUploadBytes int64
}

// Server exposes HTTP endpoints for the grader service.
type Server struct {
	app            *app.App
	tokenVerifier  TokenVerifier
	limiter        ratelimit.Limiter
	trustedProxies *util.TrustedProxies
	allowedOrigins []string
	mux            *http.ServeMux
	maxUploadBytes int64
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, errors.New("app required")
	}
	maxUploadBytes := cfg.MaxUploadBytes
	if maxUploadBytes <= 0 {
		maxUploadBytes = 50 * 1024 * 1024
	}
	s := &Server{
		app:            cfg.App,
		tokenVerifier:  cfg.TokenVerifier,
		limiter:        cfg.Limiter,
		trustedProxies: cfg.TrustedProxies,
		allowedOrigins: cfg.AllowedOrigins,
		mux:            http.NewServeMux(),
		maxUploadBytes: maxUploadBytes,
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog("grader", util.WithSecurityHeaders(util.WithCORS(s.allowedOrigins, s.mux))))
}

type route struct {
	pattern string
	handler http.Handler
}

func (s *Server) routeTable() []route {
	return []route{
		{"GET /healthz", http.HandlerFunc(s.handleHealth)},

		// pipeline
		{"POST /upload", s.withRateLimit(s.handleUpload)},
		{"POST /convert-images", s.withRateLimit(s.handleConvertImages)},
		{"POST /analyze", s.withRateLimit(s.handleAnalyze)},
		{"GET /grade", s.withRateLimit(s.handleGrade)},
		{"POST /article", s.withRateLimit(s.handleArticle)},
		{"GET /bookcover", http.HandlerFunc(s.handleBookCover)},
		{"GET /documents/{fileName}/download", http.HandlerFunc(s.handleDownload)},

		// library
		{"GET /books", http.HandlerFunc(s.handleListBooks)},
		{"POST /books", s.withUser(s.handleSaveBook)},
		{"GET /books/languages", http.HandlerFunc(s.handleLanguages)},
		{"GET /books/{id}", http.HandlerFunc(s.handleGetBook)},
		{"GET /books/{id}/related", http.HandlerFunc(s.handleRelatedBooks)},
		{"PATCH /books/{id}/cover", s.withUser(s.handleUpdateCover)},
		{"GET /me/books", s.withUser(s.handleMyBooks)},
		{"GET /jobs/{id}", http.HandlerFunc(s.handleJob)},
	}
}

func (s *Server) routes() {
	for _, rt := range s.routeTable() {
		s.mux.Handle(rt.pattern, rt.handler)
	}
}

// Patterns lists the method and path of every served route.
func Patterns() []string {
	var s Server
	table := s.routeTable()
	out := make([]string, 0, len(table))
	for _, rt := range table {
		out = append(out, rt.pattern)
	}
	return out
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type userHandler func(http.ResponseWriter, *http.Request, usertoken.Identity)

func (s *Server) withUser(next userHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.tokenVerifier == nil {
			writeError(w, http.StatusUnauthorized, "sign-in not configured")
			return
		}
		token, ok := bearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		user, err := s.tokenVerifier.Verify(token)
		if err != nil {
			util.LoggerFromContext(r.Context()).Info("token rejected", "err", err)
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r, user)
	})
}

func (s *Server) withRateLimit(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter == nil {
			next(w, r)
			return
		}
		key := r.URL.Path + "|" + util.ClientIP(r, s.trustedProxies)
		if !s.limiter.Allow(r.Context(), key) {
			w.Header().Set("Retry-After", "60")
			writeError(w, http.StatusTooManyRequests, "too many requests")
			return
		}
		next(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func decodeJSON(r *http.Request, dst any) error {
	return json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(dst)
}

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"requestId,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{
		Error:     msg,
		Code:      errorCodeFor(status, msg),
		RequestID: strings.TrimSpace(w.Header().Get(util.RequestIDHeader)),
	})
}

func errorCodeFor(status int, msg string) string {
	message := strings.ToLower(strings.TrimSpace(msg))
	switch {
	case message == "unauthorized", message == "sign-in not configured":
		return "AUTH_INVALID_TOKEN"
	case message == "forbidden":
		return "BOOK_FORBIDDEN"
	case message == "book not found":
		return "BOOK_NOT_FOUND"
	case message == "file too large":
		return "UPLOAD_FILE_TOO_LARGE"
	case message == "no file provided":
		return "UPLOAD_FILE_REQUIRED"
	case strings.Contains(message, "unsupported file type"):
		return "UPLOAD_UNSUPPORTED_FILE_TYPE"
	case message == "document contains no pages":
		return "UPLOAD_NO_PAGES"
	case message == "invalid form data":
		return "UPLOAD_INVALID_FORM"
	case message == "no images provided":
		return "IMAGES_REQUIRED"
	case message == "no images could be converted":
		return "IMAGES_UNREADABLE"
	case message == "filename is required":
		return "ANALYZE_FILENAME_REQUIRED"
	case message == "file not found":
		return "ANALYZE_FILE_NOT_FOUND"
	case message == "invalid length":
		return "ANALYZE_INVALID_LENGTH"
	case message == "text is required":
		return "ARTICLE_TEXT_REQUIRED"
	case strings.HasPrefix(message, "invalid target cefr level"):
		return "ARTICLE_INVALID_LEVEL"
	case message == "failed to process article":
		return "ARTICLE_FAILED"
	case message == "missing title":
		return "COVER_TITLE_REQUIRED"
	case message == "failed to fetch book info":
		return "COVER_LOOKUP_FAILED"
	case message == "document not found":
		return "DOCUMENT_NOT_FOUND"
	case message == "job not found":
		return "JOB_NOT_FOUND"
	case message == "invalid json body":
		return "REQUEST_INVALID_JSON"
	case message == "too many requests":
		return "RATE_LIMITED"
	}

	switch status {
	case http.StatusBadRequest:
		return "REQUEST_INVALID"
	case http.StatusUnauthorized:
		return "AUTH_INVALID_TOKEN"
	case http.StatusForbidden:
		return "BOOK_FORBIDDEN"
	case http.StatusNotFound:
		return "SYSTEM_NOT_FOUND"
	case http.StatusMethodNotAllowed:
		return "SYSTEM_METHOD_NOT_ALLOWED"
	case http.StatusTooManyRequests:
		return "RATE_LIMITED"
	default:
		if status >= http.StatusInternalServerError {
			return "SYSTEM_INTERNAL_ERROR"
		}
		return "REQUEST_ERROR"
	}
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", false
	}
	return token, true
}
