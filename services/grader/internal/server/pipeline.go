package server

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"langgrade/internal/util"
	"langgrade/pkg/analysis"
	"langgrade/pkg/article"
	"langgrade/pkg/convert"
	"langgrade/pkg/domain"
	"langgrade/pkg/storage"
	"langgrade/services/grader/internal/app"
)

const multipartMemory = 32 << 20

func (s *Server) parseMultipart(w http.ResponseWriter, r *http.Request) bool {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "file too large")
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid form data")
		return false
	}
	return true
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if !s.parseMultipart(w, r) {
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "No file provided")
		return
	}
	defer file.Close()

	res, err := s.app.Upload(r.Context(), header.Filename, file)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, res)
	case errors.Is(err, convert.ErrUnsupportedFormat), errors.Is(err, app.ErrFileNameRequired):
		writeError(w, http.StatusBadRequest, "Unsupported file type. Please upload PDF or EPUB files.")
	case errors.Is(err, convert.ErrNoPages):
		writeError(w, http.StatusBadRequest, "Document contains no pages")
	default:
		util.LoggerFromContext(r.Context()).Error("upload failed", "file", header.Filename, "err", err)
		writeError(w, http.StatusInternalServerError, "Error processing file. Please try again.")
	}
}

func (s *Server) handleConvertImages(w http.ResponseWriter, r *http.Request) {
	if !s.parseMultipart(w, r) {
		return
	}
	headers := r.MultipartForm.File["images"]
	if len(headers) == 0 {
		writeError(w, http.StatusBadRequest, "No images provided")
		return
	}
	images := make([]convert.Image, 0, len(headers))
	for _, h := range headers {
		f, err := h.Open()
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid form data")
			return
		}
		data, err := io.ReadAll(f)
		_ = f.Close()
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid form data")
			return
		}
		images = append(images, convert.Image{Name: h.Filename, Data: data})
	}

	pdf, pages, err := s.app.ConvertImages(r.Context(), images)
	switch {
	case err == nil:
	case errors.Is(err, convert.ErrNoImages):
		writeError(w, http.StatusUnprocessableEntity, "No images could be converted")
		return
	default:
		util.LoggerFromContext(r.Context()).Error("image conversion failed", "images", len(images), "err", err)
		writeError(w, http.StatusInternalServerError, "Failed to convert images to PDF")
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="converted-images.pdf"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(pdf)))
	w.Header().Set("X-Page-Count", strconv.Itoa(pages))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdf)
}

type analyzeRequest struct {
	FileName string `json:"fileName"`
	Length   string `json:"length"`
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	s.analyze(w, r, req)
}

// handleGrade is the query-string form of /analyze.
func (s *Server) handleGrade(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	s.analyze(w, r, analyzeRequest{FileName: q.Get("fileName"), Length: q.Get("length")})
}

func (s *Server) analyze(w http.ResponseWriter, r *http.Request, req analyzeRequest) {
	if strings.TrimSpace(req.FileName) == "" {
		writeError(w, http.StatusBadRequest, "fileName is required")
		return
	}
	length, ok := domain.ParseSummaryLength(strings.TrimSpace(req.Length))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid length")
		return
	}
	result, err := s.app.Analyze(r.Context(), req.FileName, length)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, result)
	case errors.Is(err, app.ErrFileNameRequired):
		writeError(w, http.StatusBadRequest, "fileName is required")
	case errors.Is(err, analysis.ErrFileNotFound):
		writeError(w, http.StatusNotFound, "File not found")
	default:
		util.LoggerFromContext(r.Context()).Error("analysis failed", "file", req.FileName, "err", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) handleArticle(w http.ResponseWriter, r *http.Request) {
	var req app.ArticleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}
	logger := util.LoggerFromContext(r.Context())

	if strings.TrimSpace(req.TargetLevel) != "" {
		text, err := s.app.RewriteArticle(r.Context(), req)
		if errors.Is(err, article.ErrInvalidTarget) {
			writeError(w, http.StatusBadRequest, "invalid target CEFR level")
			return
		}
		if err != nil {
			logger.Error("article rewrite failed", "target", req.TargetLevel, "err", err)
			writeError(w, http.StatusInternalServerError, "Failed to process article")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"rewrittenText": text})
		return
	}

	result, err := s.app.DetectArticle(r.Context(), req)
	if err != nil {
		logger.Error("article level detection failed", "url", req.IsURL, "err", err)
		writeError(w, http.StatusInternalServerError, "Failed to process article")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleBookCover(w http.ResponseWriter, r *http.Request) {
	info, err := s.app.BookCover(r.Context(), r.URL.Query().Get("title"))
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, info)
	case errors.Is(err, app.ErrTitleRequired):
		writeError(w, http.StatusBadRequest, "Missing title")
	default:
		util.LoggerFromContext(r.Context()).Error("book cover lookup failed", "err", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch book info")
	}
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	fileName := r.PathValue("fileName")
	url, err := s.app.DownloadURL(r.Context(), fileName)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{"url": url, "filename": fileName})
	case errors.Is(err, app.ErrArchiveDisabled), errors.Is(err, storage.ErrNotArchived), errors.Is(err, app.ErrFileNameRequired):
		writeError(w, http.StatusNotFound, "document not found")
	default:
		util.LoggerFromContext(r.Context()).Error("presign download failed", "file", fileName, "err", err)
		writeError(w, http.StatusInternalServerError, "failed to generate download URL")
	}
}
