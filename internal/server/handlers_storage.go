package server

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"canonstore/internal/api"
)

func (s *Server) handleUploadItem(w http.ResponseWriter, r *http.Request) {
	family, ok := s.pathFamily(w, r)
	if !ok {
		return
	}
	s.withLimiter(w, r, s.uploadLimiter, "upload", func() {
		files, ok := s.readMultipartFiles(w, r, "file")
		if !ok {
			return
		}
		if len(files) != 1 {
			s.writeErrorReq(w, r, http.StatusBadRequest, badRequestCode(fmt.Errorf("exactly one file is required"), ErrCodeMissingRequired))
			return
		}

		id, err := s.service.Create(r.Context(), family, files[0])
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusOK, api.IDResponse{ID: id})
	})
}

func (s *Server) handleUploadMulti(w http.ResponseWriter, r *http.Request) {
	family, ok := s.pathFamily(w, r)
	if !ok {
		return
	}
	s.withLimiter(w, r, s.uploadLimiter, "upload", func() {
		files, ok := s.readMultipartFiles(w, r, "files")
		if !ok {
			return
		}

		ids, err := s.service.CreateBatch(r.Context(), family, files)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusOK, api.IDsResponse{IDs: ids})
	})
}

func (s *Server) handleUploadFromWeb(w http.ResponseWriter, r *http.Request) {
	family, ok := s.pathFamily(w, r)
	if !ok {
		return
	}
	rawURL, ok := s.readTextBody(w, r, urlListMaxBody)
	if !ok {
		return
	}
	if rawURL == "" {
		s.writeErrorReq(w, r, http.StatusBadRequest, badRequestCode(fmt.Errorf("url is required"), ErrCodeMissingRequired))
		return
	}

	s.withLimiter(w, r, s.uploadLimiter, "upload", func() {
		id, err := s.service.CreateFromURL(r.Context(), family, rawURL)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusOK, api.IDResponse{ID: id})
	})
}

func (s *Server) handleUploadFromWebMulti(w http.ResponseWriter, r *http.Request) {
	family, ok := s.pathFamily(w, r)
	if !ok {
		return
	}
	body, ok := s.readTextBody(w, r, urlListMaxBody)
	if !ok {
		return
	}

	s.withLimiter(w, r, s.uploadLimiter, "upload", func() {
		ids, err := s.service.CreateFromURLs(r.Context(), family, splitCSV(body))
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusOK, api.IDsResponse{IDs: ids})
	})
}

func (s *Server) handleGetItem(w http.ResponseWriter, r *http.Request) {
	family, ok := s.pathFamily(w, r)
	if !ok {
		return
	}
	id, ok := s.pathIDOrBadRequest(w, r)
	if !ok {
		return
	}

	rec, err := s.service.Get(r.Context(), family, id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleListItems(w http.ResponseWriter, r *http.Request) {
	family, ok := s.pathFamily(w, r)
	if !ok {
		return
	}
	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.writeErrorReq(w, r, http.StatusBadRequest, badRequestCode(fmt.Errorf("invalid limit %q", raw), ErrCodeInvalidQuery))
			return
		}
		limit = n
	}

	items, err := s.service.List(r.Context(), family, limit)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleGetItemContent(w http.ResponseWriter, r *http.Request) {
	family, ok := s.pathFamily(w, r)
	if !ok {
		return
	}
	id, ok := s.pathIDOrBadRequest(w, r)
	if !ok {
		return
	}

	etag := strconv.Quote(id)
	if etagMatches(r.Header.Values("If-None-Match"), etag) {
		if _, err := s.service.Get(r.Context(), family, id); err == nil {
			w.Header().Set("ETag", etag)
			w.WriteHeader(http.StatusNotModified)
			return
		}
	}

	rec, rc, err := s.service.Open(r.Context(), family, id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	defer rc.Close()

	filename := rec.DisplayName
	if filename == "" {
		filename = rec.ID
	}
	w.Header().Set("Content-Type", rec.ContentType)
	w.Header().Set("Content-Length", strconv.FormatInt(rec.SizeBytes, 10))
	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("inline", map[string]string{"filename": filename}))
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		s.log().Warn("stream item content", "id", rec.ID, "error", err)
	}
}

func (s *Server) handleDeleteItem(w http.ResponseWriter, r *http.Request) {
	family, ok := s.pathFamily(w, r)
	if !ok {
		return
	}
	id, ok := s.pathIDOrBadRequest(w, r)
	if !ok {
		return
	}

	if err := s.service.Delete(r.Context(), family, id); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.IDResponse{ID: id})
}

// readMultipartFiles parses the form and loads every file under field.
// etagMatches reports whether any If-None-Match value names etag. Tags are
// compared weakly, as RFC 9110 requires for If-None-Match.
func etagMatches(headers []string, etag string) bool {
	for _, header := range headers {
		for _, candidate := range strings.Split(header, ",") {
			candidate = strings.TrimSpace(candidate)
			if candidate == "*" {
				return true
			}
			if strings.TrimPrefix(candidate, "W/") == strings.TrimPrefix(etag, "W/") {
				return true
			}
		}
	}
	return false
}

func (s *Server) readMultipartFiles(w http.ResponseWriter, r *http.Request, field string) ([]Upload, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, s.limits.MaxFormBytes)
	if err := r.ParseMultipartForm(s.limits.MultipartMaxMemory); err != nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, classifyMultipartError(err))
		return nil, false
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	headers := r.MultipartForm.File[field]
	if len(headers) == 0 {
		s.writeErrorReq(w, r, http.StatusBadRequest, badRequestCode(fmt.Errorf("%s is required", field), ErrCodeMissingRequired))
		return nil, false
	}

	uploads := make([]Upload, 0, len(headers))
	for _, header := range headers {
		up, err := s.readMultipartFile(header)
		if err != nil {
			s.writeErrorReq(w, r, http.StatusBadRequest, err)
			return nil, false
		}
		uploads = append(uploads, up)
	}
	return uploads, true
}

func (s *Server) readMultipartFile(header *multipart.FileHeader) (Upload, error) {
	if header.Size > s.limits.MaxFileBytes {
		return Upload{}, badRequestCode(fmt.Errorf("%s exceeds %d bytes", header.Filename, s.limits.MaxFileBytes), ErrCodeRequestTooLarge)
	}
	file, err := header.Open()
	if err != nil {
		return Upload{}, badRequest(err)
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, s.limits.MaxFileBytes+1))
	if err != nil {
		return Upload{}, badRequest(err)
	}
	if int64(len(data)) > s.limits.MaxFileBytes {
		return Upload{}, badRequestCode(fmt.Errorf("%s exceeds %d bytes", header.Filename, s.limits.MaxFileBytes), ErrCodeRequestTooLarge)
	}
	return Upload{
		Data:        data,
		ContentType: strings.TrimSpace(header.Header.Get("Content-Type")),
		Filename:    header.Filename,
	}, nil
}

func classifyMultipartError(err error) error {
	if err == nil {
		return nil
	}
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) || strings.Contains(strings.ToLower(err.Error()), "request body too large") {
		return badRequestCode(fmt.Errorf("request body too large"), ErrCodeRequestTooLarge)
	}
	if errors.Is(err, http.ErrNotMultipart) {
		return badRequestCode(fmt.Errorf("expected multipart/form-data body"), ErrCodeInvalidArgument)
	}
	return badRequestCode(err, ErrCodeInvalidArgument)
}
