package web

import (
	"errors"
	"mime/multipart"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/importer/internal/core"
)

// maxMemory is the part of a multipart form held in memory; the rest
// spills to temporary files.
const maxMemory = 32 << 20

// handleImport queues every uploaded "file" part and processes them as
// one run.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	tableKey := chi.URLParam(r, "tableKey")

	files, cleanup, err := s.formFiles(w, r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	defer cleanup()

	sources := make([]core.Source, 0, len(files))
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			respondError(w, r, err)
			return
		}
		defer f.Close()
		sources = append(sources, core.Source{Name: fh.Filename, Reader: f})
	}

	result, err := s.service.Import(r.Context(), tableKey, sources...)
	if err != nil {
		if result != nil {
			writeJSONStatus(w, statusFor(err), result)
			return
		}
		respondError(w, r, err)
		return
	}
	writeJSON(w, result)
}

// QueueResponse reports the files queued by one request. On failure it
// also lists the files queued before the failing one, whose rows remain
// pending.
type QueueResponse struct {
	Table   string             `json:"table"`
	Files   []core.QueueReport `json:"files"`
	Pending int                `json:"pending"`
	Error   *ErrorResponse     `json:"error,omitempty"`
}

// handleQueue queues uploaded files without processing them.
func (s *Server) handleQueue(w http.ResponseWriter, r *http.Request) {
	tableKey := chi.URLParam(r, "tableKey")

	h, err := s.service.Table(tableKey)
	if err != nil {
		respondError(w, r, err)
		return
	}

	files, cleanup, err := s.formFiles(w, r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	defer cleanup()

	resp := QueueResponse{Table: tableKey, Files: make([]core.QueueReport, 0, len(files))}
	for _, fh := range files {
		report, err := s.queueFile(r, tableKey, fh)
		resp.Files = append(resp.Files, report)
		if err != nil {
			status, body := errorResponse(r, err)
			resp.Pending = h.Pending()
			resp.Error = &body
			writeJSONStatus(w, status, resp)
			return
		}
	}

	resp.Pending = h.Pending()
	writeJSON(w, resp)
}

func (s *Server) queueFile(r *http.Request, tableKey string, fh *multipart.FileHeader) (core.QueueReport, error) {
	f, err := fh.Open()
	if err != nil {
		return core.QueueReport{FileName: fh.Filename}, err
	}
	defer f.Close()
	return s.service.QueueCSV(r.Context(), tableKey, fh.Filename, f)
}

// handleProcess commits the queued rows of one table.
func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	result, err := s.service.Process(r.Context(), chi.URLParam(r, "tableKey"))
	if err != nil {
		if result != nil {
			writeJSONStatus(w, statusFor(err), result)
			return
		}
		respondError(w, r, err)
		return
	}
	writeJSON(w, result)
}

// handleProcessAll commits every table with queued rows.
func (s *Server) handleProcessAll(w http.ResponseWriter, r *http.Request) {
	results, err := s.service.ProcessAll(r.Context())
	if results == nil {
		results = []*core.ImportResult{}
	}
	if err != nil {
		writeJSONStatus(w, statusFor(err), map[string]any{
			"results": results,
			"error":   core.FormatUserError(err),
		})
		return
	}
	writeJSON(w, map[string]any{"results": results})
}

// formFiles parses the multipart body and returns its "file" parts.
// The caller must run cleanup once the files have been read.
func (s *Server) formFiles(w http.ResponseWriter, r *http.Request) ([]*multipart.FileHeader, func(), error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Import.MaxFileSize)
	if err := r.ParseMultipartForm(maxMemory); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			return nil, func() {}, core.ErrFileTooLarge
		}
		return nil, func() {}, core.ErrNoFile
	}
	cleanup := func() { r.MultipartForm.RemoveAll() }

	files := r.MultipartForm.File["file"]
	if len(files) == 0 {
		cleanup()
		return nil, func() {}, core.ErrNoFile
	}
	return files, cleanup, nil
}
