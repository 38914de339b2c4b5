package web

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/importer/internal/core/tables"
)

// FlagRequest sets a flag on the transactions matching Filters.
type FlagRequest struct {
	FilterRequest
	Value *bool `json:"value"`
}

// UpdateRequest sets Values, given as CSV-style text, on matching rows.
type UpdateRequest struct {
	FilterRequest
	Values map[string]string `json:"values"`
}

// handleFlag returns a handler that sets column on matching transactions.
// The value defaults to true.
func (s *Server) handleFlag(column string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req FlagRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		filter, err := req.FilterSet()
		if err != nil {
			respondError(w, r, err)
			return
		}
		value := true
		if req.Value != nil {
			value = *req.Value
		}

		n, err := s.service.SetFlag(r.Context(), tables.Transactions.Key(), filter, column, value)
		if err != nil {
			respondError(w, r, err)
			return
		}
		writeJSON(w, map[string]any{"column": column, "value": value, "updated": n})
	}
}

// handleUpdate sets arbitrary columns on matching rows of a table.
func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	tableKey := chi.URLParam(r, "tableKey")

	var req UpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Values) == 0 {
		writeError(w, http.StatusBadRequest, "no values to update")
		return
	}
	filter, err := req.FilterSet()
	if err != nil {
		respondError(w, r, err)
		return
	}

	n, err := s.service.Update(r.Context(), tableKey, filter, req.Values)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, map[string]any{"updated": n})
}

// handleDelete removes matching rows. At least one filter is required.
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	tableKey := chi.URLParam(r, "tableKey")

	var req FilterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	filter, err := req.FilterSet()
	if err != nil {
		respondError(w, r, err)
		return
	}

	n, err := s.service.DeleteWhere(r.Context(), tableKey, filter)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, map[string]any{"deleted": n})
}

// handleReset deletes all data from a specific table.
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	tableKey := chi.URLParam(r, "tableKey")

	n, err := s.service.Reset(r.Context(), tableKey)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, map[string]any{"status": "reset", "deleted": n})
}
