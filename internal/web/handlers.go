package web

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/importer/internal/core"
)

// TableResponse describes one registered table.
type TableResponse struct {
	core.TableInfo
	Columns []core.ColumnInfo `json:"columns"`
	State   string            `json:"state"`
	Pending int               `json:"pending"`
}

func tableResponse(h core.Handle) TableResponse {
	return TableResponse{
		TableInfo: h.Info(),
		Columns:   h.Columns(),
		State:     h.State().String(),
		Pending:   h.Pending(),
	}
}

// handleListTables returns every registered table, optionally limited to
// one group with ?group=.
func (s *Server) handleListTables(w http.ResponseWriter, r *http.Request) {
	infos := s.service.Tables()
	if group := r.URL.Query().Get("group"); group != "" {
		infos = s.service.ByGroup(group)
	}

	out := make([]TableResponse, 0, len(infos))
	for _, info := range infos {
		h, err := s.service.Table(info.Key)
		if err != nil {
			respondError(w, r, err)
			return
		}
		out = append(out, tableResponse(h))
	}
	writeJSON(w, out)
}

// handleGetTable returns one table.
func (s *Server) handleGetTable(w http.ResponseWriter, r *http.Request) {
	h, err := s.service.Table(chi.URLParam(r, "tableKey"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, tableResponse(h))
}

// handleStatus reports import slot usage.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"groups":  s.service.Groups(),
		"limiter": s.service.Limiter().Status(),
	})
}

// handleRecords lists the rows of a table matching the filter[...] query
// parameters.
func (s *Server) handleRecords(w http.ResponseWriter, r *http.Request) {
	tableKey := chi.URLParam(r, "tableKey")

	rows, err := s.service.Records(r.Context(), tableKey, parseFilters(r))
	if err != nil {
		respondError(w, r, err)
		return
	}
	if rows == nil {
		rows = []map[string]any{}
	}

	total := len(rows)
	if limit := parseIntParam(r, "limit", 0); limit > 0 && limit < len(rows) {
		rows = rows[:limit]
	}
	writeJSON(w, map[string]any{
		"table": tableKey,
		"total": total,
		"rows":  rows,
	})
}

// parseIntParam parses an integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil || i < 1 {
		return defaultVal
	}
	return i
}

// parseFilters extracts column filters from query parameters of the form
// filter[Column]=op:value. A value without a recognised operator prefix
// is an equality test.
func parseFilters(r *http.Request) core.FilterSet {
	var fs core.FilterSet
	for key, values := range r.URL.Query() {
		if !strings.HasPrefix(key, "filter[") || !strings.HasSuffix(key, "]") {
			continue
		}
		column := key[len("filter[") : len(key)-1]
		if column == "" {
			continue
		}
		for _, val := range values {
			op, value := core.ParseCondition(val)
			fs = fs.And(column, op, value)
		}
	}
	return fs
}

// FilterRequest is the JSON form of a FilterSet.
type FilterRequest struct {
	Filters []FilterSpec `json:"filters"`
}

// FilterSpec is one JSON filter condition.
type FilterSpec struct {
	Column string `json:"column"`
	Op     string `json:"op"`
	Value  any    `json:"value"`
}

// FilterSet converts the request, validating operators.
func (req FilterRequest) FilterSet() (core.FilterSet, error) {
	var fs core.FilterSet
	for _, f := range req.Filters {
		if f.Column == "" {
			return core.FilterSet{}, fmt.Errorf("%w: filter without column", core.ErrInvalidFilter)
		}
		op, err := core.ParseOperator(f.Op)
		if err != nil {
			return core.FilterSet{}, err
		}
		fs = fs.And(f.Column, op, jsonValue(f.Value))
	}
	return fs, nil
}

// jsonValue converts decoded JSON to values filters accept.
// Numbers are passed as text so they parse like CSV cells.
func jsonValue(v any) any {
	switch x := v.(type) {
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case []any:
		out := make([]string, len(x))
		for i, e := range x {
			out[i] = fmt.Sprint(jsonValue(e))
		}
		return out
	}
	return v
}

// handleAudit lists recent audit entries, newest first.
// Query parameters: table, action, limit (default 100, max 1000).
func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	q := core.AuditQuery{
		TableKey: r.URL.Query().Get("table"),
		Action:   core.AuditAction(r.URL.Query().Get("action")),
		Limit:    min(parseIntParam(r, "limit", core.DefaultAuditLimit), 1000),
	}

	entries, err := s.service.AuditLog(r.Context(), q)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if entries == nil {
		entries = []core.AuditEntry{}
	}
	writeJSON(w, map[string]any{"entries": entries})
}
