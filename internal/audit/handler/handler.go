// Package handler exposes the audit query surface over HTTP: search,
// compliance reports, exports and the recent-events tail. It is a thin layer;
// translation of filters and formats happens here, everything else delegates.
package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"flowaudit/internal/audit"
	"flowaudit/internal/audit/cache"
	"flowaudit/internal/audit/export"
	"flowaudit/internal/audit/report"
)

// Handler serves the admin audit API.
type Handler struct {
	store     audit.Store
	generator *report.Generator
	exporter  *export.Exporter
	recent    *cache.Recent
	log       *slog.Logger
}

// New creates a Handler.
func New(store audit.Store, generator *report.Generator, exporter *export.Exporter, recent *cache.Recent, log *slog.Logger) *Handler {
	return &Handler{
		store:     store,
		generator: generator,
		exporter:  exporter,
		recent:    recent,
		log:       log.With("component", "audit_handler"),
	}
}

// RegisterAdmin mounts the admin audit routes on r. Callers wrap r with the
// auth middleware; routes assume an authenticated administrator.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Get("/admin/audit/events", h.handleSearch)
	r.Get("/admin/audit/report", h.handleReport)
	r.Get("/admin/audit/export", h.handleExport)
	r.Get("/admin/audit/recent", h.handleRecent)
}

func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		writeBadRequest(w, err)
		return
	}

	events, err := h.store.Search(r.Context(), filter)
	if err != nil {
		h.log.ErrorContext(r.Context(), "audit search failed", "error", err)
		writeFailure(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"events": events,
		"count":  len(events),
	})
}

func (h *Handler) handleReport(w http.ResponseWriter, r *http.Request) {
	regulation := audit.Regulation(r.URL.Query().Get("regulation"))
	if regulation == "" {
		writeBadRequest(w, errMissingParam("regulation"))
		return
	}
	from, to, err := parseRange(r)
	if err != nil {
		writeBadRequest(w, err)
		return
	}

	rep, err := h.generator.Generate(r.Context(), regulation, from, to)
	if err != nil {
		h.log.ErrorContext(r.Context(), "compliance report failed", "regulation", regulation, "error", err)
		writeFailure(w)
		return
	}

	writeJSON(w, http.StatusOK, rep)
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	filter, err := parseFilter(r)
	if err != nil {
		writeBadRequest(w, err)
		return
	}

	payload, err := h.exporter.Export(r.Context(), filter, format)
	if err != nil {
		h.log.ErrorContext(r.Context(), "audit export failed", "format", format, "error", err)
		writeFailure(w)
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", `attachment; filename="audit-export.`+string(format)+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload)
}

func (h *Handler) handleRecent(w http.ResponseWriter, r *http.Request) {
	var limit int64 = cache.DefaultSize
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed <= 0 {
			writeBadRequest(w, errInvalidParam("limit"))
			return
		}
		limit = parsed
	}

	entries, err := h.recent.List(r.Context(), limit)
	if err != nil {
		h.log.ErrorContext(r.Context(), "recent events read failed", "error", err)
		writeFailure(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"count":   len(entries),
	})
}

// parseFilter translates query params into an audit.Filter.
func parseFilter(r *http.Request) (audit.Filter, error) {
	q := r.URL.Query()
	f := audit.Filter{
		UserID:         q.Get("user_id"),
		OrganizationID: q.Get("organization_id"),
		EntityType:     q.Get("entity_type"),
		EntityID:       q.Get("entity_id"),
		Regulation:     audit.Regulation(q.Get("regulation")),
	}

	if raw := q.Get("types"); raw != "" {
		for _, t := range strings.Split(raw, ",") {
			if trimmed := strings.TrimSpace(t); trimmed != "" {
				f.Types = append(f.Types, audit.EventType(trimmed))
			}
		}
	}
	if raw := q.Get("severity"); raw != "" {
		severity := audit.Severity(raw)
		if !severity.Known() {
			return audit.Filter{}, errInvalidParam("severity")
		}
		f.Severity = severity
	}
	if raw := q.Get("success"); raw != "" {
		success, err := strconv.ParseBool(raw)
		if err != nil {
			return audit.Filter{}, errInvalidParam("success")
		}
		f.Success = &success
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return audit.Filter{}, errInvalidParam("limit")
		}
		f.Limit = limit
	}
	if raw := q.Get("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			return audit.Filter{}, errInvalidParam("offset")
		}
		f.Offset = offset
	}

	var err error
	if f.From, f.To, err = parseRange(r); err != nil {
		return audit.Filter{}, err
	}
	return f, nil
}

// parseRange reads optional RFC3339 from/to bounds.
func parseRange(r *http.Request) (from, to time.Time, err error) {
	q := r.URL.Query()
	if raw := q.Get("from"); raw != "" {
		if from, err = time.Parse(time.RFC3339, raw); err != nil {
			return time.Time{}, time.Time{}, errInvalidParam("from")
		}
	}
	if raw := q.Get("to"); raw != "" {
		if to, err = time.Parse(time.RFC3339, raw); err != nil {
			return time.Time{}, time.Time{}, errInvalidParam("to")
		}
	}
	return from, to, nil
}

type paramError string

func (e paramError) Error() string { return string(e) }

func errMissingParam(name string) error {
	return paramError("missing required parameter " + name)
}

func errInvalidParam(name string) error {
	return paramError("invalid parameter " + name)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeBadRequest(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
}

// writeFailure surfaces store/report failures as a generic failure result.
// Details stay in the server log.
func writeFailure(w http.ResponseWriter) {
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "operation failed"})
}
