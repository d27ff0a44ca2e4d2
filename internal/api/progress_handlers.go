package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/listing-crawler/internal/ledger"
)

const (
	defaultLimit = 100
	maxLimit     = 1000
)

// ProgressHandler exposes the ledger read-only.
type ProgressHandler struct {
	source LedgerSource
	logger *zap.Logger
}

// NewProgressHandler wires the ledger source and logger.
func NewProgressHandler(source LedgerSource, logger *zap.Logger) *ProgressHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProgressHandler{source: source, logger: logger}
}

// List handles GET /v1/progress?status=&limit=&offset=. It returns
// {"entries": [...], "total": n} in ledger order, where total counts the
// entries matching the filter before paging.
func (h *ProgressHandler) List(w http.ResponseWriter, r *http.Request) {
	l, ok := h.load(w)
	if !ok {
		return
	}
	limit, offset, err := parseLimitOffset(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var filter ledger.Status
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		filter, err = ledger.ParseStatus(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid status")
			return
		}
	}

	matched := make([]ledger.Entry, 0, l.Len())
	for _, e := range l.Entries() {
		if filter == "" || e.Status == filter {
			matched = append(matched, e)
		}
	}
	page := matched[min(offset, len(matched)):min(offset+limit, len(matched))]
	writeJSON(w, http.StatusOK, map[string]any{
		"entries": page,
		"total":   len(matched),
	})
}

// Summary handles GET /v1/progress/summary. Every status is present in the
// response, with zero when no entry has it.
func (h *ProgressHandler) Summary(w http.ResponseWriter, _ *http.Request) {
	l, ok := h.load(w)
	if !ok {
		return
	}
	counts := l.Counts()
	writeJSON(w, http.StatusOK, map[string]int{
		string(ledger.StatusPending):   counts[ledger.StatusPending],
		string(ledger.StatusCompleted): counts[ledger.StatusCompleted],
		string(ledger.StatusFailed):    counts[ledger.StatusFailed],
		"total":                        l.Len(),
	})
}

func (h *ProgressHandler) load(w http.ResponseWriter) (*ledger.Ledger, bool) {
	if h.source == nil {
		writeError(w, http.StatusServiceUnavailable, "ledger unavailable")
		return nil, false
	}
	l, err := h.source.Load()
	if err != nil {
		h.logger.Error("Load ledger failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to read ledger")
		return nil, false
	}
	return l, true
}

func parseLimitOffset(r *http.Request) (int, int, error) {
	q := r.URL.Query()
	limit := defaultLimit
	if raw := q.Get("limit"); raw != "" {
		val, err := strconv.Atoi(raw)
		if err != nil || val <= 0 {
			return 0, 0, errors.New("invalid limit")
		}
		limit = min(val, maxLimit)
	}
	offset := 0
	if raw := q.Get("offset"); raw != "" {
		val, err := strconv.Atoi(raw)
		if err != nil || val < 0 {
			return 0, 0, errors.New("invalid offset")
		}
		offset = val
	}
	return limit, offset, nil
}
