package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"media-library/internal/library"
	"media-library/internal/query"
)

// SearchResult is the response shape for /api/search.
type SearchResult struct {
	Items      []library.MediaItem `json:"items"`
	Query      string              `json:"query"`
	TotalItems int                 `json:"totalItems"`
}

// Search evaluates a free-text query with optional filters:
//
//	q        free text (empty = empty result)
//	type     photo | video | any
//	location location substring
//	tags     comma-separated, all required
//	from, to inclusive creation date bounds (RFC 3339 or 2006-01-02)
func (h *Handlers) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")

	filters, err := filtersFromRequest(r)
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	ids, err := h.pipe.Search(q, filters)
	if err != nil {
		if errors.Is(err, library.ErrMalformedQuery) {
			writeJSONError(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeJSONError(w, "Search failed", http.StatusInternalServerError)
		return
	}

	items := make([]library.MediaItem, 0, len(ids))
	for _, id := range ids {
		if item, ok := h.pipe.Item(id); ok {
			items = append(items, item)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, SearchResult{
		Items:      items,
		Query:      q,
		TotalItems: len(items),
	})
}

func filtersFromRequest(r *http.Request) (query.FilterSet, error) {
	var filters query.FilterSet
	params := r.URL.Query()

	if kind := params.Get("type"); kind != "" {
		filters.Kind = library.MediaKind(kind)
	}
	filters.Location = params.Get("location")
	if tags := params.Get("tags"); tags != "" {
		for _, tag := range strings.Split(tags, ",") {
			if tag = strings.TrimSpace(tag); tag != "" {
				filters.Tags = append(filters.Tags, tag)
			}
		}
	}

	fromStr, toStr := params.Get("from"), params.Get("to")
	if fromStr != "" || toStr != "" {
		from, err := parseDate(fromStr, time.Time{})
		if err != nil {
			return filters, err
		}
		// An absent upper bound means "until now".
		to, err := parseDate(toStr, time.Now())
		if err != nil {
			return filters, err
		}
		filters.Dates = &query.DateRange{From: from, To: to}
	}
	return filters, nil
}

func parseDate(s string, fallback time.Time) (time.Time, error) {
	if s == "" {
		return fallback, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, errors.New("invalid date: " + s)
	}
	return t, nil
}
