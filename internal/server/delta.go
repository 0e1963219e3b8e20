package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"gitlab.ozon.dev/pupkingeorgij/catalog/internal/storage"
)

const (
	defaultAuditLimit = 100
	maxAuditLimit     = 1000
)

// handleChanges serves both poll modes. A cursor selects sequence paging,
// otherwise since (default now) selects the timestamp poll.
func (s *Server) handleChanges(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if rawCursor := q.Get("cursor"); rawCursor != "" {
		cursor, err := strconv.ParseInt(rawCursor, 10, 64)
		if err != nil {
			s.respondServiceError(w, r, &storage.ValidationError{Field: "cursor", Value: rawCursor, Reason: "must be an integer"})
			return
		}
		limit, err := parseLimit(q.Get("limit"))
		if err != nil {
			s.respondServiceError(w, r, err)
			return
		}
		changes, err := s.feed.PollSeq(r.Context(), cursor, limit)
		if err != nil {
			s.respondServiceError(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, changes)
		return
	}

	var since *time.Time
	if rawSince := q.Get("since"); rawSince != "" {
		t, err := parseSince(rawSince)
		if err != nil {
			s.respondServiceError(w, r, err)
			return
		}
		since = &t
	}

	changes, err := s.feed.Poll(r.Context(), since)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, changes)
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := storage.AuditFilter{Table: q.Get("table"), Limit: defaultAuditLimit}

	if rawSince := q.Get("since"); rawSince != "" {
		t, err := parseSince(rawSince)
		if err != nil {
			s.respondServiceError(w, r, err)
			return
		}
		filter.Since = t
	}

	switch order := strings.ToLower(q.Get("order")); order {
	case "", "desc":
	case "asc":
		filter.Ascending = true
	default:
		s.respondServiceError(w, r, &storage.ValidationError{Field: "order", Value: order, Reason: "must be asc or desc"})
		return
	}

	limit, err := parseLimit(q.Get("limit"))
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	if limit > 0 {
		filter.Limit = limit
	}
	if filter.Limit > maxAuditLimit {
		filter.Limit = maxAuditLimit
	}

	entries, err := s.audit.Query(r.Context(), filter)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, entries)
}

// isoLocal is the zone-less layout older clients send; it is read as UTC.
const isoLocal = "2006-01-02T15:04:05.999999999"

func parseSince(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation(isoLocal, raw, time.UTC); err == nil {
		return t, nil
	}
	return time.Time{}, &storage.ValidationError{Field: "since", Value: raw, Reason: "must be an ISO 8601 timestamp"}
}

// parseLimit returns 0 for an empty value.
func parseLimit(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, &storage.ValidationError{Field: "limit", Value: raw, Reason: "must be a positive integer"}
	}
	return n, nil
}
