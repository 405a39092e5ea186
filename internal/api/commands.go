package api

import (
	"net/http"
	"strconv"

	"github.com/nerrad567/poweredup/internal/audit"
	"github.com/nerrad567/poweredup/internal/control"
)

// handleListCommands returns the command history, newest first.
//
// Query parameters: hub_id, command, status (accepted|failed), source
// (mqtt|api), limit and offset.
func (s *Server) handleListCommands(w http.ResponseWriter, r *http.Request) {
	if s.commandLog == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "command log not configured")
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{
		HubID:   q.Get("hub_id"),
		Command: q.Get("command"),
		Status:  control.AckStatus(q.Get("status")),
		Source:  q.Get("source"),
	}

	switch filter.Status {
	case "", control.AckAccepted, control.AckFailed:
	default:
		writeBadRequest(w, "status must be accepted or failed")
		return
	}

	var err error
	if filter.Limit, err = intParam(q.Get("limit")); err != nil {
		writeBadRequest(w, "limit must be a non-negative integer")
		return
	}
	if filter.Offset, err = intParam(q.Get("offset")); err != nil {
		writeBadRequest(w, "offset must be a non-negative integer")
		return
	}

	res, err := s.commandLog.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("listing commands", "error", err, "request_id", requestID(r))
		writeInternalError(w, "failed to list commands")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// intParam parses an optional non-negative query integer. Empty means 0.
func intParam(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.ParseUint(v, 10, 31)
	if err != nil {
		return 0, err
	}
	return int(n), nil
}
