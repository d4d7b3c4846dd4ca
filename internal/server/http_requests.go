package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/groblegark/apgate/internal/model"
	"github.com/groblegark/apgate/internal/store"
)

type submitRequestInput struct {
	SessionID string          `json:"session_id"`
	Tool      string          `json:"tool"`
	ToolInput json.RawMessage `json:"tool_input,omitempty"`
}

type respondInput struct {
	Decision    string `json:"decision"`
	RespondedBy string `json:"responded_by"`
	Reason      string `json:"reason,omitempty"`
}

type cleanupInput struct {
	OlderThan string `json:"older_than,omitempty"`
}

// handleSubmitRequest handles POST /v1/requests.
func (s *ApprovalServer) handleSubmitRequest(w http.ResponseWriter, r *http.Request) {
	var in submitRequestInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	req, err := s.Submit(r.Context(), in.SessionID, model.Action{
		Tool:  in.Tool,
		Input: in.ToolInput,
	})
	if err != nil {
		var ie inputError
		if errors.As(err, &ie) {
			writeError(w, http.StatusBadRequest, ie.Error())
		} else {
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	writeJSON(w, http.StatusCreated, req)
}

// handleListRequests handles GET /v1/requests.
func (s *ApprovalServer) handleListRequests(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := model.Filter{
		SessionID: q.Get("session_id"),
		Tool:      q.Get("tool"),
	}

	if v := q.Get("status"); v != "" {
		for _, raw := range strings.Split(v, ",") {
			status := model.Status(raw)
			if !status.IsValid() {
				writeError(w, http.StatusBadRequest, "invalid status "+strconv.Quote(raw))
				return
			}
			filter.Status = append(filter.Status, status)
		}
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Offset = n
		}
	}

	requests, total, err := s.store.ListRequests(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list requests")
		return
	}

	// Ensure requests is never null in JSON output.
	if requests == nil {
		requests = []*model.Request{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"requests": requests,
		"total":    total,
	})
}

// handleGetRequest handles GET /v1/requests/{id}.
func (s *ApprovalServer) handleGetRequest(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "id is required")
		return
	}

	req, err := s.store.GetRequest(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "request not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get request")
		return
	}

	writeJSON(w, http.StatusOK, req)
}

// handleGetEvents handles GET /v1/requests/{id}/events.
func (s *ApprovalServer) handleGetEvents(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "id is required")
		return
	}

	if _, err := s.store.GetRequest(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "request not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to get request")
		return
	}

	evts, err := s.store.GetEvents(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get events")
		return
	}
	if evts == nil {
		evts = []*model.Event{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"events": evts})
}

// handleRespond handles POST /v1/requests/{id}/respond.
//
// A respond racing a reaper timeout (or another responder) loses cleanly:
// the store transition is atomic, and the loser gets a 409 carrying the
// status that actually won.
func (s *ApprovalServer) handleRespond(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "id is required")
		return
	}

	var in respondInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	req, err := s.Respond(r.Context(), id, model.Decision(in.Decision), in.RespondedBy, in.Reason)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, req)
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "request not found")
	case errors.Is(err, store.ErrConflict):
		s.writeConflict(w, r, id)
	case errors.Is(err, errForbidden):
		writeError(w, http.StatusForbidden, errForbidden.Error())
	default:
		var ie inputError
		if errors.As(err, &ie) {
			writeError(w, http.StatusBadRequest, ie.Error())
		} else {
			writeError(w, http.StatusInternalServerError, err.Error())
		}
	}
}

// writeConflict reports a lost respond race, including the status that won
// so the responder sees what actually happened to the request.
func (s *ApprovalServer) writeConflict(w http.ResponseWriter, r *http.Request, id string) {
	body := map[string]string{"error": "request already decided"}
	if req, err := s.store.GetRequest(r.Context(), id); err == nil {
		body["status"] = string(req.Status)
	}
	writeJSON(w, http.StatusConflict, body)
}

// handleGetStats handles GET /v1/stats.
func (s *ApprovalServer) handleGetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Stats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// handleCleanup handles POST /v1/requests/cleanup.
func (s *ApprovalServer) handleCleanup(w http.ResponseWriter, r *http.Request) {
	olderThan := 24 * time.Hour
	var in cleanupInput
	if err := json.NewDecoder(r.Body).Decode(&in); err == nil && in.OlderThan != "" {
		d, err := time.ParseDuration(in.OlderThan)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid older_than duration")
			return
		}
		olderThan = d
	}

	n, err := s.Cleanup(r.Context(), olderThan)
	if err != nil {
		var ie inputError
		if errors.As(err, &ie) {
			writeError(w, http.StatusBadRequest, ie.Error())
		} else {
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]int{"deleted": n})
}
