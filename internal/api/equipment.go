package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/samber/lo"

	"github.com/nerrad567/equipment-status/internal/equipment"
)

// stateResponse is the wire form of an EquipmentState.
type stateResponse struct {
	ID        string `json:"id"`
	State     string `json:"state"`
	Timestamp string `json:"timestamp"`
}

// reportRequest is the POST /equipment body.
type reportRequest struct {
	ID        string `json:"id" validate:"required"`
	State     string `json:"state" validate:"required"`
	Timestamp string `json:"timestamp" validate:"required"`
}

func toStateResponse(s equipment.EquipmentState) stateResponse {
	return stateResponse{
		ID:        s.Identifier,
		State:     s.State.String(),
		Timestamp: s.Timestamp.Format(time.RFC3339Nano),
	}
}

func toStateResponses(states []equipment.EquipmentState) []stateResponse {
	return lo.Map(states, func(s equipment.EquipmentState, _ int) stateResponse {
		return toStateResponse(s)
	})
}

// handleLatest returns the current state of every known piece of equipment.
// An empty store answers 200 with an empty array.
func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	states, err := s.service.Latest(r.Context())
	if err != nil {
		s.logger.Error("loading latest equipment states", "error", err)
		writeStoreFailure(w, "failed to load equipment states")
		return
	}
	writeJSON(w, http.StatusOK, toStateResponses(states))
}

// handleReport validates and records one state report.
func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	var req reportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidBody, "invalid JSON body")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidBody, "id, state and timestamp are required")
		return
	}

	state, err := s.service.Report(r.Context(), req.ID, req.State, req.Timestamp)
	if err != nil {
		if !errors.Is(err, equipment.ErrRejected) {
			s.logger.Error("recording equipment state", "id", req.ID, "error", err)
		}
		writeReportError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toStateResponse(state))
}

// handleHistory returns every state observed in the requested range.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	from, to, ok := s.parseRange(w, r)
	if !ok {
		return
	}

	states, err := s.service.History(r.Context(), from, to)
	if err != nil {
		s.logger.Error("loading equipment history", "error", err)
		writeStoreFailure(w, "failed to load equipment history")
		return
	}
	writeHistory(w, states)
}

// handleHistoryByIdentifier returns one equipment's states in the requested range.
func (s *Server) handleHistoryByIdentifier(w http.ResponseWriter, r *http.Request) {
	id, err := url.PathUnescape(chi.URLParam(r, "id"))
	if err != nil || strings.TrimSpace(id) == "" {
		writeInvalidPath(w, "invalid equipment id")
		return
	}

	from, to, ok := s.parseRange(w, r)
	if !ok {
		return
	}

	states, err := s.service.HistoryByIdentifier(r.Context(), id, from, to)
	if err != nil {
		s.logger.Error("loading equipment history", "id", id, "error", err)
		writeStoreFailure(w, "failed to load equipment history")
		return
	}
	writeHistory(w, states)
}

// parseRange reads the {from} and {to} path parameters. On failure it
// writes a 400 and returns ok=false.
func (s *Server) parseRange(w http.ResponseWriter, r *http.Request) (from, to time.Time, ok bool) {
	from, err := s.pathTimestamp(r, "from")
	if err != nil {
		writeInvalidPath(w, "invalid from timestamp")
		return time.Time{}, time.Time{}, false
	}
	to, err = s.pathTimestamp(r, "to")
	if err != nil {
		writeInvalidPath(w, "invalid to timestamp")
		return time.Time{}, time.Time{}, false
	}
	if from.After(to) {
		writeInvalidPath(w, "from must not be after to")
		return time.Time{}, time.Time{}, false
	}
	return from, to, true
}

// pathTimestamp parses a path parameter. chi hands back the raw segment
// when the path was escaped, so "%2B02:00" offsets are unescaped first.
func (s *Server) pathTimestamp(r *http.Request, name string) (time.Time, error) {
	raw, err := url.PathUnescape(chi.URLParam(r, name))
	if err != nil {
		return time.Time{}, err
	}
	return s.service.ParseTimestamp(raw)
}

// writeHistory answers 204 for an empty range and 200 otherwise.
func writeHistory(w http.ResponseWriter, states []equipment.EquipmentState) {
	if len(states) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, toStateResponses(states))
}
