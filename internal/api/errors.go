package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/equipment-status/internal/equipment"
)

// Error is the body of every 4xx and 5xx answer.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes. Clients branch on Code; Message is for people.
const (
	CodeInvalidBody      = "invalid_body"
	CodeRejectedState    = "rejected_state"
	CodeInvalidPath      = "invalid_path"
	CodeStoreFailure     = "store_failure"
	CodeInternal         = "internal_error"
	CodeNotFound         = "not_found"
	CodeMethodNotAllowed = "method_not_allowed"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Client may have gone away
		json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{Status: status, Code: code, Message: message})
}

// writeInvalidPath answers 400 for an unusable id, from or to segment.
func writeInvalidPath(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, CodeInvalidPath, message)
}

// writeStoreFailure answers 500. The storage error itself is logged by the
// caller and never sent to the client.
func writeStoreFailure(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, CodeStoreFailure, message)
}

// writeReportError maps an error from Service.Report to a response.
// Rejections carry no detail about which rule failed.
func writeReportError(w http.ResponseWriter, err error) {
	if errors.Is(err, equipment.ErrRejected) {
		writeError(w, http.StatusBadRequest, CodeRejectedState, "invalid equipment state")
		return
	}
	writeStoreFailure(w, "failed to record equipment state")
}
