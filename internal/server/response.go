package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"librarysvc/internal/util"
	"librarysvc/pkg/domain"
)

// Wire error codes, mirrored in the transport status.
const (
	codeBadRequest  = "BAD_REQUEST"
	codeNotFound    = "NOT_FOUND"
	codeConflict    = "CONFLICT"
	codeInternal    = "INTERNAL"
	codeUnavailable = "UNAVAILABLE"
)

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"requestId,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorResponse{
		Error:     msg,
		Code:      code,
		RequestID: strings.TrimSpace(w.Header().Get("X-Request-Id")),
	})
}

// writeDomainError maps the domain error taxonomy onto transport status and
// wire codes. A PartialFailureError is internal: the caller must not treat
// it as either success or a clean rejection. Internal failures go to the
// request-scoped logger so the line carries the request id.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var pf *domain.PartialFailureError
	switch {
	case errors.As(err, &pf):
		util.LoggerFromContext(r.Context()).Error("partial failure surfaced", "err", err)
		writeError(w, http.StatusInternalServerError, codeInternal, pf.Error())
	case errors.Is(err, domain.ErrBadRequest):
		writeError(w, http.StatusBadRequest, codeBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, codeNotFound, err.Error())
	case errors.Is(err, domain.ErrDuplicateKey),
		errors.Is(err, domain.ErrConflict),
		errors.Is(err, domain.ErrPatronIneligible):
		writeError(w, http.StatusConflict, codeConflict, err.Error())
	case errors.Is(err, domain.ErrStoreUnavailable):
		writeError(w, http.StatusServiceUnavailable, codeUnavailable, err.Error())
	default:
		util.LoggerFromContext(r.Context()).Error("unhandled error", "err", err)
		writeError(w, http.StatusInternalServerError, codeInternal, "internal error")
	}
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, codeBadRequest, "method not allowed")
}

func notFound(w http.ResponseWriter, msg string) {
	writeError(w, http.StatusNotFound, codeNotFound, msg)
}
