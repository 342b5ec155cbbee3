// Package handler contains chi HTTP handlers that translate HTTP
// requests/responses to and from the service layer.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"

	"github.com/Shivanand-hulikatti/ticket-marketplace/internal/model"
	"github.com/Shivanand-hulikatti/ticket-marketplace/internal/service"
)

// Codes produced by the HTTP layer itself.
const (
	CodeUnauthorized = "UNAUTHORIZED"
	CodeRateLimited  = "RATE_LIMITED"
)

var statusByCode = map[string]int{
	service.CodeNotFound:              http.StatusNotFound,
	service.CodeForbidden:             http.StatusForbidden,
	service.CodeInsufficientQuota:     http.StatusConflict,
	service.CodeInvalidTransition:     http.StatusConflict,
	service.CodeCapacityExceeded:      http.StatusConflict,
	service.CodeRegularQuotaUnderflow: http.StatusConflict,
	service.CodeNameReserved:          http.StatusBadRequest,
	service.CodeDuplicateName:         http.StatusConflict,
	service.CodeQuotaBelowSold:        http.StatusConflict,
	service.CodeTicketsSold:           http.StatusConflict,
	service.CodeInvalidInput:          http.StatusBadRequest,
}

// ─── Helper utilities ─────────────────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, model.ErrorResponse{Error: msg, Code: code})
}

// decodeJSON reads a JSON body. When optional is set an empty body leaves dst
// untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any, optional bool) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1 MB limit
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	err := dec.Decode(dst)
	if optional && errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func badRequest(w http.ResponseWriter, err error) {
	writeError(w, http.StatusBadRequest, service.CodeInvalidInput, "invalid request body: "+err.Error())
}

// respondError maps a service error onto a status code. Caller-facing errors
// carry their message; anything unclassified is logged and hidden.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	code := service.Code(err)
	status, ok := statusByCode[code]
	if !ok {
		log.WithError(err).WithFields(log.Fields{
			"request_id": middleware.GetReqID(r.Context()),
			"method":     r.Method,
			"path":       r.URL.Path,
		}).Error("Unexpected error handling request")
		writeError(w, http.StatusInternalServerError, service.CodeInternal, "internal server error")
		return
	}

	log.WithFields(log.Fields{
		"request_id": middleware.GetReqID(r.Context()),
		"code":       code,
	}).Debug(err.Error())
	writeError(w, status, code, err.Error())
}

// ─── Health check ─────────────────────────────────────────────────────────────

// HealthCheck handles GET /health. It reports 503 while the database is
// unreachable.
func HealthCheck(ping func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ping != nil {
			if err := ping(r.Context()); err != nil {
				log.WithError(err).Warn("Health check failed")
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
