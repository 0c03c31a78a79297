package httpjson

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	apperrors "tableside/internal/errors"
)

type ErrorResponse struct {
	TraceID   string                       `json:"traceId"`
	Status    int                          `json:"status"`
	Code      string                       `json:"code"`
	Message   string                       `json:"message"`
	Details   []apperrors.ValidationDetail `json:"details,omitempty"`
	Timestamp time.Time                    `json:"timestamp"`
}

func WriteJSON(w http.ResponseWriter, logger *zap.Logger, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("failed to encode response", zap.Error(err))
	}
}

func WriteValidationError(w http.ResponseWriter, logger *zap.Logger, traceID, message string, details ...apperrors.ValidationDetail) {
	WriteJSON(w, logger, http.StatusBadRequest, ErrorResponse{
		TraceID:   traceID,
		Status:    http.StatusBadRequest,
		Code:      "VALIDATION_ERROR",
		Message:   message,
		Details:   details,
		Timestamp: time.Now().UTC(),
	})
}

// WriteError maps an application error onto its HTTP status. Anything that is
// not a known application error is logged and reported as a generic 500.
func WriteError(w http.ResponseWriter, logger *zap.Logger, traceID string, err error) {
	status, code, message := classify(err)
	if status == http.StatusInternalServerError {
		logger.Error("unexpected error", zap.String("traceId", traceID), zap.Error(err))
	}

	resp := ErrorResponse{
		TraceID:   traceID,
		Status:    status,
		Code:      code,
		Message:   message,
		Timestamp: time.Now().UTC(),
	}
	if ve, ok := apperrors.IsValidationError(err); ok {
		resp.Details = ve.Details
	}

	WriteJSON(w, logger, status, resp)
}

func classify(err error) (int, string, string) {
	if ve, ok := apperrors.IsValidationError(err); ok {
		return http.StatusBadRequest, "VALIDATION_ERROR", ve.Message
	}
	if be, ok := apperrors.IsBadRequestError(err); ok {
		return http.StatusBadRequest, be.Reason, be.Message
	}
	if nf, ok := apperrors.IsNotFoundError(err); ok {
		return http.StatusNotFound, "NOT_FOUND", nf.Message
	}
	if ce, ok := apperrors.IsConflictError(err); ok {
		code := "CONFLICT"
		if ce.Reason != "" {
			code = ce.Reason
		}
		return http.StatusConflict, code, ce.Message
	}
	if ise, ok := apperrors.IsInvalidStateError(err); ok {
		return http.StatusConflict, "INVALID_STATE", ise.Message
	}
	if ite, ok := apperrors.IsInvalidTransitionError(err); ok {
		return http.StatusConflict, "INVALID_TRANSITION", ite.Error()
	}
	if ue, ok := apperrors.IsUnauthorizedError(err); ok {
		return http.StatusUnauthorized, "UNAUTHORIZED", ue.Message
	}
	if fe, ok := apperrors.IsForbiddenError(err); ok {
		return http.StatusForbidden, "FORBIDDEN", fe.Message
	}
	if de, ok := apperrors.IsDeadlockError(err); ok {
		return http.StatusConflict, "DEADLOCK", de.Message
	}
	return http.StatusInternalServerError, "INTERNAL_ERROR", "an unexpected error occurred"
}

// DecodeJSON decodes the request body into dst. A malformed body is reported
// as a ValidationError on the "body" field.
func DecodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperrors.NewValidationError("invalid JSON body", apperrors.ValidationDetail{
			Field:   "body",
			Message: "request body must be valid JSON",
		})
	}
	return nil
}

// PathID parses the named chi URL parameter as a positive integer id.
func PathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperrors.NewValidationError("invalid "+name, apperrors.ValidationDetail{
			Field:   name,
			Message: name + " must be a positive integer",
		})
	}
	return id, nil
}
