package httpjson

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	apperrors "tableside/internal/errors"
)

func TestWriteError_StatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"validation", apperrors.NewValidationError("bad"), http.StatusBadRequest, "VALIDATION_ERROR"},
		{"bad request", apperrors.NewBadRequestError(apperrors.ReasonProductNotFound, "product 9 not found"), http.StatusBadRequest, "PRODUCT_NOT_FOUND"},
		{"not found", apperrors.NewNotFoundError("order 1 not found"), http.StatusNotFound, "NOT_FOUND"},
		{"conflict", apperrors.NewConflictError(apperrors.ReasonTableOccupied, "occupied"), http.StatusConflict, "TABLE_OCCUPIED"},
		{"invalid state", apperrors.NewInvalidStateError("active", "not pending"), http.StatusConflict, "INVALID_STATE"},
		{"invalid transition", apperrors.NewInvalidTransitionError("served", "ready"), http.StatusConflict, "INVALID_TRANSITION"},
		{"unauthorized", apperrors.NewUnauthorizedError("missing token"), http.StatusUnauthorized, "UNAUTHORIZED"},
		{"forbidden", apperrors.NewForbiddenError("nope"), http.StatusForbidden, "FORBIDDEN"},
		{"deadlock", apperrors.NewDeadlockError("max retries exceeded"), http.StatusConflict, "DEADLOCK"},
		{"wrapped", fmt.Errorf("loading: %w", apperrors.NewNotFoundError("x")), http.StatusNotFound, "NOT_FOUND"},
		{"internal", errors.New("connection refused"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()

			WriteError(rec, zap.NewNop(), "trace-1", tt.err)

			assert.Equal(t, tt.status, rec.Code)
			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.code, resp.Code)
			assert.Equal(t, "trace-1", resp.TraceID)
		})
	}
}

func TestWriteError_HidesInternalDetail(t *testing.T) {
	rec := httptest.NewRecorder()

	WriteError(rec, zap.NewNop(), "trace-2", errors.New("dial tcp 10.0.0.5:3306: refused"))

	assert.NotContains(t, rec.Body.String(), "10.0.0.5")
	assert.Contains(t, rec.Body.String(), "an unexpected error occurred")
}

func TestWriteValidationError_IncludesDetails(t *testing.T) {
	rec := httptest.NewRecorder()

	WriteValidationError(rec, zap.NewNop(), "trace-3", "validation failed",
		apperrors.ValidationDetail{Field: "items", Message: "items is required"})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Details, 1)
	assert.Equal(t, "items", resp.Details[0].Field)
}

func TestPathID(t *testing.T) {
	router := chi.NewRouter()
	var got int64
	var gotErr error
	router.Get("/orders/{orderId}", func(w http.ResponseWriter, r *http.Request) {
		got, gotErr = PathID(r, "orderId")
	})

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/orders/42", nil))
	require.NoError(t, gotErr)
	assert.Equal(t, int64(42), got)

	for _, raw := range []string{"0", "-4", "abc"} {
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/orders/"+raw, nil))
		ve, ok := apperrors.IsValidationError(gotErr)
		require.True(t, ok, raw)
		assert.Equal(t, "orderId", ve.Details[0].Field)
	}
}

func TestDecodeJSON(t *testing.T) {
	var dst struct {
		Status string `json:"status"`
	}

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"status":"ready"}`))
	require.NoError(t, DecodeJSON(req, &dst))
	assert.Equal(t, "ready", dst.Status)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"status":`))
	err := DecodeJSON(req, &dst)
	ve, ok := apperrors.IsValidationError(err)
	require.True(t, ok)
	assert.Equal(t, "body", ve.Details[0].Field)
}
