package controller

import (
	"context"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/skip2/go-qrcode"
	"go.uber.org/zap"

	"tableside/internal/domain"
	"tableside/internal/dto"
	apperrors "tableside/internal/errors"
	"tableside/internal/httpjson"
	"tableside/internal/session/service"
	"tableside/internal/validation"
)

const qrSize = 256

type Registry interface {
	RequestSession(ctx context.Context, tableID int64, customerName string) (domain.Session, bool, error)
	ApproveSession(ctx context.Context, sessionID int64) (service.Credential, error)
	CloseSession(ctx context.Context, sessionID int64, reason string) (domain.Session, error)
	ListSessions(ctx context.Context, status *domain.SessionStatus) ([]domain.Session, error)
	FindActiveOrPendingSessionForTable(ctx context.Context, tableID int64) (*domain.Session, error)
	ListTables(ctx context.Context) ([]domain.Table, error)
	GetTable(ctx context.Context, tableID int64) (*domain.Table, error)
}

type SessionController struct {
	registry      Registry
	publicBaseURL string
	logger        *zap.Logger
}

func NewSessionController(registry Registry, publicBaseURL string, logger *zap.Logger) *SessionController {
	return &SessionController{
		registry:      registry,
		publicBaseURL: publicBaseURL,
		logger:        logger,
	}
}

func (c *SessionController) RequestSession(w http.ResponseWriter, r *http.Request) {
	traceID := uuid.New().String()
	logger := c.logger.With(zap.String("traceId", traceID))

	var req dto.RequestSessionRequest
	if err := httpjson.DecodeJSON(r, &req); err != nil {
		httpjson.WriteError(w, logger, traceID, err)
		return
	}
	if details := validation.Struct(req); len(details) > 0 {
		httpjson.WriteValidationError(w, logger, traceID, "validation failed", details...)
		return
	}

	session, created, err := c.registry.RequestSession(r.Context(), req.TableID, req.CustomerName)
	if err != nil {
		httpjson.WriteError(w, logger, traceID, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	httpjson.WriteJSON(w, logger, status, dto.NewSessionResponse(session))
}

// GetSessionByTable answers null when the table has no pending or active
// session.
func (c *SessionController) GetSessionByTable(w http.ResponseWriter, r *http.Request) {
	traceID := uuid.New().String()
	logger := c.logger.With(zap.String("traceId", traceID))

	tableID, err := httpjson.PathID(r, "tableId")
	if err != nil {
		httpjson.WriteError(w, logger, traceID, err)
		return
	}

	session, err := c.registry.FindActiveOrPendingSessionForTable(r.Context(), tableID)
	if err != nil {
		httpjson.WriteError(w, logger, traceID, err)
		return
	}
	if session == nil {
		httpjson.WriteJSON(w, logger, http.StatusOK, nil)
		return
	}
	httpjson.WriteJSON(w, logger, http.StatusOK, dto.NewSessionResponse(*session))
}

func (c *SessionController) ApproveSession(w http.ResponseWriter, r *http.Request) {
	traceID := uuid.New().String()
	logger := c.logger.With(zap.String("traceId", traceID))

	sessionID, err := httpjson.PathID(r, "sessionId")
	if err != nil {
		httpjson.WriteError(w, logger, traceID, err)
		return
	}

	if _, err := c.registry.ApproveSession(r.Context(), sessionID); err != nil {
		httpjson.WriteError(w, logger, traceID, err)
		return
	}

	httpjson.WriteJSON(w, logger, http.StatusOK, dto.ApproveSessionResponse{
		Status:  string(domain.SessionStatusActive),
		Message: "Session approved",
	})
}

// CloseSession accepts an optional {"reason": "..."} body.
func (c *SessionController) CloseSession(w http.ResponseWriter, r *http.Request) {
	traceID := uuid.New().String()
	logger := c.logger.With(zap.String("traceId", traceID))

	sessionID, err := httpjson.PathID(r, "sessionId")
	if err != nil {
		httpjson.WriteError(w, logger, traceID, err)
		return
	}

	var req dto.CloseSessionRequest
	if r.ContentLength != 0 {
		if err := httpjson.DecodeJSON(r, &req); err != nil {
			httpjson.WriteError(w, logger, traceID, err)
			return
		}
		if details := validation.Struct(req); len(details) > 0 {
			httpjson.WriteValidationError(w, logger, traceID, "validation failed", details...)
			return
		}
	}

	if _, err := c.registry.CloseSession(r.Context(), sessionID, req.Reason); err != nil {
		httpjson.WriteError(w, logger, traceID, err)
		return
	}

	httpjson.WriteJSON(w, logger, http.StatusOK, dto.MessageResponse{Message: "Session closed"})
}

func (c *SessionController) ListSessions(w http.ResponseWriter, r *http.Request) {
	traceID := uuid.New().String()
	logger := c.logger.With(zap.String("traceId", traceID))

	var filter *domain.SessionStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		status, ok := domain.ParseSessionStatus(raw)
		if !ok {
			httpjson.WriteValidationError(w, logger, traceID, "invalid status filter", apperrors.ValidationDetail{
				Field:   "status",
				Message: "status must be one of [pending active closed]",
			})
			return
		}
		filter = &status
	}

	sessions, err := c.registry.ListSessions(r.Context(), filter)
	if err != nil {
		httpjson.WriteError(w, logger, traceID, err)
		return
	}

	resp := make([]dto.SessionResponse, 0, len(sessions))
	for _, s := range sessions {
		resp = append(resp, dto.NewSessionResponse(s))
	}
	httpjson.WriteJSON(w, logger, http.StatusOK, resp)
}

func (c *SessionController) ListTables(w http.ResponseWriter, r *http.Request) {
	traceID := uuid.New().String()
	logger := c.logger.With(zap.String("traceId", traceID))

	tables, err := c.registry.ListTables(r.Context())
	if err != nil {
		httpjson.WriteError(w, logger, traceID, err)
		return
	}

	resp := make([]dto.TableResponse, 0, len(tables))
	for _, t := range tables {
		resp = append(resp, dto.NewTableResponse(t))
	}
	httpjson.WriteJSON(w, logger, http.StatusOK, resp)
}

// TableQRCode renders a PNG pointing customers at the table's landing page.
func (c *SessionController) TableQRCode(w http.ResponseWriter, r *http.Request) {
	traceID := uuid.New().String()
	logger := c.logger.With(zap.String("traceId", traceID))

	tableID, err := httpjson.PathID(r, "tableId")
	if err != nil {
		httpjson.WriteError(w, logger, traceID, err)
		return
	}

	table, err := c.registry.GetTable(r.Context(), tableID)
	if err != nil {
		httpjson.WriteError(w, logger, traceID, err)
		return
	}

	png, err := qrcode.Encode(c.TableURL(table.ID), qrcode.Medium, qrSize)
	if err != nil {
		httpjson.WriteError(w, logger, traceID, apperrors.NewInternalError("encoding qr code", err))
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(png)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(png); err != nil {
		logger.Warn("failed to write qr code", zap.Error(err))
	}
}

func (c *SessionController) TableURL(tableID int64) string {
	return c.publicBaseURL + "/table/" + strconv.FormatInt(tableID, 10)
}
