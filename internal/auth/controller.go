package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	apperrors "tableside/internal/errors"
	"tableside/internal/httpjson"
	"tableside/internal/validation"
)

type Authenticator interface {
	Login(ctx context.Context, username, password string) (*LoginResult, error)
}

type LoginRequest struct {
	Username string `json:"username" validate:"required,max=50"`
	Password string `json:"password" validate:"required,max=128"`
}

type UserResponse struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

type LoginResponse struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expiresAt"`
	User      UserResponse `json:"user"`
}

type Controller struct {
	auth   Authenticator
	logger *zap.Logger
}

func NewController(auth Authenticator, logger *zap.Logger) *Controller {
	return &Controller{auth: auth, logger: logger}
}

func (c *Controller) Login(w http.ResponseWriter, r *http.Request) {
	traceID := uuid.New().String()
	logger := c.logger.With(zap.String("traceId", traceID))

	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid JSON body", zap.Error(err))
		httpjson.WriteValidationError(w, logger, traceID, "invalid JSON body", apperrors.ValidationDetail{
			Field:   "body",
			Message: "request body must be valid JSON",
		})
		return
	}

	if details := validation.Struct(req); len(details) > 0 {
		httpjson.WriteValidationError(w, logger, traceID, "validation failed", details...)
		return
	}

	result, err := c.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		httpjson.WriteError(w, logger, traceID, err)
		return
	}

	httpjson.WriteJSON(w, logger, http.StatusOK, LoginResponse{
		Token:     result.Token,
		ExpiresAt: result.ExpiresAt,
		User: UserResponse{
			ID:       strconv.FormatInt(result.User.ID, 10),
			Username: result.User.Username,
			Role:     string(result.User.Role),
		},
	})
}

// Verify echoes the identity of an already authenticated request.
func (c *Controller) Verify(w http.ResponseWriter, r *http.Request) {
	id, ok := IdentityFromContext(r.Context())
	if !ok {
		httpjson.WriteError(w, c.logger, uuid.New().String(), apperrors.NewUnauthorizedError("missing bearer token"))
		return
	}

	httpjson.WriteJSON(w, c.logger, http.StatusOK, map[string]any{
		"valid": true,
		"user": UserResponse{
			ID:       id.SubjectID,
			Username: id.Username,
			Role:     string(id.Role),
		},
	})
}
