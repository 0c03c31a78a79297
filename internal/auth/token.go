package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"tableside/internal/domain"
	apperrors "tableside/internal/errors"
)

type Claims struct {
	Username  string `json:"username,omitempty"`
	Role      string `json:"role"`
	SessionID int64  `json:"sessionId,omitempty"`
	TableID   int64  `json:"tableId,omitempty"`
	jwt.RegisteredClaims
}

// TokenService issues and verifies HS256 credentials for staff users and for
// customer sessions.
type TokenService struct {
	secret     []byte
	sessionTTL time.Duration
	staffTTL   time.Duration
	now        func() time.Time
}

func NewTokenService(secret string, sessionTTL, staffTTL time.Duration) *TokenService {
	return &TokenService{
		secret:     []byte(secret),
		sessionTTL: sessionTTL,
		staffTTL:   staffTTL,
		now:        time.Now,
	}
}

// IssueSessionCredential signs {sessionId, tableId, role: customer}.
func (s *TokenService) IssueSessionCredential(sessionID, tableID int64) (string, time.Time, error) {
	return s.sign(Claims{
		Role:      string(domain.RoleCustomer),
		SessionID: sessionID,
		TableID:   tableID,
	}, "session:"+strconv.FormatInt(sessionID, 10), s.sessionTTL)
}

func (s *TokenService) IssueStaffToken(user domain.User) (string, time.Time, error) {
	return s.sign(Claims{
		Username: user.Username,
		Role:     string(user.Role),
	}, strconv.FormatInt(user.ID, 10), s.staffTTL)
}

func (s *TokenService) sign(claims Claims, subject string, ttl time.Duration) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(ttl)
	claims.RegisteredClaims = jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing token: %w", err)
	}
	return signed, expiresAt, nil
}

// Verify checks signature and expiry and returns the identity the credential
// asserts. Every failure is reported as an UnauthorizedError.
func (s *TokenService) Verify(token string) (domain.Identity, error) {
	if token == "" {
		return domain.Identity{}, apperrors.NewUnauthorizedError("missing credential")
	}

	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return domain.Identity{}, apperrors.NewUnauthorizedError("credential expired")
		}
		return domain.Identity{}, apperrors.NewUnauthorizedError("invalid credential")
	}

	role := domain.Role(claims.Role)
	switch role {
	case domain.RoleAdmin, domain.RoleStaff, domain.RoleKitchen:
	case domain.RoleCustomer:
		if claims.SessionID <= 0 || claims.TableID <= 0 {
			return domain.Identity{}, apperrors.NewUnauthorizedError("invalid credential")
		}
	default:
		return domain.Identity{}, apperrors.NewUnauthorizedError("invalid credential")
	}

	return domain.Identity{
		SubjectID: claims.Subject,
		Username:  claims.Username,
		Role:      role,
		SessionID: claims.SessionID,
		TableID:   claims.TableID,
	}, nil
}
