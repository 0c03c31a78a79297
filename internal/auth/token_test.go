package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tableside/internal/domain"
	apperrors "tableside/internal/errors"
)

func newTestTokenService(now time.Time) *TokenService {
	s := NewTokenService("test-secret", 2*time.Hour, 8*time.Hour)
	s.now = func() time.Time { return now }
	return s
}

func TestTokenService_SessionCredentialRoundTrip(t *testing.T) {
	issuedAt := time.Date(2026, 3, 1, 19, 0, 0, 0, time.UTC)
	s := newTestTokenService(issuedAt)

	token, expiresAt, err := s.IssueSessionCredential(42, 5)
	require.NoError(t, err)
	assert.Equal(t, issuedAt.Add(2*time.Hour), expiresAt)

	id, err := s.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleCustomer, id.Role)
	assert.Equal(t, int64(42), id.SessionID)
	assert.Equal(t, int64(5), id.TableID)
	assert.Equal(t, "session:42", id.SubjectID)
}

func TestTokenService_StaffToken(t *testing.T) {
	s := newTestTokenService(time.Now())

	token, _, err := s.IssueStaffToken(domain.User{ID: 3, Username: "marta", Role: domain.RoleKitchen})
	require.NoError(t, err)

	id, err := s.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleKitchen, id.Role)
	assert.Equal(t, "marta", id.Username)
	assert.Equal(t, "3", id.SubjectID)
	assert.Zero(t, id.SessionID)
}

func TestTokenService_Expired(t *testing.T) {
	issuedAt := time.Date(2026, 3, 1, 19, 0, 0, 0, time.UTC)
	s := newTestTokenService(issuedAt)

	token, _, err := s.IssueSessionCredential(1, 1)
	require.NoError(t, err)

	s.now = func() time.Time { return issuedAt.Add(2*time.Hour + time.Second) }
	_, err = s.Verify(token)

	ue, ok := apperrors.IsUnauthorizedError(err)
	require.True(t, ok)
	assert.Equal(t, "credential expired", ue.Message)
}

func TestTokenService_WrongSecret(t *testing.T) {
	token, _, err := NewTokenService("other", time.Hour, time.Hour).IssueSessionCredential(1, 1)
	require.NoError(t, err)

	_, err = newTestTokenService(time.Now()).Verify(token)

	_, ok := apperrors.IsUnauthorizedError(err)
	assert.True(t, ok)
}

func TestTokenService_RejectsNoneAlgorithm(t *testing.T) {
	claims := Claims{
		Role: string(domain.RoleAdmin),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = newTestTokenService(time.Now()).Verify(token)

	_, ok := apperrors.IsUnauthorizedError(err)
	assert.True(t, ok)
}

func TestTokenService_RejectsUnknownRole(t *testing.T) {
	s := newTestTokenService(time.Now())
	token, _, err := s.sign(Claims{Role: "owner"}, "9", time.Hour)
	require.NoError(t, err)

	_, err = s.Verify(token)

	_, ok := apperrors.IsUnauthorizedError(err)
	assert.True(t, ok)
}

func TestTokenService_RejectsCustomerWithoutSession(t *testing.T) {
	s := newTestTokenService(time.Now())
	token, _, err := s.sign(Claims{Role: string(domain.RoleCustomer)}, "session:0", time.Hour)
	require.NoError(t, err)

	_, err = s.Verify(token)

	_, ok := apperrors.IsUnauthorizedError(err)
	assert.True(t, ok)
}

func TestTokenService_EmptyToken(t *testing.T) {
	_, err := newTestTokenService(time.Now()).Verify("")

	_, ok := apperrors.IsUnauthorizedError(err)
	assert.True(t, ok)
}
