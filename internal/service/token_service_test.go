package service

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/whale-spotting-api/internal/models"
	appErrors "github.com/noah-isme/whale-spotting-api/pkg/errors"
)

func TestTokenServiceIssueAndValidate(t *testing.T) {
	svc := NewTokenService(TokenConfig{Secret: "s3cret", Issuer: "whale-spotting-api"})

	token, expiresAt, err := svc.Issue("ops", models.RoleAdmin, time.Hour)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, 5*time.Second)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, claims.Role)
	assert.Equal(t, "ops", claims.Subject)
}

func TestTokenServiceRejectsBadTokens(t *testing.T) {
	svc := NewTokenService(TokenConfig{Secret: "s3cret", Issuer: "whale-spotting-api"})

	other := NewTokenService(TokenConfig{Secret: "different", Issuer: "whale-spotting-api"})
	forged, _, err := other.Issue("ops", models.RoleAdmin, time.Hour)
	require.NoError(t, err)
	_, err = svc.ValidateToken(forged)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)

	svc.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	expired, _, err := svc.Issue("ops", models.RoleReviewer, time.Hour)
	require.NoError(t, err)
	svc.now = time.Now
	_, err = svc.ValidateToken(expired)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, &models.JWTClaims{Role: models.RoleAdmin})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = svc.ValidateToken(unsigned)
	assert.Error(t, err)

	wrongIssuer := NewTokenService(TokenConfig{Secret: "s3cret", Issuer: "someone-else"})
	foreign, _, err := wrongIssuer.Issue("ops", models.RoleAdmin, time.Hour)
	require.NoError(t, err)
	_, err = svc.ValidateToken(foreign)
	assert.Error(t, err)
}

func TestTokenServiceIssueValidation(t *testing.T) {
	svc := NewTokenService(TokenConfig{Secret: "s3cret"})

	_, _, err := svc.Issue(" ", models.RoleAdmin, 0)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, _, err = svc.Issue("ops", models.UserRole("ROOT"), 0)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, _, err = NewTokenService(TokenConfig{}).Issue("ops", models.RoleAdmin, 0)
	assert.Equal(t, appErrors.ErrInternal.Code, appErrors.FromError(err).Code)
}
