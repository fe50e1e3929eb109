package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/obsplan/obsplan/pkg/models"
)

func TestIssueTokenRoundTrip(t *testing.T) {
	svc := &Service{
		secretKey:       []byte("test-secret"),
		sessionLifetime: time.Hour,
	}
	userID := uuid.New()

	tokenString, err := svc.IssueToken(userID)
	require.NoError(t, err)
	require.NotEmpty(t, tokenString)

	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte("test-secret"), nil
	})
	require.NoError(t, err)
	require.True(t, token.Valid)

	assert.Equal(t, userID.String(), claims.Subject)
	require.NotNil(t, claims.ExpiresAt)
	require.NotNil(t, claims.IssuedAt)
	assert.WithinDuration(t, claims.IssuedAt.Add(time.Hour), claims.ExpiresAt.Time, time.Second)
}

func TestIssueTokenRejectedWithWrongKey(t *testing.T) {
	svc := &Service{
		secretKey:       []byte("test-secret"),
		sessionLifetime: time.Hour,
	}
	tokenString, err := svc.IssueToken(uuid.New())
	require.NoError(t, err)

	other := &Service{secretKey: []byte("other-secret"), sessionLifetime: time.Hour}
	_, err = other.authenticateJWT(context.Background(), tokenString)
	assert.ErrorIs(t, err, models.ErrUnauthorized)
}

func TestExpiredTokenIsExpiredNotUnauthorized(t *testing.T) {
	// An expired session must not fall through to the service account
	// secret lookup, so the error kind matters.
	svc := &Service{
		secretKey:       []byte("test-secret"),
		sessionLifetime: -time.Minute,
	}
	tokenString, err := svc.IssueToken(uuid.New())
	require.NoError(t, err)

	_, err = svc.authenticateJWT(context.Background(), tokenString)
	assert.ErrorIs(t, err, models.ErrExpired)
}

func TestAuthenticateJWTRejectsGarbage(t *testing.T) {
	svc := &Service{secretKey: []byte("test-secret"), sessionLifetime: time.Hour}

	_, err := svc.authenticateJWT(context.Background(), "not-a-jwt")
	assert.ErrorIs(t, err, models.ErrUnauthorized)
}

func TestPrincipalIdentity(t *testing.T) {
	uid := uuid.New()
	userPrincipal := &Principal{User: &models.User{ID: uid}}
	assert.Equal(t, uid, userPrincipal.UserID())
	assert.Equal(t, uid, userPrincipal.ActorID())

	said := uuid.New()
	saPrincipal := &Principal{ServiceAccount: &models.ServiceAccount{ID: said}}
	assert.Equal(t, uuid.Nil, saPrincipal.UserID())
	assert.Equal(t, said, saPrincipal.ActorID())
}
