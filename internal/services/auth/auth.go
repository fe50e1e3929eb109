package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sethvargo/go-password/password"
	"golang.org/x/crypto/bcrypt"

	"github.com/obsplan/obsplan/internal/services/serviceaccount"
	"github.com/obsplan/obsplan/internal/services/user"
	"github.com/obsplan/obsplan/pkg/config"
	"github.com/obsplan/obsplan/pkg/database"
	"github.com/obsplan/obsplan/pkg/logger"
	"github.com/obsplan/obsplan/pkg/models"
)

// loginKeyPrefix namespaces pending login tokens in Redis.
const loginKeyPrefix = "login:"

// Mailer delivers login links. The SMTP implementation lives in
// internal/mailer; tests substitute a recorder.
type Mailer interface {
	SendLoginLink(ctx context.Context, email, loginID, token string) error
}

// Principal is the authenticated caller: exactly one of User or
// ServiceAccount is set.
type Principal struct {
	User           *models.User
	ServiceAccount *models.ServiceAccount
}

// UserID returns the acting user's ID, or uuid.Nil for service accounts.
func (p *Principal) UserID() uuid.UUID {
	if p.User != nil {
		return p.User.ID
	}
	return uuid.Nil
}

// ActorID identifies the principal for audit stamping.
func (p *Principal) ActorID() uuid.UUID {
	if p.User != nil {
		return p.User.ID
	}
	return p.ServiceAccount.ID
}

// Service implements passwordless magic-link login, JWT and service
// account authentication, and permission checks.
type Service struct {
	db       *database.PostgreSQL
	redis    *database.Redis
	logger   *logger.Logger
	users    *user.Service
	accounts *serviceaccount.Service
	mailer   Mailer

	secretKey       []byte
	sessionLifetime time.Duration
	loginTokenTTL   time.Duration
}

// NewService creates a new auth service.
func NewService(db *database.PostgreSQL, rdb *database.Redis, users *user.Service, accounts *serviceaccount.Service, mailer Mailer, cfg config.AuthConfig, logger *logger.Logger) *Service {
	return &Service{
		db:              db,
		redis:           rdb,
		logger:          logger,
		users:           users,
		accounts:        accounts,
		mailer:          mailer,
		secretKey:       []byte(cfg.ServiceAccountSecretKey),
		sessionLifetime: cfg.SessionLifetime,
		loginTokenTTL:   cfg.LoginTokenTTL,
	}
}

// StartLogin begins a magic-link login for email. It returns the login ID
// and plaintext token; only a bcrypt hash of the token is stored, under a
// TTL. When the email does not map to a user the call still succeeds with
// empty results, so the endpoint response never reveals which addresses
// are registered.
func (s *Service) StartLogin(ctx context.Context, email string) (loginID, token string, err error) {
	if email == "" {
		return "", "", fmt.Errorf("%w: email is required", models.ErrInvalidInput)
	}

	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.logger.Infof("Login requested for unknown email")
			return "", "", nil
		}
		return "", "", err
	}

	token, err = password.Generate(32, 10, 0, false, true)
	if err != nil {
		return "", "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", "", err
	}

	loginID = uuid.New().String()
	payload := u.ID.String() + "|" + string(hash)
	if err := s.redis.Client().Set(ctx, loginKeyPrefix+loginID, payload, s.loginTokenTTL).Err(); err != nil {
		return "", "", fmt.Errorf("failed to store login token: %w", err)
	}

	if err := s.mailer.SendLoginLink(ctx, email, loginID, token); err != nil {
		s.logger.Errorf("Failed to send login link: %v", err)
	}

	return loginID, token, nil
}

// Redeem exchanges a login ID and token for a session JWT. The stored
// token is consumed atomically, so a link redeems at most once.
func (s *Service) Redeem(ctx context.Context, loginID, token string) (string, error) {
	if loginID == "" || token == "" {
		return "", fmt.Errorf("%w: login_id and token are required", models.ErrInvalidInput)
	}

	payload, err := s.redis.Client().GetDel(ctx, loginKeyPrefix+loginID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", fmt.Errorf("%w: login token", models.ErrExpired)
		}
		return "", fmt.Errorf("failed to load login token: %w", err)
	}

	sep := -1
	for i := 0; i < len(payload); i++ {
		if payload[i] == '|' {
			sep = i
			break
		}
	}
	if sep < 0 {
		return "", fmt.Errorf("%w: malformed login state", models.ErrUnauthorized)
	}
	userID, hash := payload[:sep], payload[sep+1:]

	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(token)); err != nil {
		return "", fmt.Errorf("%w: login token mismatch", models.ErrUnauthorized)
	}

	uid, err := uuid.Parse(userID)
	if err != nil {
		return "", fmt.Errorf("%w: malformed login state", models.ErrUnauthorized)
	}

	return s.IssueToken(uid)
}

// IssueToken signs a session JWT for the user.
func (s *Service) IssueToken(userID uuid.UUID) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   userID.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.sessionLifetime)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secretKey)
}

// Authenticate resolves a bearer credential to a principal. The credential
// is tried first as a session JWT, then as a service account secret.
func (s *Service) Authenticate(ctx context.Context, credential string) (*Principal, error) {
	if credential == "" {
		return nil, fmt.Errorf("%w: missing credential", models.ErrUnauthorized)
	}

	if u, err := s.authenticateJWT(ctx, credential); err == nil {
		return &Principal{User: u}, nil
	} else if errors.Is(err, models.ErrExpired) {
		return nil, err
	}

	sa, err := s.accounts.GetBySecret(ctx, credential)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid credential", models.ErrUnauthorized)
	}
	return &Principal{ServiceAccount: sa}, nil
}

func (s *Service) authenticateJWT(ctx context.Context, tokenString string) (*models.User, error) {
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secretKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: session", models.ErrExpired)
		}
		return nil, fmt.Errorf("%w: invalid token", models.ErrUnauthorized)
	}

	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok {
		return nil, fmt.Errorf("%w: invalid claims", models.ErrUnauthorized)
	}
	uid, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid subject", models.ErrUnauthorized)
	}

	u, err := s.users.Get(ctx, uid)
	if err != nil {
		return nil, fmt.Errorf("%w: user no longer active", models.ErrUnauthorized)
	}
	return u, nil
}
