// internal/auth/service.go
package auth

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"adreel/internal/common/errors"
	"adreel/internal/common/logger"
	"adreel/internal/models"
)

const sessionKeyPrefix = "session:"

// UserStore is the subset of the user repository the auth service needs.
type UserStore interface {
	Create(ctx context.Context, username, passwordHash string) (*models.User, error)
	FindByUsername(ctx context.Context, username string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// Service implements signup, login, logout and session validation. Sessions
// live in Redis under an opaque UUID token with a TTL, so a restart of the
// API server does not log anyone out.
type Service struct {
	config *Config
	users  UserStore
	redis  *redis.Client
	logger logger.Logger
}

func NewService(config *Config, users UserStore, redisClient *redis.Client, log logger.Logger) *Service {
	return &Service{
		config: config,
		users:  users,
		redis:  redisClient,
		logger: log.With(map[string]interface{}{"component": "auth"}),
	}
}

// Signup registers a new user and opens a session for it.
func (s *Service) Signup(ctx context.Context, username, password string) (*models.User, *models.Session, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.config.BcryptCost)
	if err != nil {
		return nil, nil, errors.NewValidationFailedError("password could not be hashed")
	}

	user, err := s.users.Create(ctx, username, string(hash))
	if err != nil {
		return nil, nil, err
	}

	session, err := s.createSession(ctx, user)
	if err != nil {
		return nil, nil, err
	}

	s.logger.Info("user signed up", map[string]interface{}{
		"userId":   user.ID,
		"username": user.Username,
	})
	return user, session, nil
}

// Login verifies credentials and opens a session. Unknown usernames and wrong
// passwords return the same error so the endpoint does not leak which
// usernames exist.
func (s *Service) Login(ctx context.Context, username, password string) (*models.User, *models.Session, error) {
	user, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		return nil, nil, err
	}
	if user == nil {
		return nil, nil, errors.NewInvalidCredentialsError()
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, nil, errors.NewInvalidCredentialsError()
	}

	session, err := s.createSession(ctx, user)
	if err != nil {
		return nil, nil, err
	}

	s.logger.Info("user logged in", map[string]interface{}{
		"userId":   user.ID,
		"username": user.Username,
	})
	return user, session, nil
}

// Logout deletes the session. A missing token is not an error: logging out
// twice is harmless.
func (s *Service) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := s.redis.Del(ctx, sessionKeyPrefix+token).Err(); err != nil {
		return errors.NewSessionStoreFailedError(err)
	}
	return nil
}

// Validate resolves a session token to the session stored in Redis.
func (s *Service) Validate(ctx context.Context, token string) (*models.Session, error) {
	if token == "" {
		return nil, errors.NewAuthRequiredError()
	}

	raw, err := s.redis.Get(ctx, sessionKeyPrefix+token).Result()
	if err == redis.Nil {
		return nil, errors.NewAuthRequiredError()
	}
	if err != nil {
		return nil, errors.NewSessionStoreFailedError(err)
	}

	var session models.Session
	if err := json.Unmarshal([]byte(raw), &session); err != nil {
		return nil, errors.NewSessionStoreFailedError(err)
	}

	if session.IsExpired() {
		_ = s.redis.Del(ctx, sessionKeyPrefix+token).Err()
		return nil, errors.NewSessionExpiredError()
	}
	return &session, nil
}

// CurrentUser loads the full user record behind a session token.
func (s *Service) CurrentUser(ctx context.Context, token string) (*models.User, error) {
	session, err := s.Validate(ctx, token)
	if err != nil {
		return nil, err
	}

	user, err := s.users.FindByID(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, errors.NewAuthRequiredError()
	}
	return user, nil
}

func (s *Service) createSession(ctx context.Context, user *models.User) (*models.Session, error) {
	now := time.Now().UTC()
	session := &models.Session{
		Token:     uuid.NewString(),
		UserID:    user.ID,
		Username:  user.Username,
		CreatedAt: now,
		ExpiresAt: now.Add(s.config.SessionTTL),
	}

	payload, err := json.Marshal(session)
	if err != nil {
		return nil, errors.NewSessionStoreFailedError(err)
	}

	if err := s.redis.Set(ctx, sessionKeyPrefix+session.Token, payload, s.config.SessionTTL).Err(); err != nil {
		return nil, errors.NewSessionStoreFailedError(err)
	}
	return session, nil
}
