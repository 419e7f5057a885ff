// internal/store/users.go
package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"adreel/internal/common/errors"
	"adreel/internal/common/logger"
	"adreel/internal/models"
)

const uniqueViolation = "23505"

// UserRepository provides access to the users table.
type UserRepository struct {
	db     *sql.DB
	logger logger.Logger
}

func NewUserRepository(db *sql.DB, log logger.Logger) *UserRepository {
	return &UserRepository{
		db:     db,
		logger: log.With(map[string]interface{}{"component": "user-repository"}),
	}
}

// EnsureSchema creates the users table if it does not exist yet.
func (r *UserRepository) EnsureSchema(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS users (
			id            UUID PRIMARY KEY,
			username      TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			video_count   INTEGER NOT NULL DEFAULT 0,
			created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`
	if _, err := r.db.ExecContext(ctx, query); err != nil {
		return errors.NewQueryExecutionFailedError("ensure_schema", err)
	}
	return nil
}

// Create inserts a new user. A username collision maps to the duplicate
// username error so handlers can answer 400 without inspecting pq codes.
func (r *UserRepository) Create(ctx context.Context, username, passwordHash string) (*models.User, error) {
	user := &models.User{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: passwordHash,
		VideoCount:   0,
		CreatedAt:    time.Now().UTC(),
	}

	query := `INSERT INTO users (id, username, password_hash, video_count, created_at)
		VALUES ($1, $2, $3, $4, $5)`
	_, err := r.db.ExecContext(ctx, query, user.ID, user.Username, user.PasswordHash, user.VideoCount, user.CreatedAt)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && string(pqErr.Code) == uniqueViolation {
			return nil, errors.NewDuplicateUsernameError(username)
		}
		return nil, errors.NewQueryExecutionFailedError("create_user", err)
	}

	r.logger.Info("user created", map[string]interface{}{
		"userId":   user.ID,
		"username": user.Username,
	})
	return user, nil
}

// FindByUsername returns the user with the given username, or nil when no
// such user exists.
func (r *UserRepository) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	query := `SELECT id, username, password_hash, video_count, created_at
		FROM users WHERE username = $1`
	return r.scanUser(r.db.QueryRowContext(ctx, query, username), "find_by_username")
}

// FindByID returns the user with the given id, or nil when no such user
// exists.
func (r *UserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT id, username, password_hash, video_count, created_at
		FROM users WHERE id = $1`
	return r.scanUser(r.db.QueryRowContext(ctx, query, id), "find_by_id")
}

func (r *UserRepository) scanUser(row *sql.Row, operation string) (*models.User, error) {
	var user models.User
	err := row.Scan(&user.ID, &user.Username, &user.PasswordHash, &user.VideoCount, &user.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.NewQueryExecutionFailedError(operation, err)
	}
	return &user, nil
}

// IncrementVideoCount bumps the user's completed video counter and returns
// the new value.
func (r *UserRepository) IncrementVideoCount(ctx context.Context, userID string) (int, error) {
	query := `UPDATE users SET video_count = video_count + 1 WHERE id = $1 RETURNING video_count`

	var count int
	err := r.db.QueryRowContext(ctx, query, userID).Scan(&count)
	if err == sql.ErrNoRows {
		return 0, errors.NewFileNotFoundError("user " + userID)
	}
	if err != nil {
		return 0, errors.NewQueryExecutionFailedError("increment_video_count", err)
	}
	return count, nil
}

// Leaderboard returns users ordered by completed video count, highest first.
// Ties break alphabetically so the ordering is stable.
func (r *UserRepository) Leaderboard(ctx context.Context, limit int) ([]models.LeaderboardEntry, error) {
	query := `SELECT username, video_count FROM users
		ORDER BY video_count DESC, username ASC LIMIT $1`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, errors.NewQueryExecutionFailedError("leaderboard", err)
	}
	defer rows.Close()

	entries := []models.LeaderboardEntry{}
	for rows.Next() {
		var entry models.LeaderboardEntry
		if err := rows.Scan(&entry.Username, &entry.VideoCount); err != nil {
			return nil, errors.NewQueryExecutionFailedError("leaderboard", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewQueryExecutionFailedError("leaderboard", err)
	}
	return entries, nil
}
