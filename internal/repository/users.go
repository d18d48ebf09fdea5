package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// UserRepository resolves platform users to their messaging channels.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository constructs the repository.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// ChatID returns the Telegram chat linked to a user.
func (r *UserRepository) ChatID(ctx context.Context, userID string) (int64, error) {
	const op = "repository.UserRepository.ChatID"

	var chatID int64
	err := r.db.GetContext(ctx, &chatID,
		`SELECT telegram_chat_id FROM users WHERE id = $1 AND telegram_chat_id IS NOT NULL`,
		userID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return chatID, nil
}
