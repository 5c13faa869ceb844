package authtokens

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/gophaccounts/internal/common"
	"github.com/dmitrijs2005/gophaccounts/internal/dbx"
	"github.com/dmitrijs2005/gophaccounts/internal/server/models"
)

// PostgresRepository implements Repository over dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, userID string, key string) (*models.AuthToken, error) {
	query := `
		INSERT INTO auth_tokens (key, user_id)
		VALUES ($1, $2)
		RETURNING created_at
	`
	token := &models.AuthToken{Key: key, UserID: userID}
	if err := r.db.QueryRowContext(ctx, query, key, userID).Scan(&token.CreatedAt); err != nil {
		if dbx.IsUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %s", common.ErrAlreadyExists, dbx.ConstraintName(err))
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return token, nil
}

func (r *PostgresRepository) findOne(ctx context.Context, query string, arg string) (*models.AuthToken, error) {
	token := &models.AuthToken{}
	if err := r.db.QueryRowContext(ctx, query, arg).Scan(&token.Key, &token.UserID, &token.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return token, nil
}

func (r *PostgresRepository) Find(ctx context.Context, key string) (*models.AuthToken, error) {
	return r.findOne(ctx, `
		SELECT key, user_id, created_at
		FROM auth_tokens
		WHERE key = $1
	`, key)
}

func (r *PostgresRepository) FindByUser(ctx context.Context, userID string) (*models.AuthToken, error) {
	return r.findOne(ctx, `
		SELECT key, user_id, created_at
		FROM auth_tokens
		WHERE user_id = $1
	`, userID)
}

func (r *PostgresRepository) Delete(ctx context.Context, key string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM auth_tokens WHERE key = $1`, key); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) DeleteByUser(ctx context.Context, userID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM auth_tokens WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
