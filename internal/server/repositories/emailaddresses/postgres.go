package emailaddresses

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/gophaccounts/internal/common"
	"github.com/dmitrijs2005/gophaccounts/internal/dbx"
	"github.com/dmitrijs2005/gophaccounts/internal/server/models"
)

// userEmailKey is the unique index on (user_id, lower(email)).
const userEmailKey = "email_addresses_user_email_key"

func isDuplicate(err error) bool {
	return dbx.IsUniqueViolation(err) && dbx.ConstraintName(err) == userEmailKey
}

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAddress(row scanner) (*models.EmailAddress, error) {
	a := &models.EmailAddress{}
	if err := row.Scan(&a.ID, &a.UserID, &a.Email, &a.Verified, &a.Primary); err != nil {
		return nil, err
	}
	return a, nil
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, args ...any) (*models.EmailAddress, error) {
	a, err := scanAddress(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return a, nil
}

func (r *PostgresRepository) Find(ctx context.Context, userID, email string) (*models.EmailAddress, error) {
	return r.getOne(ctx,
		`SELECT id, user_id, email, verified, is_primary FROM email_addresses
		 WHERE user_id = $1 AND lower(email) = lower($2)
		 `, userID, email)
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.EmailAddress, error) {
	return r.getOne(ctx,
		`SELECT id, user_id, email, verified, is_primary FROM email_addresses
		 WHERE id = $1
		 `, id)
}

func (r *PostgresRepository) GetPrimary(ctx context.Context, userID string) (*models.EmailAddress, error) {
	return r.getOne(ctx,
		`SELECT id, user_id, email, verified, is_primary FROM email_addresses
		 WHERE user_id = $1 AND is_primary
		 `, userID)
}

func (r *PostgresRepository) ListByUser(ctx context.Context, userID string) ([]*models.EmailAddress, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, email, verified, is_primary FROM email_addresses
		 WHERE user_id = $1
		 ORDER BY is_primary DESC, email
		 `, userID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.EmailAddress
	for rows.Next() {
		a, err := scanAddress(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}

// Create inserts an identity. The primary flag is only granted while the
// user has no primary identity; the returned record carries the flag that
// was stored.
func (r *PostgresRepository) Create(ctx context.Context, userID, email string, primary, verified bool) (*models.EmailAddress, error) {
	query :=
		`INSERT INTO email_addresses (user_id, email, is_primary, verified)
		 VALUES ($1, $2, $3 AND NOT EXISTS (
		     SELECT 1 FROM email_addresses WHERE user_id = $1 AND is_primary
		 ), $4)
		 ON CONFLICT (user_id, lower(email)) DO NOTHING
		 RETURNING id, is_primary
		 `

	a := &models.EmailAddress{UserID: userID, Email: email, Verified: verified}
	if err := r.db.QueryRowContext(ctx, query, userID, email, primary, verified).Scan(&a.ID, &a.Primary); err != nil {
		if errors.Is(err, sql.ErrNoRows) || isDuplicate(err) {
			return nil, fmt.Errorf("%w: %s", common.ErrAlreadyExists, userEmailKey)
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return a, nil
}

func (r *PostgresRepository) exec(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		if isDuplicate(err) {
			return fmt.Errorf("%w: %s", common.ErrAlreadyExists, userEmailKey)
		}
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

// UpdateEmail skips the write when the user already owns email on another
// identity, so a clash never aborts the surrounding transaction.
func (r *PostgresRepository) UpdateEmail(ctx context.Context, id, email string) error {
	err := r.exec(ctx,
		`UPDATE email_addresses SET email = $2
		 WHERE id = $1 AND NOT EXISTS (
		     SELECT 1 FROM email_addresses o
		     WHERE o.user_id = email_addresses.user_id AND lower(o.email) = lower($2) AND o.id <> $1
		 )`, id, email)
	if !errors.Is(err, common.ErrorNotFound) {
		return err
	}

	var exists bool
	if err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM email_addresses WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if exists {
		return fmt.Errorf("%w: %s", common.ErrAlreadyExists, userEmailKey)
	}
	return common.ErrorNotFound
}

func (r *PostgresRepository) MarkVerified(ctx context.Context, id string) error {
	return r.exec(ctx, `UPDATE email_addresses SET verified = TRUE WHERE id = $1`, id)
}

func (r *PostgresRepository) SetPrimary(ctx context.Context, userID, id string) error {
	// the partial unique index is checked per row, so clear before setting
	if _, err := r.db.ExecContext(ctx,
		`UPDATE email_addresses SET is_primary = FALSE WHERE user_id = $1 AND is_primary AND id <> $2`,
		userID, id); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return r.exec(ctx, `UPDATE email_addresses SET is_primary = TRUE WHERE user_id = $1 AND id = $2`, userID, id)
}
