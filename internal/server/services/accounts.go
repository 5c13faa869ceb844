// Package services contains the account management logic behind the REST API
// and the admin CLI. AccountService owns every transaction that touches the
// account store, the identity ledger and the token store.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gophaccounts/internal/common"
	"github.com/dmitrijs2005/gophaccounts/internal/dbx"
	"github.com/dmitrijs2005/gophaccounts/internal/logging"
	"github.com/dmitrijs2005/gophaccounts/internal/server/config"
	"github.com/dmitrijs2005/gophaccounts/internal/server/identity"
	"github.com/dmitrijs2005/gophaccounts/internal/server/models"
	"github.com/dmitrijs2005/gophaccounts/internal/server/repositories/repomanager"
)

// PasswordResetSender delivers password reset links.
type PasswordResetSender interface {
	SendPasswordReset(ctx context.Context, user *models.User, uid, token string) error
}

type AccountService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	reconciler  *identity.Reconciler
	mail        PasswordResetSender
	cfg         *config.Config
	secret      []byte
	logger      logging.Logger
	now         func() time.Time
}

func NewAccountService(db *sql.DB, m repomanager.RepositoryManager, r *identity.Reconciler, mail PasswordResetSender, cfg *config.Config, l logging.Logger) *AccountService {
	return &AccountService{
		db:          db,
		repomanager: m,
		reconciler:  r,
		mail:        mail,
		cfg:         cfg,
		secret:      []byte(cfg.SecretKey),
		logger:      l.With("module", "accounts"),
		now:         time.Now,
	}
}

// Authenticate resolves an API key to its active owner. Unknown keys and
// inactive owners yield common.ErrInvalidToken.
func (s *AccountService) Authenticate(ctx context.Context, key string) (*models.User, error) {
	token, err := s.repomanager.AuthTokens(s.db).Find(ctx, key)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrInvalidToken
		}
		return nil, fmt.Errorf("error searching token: %w", err)
	}

	user, err := s.repomanager.Users(s.db).GetByID(ctx, token.UserID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrInvalidToken
		}
		return nil, fmt.Errorf("error loading token owner: %w", err)
	}
	if !user.IsActive {
		return nil, common.ErrInvalidToken
	}
	return user, nil
}

// Logout deletes key. An empty or unknown key is not an error.
func (s *AccountService) Logout(ctx context.Context, key string) error {
	if key == "" {
		return nil
	}
	if err := s.repomanager.AuthTokens(s.db).Delete(ctx, key); err != nil {
		return fmt.Errorf("error deleting token: %w", err)
	}
	return nil
}

func (s *AccountService) GetDetails(ctx context.Context, userID string) (*models.User, error) {
	return s.repomanager.Users(s.db).GetByID(ctx, userID)
}

func (s *AccountService) ListUsers(ctx context.Context) ([]*models.User, error) {
	return s.repomanager.Users(s.db).List(ctx)
}

func (s *AccountService) newTokenKey() (string, error) {
	return common.MakeRandHexString(common.AuthTokenSize)
}

// issueToken creates the account's first key. It runs inside the signup
// transaction, so an existing key is an error.
func (s *AccountService) issueToken(ctx context.Context, tx dbx.DBTX, userID string) (*models.AuthToken, error) {
	key, err := s.newTokenKey()
	if err != nil {
		return nil, fmt.Errorf("error generating token: %w", err)
	}
	token, err := s.repomanager.AuthTokens(tx).Create(ctx, userID, key)
	if err != nil {
		return nil, fmt.Errorf("error creating token: %w", err)
	}
	return token, nil
}

// tokenFor returns the user's key, creating it when missing.
func (s *AccountService) tokenFor(ctx context.Context, userID string) (*models.AuthToken, error) {
	repo := s.repomanager.AuthTokens(s.db)

	token, err := repo.FindByUser(ctx, userID)
	if err == nil {
		return token, nil
	}
	if !errors.Is(err, common.ErrorNotFound) {
		return nil, fmt.Errorf("error searching token: %w", err)
	}

	key, err := s.newTokenKey()
	if err != nil {
		return nil, fmt.Errorf("error generating token: %w", err)
	}
	token, err = repo.Create(ctx, userID, key)
	if errors.Is(err, common.ErrAlreadyExists) {
		// a concurrent login won
		return repo.FindByUser(ctx, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("error creating token: %w", err)
	}
	return token, nil
}

func (s *AccountService) verificationEnabled() bool {
	return s.cfg.EmailVerification != config.EmailVerificationNone
}

func (s *AccountService) verificationMandatory() bool {
	return s.cfg.EmailVerification == config.EmailVerificationMandatory
}
