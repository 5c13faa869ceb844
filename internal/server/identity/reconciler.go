// Package identity keeps an account's email identities in step with the
// account's email address.
//
// After every account write the caller hands the Reconciler a Change holding
// the email before and after the write. The Reconciler then either leaves the
// identity ledger alone, repoints the identity that tracked the old address,
// or creates a new unverified identity, primary unless another identity holds
// that role. In the last two cases the
// resulting identity is challenged through the Notifier.
//
// Ledger writes happen in Apply, which accepts a ledger bound to the caller's
// transaction. Challenge must only run after that transaction has committed.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/gophaccounts/internal/common"
	"github.com/dmitrijs2005/gophaccounts/internal/logging"
	"github.com/dmitrijs2005/gophaccounts/internal/server/models"
)

// Origin tells the Reconciler which entry path performed the account write.
type Origin int

const (
	// OriginDefault is any ordinary write: signup, profile update, password change.
	OriginDefault Origin = iota

	// OriginBypass marks privileged writes that manage identities themselves.
	OriginBypass
)

func (o Origin) String() string {
	if o == OriginBypass {
		return "bypass"
	}
	return "default"
}

// Change describes one account write.
type Change struct {
	UserID string

	// PreviousEmail is the stored email before the write, nil when the
	// account did not exist yet.
	PreviousEmail *string

	// Email is the account email after the write.
	Email string

	Created bool
	Origin  Origin
}

// EmailChanged reports whether the write replaced an existing email.
func (c Change) EmailChanged() bool {
	return c.PreviousEmail != nil && *c.PreviousEmail != c.Email
}

// Ledger is the part of the identity store the Reconciler needs.
// Find returns common.ErrorNotFound when nothing matches. Create and
// UpdateEmail return common.ErrAlreadyExists only when the user already owns
// the address. Create stores the identity as non-primary when the user has a
// primary identity already.
type Ledger interface {
	Find(ctx context.Context, userID, email string) (*models.EmailAddress, error)
	Create(ctx context.Context, userID, email string, primary, verified bool) (*models.EmailAddress, error)
	UpdateEmail(ctx context.Context, id, email string) error
}

// Notifier dispatches verification challenges.
type Notifier interface {
	SendVerification(ctx context.Context, address *models.EmailAddress, reason models.ChallengeContext) error
}

// Reconciler is stateless apart from its collaborators and safe for
// concurrent use.
type Reconciler struct {
	notifier Notifier
	logger   logging.Logger
}

func NewReconciler(n Notifier, l logging.Logger) *Reconciler {
	return &Reconciler{notifier: n, logger: l.With("module", "identity")}
}

// Apply brings the ledger in line with ch and returns the identity that now
// needs a verification challenge, or nil when nothing changed.
func (r *Reconciler) Apply(ctx context.Context, ledger Ledger, ch Change) (*models.EmailAddress, error) {
	if ch.Origin == OriginBypass {
		return nil, nil
	}
	if !ch.Created && !ch.EmailChanged() {
		return nil, nil
	}
	if strings.TrimSpace(ch.Email) == "" {
		r.logger.Debug(ctx, "account has no email, identity not reconciled", "user_id", ch.UserID)
		return nil, nil
	}

	_, err := ledger.Find(ctx, ch.UserID, ch.Email)
	switch {
	case err == nil:
		return nil, nil
	case !errors.Is(err, common.ErrorNotFound):
		return nil, fmt.Errorf("find identity: %w", err)
	}

	if ch.EmailChanged() {
		prev, err := ledger.Find(ctx, ch.UserID, *ch.PreviousEmail)
		switch {
		case err == nil:
			if err := ledger.UpdateEmail(ctx, prev.ID, ch.Email); err != nil {
				return nil, r.resolveConflict(ctx, ledger, ch, fmt.Errorf("repoint identity: %w", err))
			}
			prev.Email = ch.Email
			r.logger.Info(ctx, "identity repointed", "user_id", ch.UserID, "identity_id", prev.ID, "verified", prev.Verified)
			return prev, nil
		case !errors.Is(err, common.ErrorNotFound):
			return nil, fmt.Errorf("find previous identity: %w", err)
		}
	}

	created, err := ledger.Create(ctx, ch.UserID, ch.Email, true, false)
	if err != nil {
		return nil, r.resolveConflict(ctx, ledger, ch, fmt.Errorf("create identity: %w", err))
	}
	r.logger.Info(ctx, "identity created", "user_id", ch.UserID, "identity_id", created.ID, "primary", created.Primary)
	return created, nil
}

// resolveConflict turns a lost race against a concurrent reconcile into the
// "already consistent" outcome. The conflict only counts as resolved when the
// identity for the current email is now present.
func (r *Reconciler) resolveConflict(ctx context.Context, ledger Ledger, ch Change, err error) error {
	if !errors.Is(err, common.ErrAlreadyExists) {
		return err
	}
	if _, ferr := ledger.Find(ctx, ch.UserID, ch.Email); ferr != nil {
		if errors.Is(ferr, common.ErrorNotFound) {
			return err
		}
		return fmt.Errorf("find identity: %w", ferr)
	}
	r.logger.Warn(ctx, "identity already present, treating as reconciled", "user_id", ch.UserID)
	return nil
}

// Challenge sends the signup verification for address. Transport errors are
// returned unchanged.
func (r *Reconciler) Challenge(ctx context.Context, address *models.EmailAddress) error {
	if address == nil {
		return nil
	}
	return r.notifier.SendVerification(ctx, address, models.ChallengeSignup)
}

// OnAccountSaved reconciles ch against ledger and then challenges the
// resulting identity. Use it when ledger is not bound to an open
// transaction; otherwise call Apply inside and Challenge after commit.
func (r *Reconciler) OnAccountSaved(ctx context.Context, ledger Ledger, ch Change) error {
	address, err := r.Apply(ctx, ledger, ch)
	if err != nil {
		return err
	}
	return r.Challenge(ctx, address)
}
