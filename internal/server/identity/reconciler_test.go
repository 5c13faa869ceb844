package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/dmitrijs2005/gophaccounts/internal/common"
	"github.com/dmitrijs2005/gophaccounts/internal/logging"
	"github.com/dmitrijs2005/gophaccounts/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeLedger is an in-memory identity store that counts writes.
type fakeLedger struct {
	rows   []*models.EmailAddress
	writes int

	findErr   error
	createErr error
	updateErr error

	// raced is stored by the next Create or UpdateEmail, which then fails
	// as if a concurrent reconcile had won.
	raced *models.EmailAddress
}

func (l *fakeLedger) race() bool {
	if l.raced == nil {
		return false
	}
	l.rows = append(l.rows, l.raced)
	l.raced = nil
	return true
}

func (l *fakeLedger) Find(_ context.Context, userID, email string) (*models.EmailAddress, error) {
	if l.findErr != nil {
		return nil, l.findErr
	}
	for _, a := range l.rows {
		if a.UserID == userID && strings.EqualFold(a.Email, email) {
			c := *a
			return &c, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (l *fakeLedger) Create(_ context.Context, userID, email string, primary, verified bool) (*models.EmailAddress, error) {
	if l.createErr != nil {
		return nil, l.createErr
	}
	if l.race() {
		return nil, fmt.Errorf("db: %w", common.ErrAlreadyExists)
	}
	for _, a := range l.rows {
		if a.UserID == userID && a.Primary {
			primary = false
		}
	}
	l.writes++
	a := &models.EmailAddress{ID: fmt.Sprintf("e-%d", len(l.rows)+1), UserID: userID, Email: email, Primary: primary, Verified: verified}
	l.rows = append(l.rows, a)
	c := *a
	return &c, nil
}

func (l *fakeLedger) UpdateEmail(_ context.Context, id, email string) error {
	if l.updateErr != nil {
		return l.updateErr
	}
	if l.race() {
		return common.ErrAlreadyExists
	}
	for _, a := range l.rows {
		if a.ID == id {
			l.writes++
			a.Email = email
			return nil
		}
	}
	return common.ErrorNotFound
}

func (l *fakeLedger) forUser(userID string) []*models.EmailAddress {
	var out []*models.EmailAddress
	for _, a := range l.rows {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	return out
}

type sent struct {
	address models.EmailAddress
	reason  models.ChallengeContext
}

type fakeNotifier struct {
	sent []sent
	err  error
}

func (n *fakeNotifier) SendVerification(_ context.Context, a *models.EmailAddress, reason models.ChallengeContext) error {
	n.sent = append(n.sent, sent{address: *a, reason: reason})
	return n.err
}

func ptr(s string) *string { return &s }

func newReconciler() (*Reconciler, *fakeLedger, *fakeNotifier) {
	n := &fakeNotifier{}
	return NewReconciler(n, logging.Nop{}), &fakeLedger{}, n
}

func TestOnAccountSaved_CreateMakesPrimaryUnverifiedIdentity(t *testing.T) {
	r, ledger, notifier := newReconciler()

	err := r.OnAccountSaved(context.Background(), ledger, Change{UserID: "2", Email: "a@x.com", Created: true})
	require.NoError(t, err)

	rows := ledger.forUser("2")
	require.Len(t, rows, 1)
	assert.Equal(t, "a@x.com", rows[0].Email)
	assert.True(t, rows[0].Primary)
	assert.False(t, rows[0].Verified)

	require.Len(t, notifier.sent, 1)
	assert.Equal(t, models.ChallengeSignup, notifier.sent[0].reason)
	assert.Equal(t, rows[0].ID, notifier.sent[0].address.ID)
}

func TestOnAccountSaved_NoOpWhenUnchanged(t *testing.T) {
	r, ledger, notifier := newReconciler()

	for _, ch := range []Change{
		{UserID: "2", PreviousEmail: ptr("a@x.com"), Email: "a@x.com"},
		{UserID: "2", Email: "a@x.com"},
		{UserID: "2", PreviousEmail: ptr(""), Email: ""},
	} {
		require.NoError(t, r.OnAccountSaved(context.Background(), ledger, ch))
	}

	assert.Zero(t, ledger.writes)
	assert.Empty(t, notifier.sent)
}

func TestOnAccountSaved_EmailChangeRepointsAndKeepsVerified(t *testing.T) {
	r, ledger, notifier := newReconciler()
	ledger.rows = []*models.EmailAddress{{ID: "e-1", UserID: "2", Email: "a@x.com", Verified: true, Primary: true}}

	err := r.OnAccountSaved(context.Background(), ledger,
		Change{UserID: "2", PreviousEmail: ptr("a@x.com"), Email: "b@x.com"})
	require.NoError(t, err)

	rows := ledger.forUser("2")
	require.Len(t, rows, 1, "repoint must not add a record")
	assert.Equal(t, "e-1", rows[0].ID)
	assert.Equal(t, "b@x.com", rows[0].Email)
	assert.True(t, rows[0].Verified)
	assert.True(t, rows[0].Primary)

	require.Len(t, notifier.sent, 1)
	assert.Equal(t, "b@x.com", notifier.sent[0].address.Email)
	assert.Equal(t, models.ChallengeSignup, notifier.sent[0].reason)
}

func TestOnAccountSaved_EmailChangeWithoutPriorRecordCreates(t *testing.T) {
	r, ledger, notifier := newReconciler()

	err := r.OnAccountSaved(context.Background(), ledger,
		Change{UserID: "2", PreviousEmail: ptr("old@x.com"), Email: "new@x.com"})
	require.NoError(t, err)

	rows := ledger.forUser("2")
	require.Len(t, rows, 1)
	assert.Equal(t, "new@x.com", rows[0].Email)
	assert.True(t, rows[0].Primary)
	assert.False(t, rows[0].Verified)
	assert.Len(t, notifier.sent, 1)
}

func TestOnAccountSaved_IdempotentWhenCurrentEmailKnown(t *testing.T) {
	r, ledger, notifier := newReconciler()
	ledger.rows = []*models.EmailAddress{
		{ID: "e-1", UserID: "2", Email: "a@x.com", Primary: true},
		{ID: "e-2", UserID: "2", Email: "B@x.com"},
	}

	for i := 0; i < 3; i++ {
		require.NoError(t, r.OnAccountSaved(context.Background(), ledger,
			Change{UserID: "2", PreviousEmail: ptr("a@x.com"), Email: "b@x.com"}))
		require.NoError(t, r.OnAccountSaved(context.Background(), ledger,
			Change{UserID: "2", Email: "a@x.com", Created: true}))
	}

	assert.Zero(t, ledger.writes)
	assert.Empty(t, notifier.sent)
	assert.Equal(t, "a@x.com", ledger.rows[0].Email)
}

func TestOnAccountSaved_BypassSuppressesEverything(t *testing.T) {
	r, ledger, notifier := newReconciler()

	for _, ch := range []Change{
		{UserID: "3", Email: "root@x.com", Created: true, Origin: OriginBypass},
		{UserID: "3", PreviousEmail: ptr("root@x.com"), Email: "other@x.com", Origin: OriginBypass},
	} {
		require.NoError(t, r.OnAccountSaved(context.Background(), ledger, ch))
	}

	assert.Zero(t, ledger.writes)
	assert.Empty(t, notifier.sent)
}

func TestOnAccountSaved_BlankEmailSkipped(t *testing.T) {
	r, ledger, notifier := newReconciler()

	require.NoError(t, r.OnAccountSaved(context.Background(), ledger, Change{UserID: "1", Email: "", Created: true}))
	require.NoError(t, r.OnAccountSaved(context.Background(), ledger,
		Change{UserID: "1", PreviousEmail: ptr("a@x.com"), Email: "  "}))

	assert.Empty(t, ledger.rows)
	assert.Empty(t, notifier.sent)
}

func TestOnAccountSaved_Scenario(t *testing.T) {
	r, ledger, notifier := newReconciler()
	ctx := context.Background()

	require.NoError(t, r.OnAccountSaved(ctx, ledger, Change{UserID: "1", Email: "", Created: true}))
	assert.Empty(t, ledger.forUser("1"))
	assert.Empty(t, notifier.sent)

	require.NoError(t, r.OnAccountSaved(ctx, ledger, Change{UserID: "2", Email: "a@x.com", Created: true}))
	require.Len(t, ledger.forUser("2"), 1)
	assert.Len(t, notifier.sent, 1)

	ledger.rows[0].Verified = true

	require.NoError(t, r.OnAccountSaved(ctx, ledger, Change{UserID: "2", PreviousEmail: ptr("a@x.com"), Email: "b@x.com"}))
	rows := ledger.forUser("2")
	require.Len(t, rows, 1)
	assert.Equal(t, "b@x.com", rows[0].Email)
	assert.True(t, rows[0].Verified)
	assert.Len(t, notifier.sent, 2)
}

func TestOnAccountSaved_NotifierErrorPropagatesAfterLedgerWrite(t *testing.T) {
	r, ledger, notifier := newReconciler()
	transport := errors.New("smtp: connection refused")
	notifier.err = transport

	err := r.OnAccountSaved(context.Background(), ledger, Change{UserID: "2", Email: "a@x.com", Created: true})
	require.ErrorIs(t, err, transport)
	assert.Same(t, transport, err, "notifier error must be returned unmodified")

	assert.Len(t, ledger.forUser("2"), 1, "ledger write stays in place")
}

func TestApply_ConcurrentCreateTreatedAsConsistent(t *testing.T) {
	r, ledger, notifier := newReconciler()
	ledger.raced = &models.EmailAddress{ID: "e-9", UserID: "2", Email: "a@x.com", Primary: true}

	got, err := r.Apply(context.Background(), ledger, Change{UserID: "2", Email: "a@x.com", Created: true})
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Empty(t, notifier.sent)
	assert.Zero(t, ledger.writes)
}

func TestApply_RepointConflictTreatedAsConsistent(t *testing.T) {
	r, ledger, _ := newReconciler()
	ledger.rows = []*models.EmailAddress{{ID: "e-1", UserID: "2", Email: "a@x.com", Primary: true}}
	ledger.raced = &models.EmailAddress{ID: "e-9", UserID: "2", Email: "b@x.com"}

	got, err := r.Apply(context.Background(), ledger, Change{UserID: "2", PreviousEmail: ptr("a@x.com"), Email: "b@x.com"})
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestApply_ConflictWithoutCurrentIdentityIsAnError(t *testing.T) {
	r, ledger, notifier := newReconciler()
	ledger.createErr = fmt.Errorf("db: %w", common.ErrAlreadyExists)

	got, err := r.Apply(context.Background(), ledger, Change{UserID: "2", Email: "a@x.com", Created: true})
	require.ErrorIs(t, err, common.ErrAlreadyExists)
	assert.Nil(t, got)

	ledger.createErr = nil
	ledger.rows = []*models.EmailAddress{{ID: "e-1", UserID: "2", Email: "a@x.com", Primary: true}}
	ledger.updateErr = common.ErrAlreadyExists
	_, err = r.Apply(context.Background(), ledger, Change{UserID: "2", PreviousEmail: ptr("a@x.com"), Email: "b@x.com"})
	require.ErrorIs(t, err, common.ErrAlreadyExists)

	assert.Empty(t, notifier.sent)
}

func TestOnAccountSaved_EmailSetAfterClearCreatesSecondaryIdentity(t *testing.T) {
	r, ledger, notifier := newReconciler()
	ctx := context.Background()
	ledger.rows = []*models.EmailAddress{{ID: "e-1", UserID: "2", Email: "a@x.com", Primary: true, Verified: true}}

	require.NoError(t, r.OnAccountSaved(ctx, ledger, Change{UserID: "2", PreviousEmail: ptr("a@x.com"), Email: ""}))
	assert.Zero(t, ledger.writes)

	require.NoError(t, r.OnAccountSaved(ctx, ledger, Change{UserID: "2", PreviousEmail: ptr(""), Email: "b@x.com"}))

	rows := ledger.forUser("2")
	require.Len(t, rows, 2)
	assert.Equal(t, "b@x.com", rows[1].Email)
	assert.False(t, rows[1].Primary)
	assert.False(t, rows[1].Verified)
	require.Len(t, notifier.sent, 1)
	assert.Equal(t, "b@x.com", notifier.sent[0].address.Email)
}

func TestApply_LedgerErrorsPropagate(t *testing.T) {
	boom := errors.New("db down")

	r, ledger, notifier := newReconciler()
	ledger.findErr = boom
	_, err := r.Apply(context.Background(), ledger, Change{UserID: "2", Email: "a@x.com", Created: true})
	assert.ErrorIs(t, err, boom)

	ledger.findErr = nil
	ledger.createErr = boom
	_, err = r.Apply(context.Background(), ledger, Change{UserID: "2", Email: "a@x.com", Created: true})
	assert.ErrorIs(t, err, boom)

	ledger.createErr = nil
	ledger.rows = []*models.EmailAddress{{ID: "e-1", UserID: "2", Email: "a@x.com"}}
	ledger.updateErr = boom
	_, err = r.Apply(context.Background(), ledger, Change{UserID: "2", PreviousEmail: ptr("a@x.com"), Email: "b@x.com"})
	assert.ErrorIs(t, err, boom)

	assert.Empty(t, notifier.sent)
}

func TestApply_DoesNotNotify(t *testing.T) {
	r, ledger, notifier := newReconciler()

	got, err := r.Apply(context.Background(), ledger, Change{UserID: "2", Email: "a@x.com", Created: true})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Empty(t, notifier.sent)

	require.NoError(t, r.Challenge(context.Background(), got))
	require.NoError(t, r.Challenge(context.Background(), nil))
	assert.Len(t, notifier.sent, 1)
}

func TestChange_EmailChanged(t *testing.T) {
	assert.False(t, Change{Email: "a"}.EmailChanged())
	assert.False(t, Change{PreviousEmail: ptr("a"), Email: "a"}.EmailChanged())
	assert.True(t, Change{PreviousEmail: ptr("a"), Email: "b"}.EmailChanged())
	assert.True(t, Change{PreviousEmail: ptr("a"), Email: ""}.EmailChanged())
	assert.Equal(t, "bypass", OriginBypass.String())
	assert.Equal(t, "default", OriginDefault.String())
}
