package cli

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/dmitrijs2005/gophaccounts/internal/logging"
	"github.com/dmitrijs2005/gophaccounts/internal/server/config"
	"github.com/dmitrijs2005/gophaccounts/internal/server/identity"
	"github.com/dmitrijs2005/gophaccounts/internal/server/notify"
	"github.com/dmitrijs2005/gophaccounts/internal/server/services"
	"github.com/dmitrijs2005/gophaccounts/internal/testutil"
	"github.com/dmitrijs2005/gophaccounts/internal/testutil/memrepo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	repo    *memrepo.Manager
	mailbox *testutil.Mailbox
	cfg     *config.Config
	opened  int
}

func (h *harness) open(t *testing.T) Opener {
	db := testutil.OpenTxDB(t)
	return func(_ context.Context, cfg *config.Config, l logging.Logger) (*Backend, error) {
		h.opened++
		h.cfg = cfg
		notifier := notify.NewEmailNotifier(h.mailbox, cfg, l)
		svc := services.NewAccountService(db, h.repo, identity.NewReconciler(notifier, l), notifier, cfg, l)
		return &Backend{DB: db, Repos: h.repo, Accounts: svc, Close: func() error { return nil }}, nil
	}
}

func run(t *testing.T, h *harness, stdin string, args ...string) (string, string, error) {
	t.Helper()
	cmd := NewRootCommand(h.open(t))
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

func newHarness() *harness {
	return &harness{repo: memrepo.New(), mailbox: &testutil.Mailbox{}}
}

func TestMigrate(t *testing.T) {
	h := newHarness()
	out, _, err := run(t, h, "", "migrate", "--dsn", "postgres://x")
	require.NoError(t, err)
	assert.Contains(t, out, "Migrations applied.")
	assert.Equal(t, "postgres://x", h.cfg.DatabaseDSN)
}

func TestCreateSuperuser_Flags(t *testing.T) {
	h := newHarness()
	out, _, err := run(t, h, "", "createsuperuser", "--no-input",
		"--username", "root", "--email", "root@example.com", "--password", "pw")
	require.NoError(t, err)
	assert.Contains(t, out, "Superuser root created successfully.")
	assert.Zero(t, h.mailbox.Len())

	u, err := h.repo.Users(nil).GetByUserName(context.Background(), "root")
	require.NoError(t, err)
	assert.True(t, u.IsSuperuser)
	addrs := h.repo.Addresses(u.ID)
	require.Len(t, addrs, 1)
	assert.True(t, addrs[0].Verified)
}

func TestCreateSuperuser_Prompts(t *testing.T) {
	h := newHarness()
	oldTerm, oldRead := isTerminal, readPassword
	t.Cleanup(func() { isTerminal, readPassword = oldTerm, oldRead })
	isTerminal = func(int) bool { return true }
	readPassword = func(int) ([]byte, error) { return []byte("secret"), nil }

	out, _, err := run(t, h, "admin\nadmin@example.com\n", "createsuperuser")
	require.NoError(t, err)
	assert.Contains(t, out, "Username: ")
	assert.Contains(t, out, "Superuser admin created successfully.")
}

func TestCreateSuperuser_NoTerminal(t *testing.T) {
	h := newHarness()
	old := isTerminal
	t.Cleanup(func() { isTerminal = old })
	isTerminal = func(int) bool { return false }

	_, _, err := run(t, h, "", "createsuperuser", "--username", "root", "--email", "")
	assert.ErrorContains(t, err, "password required")
	assert.Zero(t, h.opened)
}

func TestCreateSuperuser_ValidationErrors(t *testing.T) {
	h := newHarness()
	_, errOut, err := run(t, h, "", "createsuperuser", "--no-input", "--email", "bad")
	assert.EqualError(t, err, "superuser not created")
	assert.Contains(t, errOut, "username: This field may not be blank.")
	assert.Contains(t, errOut, "email: Enter a valid email address.")
	assert.NotContains(t, errOut, "password:")
}

func TestUsersList(t *testing.T) {
	h := newHarness()
	_, _, err := run(t, h, "", "createsuperuser", "--no-input", "--username", "root", "--password", "pw")
	require.NoError(t, err)

	out, _, err := run(t, h, "", "users", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "USERNAME")
	assert.Contains(t, out, "root")

	out, _, err = run(t, h, "", "users", "list", "--format", "json")
	require.NoError(t, err)
	var rows []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "root", rows[0]["username"])
	assert.Equal(t, true, rows[0]["is_staff"])

	_, _, err = run(t, h, "", "users", "list", "--format", "xml")
	assert.ErrorContains(t, err, "invalid format")
}

func TestGetSimpleText(t *testing.T) {
	var out bytes.Buffer
	got, err := GetSimpleText(bufio.NewReader(strings.NewReader("hello world\n")), "Name", &out)
	require.NoError(t, err)
	assert.Equal(t, "hello world", got)
	assert.Equal(t, "Name: ", out.String())

	got, err = GetSimpleText(bufio.NewReader(strings.NewReader("lastline")), "Name", &out)
	require.NoError(t, err)
	assert.Equal(t, "lastline", got)

	_, err = GetSimpleText(bufio.NewReader(strings.NewReader("")), "Name", &out)
	assert.Error(t, err)
}

func TestGetNewPassword(t *testing.T) {
	old := readPassword
	t.Cleanup(func() { readPassword = old })

	answers := []string{"a", "b"}
	readPassword = func(int) ([]byte, error) {
		a := answers[0]
		answers = answers[1:]
		return []byte(a), nil
	}
	var out bytes.Buffer
	_, err := GetNewPassword(0, &out)
	assert.ErrorIs(t, err, errPasswordMismatch)

	readPassword = func(int) ([]byte, error) { return nil, errors.New("boom") }
	_, err = GetNewPassword(0, &out)
	assert.Error(t, err)
}
