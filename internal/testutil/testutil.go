// Package testutil holds fixtures shared by service and API tests.
package testutil

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"testing"

	"github.com/dmitrijs2005/gophaccounts/internal/server/notify"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

// OpenTxDB returns a private in-memory SQLite database. Services only use it
// to begin and commit transactions; the repositories under test ignore it.
func OpenTxDB(t testing.TB) *sql.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?mode=memory&cache=shared", name))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// Mailbox records sent messages. Err, when set, is returned by Send.
type Mailbox struct {
	mu       sync.Mutex
	Err      error
	messages []*notify.Message
}

func (m *Mailbox) Send(_ context.Context, msg *notify.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.messages = append(m.messages, msg)
	return nil
}

func (m *Mailbox) Messages() []*notify.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*notify.Message(nil), m.messages...)
}

func (m *Mailbox) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.messages)
}

func (m *Mailbox) Last() *notify.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.messages) == 0 {
		return nil
	}
	return m.messages[len(m.messages)-1]
}

var linkRe = regexp.MustCompile(`https?://\S+`)

// LinkParam extracts a query parameter from the first link in the most
// recent message.
func (m *Mailbox) LinkParam(t testing.TB, name string) string {
	t.Helper()
	msg := m.Last()
	require.NotNil(t, msg, "no mail sent")
	link := linkRe.FindString(msg.Body)
	require.NotEmpty(t, link, "no link in mail")
	u, err := url.Parse(link)
	require.NoError(t, err)
	return u.Query().Get(name)
}
