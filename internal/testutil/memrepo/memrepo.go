// Package memrepo is an in-memory repomanager.RepositoryManager for tests.
// It honours the uniqueness rules of the PostgreSQL schema but ignores the
// DBTX it is handed, so rolled back writes stay visible.
package memrepo

import (
	"context"
	"database/sql"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/gophaccounts/internal/common"
	"github.com/dmitrijs2005/gophaccounts/internal/dbx"
	"github.com/dmitrijs2005/gophaccounts/internal/server/models"
	"github.com/dmitrijs2005/gophaccounts/internal/server/repositories/authtokens"
	"github.com/dmitrijs2005/gophaccounts/internal/server/repositories/emailaddresses"
	"github.com/dmitrijs2005/gophaccounts/internal/server/repositories/users"
	"github.com/google/uuid"
)

type Manager struct {
	mu        sync.Mutex
	users     map[string]*models.User
	addresses map[string]*models.EmailAddress
	tokens    map[string]*models.AuthToken
	failures  map[string]error
	seq       int
}

func New() *Manager {
	return &Manager{
		users:     map[string]*models.User{},
		addresses: map[string]*models.EmailAddress{},
		tokens:    map[string]*models.AuthToken{},
		failures:  map[string]error{},
	}
}

// FailOn makes the named operation, e.g. "users.Create", return err.
func (m *Manager) FailOn(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[op] = err
}

func (m *Manager) fail(op string) error {
	return m.failures[op]
}

func (m *Manager) RunMigrations(context.Context, *sql.DB) error { return nil }

func (m *Manager) Users(dbx.DBTX) users.Repository                   { return userRepo{m} }
func (m *Manager) EmailAddresses(dbx.DBTX) emailaddresses.Repository { return addressRepo{m} }
func (m *Manager) AuthTokens(dbx.DBTX) authtokens.Repository         { return tokenRepo{m} }

// Addresses returns a snapshot of the user's identities in creation order.
func (m *Manager) Addresses(userID string) []models.EmailAddress {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.EmailAddress
	for _, a := range m.sortedAddresses() {
		if a.UserID == userID {
			out = append(out, *a)
		}
	}
	return out
}

// Token returns the user's key or "".
func (m *Manager) Token(userID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tokens {
		if t.UserID == userID {
			return t.Key
		}
	}
	return ""
}

func (m *Manager) sortedAddresses() []*models.EmailAddress {
	out := make([]*models.EmailAddress, 0, len(m.addresses))
	for _, a := range m.addresses {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// nextID keeps ids sortable by creation order while still being UUIDs.
func (m *Manager) nextID() string {
	m.seq++
	id := uuid.New()
	id[0], id[1], id[2], id[3] = byte(m.seq>>24), byte(m.seq>>16), byte(m.seq>>8), byte(m.seq)
	return id.String()
}

type userRepo struct{ m *Manager }

func (r userRepo) Create(_ context.Context, u *models.User) (*models.User, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if err := r.m.fail("users.Create"); err != nil {
		return nil, err
	}
	for _, other := range r.m.users {
		if strings.EqualFold(other.UserName, u.UserName) {
			return nil, common.ErrAlreadyExists
		}
	}
	c := *u
	c.ID = r.m.nextID()
	c.DateJoined = time.Now().UTC()
	r.m.users[c.ID] = &c
	out := c
	return &out, nil
}

func (r userRepo) get(match func(*models.User) bool) (*models.User, error) {
	var found *models.User
	for _, u := range r.m.users {
		if match(u) && (found == nil || u.ID < found.ID) {
			found = u
		}
	}
	if found == nil {
		return nil, common.ErrorNotFound
	}
	out := *found
	return &out, nil
}

func (r userRepo) GetByID(_ context.Context, id string) (*models.User, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if err := r.m.fail("users.GetByID"); err != nil {
		return nil, err
	}
	return r.get(func(u *models.User) bool { return u.ID == id })
}

func (r userRepo) GetByUserName(_ context.Context, userName string) (*models.User, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	return r.get(func(u *models.User) bool { return strings.EqualFold(u.UserName, userName) })
}

func (r userRepo) GetByEmail(_ context.Context, email string) (*models.User, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if err := r.m.fail("users.GetByEmail"); err != nil {
		return nil, err
	}
	return r.get(func(u *models.User) bool { return u.IsActive && strings.EqualFold(u.Email, email) })
}

func (r userRepo) UserNameExists(_ context.Context, userName, excludeID string) (bool, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	_, err := r.get(func(u *models.User) bool { return u.ID != excludeID && strings.EqualFold(u.UserName, userName) })
	return err == nil, nil
}

func (r userRepo) EmailExists(_ context.Context, email, excludeID string) (bool, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if err := r.m.fail("users.EmailExists"); err != nil {
		return false, err
	}
	for _, u := range r.m.users {
		if u.ID != excludeID && strings.EqualFold(u.Email, email) {
			return true, nil
		}
	}
	for _, a := range r.m.addresses {
		if a.UserID != excludeID && strings.EqualFold(a.Email, email) {
			return true, nil
		}
	}
	return false, nil
}

func (r userRepo) Update(_ context.Context, u *models.User) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if err := r.m.fail("users.Update"); err != nil {
		return err
	}
	cur, ok := r.m.users[u.ID]
	if !ok {
		return common.ErrorNotFound
	}
	for _, other := range r.m.users {
		if other.ID != u.ID && strings.EqualFold(other.UserName, u.UserName) {
			return common.ErrAlreadyExists
		}
	}
	c := *u
	c.PasswordHash = cur.PasswordHash
	c.LastLogin = cur.LastLogin
	c.DateJoined = cur.DateJoined
	r.m.users[u.ID] = &c
	return nil
}

func (r userRepo) SetPassword(_ context.Context, id, hash string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	u, ok := r.m.users[id]
	if !ok {
		return common.ErrorNotFound
	}
	u.PasswordHash = hash
	return nil
}

func (r userRepo) SetLastLogin(_ context.Context, id string, at time.Time) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if u, ok := r.m.users[id]; ok {
		u.LastLogin = &at
	}
	return nil
}

func (r userRepo) List(context.Context) ([]*models.User, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	out := make([]*models.User, 0, len(r.m.users))
	for _, u := range r.m.users {
		c := *u
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type addressRepo struct{ m *Manager }

func (r addressRepo) first(match func(*models.EmailAddress) bool) (*models.EmailAddress, error) {
	for _, a := range r.m.sortedAddresses() {
		if match(a) {
			out := *a
			return &out, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r addressRepo) Find(_ context.Context, userID, email string) (*models.EmailAddress, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if err := r.m.fail("emailaddresses.Find"); err != nil {
		return nil, err
	}
	return r.first(func(a *models.EmailAddress) bool {
		return a.UserID == userID && strings.EqualFold(a.Email, email)
	})
}

func (r addressRepo) GetByID(_ context.Context, id string) (*models.EmailAddress, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	return r.first(func(a *models.EmailAddress) bool { return a.ID == id })
}

func (r addressRepo) GetPrimary(_ context.Context, userID string) (*models.EmailAddress, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	return r.first(func(a *models.EmailAddress) bool { return a.UserID == userID && a.Primary })
}

func (r addressRepo) ListByUser(_ context.Context, userID string) ([]*models.EmailAddress, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []*models.EmailAddress
	for _, a := range r.m.sortedAddresses() {
		if a.UserID == userID {
			c := *a
			out = append(out, &c)
		}
	}
	return out, nil
}

func (r addressRepo) clash(userID, email, exceptID string) bool {
	for _, a := range r.m.addresses {
		if a.ID != exceptID && a.UserID == userID && strings.EqualFold(a.Email, email) {
			return true
		}
	}
	return false
}

func (r addressRepo) Create(_ context.Context, userID, email string, primary, verified bool) (*models.EmailAddress, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if err := r.m.fail("emailaddresses.Create"); err != nil {
		return nil, err
	}
	if r.clash(userID, email, "") {
		return nil, common.ErrAlreadyExists
	}
	if primary {
		for _, a := range r.m.addresses {
			if a.UserID == userID && a.Primary {
				primary = false
				break
			}
		}
	}
	a := &models.EmailAddress{ID: r.m.nextID(), UserID: userID, Email: email, Primary: primary, Verified: verified}
	r.m.addresses[a.ID] = a
	out := *a
	return &out, nil
}

func (r addressRepo) UpdateEmail(_ context.Context, id, email string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if err := r.m.fail("emailaddresses.UpdateEmail"); err != nil {
		return err
	}
	a, ok := r.m.addresses[id]
	if !ok {
		return common.ErrorNotFound
	}
	if r.clash(a.UserID, email, id) {
		return common.ErrAlreadyExists
	}
	a.Email = email
	return nil
}

func (r addressRepo) MarkVerified(_ context.Context, id string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	a, ok := r.m.addresses[id]
	if !ok {
		return common.ErrorNotFound
	}
	a.Verified = true
	return nil
}

func (r addressRepo) SetPrimary(_ context.Context, userID, id string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	target, ok := r.m.addresses[id]
	if !ok || target.UserID != userID {
		return common.ErrorNotFound
	}
	for _, a := range r.m.addresses {
		if a.UserID == userID {
			a.Primary = a.ID == id
		}
	}
	return nil
}

type tokenRepo struct{ m *Manager }

func (r tokenRepo) Create(_ context.Context, userID, key string) (*models.AuthToken, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.tokens[key]; ok {
		return nil, common.ErrAlreadyExists
	}
	for _, t := range r.m.tokens {
		if t.UserID == userID {
			return nil, common.ErrAlreadyExists
		}
	}
	t := &models.AuthToken{Key: key, UserID: userID, CreatedAt: time.Now().UTC()}
	r.m.tokens[key] = t
	out := *t
	return &out, nil
}

func (r tokenRepo) Find(_ context.Context, key string) (*models.AuthToken, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	t, ok := r.m.tokens[key]
	if !ok {
		return nil, common.ErrorNotFound
	}
	out := *t
	return &out, nil
}

func (r tokenRepo) FindByUser(_ context.Context, userID string) (*models.AuthToken, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, t := range r.m.tokens {
		if t.UserID == userID {
			out := *t
			return &out, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r tokenRepo) Delete(_ context.Context, key string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	delete(r.m.tokens, key)
	return nil
}

func (r tokenRepo) DeleteByUser(_ context.Context, userID string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for k, t := range r.m.tokens {
		if t.UserID == userID {
			delete(r.m.tokens, k)
		}
	}
	return nil
}
