package session

import (
	"context"
	"sync"

	"github.com/geocoder89/kidshub/internal/provider"
	"github.com/geocoder89/kidshub/internal/repo/memory"
	"github.com/geocoder89/kidshub/internal/store"
)

// fakeIdentity keeps one session in memory. The fn fields override the
// default behaviour per test.
type fakeIdentity struct {
	mu       sync.Mutex
	session  *provider.Session
	accounts map[string]provider.User
	password map[string]string
	handler  provider.StateChangeHandler

	getSessionCalls int
	getUserCalls    int

	getSessionFn func(ctx context.Context) (*provider.Session, error)
	getUserFn    func(ctx context.Context) (*provider.User, error)
	signInFn     func(ctx context.Context, email, password string) (*provider.Session, error)
	signOutFn    func(ctx context.Context) error
}

func newFakeIdentity() *fakeIdentity {
	return &fakeIdentity{
		accounts: make(map[string]provider.User),
		password: make(map[string]string),
	}
}

func (f *fakeIdentity) signInAs(u provider.User) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accounts[u.Email] = u
	f.session = &provider.Session{AccessToken: "tok-" + u.ID, User: u}
}

func (f *fakeIdentity) GetSession(ctx context.Context) (*provider.Session, error) {
	f.mu.Lock()
	f.getSessionCalls++
	fn := f.getSessionFn
	f.mu.Unlock()

	if fn != nil {
		return fn(ctx)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.session == nil {
		return nil, nil
	}
	cp := *f.session
	return &cp, nil
}

func (f *fakeIdentity) GetUser(ctx context.Context) (*provider.User, error) {
	f.mu.Lock()
	f.getUserCalls++
	fn := f.getUserFn
	f.mu.Unlock()

	if fn != nil {
		return fn(ctx)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.session == nil {
		return nil, nil
	}
	u := f.session.User
	return &u, nil
}

func (f *fakeIdentity) SignInWithPassword(ctx context.Context, email, password string) (*provider.Session, error) {
	if f.signInFn != nil {
		return f.signInFn(ctx, email, password)
	}

	f.mu.Lock()
	u, ok := f.accounts[email]
	if !ok || f.password[email] != password {
		f.mu.Unlock()
		return nil, &provider.AuthError{Status: 400, Code: "invalid_credentials", Message: "Invalid login credentials"}
	}
	f.session = &provider.Session{AccessToken: "tok-" + u.ID, User: u}
	s := *f.session
	h := f.handler
	f.mu.Unlock()

	if h != nil {
		h(provider.EventSignedIn, &s)
	}
	return &s, nil
}

func (f *fakeIdentity) SignUp(ctx context.Context, email, password string, opts provider.SignUpOptions) (*provider.User, *provider.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, exists := f.accounts[email]; exists {
		return nil, nil, &provider.AuthError{Status: 422, Code: "user_already_exists", Message: "User already registered"}
	}

	u := provider.User{ID: "user-" + email, Email: email, UserMetadata: opts.Data}
	f.accounts[email] = u
	f.password[email] = password
	return &u, nil, nil
}

func (f *fakeIdentity) SignOut(ctx context.Context) error {
	if f.signOutFn != nil {
		return f.signOutFn(ctx)
	}

	f.mu.Lock()
	f.session = nil
	f.mu.Unlock()
	return nil
}

func (f *fakeIdentity) UpdateUser(ctx context.Context, attrs provider.UserAttributes) (*provider.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.session == nil {
		return nil, &provider.AuthError{Status: 401, Code: "no_session"}
	}
	u := f.session.User
	meta := make(map[string]any, len(u.UserMetadata)+len(attrs.Data))
	for k, v := range u.UserMetadata {
		meta[k] = v
	}
	u.UserMetadata = meta
	for k, v := range attrs.Data {
		u.UserMetadata[k] = v
	}
	f.session.User = u
	return &u, nil
}

func (f *fakeIdentity) OnAuthStateChange(h provider.StateChangeHandler) func() {
	f.mu.Lock()
	f.handler = h
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		f.handler = nil
		f.mu.Unlock()
	}
}

// manualScheduler queues work until the test runs it.
type manualScheduler struct {
	mu    sync.Mutex
	queue []func()
}

func (m *manualScheduler) Schedule(fn func()) {
	m.mu.Lock()
	m.queue = append(m.queue, fn)
	m.mu.Unlock()
}

func (m *manualScheduler) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

func (m *manualScheduler) RunAll() {
	for {
		m.mu.Lock()
		if len(m.queue) == 0 {
			m.mu.Unlock()
			return
		}
		fn := m.queue[0]
		m.queue = m.queue[1:]
		m.mu.Unlock()
		fn()
	}
}

// countingStore records calls per table on top of the memory store.
type countingStore struct {
	*memory.Store

	mu      sync.Mutex
	selects map[string]int
	upserts map[string]int

	dropUpserts bool
	selectErr   map[string]error
}

func newCountingStore() *countingStore {
	return &countingStore{
		Store:     memory.NewStore(),
		selects:   make(map[string]int),
		upserts:   make(map[string]int),
		selectErr: make(map[string]error),
	}
}

func (c *countingStore) Select(ctx context.Context, table string, q store.Query) ([]store.Row, error) {
	c.mu.Lock()
	c.selects[table]++
	err := c.selectErr[table]
	c.mu.Unlock()

	if err != nil {
		return nil, err
	}
	return c.Store.Select(ctx, table, q)
}

func (c *countingStore) Upsert(ctx context.Context, table string, row store.Row, onConflict string) ([]store.Row, error) {
	c.mu.Lock()
	c.upserts[table]++
	drop := c.dropUpserts
	c.mu.Unlock()

	if drop {
		return []store.Row{}, nil
	}
	return c.Store.Upsert(ctx, table, row, onConflict)
}

func (c *countingStore) selectCount(table string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selects[table]
}

func (c *countingStore) upsertCount(table string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.upserts[table]
}

type redirectCounter struct {
	mu    sync.Mutex
	count int
}

func (r *redirectCounter) RedirectToLogin() {
	r.mu.Lock()
	r.count++
	r.mu.Unlock()
}

func (r *redirectCounter) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}
