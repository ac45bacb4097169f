// Package session holds the client's authentication state: who is signed
// in, which kind of account it is, and whether a reconciliation with the
// identity provider is running. It keeps that state in step with the
// provider on demand and whenever the provider pushes a session event.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/geocoder89/kidshub/internal/cache"
	"github.com/geocoder89/kidshub/internal/data"
	"github.com/geocoder89/kidshub/internal/domain/profile"
	"github.com/geocoder89/kidshub/internal/persist"
	"github.com/geocoder89/kidshub/internal/provider"
	"github.com/geocoder89/kidshub/internal/store"
	"github.com/go-playground/validator/v10"
)

var (
	ErrDemoMode    = errors.New("session: offline demo mode, no backend configured")
	ErrNotSignedIn = errors.New("session: not signed in")
)

// State is the session as the view layer sees it.
// IsAuthenticated implies User is set and UserKind is valid.
type State struct {
	User            *profile.User
	IsAuthenticated bool
	UserKind        profile.Kind
	IsLoading       bool
}

// snapshot is the persisted subset of State. IsLoading is never stored.
type snapshot struct {
	User            *profile.User `json:"user"`
	IsAuthenticated bool          `json:"isAuthenticated"`
	UserType        *profile.Kind `json:"userType"`
}

// Scheduler runs fn after the caller has returned.
type Scheduler interface {
	Schedule(fn func())
}

// GoScheduler runs each function on its own goroutine.
type GoScheduler struct{}

func (GoScheduler) Schedule(fn func()) { go fn() }

// Redirector sends the user back to the sign in entry point.
type Redirector interface {
	RedirectToLogin()
}

type RedirectFunc func()

func (f RedirectFunc) RedirectToLogin() { f() }

type Deps struct {
	Identity   provider.Identity
	Store      store.Store
	Storage    persist.Storage
	Scheduler  Scheduler
	Redirector Redirector
	Logger     *slog.Logger

	// Demo short-circuits every operation: no network, never signed in.
	Demo bool
	// EmailRedirectTo is passed to the provider on sign up.
	EmailRedirectTo string
	// ReconcileTimeout bounds background reconciliations.
	ReconcileTimeout time.Duration
}

type Store struct {
	idp      provider.Identity
	data     *data.Client
	storage  persist.Storage
	sched    Scheduler
	redirect Redirector
	log      *slog.Logger
	validate *validator.Validate
	cache    *cache.Cache[profile.User]

	demo             bool
	emailRedirectTo  string
	reconcileTimeout time.Duration

	mu        sync.Mutex
	state     State
	persisted []byte
	listeners map[uint64]func(State)
	nextID    uint64

	inFlight atomic.Bool
	pending  atomic.Int64
	started  atomic.Bool
}

// New builds the store and restores the persisted snapshot. The restored
// state always starts loading; Start schedules the reconciliation that
// settles it.
func New(ctx context.Context, deps Deps) *Store {
	if deps.Storage == nil {
		deps.Storage = persist.NewMemoryStorage()
	}
	if deps.Scheduler == nil {
		deps.Scheduler = GoScheduler{}
	}
	if deps.Redirector == nil {
		deps.Redirector = RedirectFunc(func() {})
	}
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if deps.ReconcileTimeout <= 0 {
		deps.ReconcileTimeout = 30 * time.Second
	}

	s := &Store{
		idp:              deps.Identity,
		storage:          deps.Storage,
		sched:            deps.Scheduler,
		redirect:         deps.Redirector,
		log:              deps.Logger.With("component", "session"),
		validate:         validator.New(),
		cache:            cache.New[profile.User](),
		demo:             deps.Demo,
		emailRedirectTo:  deps.EmailRedirectTo,
		reconcileTimeout: deps.ReconcileTimeout,
		listeners:        make(map[uint64]func(State)),
		state:            State{IsLoading: true},
	}
	if deps.Store != nil {
		s.data = data.New(deps.Store, deps.Identity)
	}

	s.restore(ctx)
	return s
}

func (s *Store) restore(ctx context.Context) {
	raw, err := s.storage.Get(ctx, persist.KeySession)
	if err != nil {
		if !errors.Is(err, persist.ErrNotFound) {
			s.log.Warn("read persisted session failed", "err", err)
		}
		return
	}

	var snap snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		s.log.Warn("discarding unreadable persisted session", "err", err)
		return
	}

	if !snap.IsAuthenticated || snap.User == nil || snap.UserType == nil || !snap.UserType.IsValid() {
		return
	}

	s.state.User = snap.User
	s.state.IsAuthenticated = true
	s.state.UserKind = *snap.UserType
	s.persisted = raw
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyState(s.state)
}

// Subscribe calls fn with every new state until the returned func is called.
func (s *Store) Subscribe(fn func(State)) func() {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// update applies fn under the lock, persists the durable subset when it
// changed, then notifies subscribers.
func (s *Store) update(fn func(*State)) {
	s.mu.Lock()
	fn(&s.state)
	st := copyState(s.state)

	snap := snapshot{User: st.User, IsAuthenticated: st.IsAuthenticated}
	if st.UserKind != "" {
		k := st.UserKind
		snap.UserType = &k
	}
	raw, err := json.Marshal(snap)
	changed := err == nil && string(raw) != string(s.persisted)
	if changed {
		s.persisted = raw
	}

	listeners := make([]func(State), 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.mu.Unlock()

	if err != nil {
		s.log.Error("encode session snapshot failed", "err", err)
	}
	if changed {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := s.storage.Set(ctx, persist.KeySession, raw); err != nil {
			s.log.Warn("persist session failed", "err", err)
		}
		cancel()
	}

	for _, l := range listeners {
		l(copyState(st))
	}
}

func (s *Store) setLoading(v bool) {
	s.update(func(st *State) { st.IsLoading = v })
}

// signedOut is the fully unauthenticated state.
func signedOut(st *State) {
	*st = State{}
}

func (s *Store) adopt(u profile.User) {
	s.update(func(st *State) {
		cp := copyUser(u)
		st.User = &cp
		st.UserKind = u.Kind
		st.IsAuthenticated = true
		st.IsLoading = false
	})
}

func copyState(st State) State {
	if st.User != nil {
		u := copyUser(*st.User)
		st.User = &u
	}
	return st
}

func copyUser(u profile.User) profile.User {
	if u.Guardian != nil {
		g := *u.Guardian
		g.Children = append(make([]profile.Child, 0, len(g.Children)), g.Children...)
		u.Guardian = &g
	}
	if u.Organizer != nil {
		o := *u.Organizer
		u.Organizer = &o
	}
	return u
}

// absorb recovers a panic in a public operation: it is logged, loading is
// forced off, and the caller sees no error.
func (s *Store) absorb(op string) {
	if r := recover(); r != nil {
		s.log.Error("unexpected failure", "op", op, "panic", r)
		s.setLoading(false)
	}
}

// WaitIdle blocks until no scheduled reconciliation is pending.
func (s *Store) WaitIdle(ctx context.Context) error {
	t := time.NewTicker(10 * time.Millisecond)
	defer t.Stop()

	for s.pending.Load() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
	return nil
}
