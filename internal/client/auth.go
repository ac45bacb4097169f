package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/geocoder89/kidshub/internal/persist"
	"github.com/geocoder89/kidshub/internal/provider"
	"github.com/golang-jwt/jwt/v5"
)

var _ provider.Identity = (*Auth)(nil)

// Auth is the HTTP identity client. The token session is kept in
// Config.Storage under persist.KeyToken so it survives restarts.
type Auth struct {
	cfg    Config
	req    requester
	events *dispatcher

	mu      sync.Mutex
	loaded  bool
	session *provider.Session

	// refreshMu serializes refresh grants; the backend revokes a token
	// family when a rotated refresh token is presented twice.
	refreshMu sync.Mutex
}

func NewAuth(cfg Config) *Auth {
	cfg.defaults()
	return &Auth{
		cfg:    cfg,
		req:    requester{baseURL: cfg.BaseURL, apiKey: cfg.APIKey, hc: cfg.HTTPClient},
		events: newDispatcher(cfg.Logger),
	}
}

// Close stops event delivery.
func (a *Auth) Close() {
	a.events.close()
}

type signUpRequest struct {
	Email           string         `json:"email"`
	Password        string         `json:"password"`
	Data            map[string]any `json:"data,omitempty"`
	EmailRedirectTo string         `json:"email_redirect_to,omitempty"`
}

type signUpResponse struct {
	User    provider.User     `json:"user"`
	Session *provider.Session `json:"session"`
}

type passwordGrant struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshGrant struct {
	RefreshToken string `json:"refresh_token"`
}

func (a *Auth) GetSession(ctx context.Context) (*provider.Session, error) {
	s, err := a.current(ctx)
	if err != nil || s == nil {
		return nil, err
	}

	if !a.expiring(s) {
		return copySession(s), nil
	}

	a.refreshMu.Lock()
	defer a.refreshMu.Unlock()

	// another caller may have refreshed or signed out while we waited
	s, err = a.current(ctx)
	if err != nil || s == nil {
		return nil, err
	}
	if !a.expiring(s) {
		return copySession(s), nil
	}

	refreshed, err := a.refresh(ctx, s.RefreshToken)
	if err != nil {
		var ae *provider.AuthError
		if errors.As(err, &ae) {
			// The refresh token is no longer accepted: the session is over.
			a.cfg.Logger.Warn("session refresh rejected", "code", ae.Code, "status", ae.Status)
			if clearErr := a.store(ctx, nil); clearErr != nil {
				a.cfg.Logger.Error("clear token session failed", "err", clearErr)
			}
			a.events.emit(provider.EventSignedOut, nil)
			return nil, nil
		}
		return nil, err
	}

	if err := a.store(ctx, refreshed); err != nil {
		return nil, err
	}
	a.events.emit(provider.EventTokenRefreshed, refreshed)
	return copySession(refreshed), nil
}

func (a *Auth) GetUser(ctx context.Context) (*provider.User, error) {
	s, err := a.GetSession(ctx)
	if err != nil || s == nil {
		return nil, err
	}

	var u provider.User
	if err := a.req.do(ctx, http.MethodGet, "/auth/v1/user", nil, s.AccessToken, nil, nil, &u); err != nil {
		return nil, authErr(err)
	}
	return &u, nil
}

func (a *Auth) SignInWithPassword(ctx context.Context, email, password string) (*provider.Session, error) {
	var s provider.Session
	q := url.Values{"grant_type": {"password"}}
	if err := a.req.do(ctx, http.MethodPost, "/auth/v1/token", q, "", nil, passwordGrant{Email: email, Password: password}, &s); err != nil {
		return nil, authErr(err)
	}

	if err := a.store(ctx, &s); err != nil {
		return nil, err
	}
	a.events.emit(provider.EventSignedIn, &s)
	return copySession(&s), nil
}

func (a *Auth) SignUp(ctx context.Context, email, password string, opts provider.SignUpOptions) (*provider.User, *provider.Session, error) {
	in := signUpRequest{
		Email:           email,
		Password:        password,
		Data:            opts.Data,
		EmailRedirectTo: opts.EmailRedirectTo,
	}

	var out signUpResponse
	if err := a.req.do(ctx, http.MethodPost, "/auth/v1/signup", nil, "", nil, in, &out); err != nil {
		return nil, nil, authErr(err)
	}

	if out.Session != nil {
		if err := a.store(ctx, out.Session); err != nil {
			return nil, nil, err
		}
		a.events.emit(provider.EventSignedIn, out.Session)
	}

	user := out.User
	return &user, copySession(out.Session), nil
}

// SignOut revokes the refresh token and forgets the local session. A token
// the backend no longer recognizes still counts as signed out.
func (a *Auth) SignOut(ctx context.Context) error {
	s, err := a.current(ctx)
	if err != nil {
		return err
	}

	if s != nil {
		err := a.req.do(ctx, http.MethodPost, "/auth/v1/logout", nil, s.AccessToken, nil, refreshGrant{RefreshToken: s.RefreshToken}, nil)
		var he *httpError
		if err != nil && !(errors.As(err, &he) && he.Status == http.StatusUnauthorized) {
			return authErr(err)
		}
	}

	if err := a.store(ctx, nil); err != nil {
		return err
	}
	a.events.emit(provider.EventSignedOut, nil)
	return nil
}

func (a *Auth) UpdateUser(ctx context.Context, attrs provider.UserAttributes) (*provider.User, error) {
	s, err := a.GetSession(ctx)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, &provider.AuthError{Status: http.StatusUnauthorized, Code: "no_session", Message: "not signed in"}
	}

	var u provider.User
	if err := a.req.do(ctx, http.MethodPut, "/auth/v1/user", nil, s.AccessToken, nil, attrs, &u); err != nil {
		return nil, authErr(err)
	}

	s.User = u
	if err := a.store(ctx, s); err != nil {
		return nil, err
	}
	a.events.emit(provider.EventUserUpdated, s)
	return &u, nil
}

// OnAuthStateChange registers h. It receives INITIAL_SESSION first with the
// stored session, then every later event in emission order.
func (a *Auth) OnAuthStateChange(h provider.StateChangeHandler) func() {
	s, err := a.current(context.Background())
	if err != nil {
		a.cfg.Logger.Warn("load token session failed", "err", err)
	}
	return a.events.subscribe(h, s)
}

// AccessToken returns the current access token, refreshing it if needed,
// or "" when signed out. Rest uses it to authorize row access.
func (a *Auth) AccessToken(ctx context.Context) (string, error) {
	s, err := a.GetSession(ctx)
	if err != nil || s == nil {
		return "", err
	}
	return s.AccessToken, nil
}

func (a *Auth) refresh(ctx context.Context, refreshToken string) (*provider.Session, error) {
	var s provider.Session
	q := url.Values{"grant_type": {"refresh_token"}}
	if err := a.req.do(ctx, http.MethodPost, "/auth/v1/token", q, "", nil, refreshGrant{RefreshToken: refreshToken}, &s); err != nil {
		return nil, authErr(err)
	}
	return &s, nil
}

// expiring reads exp from the access token without verifying it; the
// backend verifies. ExpiresAt is the fallback for opaque tokens.
func (a *Auth) expiring(s *provider.Session) bool {
	exp := s.ExpiresAt

	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(s.AccessToken, &claims); err == nil && claims.ExpiresAt != nil {
		exp = claims.ExpiresAt.Time
	}

	if exp.IsZero() {
		return false
	}
	return a.cfg.Now().Add(a.cfg.RefreshMargin).After(exp)
}

func (a *Auth) current(ctx context.Context) (*provider.Session, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.loaded {
		return copySession(a.session), nil
	}

	raw, err := a.cfg.Storage.Get(ctx, persist.KeyToken)
	switch {
	case errors.Is(err, persist.ErrNotFound):
		a.session = nil
	case err != nil:
		return nil, fmt.Errorf("load token session: %w", err)
	default:
		var s provider.Session
		if err := json.Unmarshal(raw, &s); err != nil {
			a.cfg.Logger.Warn("discarding unreadable token session", "err", err)
			a.session = nil
		} else {
			a.session = &s
		}
	}

	a.loaded = true
	return copySession(a.session), nil
}

func (a *Auth) store(ctx context.Context, s *provider.Session) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if s == nil {
		a.session = nil
		a.loaded = true
		if err := a.cfg.Storage.Remove(ctx, persist.KeyToken); err != nil {
			return fmt.Errorf("clear token session: %w", err)
		}
		return nil
	}

	if s.ExpiresAt.IsZero() && s.ExpiresIn > 0 {
		s.ExpiresAt = a.cfg.Now().Add(time.Duration(s.ExpiresIn) * time.Second)
	}

	b, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode token session: %w", err)
	}
	if err := a.cfg.Storage.Set(ctx, persist.KeyToken, b); err != nil {
		return fmt.Errorf("save token session: %w", err)
	}

	a.session = copySession(s)
	a.loaded = true
	return nil
}

// authErr turns backend rejections into *provider.AuthError. Transport
// failures pass through untouched.
func authErr(err error) error {
	var he *httpError
	if errors.As(err, &he) {
		return &provider.AuthError{Status: he.Status, Code: he.Code, Message: he.Message}
	}
	return err
}
