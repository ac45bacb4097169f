package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/geocoder89/kidshub/internal/auth"
	"github.com/geocoder89/kidshub/internal/domain/account"
	"github.com/geocoder89/kidshub/internal/http/handlers"
	"github.com/geocoder89/kidshub/internal/http/middlewares"
	"github.com/geocoder89/kidshub/internal/provider"
	"github.com/geocoder89/kidshub/internal/repo/postgres"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// fakeAccounts keeps accounts in a map keyed by id.
type fakeAccounts struct {
	mu   sync.Mutex
	byID map[string]account.Account

	updateFn func(ctx context.Context, id string, upd account.Update) (account.Account, error)
}

func newFakeAccounts() *fakeAccounts {
	return &fakeAccounts{byID: map[string]account.Account{}}
}

func (f *fakeAccounts) Create(_ context.Context, email, hash string, meta map[string]any) (account.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	email = strings.ToLower(email)
	for _, a := range f.byID {
		if a.Email == email {
			return account.Account{}, account.ErrEmailAlreadyUsed
		}
	}
	now := time.Now().UTC()
	a := account.Account{ID: uuid.NewString(), Email: email, PasswordHash: hash, Metadata: meta, CreatedAt: now, UpdatedAt: now}
	f.byID[a.ID] = a
	return a, nil
}

func (f *fakeAccounts) GetByEmail(_ context.Context, email string) (account.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, a := range f.byID {
		if a.Email == strings.ToLower(email) {
			return a, nil
		}
	}
	return account.Account{}, account.ErrNotFound
}

func (f *fakeAccounts) GetByID(_ context.Context, id string) (account.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	a, ok := f.byID[id]
	if !ok {
		return account.Account{}, account.ErrNotFound
	}
	return a, nil
}

func (f *fakeAccounts) Update(ctx context.Context, id string, upd account.Update) (account.Account, error) {
	if f.updateFn != nil {
		return f.updateFn(ctx, id, upd)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	a, ok := f.byID[id]
	if !ok {
		return account.Account{}, account.ErrNotFound
	}
	if upd.Email != nil {
		a.Email = *upd.Email
	}
	if upd.PasswordHash != nil {
		a.PasswordHash = *upd.PasswordHash
	}
	for k, v := range upd.Metadata {
		if a.Metadata == nil {
			a.Metadata = map[string]any{}
		}
		a.Metadata[k] = v
	}
	f.byID[id] = a
	return a, nil
}

type fakeRefreshTokens struct {
	mu      sync.Mutex
	created []postgres.RefreshTokenRow
	revoked []string

	rotateFn func(ctx context.Context, oldID, oldHash string, next postgres.RefreshTokenRow) error
}

func (f *fakeRefreshTokens) Create(_ context.Context, row postgres.RefreshTokenRow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, row)
	return nil
}

func (f *fakeRefreshTokens) Rotate(ctx context.Context, oldID, oldHash string, next postgres.RefreshTokenRow) error {
	if f.rotateFn != nil {
		return f.rotateFn(ctx, oldID, oldHash, next)
	}
	return nil
}

func (f *fakeRefreshTokens) Revoke(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revoked = append(f.revoked, id)
	return nil
}

type authFixture struct {
	router   *gin.Engine
	accounts *fakeAccounts
	tokens   *fakeRefreshTokens
	jwt      *auth.Manager
}

func newAuthFixture() *authFixture {
	fx := &authFixture{
		accounts: newFakeAccounts(),
		tokens:   &fakeRefreshTokens{},
		jwt:      auth.NewManager("test-secret", time.Hour, 24*time.Hour),
	}

	h := handlers.NewAuthHandler(fx.accounts, fx.tokens, fx.jwt, nil, nil)
	authMW := middlewares.NewAuthMiddleware(fx.jwt)

	r := gin.New()
	g := r.Group("/auth/v1")
	g.POST("/signup", h.SignUp)
	g.POST("/token", h.Token)
	g.POST("/logout", authMW.RequireAuth(), h.Logout)
	g.GET("/user", authMW.RequireAuth(), h.User)
	g.PUT("/user", authMW.RequireAuth(), h.UpdateUser)

	fx.router = r
	return fx
}

func (fx *authFixture) do(method, path, token, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	fx.router.ServeHTTP(w, req)
	return w
}

func (fx *authFixture) signUp(t *testing.T, email string) provider.Session {
	t.Helper()

	w := fx.do(http.MethodPost, "/auth/v1/signup", "",
		`{"email":"`+email+`","password":"secret123","data":{"user_type":"guardian","first_name":"Ana"}}`)
	if w.Code != http.StatusOK {
		t.Fatalf("signup: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var out struct {
		User    provider.User    `json:"user"`
		Session provider.Session `json:"session"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode signup: %v", err)
	}
	return out.Session
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()

	var resp struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error body %q: %v", w.Body.String(), err)
	}
	return resp.Error.Code
}

func TestAuth_SignUpReturnsSession(t *testing.T) {
	fx := newAuthFixture()

	s := fx.signUp(t, "Ana@Example.com")

	if s.AccessToken == "" || s.RefreshToken == "" {
		t.Fatalf("expected both tokens, got %+v", s)
	}
	if s.TokenType != "bearer" {
		t.Fatalf("expected bearer token type, got %q", s.TokenType)
	}
	if s.User.Email != "ana@example.com" {
		t.Fatalf("expected lowercased email, got %q", s.User.Email)
	}
	if s.User.UserMetadata["user_type"] != "guardian" {
		t.Fatalf("expected metadata to round trip, got %v", s.User.UserMetadata)
	}
	if len(fx.tokens.created) != 1 {
		t.Fatalf("expected one stored refresh token, got %d", len(fx.tokens.created))
	}
	if fx.tokens.created[0].TokenHash == s.RefreshToken {
		t.Fatalf("refresh token must be stored hashed")
	}
}

func TestAuth_SignUpDuplicateEmail(t *testing.T) {
	fx := newAuthFixture()
	fx.signUp(t, "ana@example.com")

	w := fx.do(http.MethodPost, "/auth/v1/signup", "", `{"email":"ana@example.com","password":"secret123"}`)

	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", w.Code)
	}
	if code := errorCode(t, w); code != "user_already_exists" {
		t.Fatalf("expected user_already_exists, got %q", code)
	}
}

func TestAuth_SignUpShortPassword(t *testing.T) {
	fx := newAuthFixture()

	w := fx.do(http.MethodPost, "/auth/v1/signup", "", `{"email":"ana@example.com","password":"123"}`)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestAuth_PasswordGrant(t *testing.T) {
	fx := newAuthFixture()
	fx.signUp(t, "ana@example.com")

	tests := []struct {
		name     string
		body     string
		wantCode int
	}{
		{"valid", `{"email":"ana@example.com","password":"secret123"}`, http.StatusOK},
		{"wrong password", `{"email":"ana@example.com","password":"nope1234"}`, http.StatusBadRequest},
		{"unknown email", `{"email":"bob@example.com","password":"secret123"}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := fx.do(http.MethodPost, "/auth/v1/token?grant_type=password", "", tt.body)
			if w.Code != tt.wantCode {
				t.Fatalf("expected %d, got %d: %s", tt.wantCode, w.Code, w.Body.String())
			}
			if tt.wantCode == http.StatusBadRequest {
				if code := errorCode(t, w); code != "invalid_credentials" {
					t.Fatalf("expected invalid_credentials, got %q", code)
				}
			}
		})
	}
}

func TestAuth_UnsupportedGrant(t *testing.T) {
	fx := newAuthFixture()

	w := fx.do(http.MethodPost, "/auth/v1/token?grant_type=magic", "", `{}`)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if code := errorCode(t, w); code != "unsupported_grant_type" {
		t.Fatalf("expected unsupported_grant_type, got %q", code)
	}
}

func TestAuth_RefreshGrantRotates(t *testing.T) {
	fx := newAuthFixture()
	s := fx.signUp(t, "ana@example.com")

	var gotOldID, gotOldHash string
	var gotNext postgres.RefreshTokenRow
	fx.tokens.rotateFn = func(_ context.Context, oldID, oldHash string, next postgres.RefreshTokenRow) error {
		gotOldID, gotOldHash, gotNext = oldID, oldHash, next
		return nil
	}

	w := fx.do(http.MethodPost, "/auth/v1/token?grant_type=refresh_token", "",
		`{"refresh_token":"`+s.RefreshToken+`"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var next provider.Session
	if err := json.Unmarshal(w.Body.Bytes(), &next); err != nil {
		t.Fatalf("decode: %v", err)
	}

	if gotOldID != fx.tokens.created[0].ID {
		t.Fatalf("expected rotation of %s, got %s", fx.tokens.created[0].ID, gotOldID)
	}
	if gotOldHash != fx.jwt.HashRefreshToken(s.RefreshToken) {
		t.Fatalf("expected old token hash to be presented")
	}
	if gotNext.TokenHash != fx.jwt.HashRefreshToken(next.RefreshToken) {
		t.Fatalf("stored hash does not match the issued refresh token")
	}
	if next.RefreshToken == s.RefreshToken {
		t.Fatalf("expected a new refresh token")
	}
}

func TestAuth_RefreshGrantRejectsRevokedToken(t *testing.T) {
	fx := newAuthFixture()
	s := fx.signUp(t, "ana@example.com")

	fx.tokens.rotateFn = func(context.Context, string, string, postgres.RefreshTokenRow) error {
		return postgres.ErrRefreshTokenRevoked
	}

	w := fx.do(http.MethodPost, "/auth/v1/token?grant_type=refresh_token", "",
		`{"refresh_token":"`+s.RefreshToken+`"}`)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if code := errorCode(t, w); code != "invalid_grant" {
		t.Fatalf("expected invalid_grant, got %q", code)
	}
}

func TestAuth_RefreshGrantRejectsAccessToken(t *testing.T) {
	fx := newAuthFixture()
	s := fx.signUp(t, "ana@example.com")

	w := fx.do(http.MethodPost, "/auth/v1/token?grant_type=refresh_token", "",
		`{"refresh_token":"`+s.AccessToken+`"}`)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestAuth_UserRequiresToken(t *testing.T) {
	fx := newAuthFixture()

	w := fx.do(http.MethodGet, "/auth/v1/user", "", "")

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestAuth_UserReturnsCaller(t *testing.T) {
	fx := newAuthFixture()
	s := fx.signUp(t, "ana@example.com")

	w := fx.do(http.MethodGet, "/auth/v1/user", s.AccessToken, "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var u provider.User
	if err := json.Unmarshal(w.Body.Bytes(), &u); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if u.ID != s.User.ID {
		t.Fatalf("expected user %s, got %s", s.User.ID, u.ID)
	}
}

func TestAuth_UpdateUserMergesMetadata(t *testing.T) {
	fx := newAuthFixture()
	s := fx.signUp(t, "ana@example.com")

	w := fx.do(http.MethodPut, "/auth/v1/user", s.AccessToken, `{"data":{"phone":"+359888123456"}}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var u provider.User
	if err := json.Unmarshal(w.Body.Bytes(), &u); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if u.UserMetadata["phone"] != "+359888123456" || u.UserMetadata["first_name"] != "Ana" {
		t.Fatalf("expected merged metadata, got %v", u.UserMetadata)
	}
}

func TestAuth_UpdateUserEmailTaken(t *testing.T) {
	fx := newAuthFixture()
	s := fx.signUp(t, "ana@example.com")

	fx.accounts.updateFn = func(context.Context, string, account.Update) (account.Account, error) {
		return account.Account{}, account.ErrEmailAlreadyUsed
	}

	w := fx.do(http.MethodPut, "/auth/v1/user", s.AccessToken, `{"email":"bob@example.com"}`)

	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", w.Code)
	}
	if code := errorCode(t, w); code != "email_exists" {
		t.Fatalf("expected email_exists, got %q", code)
	}
}

func TestAuth_LogoutRevokesOnlyOwnToken(t *testing.T) {
	fx := newAuthFixture()
	ana := fx.signUp(t, "ana@example.com")
	bob := fx.signUp(t, "bob@example.com")

	w := fx.do(http.MethodPost, "/auth/v1/logout", ana.AccessToken, `{"refresh_token":"`+bob.RefreshToken+`"}`)
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
	if len(fx.tokens.revoked) != 0 {
		t.Fatalf("another user's token must not be revoked, got %v", fx.tokens.revoked)
	}

	w = fx.do(http.MethodPost, "/auth/v1/logout", ana.AccessToken, `{"refresh_token":"`+ana.RefreshToken+`"}`)
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
	if len(fx.tokens.revoked) != 1 || fx.tokens.revoked[0] != fx.tokens.created[0].ID {
		t.Fatalf("expected ana's token revoked, got %v", fx.tokens.revoked)
	}
}

func TestAuth_LogoutWithoutBody(t *testing.T) {
	fx := newAuthFixture()
	s := fx.signUp(t, "ana@example.com")

	w := fx.do(http.MethodPost, "/auth/v1/logout", s.AccessToken, "")

	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
}
