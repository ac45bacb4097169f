package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/geocoder89/kidshub/internal/config"
	"github.com/geocoder89/kidshub/internal/persist"
	"github.com/geocoder89/kidshub/internal/provider"
	"github.com/geocoder89/kidshub/internal/repo/memory"
	"github.com/geocoder89/kidshub/internal/session"
	"github.com/geocoder89/kidshub/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runDemo(t *testing.T, args ...string) (string, error) {
	t.Helper()

	rows := memory.NewStore()
	require.NoError(t, seedDemoCatalogue(context.Background(), rows))

	var out bytes.Buffer
	root := newRootCmdWith(appOptions{
		cfg:     config.ClientConfig{},
		out:     &out,
		storage: persist.NewMemoryStorage(),
		rows:    rows,
	})
	root.SetArgs(args)
	root.SetErr(&out)

	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCLI_WhoAmIInDemoMode(t *testing.T) {
	out, err := runDemo(t, "whoami")
	require.NoError(t, err)
	assert.Contains(t, out, "Not signed in (demo mode).")
}

func TestCLI_ListsDemoCatalogue(t *testing.T) {
	out, err := runDemo(t, "activities", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Junior Chess Club")
	assert.Contains(t, out, "Robotics Workshop")
}

func TestCLI_ListFiltersByCity(t *testing.T) {
	out, err := runDemo(t, "activities", "list", "--city", "Varna")
	require.NoError(t, err)
	assert.Contains(t, out, "Painting Saturday")
	assert.NotContains(t, out, "Junior Chess Club")
}

func TestCLI_SignInUnavailableInDemoMode(t *testing.T) {
	_, err := runDemo(t, "signin", "--email", "a@b.bg", "--password", "secret123")
	assert.ErrorIs(t, err, session.ErrDemoMode)
}

func TestCLI_MemberCommandsNeedAccount(t *testing.T) {
	_, err := runDemo(t, "children", "list")
	assert.ErrorIs(t, err, session.ErrDemoMode)
}

func TestCLI_SignUpRejectsInvalidPhone(t *testing.T) {
	_, err := runDemo(t, "signup", "--email", "a@b.bg", "--password", "secret123", "--phone", "12")
	assert.ErrorIs(t, err, errInvalidPhone)
}

func TestCLI_SignInSettlesBeforeExit(t *testing.T) {
	user := provider.User{
		ID:           "g1",
		Email:        "maria@example.bg",
		UserMetadata: map[string]any{"user_type": "guardian", "first_name": "Maria"},
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.URL.Path == "/auth/v1/token" && r.URL.Query().Get("grant_type") == "password":
			_ = json.NewEncoder(w).Encode(provider.Session{AccessToken: "opaque", RefreshToken: "r1", ExpiresIn: 3600, User: user})
		case r.URL.Path == "/auth/v1/user":
			_ = json.NewEncoder(w).Encode(user)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	rows := memory.NewStore()
	_, err := rows.Insert(context.Background(), store.TableGuardians, store.Row{
		"id": "g1", "email": "maria@example.bg", "first_name": "Maria", "last_name": "Ivanova",
	})
	require.NoError(t, err)

	storage := persist.NewMemoryStorage()
	var out bytes.Buffer
	root := newRootCmdWith(appOptions{
		cfg:     config.ClientConfig{URL: srv.URL, AnonKey: "anon"},
		out:     &out,
		storage: storage,
		rows:    rows,
	})
	root.SetArgs([]string{"signin", "--email", "maria@example.bg", "--password", "secret123"})
	root.SetErr(&out)

	require.NoError(t, root.ExecuteContext(context.Background()))
	assert.Contains(t, out.String(), "Signed in as Maria Ivanova (guardian)")

	raw, err := storage.Get(context.Background(), persist.KeySession)
	require.NoError(t, err)

	var snap struct {
		IsAuthenticated bool `json:"isAuthenticated"`
	}
	require.NoError(t, json.Unmarshal(raw, &snap))
	assert.True(t, snap.IsAuthenticated)
}

func TestNormalizePhone(t *testing.T) {
	got, err := normalizePhone("0888 123 456")
	require.NoError(t, err)
	assert.Equal(t, "+359888123456", got)

	got, err = normalizePhone("")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestAgeRange(t *testing.T) {
	assert.Equal(t, "all ages", ageRange(0, 0))
	assert.Equal(t, "4+", ageRange(4, 0))
	assert.Equal(t, "7-12", ageRange(7, 12))
}
