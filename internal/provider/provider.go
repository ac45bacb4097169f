// Package provider describes the identity provider session API the client
// depends on. internal/client implements it over HTTP.
package provider

import (
	"context"
	"fmt"
	"time"
)

type AuthEvent string

const (
	EventSignedIn       AuthEvent = "SIGNED_IN"
	EventSignedOut      AuthEvent = "SIGNED_OUT"
	EventTokenRefreshed AuthEvent = "TOKEN_REFRESHED"
	EventUserUpdated    AuthEvent = "USER_UPDATED"
	EventInitialSession AuthEvent = "INITIAL_SESSION"
)

// Active reports whether the event carries a live session.
func (e AuthEvent) Active() bool {
	switch e {
	case EventSignedIn, EventTokenRefreshed, EventUserUpdated, EventInitialSession:
		return true
	default:
		return false
	}
}

type User struct {
	ID           string         `json:"id"`
	Email        string         `json:"email"`
	UserMetadata map[string]any `json:"user_metadata"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	ExpiresIn    int       `json:"expires_in"`
	ExpiresAt    time.Time `json:"expires_at"`
	User         User      `json:"user"`
}

type SignUpOptions struct {
	Data            map[string]any
	EmailRedirectTo string
}

// UserAttributes is a partial update. Nil fields are left alone; Data is
// merged into the existing metadata.
type UserAttributes struct {
	Email    *string        `json:"email,omitempty"`
	Password *string        `json:"password,omitempty"`
	Data     map[string]any `json:"data,omitempty"`
}

type StateChangeHandler func(event AuthEvent, session *Session)

type Identity interface {
	// GetSession returns the current session or nil.
	GetSession(ctx context.Context) (*Session, error)
	// GetUser returns the user for the current session or nil.
	GetUser(ctx context.Context) (*User, error)
	SignInWithPassword(ctx context.Context, email, password string) (*Session, error)
	// SignUp creates an account. The session is nil when the provider does
	// not sign the new user in straight away.
	SignUp(ctx context.Context, email, password string, opts SignUpOptions) (*User, *Session, error)
	SignOut(ctx context.Context) error
	UpdateUser(ctx context.Context, attrs UserAttributes) (*User, error)
	OnAuthStateChange(handler StateChangeHandler) (unsubscribe func())
}

// AuthError is a rejection by the provider: bad credentials, an existing
// account, a weak password. Callers surface Message to the user.
type AuthError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *AuthError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("auth error (status %d): %s", e.Status, e.Message)
	}
	return fmt.Sprintf("auth error %s: %s", e.Code, e.Message)
}
