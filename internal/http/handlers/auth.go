package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/geocoder89/kidshub/internal/auth"
	"github.com/geocoder89/kidshub/internal/domain/account"
	"github.com/geocoder89/kidshub/internal/http/middlewares"
	"github.com/geocoder89/kidshub/internal/observability"
	"github.com/geocoder89/kidshub/internal/provider"
	"github.com/geocoder89/kidshub/internal/repo/postgres"
	"github.com/geocoder89/kidshub/internal/security"
	"github.com/gin-gonic/gin"
)

type AccountStore interface {
	Create(ctx context.Context, email, passwordHash string, metadata map[string]any) (account.Account, error)
	GetByEmail(ctx context.Context, email string) (account.Account, error)
	GetByID(ctx context.Context, id string) (account.Account, error)
	Update(ctx context.Context, id string, upd account.Update) (account.Account, error)
}

type RefreshTokenStore interface {
	Create(ctx context.Context, row postgres.RefreshTokenRow) error
	Rotate(ctx context.Context, oldID, oldHash string, next postgres.RefreshTokenRow) error
	Revoke(ctx context.Context, id string) error
}

type TokenIssuer interface {
	GenerateAccessToken(userID, email string) (string, time.Time, error)
	GenerateRefreshToken(userID, email string) (raw string, jti string, expiresAt time.Time, err error)
	VerifyRefreshToken(raw string) (*auth.Claims, error)
	HashRefreshToken(raw string) string
}

type AuthHandler struct {
	accounts AccountStore
	tokens   RefreshTokenStore
	jwt      TokenIssuer
	prom     *observability.Prom
	log      *slog.Logger
}

func NewAuthHandler(accounts AccountStore, tokens RefreshTokenStore, jwt TokenIssuer, prom *observability.Prom, log *slog.Logger) *AuthHandler {
	if log == nil {
		log = slog.Default()
	}
	return &AuthHandler{accounts: accounts, tokens: tokens, jwt: jwt, prom: prom, log: log}
}

type signUpRequest struct {
	Email           string         `json:"email" validate:"required,email"`
	Password        string         `json:"password" validate:"required,min=6,max=72"`
	Data            map[string]any `json:"data"`
	EmailRedirectTo string         `json:"email_redirect_to" validate:"omitempty,url"`
}

type passwordGrantRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type refreshGrantRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type logoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type updateUserRequest struct {
	Email    *string        `json:"email" validate:"omitempty,email"`
	Password *string        `json:"password" validate:"omitempty,min=6,max=72"`
	Data     map[string]any `json:"data"`
}

// POST /auth/v1/signup. Accounts are confirmed on creation, so a session
// comes back with the user.
func (h *AuthHandler) SignUp(ctx *gin.Context) {
	var req signUpRequest
	if !BindJSON(ctx, &req) {
		return
	}

	hash, err := security.HashPassword(req.Password)
	if err != nil {
		RespondBadRequest(ctx, "Password is too weak", nil)
		return
	}

	acc, err := h.accounts.Create(ctx.Request.Context(), req.Email, hash, req.Data)
	if err != nil {
		if errors.Is(err, account.ErrEmailAlreadyUsed) {
			RespondError(ctx, http.StatusUnprocessableEntity, "user_already_exists", "User already registered", nil)
			return
		}
		h.log.ErrorContext(ctx.Request.Context(), "signup failed", "err", err)
		RespondInternal(ctx, "Could not create account")
		return
	}

	session, err := h.issue(ctx.Request.Context(), acc)
	if err != nil {
		h.log.ErrorContext(ctx.Request.Context(), "issue session failed", "err", err, "user_id", acc.ID)
		RespondInternal(ctx, "Could not create session")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"user":    toUser(acc),
		"session": session,
	})
}

// POST /auth/v1/token?grant_type=password|refresh_token
func (h *AuthHandler) Token(ctx *gin.Context) {
	switch grant := ctx.Query("grant_type"); grant {
	case "password":
		h.passwordGrant(ctx)
	case "refresh_token":
		h.refreshGrant(ctx)
	default:
		RespondError(ctx, http.StatusBadRequest, "unsupported_grant_type", "grant_type must be password or refresh_token", nil)
	}
}

func (h *AuthHandler) passwordGrant(ctx *gin.Context) {
	var req passwordGrantRequest
	if !BindJSON(ctx, &req) {
		return
	}
	c := ctx.Request.Context()

	acc, err := h.accounts.GetByEmail(c, req.Email)
	if err != nil && !errors.Is(err, account.ErrNotFound) {
		h.prom.GrantResult("password", "error")
		h.log.ErrorContext(c, "lookup account failed", "err", err)
		RespondInternal(ctx, "Could not sign in")
		return
	}

	// unknown email still pays for a bcrypt compare
	if err := security.CheckPassword(acc.PasswordHash, req.Password); err != nil {
		h.prom.GrantResult("password", "denied")
		RespondError(ctx, http.StatusBadRequest, "invalid_credentials", "Invalid login credentials", nil)
		return
	}

	session, err := h.issue(c, acc)
	if err != nil {
		h.prom.GrantResult("password", "error")
		h.log.ErrorContext(c, "issue session failed", "err", err, "user_id", acc.ID)
		RespondInternal(ctx, "Could not sign in")
		return
	}

	h.prom.GrantResult("password", "ok")
	ctx.JSON(http.StatusOK, session)
}

func (h *AuthHandler) refreshGrant(ctx *gin.Context) {
	var req refreshGrantRequest
	if !BindJSON(ctx, &req) {
		return
	}
	c := ctx.Request.Context()

	deny := func() {
		h.prom.GrantResult("refresh_token", "denied")
		RespondError(ctx, http.StatusBadRequest, "invalid_grant", "Invalid refresh token", nil)
	}

	claims, err := h.jwt.VerifyRefreshToken(req.RefreshToken)
	if err != nil {
		deny()
		return
	}

	acc, err := h.accounts.GetByID(c, claims.UserID())
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			deny()
			return
		}
		h.prom.GrantResult("refresh_token", "error")
		RespondInternal(ctx, "Could not refresh session")
		return
	}

	raw, jti, exp, err := h.jwt.GenerateRefreshToken(acc.ID, acc.Email)
	if err != nil {
		h.prom.GrantResult("refresh_token", "error")
		RespondInternal(ctx, "Could not refresh session")
		return
	}

	next := postgres.RefreshTokenRow{ID: jti, UserID: acc.ID, TokenHash: h.jwt.HashRefreshToken(raw), ExpiresAt: exp}
	err = h.tokens.Rotate(c, claims.ID, h.jwt.HashRefreshToken(req.RefreshToken), next)
	if err != nil {
		switch {
		case errors.Is(err, postgres.ErrRefreshTokenNotFound),
			errors.Is(err, postgres.ErrRefreshTokenRevoked),
			errors.Is(err, postgres.ErrRefreshTokenExpired):
			if errors.Is(err, postgres.ErrRefreshTokenRevoked) {
				h.log.WarnContext(c, "revoked refresh token presented", "user_id", acc.ID)
			}
			deny()
		default:
			h.prom.GrantResult("refresh_token", "error")
			h.log.ErrorContext(c, "rotate refresh token failed", "err", err)
			RespondInternal(ctx, "Could not refresh session")
		}
		return
	}

	access, accessExp, err := h.jwt.GenerateAccessToken(acc.ID, acc.Email)
	if err != nil {
		h.prom.GrantResult("refresh_token", "error")
		RespondInternal(ctx, "Could not refresh session")
		return
	}

	h.prom.GrantResult("refresh_token", "ok")
	ctx.JSON(http.StatusOK, newSession(acc, access, accessExp, raw))
}

// POST /auth/v1/logout. Revokes the presented refresh token if it belongs
// to the caller; the access token simply expires.
func (h *AuthHandler) Logout(ctx *gin.Context) {
	var req logoutRequest
	if ctx.Request.ContentLength != 0 {
		if !BindJSON(ctx, &req) {
			return
		}
	}

	userID, _ := middlewares.UserIDFromContext(ctx)

	if req.RefreshToken != "" {
		claims, err := h.jwt.VerifyRefreshToken(req.RefreshToken)
		if err == nil && claims.UserID() == userID {
			if err := h.tokens.Revoke(ctx.Request.Context(), claims.ID); err != nil {
				h.log.ErrorContext(ctx.Request.Context(), "revoke refresh token failed", "err", err, "user_id", userID)
				RespondInternal(ctx, "Could not sign out")
				return
			}
		}
	}

	ctx.Status(http.StatusNoContent)
}

// GET /auth/v1/user
func (h *AuthHandler) User(ctx *gin.Context) {
	acc, ok := h.caller(ctx)
	if !ok {
		return
	}
	ctx.JSON(http.StatusOK, toUser(acc))
}

// PUT /auth/v1/user
func (h *AuthHandler) UpdateUser(ctx *gin.Context) {
	var req updateUserRequest
	if !BindJSON(ctx, &req) {
		return
	}

	userID, _ := middlewares.UserIDFromContext(ctx)
	upd := account.Update{Email: req.Email, Metadata: req.Data}

	if req.Password != nil {
		hash, err := security.HashPassword(*req.Password)
		if err != nil {
			RespondBadRequest(ctx, "Password is too weak", nil)
			return
		}
		upd.PasswordHash = &hash
	}

	acc, err := h.accounts.Update(ctx.Request.Context(), userID, upd)
	if err != nil {
		switch {
		case errors.Is(err, account.ErrNotFound):
			RespondUnauthorized(ctx, "user_not_found", "User from token no longer exists")
		case errors.Is(err, account.ErrEmailAlreadyUsed):
			RespondError(ctx, http.StatusUnprocessableEntity, "email_exists", "Email address already in use", nil)
		default:
			h.log.ErrorContext(ctx.Request.Context(), "update user failed", "err", err, "user_id", userID)
			RespondInternal(ctx, "Could not update user")
		}
		return
	}

	ctx.JSON(http.StatusOK, toUser(acc))
}

func (h *AuthHandler) caller(ctx *gin.Context) (account.Account, bool) {
	userID, _ := middlewares.UserIDFromContext(ctx)

	acc, err := h.accounts.GetByID(ctx.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			RespondUnauthorized(ctx, "user_not_found", "User from token no longer exists")
			return account.Account{}, false
		}
		RespondInternal(ctx, "Could not load user")
		return account.Account{}, false
	}
	return acc, true
}

func (h *AuthHandler) issue(ctx context.Context, acc account.Account) (provider.Session, error) {
	access, accessExp, err := h.jwt.GenerateAccessToken(acc.ID, acc.Email)
	if err != nil {
		return provider.Session{}, err
	}

	raw, jti, exp, err := h.jwt.GenerateRefreshToken(acc.ID, acc.Email)
	if err != nil {
		return provider.Session{}, err
	}

	err = h.tokens.Create(ctx, postgres.RefreshTokenRow{
		ID:        jti,
		UserID:    acc.ID,
		TokenHash: h.jwt.HashRefreshToken(raw),
		ExpiresAt: exp,
	})
	if err != nil {
		return provider.Session{}, err
	}

	return newSession(acc, access, accessExp, raw), nil
}

func newSession(acc account.Account, access string, exp time.Time, refresh string) provider.Session {
	return provider.Session{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "bearer",
		ExpiresIn:    int(time.Until(exp).Seconds()),
		ExpiresAt:    exp,
		User:         toUser(acc),
	}
}

func toUser(acc account.Account) provider.User {
	meta := acc.Metadata
	if meta == nil {
		meta = map[string]any{}
	}
	return provider.User{
		ID:           acc.ID,
		Email:        strings.ToLower(acc.Email),
		UserMetadata: meta,
		CreatedAt:    acc.CreatedAt,
		UpdatedAt:    acc.UpdatedAt,
	}
}
