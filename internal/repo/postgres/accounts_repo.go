package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/geocoder89/kidshub/internal/domain/account"
	"github.com/geocoder89/kidshub/internal/observability"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type AccountsRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewAccountsRepo(pool *pgxpool.Pool, prom *observability.Prom) *AccountsRepo {
	return &AccountsRepo{pool: pool, prom: prom}
}

func (r *AccountsRepo) observe(op string, fn func() error) error {
	if r.prom != nil {
		return r.prom.ObserveDB(op, fn)
	}
	return fn()
}

const accountColumns = `id, email, password_hash, metadata, created_at, updated_at`

func scanAccount(row pgx.Row) (account.Account, error) {
	var a account.Account
	var meta []byte

	err := row.Scan(&a.ID, &a.Email, &a.PasswordHash, &meta, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return account.Account{}, account.ErrNotFound
		}
		return account.Account{}, err
	}

	a.Metadata = map[string]any{}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &a.Metadata); err != nil {
			return account.Account{}, err
		}
	}
	return a, nil
}

func (r *AccountsRepo) Create(ctx context.Context, email, passwordHash string, metadata map[string]any) (account.Account, error) {
	if metadata == nil {
		metadata = map[string]any{}
	}
	meta, err := json.Marshal(metadata)
	if err != nil {
		return account.Account{}, err
	}

	var a account.Account
	err = r.observe("accounts.create", func() error {
		var err error
		a, err = scanAccount(r.pool.QueryRow(ctx, `
		INSERT INTO accounts (id, email, password_hash, metadata)
		VALUES ($1, $2, $3, $4)
		RETURNING `+accountColumns,
			uuid.NewString(), normalizeEmail(email), passwordHash, meta))
		return err
	})
	if err != nil {
		if IsUniqueViolation(err) {
			return account.Account{}, account.ErrEmailAlreadyUsed
		}
		return account.Account{}, err
	}
	return a, nil
}

func (r *AccountsRepo) GetByEmail(ctx context.Context, email string) (account.Account, error) {
	var a account.Account
	err := r.observe("accounts.get_by_email", func() error {
		var err error
		a, err = scanAccount(r.pool.QueryRow(ctx,
			`SELECT `+accountColumns+` FROM accounts WHERE email = $1`, normalizeEmail(email)))
		return err
	})
	return a, err
}

func (r *AccountsRepo) GetByID(ctx context.Context, id string) (account.Account, error) {
	var a account.Account
	err := r.observe("accounts.get_by_id", func() error {
		var err error
		a, err = scanAccount(r.pool.QueryRow(ctx,
			`SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id))
		return err
	})
	return a, err
}

// Update applies the non-nil fields; metadata keys are merged into the
// stored object.
func (r *AccountsRepo) Update(ctx context.Context, id string, upd account.Update) (account.Account, error) {
	var meta []byte
	if upd.Metadata != nil {
		var err error
		if meta, err = json.Marshal(upd.Metadata); err != nil {
			return account.Account{}, err
		}
	}

	var email *string
	if upd.Email != nil {
		e := normalizeEmail(*upd.Email)
		email = &e
	}

	var a account.Account
	err := r.observe("accounts.update", func() error {
		var err error
		a, err = scanAccount(r.pool.QueryRow(ctx, `
		UPDATE accounts
		SET email = COALESCE($2, email),
		    password_hash = COALESCE($3, password_hash),
		    metadata = CASE WHEN $4::jsonb IS NULL THEN metadata ELSE metadata || $4::jsonb END,
		    updated_at = NOW()
		WHERE id = $1
		RETURNING `+accountColumns,
			id, email, upd.PasswordHash, meta))
		return err
	})
	if err != nil {
		if IsUniqueViolation(err) {
			return account.Account{}, account.ErrEmailAlreadyUsed
		}
		return account.Account{}, err
	}
	return a, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
