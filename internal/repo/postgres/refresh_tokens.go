package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/geocoder89/kidshub/internal/observability"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrRefreshTokenNotFound = errors.New("refresh token not found")
	ErrRefreshTokenRevoked  = errors.New("refresh token revoked")
	ErrRefreshTokenExpired  = errors.New("refresh token expired")
)

type RefreshTokenRow struct {
	ID         string
	UserID     string
	TokenHash  string
	ExpiresAt  time.Time
	RevokedAt  *time.Time
	ReplacedBy *string
	CreatedAt  time.Time
}

type RefreshTokensRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewRefreshTokensRepo(pool *pgxpool.Pool, prom *observability.Prom) *RefreshTokensRepo {
	return &RefreshTokensRepo{pool: pool, prom: prom}
}

func (r *RefreshTokensRepo) observe(op string, fn func() error) error {
	if r.prom != nil {
		return r.prom.ObserveDB(op, fn)
	}
	return fn()
}

func (r *RefreshTokensRepo) Create(ctx context.Context, row RefreshTokenRow) error {
	return r.observe("refresh_tokens.create", func() error {
		return r.create(ctx, r.pool, row)
	})
}

func (r *RefreshTokensRepo) create(ctx context.Context, q querier, row RefreshTokenRow) error {
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	_, err := q.Exec(ctx, `
		INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at, revoked_at, replaced_by, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		`,
		row.ID, row.UserID, row.TokenHash, row.ExpiresAt, row.RevokedAt, row.ReplacedBy, row.CreatedAt,
	)
	return err
}

// Rotate swaps the presented token (oldID, oldHash) for next. The old row is
// locked so two concurrent refreshes cannot both succeed. Presenting an
// already rotated token revokes every token of that user.
func (r *RefreshTokensRepo) Rotate(ctx context.Context, oldID, oldHash string, next RefreshTokenRow) (err error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	var cur RefreshTokenRow
	err = r.observe("refresh_tokens.rotate.get_for_update", func() error {
		var err error
		cur, err = getForUpdate(ctx, tx, oldID)
		return err
	})
	if err != nil {
		return err
	}

	if cur.TokenHash != oldHash || cur.UserID != next.UserID {
		return ErrRefreshTokenNotFound
	}

	if cur.RevokedAt != nil {
		if cur.ReplacedBy != nil {
			// reuse of a rotated token
			if e := revokeAllForUser(ctx, tx, cur.UserID); e != nil {
				return e
			}
			if e := tx.Commit(ctx); e != nil {
				return e
			}
		}
		return ErrRefreshTokenRevoked
	}

	if time.Now().After(cur.ExpiresAt) {
		return ErrRefreshTokenExpired
	}

	err = r.observe("refresh_tokens.rotate.swap", func() error {
		if err := r.create(ctx, tx, next); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `
		UPDATE refresh_tokens
		SET revoked_at = NOW(), replaced_by = $2
		WHERE id = $1
		`, oldID, next.ID)
		return err
	})
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// Revoke is idempotent; revoking an unknown or revoked token is not an error.
func (r *RefreshTokensRepo) Revoke(ctx context.Context, id string) error {
	return r.observe("refresh_tokens.revoke", func() error {
		_, err := r.pool.Exec(ctx, `
		UPDATE refresh_tokens
		SET revoked_at = NOW()
		WHERE id = $1 AND revoked_at IS NULL
		`, id)
		return err
	})
}

func (r *RefreshTokensRepo) RevokeAllForUser(ctx context.Context, userID string) error {
	return r.observe("refresh_tokens.revoke_all", func() error {
		return revokeAllForUser(ctx, r.pool, userID)
	})
}

// Locks the row to prevent concurrent refresh races
func getForUpdate(ctx context.Context, tx pgx.Tx, id string) (RefreshTokenRow, error) {
	var row RefreshTokenRow

	err := tx.QueryRow(ctx, `
		SELECT id, user_id, token_hash, expires_at, revoked_at, replaced_by, created_at
		FROM refresh_tokens
		WHERE id = $1
		FOR UPDATE
	`, id).Scan(
		&row.ID,
		&row.UserID,
		&row.TokenHash,
		&row.ExpiresAt,
		&row.RevokedAt,
		&row.ReplacedBy,
		&row.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return RefreshTokenRow{}, ErrRefreshTokenNotFound
		}
		return RefreshTokenRow{}, err
	}

	return row, nil
}

func revokeAllForUser(ctx context.Context, q querier, userID string) error {
	_, err := q.Exec(ctx, `
		UPDATE refresh_tokens
		SET revoked_at = NOW()
		WHERE user_id = $1 AND revoked_at IS NULL
	`, userID)
	return err
}
