package db

import (
	"context"
	"errors"

	"github.com/geocoder89/kidshub/internal/security"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type SeedOrganizer struct {
	Email            string
	Password         string
	OrganizationName string
}

// EnsureOrganizer creates an organizer account and its profile row when the
// email is not registered yet. An empty email or password is a no-op.
func EnsureOrganizer(ctx context.Context, pool *pgxpool.Pool, seed SeedOrganizer) error {
	if seed.Email == "" || seed.Password == "" {
		return nil
	}

	var dummy string
	err := pool.QueryRow(ctx, `SELECT id FROM accounts WHERE email = $1`, seed.Email).Scan(&dummy)
	if err == nil {
		return nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return err
	}

	hash, err := security.HashPassword(seed.Password)
	if err != nil {
		return err
	}

	tx, err := pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	id := uuid.NewString()
	meta := map[string]any{
		"user_type":         "organizer",
		"organization_name": seed.OrganizationName,
	}

	if _, err = tx.Exec(ctx,
		`INSERT INTO accounts (id, email, password_hash, metadata) VALUES ($1, $2, $3, $4)`,
		id, seed.Email, hash, meta,
	); err != nil {
		return err
	}

	if _, err = tx.Exec(ctx,
		`INSERT INTO organizers (id, email, organization_name) VALUES ($1, $2, $3)`,
		id, seed.Email, seed.OrganizationName,
	); err != nil {
		return err
	}

	return tx.Commit(ctx)
}
