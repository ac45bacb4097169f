package postgres

import (
	"context"
	"errors"

	"github.com/geocoder89/kidshub/internal/domain/delivery"
	"github.com/geocoder89/kidshub/internal/observability"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type DeliveriesRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewDeliveriesRepo(pool *pgxpool.Pool, prom *observability.Prom) *DeliveriesRepo {
	return &DeliveriesRepo{pool: pool, prom: prom}
}

func (r *DeliveriesRepo) observe(op string, fn func() error) error {
	if r.prom != nil {
		return r.prom.ObserveDB(op, fn)
	}
	return fn()
}

// TryStart claims the (kind, enrollment) delivery for jobID. It returns
// delivery.ErrAlreadySent once the notice went out and delivery.ErrInProgress
// while another worker holds it.
func (r *DeliveriesRepo) TryStart(ctx context.Context, kind delivery.Kind, enrollmentID, jobID, recipient string) error {
	return r.observe("deliveries.try_start", func() error {
		return r.tryStart(ctx, kind, enrollmentID, jobID, recipient)
	})
}

func (r *DeliveriesRepo) tryStart(ctx context.Context, kind delivery.Kind, enrollmentID, jobID, recipient string) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO notification_deliveries (kind, enrollment_id, job_id, recipient, status)
		VALUES ($1, $2, $3, $4, 'sending')
	`, string(kind), enrollmentID, jobID, recipient)
	if err == nil {
		return nil
	}
	if !IsUniqueViolation(err) {
		return err
	}

	// a failed attempt can be reclaimed by exactly one worker
	tag, err := r.pool.Exec(ctx, `
		UPDATE notification_deliveries
		SET status = 'sending', job_id = $3, recipient = $4, last_error = NULL, updated_at = NOW()
		WHERE kind = $1 AND enrollment_id = $2 AND status = 'failed'
	`, string(kind), enrollmentID, jobID, recipient)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var (
		status string
		holder *string
	)
	err = r.pool.QueryRow(ctx, `
		SELECT status, job_id::text
		FROM notification_deliveries
		WHERE kind = $1 AND enrollment_id = $2
	`, string(kind), enrollmentID).Scan(&status, &holder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		return err
	}

	switch {
	case status == "sent":
		return delivery.ErrAlreadySent
	case holder != nil && *holder == jobID:
		// same job retried after a crash mid-send
		return nil
	default:
		return delivery.ErrInProgress
	}
}

func (r *DeliveriesRepo) MarkSent(ctx context.Context, kind delivery.Kind, enrollmentID string) error {
	return r.exec(ctx, "deliveries.mark_sent", `
		UPDATE notification_deliveries
		SET status = 'sent', sent_at = NOW(), last_error = NULL, updated_at = NOW()
		WHERE kind = $1 AND enrollment_id = $2
	`, string(kind), enrollmentID)
}

func (r *DeliveriesRepo) MarkFailed(ctx context.Context, kind delivery.Kind, enrollmentID, errMsg string) error {
	return r.exec(ctx, "deliveries.mark_failed", `
		UPDATE notification_deliveries
		SET status = 'failed', last_error = $3, updated_at = NOW()
		WHERE kind = $1 AND enrollment_id = $2
	`, string(kind), enrollmentID, errMsg)
}

func (r *DeliveriesRepo) exec(ctx context.Context, op, sql string, args ...any) error {
	return r.observe(op, func() error {
		_, err := r.pool.Exec(ctx, sql, args...)
		return err
	})
}
