package postgres

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/geocoder89/kidshub/internal/jobs"
	"github.com/geocoder89/kidshub/internal/observability"
	"github.com/geocoder89/kidshub/internal/store"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrEnrollmentNotFound = errors.New("enrollment not found")

type EnrollmentNotice struct {
	EnrollmentID  string
	Status        string
	Email         string
	GuardianName  string
	ChildName     string
	ActivityTitle string
	StartAt       time.Time
}

// EnrollmentsRepo creates enrollments under a lock on the activity row so
// capacity holds under concurrent sign-ups, and enqueues the confirmation
// job in the same transaction.
type EnrollmentsRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
	jobs *JobsRepo
}

func NewEnrollmentsRepo(pool *pgxpool.Pool, prom *observability.Prom, jobsRepo *JobsRepo) *EnrollmentsRepo {
	return &EnrollmentsRepo{pool: pool, prom: prom, jobs: jobsRepo}
}

func (repo *EnrollmentsRepo) observe(op string, fn func() error) error {
	if repo.prom != nil {
		return repo.prom.ObserveDB(op, fn)
	}
	return fn()
}

func (repo *EnrollmentsRepo) Create(ctx context.Context, row store.Row, requestID string) (created store.Row, err error) {
	defer func() { repo.prom.EnrollmentOutcome(enrollmentOutcome(err)) }()

	activityID, _ := row["activity_id"].(string)
	childID, _ := row["child_id"].(string)
	if activityID == "" || childID == "" {
		return nil, invalid(errors.New("activity_id and child_id are required"))
	}

	tx, err := repo.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	// 1) lock activity row + count active enrollments
	capacity, current, err := repo.lockCapacity(ctx, tx, activityID)
	if err != nil {
		return nil, err
	}

	// 2) duplicate check
	var exists bool
	err = repo.observe("enrollments.create_tx.duplicate_check", func() error {
		return tx.QueryRow(ctx, `SELECT EXISTS(
			SELECT 1 FROM enrollments
			WHERE activity_id = $1 AND child_id = $2 AND status <> 'cancelled'
		)`, activityID, childID).Scan(&exists)
	})
	if err != nil {
		return nil, mapPgErr(err)
	}
	if exists {
		return nil, &store.Error{Status: http.StatusConflict, Code: store.CodeAlreadyEnrolled, Message: "child already enrolled"}
	}

	if capacity > 0 && current >= capacity {
		return nil, errActivityFull
	}

	// 3) insert
	rows, err := insertRow(ctx, tx, repo.observe, store.TableEnrollments, row, "")
	if err != nil {
		return nil, mapPgErr(err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("enrollment insert returned no row")
	}
	created = rows[0]

	// 4) enqueue confirmation
	payload := jobs.EnrollmentPayload{
		ActivityID: activityID,
		ChildID:    childID,
		RequestID:  requestID,
	}
	payload.EnrollmentID, _ = created["id"].(string)
	payload.GuardianID, _ = created["guardian_id"].(string)

	req, err := jobs.NewRequest(jobs.JobEnrollmentConfirmation, payload)
	if err != nil {
		return nil, err
	}
	if _, err = repo.jobs.CreateTx(ctx, tx, req); err != nil {
		return nil, err
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, err
	}
	return created, nil
}

// SetStatus moves an enrollment to status. Reopening a cancelled enrollment
// re-checks capacity under the activity lock; cancelling enqueues the
// cancellation notice and reopening a fresh confirmation.
func (repo *EnrollmentsRepo) SetStatus(ctx context.Context, id, status, requestID string) (store.Row, error) {
	switch status {
	case "pending", "confirmed", "cancelled":
	default:
		return nil, invalid(fmt.Errorf("unknown enrollment status %q", status))
	}

	tx, err := repo.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	var p jobs.EnrollmentPayload
	var current string
	err = repo.observe("enrollments.set_status.lock", func() error {
		return tx.QueryRow(ctx, `
		SELECT id::text, activity_id::text, guardian_id::text, child_id::text, status
		FROM enrollments
		WHERE id = $1
		FOR UPDATE
		`, id).Scan(&p.EnrollmentID, &p.ActivityID, &p.GuardianID, &p.ChildID, &current)
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &store.Error{Status: http.StatusNotFound, Code: store.CodeNotFound, Message: "enrollment not found"}
		}
		return nil, mapPgErr(err)
	}
	p.RequestID = requestID

	reopening := current == "cancelled" && status != "cancelled"
	if reopening {
		capacity, active, err := repo.lockCapacity(ctx, tx, p.ActivityID)
		if err != nil {
			return nil, err
		}
		if capacity > 0 && active >= capacity {
			return nil, errActivityFull
		}
	}

	var rows []store.Row
	err = repo.observe("enrollments.set_status.update", func() error {
		var err error
		rows, err = queryRows(ctx, tx, `
		UPDATE enrollments AS t SET status = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING to_jsonb(t)
		`, []any{id, status})
		return err
	})
	if err != nil {
		return nil, mapPgErr(err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("enrollment update returned no row")
	}
	updated := rows[0]

	var t jobs.JobType
	switch {
	case status == "cancelled" && current != "cancelled":
		t = jobs.JobEnrollmentCancelled
	case reopening:
		t = jobs.JobEnrollmentConfirmation
	}
	if t != "" {
		req, err := jobs.NewRequest(t, p)
		if err != nil {
			return nil, err
		}
		// one notice per transition, not per enrollment
		key := fmt.Sprintf("%s:%v", *req.IdempotencyKey, updated["updated_at"])
		req.IdempotencyKey = &key

		if _, err := repo.jobs.CreateTx(ctx, tx, req); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return updated, nil
}

var errActivityFull = &store.Error{Status: http.StatusConflict, Code: store.CodeActivityFull, Message: "activity is full"}

// lockCapacity locks the activity row and counts its active enrollments.
func (repo *EnrollmentsRepo) lockCapacity(ctx context.Context, tx pgx.Tx, activityID string) (capacity, current int, err error) {
	err = repo.observe("enrollments.capacity_lock", func() error {
		return tx.QueryRow(ctx, `
		SELECT a.capacity,
			(SELECT COUNT(*) FROM enrollments e
			 WHERE e.activity_id = a.id AND e.status IN ('pending', 'confirmed')) AS current
		FROM activities a
		WHERE a.id = $1
		FOR UPDATE
		`, activityID).Scan(&capacity, &current)
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, 0, &store.Error{Status: http.StatusNotFound, Code: store.CodeNotFound, Message: "activity not found"}
		}
		return 0, 0, mapPgErr(err)
	}
	return capacity, current, nil
}

// Notice loads what the worker needs to tell the guardian about an
// enrollment.
func (repo *EnrollmentsRepo) Notice(ctx context.Context, enrollmentID string) (EnrollmentNotice, error) {
	var n EnrollmentNotice

	err := repo.observe("enrollments.notice", func() error {
		return repo.pool.QueryRow(ctx, `
		SELECT e.id, e.status, g.email, g.first_name || ' ' || g.last_name,
		       COALESCE(c.first_name, ''), a.title, a.start_at
		FROM enrollments e
		JOIN guardians g ON g.id = e.guardian_id
		JOIN activities a ON a.id = e.activity_id
		LEFT JOIN children c ON c.id = e.child_id
		WHERE e.id = $1
		`, enrollmentID).Scan(&n.EnrollmentID, &n.Status, &n.Email, &n.GuardianName, &n.ChildName, &n.ActivityTitle, &n.StartAt)
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return EnrollmentNotice{}, ErrEnrollmentNotFound
		}
		return EnrollmentNotice{}, err
	}
	return n, nil
}

func enrollmentOutcome(err error) string {
	switch {
	case err == nil:
		return "created"
	case store.HasCode(err, store.CodeAlreadyEnrolled):
		return store.CodeAlreadyEnrolled
	case store.HasCode(err, store.CodeActivityFull):
		return store.CodeActivityFull
	}
	return "error"
}
