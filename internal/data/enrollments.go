package data

import (
	"context"
	"errors"
	"fmt"

	"github.com/geocoder89/kidshub/internal/domain/enrollment"
	"github.com/geocoder89/kidshub/internal/store"
)

type Enrollments struct{ d *deps }

var activeStatuses = []any{string(enrollment.StatusPending), string(enrollment.StatusConfirmed)}

// Create enrolls a child. A cancelled enrollment for the same pair is
// reopened instead of inserting a second row. The backend re-checks
// duplicates and capacity inside a transaction; the checks here give a
// clean error without a round trip that would fail anyway.
func (e *Enrollments) Create(ctx context.Context, req enrollment.CreateRequest) (enrollment.Enrollment, error) {
	if err := e.d.validateStruct(req); err != nil {
		return enrollment.Enrollment{}, err
	}

	existingRows, err := e.d.db.Select(ctx, store.TableEnrollments, store.Where(
		store.Eq("activity_id", req.ActivityID),
		store.Eq("child_id", req.ChildID),
	))
	if err != nil {
		return enrollment.Enrollment{}, fmt.Errorf("check enrollment: %w", err)
	}
	existing, err := decodeAll[enrollment.Enrollment](existingRows)
	if err != nil {
		return enrollment.Enrollment{}, err
	}
	for _, en := range existing {
		if en.Status != enrollment.StatusCancelled {
			return enrollment.Enrollment{}, enrollment.ErrAlreadyEnrolled
		}
	}

	act, err := (&Activities{e.d}).Get(ctx, req.ActivityID)
	if err != nil {
		return enrollment.Enrollment{}, err
	}

	active, err := e.d.db.Select(ctx, store.TableEnrollments, store.Where(
		store.Eq("activity_id", req.ActivityID),
		store.In("status", activeStatuses...),
	))
	if err != nil {
		return enrollment.Enrollment{}, fmt.Errorf("count enrollments: %w", err)
	}
	if act.Capacity > 0 && len(active) >= act.Capacity {
		return enrollment.Enrollment{}, enrollment.ErrActivityFull
	}

	if len(existing) > 0 {
		return e.SetStatus(ctx, existing[0].ID, enrollment.StatusPending)
	}

	en := enrollment.NewFromCreateRequest(req)
	row, err := encode(en)
	if err != nil {
		return enrollment.Enrollment{}, err
	}

	rows, err := e.d.db.Insert(ctx, store.TableEnrollments, row)
	if err != nil {
		return enrollment.Enrollment{}, mapEnrollmentErr(err)
	}
	return firstProfile[enrollment.Enrollment](rows, en, nil)
}

func (e *Enrollments) Get(ctx context.Context, id string) (enrollment.Enrollment, error) {
	return one[enrollment.Enrollment](e.d, ctx, store.TableEnrollments, id, enrollment.ErrNotFound)
}

func (e *Enrollments) ForGuardian(ctx context.Context, guardianID string) ([]enrollment.Enrollment, error) {
	return e.list(ctx, store.Eq("guardian_id", guardianID))
}

func (e *Enrollments) ForActivity(ctx context.Context, activityID string) ([]enrollment.Enrollment, error) {
	return e.list(ctx, store.Eq("activity_id", activityID))
}

func (e *Enrollments) SetStatus(ctx context.Context, id string, status enrollment.Status) (enrollment.Enrollment, error) {
	if !status.IsValid() {
		return enrollment.Enrollment{}, fmt.Errorf("invalid enrollment status %q", status)
	}

	values, err := encode(map[string]any{"status": status})
	if err != nil {
		return enrollment.Enrollment{}, err
	}

	rows, err := e.d.db.Update(ctx, store.TableEnrollments, values, store.Eq("id", id))
	if err != nil {
		return enrollment.Enrollment{}, fmt.Errorf("set enrollment %s status to %s: %w", id, status, statusErr(err))
	}
	if len(rows) == 0 {
		return enrollment.Enrollment{}, fmt.Errorf("%w: %w", enrollment.ErrNotFound, ErrNotFound)
	}
	return firstProfile[enrollment.Enrollment](rows, enrollment.Enrollment{}, nil)
}

func (e *Enrollments) Cancel(ctx context.Context, id string) error {
	_, err := e.SetStatus(ctx, id, enrollment.StatusCancelled)
	return err
}

func (e *Enrollments) list(ctx context.Context, f store.Filter) ([]enrollment.Enrollment, error) {
	rows, err := e.d.db.Select(ctx, store.TableEnrollments, store.Where(f).OrderBy("created_at", true))
	if err != nil {
		return nil, fmt.Errorf("list enrollments: %w", err)
	}
	return decodeAll[enrollment.Enrollment](rows)
}

func statusErr(err error) error {
	mapped, _ := enrollmentRejection(err)
	return mapped
}

func mapEnrollmentErr(err error) error {
	if mapped, ok := enrollmentRejection(err); ok {
		return mapped
	}
	return fmt.Errorf("create enrollment: %w", err)
}

// enrollmentRejection maps backend rejections onto the enrollment sentinels.
func enrollmentRejection(err error) (error, bool) {
	switch {
	case store.HasCode(err, store.CodeAlreadyEnrolled), store.HasCode(err, store.CodeUniqueViolation):
		return fmt.Errorf("%w: %w", enrollment.ErrAlreadyEnrolled, err), true
	case store.HasCode(err, store.CodeActivityFull):
		return fmt.Errorf("%w: %w", enrollment.ErrActivityFull, err), true
	case errors.Is(err, enrollment.ErrAlreadyEnrolled), errors.Is(err, enrollment.ErrActivityFull):
		return err, true
	default:
		return err, false
	}
}
