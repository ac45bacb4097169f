package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/geocoder89/kidshub/internal/store"
)

// rowPolicy says who may touch a partition. ownerCol holds the id of the
// account that owns a row.
type rowPolicy struct {
	ownerCol   string
	publicRead bool
}

var policies = map[string]rowPolicy{
	store.TableGuardians:   {ownerCol: "id"},
	store.TableOrganizers:  {ownerCol: "id"},
	store.TableChildren:    {ownerCol: "guardian_id"},
	store.TableEnrollments: {ownerCol: "guardian_id"},
	store.TableActivities:  {ownerCol: "organizer_id", publicRead: true},
	store.TableReviews:     {ownerCol: "guardian_id", publicRead: true},
}

func forbidden(format string, args ...any) error {
	return &store.Error{Status: http.StatusForbidden, Code: store.CodeForbidden, Message: fmt.Sprintf(format, args...)}
}

var errLoginRequired = &store.Error{Status: http.StatusUnauthorized, Code: "unauthorized", Message: "Sign in required"}

// scopeRead narrows q to what caller may see.
func (h *RestHandler) scopeRead(ctx context.Context, table, caller string, q store.Query) (store.Query, error) {
	p := policies[table]
	if p.publicRead {
		return q, nil
	}
	if caller == "" {
		return q, errLoginRequired
	}

	// organizers read the enrollments of their own activities
	if table == store.TableEnrollments {
		if activityID, ok := eqValue(q.Filters, "activity_id"); ok {
			owns, err := h.owns(ctx, store.TableActivities, activityID, caller)
			if err != nil {
				return q, err
			}
			if owns {
				return q, nil
			}
		}
	}

	q.Filters = append(q.Filters, store.Eq(p.ownerCol, caller))
	return q, nil
}

// checkNewRow claims row for caller and checks references to rows caller
// must own.
func (h *RestHandler) checkNewRow(ctx context.Context, table, caller string, row store.Row) error {
	if caller == "" {
		return errLoginRequired
	}

	p := policies[table]
	if v, ok := row[p.ownerCol]; ok && fmt.Sprint(v) != caller {
		return forbidden("%s must be the signed in user", p.ownerCol)
	}
	row[p.ownerCol] = caller

	switch table {
	case store.TableEnrollments:
		childID, _ := row["child_id"].(string)
		owns, err := h.owns(ctx, store.TableChildren, childID, caller)
		if err != nil {
			return err
		}
		if !owns {
			return forbidden("child does not belong to the signed in guardian")
		}
	}
	return nil
}

// scopeWrite narrows update/delete filters to rows caller owns.
func scopeWrite(table, caller string, filters []store.Filter, values store.Row) ([]store.Filter, error) {
	if caller == "" {
		return nil, errLoginRequired
	}
	if len(filters) == 0 {
		return nil, &store.Error{Status: http.StatusBadRequest, Code: store.CodeInvalidRequest, Message: "at least one filter is required"}
	}

	p := policies[table]
	if v, ok := values[p.ownerCol]; ok && fmt.Sprint(v) != caller {
		return nil, forbidden("%s cannot be reassigned", p.ownerCol)
	}

	return append(filters, store.Eq(p.ownerCol, caller)), nil
}

// Statuses each side of an enrollment may set.
var (
	guardianStatuses  = map[string]bool{"pending": true, "cancelled": true}
	organizerStatuses = map[string]bool{"pending": true, "confirmed": true, "cancelled": true}
)

// authorizeEnrollmentUpdate allows the guardian to change their own
// enrollment and the organizer of its activity to change its status.
func (h *RestHandler) authorizeEnrollmentUpdate(ctx context.Context, caller string, current, values store.Row) error {
	if v, ok := values["guardian_id"]; ok && fmt.Sprint(v) != fmt.Sprint(current["guardian_id"]) {
		return forbidden("guardian_id cannot be reassigned")
	}

	status, hasStatus := values["status"].(string)

	if fmt.Sprint(current["guardian_id"]) == caller {
		if hasStatus && !guardianStatuses[status] {
			return forbidden("guardians cannot set status %q", status)
		}
		return nil
	}

	activityID, _ := current["activity_id"].(string)
	owns, err := h.owns(ctx, store.TableActivities, activityID, caller)
	if err != nil {
		return err
	}
	if !owns {
		return forbidden("enrollment belongs to another guardian")
	}
	if !hasStatus || len(values) != 1 || !organizerStatuses[status] {
		return forbidden("organizers may only change the status")
	}
	return nil
}

// checkConflictTarget only allows upserts keyed on the owner column, so an
// upsert can never merge into another user's row.
func checkConflictTarget(table, onConflict string) error {
	if onConflict == "" {
		onConflict = "id"
	}
	owner := policies[table].ownerCol

	for _, col := range strings.Split(onConflict, ",") {
		if strings.TrimSpace(col) == owner {
			return nil
		}
	}
	return forbidden("upsert on %s must be keyed on %s", table, owner)
}

func (h *RestHandler) owns(ctx context.Context, table, id, caller string) (bool, error) {
	if id == "" {
		return false, nil
	}

	rows, err := h.db.Select(ctx, table, store.Where(
		store.Eq("id", id),
		store.Eq(policies[table].ownerCol, caller),
	).Page(1, 0))
	if err != nil {
		return false, err
	}
	return len(rows) > 0, nil
}

func eqValue(filters []store.Filter, col string) (string, bool) {
	for _, f := range filters {
		if f.Column == col && f.Op == store.OpEq {
			s, ok := f.Value.(string)
			return s, ok && s != ""
		}
	}
	return "", false
}
