// Package store describes the row-oriented data store the client talks to.
// Rows are keyed by snake_case column names exactly as the store returns
// them; callers translate keys at their own boundary.
package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
)

// Partitions.
const (
	TableGuardians   = "guardians"
	TableOrganizers  = "organizers"
	TableChildren    = "children"
	TableActivities  = "activities"
	TableEnrollments = "enrollments"
	TableReviews     = "reviews"
)

var tables = map[string]struct{}{
	TableGuardians:   {},
	TableOrganizers:  {},
	TableChildren:    {},
	TableActivities:  {},
	TableEnrollments: {},
	TableReviews:     {},
}

func KnownTable(name string) bool {
	_, ok := tables[name]
	return ok
}

type Row = map[string]any

type Store interface {
	Select(ctx context.Context, table string, q Query) ([]Row, error)
	Insert(ctx context.Context, table string, rows ...Row) ([]Row, error)
	Update(ctx context.Context, table string, values Row, filters ...Filter) ([]Row, error)
	Upsert(ctx context.Context, table string, row Row, onConflict string) ([]Row, error)
	Delete(ctx context.Context, table string, filters ...Filter) error
}

var identRe = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// ValidIdentifier reports whether name is safe to use as a table or column.
func ValidIdentifier(name string) bool {
	return identRe.MatchString(name)
}

var (
	ErrUnknownTable = errors.New("unknown table")
	ErrBadColumn    = errors.New("invalid column name")
)

// Error is a failure reported by the store itself (as opposed to a transport
// failure). Code is a short machine readable reason such as
// "unique_violation" or "forbidden".
type Error struct {
	Status  int
	Code    string
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("store: %s (status %d)", e.Code, e.Status)
	}
	return fmt.Sprintf("store: %s: %s", e.Code, e.Message)
}

const (
	CodeUniqueViolation = "unique_violation"
	CodeForbidden       = "forbidden"
	CodeInvalidRequest  = "invalid_request"
	CodeAlreadyEnrolled = "already_enrolled"
	CodeActivityFull    = "activity_full"
	CodeNotFound        = "not_found"
)

// HasCode reports whether err is a store Error with the given code.
func HasCode(err error, code string) bool {
	var se *Error
	return errors.As(err, &se) && se.Code == code
}

// First returns the first row or nil.
func First(rows []Row) Row {
	if len(rows) == 0 {
		return nil
	}
	return rows[0]
}
