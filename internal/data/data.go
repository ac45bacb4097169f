// Package data is the typed access layer over the row store. Rows come back
// snake_case and are converted with casing.KeysToCamel before decoding;
// write payloads are encoded from typed values and converted with
// casing.KeysToSnake before they are sent.
package data

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/geocoder89/kidshub/internal/casing"
	"github.com/geocoder89/kidshub/internal/provider"
	"github.com/geocoder89/kidshub/internal/store"
	"github.com/go-playground/validator/v10"
)

var ErrNotFound = errors.New("not found")

type Client struct {
	Identity    *Identity
	Guardians   *Guardians
	Organizers  *Organizers
	Activities  *Activities
	Enrollments *Enrollments
	Reviews     *Reviews
}

type Option func(*deps)

type deps struct {
	db       store.Store
	idp      provider.Identity
	validate *validator.Validate
	now      func() time.Time
}

// WithClock overrides the clock used for derived fields such as child age.
func WithClock(now func() time.Time) Option {
	return func(d *deps) { d.now = now }
}

// New wires the façade. idp may be nil when only row access is needed.
func New(db store.Store, idp provider.Identity, opts ...Option) *Client {
	d := &deps{
		db:       db,
		idp:      idp,
		validate: validator.New(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}

	return &Client{
		Identity:    &Identity{d},
		Guardians:   &Guardians{d},
		Organizers:  &Organizers{d},
		Activities:  &Activities{d},
		Enrollments: &Enrollments{d},
		Reviews:     &Reviews{d},
	}
}

// encode turns a typed value into a snake_case row.
func encode(v any) (store.Row, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode row: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()

	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("encode row: %w", err)
	}

	row, _ := casing.KeysToSnake(m).(map[string]any)
	return row, nil
}

// decode fills out from a snake_case row.
func decode(row store.Row, out any) error {
	b, err := json.Marshal(casing.KeysToCamel(row))
	if err != nil {
		return fmt.Errorf("decode row: %w", err)
	}
	if err := json.Unmarshal(b, out); err != nil {
		return fmt.Errorf("decode row: %w", err)
	}
	return nil
}

func decodeAll[T any](rows []store.Row) ([]T, error) {
	out := make([]T, 0, len(rows))
	for _, row := range rows {
		var v T
		if err := decode(row, &v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// one selects a single row by id, or returns notFound wrapped with
// ErrNotFound.
func one[T any](d *deps, ctx context.Context, table, id string, notFound error) (T, error) {
	var zero T

	rows, err := d.db.Select(ctx, table, store.Where(store.Eq("id", id)).Page(1, 0))
	if err != nil {
		return zero, fmt.Errorf("get %s %s: %w", table, id, err)
	}

	row := store.First(rows)
	if row == nil {
		return zero, fmt.Errorf("%w: %w", notFound, ErrNotFound)
	}

	var v T
	if err := decode(row, &v); err != nil {
		return zero, err
	}
	return v, nil
}

func (d *deps) validateStruct(v any) error {
	if err := d.validate.Struct(v); err != nil {
		return fmt.Errorf("invalid input: %w", err)
	}
	return nil
}
