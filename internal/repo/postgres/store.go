package postgres

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/geocoder89/kidshub/internal/observability"
	"github.com/geocoder89/kidshub/internal/store"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Store is the row store over postgres. Rows come back as to_jsonb(t) so the
// column set of every partition is read without per-table scan code.
type Store struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewStore(pool *pgxpool.Pool, prom *observability.Prom) *Store {
	return &Store{pool: pool, prom: prom}
}

func (s *Store) observe(op string, fn func() error) error {
	if s.prom != nil {
		return s.prom.ObserveDB(op, fn)
	}
	return fn()
}

func (s *Store) Select(ctx context.Context, table string, q store.Query) ([]store.Row, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}
	if err := q.Validate(); err != nil {
		return nil, invalid(err)
	}

	b := newBuilder()
	sql := "SELECT to_jsonb(t) FROM " + ident(table) + " AS t" + b.where(q.Filters)

	if len(q.Order) > 0 {
		parts := make([]string, 0, len(q.Order))
		for _, o := range q.Order {
			dir := "ASC"
			if o.Desc {
				dir = "DESC"
			}
			parts = append(parts, ident(o.Column)+" "+dir)
		}
		sql += " ORDER BY " + strings.Join(parts, ", ")
	}
	if q.Limit > 0 {
		sql += fmt.Sprintf(" LIMIT %d", q.Limit)
	}
	if q.Offset > 0 {
		sql += fmt.Sprintf(" OFFSET %d", q.Offset)
	}

	var out []store.Row
	err := s.observe(table+".select", func() error {
		var err error
		out, err = queryRows(ctx, s.pool, sql, b.args)
		return err
	})
	if err != nil {
		return nil, mapPgErr(err)
	}
	return out, nil
}

func (s *Store) Insert(ctx context.Context, table string, rows ...store.Row) ([]store.Row, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return []store.Row{}, nil
	}

	var out []store.Row
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		for _, row := range rows {
			inserted, err := insertRow(ctx, tx, s.observe, table, row, "")
			if err != nil {
				return err
			}
			out = append(out, inserted...)
		}
		return nil
	})
	if err != nil {
		return nil, mapPgErr(err)
	}
	return out, nil
}

func (s *Store) Upsert(ctx context.Context, table string, row store.Row, onConflict string) ([]store.Row, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}
	if onConflict == "" {
		onConflict = "id"
	}

	var out []store.Row
	err := s.observe(table+".upsert", func() error {
		var err error
		out, err = insertRow(ctx, s.pool, nil, table, row, onConflict)
		return err
	})
	if err != nil {
		return nil, mapPgErr(err)
	}
	return out, nil
}

func (s *Store) Update(ctx context.Context, table string, values store.Row, filters ...store.Filter) ([]store.Row, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}
	if err := (store.Query{Filters: filters}).Validate(); err != nil {
		return nil, invalid(err)
	}
	if len(filters) == 0 {
		return nil, invalid(errors.New("update requires at least one filter"))
	}

	b := newBuilder()
	var sets []string
	for _, col := range sortedKeys(values) {
		if col == "id" || col == "created_at" || col == "updated_at" {
			continue
		}
		if !store.ValidIdentifier(col) {
			return nil, invalid(fmt.Errorf("%w: %q", store.ErrBadColumn, col))
		}
		sets = append(sets, ident(col)+" = "+b.arg(values[col]))
	}
	sets = append(sets, "updated_at = NOW()")

	sql := "UPDATE " + ident(table) + " AS t SET " + strings.Join(sets, ", ") +
		b.where(filters) + " RETURNING to_jsonb(t)"

	var out []store.Row
	err := s.observe(table+".update", func() error {
		var err error
		out, err = queryRows(ctx, s.pool, sql, b.args)
		return err
	})
	if err != nil {
		return nil, mapPgErr(err)
	}
	return out, nil
}

func (s *Store) Delete(ctx context.Context, table string, filters ...store.Filter) error {
	if err := checkTable(table); err != nil {
		return err
	}
	if err := (store.Query{Filters: filters}).Validate(); err != nil {
		return invalid(err)
	}
	if len(filters) == 0 {
		return invalid(errors.New("delete requires at least one filter"))
	}

	b := newBuilder()
	sql := "DELETE FROM " + ident(table) + " AS t" + b.where(filters)

	err := s.observe(table+".delete", func() error {
		_, err := s.pool.Exec(ctx, sql, b.queryArgs()...)
		return err
	})
	return mapPgErr(err)
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) inTx(ctx context.Context, fn func(tx pgx.Tx) error) (err error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}

	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err = fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// insertRow inserts one row; a non-empty onConflict turns it into an upsert
// merging every supplied column except created_at.
func insertRow(ctx context.Context, q querier, observe func(string, func() error) error, table string, row store.Row, onConflict string) ([]store.Row, error) {
	b := newBuilder()
	cols := make([]string, 0, len(row))
	vals := make([]string, 0, len(row))

	for _, col := range sortedKeys(row) {
		if !store.ValidIdentifier(col) {
			return nil, invalid(fmt.Errorf("%w: %q", store.ErrBadColumn, col))
		}
		cols = append(cols, ident(col))
		vals = append(vals, b.arg(row[col]))
	}

	sql := "INSERT INTO " + ident(table) + " AS t (" + strings.Join(cols, ", ") + ") VALUES (" + strings.Join(vals, ", ") + ")"
	if len(cols) == 0 {
		sql = "INSERT INTO " + ident(table) + " AS t DEFAULT VALUES"
	}

	if onConflict != "" {
		var target []string
		for _, c := range strings.Split(onConflict, ",") {
			c = strings.TrimSpace(c)
			if !store.ValidIdentifier(c) {
				return nil, invalid(fmt.Errorf("%w: %q", store.ErrBadColumn, c))
			}
			target = append(target, ident(c))
		}

		sets := []string{"updated_at = NOW()"}
		for _, col := range sortedKeys(row) {
			if col == "created_at" || col == "updated_at" {
				continue
			}
			sets = append(sets, ident(col)+" = EXCLUDED."+ident(col))
		}
		sql += " ON CONFLICT (" + strings.Join(target, ", ") + ") DO UPDATE SET " + strings.Join(sets, ", ")
	}
	sql += " RETURNING to_jsonb(t)"

	if observe == nil {
		return queryRows(ctx, q, sql, b.args)
	}

	var out []store.Row
	err := observe(table+".insert", func() error {
		var err error
		out, err = queryRows(ctx, q, sql, b.args)
		return err
	})
	return out, err
}

func queryRows(ctx context.Context, q querier, sql string, args []any) ([]store.Row, error) {
	rows, err := q.Query(ctx, sql, append([]any{pgx.QueryExecModeSimpleProtocol}, args...)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]store.Row, 0)
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}

		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()

		var row store.Row
		if err := dec.Decode(&row); err != nil {
			return nil, err
		}
		out = append(out, row)
	}

	return out, rows.Err()
}

// builder collects positional arguments. Values go over the simple protocol
// as literals so postgres coerces them to each column's type.
type builder struct {
	args []any
}

func newBuilder() *builder { return &builder{} }

func (b *builder) arg(v any) string {
	b.args = append(b.args, sqlValue(v))
	return fmt.Sprintf("$%d", len(b.args))
}

func (b *builder) queryArgs() []any {
	return append([]any{pgx.QueryExecModeSimpleProtocol}, b.args...)
}

func (b *builder) where(filters []store.Filter) string {
	if len(filters) == 0 {
		return ""
	}

	conds := make([]string, 0, len(filters))
	for _, f := range filters {
		col := ident(f.Column)
		switch f.Op {
		case store.OpIn:
			vs, _ := f.Value.([]any)
			if len(vs) == 0 {
				conds = append(conds, "FALSE")
				continue
			}
			ph := make([]string, 0, len(vs))
			for _, v := range vs {
				ph = append(ph, b.arg(v))
			}
			conds = append(conds, col+" IN ("+strings.Join(ph, ", ")+")")
		case store.OpILike:
			conds = append(conds, col+"::text ILIKE "+b.arg(f.Value))
		case store.OpEq:
			if f.Value == nil {
				conds = append(conds, col+" IS NULL")
				continue
			}
			conds = append(conds, col+" = "+b.arg(f.Value))
		default:
			conds = append(conds, col+" "+sqlOps[f.Op]+" "+b.arg(f.Value))
		}
	}

	return " WHERE " + strings.Join(conds, " AND ")
}

var sqlOps = map[store.Op]string{
	store.OpNeq: "<>",
	store.OpGt:  ">",
	store.OpGte: ">=",
	store.OpLt:  "<",
	store.OpLte: "<=",
}

func sqlValue(v any) any {
	switch t := v.(type) {
	case nil, string, bool, int, int32, int64, float32, float64:
		return t
	case json.Number:
		return t.String()
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	case *time.Time:
		if t == nil {
			return nil
		}
		return t.UTC().Format(time.RFC3339Nano)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}

func ident(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

func checkTable(table string) error {
	if !store.KnownTable(table) {
		return &store.Error{Status: http.StatusNotFound, Code: store.CodeNotFound, Message: fmt.Sprintf("%v: %s", store.ErrUnknownTable, table)}
	}
	return nil
}

func invalid(err error) error {
	return &store.Error{Status: http.StatusBadRequest, Code: store.CodeInvalidRequest, Message: err.Error()}
}

func sortedKeys(row store.Row) []string {
	keys := make([]string, 0, len(row))
	for k := range row {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// mapPgErr turns constraint and input errors into store errors; anything
// else is returned as is.
func mapPgErr(err error) error {
	if err == nil {
		return nil
	}

	var se *store.Error
	if errors.As(err, &se) {
		return se
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}

	switch pgErr.Code {
	case "23505":
		return &store.Error{Status: http.StatusConflict, Code: store.CodeUniqueViolation, Message: pgErr.ConstraintName}
	case "23503", "23502", "23514", "22P02", "22007", "22008", "42703":
		return &store.Error{Status: http.StatusBadRequest, Code: store.CodeInvalidRequest, Message: pgErr.Message}
	default:
		return err
	}
}

func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
