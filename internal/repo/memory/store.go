package memory

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/geocoder89/kidshub/internal/store"
	"github.com/google/uuid"
)

// uniqueKeys lists the natural keys enforced per partition, besides id.
var uniqueKeys = map[string][][]string{
	store.TableEnrollments: {{"activity_id", "child_id"}},
	store.TableReviews:     {{"activity_id", "guardian_id"}},
	store.TableGuardians:   {{"email"}},
	store.TableOrganizers:  {{"email"}},
}

// Store keeps rows in memory. It backs tests and the offline demo mode.
type Store struct {
	mu     sync.RWMutex
	tables map[string][]store.Row
	now    func() time.Time
}

func NewStore() *Store {
	return &Store{
		tables: make(map[string][]store.Row),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func checkTable(table string) error {
	if !store.KnownTable(table) {
		return fmt.Errorf("%w: %s", store.ErrUnknownTable, table)
	}
	return nil
}

func (s *Store) Select(ctx context.Context, table string, q store.Query) ([]store.Row, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	matched := make([]store.Row, 0)
	for _, row := range s.tables[table] {
		if matchesAll(row, q.Filters) {
			matched = append(matched, clone(row))
		}
	}
	s.mu.RUnlock()

	if len(q.Order) > 0 {
		sort.SliceStable(matched, func(i, j int) bool {
			for _, o := range q.Order {
				c := compare(matched[i][o.Column], matched[j][o.Column])
				if c == 0 {
					continue
				}
				if o.Desc {
					return c > 0
				}
				return c < 0
			}
			return false
		})
	}

	if q.Offset > 0 {
		if q.Offset >= len(matched) {
			return []store.Row{}, nil
		}
		matched = matched[q.Offset:]
	}
	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}

	return matched, nil
}

func (s *Store) Insert(ctx context.Context, table string, rows ...store.Row) ([]store.Row, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]store.Row, 0, len(rows))
	for _, in := range rows {
		row, err := s.prepare(in)
		if err != nil {
			return nil, err
		}
		if err := s.checkUnique(table, row, -1); err != nil {
			return nil, err
		}
		s.tables[table] = append(s.tables[table], row)
		out = append(out, clone(row))
	}

	return out, nil
}

func (s *Store) Update(ctx context.Context, table string, values store.Row, filters ...store.Filter) ([]store.Row, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}
	if err := checkColumns(values); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]store.Row, 0)
	for i, row := range s.tables[table] {
		if !matchesAll(row, filters) {
			continue
		}

		next := clone(row)
		for k, v := range values {
			if k == "id" {
				continue
			}
			next[k] = v
		}
		next["updated_at"] = s.now()

		if err := s.checkUnique(table, next, i); err != nil {
			return nil, err
		}

		s.tables[table][i] = next
		out = append(out, clone(next))
	}

	return out, nil
}

// Upsert inserts row, or merges it into the existing row matching the
// conflict columns (comma separated, default "id").
func (s *Store) Upsert(ctx context.Context, table string, row store.Row, onConflict string) ([]store.Row, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}
	if onConflict == "" {
		onConflict = "id"
	}

	cols := strings.Split(onConflict, ",")

	s.mu.Lock()
	defer s.mu.Unlock()

	for i, existing := range s.tables[table] {
		if !sameKey(existing, row, cols) {
			continue
		}

		next := clone(existing)
		for k, v := range row {
			if k == "created_at" {
				continue
			}
			next[k] = v
		}
		next["updated_at"] = s.now()
		s.tables[table][i] = next

		return []store.Row{clone(next)}, nil
	}

	prepared, err := s.prepare(row)
	if err != nil {
		return nil, err
	}
	if err := s.checkUnique(table, prepared, -1); err != nil {
		return nil, err
	}
	s.tables[table] = append(s.tables[table], prepared)

	return []store.Row{clone(prepared)}, nil
}

func (s *Store) Delete(ctx context.Context, table string, filters ...store.Filter) error {
	if err := checkTable(table); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.tables[table][:0:0]
	for _, row := range s.tables[table] {
		if !matchesAll(row, filters) {
			kept = append(kept, row)
		}
	}
	s.tables[table] = kept

	return nil
}

// Len returns the number of rows in a partition.
func (s *Store) Len(table string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.tables[table])
}

func (s *Store) prepare(in store.Row) (store.Row, error) {
	if err := checkColumns(in); err != nil {
		return nil, err
	}

	row := clone(in)
	if id, _ := row["id"].(string); id == "" {
		row["id"] = uuid.NewString()
	}

	now := s.now()
	if _, ok := row["created_at"]; !ok {
		row["created_at"] = now
	}
	if _, ok := row["updated_at"]; !ok {
		row["updated_at"] = now
	}

	return row, nil
}

func (s *Store) checkUnique(table string, row store.Row, skip int) error {
	keys := append([][]string{{"id"}}, uniqueKeys[table]...)

	for i, existing := range s.tables[table] {
		if i == skip {
			continue
		}
		for _, cols := range keys {
			if sameKey(existing, row, cols) {
				return &store.Error{
					Status:  http.StatusConflict,
					Code:    store.CodeUniqueViolation,
					Message: fmt.Sprintf("duplicate key (%s) in %s", strings.Join(cols, ","), table),
				}
			}
		}
	}

	return nil
}

func checkColumns(row store.Row) error {
	for k := range row {
		if !store.ValidIdentifier(k) {
			return fmt.Errorf("%w: %q", store.ErrBadColumn, k)
		}
	}
	return nil
}

func sameKey(a, b store.Row, cols []string) bool {
	for _, c := range cols {
		c = strings.TrimSpace(c)
		av, aok := a[c]
		bv, bok := b[c]
		if !aok || !bok || av == nil || bv == nil {
			return false
		}
		if compare(av, bv) != 0 {
			return false
		}
	}
	return true
}

func clone(row store.Row) store.Row {
	out := make(store.Row, len(row))
	for k, v := range row {
		out[k] = v
	}
	return out
}
