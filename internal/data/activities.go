package data

import (
	"context"
	"fmt"
	"strings"

	"github.com/geocoder89/kidshub/internal/domain/activity"
	"github.com/geocoder89/kidshub/internal/store"
)

const defaultListLimit = 50

type Activities struct{ d *deps }

// List returns upcoming activities matching filter, ordered by start time.
func (a *Activities) List(ctx context.Context, filter activity.ListFilter) ([]activity.Activity, error) {
	q := store.Query{}

	if filter.City != nil && *filter.City != "" {
		q.Filters = append(q.Filters, store.ILike("city", *filter.City))
	}
	if filter.Category != nil && *filter.Category != "" {
		q.Filters = append(q.Filters, store.Eq("category", *filter.Category))
	}
	if filter.Query != nil && strings.TrimSpace(*filter.Query) != "" {
		q.Filters = append(q.Filters, store.ILike("title", "%"+strings.TrimSpace(*filter.Query)+"%"))
	}
	if filter.Age != nil {
		q.Filters = append(q.Filters, store.Lte("age_min", *filter.Age))
	}
	if filter.From != nil {
		q.Filters = append(q.Filters, store.Gte("start_at", *filter.From))
	}
	if filter.To != nil {
		q.Filters = append(q.Filters, store.Lte("start_at", *filter.To))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	q = q.OrderBy("start_at", false).Page(limit, filter.Offset)

	rows, err := a.d.db.Select(ctx, store.TableActivities, q)
	if err != nil {
		return nil, fmt.Errorf("list activities: %w", err)
	}

	items, err := decodeAll[activity.Activity](rows)
	if err != nil {
		return nil, err
	}

	// age_max of 0 means no upper bound, which a single range filter
	// cannot express.
	if filter.Age != nil {
		kept := items[:0]
		for _, it := range items {
			if it.AcceptsAge(*filter.Age) {
				kept = append(kept, it)
			}
		}
		items = kept
	}

	return items, nil
}

func (a *Activities) Get(ctx context.Context, id string) (activity.Activity, error) {
	return one[activity.Activity](a.d, ctx, store.TableActivities, id, activity.ErrNotFound)
}

func (a *Activities) ByOrganizer(ctx context.Context, organizerID string) ([]activity.Activity, error) {
	rows, err := a.d.db.Select(ctx, store.TableActivities,
		store.Where(store.Eq("organizer_id", organizerID)).OrderBy("start_at", false))
	if err != nil {
		return nil, fmt.Errorf("list activities of %s: %w", organizerID, err)
	}
	return decodeAll[activity.Activity](rows)
}

func (a *Activities) Create(ctx context.Context, organizerID string, req activity.CreateRequest) (activity.Activity, error) {
	if err := a.d.validateStruct(req); err != nil {
		return activity.Activity{}, err
	}
	if req.AgeMax > 0 && req.AgeMin > req.AgeMax {
		return activity.Activity{}, fmt.Errorf("invalid input: ageMin %d is above ageMax %d", req.AgeMin, req.AgeMax)
	}

	act := activity.NewFromCreateRequest(organizerID, req)

	row, err := encode(act)
	if err != nil {
		return activity.Activity{}, err
	}

	rows, err := a.d.db.Insert(ctx, store.TableActivities, row)
	if err != nil {
		return activity.Activity{}, fmt.Errorf("create activity: %w", err)
	}
	return firstProfile[activity.Activity](rows, act, nil)
}

func (a *Activities) Update(ctx context.Context, id string, req activity.UpdateRequest) (activity.Activity, error) {
	if err := a.d.validateStruct(req); err != nil {
		return activity.Activity{}, err
	}

	values, err := encode(req)
	if err != nil {
		return activity.Activity{}, err
	}
	if len(values) == 0 {
		return a.Get(ctx, id)
	}

	rows, err := a.d.db.Update(ctx, store.TableActivities, values, store.Eq("id", id))
	if err != nil {
		return activity.Activity{}, fmt.Errorf("update activity %s: %w", id, err)
	}
	if len(rows) == 0 {
		return activity.Activity{}, fmt.Errorf("%w: %w", activity.ErrNotFound, ErrNotFound)
	}
	return firstProfile[activity.Activity](rows, activity.Activity{}, nil)
}

func (a *Activities) Delete(ctx context.Context, id string) error {
	if err := a.d.db.Delete(ctx, store.TableActivities, store.Eq("id", id)); err != nil {
		return fmt.Errorf("delete activity %s: %w", id, err)
	}
	return nil
}
