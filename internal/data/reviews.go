package data

import (
	"context"
	"fmt"

	"github.com/geocoder89/kidshub/internal/domain/review"
	"github.com/geocoder89/kidshub/internal/store"
	"github.com/google/uuid"
)

type Reviews struct{ d *deps }

func (r *Reviews) Create(ctx context.Context, req review.CreateRequest) (review.Review, error) {
	if err := r.d.validateStruct(req); err != nil {
		return review.Review{}, err
	}

	rv := review.Review{
		ID:         uuid.NewString(),
		ActivityID: req.ActivityID,
		GuardianID: req.GuardianID,
		Rating:     req.Rating,
		Comment:    req.Comment,
		CreatedAt:  r.d.now().UTC(),
	}

	row, err := encode(rv)
	if err != nil {
		return review.Review{}, err
	}

	rows, err := r.d.db.Insert(ctx, store.TableReviews, row)
	if err != nil {
		if store.HasCode(err, store.CodeUniqueViolation) {
			return review.Review{}, fmt.Errorf("%w: %w", review.ErrAlreadyReviewed, err)
		}
		return review.Review{}, fmt.Errorf("create review: %w", err)
	}
	return firstProfile[review.Review](rows, rv, nil)
}

// ForActivity returns reviews newest first.
func (r *Reviews) ForActivity(ctx context.Context, activityID string) ([]review.Review, error) {
	rows, err := r.d.db.Select(ctx, store.TableReviews,
		store.Where(store.Eq("activity_id", activityID)).OrderBy("created_at", true))
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	return decodeAll[review.Review](rows)
}

func (r *Reviews) Delete(ctx context.Context, id string) error {
	if err := r.d.db.Delete(ctx, store.TableReviews, store.Eq("id", id)); err != nil {
		return fmt.Errorf("delete review %s: %w", id, err)
	}
	return nil
}

// Average returns the mean rating of an activity and how many reviews it
// is based on.
func (r *Reviews) Average(ctx context.Context, activityID string) (float64, int, error) {
	items, err := r.ForActivity(ctx, activityID)
	if err != nil {
		return 0, 0, err
	}
	return review.Average(items), len(items), nil
}
