package data

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/geocoder89/kidshub/internal/domain/activity"
	"github.com/geocoder89/kidshub/internal/domain/enrollment"
	"github.com/geocoder89/kidshub/internal/domain/profile"
	"github.com/geocoder89/kidshub/internal/domain/review"
	"github.com/geocoder89/kidshub/internal/repo/memory"
	"github.com/geocoder89/kidshub/internal/store"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestClient() (*Client, *memory.Store) {
	db := memory.NewStore()
	return New(db, nil, WithClock(func() time.Time { return fixedNow })), db
}

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }

func TestGuardians_PhoneStoredInternationalShownNational(t *testing.T) {
	c, db := newTestClient()
	ctx := context.Background()

	_, err := c.Guardians.Upsert(ctx, profile.GuardianProfile{ID: "g1", Email: "a@b.com", FirstName: "Sarah", Phone: "0898 788 555"})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}

	rows, _ := db.Select(ctx, store.TableGuardians, store.Where(store.Eq("id", "g1")))
	if got := rows[0]["phone"]; got != "+359898788555" {
		t.Fatalf("stored phone = %v, want +359898788555", got)
	}
	if got := rows[0]["first_name"]; got != "Sarah" {
		t.Fatalf("expected snake_case column first_name, got row %v", rows[0])
	}

	g, err := c.Guardians.Get(ctx, "g1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if g.Phone != "0898788555" || g.FirstName != "Sarah" {
		t.Fatalf("unexpected profile %+v", g)
	}
}

func TestGuardians_GetMissing(t *testing.T) {
	c, _ := newTestClient()

	_, err := c.Guardians.Get(context.Background(), "nope")
	if !errors.Is(err, ErrNotFound) || !errors.Is(err, profile.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestGuardians_ChildrenNewestFirstWithAge(t *testing.T) {
	c, db := newTestClient()
	ctx := context.Background()

	_, _ = db.Insert(ctx, store.TableChildren,
		store.Row{"id": "c1", "guardian_id": "g1", "first_name": "Old", "date_of_birth": "2016-05-10", "created_at": fixedNow.Add(-48 * time.Hour)},
		store.Row{"id": "c2", "guardian_id": "g1", "first_name": "New", "date_of_birth": "2019-01-02", "created_at": fixedNow.Add(-time.Hour)},
		store.Row{"id": "c3", "guardian_id": "g2", "first_name": "Other", "date_of_birth": "2018-01-01"},
	)

	kids, err := c.Guardians.Children(ctx, "g1")
	if err != nil {
		t.Fatalf("children: %v", err)
	}
	if len(kids) != 2 {
		t.Fatalf("expected 2 children, got %d", len(kids))
	}
	if kids[0].ID != "c2" || kids[1].ID != "c1" {
		t.Fatalf("expected newest first, got %s, %s", kids[0].ID, kids[1].ID)
	}
	if kids[0].Age == nil || *kids[0].Age != 7 {
		t.Fatalf("expected age 7, got %v", kids[0].Age)
	}
}

func TestGuardians_AddUpdateRemoveChild(t *testing.T) {
	c, _ := newTestClient()
	ctx := context.Background()

	if _, err := c.Guardians.AddChild(ctx, "g1", profile.Child{FirstName: "Mila", DateOfBirth: "not-a-date"}); err == nil {
		t.Fatalf("expected invalid date error")
	}

	child, err := c.Guardians.AddChild(ctx, "g1", profile.Child{FirstName: "Mila", LastName: "Ivanova", DateOfBirth: "2018-06-01"})
	if err != nil {
		t.Fatalf("add child: %v", err)
	}
	if child.ID == "" || child.GuardianID != "g1" {
		t.Fatalf("unexpected child %+v", child)
	}

	child.FirstName = "Milena"
	updated, err := c.Guardians.UpdateChild(ctx, child)
	if err != nil {
		t.Fatalf("update child: %v", err)
	}
	if updated.FirstName != "Milena" {
		t.Fatalf("expected renamed child, got %+v", updated)
	}

	if err := c.Guardians.RemoveChild(ctx, child.ID); err != nil {
		t.Fatalf("remove child: %v", err)
	}
	kids, _ := c.Guardians.Children(ctx, "g1")
	if len(kids) != 0 {
		t.Fatalf("expected no children, got %d", len(kids))
	}
}

func TestOrganizers_UpdatePatch(t *testing.T) {
	c, _ := newTestClient()
	ctx := context.Background()

	_, err := c.Organizers.Upsert(ctx, profile.OrganizerProfile{ID: "o1", Email: "o@b.com", OrganizationName: "Art Club"})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, err := c.Organizers.Update(ctx, "o1", profile.Patch{Website: strPtr("https://art.example.bg"), Phone: strPtr("0888123456")})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got.OrganizationName != "Art Club" || got.Website != "https://art.example.bg" || got.Phone != "0888123456" {
		t.Fatalf("unexpected organizer %+v", got)
	}

	if _, err := c.Organizers.Update(ctx, "missing", profile.Patch{Website: strPtr("x")}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestGuardians_UpdatesWriteSnakeCaseColumns(t *testing.T) {
	c, db := newTestClient()
	ctx := context.Background()

	if _, err := c.Guardians.Upsert(ctx, profile.GuardianProfile{ID: "g1", Email: "a@b.com", FirstName: "Sarah"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if _, err := c.Guardians.Update(ctx, "g1", profile.Patch{LastName: strPtr("Petrova"), Phone: strPtr("0888 123 456")}); err != nil {
		t.Fatalf("update: %v", err)
	}

	rows, _ := db.Select(ctx, store.TableGuardians, store.Where(store.Eq("id", "g1")))
	row := rows[0]
	if row["last_name"] != "Petrova" || row["phone"] != "+359888123456" || row["first_name"] != "Sarah" {
		t.Fatalf("unexpected guardian row %v", row)
	}
	if _, ok := row["lastName"]; ok {
		t.Fatalf("camelCase key written to row %v", row)
	}

	kid, err := c.Guardians.AddChild(ctx, "g1", profile.Child{FirstName: "Ani", DateOfBirth: "2018-04-02"})
	if err != nil {
		t.Fatalf("add child: %v", err)
	}
	kid.DateOfBirth = "2018-04-03"
	if _, err := c.Guardians.UpdateChild(ctx, kid); err != nil {
		t.Fatalf("update child: %v", err)
	}

	rows, _ = db.Select(ctx, store.TableChildren, store.Where(store.Eq("id", kid.ID)))
	if rows[0]["date_of_birth"] != "2018-04-03" {
		t.Fatalf("unexpected child row %v", rows[0])
	}
	if _, ok := rows[0]["dateOfBirth"]; ok {
		t.Fatalf("camelCase key written to row %v", rows[0])
	}
}

func seedActivity(t *testing.T, c *Client, capacity int) activity.Activity {
	t.Helper()
	act, err := c.Activities.Create(context.Background(), "o1", activity.CreateRequest{
		Title:    "Chess for Kids",
		City:     "Sofia",
		Category: "games",
		StartAt:  fixedNow.Add(72 * time.Hour),
		AgeMin:   6,
		AgeMax:   12,
		Capacity: capacity,
		Price:    25,
	})
	if err != nil {
		t.Fatalf("create activity: %v", err)
	}
	return act
}

func TestActivities_CreateListFilter(t *testing.T) {
	c, _ := newTestClient()
	ctx := context.Background()

	seedActivity(t, c, 10)
	_, err := c.Activities.Create(ctx, "o2", activity.CreateRequest{
		Title:    "Toddler Swim",
		City:     "Plovdiv",
		StartAt:  fixedNow.Add(24 * time.Hour),
		AgeMin:   2,
		AgeMax:   4,
		Capacity: 5,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := c.Activities.Create(ctx, "o1", activity.CreateRequest{Title: "x"}); err == nil {
		t.Fatalf("expected validation error")
	}

	tests := []struct {
		name   string
		filter activity.ListFilter
		want   []string
	}{
		{"all ordered by start", activity.ListFilter{}, []string{"Toddler Swim", "Chess for Kids"}},
		{"city", activity.ListFilter{City: strPtr("sofia")}, []string{"Chess for Kids"}},
		{"query", activity.ListFilter{Query: strPtr("swim")}, []string{"Toddler Swim"}},
		{"age", activity.ListFilter{Age: intPtr(8)}, []string{"Chess for Kids"}},
		{"limit", activity.ListFilter{Limit: 1}, []string{"Toddler Swim"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.Activities.List(ctx, tt.filter)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d activities, want %d", len(got), len(tt.want))
			}
			for i, title := range tt.want {
				if got[i].Title != title {
					t.Fatalf("item %d = %q, want %q", i, got[i].Title, title)
				}
			}
		})
	}
}

func TestActivities_UpdateAndDelete(t *testing.T) {
	c, _ := newTestClient()
	ctx := context.Background()
	act := seedActivity(t, c, 10)

	updated, err := c.Activities.Update(ctx, act.ID, activity.UpdateRequest{Capacity: intPtr(20)})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Capacity != 20 || updated.Title != act.Title {
		t.Fatalf("unexpected update result %+v", updated)
	}

	if err := c.Activities.Delete(ctx, act.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := c.Activities.Get(ctx, act.ID); !errors.Is(err, activity.ErrNotFound) {
		t.Fatalf("expected activity.ErrNotFound, got %v", err)
	}
}

func TestEnrollments_DuplicateAndCapacity(t *testing.T) {
	c, _ := newTestClient()
	ctx := context.Background()
	act := seedActivity(t, c, 1)

	en, err := c.Enrollments.Create(ctx, enrollment.CreateRequest{ActivityID: act.ID, ChildID: "c1", GuardianID: "g1"})
	if err != nil {
		t.Fatalf("enroll: %v", err)
	}
	if en.Status != enrollment.StatusPending {
		t.Fatalf("expected pending, got %s", en.Status)
	}

	_, err = c.Enrollments.Create(ctx, enrollment.CreateRequest{ActivityID: act.ID, ChildID: "c1", GuardianID: "g1"})
	if !errors.Is(err, enrollment.ErrAlreadyEnrolled) {
		t.Fatalf("expected ErrAlreadyEnrolled, got %v", err)
	}

	_, err = c.Enrollments.Create(ctx, enrollment.CreateRequest{ActivityID: act.ID, ChildID: "c2", GuardianID: "g2"})
	if !errors.Is(err, enrollment.ErrActivityFull) {
		t.Fatalf("expected ErrActivityFull, got %v", err)
	}

	if err := c.Enrollments.Cancel(ctx, en.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	// A freed seat can be taken, and the cancelled pair reopens.
	again, err := c.Enrollments.Create(ctx, enrollment.CreateRequest{ActivityID: act.ID, ChildID: "c1", GuardianID: "g1"})
	if err != nil {
		t.Fatalf("re-enroll: %v", err)
	}
	if again.ID != en.ID || again.Status != enrollment.StatusPending {
		t.Fatalf("expected reopened enrollment, got %+v", again)
	}

	mine, err := c.Enrollments.ForGuardian(ctx, "g1")
	if err != nil || len(mine) != 1 {
		t.Fatalf("ForGuardian = %v, %v", mine, err)
	}
}

func TestEnrollments_SetStatusRejectsUnknown(t *testing.T) {
	c, _ := newTestClient()

	if _, err := c.Enrollments.SetStatus(context.Background(), "e1", enrollment.Status("waitlisted")); err == nil {
		t.Fatalf("expected invalid status error")
	}
}

// rejectingUpdates fails every Update with err.
type rejectingUpdates struct {
	*memory.Store
	err error
}

func (r rejectingUpdates) Update(context.Context, string, store.Row, ...store.Filter) ([]store.Row, error) {
	return nil, r.err
}

func TestEnrollments_SetStatusErrors(t *testing.T) {
	full := &store.Error{Status: 409, Code: store.CodeActivityFull, Message: "activity is full"}
	c := New(rejectingUpdates{Store: memory.NewStore(), err: full}, nil)

	_, err := c.Enrollments.SetStatus(context.Background(), "e1", enrollment.StatusPending)
	if !errors.Is(err, enrollment.ErrActivityFull) {
		t.Fatalf("expected ErrActivityFull, got %v", err)
	}

	down := errors.New("connection refused")
	c = New(rejectingUpdates{Store: memory.NewStore(), err: down}, nil)

	_, err = c.Enrollments.SetStatus(context.Background(), "e1", enrollment.StatusConfirmed)
	if !errors.Is(err, down) {
		t.Fatalf("expected wrapped transport error, got %v", err)
	}
	if want := "set enrollment e1 status to confirmed: connection refused"; err.Error() != want {
		t.Fatalf("error = %q, want %q", err.Error(), want)
	}
}

func TestReviews_CreateAverageDuplicate(t *testing.T) {
	c, _ := newTestClient()
	ctx := context.Background()

	if _, err := c.Reviews.Create(ctx, review.CreateRequest{ActivityID: "a1", GuardianID: "g1", Rating: 6}); err == nil {
		t.Fatalf("expected rating validation error")
	}

	for i, g := range []string{"g1", "g2"} {
		if _, err := c.Reviews.Create(ctx, review.CreateRequest{ActivityID: "a1", GuardianID: g, Rating: 4 + i}); err != nil {
			t.Fatalf("create review: %v", err)
		}
	}

	_, err := c.Reviews.Create(ctx, review.CreateRequest{ActivityID: "a1", GuardianID: "g1", Rating: 3})
	if !errors.Is(err, review.ErrAlreadyReviewed) {
		t.Fatalf("expected ErrAlreadyReviewed, got %v", err)
	}

	avg, n, err := c.Reviews.Average(ctx, "a1")
	if err != nil {
		t.Fatalf("average: %v", err)
	}
	if n != 2 || avg != 4.5 {
		t.Fatalf("average = %v over %d, want 4.5 over 2", avg, n)
	}
}
