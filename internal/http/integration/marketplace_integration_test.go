package integration_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/geocoder89/kidshub/internal/auth"
	"github.com/geocoder89/kidshub/internal/client"
	"github.com/geocoder89/kidshub/internal/data"
	"github.com/geocoder89/kidshub/internal/db"
	"github.com/geocoder89/kidshub/internal/domain/activity"
	"github.com/geocoder89/kidshub/internal/domain/delivery"
	"github.com/geocoder89/kidshub/internal/domain/enrollment"
	"github.com/geocoder89/kidshub/internal/domain/profile"
	apphttp "github.com/geocoder89/kidshub/internal/http"
	"github.com/geocoder89/kidshub/internal/jobs"
	"github.com/geocoder89/kidshub/internal/persist"
	"github.com/geocoder89/kidshub/internal/repo/postgres"
	"github.com/geocoder89/kidshub/internal/session"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

const anonKey = "test-anon-key"

func setupBackend(t *testing.T) (*httptest.Server, *pgxpool.Pool) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := os.Getenv("TEST_DB_DSN")
	if dsn == "" {
		t.Skip("TEST_DB_DSN not set")
	}

	ctx := context.Background()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("Failed to create pgx pool: %v", err)
	}
	t.Cleanup(pool.Close)

	if err := db.Migrate(ctx, pool); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	resetDB(t, pool)
	t.Cleanup(func() { resetDB(t, pool) })

	jobsRepo := postgres.NewJobsRepo(pool, nil)
	router := apphttp.NewRouter(apphttp.Deps{
		Log:           slog.New(slog.NewTextHandler(io.Discard, nil)),
		Env:           "test",
		AnonKey:       anonKey,
		JWT:           auth.NewManager("test-secret-key", time.Hour, 24*time.Hour),
		Accounts:      postgres.NewAccountsRepo(pool, nil),
		RefreshTokens: postgres.NewRefreshTokensRepo(pool, nil),
		Rows:          postgres.NewStore(pool, nil),
		Enrollments:   postgres.NewEnrollmentsRepo(pool, nil, jobsRepo),
	})

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, pool
}

func resetDB(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()

	_, err := pool.Exec(context.Background(), `
		TRUNCATE notification_deliveries, jobs, reviews, enrollments, activities,
			children, guardians, organizers, refresh_tokens, accounts
		RESTART IDENTITY CASCADE
	`)
	if err != nil {
		t.Fatalf("failed to truncate tables: %v", err)
	}
}

// member is one signed in client: its own token storage, session and data façade.
type member struct {
	session *session.Store
	data    *data.Client
}

func signUp(t *testing.T, srv *httptest.Server, email string, in session.SignUpData) member {
	t.Helper()
	ctx := context.Background()

	cfg := client.Config{BaseURL: srv.URL, APIKey: anonKey, Storage: persist.NewMemoryStorage()}
	idp := client.NewAuth(cfg)
	t.Cleanup(idp.Close)
	rows := client.NewRest(cfg, idp)

	s := session.New(ctx, session.Deps{Identity: idp, Store: rows, Storage: cfg.Storage})
	t.Cleanup(s.Start(ctx))

	if err := s.SignUp(ctx, email, "password123", in); err != nil {
		t.Fatalf("sign up %s: %v", email, err)
	}
	waitCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := s.WaitIdle(waitCtx); err != nil {
		t.Fatalf("wait idle: %v", err)
	}

	st := s.Snapshot()
	if !st.IsAuthenticated || st.User == nil {
		t.Fatalf("sign up %s: not authenticated, state=%+v", email, st)
	}
	if st.UserKind != in.UserType {
		t.Fatalf("sign up %s: kind=%q, want %q", email, st.UserKind, in.UserType)
	}
	return member{session: s, data: data.New(rows, idp)}
}

func TestMarketplaceIntegration_EnrollAndConfirm(t *testing.T) {
	srv, pool := setupBackend(t)
	ctx := context.Background()

	org := signUp(t, srv, "club@example.com", session.SignUpData{
		UserType:         profile.KindOrganizer,
		OrganizationName: "Chess Club Sofia",
		Phone:            "+359888123456",
	})
	parent := signUp(t, srv, "maria@example.com", session.SignUpData{
		UserType:  profile.KindGuardian,
		FirstName: "Maria",
		LastName:  "Ivanova",
	})

	orgID := org.session.Snapshot().User.ID
	parentID := parent.session.Snapshot().User.ID

	act, err := org.data.Activities.Create(ctx, orgID, activity.CreateRequest{
		Title:    "Junior Chess",
		City:     "Sofia",
		StartAt:  time.Now().Add(72 * time.Hour).UTC(),
		AgeMin:   6,
		AgeMax:   12,
		Capacity: 1,
	})
	if err != nil {
		t.Fatalf("create activity: %v", err)
	}

	kid, err := parent.data.Guardians.AddChild(ctx, parentID, profile.Child{FirstName: "Ani", DateOfBirth: "2017-03-01"})
	if err != nil {
		t.Fatalf("add child: %v", err)
	}
	sibling, err := parent.data.Guardians.AddChild(ctx, parentID, profile.Child{FirstName: "Ivo", DateOfBirth: "2016-05-10"})
	if err != nil {
		t.Fatalf("add sibling: %v", err)
	}

	en, err := parent.data.Enrollments.Create(ctx, enrollment.CreateRequest{ActivityID: act.ID, ChildID: kid.ID, GuardianID: parentID})
	if err != nil {
		t.Fatalf("enroll: %v", err)
	}
	if en.Status != enrollment.StatusPending {
		t.Fatalf("enroll status=%q, want pending", en.Status)
	}

	if _, err := parent.data.Enrollments.Create(ctx, enrollment.CreateRequest{ActivityID: act.ID, ChildID: sibling.ID, GuardianID: parentID}); !errors.Is(err, enrollment.ErrActivityFull) {
		t.Fatalf("second enroll err=%v, want ErrActivityFull", err)
	}

	// The organizer sees the enrollment of its own activity and confirms it.
	list, err := org.data.Enrollments.ForActivity(ctx, act.ID)
	if err != nil || len(list) != 1 {
		t.Fatalf("organizer enrollments = %v, %v", list, err)
	}
	confirmed, err := org.data.Enrollments.SetStatus(ctx, en.ID, enrollment.StatusConfirmed)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if confirmed.Status != enrollment.StatusConfirmed {
		t.Fatalf("status=%q, want confirmed", confirmed.Status)
	}

	var queued int
	err = pool.QueryRow(ctx, `SELECT count(*) FROM jobs WHERE type = $1`, string(jobs.JobEnrollmentConfirmation)).Scan(&queued)
	if err != nil {
		t.Fatalf("count jobs: %v", err)
	}
	if queued != 1 {
		t.Fatalf("confirmation jobs=%d, want 1", queued)
	}

	deliveries := postgres.NewDeliveriesRepo(pool, nil)
	jobA, jobB := uuid.NewString(), uuid.NewString()
	kind := delivery.KindEnrollmentConfirmed

	if err := deliveries.TryStart(ctx, kind, en.ID, jobA, "maria@example.com"); err != nil {
		t.Fatalf("try start: %v", err)
	}
	if err := deliveries.TryStart(ctx, kind, en.ID, jobB, "maria@example.com"); !errors.Is(err, delivery.ErrInProgress) {
		t.Fatalf("second worker err=%v, want ErrInProgress", err)
	}
	if err := deliveries.MarkFailed(ctx, kind, en.ID, "smtp down"); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	if err := deliveries.TryStart(ctx, kind, en.ID, jobB, "maria@example.com"); err != nil {
		t.Fatalf("reclaim failed delivery: %v", err)
	}
	if err := deliveries.MarkSent(ctx, kind, en.ID); err != nil {
		t.Fatalf("mark sent: %v", err)
	}
	if err := deliveries.TryStart(ctx, kind, en.ID, jobA, "maria@example.com"); !errors.Is(err, delivery.ErrAlreadySent) {
		t.Fatalf("after send err=%v, want ErrAlreadySent", err)
	}
}

func TestMarketplaceIntegration_RowsAreScopedToOwner(t *testing.T) {
	srv, _ := setupBackend(t)
	ctx := context.Background()

	a := signUp(t, srv, "a@example.com", session.SignUpData{UserType: profile.KindGuardian, FirstName: "A"})
	b := signUp(t, srv, "b@example.com", session.SignUpData{UserType: profile.KindGuardian, FirstName: "B"})

	aID := a.session.Snapshot().User.ID
	if _, err := a.data.Guardians.AddChild(ctx, aID, profile.Child{FirstName: "Kid", DateOfBirth: "2018-01-01"}); err != nil {
		t.Fatalf("add child: %v", err)
	}

	theirs, err := b.data.Guardians.Children(ctx, aID)
	if err != nil {
		t.Fatalf("children: %v", err)
	}
	if len(theirs) != 0 {
		t.Fatalf("guardian b sees %d children of guardian a", len(theirs))
	}
}
