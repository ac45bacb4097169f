package observability

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/geocoder89/kidshub/internal/actorctx"
	"github.com/geocoder89/kidshub/internal/store"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestClassifyDBErr(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{&pgconn.PgError{Code: "23505"}, "unique_violation"},
		{&pgconn.PgError{Code: "23503"}, "foreign_key_violation"},
		{&pgconn.PgError{Code: "42P01"}, "pg_42P01"},
		{errors.New("context deadline exceeded"), "timeout"},
		{errors.New("connection refused"), "connection"},
		{errors.New("boom"), "unknown"},
	}

	for _, tc := range cases {
		if got := classifyDBErr(tc.err); got != tc.want {
			t.Fatalf("classifyDBErr(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}

func TestObserveDB_CountsErrors(t *testing.T) {
	p := NewProm(prometheus.NewRegistry())

	_ = p.ObserveDB("rows.select", func() error { return nil })
	_ = p.ObserveDB("rows.select", func() error { return &pgconn.PgError{Code: "23505"} })

	got := testutil.ToFloat64(p.DbErrorsTotal.WithLabelValues("rows.select", "unique_violation"))
	if got != 1 {
		t.Fatalf("expected 1 error, got %v", got)
	}
}

func TestJobStarted_RecordsResult(t *testing.T) {
	p := NewProm(prometheus.NewRegistry())

	done := p.JobStarted("enrollment_confirmation")
	if v := testutil.ToFloat64(p.JobsInFlight); v != 1 {
		t.Fatalf("expected 1 in flight, got %v", v)
	}
	done(JobResultDone)

	if v := testutil.ToFloat64(p.JobsInFlight); v != 0 {
		t.Fatalf("expected 0 in flight, got %v", v)
	}
	if v := testutil.ToFloat64(p.JobResults.WithLabelValues("enrollment_confirmation", JobResultDone)); v != 1 {
		t.Fatalf("expected 1 done, got %v", v)
	}

	var nilProm *Prom
	nilProm.JobStarted("x")(JobResultFailed)
	nilProm.GrantResult("password", "ok")
	nilProm.EnrollmentOutcome("created")
	nilProm.NotificationResult("enrollment.confirmed", "sent")
}

func TestCLILogger_QuietByDefault(t *testing.T) {
	var buf bytes.Buffer

	NewCLILogger(&buf, false).Info("hidden")
	NewCLILogger(&buf, false).Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, "shown") {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestInitTracer_Disabled(t *testing.T) {
	shutdown, err := InitTracer(context.Background(), TracingConfig{ServiceName: "kidshub-api"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestContextHandler_AddsRequestAttrs(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(NewContextHandler(slog.NewJSONHandler(&buf, nil)))

	ctx := actorctx.WithUserID(actorctx.WithRequestID(context.Background(), "req-1"), "user-7")
	log.InfoContext(ctx, "enrolled")
	log.Info("plain")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %q", buf.String())
	}
	if !strings.Contains(lines[0], `"request_id":"req-1"`) || !strings.Contains(lines[0], `"user_id":"user-7"`) {
		t.Fatalf("missing request attrs: %s", lines[0])
	}
	if strings.Contains(lines[1], "request_id") {
		t.Fatalf("plain record must not carry request attrs: %s", lines[1])
	}
}

func TestObserveDB_RejectionsAreNotErrors(t *testing.T) {
	p := NewProm(prometheus.NewRegistry())

	err := p.ObserveDB("enrollments.create", func() error {
		return &store.Error{Status: 409, Code: store.CodeActivityFull}
	})
	if !store.HasCode(err, store.CodeActivityFull) {
		t.Fatalf("error must pass through, got %v", err)
	}
	if n := testutil.CollectAndCount(p.DbErrorsTotal); n != 0 {
		t.Fatalf("expected no db error series, got %d", n)
	}
	if n := testutil.CollectAndCount(p.DbQueryDuration); n != 1 {
		t.Fatalf("expected one duration series, got %d", n)
	}
}
