// Package worker drains the jobs table: it claims runnable jobs, delivers
// the enrollment notices they describe and retries failures with backoff.
package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/geocoder89/kidshub/internal/domain/delivery"
	"github.com/geocoder89/kidshub/internal/domain/job"
	"github.com/geocoder89/kidshub/internal/notifications"
	"github.com/geocoder89/kidshub/internal/observability"
	"github.com/geocoder89/kidshub/internal/repo/postgres"
)

type JobsRepository interface {
	ClaimNext(ctx context.Context, workerID string) (job.Job, error)
	MarkDone(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string, errMsg string) error
	Reschedule(ctx context.Context, id string, runAt time.Time, errMsg string) error
	RequeueStaleProcessing(ctx context.Context, lockTTL time.Duration) (int64, error)
}

type NoticeLoader interface {
	Notice(ctx context.Context, enrollmentID string) (postgres.EnrollmentNotice, error)
}

// DeliveryTracker guards against sending a notice twice.
type DeliveryTracker interface {
	TryStart(ctx context.Context, kind delivery.Kind, enrollmentID, jobID, recipient string) error
	MarkSent(ctx context.Context, kind delivery.Kind, enrollmentID string) error
	MarkFailed(ctx context.Context, kind delivery.Kind, enrollmentID, errMsg string) error
}

type Config struct {
	PollInterval  time.Duration
	WorkerID      string
	Concurrency   int
	ShutdownGrace time.Duration
	// LockTTL is how long a job may stay processing before the reaper
	// hands it to another worker.
	LockTTL    time.Duration
	JobTimeout time.Duration
}

type Deps struct {
	Jobs       JobsRepository
	Notices    NoticeLoader
	Notifier   notifications.Notifier
	Deliveries DeliveryTracker // optional
	Prom       *observability.Prom
	Log        *slog.Logger
}

type Worker struct {
	cfg        Config
	repo       JobsRepository
	notices    NoticeLoader
	notifier   notifications.Notifier
	deliveries DeliveryTracker
	prom       *observability.Prom
	log        *slog.Logger

	now     func() time.Time
	backoff func(attempt int) time.Duration

	readyMu sync.RWMutex
	ready   bool
}

func New(cfg Config, d Deps) *Worker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 250 * time.Millisecond
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.ShutdownGrace <= 0 {
		cfg.ShutdownGrace = 10 * time.Second
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 2 * time.Minute
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 30 * time.Second
	}
	if d.Log == nil {
		d.Log = slog.Default()
	}

	return &Worker{
		cfg:        cfg,
		repo:       d.Jobs,
		notices:    d.Notices,
		notifier:   d.Notifier,
		deliveries: d.Deliveries,
		prom:       d.Prom,
		log:        d.Log.With("worker_id", cfg.WorkerID),
		now:        time.Now,
		backoff:    ExponentialBackoff,
	}
}

// Run polls until ctx is cancelled, then gives in-flight jobs up to
// ShutdownGrace to finish.
func (w *Worker) Run(ctx context.Context) error {
	w.setReady(true)
	defer w.setReady(false)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		w.reapLoop(ctx)
	}()

	for i := 0; i < w.cfg.Concurrency; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			w.loop(ctx, slot)
		}(i)
	}

	w.log.Info("worker started", "concurrency", w.cfg.Concurrency, "poll_interval", w.cfg.PollInterval)

	<-ctx.Done()
	w.setReady(false)
	w.log.Info("worker received shutdown signal")

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(w.cfg.ShutdownGrace):
		w.log.Warn("shutdown grace elapsed with jobs in flight")
		return context.DeadlineExceeded
	}
}

func (w *Worker) loop(ctx context.Context, slot int) {
	for {
		if ctx.Err() != nil {
			return
		}

		claimed, err := w.ProcessOne(ctx)
		if err != nil {
			w.log.Error("process job failed", "slot", slot, "err", err)
		}
		if claimed {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.cfg.PollInterval):
		}
	}
}

func (w *Worker) reapLoop(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.LockTTL / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := w.repo.RequeueStaleProcessing(ctx, w.cfg.LockTTL)
			if err != nil {
				w.log.Error("requeue stale jobs failed", "err", err)
				continue
			}
			if n > 0 {
				w.log.Warn("requeued stale jobs", "count", n)
			}
		}
	}
}

func (w *Worker) setReady(v bool) {
	w.readyMu.Lock()
	w.ready = v
	w.readyMu.Unlock()
}

func (w *Worker) Ready() bool {
	w.readyMu.RLock()
	defer w.readyMu.RUnlock()
	return w.ready
}
