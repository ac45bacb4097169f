package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/geocoder89/kidshub/internal/domain/delivery"
	"github.com/geocoder89/kidshub/internal/domain/job"
	"github.com/geocoder89/kidshub/internal/jobs"
	"github.com/geocoder89/kidshub/internal/notifications"
	"github.com/geocoder89/kidshub/internal/observability"
	"github.com/geocoder89/kidshub/internal/repo/postgres"
)

// errPermanent marks failures a retry cannot fix.
var errPermanent = errors.New("permanent job failure")

// ProcessOne claims and runs at most one job. It reports whether a job was
// claimed.
func (w *Worker) ProcessOne(ctx context.Context) (bool, error) {
	claimCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	j, err := w.repo.ClaimNext(claimCtx, w.cfg.WorkerID)
	cancel()

	if err != nil {
		if errors.Is(err, job.ErrJobNotFound) {
			return false, nil
		}
		return false, err
	}

	// a claimed job runs to completion even when shutdown starts
	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.cfg.JobTimeout)
	defer cancel()

	finish := w.prom.JobStarted(j.Type)
	log := w.log.With("job_id", j.ID, "job_type", j.Type, "attempt", j.Attempts+1)

	err = w.execute(runCtx, j)
	if err != nil {
		finish(w.handleFailure(runCtx, j, err))
		log.Warn("job failed", "err", err)
		return true, nil
	}

	if err := w.repo.MarkDone(runCtx, j.ID); err != nil {
		_ = w.repo.MarkFailed(runCtx, j.ID, "mark_done_failed: "+err.Error())
		finish(observability.JobResultFailed)
		return true, err
	}

	finish(observability.JobResultDone)
	log.Info("job done")
	return true, nil
}

func (w *Worker) handleFailure(ctx context.Context, j job.Job, cause error) string {
	msg := cause.Error()

	if errors.Is(cause, errPermanent) || j.LastAttempt() {
		if err := w.repo.MarkFailed(ctx, j.ID, msg); err != nil {
			w.log.Error("mark job failed", "job_id", j.ID, "err", err)
		}
		return observability.JobResultFailed
	}

	runAt := w.now().Add(w.backoff(j.Attempts))
	if err := w.repo.Reschedule(ctx, j.ID, runAt, msg); err != nil {
		w.log.Error("reschedule job", "job_id", j.ID, "err", err)
	}
	return observability.JobResultRetry
}

func (w *Worker) execute(ctx context.Context, j job.Job) error {
	t, p, err := jobs.DecodePayload(j)
	if err != nil {
		return fmt.Errorf("%w: %v", errPermanent, err)
	}

	n, err := w.notices.Notice(ctx, p.EnrollmentID)
	if err != nil {
		if errors.Is(err, postgres.ErrEnrollmentNotFound) {
			return fmt.Errorf("%w: enrollment %s is gone", errPermanent, p.EnrollmentID)
		}
		return err
	}

	notice, kind := toNotice(t, n)

	// a confirmation for an enrollment cancelled in the meantime is moot
	if t == jobs.JobEnrollmentConfirmation && n.Status == "cancelled" {
		w.log.Info("skipping confirmation for cancelled enrollment", "enrollment_id", n.EnrollmentID)
		w.prom.NotificationResult(string(kind), "skipped")
		return nil
	}

	if w.deliveries != nil {
		err := w.deliveries.TryStart(ctx, kind, n.EnrollmentID, j.ID, n.Email)
		switch {
		case errors.Is(err, delivery.ErrAlreadySent):
			w.prom.NotificationResult(string(kind), "skipped")
			return nil
		case err != nil:
			return err
		}
	}

	if err := w.notifier.SendEnrollmentNotice(ctx, notice); err != nil {
		w.prom.NotificationResult(string(kind), "failed")
		if w.deliveries != nil {
			_ = w.deliveries.MarkFailed(ctx, kind, n.EnrollmentID, err.Error())
		}
		if errors.Is(err, notifications.ErrNoRecipient) {
			return fmt.Errorf("%w: %v", errPermanent, err)
		}
		return err
	}

	w.prom.NotificationResult(string(kind), "sent")
	if w.deliveries != nil {
		return w.deliveries.MarkSent(ctx, kind, n.EnrollmentID)
	}
	return nil
}

func toNotice(t jobs.JobType, n postgres.EnrollmentNotice) (notifications.EnrollmentNotice, delivery.Kind) {
	out := notifications.EnrollmentNotice{
		Kind:          notifications.NoticeConfirmed,
		EnrollmentID:  n.EnrollmentID,
		Email:         n.Email,
		GuardianName:  n.GuardianName,
		ChildName:     n.ChildName,
		ActivityTitle: n.ActivityTitle,
		StartAt:       n.StartAt,
	}
	kind := delivery.KindEnrollmentConfirmed

	if t == jobs.JobEnrollmentCancelled {
		out.Kind = notifications.NoticeCancelled
		kind = delivery.KindEnrollmentCancelled
	}
	return out, kind
}
