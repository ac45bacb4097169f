package session

import (
	"context"

	"github.com/geocoder89/kidshub/internal/provider"
)

// Start subscribes to provider events and schedules the initial
// reconciliation. Only the first call subscribes; the returned func
// unsubscribes.
func (s *Store) Start(ctx context.Context) func() {
	if !s.started.CompareAndSwap(false, true) {
		return func() {}
	}

	if s.demo {
		s.Reconcile(ctx, ReconcileOptions{})
		return func() {}
	}

	unsubscribe := s.idp.OnAuthStateChange(s.handleAuthEvent)
	s.schedule(ReconcileOptions{})
	return unsubscribe
}

func (s *Store) handleAuthEvent(event provider.AuthEvent, sess *provider.Session) {
	defer s.absorb("auth event")

	if s.demo {
		return
	}

	if event == provider.EventSignedOut {
		s.cache.Clear()
		s.update(signedOut)
		s.redirect.RedirectToLogin()
		return
	}

	if !event.Active() || sess == nil {
		return
	}

	cur := s.Snapshot()
	differentUser := cur.User == nil || cur.User.ID != sess.User.ID
	forced := event == provider.EventUserUpdated

	if differentUser || !cur.IsAuthenticated || forced {
		s.schedule(ReconcileOptions{ForceProfileRefresh: forced})
		return
	}

	if cur.IsLoading {
		s.setLoading(false)
	}
}

// schedule runs one reconciliation after the caller returns, unless one is
// already in flight, in which case the trigger is dropped.
func (s *Store) schedule(opts ReconcileOptions) bool {
	if !s.inFlight.CompareAndSwap(false, true) {
		return false
	}

	s.pending.Add(1)
	s.sched.Schedule(func() {
		defer s.pending.Add(-1)
		defer s.inFlight.Store(false)

		ctx, cancel := context.WithTimeout(context.Background(), s.reconcileTimeout)
		defer cancel()

		s.Reconcile(ctx, opts)
	})
	return true
}
