package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/geocoder89/kidshub/internal/domain/profile"
	"github.com/geocoder89/kidshub/internal/provider"
)

var errNoDataStore = errors.New("session: no data store configured")

type ReconcileOptions struct {
	ForceProfileRefresh bool
}

// Reconcile brings the state in line with the provider's session and the
// stored profile. It never fails: problems are logged and end with
// IsLoading false.
func (s *Store) Reconcile(ctx context.Context, opts ReconcileOptions) {
	defer s.absorb("reconcile")

	if s.demo {
		s.cache.Clear()
		s.update(signedOut)
		return
	}

	s.cache.Clear()
	s.setLoading(true)

	sess, err := s.idp.GetSession(ctx)
	if err != nil {
		s.log.Warn("get session failed", "err", err)
		s.setLoading(false)
		return
	}

	if sess == nil {
		s.update(func(st *State) {
			if st.IsAuthenticated {
				signedOut(st)
				return
			}
			st.IsLoading = false
		})
		return
	}

	user, err := s.idp.GetUser(ctx)
	if err != nil {
		s.log.Warn("get user failed", "err", err)
		s.setLoading(false)
		return
	}
	if user == nil {
		s.log.Warn("session without user")
		s.setLoading(false)
		return
	}

	if !opts.ForceProfileRefresh {
		cur := s.Snapshot()
		if cur.IsAuthenticated && cur.User != nil && cur.User.ID == user.ID {
			s.setLoading(false)
			return
		}
	}

	if cached, ok := s.cache.Get(user.ID); ok {
		s.adopt(cached)
		return
	}

	meta := profile.MetadataFromMap(user.UserMetadata)

	resolved, err := s.loadProfile(ctx, user, meta.Kind)
	if errors.Is(err, profile.ErrNotFound) {
		// First sign in racing the sign up provisioning: create the row
		// from metadata and look once more.
		s.log.Info("profile row missing, provisioning", "user_id", user.ID, "kind", meta.Kind)
		if err := s.provision(ctx, user.ID, user.Email, meta); err != nil {
			s.log.Warn("provision profile failed", "user_id", user.ID, "err", err)
		}

		resolved, err = s.loadProfile(ctx, user, meta.Kind)
		if err != nil {
			s.log.Warn("profile still unavailable after provisioning", "user_id", user.ID, "err", err)
			s.update(signedOut)
			return
		}
	}
	if err != nil {
		s.log.Warn("load profile failed", "user_id", user.ID, "err", err)
		s.setLoading(false)
		return
	}

	s.cache.Set(user.ID, resolved)
	s.adopt(resolved)
}

// loadProfile reads the partition row for kind and, for guardians, the
// children. A failed children read is logged and treated as no children.
func (s *Store) loadProfile(ctx context.Context, user *provider.User, kind profile.Kind) (profile.User, error) {
	if s.data == nil {
		return profile.User{}, errNoDataStore
	}

	var out profile.User

	switch kind {
	case profile.KindOrganizer:
		row, err := s.data.Organizers.Get(ctx, user.ID)
		if err != nil {
			return profile.User{}, err
		}
		out = row.User()

	default:
		row, err := s.data.Guardians.Get(ctx, user.ID)
		if err != nil {
			return profile.User{}, err
		}

		children, err := s.data.Guardians.Children(ctx, user.ID)
		if err != nil {
			s.log.Warn("load children failed", "user_id", user.ID, "err", err)
			children = nil
		}
		out = row.User(children)
	}

	out.ID = user.ID
	out.Kind = kind
	if out.Email == "" {
		out.Email = user.Email
	}
	return out, nil
}

// provision upserts the minimal partition row for a new account. It is
// idempotent on id, so sign up and reconciliation may both run it.
func (s *Store) provision(ctx context.Context, id, email string, meta profile.Metadata) error {
	if s.data == nil {
		return errNoDataStore
	}

	switch meta.Kind {
	case profile.KindOrganizer:
		if _, err := s.data.Organizers.Upsert(ctx, meta.OrganizerProfile(id, email)); err != nil {
			return fmt.Errorf("upsert organizer: %w", err)
		}
	default:
		if _, err := s.data.Guardians.Upsert(ctx, meta.GuardianProfile(id, email)); err != nil {
			return fmt.Errorf("upsert guardian: %w", err)
		}
	}
	return nil
}
