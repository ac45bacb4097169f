package session

import (
	"context"
	"fmt"

	"github.com/geocoder89/kidshub/internal/domain/profile"
	"github.com/geocoder89/kidshub/internal/provider"
)

// SignUpData is the profile information collected by the sign up form.
type SignUpData struct {
	UserType  profile.Kind `validate:"required,oneof=guardian organizer"`
	FirstName string       `validate:"omitempty,max=80"`
	LastName  string       `validate:"omitempty,max=80"`
	Phone     string       `validate:"omitempty,max=32"`

	OrganizationName string `validate:"required_if=UserType organizer,max=160"`
	ContactName      string `validate:"omitempty,max=120"`
	Description      string `validate:"omitempty,max=2000"`
	Website          string `validate:"omitempty,url"`
}

func (d SignUpData) metadata() profile.Metadata {
	m := profile.Metadata{
		Kind:      d.UserType,
		FirstName: d.FirstName,
		LastName:  d.LastName,
		Phone:     d.Phone,
	}
	if d.UserType == profile.KindOrganizer {
		m.Organization = &profile.OrganizationMetadata{
			Name:        d.OrganizationName,
			ContactName: d.ContactName,
			Description: d.Description,
			Website:     d.Website,
		}
	}
	return m
}

// SignIn checks the credentials with the provider and reconciles before
// returning. A rejection comes back as the provider's *provider.AuthError.
func (s *Store) SignIn(ctx context.Context, email, password string) (err error) {
	defer s.absorb("sign in")

	if s.demo {
		return ErrDemoMode
	}

	s.setLoading(true)

	if _, err := s.idp.SignInWithPassword(ctx, email, password); err != nil {
		s.setLoading(false)
		return err
	}

	s.Reconcile(ctx, ReconcileOptions{})
	return nil
}

// SignUp creates the account, provisions its profile row and signs in.
// A failed profile upsert is logged only; reconciliation repairs it.
func (s *Store) SignUp(ctx context.Context, email, password string, in SignUpData) (err error) {
	defer s.absorb("sign up")

	if s.demo {
		return ErrDemoMode
	}

	if err := s.validate.Var(email, "required,email"); err != nil {
		return fmt.Errorf("invalid email: %w", err)
	}
	if err := s.validate.Var(password, "required,min=6"); err != nil {
		return fmt.Errorf("invalid password: %w", err)
	}
	if err := s.validate.Struct(in); err != nil {
		return fmt.Errorf("invalid sign up data: %w", err)
	}

	meta := in.metadata()

	s.setLoading(true)

	user, _, err := s.idp.SignUp(ctx, email, password, provider.SignUpOptions{
		Data:            meta.Map(),
		EmailRedirectTo: s.emailRedirectTo,
	})
	if err != nil {
		s.setLoading(false)
		return err
	}

	if user != nil {
		if err := s.provision(ctx, user.ID, email, meta); err != nil {
			s.log.Warn("sign up profile provisioning failed", "user_id", user.ID, "err", err)
		}
	}

	return s.SignIn(ctx, email, password)
}

// SignOut ends the provider session. On failure the state is left as it
// was, apart from loading.
func (s *Store) SignOut(ctx context.Context) (err error) {
	defer s.absorb("sign out")

	if s.demo {
		s.cache.Clear()
		s.update(signedOut)
		return nil
	}

	s.setLoading(true)

	if err := s.idp.SignOut(ctx); err != nil {
		s.setLoading(false)
		return err
	}

	s.cache.Clear()
	s.update(signedOut)
	return nil
}

// UpdateProfile writes the editable profile fields to the partition row and
// the provider metadata, then reloads the profile.
func (s *Store) UpdateProfile(ctx context.Context, patch profile.Patch) (err error) {
	defer s.absorb("update profile")

	if s.demo {
		return ErrDemoMode
	}

	cur := s.Snapshot()
	if !cur.IsAuthenticated || cur.User == nil {
		return ErrNotSignedIn
	}
	if patch.Empty() {
		return nil
	}
	if s.data == nil {
		return errNoDataStore
	}

	if patch.Website != nil && *patch.Website != "" {
		if err := s.validate.Var(*patch.Website, "url"); err != nil {
			return fmt.Errorf("invalid website: %w", err)
		}
	}

	switch cur.UserKind {
	case profile.KindOrganizer:
		if _, err := s.data.Organizers.Update(ctx, cur.User.ID, patch); err != nil {
			return err
		}
	default:
		if _, err := s.data.Guardians.Update(ctx, cur.User.ID, patch); err != nil {
			return err
		}
	}

	if meta := patchMetadata(patch); len(meta) > 0 {
		if err := s.data.Identity.UpdateMetadata(ctx, meta); err != nil {
			s.log.Warn("update account metadata failed", "user_id", cur.User.ID, "err", err)
		}
	}

	s.Reconcile(ctx, ReconcileOptions{ForceProfileRefresh: true})
	return nil
}

func patchMetadata(p profile.Patch) map[string]any {
	out := map[string]any{}
	put := func(key string, v *string) {
		if v != nil {
			out[key] = *v
		}
	}
	put("first_name", p.FirstName)
	put("last_name", p.LastName)
	put("phone", p.Phone)
	put("organization_name", p.OrganizationName)
	put("contact_name", p.ContactName)
	put("description", p.Description)
	put("website", p.Website)
	return out
}
