package data

import (
	"context"
	"fmt"
	"time"

	"github.com/geocoder89/kidshub/internal/domain/profile"
	"github.com/geocoder89/kidshub/internal/phone"
	"github.com/geocoder89/kidshub/internal/store"
)

// Phones are stored in international form and shown in national form.

type Guardians struct{ d *deps }

func (g *Guardians) Get(ctx context.Context, id string) (profile.GuardianProfile, error) {
	p, err := one[profile.GuardianProfile](g.d, ctx, store.TableGuardians, id, profile.ErrNotFound)
	if err != nil {
		return p, err
	}
	p.Phone = phone.ToNational(p.Phone)
	return p, nil
}

// Upsert creates or merges the guardians row keyed by id.
func (g *Guardians) Upsert(ctx context.Context, p profile.GuardianProfile) (profile.GuardianProfile, error) {
	p.Phone = phone.ToInternational(p.Phone)

	row, err := encode(p)
	if err != nil {
		return profile.GuardianProfile{}, err
	}

	rows, err := g.d.db.Upsert(ctx, store.TableGuardians, row, "id")
	if err != nil {
		return profile.GuardianProfile{}, fmt.Errorf("upsert guardian %s: %w", p.ID, err)
	}
	return firstProfile[profile.GuardianProfile](rows, p, func(v *profile.GuardianProfile) { v.Phone = phone.ToNational(v.Phone) })
}

func (g *Guardians) Update(ctx context.Context, id string, patch profile.Patch) (profile.GuardianProfile, error) {
	values, err := encode(profile.Patch{
		FirstName: patch.FirstName,
		LastName:  patch.LastName,
		Phone:     internationalPhone(patch.Phone),
	})
	if err != nil {
		return profile.GuardianProfile{}, err
	}
	if len(values) == 0 {
		return g.Get(ctx, id)
	}

	rows, err := g.d.db.Update(ctx, store.TableGuardians, values, store.Eq("id", id))
	if err != nil {
		return profile.GuardianProfile{}, fmt.Errorf("update guardian %s: %w", id, err)
	}
	if len(rows) == 0 {
		return profile.GuardianProfile{}, fmt.Errorf("%w: %w", profile.ErrNotFound, ErrNotFound)
	}
	return firstProfile[profile.GuardianProfile](rows, profile.GuardianProfile{}, func(v *profile.GuardianProfile) { v.Phone = phone.ToNational(v.Phone) })
}

// Children returns the guardian's children, newest first, with Age filled
// in from the date of birth.
func (g *Guardians) Children(ctx context.Context, guardianID string) ([]profile.Child, error) {
	rows, err := g.d.db.Select(ctx, store.TableChildren,
		store.Where(store.Eq("guardian_id", guardianID)).OrderBy("created_at", true))
	if err != nil {
		return nil, fmt.Errorf("list children of %s: %w", guardianID, err)
	}

	children, err := decodeAll[profile.Child](rows)
	if err != nil {
		return nil, err
	}

	now := g.d.now()
	for i := range children {
		if children[i].Age == nil {
			children[i].Age = children[i].AgeOn(now)
		}
	}
	return children, nil
}

func (g *Guardians) AddChild(ctx context.Context, guardianID string, c profile.Child) (profile.Child, error) {
	if err := g.d.validate.Var(c.FirstName, "required,max=80"); err != nil {
		return profile.Child{}, fmt.Errorf("invalid child first name: %w", err)
	}
	if _, err := time.Parse("2006-01-02", c.DateOfBirth); err != nil {
		return profile.Child{}, fmt.Errorf("invalid date of birth %q: %w", c.DateOfBirth, err)
	}

	c.ID = ""
	c.GuardianID = guardianID
	c.Age = nil
	c.CreatedAt = nil

	row, err := encode(c)
	if err != nil {
		return profile.Child{}, err
	}

	rows, err := g.d.db.Insert(ctx, store.TableChildren, row)
	if err != nil {
		return profile.Child{}, fmt.Errorf("add child: %w", err)
	}

	out, err := firstProfile[profile.Child](rows, c, nil)
	if err != nil {
		return out, err
	}
	out.Age = out.AgeOn(g.d.now())
	return out, nil
}

func (g *Guardians) UpdateChild(ctx context.Context, c profile.Child) (profile.Child, error) {
	if c.ID == "" {
		return profile.Child{}, fmt.Errorf("update child: missing id")
	}

	values, err := encode(profile.Child{
		FirstName:   c.FirstName,
		LastName:    c.LastName,
		DateOfBirth: c.DateOfBirth,
	})
	if err != nil {
		return profile.Child{}, err
	}

	rows, err := g.d.db.Update(ctx, store.TableChildren, values, store.Eq("id", c.ID))
	if err != nil {
		return profile.Child{}, fmt.Errorf("update child %s: %w", c.ID, err)
	}
	if len(rows) == 0 {
		return profile.Child{}, fmt.Errorf("child %s: %w", c.ID, ErrNotFound)
	}

	out, err := firstProfile[profile.Child](rows, c, nil)
	if err != nil {
		return out, err
	}
	out.Age = out.AgeOn(g.d.now())
	return out, nil
}

func (g *Guardians) RemoveChild(ctx context.Context, childID string) error {
	if err := g.d.db.Delete(ctx, store.TableChildren, store.Eq("id", childID)); err != nil {
		return fmt.Errorf("remove child %s: %w", childID, err)
	}
	return nil
}

type Organizers struct{ d *deps }

func (o *Organizers) Get(ctx context.Context, id string) (profile.OrganizerProfile, error) {
	p, err := one[profile.OrganizerProfile](o.d, ctx, store.TableOrganizers, id, profile.ErrNotFound)
	if err != nil {
		return p, err
	}
	p.Phone = phone.ToNational(p.Phone)
	return p, nil
}

func (o *Organizers) Upsert(ctx context.Context, p profile.OrganizerProfile) (profile.OrganizerProfile, error) {
	p.Phone = phone.ToInternational(p.Phone)

	row, err := encode(p)
	if err != nil {
		return profile.OrganizerProfile{}, err
	}

	rows, err := o.d.db.Upsert(ctx, store.TableOrganizers, row, "id")
	if err != nil {
		return profile.OrganizerProfile{}, fmt.Errorf("upsert organizer %s: %w", p.ID, err)
	}
	return firstProfile[profile.OrganizerProfile](rows, p, func(v *profile.OrganizerProfile) { v.Phone = phone.ToNational(v.Phone) })
}

func (o *Organizers) Update(ctx context.Context, id string, patch profile.Patch) (profile.OrganizerProfile, error) {
	values, err := encode(profile.Patch{
		OrganizationName: patch.OrganizationName,
		ContactName:      patch.ContactName,
		Description:      patch.Description,
		Website:          patch.Website,
		Phone:            internationalPhone(patch.Phone),
	})
	if err != nil {
		return profile.OrganizerProfile{}, err
	}
	if len(values) == 0 {
		return o.Get(ctx, id)
	}

	rows, err := o.d.db.Update(ctx, store.TableOrganizers, values, store.Eq("id", id))
	if err != nil {
		return profile.OrganizerProfile{}, fmt.Errorf("update organizer %s: %w", id, err)
	}
	if len(rows) == 0 {
		return profile.OrganizerProfile{}, fmt.Errorf("%w: %w", profile.ErrNotFound, ErrNotFound)
	}
	return firstProfile[profile.OrganizerProfile](rows, profile.OrganizerProfile{}, func(v *profile.OrganizerProfile) { v.Phone = phone.ToNational(v.Phone) })
}

func internationalPhone(p *string) *string {
	if p == nil {
		return nil
	}
	v := phone.ToInternational(*p)
	return &v
}

// firstProfile decodes the first returned row. Stores that do not echo rows
// back leave fallback in place.
func firstProfile[T any](rows []store.Row, fallback T, fix func(*T)) (T, error) {
	out := fallback
	if row := store.First(rows); row != nil {
		var v T
		if err := decode(row, &v); err != nil {
			return out, err
		}
		out = v
	}
	if fix != nil {
		fix(&out)
	}
	return out, nil
}
