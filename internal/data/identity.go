package data

import (
	"context"
	"errors"

	"github.com/geocoder89/kidshub/internal/provider"
)

var errNoIdentity = errors.New("data: no identity provider configured")

// Identity wraps the account operations that live with the identity
// provider rather than in the row store.
type Identity struct{ d *deps }

// CurrentUser returns the signed in account, or nil.
func (i *Identity) CurrentUser(ctx context.Context) (*provider.User, error) {
	if i.d.idp == nil {
		return nil, errNoIdentity
	}
	return i.d.idp.GetUser(ctx)
}

func (i *Identity) UpdatePassword(ctx context.Context, password string) error {
	if err := i.d.validate.Var(password, "required,min=8"); err != nil {
		return err
	}
	return i.update(ctx, provider.UserAttributes{Password: &password})
}

func (i *Identity) UpdateEmail(ctx context.Context, email string) error {
	if err := i.d.validate.Var(email, "required,email"); err != nil {
		return err
	}
	return i.update(ctx, provider.UserAttributes{Email: &email})
}

// UpdateMetadata merges data into the account metadata.
func (i *Identity) UpdateMetadata(ctx context.Context, data map[string]any) error {
	return i.update(ctx, provider.UserAttributes{Data: data})
}

func (i *Identity) update(ctx context.Context, attrs provider.UserAttributes) error {
	if i.d.idp == nil {
		return errNoIdentity
	}
	_, err := i.d.idp.UpdateUser(ctx, attrs)
	return err
}
