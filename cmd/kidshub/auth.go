package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/geocoder89/kidshub/internal/domain/profile"
	"github.com/geocoder89/kidshub/internal/phone"
	"github.com/geocoder89/kidshub/internal/session"
	"github.com/spf13/cobra"
)

var errInvalidPhone = errors.New("phone must be a valid Bulgarian number, e.g. 0888 123 456")

// password falls back to KIDSHUB_PASSWORD so it stays out of shell history.
func password(flag string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	if env := os.Getenv("KIDSHUB_PASSWORD"); env != "" {
		return env, nil
	}
	return "", errors.New("password required: use --password or KIDSHUB_PASSWORD")
}

func normalizePhone(raw string) (string, error) {
	if raw == "" {
		return "", nil
	}
	if !phone.Valid(raw) {
		return "", errInvalidPhone
	}
	return phone.ToInternational(raw), nil
}

func newSignUpCmd(get func() *app) *cobra.Command {
	var (
		email, pass string
		in          session.SignUpData
		kind        string
	)

	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create a guardian or organizer account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := get()

			p, err := password(pass)
			if err != nil {
				return err
			}
			if in.Phone, err = normalizePhone(in.Phone); err != nil {
				return err
			}
			in.UserType = profile.Kind(kind)

			if err := a.session.SignUp(cmd.Context(), email, p, in); err != nil {
				return err
			}
			if err := a.settle(cmd.Context()); err != nil {
				return err
			}

			st := a.session.Snapshot()
			if !st.IsAuthenticated {
				fmt.Fprintln(cmd.OutOrStdout(), "Account created. Check your email to confirm it, then run `kidshub signin`.")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Welcome, %s!\n", st.User.DisplayName())
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&email, "email", "", "account email")
	f.StringVar(&pass, "password", "", "account password (or KIDSHUB_PASSWORD)")
	f.StringVar(&kind, "type", string(profile.KindGuardian), "guardian or organizer")
	f.StringVar(&in.FirstName, "first-name", "", "first name")
	f.StringVar(&in.LastName, "last-name", "", "last name")
	f.StringVar(&in.Phone, "phone", "", "phone number")
	f.StringVar(&in.OrganizationName, "org-name", "", "organization name (organizers)")
	f.StringVar(&in.ContactName, "contact-name", "", "contact person (organizers)")
	f.StringVar(&in.Description, "description", "", "organization description (organizers)")
	f.StringVar(&in.Website, "website", "", "organization website (organizers)")
	_ = cmd.MarkFlagRequired("email")

	return cmd
}

func newSignInCmd(get func() *app) *cobra.Command {
	var email, pass string

	cmd := &cobra.Command{
		Use:   "signin",
		Short: "Sign in with email and password",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := get()

			p, err := password(pass)
			if err != nil {
				return err
			}
			if err := a.session.SignIn(cmd.Context(), email, p); err != nil {
				return err
			}
			if err := a.settle(cmd.Context()); err != nil {
				return err
			}

			u, err := a.requireUser()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s (%s)\n", u.DisplayName(), u.Kind)
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&pass, "password", "", "account password (or KIDSHUB_PASSWORD)")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newSignOutCmd(get func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "signout",
		Short: "Sign out and forget the stored session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := get().session.SignOut(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out.")
			return nil
		},
	}
}

func newWhoAmICmd(get func() *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed in account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := get()
			st := a.session.Snapshot()

			if asJSON {
				return printJSON(cmd.OutOrStdout(), st)
			}
			if !st.IsAuthenticated || st.User == nil {
				if a.demo {
					fmt.Fprintln(cmd.OutOrStdout(), "Not signed in (demo mode).")
				} else {
					fmt.Fprintln(cmd.OutOrStdout(), "Not signed in.")
				}
				return nil
			}

			u := st.User
			fmt.Fprintf(cmd.OutOrStdout(), "%s <%s>\n", u.DisplayName(), u.Email)
			fmt.Fprintf(cmd.OutOrStdout(), "type: %s\nid:   %s\n", st.UserKind, u.ID)
			if u.Guardian != nil {
				if u.Guardian.Phone != "" {
					fmt.Fprintf(cmd.OutOrStdout(), "phone: %s\n", phone.ToNational(u.Guardian.Phone))
				}
				fmt.Fprintf(cmd.OutOrStdout(), "children: %d\n", len(u.Guardian.Children))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the session state as JSON")
	return cmd
}

func newProfileCmd(get func() *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Manage your profile",
	}

	update := &cobra.Command{
		Use:   "update",
		Short: "Change profile fields; only the flags given are changed",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := get()
			if _, err := a.requireUser(); err != nil {
				return err
			}

			f := cmd.Flags()
			set := func(name string) *string {
				if !f.Changed(name) {
					return nil
				}
				v, _ := f.GetString(name)
				return &v
			}

			patch := profile.Patch{
				FirstName:        set("first-name"),
				LastName:         set("last-name"),
				Phone:            set("phone"),
				OrganizationName: set("org-name"),
				ContactName:      set("contact-name"),
				Description:      set("description"),
				Website:          set("website"),
			}
			if patch.Phone != nil {
				p, err := normalizePhone(*patch.Phone)
				if err != nil {
					return err
				}
				patch.Phone = &p
			}
			if patch.Empty() {
				return errors.New("nothing to update")
			}

			if err := a.session.UpdateProfile(cmd.Context(), patch); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Profile updated.")
			return nil
		},
	}

	f := update.Flags()
	f.String("first-name", "", "first name")
	f.String("last-name", "", "last name")
	f.String("phone", "", "phone number")
	f.String("org-name", "", "organization name")
	f.String("contact-name", "", "contact person")
	f.String("description", "", "organization description")
	f.String("website", "", "organization website")

	cmd.AddCommand(update)
	return cmd
}
