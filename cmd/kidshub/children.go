package main

import (
	"fmt"
	"time"

	"github.com/geocoder89/kidshub/internal/domain/profile"
	"github.com/geocoder89/kidshub/internal/session"
	"github.com/spf13/cobra"
)

func newChildrenCmd(get func() *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "children",
		Aliases: []string{"child", "kids"},
		Short:   "Manage your children (guardians)",
	}
	cmd.AddCommand(newChildrenListCmd(get), newChildrenAddCmd(get), newChildrenRemoveCmd(get))
	return cmd
}

func newChildrenListCmd(get func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List your children",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := get()
			u, err := a.requireUser(profile.KindGuardian)
			if err != nil {
				return err
			}

			kids, err := a.data.Guardians.Children(cmd.Context(), u.ID)
			if err != nil {
				return err
			}
			if len(kids) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No children yet. Add one with `kidshub children add`.")
				return nil
			}

			rows := make([][]any, 0, len(kids))
			for _, c := range kids {
				age := "-"
				if c.Age != nil {
					age = fmt.Sprint(*c.Age)
				}
				rows = append(rows, []any{c.ID, c.FirstName + " " + c.LastName, c.DateOfBirth, age})
			}
			return table(cmd.OutOrStdout(), "ID\tNAME\tBORN\tAGE", rows)
		},
	}
}

func newChildrenAddCmd(get func() *app) *cobra.Command {
	var c profile.Child

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a child",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := get()
			u, err := a.requireUser(profile.KindGuardian)
			if err != nil {
				return err
			}
			if _, err := time.Parse(time.DateOnly, c.DateOfBirth); err != nil {
				return fmt.Errorf("--born must be YYYY-MM-DD")
			}

			added, err := a.data.Guardians.AddChild(cmd.Context(), u.ID, c)
			if err != nil {
				return err
			}
			a.session.Reconcile(cmd.Context(), session.ReconcileOptions{ForceProfileRefresh: true})

			fmt.Fprintf(cmd.OutOrStdout(), "Added %s (%s)\n", added.FirstName, added.ID)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&c.FirstName, "first-name", "", "first name")
	f.StringVar(&c.LastName, "last-name", "", "last name")
	f.StringVar(&c.DateOfBirth, "born", "", "date of birth, YYYY-MM-DD")
	_ = cmd.MarkFlagRequired("first-name")
	_ = cmd.MarkFlagRequired("born")
	return cmd
}

func newChildrenRemoveCmd(get func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <child-id>",
		Short: "Remove a child",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := get()
			if _, err := a.requireUser(profile.KindGuardian); err != nil {
				return err
			}

			if err := a.data.Guardians.RemoveChild(cmd.Context(), args[0]); err != nil {
				return err
			}
			a.session.Reconcile(cmd.Context(), session.ReconcileOptions{ForceProfileRefresh: true})

			fmt.Fprintln(cmd.OutOrStdout(), "Removed.")
			return nil
		},
	}
}
