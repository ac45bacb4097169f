package main

import (
	"errors"
	"fmt"

	"github.com/geocoder89/kidshub/internal/domain/enrollment"
	"github.com/geocoder89/kidshub/internal/domain/profile"
	"github.com/spf13/cobra"
)

func newEnrollCmd(get func() *app) *cobra.Command {
	var notes string

	cmd := &cobra.Command{
		Use:   "enroll <activity-id> <child-id>",
		Short: "Enroll a child in an activity",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := get()
			u, err := a.requireUser(profile.KindGuardian)
			if err != nil {
				return err
			}

			en, err := a.data.Enrollments.Create(cmd.Context(), enrollment.CreateRequest{
				ActivityID: args[0],
				ChildID:    args[1],
				GuardianID: u.ID,
				Notes:      notes,
			})
			switch {
			case errors.Is(err, enrollment.ErrAlreadyEnrolled):
				return errors.New("this child is already enrolled in the activity")
			case errors.Is(err, enrollment.ErrActivityFull):
				return errors.New("sorry, the activity is full")
			case err != nil:
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Enrolled (%s, %s). The organizer will confirm.\n", en.ID, en.Status)
			return nil
		},
	}

	cmd.Flags().StringVar(&notes, "notes", "", "notes for the organizer")
	return cmd
}

func newEnrollmentsCmd(get func() *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "enrollments",
		Short: "Review and manage enrollments",
	}
	cmd.AddCommand(
		newEnrollmentsListCmd(get),
		newEnrollmentStatusCmd(get, "cancel", "Cancel an enrollment", enrollment.StatusCancelled),
		newEnrollmentStatusCmd(get, "confirm", "Confirm an enrollment (organizers)", enrollment.StatusConfirmed),
	)
	return cmd
}

func newEnrollmentsListCmd(get func() *app) *cobra.Command {
	var activityID string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List your enrollments, or an activity's with --activity",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := get()
			u, err := a.requireUser()
			if err != nil {
				return err
			}

			var items []enrollment.Enrollment
			if activityID != "" {
				items, err = a.data.Enrollments.ForActivity(cmd.Context(), activityID)
			} else {
				items, err = a.data.Enrollments.ForGuardian(cmd.Context(), u.ID)
			}
			if err != nil {
				return err
			}
			if len(items) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No enrollments.")
				return nil
			}

			rows := make([][]any, 0, len(items))
			for _, en := range items {
				rows = append(rows, []any{en.ID, en.ActivityID, en.ChildID, en.Status, when(en.CreatedAt)})
			}
			return table(cmd.OutOrStdout(), "ID\tACTIVITY\tCHILD\tSTATUS\tCREATED", rows)
		},
	}

	cmd.Flags().StringVar(&activityID, "activity", "", "list enrollments of this activity (organizers)")
	return cmd
}

func newEnrollmentStatusCmd(get func() *app, use, short string, status enrollment.Status) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <enrollment-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := get()
			if _, err := a.requireUser(); err != nil {
				return err
			}

			en, err := a.data.Enrollments.SetStatus(cmd.Context(), args[0], status)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Enrollment %s is now %s.\n", en.ID, en.Status)
			return nil
		},
	}
}
