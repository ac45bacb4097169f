package main

import (
	"fmt"

	"github.com/geocoder89/kidshub/internal/domain/profile"
	"github.com/geocoder89/kidshub/internal/domain/review"
	"github.com/spf13/cobra"
)

func newReviewsCmd(get func() *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reviews",
		Short: "Read and write activity reviews",
	}
	cmd.AddCommand(newReviewsListCmd(get), newReviewsAddCmd(get))
	return cmd
}

func newReviewsListCmd(get func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list <activity-id>",
		Short: "List the reviews of an activity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := get().data.Reviews.ForActivity(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if len(items) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No reviews yet.")
				return nil
			}

			rows := make([][]any, 0, len(items))
			for _, r := range items {
				rows = append(rows, []any{r.Rating, r.Comment, when(r.CreatedAt)})
			}
			return table(cmd.OutOrStdout(), "RATING\tCOMMENT\tDATE", rows)
		},
	}
}

func newReviewsAddCmd(get func() *app) *cobra.Command {
	var req review.CreateRequest

	cmd := &cobra.Command{
		Use:   "add <activity-id>",
		Short: "Review an activity (guardians)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := get()
			u, err := a.requireUser(profile.KindGuardian)
			if err != nil {
				return err
			}

			req.ActivityID = args[0]
			req.GuardianID = u.ID
			if _, err := a.data.Reviews.Create(cmd.Context(), req); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Thanks for your review!")
			return nil
		},
	}

	cmd.Flags().IntVar(&req.Rating, "rating", 0, "rating from 1 to 5")
	cmd.Flags().StringVar(&req.Comment, "comment", "", "comment")
	_ = cmd.MarkFlagRequired("rating")
	return cmd
}
