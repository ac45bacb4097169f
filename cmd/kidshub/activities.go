package main

import (
	"fmt"
	"time"

	"github.com/geocoder89/kidshub/internal/domain/activity"
	"github.com/geocoder89/kidshub/internal/domain/profile"
	"github.com/spf13/cobra"
)

func newActivitiesCmd(get func() *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "activities",
		Aliases: []string{"activity", "a"},
		Short:   "Browse and publish activities",
	}
	cmd.AddCommand(newActivitiesListCmd(get), newActivitiesShowCmd(get), newActivitiesCreateCmd(get), newActivitiesMineCmd(get))
	return cmd
}

func newActivitiesListCmd(get func() *app) *cobra.Command {
	var (
		city, category, query string
		age, limit            int
		upcoming              bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List activities",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := get()

			filter := activity.ListFilter{Limit: limit}
			if city != "" {
				filter.City = &city
			}
			if category != "" {
				filter.Category = &category
			}
			if query != "" {
				filter.Query = &query
			}
			if cmd.Flags().Changed("age") {
				filter.Age = &age
			}
			if upcoming {
				now := time.Now()
				filter.From = &now
			}

			items, err := a.data.Activities.List(cmd.Context(), filter)
			if err != nil {
				return err
			}
			if len(items) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No activities found.")
				return nil
			}

			rows := make([][]any, 0, len(items))
			for _, it := range items {
				rows = append(rows, []any{it.ID, it.Title, it.City, when(it.StartAt), ageRange(it.AgeMin, it.AgeMax), fmt.Sprintf("%.2f", it.Price)})
			}
			return table(cmd.OutOrStdout(), "ID\tTITLE\tCITY\tSTARTS\tAGES\tPRICE", rows)
		},
	}

	f := cmd.Flags()
	f.StringVar(&city, "city", "", "city")
	f.StringVar(&category, "category", "", "category")
	f.StringVarP(&query, "query", "q", "", "search in titles")
	f.IntVar(&age, "age", 0, "child age")
	f.IntVar(&limit, "limit", 20, "maximum results")
	f.BoolVar(&upcoming, "upcoming", true, "only activities that have not started")
	return cmd
}

func newActivitiesShowCmd(get func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <activity-id>",
		Short: "Show an activity with its reviews",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := get()
			ctx := cmd.Context()

			act, err := a.data.Activities.Get(ctx, args[0])
			if err != nil {
				return err
			}
			avg, n, err := a.data.Reviews.Average(ctx, act.ID)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s\n", act.Title)
			if act.Description != "" {
				fmt.Fprintf(out, "%s\n", act.Description)
			}
			fmt.Fprintf(out, "\nwhen:     %s\n", when(act.StartAt))
			fmt.Fprintf(out, "where:    %s %s\n", act.City, act.Location)
			fmt.Fprintf(out, "ages:     %s\n", ageRange(act.AgeMin, act.AgeMax))
			fmt.Fprintf(out, "capacity: %d\n", act.Capacity)
			fmt.Fprintf(out, "price:    %.2f\n", act.Price)
			if n > 0 {
				fmt.Fprintf(out, "rating:   %.1f (%d reviews)\n", avg, n)
			}
			return nil
		},
	}
}

func newActivitiesCreateCmd(get func() *app) *cobra.Command {
	var (
		req   activity.CreateRequest
		start string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Publish an activity (organizers)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := get()
			u, err := a.requireUser(profile.KindOrganizer)
			if err != nil {
				return err
			}

			req.StartAt, err = time.Parse(time.RFC3339, start)
			if err != nil {
				return fmt.Errorf("--start must be RFC 3339, e.g. 2025-09-01T16:00:00+03:00")
			}

			act, err := a.data.Activities.Create(cmd.Context(), u.ID, req)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Published %q (%s)\n", act.Title, act.ID)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&req.Title, "title", "", "title")
	f.StringVar(&req.Description, "description", "", "description")
	f.StringVar(&req.Category, "category", "", "category")
	f.StringVar(&req.City, "city", "", "city")
	f.StringVar(&req.Location, "location", "", "address or venue")
	f.StringVar(&start, "start", "", "start time, RFC 3339")
	f.IntVar(&req.AgeMin, "age-min", 0, "minimum age")
	f.IntVar(&req.AgeMax, "age-max", 0, "maximum age, 0 for none")
	f.IntVar(&req.Capacity, "capacity", 10, "places available")
	f.Float64Var(&req.Price, "price", 0, "price")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("start")
	return cmd
}

func newActivitiesMineCmd(get func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "mine",
		Short: "List the activities you organize",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := get()
			u, err := a.requireUser(profile.KindOrganizer)
			if err != nil {
				return err
			}

			items, err := a.data.Activities.ByOrganizer(cmd.Context(), u.ID)
			if err != nil {
				return err
			}

			rows := make([][]any, 0, len(items))
			for _, it := range items {
				rows = append(rows, []any{it.ID, it.Title, when(it.StartAt), it.Capacity})
			}
			return table(cmd.OutOrStdout(), "ID\tTITLE\tSTARTS\tCAPACITY", rows)
		},
	}
}
