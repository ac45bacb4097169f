package main

import (
	"io"

	"github.com/geocoder89/kidshub/internal/config"
	"github.com/spf13/cobra"
)

func newRootCmd(cfg config.ClientConfig, out io.Writer) *cobra.Command {
	return newRootCmdWith(appOptions{cfg: cfg, out: out})
}

func newRootCmdWith(opts appOptions) *cobra.Command {
	var a *app

	root := &cobra.Command{
		Use:           "kidshub",
		Short:         "Find, book and review children's activities",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			a, err = newApp(cmd.Context(), opts)
			return err
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a != nil {
				a.Close()
			}
		},
	}

	root.SetOut(opts.out)
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log debug output")

	get := func() *app { return a }
	root.AddCommand(
		newSignUpCmd(get),
		newSignInCmd(get),
		newSignOutCmd(get),
		newWhoAmICmd(get),
		newProfileCmd(get),
		newActivitiesCmd(get),
		newChildrenCmd(get),
		newEnrollCmd(get),
		newEnrollmentsCmd(get),
		newReviewsCmd(get),
	)
	return root
}
