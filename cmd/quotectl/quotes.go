package main

import (
	"github.com/spf13/cobra"

	"github.com/Lllllllleong/translationquoteflow/internal/app"
	"github.com/Lllllllleong/translationquoteflow/internal/models"
	"github.com/Lllllllleong/translationquoteflow/internal/services"
)

func newPriceCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "price <quote_id>",
		Short: "Print the current price breakdown of a quote",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.openApp(cmd.Context(), app.Needs{})
			if err != nil {
				return err
			}
			defer a.Close() //nolint:errcheck

			quote, err := services.NewQuotes(a.Repo, nil).Price(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), quote)
		},
	}
}

func newSendCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "send <quote_id>",
		Short: "Price a quote and email it to the customer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.openApp(cmd.Context(), app.Needs{Email: true})
			if err != nil {
				return err
			}
			defer a.Close() //nolint:errcheck

			quote, err := services.NewQuotes(a.Repo, a.Sender).Send(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), models.SendQuoteResponse{OK: true, QuoteID: args[0], Total: quote.Total.StringFixed(2)})
		},
	}
}

func newSyncCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync <quote_id>",
		Short: "Register stored uploads that have no file row",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.openApp(cmd.Context(), app.Needs{})
			if err != nil {
				return err
			}
			defer a.Close() //nolint:errcheck

			registered, err := services.NewIntake(a.Repo, a.Docs, nil, false).Sync(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if registered == nil {
				registered = []string{}
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{"quote_id": args[0], "registered": registered})
		},
	}
}
