package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Lllllllleong/translationquoteflow/internal/app"
	"github.com/Lllllllleong/translationquoteflow/internal/models"
	"github.com/Lllllllleong/translationquoteflow/internal/services"
)

func newAnalyzeCmd(opts *rootOptions) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "analyze <quote_id> [file_name...]",
		Short: "Analyze the files of a quote and wait for the result",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.openApp(cmd.Context(), app.Needs{Classifier: true, OCR: true})
			if err != nil {
				return err
			}
			defer a.Close() //nolint:errcheck

			resp, err := a.Analyzer().Process(cmd.Context(), models.AnalyzeRequest{
				QuoteID:   args[0],
				FileNames: args[1:],
				Force:     force,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resp)
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Also re-run files that already succeeded")
	return cmd
}

func newStatusCmd(opts *rootOptions) *cobra.Command {
	var (
		wait     bool
		send     bool
		interval time.Duration
		attempts int
	)
	cmd := &cobra.Command{
		Use:   "status <quote_id> [file_name...]",
		Short: "Show the analysis state of a quote",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if send && !wait {
				return errors.New("--send requires --wait")
			}
			ctx := cmd.Context()
			a, err := opts.openApp(ctx, app.Needs{Email: send})
			if err != nil {
				return err
			}
			defer a.Close() //nolint:errcheck
			quoteID := args[0]

			if !wait {
				rows, err := a.Repo.ListFiles(ctx, quoteID)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), services.PollResult{QuoteID: quoteID, State: services.Snapshot(rows), Files: rows})
			}

			if interval <= 0 {
				interval = a.Config.Poller.Interval
			}
			if attempts <= 0 {
				attempts = a.Config.Poller.MaxAttempts
			}
			p := services.NewPoller(quoteID, args[1:], attempts)
			res, err := services.Watch(ctx, a.Repo, services.SystemClock, p, interval, func(state services.PollState, _ []models.QuoteFile) {
				fmt.Fprintf(cmd.ErrOrStderr(), "attempt %d/%d: %s\n", p.Attempts(), attempts, state)
			})
			if res != nil {
				if perr := printJSON(cmd.OutOrStdout(), res); perr != nil {
					return perr
				}
			}
			if err != nil {
				return err
			}
			if !send {
				return nil
			}
			if res.State != services.PollSucceeded {
				return fmt.Errorf("quote %s not sent: analysis ended %s", quoteID, res.State)
			}
			quote, err := services.NewQuotes(a.Repo, a.Sender).Send(ctx, quoteID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "quote %s sent, total %s\n", quoteID, quote.Total.StringFixed(2))
			return nil
		},
	}
	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "Poll until every file is terminal or attempts run out")
	cmd.Flags().BoolVar(&send, "send", false, "Email the quote once every file succeeded")
	cmd.Flags().DurationVar(&interval, "interval", 0, "Delay between polls (default from POLL_INTERVAL)")
	cmd.Flags().IntVar(&attempts, "attempts", 0, "Maximum polls (default from POLL_MAX_ATTEMPTS)")
	return cmd
}
