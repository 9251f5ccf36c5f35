package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Lllllllleong/translationquoteflow/internal/app"
	"github.com/Lllllllleong/translationquoteflow/internal/models"
)

func newRatesCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rates",
		Short: "Manage the pricing reference tables",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "seed <rates.yaml>",
			Short: "Write the rows of a YAML file to the rate tables",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				rows, err := readRateRows(args[0])
				if err != nil {
					return err
				}
				a, err := opts.openApp(cmd.Context(), app.Needs{})
				if err != nil {
					return err
				}
				defer a.Close() //nolint:errcheck

				if err := a.Repo.SeedRates(cmd.Context(), rows); err != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "seeded %d languages, %d tiers, %d certification types, %d intended uses\n",
					len(rows.Languages), len(rows.Tiers), len(rows.CertificationTypes), len(rows.CertificationMap))
				return nil
			},
		},
		&cobra.Command{
			Use:   "show",
			Short: "Print the rate table as pricing sees it",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				a, err := opts.openApp(cmd.Context(), app.Needs{})
				if err != nil {
					return err
				}
				defer a.Close() //nolint:errcheck

				table, err := a.Repo.LoadRates(cmd.Context())
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), table)
			},
		},
	)
	return cmd
}

func readRateRows(path string) (models.RateRows, error) {
	var rows models.RateRows
	data, err := os.ReadFile(path)
	if err != nil {
		return rows, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &rows); err != nil {
		return rows, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	for i, t := range rows.Tiers {
		if t.Multiplier <= 0 {
			return rows, fmt.Errorf("tier %q (row %d): multiplier must be positive", t.Tier, i+1)
		}
	}
	return rows, nil
}
