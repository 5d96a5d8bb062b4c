package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	analysisapp "load-analytics/internal/analysis/application"
	"load-analytics/internal/analysis/domain/series"
	tariff "load-analytics/internal/tariff/domain"
)

func newClassifyCmd(opts *rootOptions) *cobra.Command {
	var (
		at    string
		hour  int
		month int
	)
	cmd := &cobra.Command{
		Use:   "classify",
		Short: "Print the tariff period and price of an instant",
		Example: `  loadctl classify --at "2024-07-15 20:30"
  loadctl classify --hour 18 --month 3`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := analysisapp.LoadConfigFile(opts.configFile)
			if err != nil {
				return err
			}
			if at == "" && !cmd.Flags().Changed("hour") {
				return fmt.Errorf("one of --at or --hour is required")
			}
			if at != "" {
				loc, err := cfg.Location()
				if err != nil {
					return err
				}
				t, err := series.ParseTimestamp(at, loc)
				if err != nil {
					return fmt.Errorf("--at: %w", err)
				}
				hour, month = t.Hour(), int(t.Month())
			}
			period, err := tariff.Classify(hour, month)
			if err != nil {
				return err
			}
			price, err := cfg.Prices.Table().Price(period)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", period, price.String())
			return nil
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "timestamp in the configured timezone")
	cmd.Flags().IntVar(&hour, "hour", -1, "hour of day (0-23)")
	cmd.Flags().IntVar(&month, "month", int(time.Now().Month()), "month (1-12)")
	return cmd
}
