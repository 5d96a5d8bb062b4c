package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"load-analytics/internal/analysis/domain/statistic"
)

func newEntitiesCmd(opts *rootOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "entities FILE",
		Short: "List entities and row counts of a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := openSession(cmd.Context(), opts, args[0], cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, sess.upload)
			}
			ds := sess.upload.Dataset
			fmt.Fprintf(out, "file: %s (%s)\n", ds.Filename, sess.upload.Report.Format)
			fmt.Fprintf(out, "rows: %d, discarded: entity=%d timestamp=%d value=%d\n",
				ds.Rows, ds.Discards.Entity, ds.Discards.Timestamp, ds.Discards.Value)
			for _, entity := range ds.Entities {
				fmt.Fprintln(out, entity)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newAnalyzeCmd(opts *rootOptions) *cobra.Command {
	var (
		entity    string
		date      string
		asJSON    bool
		anomalies bool
	)
	cmd := &cobra.Command{
		Use:   "analyze FILE",
		Short: "Print daily and monthly load statistics of one entity",
		Long: "Print daily and monthly load statistics of one entity. With --date, " +
			"print the headline metrics of that day instead.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireEntity(entity); err != nil {
				return err
			}
			sess, err := openSession(cmd.Context(), opts, args[0], cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			ctx := cmd.Context()

			if date != "" {
				day, err := time.ParseInLocation("2006-01-02", date, sess.service.Location())
				if err != nil {
					return fmt.Errorf("--date must be YYYY-MM-DD: %w", err)
				}
				headline, err := sess.service.Headline(ctx, sess.id(), entity, day)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(out, headline)
				}
				printHeadline(out, headline)
				return nil
			}

			if anomalies {
				report, err := sess.service.Anomalies(ctx, sess.id(), entity)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(out, report)
				}
				fmt.Fprintf(out, "trend 7d: %s  trend 30d: %s\n", percent(report.Trend7), percent(report.Trend30))
				for _, a := range report.Anomalies {
					fmt.Fprintf(out, "%s mean=%.2f z=%.2f\n", a.Day.Format("2006-01-02"), a.Mean, a.ZScore)
				}
				return nil
			}

			profile, err := sess.service.Profile(ctx, sess.id(), entity)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(out, profile)
			}
			printProfile(out, profile)
			return nil
		},
	}
	cmd.Flags().StringVarP(&entity, "entity", "e", "", "entity id (exact match)")
	cmd.Flags().StringVar(&date, "date", "", "headline day, YYYY-MM-DD")
	cmd.Flags().BoolVar(&anomalies, "anomalies", false, "print anomaly days and trends")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func printProfile(w io.Writer, profile statistic.Profile) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "day\tcount\tmean\tmax\tmin\tstdev\tpeak_valley\tload_factor\tvolatility\t")
	for _, d := range profile.Daily {
		fmt.Fprintf(tw, "%s\t%d\t%.2f\t%.2f\t%.2f\t%s\t%.2f\t%s\t%s\t\n",
			d.Day.Format("2006-01-02"), d.Count, d.Mean, d.Max, d.Min,
			na(d.Stdev), d.PeakValley, na(d.LoadFactor), na(d.Volatility))
	}
	_ = tw.Flush()

	fmt.Fprintln(w)
	tw = tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "month\tmean\tdays\t")
	for _, m := range profile.Monthly {
		fmt.Fprintf(tw, "%s\t%.2f\t%d\t\n", m.Month.Format("2006-01"), m.Mean, m.Days)
	}
	_ = tw.Flush()
}

func printHeadline(w io.Writer, h statistic.Headline) {
	if !h.Found {
		fmt.Fprintf(w, "%s %s: no data\n", h.EntityID, h.Day.Format("2006-01-02"))
	} else {
		fmt.Fprintf(w, "%s %s\n", h.EntityID, h.Day.Format("2006-01-02"))
	}
	rows := []struct {
		name string
		m    statistic.HeadlineMetric
	}{
		{"mean", h.Mean},
		{"load_factor", h.LoadFactor},
		{"stdev", h.Stdev},
		{"volatility", h.Volatility},
	}
	for _, r := range rows {
		fmt.Fprintf(w, "  %-12s %s (delta %s)\n", r.name, na(r.m.Value), na(r.m.Delta))
	}
	fmt.Fprintf(w, "  month max %s at %s, min %s at %s\n",
		na(h.Month.Max), formatAt(h.Month.MaxAt), na(h.Month.Min), formatAt(h.Month.MinAt))
}

func na(o statistic.Optional) string {
	if !o.Valid {
		return "NA"
	}
	return o.Format(2)
}

func percent(o statistic.Optional) string {
	if !o.Valid {
		return "NA"
	}
	return o.Format(1) + "%"
}

func formatAt(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("2006-01-02 15:04")
}
