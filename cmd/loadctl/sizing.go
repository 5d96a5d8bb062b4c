package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	tariff "load-analytics/internal/tariff/domain"
)

func newSizingCmd(opts *rootOptions) *cobra.Command {
	var (
		entity string
		asJSON bool
		all    bool
		sweep  tariff.SweepConfig
	)
	cmd := &cobra.Command{
		Use:   "sizing FILE",
		Short: "Sweep midday demand thresholds to size storage capacity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireEntity(entity); err != nil {
				return err
			}
			sess, err := openSession(cmd.Context(), opts, args[0], cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			cfg := sess.service.Config().Sweep
			flags := cmd.Flags()
			if flags.Changed("start") {
				cfg.Start = sweep.Start
			}
			if flags.Changed("step") {
				cfg.Step = sweep.Step
			}
			if flags.Changed("steps") {
				cfg.Steps = sweep.Steps
			}
			if flags.Changed("capacity") {
				cfg.MainTransformerCapacity = sweep.MainTransformerCapacity
			}
			if flags.Changed("ratio") {
				cfg.UtilizationRatio = sweep.UtilizationRatio
			}
			if flags.Changed("targets") {
				cfg.Targets = sweep.Targets
			}

			result, err := sess.service.Sizing(cmd.Context(), sess.id(), entity, &cfg)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, result)
			}
			fmt.Fprintf(out, "%s: %d midday readings\n", result.EntityID, result.WindowReadings)
			recs := result.Report
			if all || len(recs) == 0 {
				recs = result.Recommendations
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', tabwriter.AlignRight)
			fmt.Fprintln(tw, "target_days\tthreshold\tannual_days\tcapacity\t")
			for _, r := range recs {
				fmt.Fprintf(tw, "%.0f\t%.0f\t%.2f\t%.2f\t\n", r.TargetDays, r.Threshold, r.AnnualDays, r.Capacity)
			}
			return tw.Flush()
		},
	}
	def := tariff.DefaultSweepConfig()
	cmd.Flags().StringVarP(&entity, "entity", "e", "", "entity id (exact match)")
	cmd.Flags().Float64Var(&sweep.Start, "start", def.Start, "first threshold")
	cmd.Flags().Float64Var(&sweep.Step, "step", def.Step, "threshold step")
	cmd.Flags().IntVar(&sweep.Steps, "steps", def.Steps, "number of thresholds")
	cmd.Flags().Float64Var(&sweep.MainTransformerCapacity, "capacity", def.MainTransformerCapacity, "main transformer capacity")
	cmd.Flags().Float64Var(&sweep.UtilizationRatio, "ratio", def.UtilizationRatio, "usable share of transformer capacity")
	cmd.Flags().Float64SliceVar(&sweep.Targets, "targets", def.Targets, "target annual day counts")
	cmd.Flags().BoolVar(&all, "all", false, "print every target, not only the report targets")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}
