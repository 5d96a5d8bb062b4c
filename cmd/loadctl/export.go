package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	analysisinterfaces "load-analytics/internal/analysis/interfaces"
)

func newExportCmd(opts *rootOptions) *cobra.Command {
	var (
		entity string
		format string
		out    string
	)
	cmd := &cobra.Command{
		Use:   "export FILE",
		Short: "Export daily statistics as csv, json, xlsx or pdf",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireEntity(entity); err != nil {
				return err
			}
			format = strings.ToLower(format)
			sess, err := openSession(cmd.Context(), opts, args[0], cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			profile, err := sess.service.Profile(cmd.Context(), sess.id(), entity)
			if err != nil {
				return err
			}

			var buf bytes.Buffer
			switch format {
			case "csv":
				err = analysisinterfaces.WriteDailyCSV(&buf, profile.Daily)
			case "json":
				err = analysisinterfaces.WriteProfileJSON(&buf, profile)
			case "xlsx":
				var data []byte
				data, err = analysisinterfaces.BuildDailyXLSX(profile)
				buf.Write(data)
			case "pdf":
				var data []byte
				data, err = analysisinterfaces.BuildDailyPDF(profile, time.Now().In(sess.service.Location()))
				buf.Write(data)
			default:
				return fmt.Errorf("unsupported format %q", format)
			}
			if err != nil {
				return err
			}

			if out == "" {
				out = strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0])) + "_" + entity + "_daily." + format
			}
			if out == "-" {
				_, err = cmd.OutOrStdout().Write(buf.Bytes())
				return err
			}
			if err := os.WriteFile(out, buf.Bytes(), 0o644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s (%d days)\n", out, len(profile.Daily))
			return nil
		},
	}
	cmd.Flags().StringVarP(&entity, "entity", "e", "", "entity id (exact match)")
	cmd.Flags().StringVarP(&format, "format", "f", "csv", "csv, json, xlsx or pdf")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output path, - for stdout")
	return cmd
}
