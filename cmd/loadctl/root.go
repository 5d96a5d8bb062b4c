package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/spf13/cobra"

	analysisapp "load-analytics/internal/analysis/application"
	"load-analytics/internal/analysis/infrastructure/memory"
)

type rootOptions struct {
	configFile string
	sheet      string
	verbose    bool
}

// newRootCmd builds the command tree; it is a function so tests get fresh
// flag state.
func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "loadctl",
		Short: "Analyze electrical load exports offline.",
		Long: `loadctl runs the load analytics pipeline on a local CSV or XLSX file:
daily and monthly statistics, headline metrics, storage sizing sweeps,
tariff period classification and exports.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.configFile, "config", os.Getenv("ANALYSIS_CONFIG"), "analysis config yaml")
	root.PersistentFlags().StringVar(&opts.sheet, "sheet", "", "worksheet name for xlsx input (default first sheet)")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log pipeline details to stderr")

	root.AddCommand(
		newEntitiesCmd(opts),
		newAnalyzeCmd(opts),
		newSizingCmd(opts),
		newClassifyCmd(opts),
		newExportCmd(opts),
		newTokenCmd(),
	)
	return root
}

// session loads file into a fresh in-memory service.
type session struct {
	service *analysisapp.Service
	upload  analysisapp.UploadResult
}

func openSession(ctx context.Context, opts *rootOptions, path string, stderr io.Writer) (*session, error) {
	cfg, err := analysisapp.LoadConfigFile(opts.configFile)
	if err != nil {
		return nil, err
	}
	logOut := io.Discard
	if opts.verbose {
		logOut = stderr
	}
	logger := log.New(logOut, "", log.LstdFlags)
	service, err := analysisapp.NewService(memory.NewDatasetRepository(), analysisapp.NewSessionStore(), cfg, logger)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	upload, err := service.Upload(ctx, "", path, data, opts.sheet)
	if err != nil {
		return nil, err
	}
	return &session{service: service, upload: upload}, nil
}

func (s *session) id() string { return s.upload.Session.ID }

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func requireEntity(entity string) error {
	if entity == "" {
		return fmt.Errorf("--entity is required")
	}
	return nil
}
