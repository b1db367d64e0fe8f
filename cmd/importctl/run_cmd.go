package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"hr-bulk-import/internal/config"
	"hr-bulk-import/internal/importer"
	"hr-bulk-import/internal/logging"
	"hr-bulk-import/internal/models"
	"hr-bulk-import/internal/remote"
	"hr-bulk-import/internal/store"
	"hr-bulk-import/internal/validation"
)

type runOptions struct {
	ImportType string
	File       string
	RemoteURL  string
	Token      string
	Strict     bool
}

func newRunCmd() *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run --type <import type> --file <path>",
		Short: "Import a CSV or XLSX file directly against the HR API and print the job",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if strings.TrimSpace(opts.File) == "" {
				return errors.New("--file is required")
			}
			cfg := config.Load()
			if opts.RemoteURL != "" {
				cfg.RemoteBaseURL = strings.TrimRight(opts.RemoteURL, "/")
			}
			if opts.Token != "" {
				cfg.RemoteToken = opts.Token
			}

			f, err := os.Open(opts.File)
			if err != nil {
				return fmt.Errorf("open %s: %w", opts.File, err)
			}
			defer f.Close()

			log := logging.NewWithWriter(cmd.ErrOrStderr(), cfg.LogLevel, "console")
			rc := remote.New(cfg.RemoteBaseURL, cfg.RemoteToken, cfg.RemoteTimeout)
			imp := importer.New(store.NewMemoryStore(cfg.JobTTL), validation.DefaultRegistry(cfg.SuggestionLimit), rc, rc, log,
				importer.WithProgressEvery(0))

			job, runErr := imp.Run(cmd.Context(), importer.RunInput{
				ImportType: strings.ToLower(strings.TrimSpace(opts.ImportType)),
				SourceName: filepath.Base(opts.File),
				Body:       f,
			})
			if job.ID != "" {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(job); err != nil {
					return fmt.Errorf("write job: %w", err)
				}
			}
			if runErr != nil {
				return fmt.Errorf("import failed: %w", runErr)
			}
			if opts.Strict && job.Status != models.StatusCompleted {
				return fmt.Errorf("import finished %s: %d of %d rows failed", job.Status, job.ErrorRows, job.TotalRows)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.ImportType, "type", validation.EmployeeImportType, "import type")
	cmd.Flags().StringVar(&opts.File, "file", "", "path to the CSV or XLSX file")
	cmd.Flags().StringVar(&opts.RemoteURL, "remote-url", "", "HR API base URL (defaults to REMOTE_BASE_URL)")
	cmd.Flags().StringVar(&opts.Token, "token", "", "HR API bearer token (defaults to REMOTE_TOKEN)")
	cmd.Flags().BoolVar(&opts.Strict, "strict", false, "exit non-zero unless every row was imported")
	return cmd
}
