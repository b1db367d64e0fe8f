package main

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

type getOptions struct {
	Server string
	Errors bool
}

func newGetCmd() *cobra.Command {
	var opts getOptions

	cmd := &cobra.Command{
		Use:   "get <job id> [--server <url>] [--errors]",
		Short: "Fetch an import job (or its error report) from the import API",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := strings.TrimSpace(args[0])
			if id == "" {
				return errors.New("job id is required")
			}
			target := strings.TrimRight(opts.Server, "/") + "/imports/" + url.PathEscape(id)
			if opts.Errors {
				target += "/errors.csv"
			}

			req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, target, nil)
			if err != nil {
				return fmt.Errorf("build request: %w", err)
			}
			client := &http.Client{Timeout: 30 * time.Second}
			resp, err := client.Do(req)
			if err != nil {
				return fmt.Errorf("get %s: %w", id, err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
				return fmt.Errorf("get %s: %s: %s", id, resp.Status, strings.TrimSpace(string(body)))
			}
			_, err = io.Copy(cmd.OutOrStdout(), resp.Body)
			return err
		},
	}

	cmd.Flags().StringVar(&opts.Server, "server", "http://localhost:8080", "import API address")
	cmd.Flags().BoolVar(&opts.Errors, "errors", false, "download the CSV error report instead of the job")
	return cmd
}
