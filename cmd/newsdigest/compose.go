package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dshills/newsdigest-mcp/internal/app"
	"github.com/dshills/newsdigest-mcp/internal/composer"
)

var errCompositionFailed = errors.New("composition failed")

func newComposeCmd(c *cli) *cobra.Command {
	var (
		req     composer.Request
		asJSON  bool
		verbose bool
	)
	cmd := &cobra.Command{
		Use:   "compose",
		Short: "Compose a news digest for a company",
		Example: `  newsdigest compose --company Tesla --focus "battery technology" --focus pricing
  newsdigest compose --company Tesla --focus pricing --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := app.New(cmd.Context(), c.cfg, app.WithLogger(c.log))
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			res := a.Composer.Compose(cmd.Context(), req)

			out := cmd.OutOrStdout()
			if asJSON {
				body, err := json.MarshalIndent(res, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(out, string(body))
			} else {
				fmt.Fprintln(out, renderResult(res, verbose))
			}
			if res.Failed() {
				return errCompositionFailed
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&req.Company, "company", "", "company name")
	flags.StringArrayVar(&req.FocusPoints, "focus", nil, "focus point (repeatable)")
	flags.StringVar(&req.SessionID, "session-id", "", "session id (default derived from the current time)")
	flags.IntVar(&req.MaxResults, "max-results", 0, "articles per focus point (default from config)")
	flags.StringVar(&req.TimePeriod, "time-period", "", "time window added to retrieval queries (default from config)")
	flags.BoolVar(&asJSON, "json", false, "print the report as JSON")
	flags.BoolVarP(&verbose, "verbose", "v", false, "show ingestion statistics and warnings")
	_ = cmd.MarkFlagRequired("company")
	_ = cmd.MarkFlagRequired("focus")
	return cmd
}
