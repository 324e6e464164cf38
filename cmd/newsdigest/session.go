package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dshills/newsdigest-mcp/internal/session"
)

func newSessionCmd(c *cli) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Inspect the session history",
	}
	cmd.PersistentFlags().BoolVar(&asJSON, "json", false, "print JSON")

	show := &cobra.Command{
		Use:   "show <session-id>",
		Short: "Show one session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := session.Open(cmd.Context(), c.cfg.SessionStoreConfig())
			if err != nil {
				return err
			}
			defer func() { _ = h.Close() }()

			s, ok := h.Get(args[0])
			if !ok {
				return fmt.Errorf("session %s not found", args[0])
			}
			if asJSON {
				return printJSON(cmd, map[string]any{s.SessionID: s})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderSessions(s))
			return nil
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List all sessions, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			h, err := session.Open(cmd.Context(), c.cfg.SessionStoreConfig())
			if err != nil {
				return err
			}
			defer func() { _ = h.Close() }()

			sessions := h.List()
			if asJSON {
				byID := make(map[string]any, len(sessions))
				for _, s := range sessions {
					byID[s.SessionID] = s
				}
				return printJSON(cmd, byID)
			}
			if len(sessions) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no sessions recorded")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderSessions(sessions...))
			return nil
		},
	}

	cmd.AddCommand(show, list)
	return cmd
}

func printJSON(cmd *cobra.Command, v any) error {
	body, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(body))
	return nil
}
