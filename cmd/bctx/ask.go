package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"bctx/internal/history"
	"bctx/internal/query"
)

func newAskCmd(getApp func() (*app, error)) *cobra.Command {
	var repos []string
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask one question and print the answer",
		Long: `Ask sends a single question to the agent. Repositories come from
@mentions in the question and from --repo flags; the rest of the text
is the prompt.

  bctx ask "@svelte how do stores work?"
  bctx ask --repo svelte --repo daytona "how do these integrate?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := getApp()
			if err != nil {
				return err
			}

			parsed := query.Parse(strings.Join(args, " "))
			names := query.Merge(repos, parsed.Repos)
			if len(names) == 0 {
				return fmt.Errorf("no repositories given: mention them with @name or --repo")
			}
			if parsed.Prompt == "" {
				return fmt.Errorf("question is empty")
			}
			if _, err := a.orch.ResolveNames(names); err != nil {
				return err
			}

			ctx := cmd.Context()
			started := time.Now()
			answer, err := a.orch.Ask(ctx, names, parsed.Prompt)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), answer)

			key, _ := query.WorkspaceKey(names)
			if store, herr := a.historyStore(); herr == nil {
				defer store.Close()
				if _, herr := store.Append(history.Entry{
					WorkspaceKey: key,
					Question:     parsed.Prompt,
					Answer:       answer,
					Provider:     a.cfg.Agent.Provider,
					Model:        a.cfg.Agent.Model,
					Duration:     time.Since(started),
				}); herr != nil {
					a.logf("history: %v", herr)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&repos, "repo", nil, "repository to include (repeatable)")
	return cmd
}
