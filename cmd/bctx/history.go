package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"bctx/internal/history"
)

func newHistoryCmd(getApp func() (*app, error)) *cobra.Command {
	var (
		workspaceKey string
		limit        int
		show         string
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Browse past answers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := getApp()
			if err != nil {
				return err
			}
			store, err := a.historyStore()
			if err != nil {
				return err
			}
			defer store.Close()
			out := cmd.OutOrStdout()

			if show != "" {
				entry, err := store.Get(show)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "workspace: %s\nasked: %s\nmodel: %s/%s\n\nQ: %s\n\n%s\n",
					entry.WorkspaceKey, entry.CreatedAt.Local().Format("2006-01-02 15:04"),
					entry.Provider, entry.Model, entry.Question, entry.Answer)
				return nil
			}

			var entries []historyRow
			if workspaceKey != "" {
				list, err := store.ForWorkspace(workspaceKey, limit)
				if err != nil {
					return err
				}
				entries = toRows(list)
			} else {
				list, err := store.Recent(limit)
				if err != nil {
					return err
				}
				entries = toRows(list)
			}

			if len(entries) == 0 {
				fmt.Fprintln(out, "no history yet")
				return nil
			}
			for _, e := range entries {
				fmt.Fprintf(out, "%s  %s  %-20s  %s\n", e.id, e.when, e.key, e.question)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&workspaceKey, "workspace", "", "only this workspace key")
	cmd.Flags().IntVar(&limit, "limit", 20, "max entries")
	cmd.Flags().StringVar(&show, "show", "", "print one entry in full by id")
	return cmd
}

type historyRow struct {
	id       string
	when     string
	key      string
	question string
}

func toRows(list []history.Entry) []historyRow {
	rows := make([]historyRow, 0, len(list))
	for _, e := range list {
		q := strings.ReplaceAll(e.Question, "\n", " ")
		if len(q) > 72 {
			q = q[:69] + "..."
		}
		rows = append(rows, historyRow{
			id:       e.ID,
			when:     e.CreatedAt.Local().Format("2006-01-02 15:04"),
			key:      e.WorkspaceKey,
			question: q,
		})
	}
	return rows
}
