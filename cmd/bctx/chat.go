package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"bctx/internal/history"
	"bctx/internal/query"
	"bctx/internal/session"
	"bctx/internal/tui"
)

func newChatCmd(getApp func() (*app, error)) *cobra.Command {
	var plain bool
	cmd := &cobra.Command{
		Use:   "chat <@repo>...",
		Short: "Open an interactive session against a workspace",
		Long: `Chat keeps one agent session open against a workspace and answers
questions until you quit.

  bctx chat @svelte @daytona
  bctx chat svelte --plain`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := getApp()
			if err != nil {
				return err
			}

			// accept both "@svelte" and "svelte"
			raw := make([]string, 0, len(args))
			for _, arg := range args {
				raw = append(raw, strings.TrimPrefix(arg, "@"))
			}
			names := query.Merge(raw)
			if _, err := a.orch.ResolveNames(names); err != nil {
				return err
			}

			ctx := cmd.Context()
			sess, err := a.orch.Open(ctx, names)
			if err != nil {
				return err
			}
			defer sess.Close()

			store, err := a.historyStore()
			if err != nil {
				a.logf("history unavailable: %v", err)
				store = nil
			} else {
				defer store.Close()
			}

			if plain {
				return runPlainChat(ctx, a, sess, store)
			}
			return tui.Run(ctx, a.orch, sess, a.cfg.Agent.Provider, a.cfg.Agent.Model, store)
		},
	}
	cmd.Flags().BoolVar(&plain, "plain", false, "line-based chat without the TUI")
	return cmd
}

// runPlainChat is the readline loop: one prompt per question, answer
// text streamed to stdout as it grows.
func runPlainChat(ctx context.Context, a *app, sess *session.Session, store *history.Store) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:            sess.Workspace.Key + "> ",
		HistoryFile:       filepath.Join(a.cfg.Storage.BaseDir, "chat_history"),
		HistorySearchFold: true,
	})
	if err != nil {
		return err
	}
	defer rl.Close()

	fmt.Printf("chatting with %s (session %s, port %d); ctrl-d to quit\n",
		sess.Workspace.Key, sess.ID, sess.Port())

	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			continue
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		question := strings.TrimSpace(line)
		if question == "" {
			continue
		}

		started := time.Now()
		answer, err := streamAnswer(ctx, a, sess, question)
		if err != nil {
			fmt.Printf("error: %v\n", err)
			continue
		}
		if store != nil && answer != "" {
			if _, herr := store.Append(history.Entry{
				WorkspaceKey: sess.Workspace.Key,
				Question:     question,
				Answer:       answer,
				Provider:     a.cfg.Agent.Provider,
				Model:        a.cfg.Agent.Model,
				Duration:     time.Since(started),
			}); herr != nil {
				a.logf("history: %v", herr)
			}
		}
	}
}

// streamAnswer prints answer text incrementally. Part events carry the
// part's full text so far, so only the unprinted suffix is written.
func streamAnswer(ctx context.Context, a *app, sess *session.Session, question string) (string, error) {
	stream := a.orch.Prompt(ctx, sess, question)

	var order []string
	parts := map[string]string{}
	printed := map[string]int{}

	for ev := range stream.Events() {
		text := ev.Text()
		if text == "" {
			continue
		}
		id := ev.PartID()
		if _, seen := parts[id]; !seen {
			if len(order) > 0 {
				fmt.Print("\n\n")
			}
			order = append(order, id)
		}
		parts[id] = text
		if n := printed[id]; len(text) > n {
			fmt.Print(text[n:])
			printed[id] = len(text)
		}
	}
	fmt.Println()

	if err := stream.Err(); err != nil {
		return "", err
	}
	texts := make([]string, 0, len(order))
	for _, id := range order {
		texts = append(texts, parts[id])
	}
	return strings.Join(texts, "\n\n"), nil
}
