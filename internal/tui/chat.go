package tui

import (
	"context"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"bctx/internal/history"
	"bctx/internal/session"
)

// Run drives the chat TUI over an already-open session. Answered
// questions are appended to hist when one is given.
func Run(ctx context.Context, orch *session.Orchestrator, sess *session.Session, provider, model string, hist *history.Store) error {
	members := make([]string, 0, len(sess.Workspace.Members))
	for _, m := range sess.Workspace.Members {
		members = append(members, m.Name)
	}

	app := NewApp(sess.Workspace.Key, members, provider, model, sess.ID, sess.Port())

	var p *tea.Program
	app.onSubmit = func(text string) {
		go func() {
			started := time.Now()
			stream := orch.Prompt(ctx, sess, text)
			var order []string
			parts := map[string]string{}
			for ev := range stream.Events() {
				if t := ev.Text(); t != "" {
					id := ev.PartID()
					if _, seen := parts[id]; !seen {
						order = append(order, id)
					}
					parts[id] = t
					p.Send(AnswerPartMsg{PartID: id, Text: t})
				}
			}
			texts := make([]string, 0, len(order))
			for _, id := range order {
				texts = append(texts, parts[id])
			}
			answer := strings.Join(texts, "\n\n")

			err := stream.Err()
			p.Send(AnswerDoneMsg{Err: err})
			if err == nil && hist != nil && answer != "" {
				if _, herr := hist.Append(history.Entry{
					WorkspaceKey: sess.Workspace.Key,
					Question:     text,
					Answer:       answer,
					Provider:     provider,
					Model:        model,
					Duration:     time.Since(started),
				}); herr != nil {
					p.Send(LogMsg{Text: "history: " + herr.Error()})
				}
			}
		}()
	}

	p = tea.NewProgram(app, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}
