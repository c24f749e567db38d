package main

import (
	"github.com/spf13/cobra"

	"bctx/internal/httpapi"
)

func newServeCmd(getApp func() (*app, error)) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the ask API over HTTP",
		Long: `Serve runs an HTTP endpoint wrapping the single-shot ask flow:

  POST /ask {"repos": ["svelte"], "question": "how do stores work?"}

Each request gets its own workspace and agent session.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := getApp()
			if err != nil {
				return err
			}
			if addr == "" {
				addr = a.cfg.Server.HTTPAddr
			}
			h := httpapi.NewHandler(a.orch)
			h.Logf = a.logf
			a.logf("listening on %s", addr)
			return httpapi.Serve(cmd.Context(), addr, h)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	return cmd
}
