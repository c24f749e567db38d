package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"bctx/internal/config"
	"bctx/internal/history"
	"bctx/internal/registry"
	"bctx/internal/repocache"
	"bctx/internal/session"
	"bctx/internal/workspace"
)

// app wires the shared subsystems for one command invocation.
type app struct {
	cfg    config.Config
	reg    *registry.Registry
	cache  *repocache.Cache
	engine *workspace.Engine
	orch   *session.Orchestrator
	quiet  bool
}

func newApp(configPath string, quiet bool) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, quiet: quiet}
	a.reg = registry.New(cfg)
	a.cache = repocache.New(cfg.ReposDir())
	a.cache.Logf = a.logf
	a.engine = workspace.NewEngine(cfg.WorkspacesDir(), a.cache)
	a.engine.Logf = a.logf
	a.orch = session.NewOrchestrator(cfg, a.reg, a.engine)
	a.orch.Logf = a.logf
	return a, nil
}

func (a *app) logf(format string, args ...any) {
	if a.quiet {
		return
	}
	fmt.Fprintf(os.Stderr, format+"\n", args...)
}

func (a *app) historyStore() (*history.Store, error) {
	return history.NewStore(filepath.Join(a.cfg.Storage.BaseDir, "history.db"))
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		quiet      bool
	)

	root := &cobra.Command{
		Use:   "bctx",
		Short: "Ask a coding agent questions about registered repositories",
		Long: `bctx registers git repositories, materialises composite workspaces
from them, and hands those workspaces to a local coding agent so
questions can be answered against real source.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a config file")
	root.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress progress output")

	getApp := func() (*app, error) {
		return newApp(configPath, quiet)
	}

	root.AddCommand(
		newRepoCmd(getApp),
		newWorkspaceCmd(getApp),
		newAskCmd(getApp),
		newChatCmd(getApp),
		newHistoryCmd(getApp),
		newServeCmd(getApp),
	)
	return root
}
