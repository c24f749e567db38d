package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newWorkspaceCmd(getApp func() (*app, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workspace",
		Short: "Manage materialised workspaces",
	}
	cmd.AddCommand(newWorkspaceListCmd(getApp), newWorkspaceClearCmd(getApp))
	return cmd
}

func newWorkspaceListCmd(getApp func() (*app, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List existing workspaces",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := getApp()
			if err != nil {
				return err
			}
			keys, err := a.engine.List()
			if err != nil {
				return err
			}
			if len(keys) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no workspaces")
				return nil
			}
			for _, key := range keys {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", key, a.engine.Dir(key))
			}
			return nil
		},
	}
}

func newWorkspaceClearCmd(getApp func() (*app, error)) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "clear [key]",
		Short: "Remove a workspace (clones stay cached)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := getApp()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if all {
				if err := a.engine.ClearAll(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "cleared all workspaces")
				return nil
			}
			if len(args) != 1 {
				return fmt.Errorf("give a workspace key or --all")
			}
			if err := a.engine.Clear(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cleared %s\n", args[0])
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "remove every workspace")
	return cmd
}
