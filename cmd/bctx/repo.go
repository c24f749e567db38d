package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"bctx/internal/registry"
)

func newRepoCmd(getApp func() (*app, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "repo",
		Short: "Manage registered repositories",
	}
	cmd.AddCommand(newRepoAddCmd(getApp), newRepoListCmd(getApp), newRepoRemoveCmd(getApp))
	return cmd
}

func newRepoAddCmd(getApp func() (*app, error)) *cobra.Command {
	var (
		branch  string
		notes   string
		subpath string
	)
	cmd := &cobra.Command{
		Use:   "add <name> <url>",
		Short: "Register a repository",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := getApp()
			if err != nil {
				return err
			}
			res, err := a.reg.Add(registry.Resource{
				Name:    args[0],
				Origin:  args[1],
				Branch:  branch,
				Notes:   notes,
				Subpath: subpath,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "registered %s (%s, branch %s)\n", res.Name, res.Origin, res.Branch)
			return nil
		},
	}
	cmd.Flags().StringVar(&branch, "branch", "", "branch to track (default main)")
	cmd.Flags().StringVar(&notes, "notes", "", "notes passed to the agent with every question")
	cmd.Flags().StringVar(&subpath, "path", "", "subdirectory the agent should focus on")
	return cmd
}

func newRepoListCmd(getApp func() (*app, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered repositories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := getApp()
			if err != nil {
				return err
			}
			resources := a.reg.List()
			if len(resources) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no repositories registered")
				return nil
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tBRANCH\tURL")
			for _, r := range resources {
				fmt.Fprintf(w, "%s\t%s\t%s\n", r.Name, r.Branch, r.Origin)
			}
			return w.Flush()
		},
	}
}

func newRepoRemoveCmd(getApp func() (*app, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <name>",
		Short: "Unregister a repository (the cached clone stays)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := getApp()
			if err != nil {
				return err
			}
			if err := a.reg.Remove(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", args[0])
			return nil
		},
	}
}
