package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/hupe1980/eduswarm/catalog"
	"github.com/spf13/cobra"
)

func newCatalogCmd() *cobra.Command {
	catalogCmd := &cobra.Command{
		Use:   "catalog",
		Short: "Manage agent catalogs",
	}
	catalogCmd.AddCommand(newCatalogInitCmd(), newCatalogShowCmd())
	return catalogCmd
}

func newCatalogInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init <path>",
		Short: "Write the built-in agent catalog to a TOML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			if !force {
				if _, err := os.Stat(path); err == nil {
					return fmt.Errorf("%s already exists (use --force to overwrite)", path)
				} else if !errors.Is(err, os.ErrNotExist) {
					return err
				}
			}
			if err := catalog.Default().Save(path); err != nil {
				return err
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "wrote catalog to %s\n", path)
			return err
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func newCatalogShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show [path]",
		Short: "List the agents of a catalog (built-in when no path is given)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat := catalog.Default()
			if len(args) == 1 {
				loaded, err := catalog.Load(args[0])
				if err != nil {
					return err
				}
				cat = loaded
			}
			out := cmd.OutOrStdout()
			for _, a := range cat.Agents {
				if _, err := fmt.Fprintf(out, "%-20s %-20s %s\n", a.ID, a.Name, a.Description); err != nil {
					return err
				}
			}
			return nil
		},
	}
}
