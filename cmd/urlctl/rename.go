package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hugr-lab/url-engine/pkg/catalog"
)

func newRenameCmd(a *app) *cobra.Command {
	var save bool
	cmd := &cobra.Command{
		Use:   "rename <catalog.table> <catalog.table>",
		Short: "Rename the table",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			from, err := tableArg(args[0])
			if err != nil {
				return err
			}
			to, err := tableArg(args[1])
			if err != nil {
				return err
			}
			if err := a.engine.Catalog().Rename(from, to); err != nil {
				return err
			}
			if save {
				if err := catalog.RenameDefinition(a.config.TablesFile, from, to); err != nil {
					return fmt.Errorf("save definitions: %w", err)
				}
			}
			if getOutputFormat(cmd) == "json" {
				return printJSON(cmd.OutOrStdout(), map[string]any{"from": from, "to": to, "saved": save})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s renamed to %s\n", from, to)
			return nil
		},
	}
	cmd.Flags().BoolVar(&save, "save", false, "Rewrite the definitions file")
	return cmd
}
