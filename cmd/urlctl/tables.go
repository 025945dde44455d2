package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	urlengine "github.com/hugr-lab/url-engine"
)

func newTablesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "tables",
		Short: "List the declared tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var tables []urlengine.TableInfo
			for _, st := range a.engine.Catalog().List() {
				tables = append(tables, urlengine.Describe(st))
			}
			if getOutputFormat(cmd) == "json" {
				return printJSON(cmd.OutOrStdout(), tables)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TABLE\tENGINE\tFORMAT\tCOMPRESSION\tURL\tCOLUMNS")
			for _, t := range tables {
				cols := make([]string, len(t.Columns))
				for i, c := range t.Columns {
					cols[i] = c.Name + " " + c.Type
				}
				fmt.Fprintf(tw, "%s.%s\t%s\t%s\t%s\t%s\t%s\n",
					t.Catalog, t.Name, t.Engine, t.Format, t.Compression, t.URL, strings.Join(cols, ", "))
			}
			return tw.Flush()
		},
	}
}
