package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	urlengine "github.com/hugr-lab/url-engine"
	"github.com/hugr-lab/url-engine/pkg/storages"
)

type readOptions struct {
	columns      []string
	format       string
	limit        int
	maxBlockSize int
	queryID      string
}

func (o *readOptions) flags(fs *pflag.FlagSet) {
	fs.StringSliceVarP(&o.columns, "columns", "c", nil, "Columns to read, all physical columns if empty")
	fs.StringVarP(&o.format, "format", "f", urlengine.DefaultOutputFormat, "Output format")
	fs.IntVar(&o.limit, "limit", 0, "Maximum number of rows")
	fs.IntVar(&o.maxBlockSize, "max-block-size", 0, "Rows per block (MAX_BLOCK_SIZE)")
	fs.StringVar(&o.queryID, "query-id", "", "Query id sent to the remote resource")
}

func newReadCmd(a *app) *cobra.Command {
	var o readOptions
	cmd := &cobra.Command{
		Use:   "read <catalog.table>",
		Short: "Read the table rows to stdout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := tableArg(args[0])
			if err != nil {
				return err
			}
			st, err := a.engine.Catalog().Get(id)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			ec := a.engine.Catalog().Context().ForQuery(o.queryID)
			seq, err := st.Read(ctx, o.columns, storages.QueryInfo{QueryID: ec.QueryID, Limit: o.limit}, ec, o.maxBlockSize)
			if err != nil {
				return err
			}
			defer seq.Close()
			out, err := ec.FormatFactory().Output(o.format, cmd.OutOrStdout(), seq.Schema(), ec.FormatSettings(o.maxBlockSize))
			if err != nil {
				return err
			}
			if err := urlengine.CopyRows(ctx, seq, out, o.limit); err != nil {
				return err
			}
			return seq.Close()
		},
	}
	o.flags(cmd.Flags())
	return cmd
}
