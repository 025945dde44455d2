package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	urlengine "github.com/hugr-lab/url-engine"
	"github.com/hugr-lab/url-engine/pkg/compression"
)

func newWriteCmd(a *app) *cobra.Command {
	var (
		format   string
		file     string
		queryID  string
		progress bool
	)
	cmd := &cobra.Command{
		Use:   "write <catalog.table>",
		Short: "Write the rows from a file or stdin into the table",
		Long: "Decodes the rows with the format and uploads them to the table resource.\n" +
			"A compressed file is detected by its extension.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := tableArg(args[0])
			if err != nil {
				return err
			}
			st, err := a.engine.Catalog().Get(id)
			if err != nil {
				return err
			}

			r := cmd.InOrStdin()
			size := int64(-1)
			if file != "" && file != "-" {
				f, err := os.Open(file)
				if err != nil {
					return err
				}
				defer f.Close()
				if fi, err := f.Stat(); err == nil {
					size = fi.Size()
				}
				r = f
			}
			if progress {
				bar := progressbar.NewOptions64(size,
					progressbar.OptionSetWriter(cmd.ErrOrStderr()),
					progressbar.OptionSetDescription("writing "+id.String()),
					progressbar.OptionShowBytes(true),
					progressbar.OptionThrottle(100*time.Millisecond),
					progressbar.OptionOnCompletion(func() {
						fmt.Fprintln(cmd.ErrOrStderr())
					}),
				)
				defer bar.Finish()
				r = io.TeeReader(r, bar)
			}
			if file != "" && file != "-" {
				if m := compression.Choose(file, compression.Auto); m != compression.None {
					dr, err := compression.NewReader(m, r)
					if err != nil {
						return err
					}
					defer dr.Close()
					r = dr
				}
			}

			ec := a.engine.Catalog().Context().ForQuery(queryID)
			rows, err := urlengine.WriteTable(cmd.Context(), st, ec, format, r)
			if err != nil {
				return err
			}
			log.Debug().Str("table", id.String()).Str("query_id", ec.QueryID).Int("rows", rows).Msg("rows written")
			if getOutputFormat(cmd) == "json" {
				return printJSON(cmd.OutOrStdout(), map[string]any{"rows": rows, "query_id": ec.QueryID})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d rows written to %s\n", rows, id)
			return nil
		},
	}
	fs := cmd.Flags()
	fs.StringVarP(&format, "format", "f", urlengine.DefaultOutputFormat, "Input format")
	fs.StringVar(&file, "file", "", "Input file, stdin if empty or -")
	fs.StringVar(&queryID, "query-id", "", "Query id sent to the remote resource")
	fs.BoolVar(&progress, "progress", false, "Show the progress bar on stderr")
	return cmd
}
