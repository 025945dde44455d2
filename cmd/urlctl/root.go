package main

import (
	"fmt"
	"io"
	"os"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	urlengine "github.com/hugr-lab/url-engine"
	"github.com/hugr-lab/url-engine/internal/config"
	"github.com/hugr-lab/url-engine/pkg/types"
)

const defaultCatalog = "default"

type app struct {
	config config.Config
	engine *urlengine.Service
}

func execute() int {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		output, _ := rootCmd.PersistentFlags().GetString("output")
		if output == "json" {
			_ = printJSON(os.Stdout, map[string]string{"error": err.Error()})
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	a := &app{}
	rootCmd := &cobra.Command{
		Use:           "urlctl",
		Short:         "URL tables CLI",
		Long:          "Reads and writes the tables stored in remote HTTP resources.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := validateOutputFormat(getOutputFormat(cmd)); err != nil {
				return err
			}
			return a.init(cmd)
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.String("tables", "", "Table definitions file (TABLES_FILE)")
	pf.String("remote-hosts", "", "Comma separated allowed remote hosts (REMOTE_HOSTS)")
	pf.Bool("debug", false, "Debug logging (DEBUG)")
	pf.StringP("output", "o", "table", "Output format (table, json)")
	bindFlags(pf, map[string]string{
		"TABLES_FILE":  "tables",
		"REMOTE_HOSTS": "remote-hosts",
		"DEBUG":        "debug",
	})

	rootCmd.AddCommand(
		newTablesCmd(a),
		newReadCmd(a),
		newWriteCmd(a),
		newRenameCmd(a),
	)
	return rootCmd
}

func bindFlags(fs *pflag.FlagSet, keys map[string]string) {
	for key, name := range keys {
		_ = viper.BindPFlag(key, fs.Lookup(name))
	}
}

func (a *app) init(cmd *cobra.Command) error {
	config.Init()
	a.config = config.Load()
	a.config.SetupLogger()
	if a.config.TablesFile == "" {
		return fmt.Errorf("table definitions file is not set, use --tables or TABLES_FILE")
	}
	hf, err := a.config.HostFilter()
	if err != nil {
		return err
	}
	a.engine = urlengine.New(urlengine.Config{
		Settings:   a.config.Settings,
		HostFilter: hf,
		TablesFile: a.config.TablesFile,
		Debug:      a.config.Debug,
	})
	return a.engine.Init(cmd.Context())
}

func tableArg(s string) (types.TableID, error) {
	id := types.ParseTableID(s, defaultCatalog)
	if id.Catalog == "" || id.Name == "" {
		return id, fmt.Errorf("invalid table name %q", s)
	}
	return id, nil
}

func getOutputFormat(cmd *cobra.Command) string {
	v, _ := cmd.Root().PersistentFlags().GetString("output")
	return v
}

func validateOutputFormat(output string) error {
	if output != "" && output != "table" && output != "json" {
		return fmt.Errorf("unsupported output format %q: use 'table' or 'json'", output)
	}
	return nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
