package commands

import (
	"fmt"

	"github.com/apk-analysis/hermes-go/internal/cache"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

const defaultCacheFile = ".hermes-cache.jsonl"

func newExportCommand(e *env) *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the app database to a JSONL cache file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := e.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			n, err := cache.Export(cmd.Context(), st.apps, path)
			if err != nil {
				return err
			}
			fmt.Fprintf(e.out, "saved %s apps to %s\n", humanize.Comma(int64(n)), path)
			return nil
		},
	}
	cmd.Flags().StringVarP(&path, "out", "o", defaultCacheFile, "cache file to write")
	return cmd
}

func newImportCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "import [file]",
		Short: "Load apps from a JSONL cache file into the app database",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := defaultCacheFile
			if len(args) == 1 {
				path = args[0]
			}

			st, err := e.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			n, err := cache.Import(cmd.Context(), st.apps, path)
			if err != nil {
				return err
			}
			fmt.Fprintf(e.out, "loaded %s apps from cache\n", humanize.Comma(int64(n)))
			return nil
		},
	}
}
