package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/fillariennustin/fillaridata/internal/pipeline"
	"github.com/fillariennustin/fillaridata/internal/store"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show information about the current dataset file",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if _, err := os.Stat(cfg.Store.Path); err != nil {
			return eris.Errorf("info: data file not found at %s", cfg.Store.Path)
		}

		st, err := store.Open(ctx, cfg.Store.Path)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		return pipeline.Info(ctx, st, cfg.Store.Path, cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(infoCmd)
}
