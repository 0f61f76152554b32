package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fillariennustin/fillaridata/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "fillaridata",
	Short: "Maintains the fused city bike and weather dataset",
	Long: "Fetches Helsinki city bike station snapshots and FMI weather observations,\n" +
		"fuses them into one (timestamp, station) keyed time series, and appends the\n" +
		"result incrementally to a local dataset file.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if file, _ := cmd.Flags().GetString("file"); file != "" {
			cfg.Store.Path = file
		}

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringP("file", "f", "", "path to the dataset file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
