package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fillariennustin/fillaridata/internal/fetcher"
	"github.com/fillariennustin/fillaridata/internal/pipeline"
	"github.com/fillariennustin/fillaridata/internal/planner"
	"github.com/fillariennustin/fillaridata/internal/source"
	"github.com/fillariennustin/fillaridata/internal/store"
)

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Update or create the dataset file",
	Long: `Update or create the dataset file.

Fetches bike station snapshots newer than the last stored entry, aligns the
matching weather observations onto them, and appends the fused rows. Data is
committed in batches so memory stays bounded by the batch size, not by the
size of the existing dataset.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		log := zap.L().With(zap.String("command", "update"))

		opts, bikeSource, err := parseUpdateFlags(cmd)
		if err != nil {
			return err
		}

		st, err := store.Open(ctx, cfg.Store.Path)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
			UserAgent:  cfg.HTTP.UserAgent,
			Timeout:    time.Duration(cfg.HTTP.TimeoutSecs) * time.Second,
			MaxRetries: cfg.HTTP.MaxRetries,
		})

		bikes := source.NewBikeSource(bikeSource, f)
		weather := source.NewWeatherSource(cfg.FMI, f)
		updater := pipeline.NewUpdater(bikes, weather, st)

		log.Info("starting update",
			zap.String("store", cfg.Store.Path),
			zap.String("source", bikeSource),
			zap.Int("limit", opts.Limit),
			zap.Int("batch", opts.Batch),
		)

		result, err := updater.Run(ctx, opts)
		if err != nil {
			if errors.Is(err, planner.ErrEmptyWindow) {
				fmt.Fprintln(cmd.OutOrStdout(), "Nothing to update")
				return nil
			}
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d rows (%d distinct timestamps) to %s\n",
			result.Rows, result.Timestamps, cfg.Store.Path)
		return nil
	},
}

func init() {
	updateCmd.Flags().StringP("source", "s", "", "URL or local directory holding snapshot files")
	updateCmd.Flags().String("first", "", "skip source data before this RFC3339 timestamp")
	updateCmd.Flags().IntP("limit", "l", 0, "maximum number of distinct timestamps to add (0 = unlimited)")
	updateCmd.Flags().IntP("batch", "b", 0, "timestamps per committed batch (default from config)")
	rootCmd.AddCommand(updateCmd)
}

func parseUpdateFlags(cmd *cobra.Command) (pipeline.UpdateOptions, string, error) {
	src, _ := cmd.Flags().GetString("source")
	firstStr, _ := cmd.Flags().GetString("first")
	limit, _ := cmd.Flags().GetInt("limit")
	batch, _ := cmd.Flags().GetInt("batch")

	if src == "" {
		src = cfg.Bike.Source
	}
	if batch <= 0 {
		batch = cfg.Update.Batch
	}

	opts := pipeline.UpdateOptions{
		Limit:           limit,
		Batch:           batch,
		WeatherLookback: time.Duration(cfg.FMI.LookbackMins) * time.Minute,
	}

	if firstStr != "" {
		first, err := time.Parse(time.RFC3339, firstStr)
		if err != nil {
			return pipeline.UpdateOptions{}, "", eris.Wrapf(err, "parse --first %q", firstStr)
		}
		first = first.UTC()
		opts.First = &first
	}

	return opts, src, nil
}
