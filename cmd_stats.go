package main

import (
	"encoding/json"
	"errors"
	"log"
	"os"

	"github.com/spf13/cobra"

	analyticsapp "noisemap/internal/analytics/application"
	"noisemap/internal/analytics/interfaces/export"
	sensors "noisemap/internal/sensors/domain"
)

var (
	statsHours  int
	statsWindow string
	statsPDF    string
)

var statsCmd = &cobra.Command{
	Use:   "stats <sensor_id>",
	Short: "Print windowed statistics for a sensor",
	Long:  `Summarize a sensor's stored readings over the last --hours hours, bucketed by --window.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runStats,
}

func init() {
	statsCmd.Flags().IntVar(&statsHours, "hours", analyticsapp.DefaultStatisticsHours, "look-back in hours")
	statsCmd.Flags().StringVar(&statsWindow, "window", "1m", "bucket width (30s, 1m, 5m, 1h, 1d)")
	statsCmd.Flags().StringVar(&statsPDF, "pdf", "", "also write a PDF report to this path")
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.DatabaseURL == "" && cfg.SQLitePath == "" {
		return errors.New("stats: DATABASE_URL, PG_DSN or SQLITE_PATH is required")
	}
	logger := log.New(os.Stderr, "", log.LstdFlags)

	history, err := openHistoryStore(cfg, logger)
	if err != nil {
		return err
	}
	defer history.Close()

	svc, err := analyticsapp.NewHistoryService(history.store, nil, sensors.SystemClock{})
	if err != nil {
		return err
	}
	summary, err := svc.Statistics(cmd.Context(), args[0], statsHours, statsWindow)
	if err != nil {
		return err
	}

	if statsPDF != "" {
		data, err := export.BuildStatisticsPDF(summary, sensors.SystemClock{}.Now())
		if err != nil {
			return err
		}
		if err := os.WriteFile(statsPDF, data, 0o644); err != nil {
			return err
		}
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(summary)
}
