package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ciciliostudio/loginpilot/internal/archive"
	"github.com/ciciliostudio/loginpilot/internal/session"
	"github.com/ciciliostudio/loginpilot/internal/stats"
)

var statsJSON bool

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Aggregate login attempt history into a success-rate report",
	RunE: func(cmd *cobra.Command, args []string) error {
		history := session.NewHistory(cfg.HistoryPath(), cfg.Storage.HistoryCap, logger)

		archived := 0
		if arc, err := archive.Open(cfg.ArchivePath(), logger); err == nil {
			archived = arc.Count()
			arc.Close()
		} else {
			logger.Debug("archive unavailable for stats", zap.Error(err))
		}

		report := stats.Aggregate(history.Attempts(), archived)
		if statsJSON {
			return stats.ExportJSON(os.Stdout, report)
		}
		printReport(report)
		return nil
	},
}

func printReport(report *stats.Report) {
	fmt.Printf("Attempts: %d (retained) + %d (archived)\n", report.TotalAttempts, report.ArchivedCount)
	fmt.Printf("Success rate: %.0f%% (%d success / %d failure)\n\n",
		report.OverallRate*100, report.TotalSuccesses, report.TotalFailures)

	if len(report.Domains) == 0 {
		fmt.Printf("No attempts recorded yet.\n")
		return
	}
	for _, domain := range report.Domains {
		fmt.Printf("%-30s %3d attempts, %3.0f%% success\n",
			domain.Domain, domain.Attempts, domain.SuccessRate*100)
	}
}

func init() {
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "emit the full report as JSON")
	rootCmd.AddCommand(statsCmd)
}
