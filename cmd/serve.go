package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ciciliostudio/loginpilot/internal/archive"
	"github.com/ciciliostudio/loginpilot/internal/engine"
	"github.com/ciciliostudio/loginpilot/internal/rules"
	"github.com/ciciliostudio/loginpilot/internal/server"
	"github.com/ciciliostudio/loginpilot/internal/session"
	"github.com/ciciliostudio/loginpilot/internal/twofa"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the executor ingress and read-only reporting API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		store := rules.NewStore(cfg.RulesPath(), logger)
		history := session.NewHistory(cfg.HistoryPath(), cfg.Storage.HistoryCap, logger)

		arc, err := archive.Open(cfg.ArchivePath(), logger)
		if err != nil {
			// Best effort: the archive only preserves evicted attempts.
			logger.Warn("archive unavailable, evicted attempts will be dropped", zap.Error(err))
			arc = nil
		} else {
			defer arc.Close()
			history.SetEvictFunc(arc.Store)
		}

		tracker := session.NewTracker(history, logger)
		learner := engine.NewLearner(store, logger)

		var codes twofa.CodeReader
		switch cfg.Email.Provider {
		case "imap":
			codes = twofa.NewIMAPReader(cfg.Email.IMAP, logger)
		case "gmail":
			reader, err := twofa.NewGmailReader(ctx, cfg.Email.Gmail, logger)
			if err != nil {
				logger.Warn("gmail code reader unavailable", zap.Error(err))
			} else {
				codes = reader
			}
		}

		srv := server.New(server.Options{
			Tracker: tracker,
			Learner: learner,
			Store:   store,
			History: history,
			Archive: arc,
			Codes:   codes,
			Logger:  logger,
		})

		// Imports go through the server so they hold the same lock as
		// executor reports.
		watcher := rules.NewImportWatcher(srv, cfg.CommunityDir(), logger)
		go func() {
			if err := watcher.Run(ctx); err != nil {
				logger.Warn("community import watcher stopped", zap.Error(err))
			}
		}()

		return srv.ListenAndServe(ctx, cfg.Server.Listen, cfg.Server.AllowedOrigins)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
