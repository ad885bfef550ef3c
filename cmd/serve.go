package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jonesrussell/north-cloud/regwatch/internal/bootstrap"
	"github.com/jonesrussell/north-cloud/regwatch/internal/database"
	"github.com/jonesrussell/north-cloud/regwatch/internal/logger"
)

func serveCommand() *cobra.Command {
	var skipMigrations bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the task scheduler and the judgment janitor",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			log, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			if cfg.Database.Enabled() && !skipMigrations {
				if err = database.RunMigrations(cfg.Database, log); err != nil {
					return err
				}
			}

			app, err := bootstrap.New(cfg, log)
			if err != nil {
				log.Error("Failed to start", logger.Error(err))
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return app.Run(ctx)
		},
	}
	cmd.Flags().BoolVar(&skipMigrations, "skip-migrations", false, "do not apply pending migrations at startup")
	return cmd
}
