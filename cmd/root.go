// Package cmd implements the regwatch command-line interface.
package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jonesrussell/north-cloud/regwatch/internal/config"
	"github.com/jonesrussell/north-cloud/regwatch/internal/logger"
)

// Version is set at build time with -ldflags "-X .../cmd.Version=...".
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:           "regwatch",
	Short:         "Regulatory data crawl scheduler and risk classification service",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return cmd.Help()
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file (default is $CONFIG_PATH or ./config.yml)")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	_ = viper.BindEnv("debug", "APP_DEBUG")

	rootCmd.AddCommand(
		serveCommand(),
		crawlersCommand(),
		migrateCommand(),
		versionCommand(),
	)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.ExecuteContext(context.Background())
}

// loadConfig reads the file named by --config and applies the --debug flag.
// The file is optional; defaults and the environment cover a bare start.
func loadConfig() (*config.Config, error) {
	path := config.ResolvePath(viper.GetString("config"))
	cfg, err := config.Load[config.Config](path, viper.GetString("config") == "")
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if viper.GetBool("debug") {
		cfg.Service.Debug = true
	}
	if cfg.Service.Version == "" {
		cfg.Service.Version = Version
	}
	cfg.SetDefaults()
	if err = cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// newLogger builds the process logger from cfg.
func newLogger(cfg *config.Config) (logger.Logger, error) {
	log, err := logger.New(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	return log.With(logger.String("version", cfg.Service.Version)), nil
}

func versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "regwatch %s\n", Version)
		},
	}
}
