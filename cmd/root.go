// Package cmd builds the command tree.
package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"roomwatch/cmd/cleanup"
	"roomwatch/cmd/clearpending"
	"roomwatch/cmd/realtime"
	"roomwatch/internal/conf"
	"roomwatch/internal/logging"
)

// RootCommand creates and returns the root command with all subcommands.
func RootCommand(settings *conf.Settings) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "roomwatch",
		Short: "Occupancy-aware room booking service",
		Long: "roomwatch monitors camera feeds for room occupancy and serves " +
			"reservation requests against a transactional booking ledger.",
	}

	setupFlags(rootCmd, settings)

	rootCmd.AddCommand(
		realtime.Command(settings),
		cleanup.Command(settings),
		clearpending.Command(settings),
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if settings.Debug {
			logging.SetLevel(slog.LevelDebug)
		}
		return conf.ValidateSettings(settings)
	}
	return rootCmd
}

// setupFlags binds the global flags to viper so the config file, environment
// and command line resolve in the usual precedence order.
func setupFlags(cmd *cobra.Command, settings *conf.Settings) {
	cmd.PersistentFlags().BoolVarP(&settings.Debug, "debug", "d", viper.GetBool("debug"), "Enable debug output")
	cmd.PersistentFlags().StringVar(&settings.Database.SQLite.Path, "sqlite", viper.GetString("database.sqlite.path"), "Path to the SQLite database file")
	_ = viper.BindPFlags(cmd.PersistentFlags())
}
