package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"roomwatch/cmd"
	"roomwatch/internal/conf"
	"roomwatch/internal/logging"
)

// version is set at build time with -ldflags.
var version = "dev"

func main() {
	logging.Init()

	settings, err := conf.Load()
	if err != nil {
		logging.Fatal("configuration load failed", "error", err)
	}
	settings.Version = version

	if settings.Main.Log.Enabled {
		closeLog, err := logging.EnableFileOutput(settings.Main.Log.Path)
		if err != nil {
			logging.Fatal("log file setup failed", "path", settings.Main.Log.Path, "error", err)
		}
		defer func() { _ = closeLog() }()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := cmd.RootCommand(settings)
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logging.Fatal("command failed", "error", err)
	}
}
