package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/eshaffer321/reconcile/internal/cli"
	"github.com/eshaffer321/reconcile/internal/infrastructure/config"
	"github.com/eshaffer321/reconcile/internal/infrastructure/logging"
)

// CLI represents the main CLI application
type CLI struct {
	configFile string
	verbose    bool
}

func main() {
	c := &CLI{}

	// Global flags
	flag.StringVar(&c.configFile, "config", "", "Configuration file path")
	flag.BoolVar(&c.verbose, "verbose", false, "Enable verbose logging")
	flag.Usage = printUsage
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(2)
	}

	subcommand := args[0]
	command, ok := cli.Commands[subcommand]
	if !ok {
		fmt.Fprintf(os.Stderr, "Unknown subcommand: %s\n\n", subcommand)
		printUsage()
		os.Exit(2)
	}

	// .env is optional; real environment variables win
	_ = godotenv.Load()

	// Logs go to stderr so -json output stays parseable
	bootstrap := logging.NewLoggerTo(os.Stderr, config.LoggingConfig{Level: "info", Format: "text"})
	cfg := loadConfig(c.configFile, bootstrap)

	logCfg := cfg.Observability.Logging
	if c.verbose {
		logCfg.Level = "debug"
	}
	logger := logging.NewLoggerTo(os.Stderr, logCfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := cli.NewApp(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to start", "error", err)
		os.Exit(1)
	}

	err = command(ctx, app, args[1:], os.Stdout, os.Stderr)
	if closeErr := app.Close(); closeErr != nil {
		logger.Warn("Failed to close resources", "error", closeErr)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if errors.Is(err, cli.ErrUsage) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func loadConfig(configFile string, logger *slog.Logger) *config.Config {
	if configFile == "" {
		// Try to find config file
		for _, candidate := range []string{"config.yaml", "config.yml"} {
			if _, err := os.Stat(candidate); err == nil {
				configFile = candidate
				break
			}
		}
	}

	if configFile == "" {
		logger.Debug("No config file found, using environment variables")
		return config.LoadFromEnv()
	}

	cfg, err := config.Load(configFile)
	if err != nil {
		logger.Error("Failed to load config", "path", configFile, "error", err)
		os.Exit(1)
	}
	return cfg
}

func printUsage() {
	w := os.Stderr
	fmt.Fprintln(w, "Bank Reconciliation CLI")
	fmt.Fprintln(w, "=======================")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: reconcile [-config FILE] [-verbose] <command> [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  load <file>...                 Load bank transactions and invoices (.json or .csv)")
	fmt.Fprintln(w, "  run [-days N] [-ratio R] [-threshold T] [-json]")
	fmt.Fprintln(w, "                                 Run an automatic reconciliation pass")
	fmt.Fprintln(w, "  match <entry-id> <entry-id>... Confirm a manual match")
	fmt.Fprintln(w, "  reverse <match-id>             Reverse a match and free its entries")
	fmt.Fprintln(w, "  unmatched [-kind K] [-as-of YYYY-MM-DD] [-json]")
	fmt.Fprintln(w, "                                 List unreconciled entries")
	fmt.Fprintln(w, "  matches [-active] [-origin O] [-limit N] [-offset N] [-json]")
	fmt.Fprintln(w, "                                 List matches")
	fmt.Fprintln(w, "  runs [-limit N] [-json]        Show pass history")
	fmt.Fprintln(w, "  report [-out FILE]             Export an Excel reconciliation report")
	fmt.Fprintln(w, "  serve [-port N]                Run the HTTP API")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Configuration is read from config.yaml, or RECONCILE_* environment variables")
	fmt.Fprintln(w, "(a .env file in the working directory is loaded first).")
}
