package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/schaermu/dirbakd/internal/backup"
	"github.com/schaermu/dirbakd/internal/config"
	"github.com/schaermu/dirbakd/internal/manager"
	"github.com/schaermu/dirbakd/internal/targetfs"
	"github.com/spf13/cobra"
)

var (
	// Set by goreleaser
	version = "dev"
	commit  = "none"
	date    = "unknown"

	// Global flags
	cfgFile   string
	logLevel  string
	logFormat string

	// Command flags
	backupSource  string
	listSource    string
	restoreSource string
	restoreKey    string
	restoreDest   string
	verifySource  string
	verifyDeep    bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "dirbakd",
	Short: "Periodic directory backups with full, mirror and delta strategies",
	Long: `dirbakd snapshots configured source directories into their target
repositories whenever their backup period has passed.

It can run as a long-lived daemon or perform one-off backups, and it
restores, lists and verifies existing snapshots.`,
	SilenceUsage: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the backup daemon",
	Long: `Run starts the scheduler loop and creates a snapshot for every configured
source whenever its period has passed since the last attempt.

The daemon stops cleanly on SIGINT or SIGTERM.`,
	RunE: runDaemon,
}

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Create a snapshot of every configured source once",
	Long: `Backup runs a single snapshot attempt for every configured source, or for
the one selected with --source, and then exits.

Sources whose content has not changed since their newest snapshot are left
untouched.`,
	RunE: runBackup,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the snapshots of the configured sources",
	RunE:  runList,
}

var restoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Materialize a snapshot into an empty directory",
	Long: `Restore writes the full state of one snapshot into the given destination
directory. The destination must be empty.

Without --key the newest snapshot is restored. Delta snapshots behind the
chain head are reconstructed by stepping back from the newest state.`,
	RunE: runRestore,
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check the snapshot repositories for damage",
	Long: `Verify checks every snapshot for a readable record matching its directory
and for the presence of its data.

With --deep, each snapshot's stored state is cataloged and compared against
the structure digest in its record. Delta snapshots behind the chain head
are reconstructed into a scratch directory for the comparison.`,
	RunE: runVerify,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("dirbakd %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/dirbakd/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text, json)")

	// Backup command flags
	backupCmd.Flags().StringVar(&backupSource, "source", "", "only back up the source with this path or name")

	// List command flags
	listCmd.Flags().StringVar(&listSource, "source", "", "only list the source with this path or name")

	// Restore command flags
	restoreCmd.Flags().StringVar(&restoreSource, "source", "", "source path or name whose repository to restore from")
	restoreCmd.Flags().StringVar(&restoreKey, "key", "", "snapshot key to restore (default is the newest)")
	restoreCmd.Flags().StringVar(&restoreDest, "dest", "", "empty directory to restore into")

	// Verify command flags
	verifyCmd.Flags().StringVar(&verifySource, "source", "", "only verify the source with this path or name")
	verifyCmd.Flags().BoolVar(&verifyDeep, "deep", false, "reconstruct and compare each snapshot's stored state")

	// Add commands
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(restoreCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(versionCmd)
}

func runDaemon(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	// Setup logger
	logger := setupLogger()

	// Load configuration
	cfg, err := loadConfig(logger)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Create backup engines
	engines, err := buildEngines(cfg, logger)
	if err != nil {
		return err
	}

	// Register engines with the scheduler
	mgr := manager.New(manager.DefaultTick, logger)
	for i, engine := range engines {
		if err := mgr.Add(engine, cfg.Sources[i].Period.Std()); err != nil {
			return err
		}
	}

	logger.Info("starting backup daemon", "sources", len(engines))
	if err := mgr.Run(ctx); err != nil {
		logger.Error("backup daemon failed", "error", err)
		return err
	}

	return nil
}

func runBackup(cmd *cobra.Command, args []string) error {
	logger := setupLogger()

	cfg, err := loadConfig(logger)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	engines, err := buildEngines(cfg, logger)
	if err != nil {
		return err
	}
	if backupSource != "" {
		engine, err := findEngine(engines, backupSource)
		if err != nil {
			return err
		}
		engines = []*backup.Engine{engine}
	}

	var errs []error
	for _, engine := range engines {
		if err := engine.Make(); err != nil {
			logger.Error("backup failed", "name", engine.Name(), "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", engine.Name(), err))
		}
	}
	return errors.Join(errs...)
}

func runList(cmd *cobra.Command, args []string) error {
	logger := setupLogger()

	cfg, err := loadConfig(logger)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	engines, err := buildEngines(cfg, logger)
	if err != nil {
		return err
	}
	if listSource != "" {
		engine, err := findEngine(engines, listSource)
		if err != nil {
			return err
		}
		engines = []*backup.Engine{engine}
	}

	for _, engine := range engines {
		recs, err := engine.List()
		if err != nil {
			return fmt.Errorf("%s: %w", engine.Name(), err)
		}
		fmt.Printf("%s\n", engine.Name())
		for _, rec := range recs {
			fmt.Printf("  %s  added=%d removed=%d changed=%d\n",
				rec.Key, len(rec.Added), len(rec.Removed), len(rec.Changed))
		}
	}
	return nil
}

func runRestore(cmd *cobra.Command, args []string) error {
	if restoreSource == "" || restoreDest == "" {
		return fmt.Errorf("both --source and --dest are required")
	}

	logger := setupLogger()

	cfg, err := loadConfig(logger)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	engines, err := buildEngines(cfg, logger)
	if err != nil {
		return err
	}
	engine, err := findEngine(engines, restoreSource)
	if err != nil {
		return err
	}

	logger.Info("starting restore", "name", engine.Name(), "key", restoreKey, "dest", restoreDest)
	if err := engine.Restore(restoreKey, restoreDest); err != nil {
		logger.Error("restore failed", "error", err)
		return err
	}

	return nil
}

func runVerify(cmd *cobra.Command, args []string) error {
	logger := setupLogger()

	cfg, err := loadConfig(logger)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	engines, err := buildEngines(cfg, logger)
	if err != nil {
		return err
	}
	if verifySource != "" {
		engine, err := findEngine(engines, verifySource)
		if err != nil {
			return err
		}
		engines = []*backup.Engine{engine}
	}

	var errs []error
	for _, engine := range engines {
		logger.Info("verifying repository", "name", engine.Name(), "deep", verifyDeep)
		if err := engine.Verify(verifyDeep); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", engine.Name(), err))
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	logger.Info("all repositories verified")
	return nil
}

// buildEngines creates one backup engine per configured source, detecting
// each target's filesystem name tables first.
func buildEngines(cfg *config.Config, logger *slog.Logger) ([]*backup.Engine, error) {
	engines := make([]*backup.Engine, 0, len(cfg.Sources))
	for _, src := range cfg.Sources {
		fs, err := targetfs.Detect(src.Target, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to detect target filesystem for %s: %w", src.Target, err)
		}
		engine, err := backup.New(src, cfg.KeyFormat, fs, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create backup engine for %s: %w", src.Source, err)
		}
		engines = append(engines, engine)
	}
	return engines, nil
}

// findEngine matches a --source argument against the configured sources,
// by source path or by derived repository name.
func findEngine(engines []*backup.Engine, source string) (*backup.Engine, error) {
	want := (config.SourceConfig{Source: source}).Name()
	for _, e := range engines {
		if e.Name() == source || e.Name() == want {
			return e, nil
		}
	}
	return nil, fmt.Errorf("no configured source matches %q", source)
}

func setupLogger() *slog.Logger {
	// Parse log level
	var level slog.Level
	switch logLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	// Create handler based on format
	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}

	if logFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}

func loadConfig(logger *slog.Logger) (*config.Config, error) {
	// Determine config file path
	configPath := cfgFile
	if configPath == "" {
		configPath = os.Getenv("DIRBAKD_CONFIG")
	}
	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		configPath = fmt.Sprintf("%s/.config/dirbakd/config.yaml", home)
	}

	logger.Info("loading configuration", "path", configPath)

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logger.Debug("configuration loaded",
		"format", cfg.KeyFormat,
		"sources", len(cfg.Sources))

	return cfg, nil
}

func setupSignalHandler() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigCh
		cancel()
	}()

	return ctx, cancel
}
