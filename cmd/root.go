package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Evervolv/android-packages-apps-EVUpdater/internal/catalog"
	"github.com/Evervolv/android-packages-apps-EVUpdater/internal/config"
	"github.com/Evervolv/android-packages-apps-EVUpdater/internal/daemon"
	"github.com/Evervolv/android-packages-apps-EVUpdater/util"
)

var (
	configPath string
	logLevel   string
	logFile    string

	rootCmd = &cobra.Command{
		Use:          "evupdater",
		Short:        "Update package manager for Evervolv devices",
		SilenceUsage: true,
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "/data/evupdater/config.json", "config file location")
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "l", "info", "sets the log level")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "console", "sets the log path. If console is specified the log will be output to stdout")

	rootCmd.AddCommand(serviceCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(downloadCmd)
	rootCmd.AddCommand(flashCmd)

	serviceCmd.AddCommand(runCmd, startCmd, stopCmd, restartCmd)
	serviceCmd.AddCommand(installCmd, uninstallCmd)
}

// loadConfig initializes logging and reads (creating if needed) the config
// file. Every subcommand starts here.
func loadConfig() (*config.Config, error) {
	util.SetFlagsFromEnvVars(rootCmd)
	if err := util.InitLog(logLevel, logFile); err != nil {
		return nil, err
	}
	cfg, err := config.ReadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", configPath, err)
	}
	return cfg, nil
}

func newDaemon() (*daemon.Daemon, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return daemon.New(cfg)
}

// findPackage locates a catalog row by checksum across all categories.
func findPackage(d *daemon.Daemon, checksum string) (*catalog.Package, error) {
	for _, category := range catalog.Categories() {
		pkg, err := d.Store().Find(category, checksum)
		if err == nil {
			return pkg, nil
		}
		if err != catalog.ErrNotFound {
			return nil, err
		}
	}
	return nil, fmt.Errorf("no package with checksum %s", checksum)
}

// SetupCloseHandler handles SIGTERM signal and cancels the context
func SetupCloseHandler(ctx context.Context, cancel context.CancelFunc) {
	termCh := make(chan os.Signal, 1)
	signal.Notify(termCh, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-ctx.Done():
		case <-termCh:
		}

		log.Info("shutdown signal received")
		cancel()
	}()
}
