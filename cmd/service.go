package cmd

import (
	"context"
	"runtime"

	"github.com/kardianos/service"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var serviceName string

var serviceCmd = &cobra.Command{
	Use:   "service",
	Short: "Manage the updater daemon service",
}

type program struct {
	ctx    context.Context
	cancel context.CancelFunc
}

func init() {
	defaultServiceName := "evupdater"
	if runtime.GOOS == "windows" {
		defaultServiceName = "EVUpdater"
	}
	rootCmd.PersistentFlags().StringVarP(&serviceName, "service", "s", defaultServiceName, "system service name")
}

func newSVCConfig() *service.Config {
	return &service.Config{
		Name:        serviceName,
		DisplayName: "EVUpdater",
		Description: "Evervolv update package daemon",
		Option:      make(service.KeyValue),
	}
}

func newSVC(prg *program, conf *service.Config) (service.Service, error) {
	return service.New(prg, conf)
}

func (p *program) Start(s service.Service) error {
	// Start should not block. Do the actual work async.
	log.Info("starting daemon")
	go func() {
		d, err := newDaemon()
		if err != nil {
			log.Errorf("failed to start daemon: %v", err)
			return
		}
		if err := d.Run(p.ctx); err != nil {
			log.Errorf("daemon exited: %v", err)
		}
	}()
	return nil
}

func (p *program) Stop(s service.Service) error {
	p.cancel()
	return nil
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "runs the updater as a service",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()
		SetupCloseHandler(ctx, cancel)

		s, err := newSVC(&program{ctx: ctx, cancel: cancel}, newSVCConfig())
		if err != nil {
			return err
		}
		if err := s.Run(); err != nil {
			return err
		}
		cmd.Println("Updater service is running")
		return nil
	},
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "starts the updater service",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSVC(&program{}, newSVCConfig())
		if err != nil {
			return err
		}
		if err := s.Start(); err != nil {
			return err
		}
		cmd.Println("Updater service has been started")
		return nil
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "stops the updater service",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSVC(&program{}, newSVCConfig())
		if err != nil {
			return err
		}
		if err := s.Stop(); err != nil {
			return err
		}
		cmd.Println("Updater service has been stopped")
		return nil
	},
}

var restartCmd = &cobra.Command{
	Use:   "restart",
	Short: "restarts the updater service",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSVC(&program{}, newSVCConfig())
		if err != nil {
			return err
		}
		if err := s.Restart(); err != nil {
			return err
		}
		cmd.Println("Updater service has been restarted")
		return nil
	},
}

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "installs the updater service",
	RunE: func(cmd *cobra.Command, args []string) error {
		svcConfig := newSVCConfig()
		svcConfig.Arguments = []string{
			"service", "run",
			"--config", configPath,
			"--log-level", logLevel,
			"--log-file", logFile,
		}
		s, err := newSVC(&program{}, svcConfig)
		if err != nil {
			return err
		}
		if err := s.Install(); err != nil {
			return err
		}
		cmd.Println("Updater service has been installed")
		return nil
	},
}

var uninstallCmd = &cobra.Command{
	Use:   "uninstall",
	Short: "uninstalls the updater service",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSVC(&program{}, newSVCConfig())
		if err != nil {
			return err
		}
		if err := s.Uninstall(); err != nil {
			return err
		}
		cmd.Println("Updater service has been uninstalled")
		return nil
	},
}
