package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/afero"
	"github.com/urfave/cli"

	"github.com/warpdl/queuedl/internal/config"
	qdaemon "github.com/warpdl/queuedl/internal/daemon"
)

func daemon(ctx *cli.Context) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("daemon: %w", err)
	}
	l, err := newDaemonLogger(cfg)
	if err != nil {
		return fmt.Errorf("daemon: %w", err)
	}
	defer l.Close()

	pid, err := qdaemon.Acquire(cfg.Dir())
	if err != nil {
		return fmt.Errorf("daemon: %w", err)
	}
	defer func() {
		if err := pid.Release(); err != nil {
			l.Warning("Failed to remove PID file: %v", err)
		}
	}()

	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	comps, err := initDaemonComponents(sigCtx, cfg, afero.NewOsFs(), l)
	if err != nil {
		l.Error("Daemon initialization failed: %v", err)
		return fmt.Errorf("daemon: %w", err)
	}
	defer comps.Close()
	l.Info("Daemon %s listening on %s, downloads go to %s", currentBuildArgs.Version, cfg.Listen, cfg.DownloadPath)
	if err := comps.Run(sigCtx); err != nil {
		l.Error("Daemon stopped with error: %v", err)
		return fmt.Errorf("daemon: %w", err)
	}
	return nil
}
