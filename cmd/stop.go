package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/urfave/cli"

	"github.com/warpdl/queuedl/internal/config"
	qdaemon "github.com/warpdl/queuedl/internal/daemon"
)

var stopTimeout time.Duration

var stopFlags = []cli.Flag{
	cli.DurationFlag{
		Name:        "timeout, t",
		Usage:       "time to wait for a graceful shutdown before killing the daemon",
		Value:       10 * time.Second,
		Destination: &stopTimeout,
	},
}

func stop(ctx *cli.Context) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("stop: %w", err)
	}
	pid, err := qdaemon.Stop(cfg.Dir(), stopTimeout)
	if errors.Is(err, qdaemon.ErrNotRunning) {
		fmt.Println("Daemon is not running")
		return nil
	}
	if err != nil {
		return fmt.Errorf("stop: %w", err)
	}
	fmt.Printf("Stopped daemon (PID %d)\n", pid)
	return nil
}
