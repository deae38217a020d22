package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/warpdl/queuedl/common"
	"github.com/warpdl/queuedl/internal/config"
	"github.com/warpdl/queuedl/internal/metrics"
	"github.com/warpdl/queuedl/internal/scheduler"
	"github.com/warpdl/queuedl/internal/server"
	"github.com/warpdl/queuedl/pkg/backend"
	"github.com/warpdl/queuedl/pkg/credman"
	"github.com/warpdl/queuedl/pkg/logger"
	"github.com/warpdl/queuedl/pkg/queuelib"
)

// DaemonComponents holds everything the daemon builds at startup so it
// can be torn down in reverse order.
type DaemonComponents struct {
	Config  *config.Config
	Secrets *credman.SecretManager
	Store   *queuelib.Store
	Fetcher queuelib.Fetcher
	Manager *queuelib.Manager
	Metrics *metrics.Metrics
	Server  *server.Server
	logger  logger.Logger
}

// newDaemonLogger logs to stderr and, when configured, to the log file.
func newDaemonLogger(cfg *config.Config) (logger.Logger, error) {
	console := logger.NewStandardLogger(log.New(os.Stderr, "", log.LstdFlags))
	if cfg.LogFile == "" {
		return console, nil
	}
	fl, err := logger.NewFileLogger(cfg.LogFile)
	if err != nil {
		return nil, err
	}
	return logger.NewMultiLogger(console, fl), nil
}

// initDaemonComponents builds the daemon from cfg. The fs is where
// downloads are written. On error every component built so far is closed.
var initDaemonComponents = func(ctx context.Context, cfg *config.Config, fs afero.Fs, l logger.Logger) (*DaemonComponents, error) {
	c := &DaemonComponents{Config: cfg, logger: l}
	ok := false
	defer func() {
		if !ok {
			c.Close()
		}
	}()

	if err := os.MkdirAll(cfg.Dir(), 0o700); err != nil {
		return nil, fmt.Errorf("create config dir: %w", err)
	}
	sm, err := credman.Open(cfg.Dir())
	if err != nil {
		return nil, fmt.Errorf("open credentials: %w", err)
	}
	c.Secrets = sm
	if err := cfg.ResolveSecrets(sm); err != nil {
		return nil, err
	}
	if cfg.RPCSecret == "" {
		cfg.RPCSecret = uuid.NewString()
		if err := sm.Set(credman.RPCSecret, cfg.RPCSecret); err != nil {
			return nil, fmt.Errorf("store rpc secret: %w", err)
		}
		l.Info("Generated a new RPC secret and saved it to the credential store")
	}

	if err := fs.MkdirAll(cfg.DownloadPath, 0o755); err != nil {
		return nil, &queuelib.FilesystemError{Path: cfg.DownloadPath, Err: err}
	}
	if err := os.MkdirAll(filepath.Dir(cfg.DatabasePath), 0o755); err != nil {
		return nil, &queuelib.FilesystemError{Path: cfg.DatabasePath, Err: err}
	}
	store, err := queuelib.OpenStore(cfg.DatabasePath)
	if err != nil {
		return nil, err
	}
	c.Store = store

	opts, err := cfg.BackendOptions(fs, l)
	if err != nil {
		return nil, err
	}
	fetcher, err := backend.New(ctx, opts)
	if err != nil {
		return nil, err
	}
	c.Fetcher = fetcher
	l.Info("Using %s backend (authenticated: %t)", fetcher.Name(), fetcher.IsAuthenticated())

	c.Manager = queuelib.NewManager(store, fetcher, cfg.ManagerOpts(l))
	c.Metrics = metrics.New(c.Manager, l)
	c.Server = server.New(server.Config{
		Listen: cfg.Listen,
		Secret: cfg.RPCSecret,
		Version: common.VersionResult{
			Version:   currentBuildArgs.Version,
			Commit:    currentBuildArgs.Commit,
			BuildType: currentBuildArgs.BuildType,
		},
	}, c.Manager, c.Metrics.Handler(), l)
	ok = true
	return c, nil
}

// Run starts the workers and the housekeeping schedule, then serves RPC
// until ctx is cancelled.
func (c *DaemonComponents) Run(ctx context.Context) error {
	if err := c.Manager.Start(ctx); err != nil {
		return fmt.Errorf("start manager: %w", err)
	}
	_, err := scheduler.Start(ctx, scheduler.Housekeeping{
		ClearFinished: c.Config.ClearSchedule,
		Pause:         c.Config.PauseSchedule,
		Resume:        c.Config.ResumeSchedule,
	}, c.Manager, c.logger)
	if err != nil {
		return err
	}
	return c.Server.ListenAndServe(ctx)
}

// Close releases the components in reverse order of initialization.
func (c *DaemonComponents) Close() {
	c.logger.Info("Shutting down daemon...")
	if c.Server != nil {
		if err := c.Server.Close(); err != nil {
			c.logger.Warning("Closing RPC server: %v", err)
		}
	}
	if c.Metrics != nil {
		c.Metrics.Close()
	}
	if c.Manager != nil && c.Manager.Running() {
		if err := c.Manager.Shutdown(); err != nil {
			c.logger.Warning("Stopping manager: %v", err)
		}
	}
	if c.Fetcher != nil {
		if err := c.Fetcher.Close(); err != nil {
			c.logger.Warning("Closing %s backend: %v", c.Fetcher.Name(), err)
		}
	}
	if c.Store != nil {
		if err := c.Store.Close(); err != nil {
			c.logger.Warning("Closing store: %v", err)
		}
	}
	c.logger.Info("Daemon stopped")
}
