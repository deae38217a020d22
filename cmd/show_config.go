package cmd

import (
	"fmt"

	"github.com/urfave/cli"

	"github.com/warpdl/queuedl/internal/config"
)

func showConfig(ctx *cli.Context) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	data, err := cfg.YAML()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	fmt.Printf("# %s\n%s", cfg.Dir(), data)
	return nil
}
