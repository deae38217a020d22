package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/urfave/cli"

	"github.com/warpdl/queuedl/common"
	"github.com/warpdl/queuedl/internal/config"
	"github.com/warpdl/queuedl/pkg/credman"
	"github.com/warpdl/queuedl/pkg/qdcli"
)

const callTimeout = 30 * time.Second

var (
	configPath string
	daemonURL  string
	rpcSecret  string

	globalFlags = []cli.Flag{
		cli.StringFlag{
			Name:        "config",
			Usage:       "path of the YAML configuration file",
			EnvVar:      "QUEUEDL_CONFIG",
			Destination: &configPath,
		},
		cli.StringFlag{
			Name:        "url",
			Usage:       "daemon address, e.g. http://127.0.0.1:3849",
			EnvVar:      common.DaemonURLEnv,
			Destination: &daemonURL,
		},
		cli.StringFlag{
			Name:        "secret",
			Usage:       "RPC bearer token",
			EnvVar:      common.RPCSecretEnv,
			Destination: &rpcSecret,
		},
	}
)

var errMissingArg = errors.New("missing file reference argument")

// newClient connects to the daemon named by --url, or to the listen
// address of the configuration. The secret falls back to the config and
// then to the credential store.
func newClient() (*qdcli.Client, error) {
	url, secret := daemonURL, rpcSecret
	if url == "" || secret == "" {
		cfg, err := config.Load(configPath)
		if err != nil {
			return nil, err
		}
		if url == "" {
			url = dialAddress(cfg.Listen)
		}
		if secret == "" {
			secret = cfg.RPCSecret
		}
		if secret == "" {
			secret = storedSecret(cfg.Dir())
		}
	}
	return qdcli.NewClient(url, &qdcli.Options{Secret: secret})
}

func storedSecret(dir string) string {
	if _, err := os.Stat(dir); err != nil {
		return ""
	}
	sm, err := credman.Open(dir)
	if err != nil {
		return ""
	}
	s, _ := sm.Get(credman.RPCSecret)
	return s
}

// dialAddress turns a listen address into one a client can dial.
func dialAddress(listen string) string {
	host, port, err := net.SplitHostPort(listen)
	if err != nil {
		return listen
	}
	if ip := net.ParseIP(host); host == "" || (ip != nil && ip.IsUnspecified()) {
		host = "127.0.0.1"
	}
	return net.JoinHostPort(host, port)
}

// withClient runs fn with a connected client and a bounded context.
func withClient(cmd string, fn func(context.Context, *qdcli.Client) error) error {
	client, err := newClient()
	if err != nil {
		return fmt.Errorf("%s: %w", cmd, err)
	}
	defer client.Close()
	c, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()
	client.CheckVersionMismatch(c, currentBuildArgs.Version, os.Stderr)
	if err := fn(c, client); err != nil {
		return fmt.Errorf("%s: %w", cmd, err)
	}
	return nil
}

// forEachRef applies fn to every argument, reporting each result.
func forEachRef(ctx *cli.Context, cmd, done string, fn func(context.Context, *qdcli.Client, string) error) error {
	refs := ctx.Args()
	if len(refs) == 0 {
		return fmt.Errorf("%s: %w", cmd, errMissingArg)
	}
	return withClient(cmd, func(c context.Context, client *qdcli.Client) error {
		var failed int
		for _, ref := range refs {
			if err := fn(c, client, ref); err != nil {
				failed++
				fmt.Printf("%s: %s\n", ref, describeErr(err))
				continue
			}
			fmt.Printf("%s: %s\n", ref, done)
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d failed", failed, len(refs))
		}
		return nil
	})
}

func describeErr(err error) string {
	switch {
	case qdcli.IsNotFound(err):
		return "no such download"
	case qdcli.IsInvalidState(err):
		return "not allowed now: " + err.Error()
	}
	return err.Error()
}
