// Package backend provides the transfer backends behind queuelib.Fetcher:
// a bot API backend speaking HTTP, an authenticated user session over
// SFTP or FTP(S) and a synthetic demo backend for local testing.
package backend

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/afero"
	"github.com/warpdl/queuedl/pkg/logger"
	"github.com/warpdl/queuedl/pkg/queuelib"
)

// Kind selects a backend implementation.
type Kind string

const (
	KindBot     Kind = "bot"
	KindSession Kind = "session"
	KindDemo    Kind = "demo"
)

// ParseKind validates a backend name.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindBot, KindSession, KindDemo:
		return k, nil
	case "":
		return KindDemo, nil
	default:
		return "", fmt.Errorf("unknown backend %q (want bot, session or demo)", s)
	}
}

// Options configures New.
type Options struct {
	Kind    Kind
	Bot     BotOptions
	Session SessionOptions
	Demo    DemoOptions
	// Fs is where downloaded files are written. Defaults to the OS filesystem.
	Fs     afero.Fs
	Logger logger.Logger
}

// New builds and authenticates the backend selected by opts.Kind. An
// authentication failure is returned as *queuelib.AuthError.
func New(ctx context.Context, opts Options) (queuelib.Fetcher, error) {
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewNopLogger()
	}
	switch opts.Kind {
	case KindBot:
		return NewBot(ctx, opts.Bot, opts.Fs, opts.Logger)
	case KindSession:
		proto, err := ParseProtocol(opts.Session.Protocol)
		if err != nil {
			return nil, err
		}
		if proto == ProtocolSFTP {
			return NewSession(ctx, opts.Session, opts.Fs, opts.Logger)
		}
		opts.Session.Protocol = proto
		return NewFTPSession(ctx, opts.Session, opts.Fs, opts.Logger)
	case KindDemo, "":
		return NewDemo(opts.Demo, opts.Fs, opts.Logger), nil
	default:
		return nil, fmt.Errorf("unknown backend %q", opts.Kind)
	}
}
