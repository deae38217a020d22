package qdcli

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/warpdl/queuedl/common"
)

// DaemonURL is the parsed base address of a queuedl daemon.
type DaemonURL struct {
	Scheme string // "http" or "https"
	Host   string // host:port
}

var (
	ErrEmptyURL          = errors.New("daemon URL cannot be empty")
	ErrUnsupportedScheme = errors.New("unsupported daemon URL scheme")
	ErrInvalidURL        = errors.New("invalid daemon URL")
)

// ParseDaemonURL accepts http://, https:// and tcp:// URLs as well as a
// bare host[:port]. A missing port defaults to the daemon's default port.
func ParseDaemonURL(raw string) (*DaemonURL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrEmptyURL
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}

	scheme := strings.ToLower(parsed.Scheme)
	switch scheme {
	case "http", "https":
	case "tcp":
		scheme = "http"
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, parsed.Scheme)
	}
	if parsed.Path != "" && parsed.Path != "/" {
		return nil, fmt.Errorf("%w: unexpected path %q", ErrInvalidURL, parsed.Path)
	}

	host := parsed.Hostname()
	if host == "" {
		return nil, fmt.Errorf("%w: missing host", ErrInvalidURL)
	}
	port := parsed.Port()
	if port == "" {
		_, port, _ = net.SplitHostPort(common.DefaultDaemonListen)
	}
	n, err := strconv.Atoi(port)
	if err != nil || n < 1 || n > 65535 {
		return nil, fmt.Errorf("%w: port %q out of range", ErrInvalidURL, port)
	}
	return &DaemonURL{Scheme: scheme, Host: net.JoinHostPort(host, port)}, nil
}

func (u *DaemonURL) String() string {
	return u.Scheme + "://" + u.Host
}

// RPC returns the JSON-RPC over HTTP endpoint.
func (u *DaemonURL) RPC() string {
	return u.String() + common.RPCPath
}

// WebSocket returns the JSON-RPC over WebSocket endpoint.
func (u *DaemonURL) WebSocket() string {
	scheme := "ws"
	if u.Scheme == "https" {
		scheme = "wss"
	}
	return scheme + "://" + u.Host + common.RPCWebSocketPath
}
