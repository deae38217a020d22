// Package qdcli is the Go client of the queuedl daemon. Calls go over
// JSON-RPC on HTTP; Watch streams lifecycle and progress pushes over a
// WebSocket.
package qdcli

import (
	"errors"
	"net/http"
	"time"

	"github.com/creachadair/jrpc2"
	"github.com/creachadair/jrpc2/jhttp"

	"github.com/warpdl/queuedl/common"
)

const defaultTimeout = 30 * time.Second

// Options configures a Client.
type Options struct {
	// Secret is sent as a bearer token on every request.
	Secret string
	// HTTPClient overrides the default client with a 30s timeout.
	HTTPClient *http.Client
}

type Client struct {
	url    *DaemonURL
	secret string
	httpc  *http.Client
	rpc    *jrpc2.Client
}

// NewClient prepares a client for the daemon at rawURL. No connection is
// made until the first call.
func NewClient(rawURL string, opts *Options) (*Client, error) {
	u, err := ParseDaemonURL(rawURL)
	if err != nil {
		return nil, err
	}
	if opts == nil {
		opts = &Options{}
	}
	httpc := opts.HTTPClient
	if httpc == nil {
		httpc = &http.Client{Timeout: defaultTimeout}
	}
	ch := jhttp.NewChannel(u.RPC(), &jhttp.ChannelOptions{
		Client: &bearerClient{c: httpc, token: opts.Secret},
	})
	return &Client{
		url:    u,
		secret: opts.Secret,
		httpc:  httpc,
		rpc:    jrpc2.NewClient(ch, nil),
	}, nil
}

// URL returns the daemon base address.
func (c *Client) URL() *DaemonURL {
	return c.url
}

func (c *Client) Close() error {
	return c.rpc.Close()
}

func (c *Client) authHeader() http.Header {
	h := http.Header{}
	if c.secret != "" {
		h.Set("Authorization", "Bearer "+c.secret)
	}
	return h
}

// bearerClient adds the Authorization header to every request.
type bearerClient struct {
	c     *http.Client
	token string
}

func (b *bearerClient) Do(req *http.Request) (*http.Response, error) {
	if b.token != "" {
		req = req.Clone(req.Context())
		req.Header.Set("Authorization", "Bearer "+b.token)
	}
	return b.c.Do(req)
}

// IsNotFound reports whether err is the daemon's unknown-job error.
func IsNotFound(err error) bool {
	return hasCode(err, common.CodeJobNotFound)
}

// IsInvalidState reports whether err rejects an operation for the job's
// current status.
func IsInvalidState(err error) bool {
	return hasCode(err, common.CodeInvalidState)
}

func hasCode(err error, code int) bool {
	var jerr *jrpc2.Error
	return errors.As(err, &jerr) && int(jerr.Code) == code
}
