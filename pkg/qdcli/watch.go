package qdcli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	cws "github.com/coder/websocket"
	"github.com/creachadair/jrpc2"

	"github.com/warpdl/queuedl/common"
)

const wsReadLimit = 1 << 20

// Watcher receives pushes from Watch. Nil callbacks are skipped.
type Watcher struct {
	OnEvent    func(*common.EventNotification)
	OnProgress func(*common.ProgressNotification)
	// OnError reports pushes that could not be decoded.
	OnError func(method string, err error)
}

// Watch subscribes to daemon pushes and blocks until ctx is cancelled or
// the connection drops. A cancelled ctx returns nil.
func (c *Client) Watch(ctx context.Context, w Watcher) error {
	conn, _, err := cws.Dial(ctx, c.url.WebSocket(), &cws.DialOptions{
		HTTPClient: c.httpc,
		HTTPHeader: c.authHeader(),
	})
	if err != nil {
		return fmt.Errorf("connect %s: %w", c.url.WebSocket(), err)
	}
	conn.SetReadLimit(wsReadLimit)

	stopped := make(chan error, 1)
	cli := jrpc2.NewClient(&wsChannel{conn: conn, ctx: ctx}, &jrpc2.ClientOptions{
		OnNotify: w.dispatch,
		OnStop: func(_ *jrpc2.Client, err error) {
			stopped <- err
		},
	})
	defer cli.Close()

	select {
	case <-ctx.Done():
		return nil
	case err := <-stopped:
		if ctx.Err() != nil || err == nil || errors.Is(err, context.Canceled) {
			return nil
		}
		if s := cws.CloseStatus(err); s == cws.StatusNormalClosure || s == cws.StatusGoingAway {
			return nil
		}
		return fmt.Errorf("watch: %w", err)
	}
}

func (w Watcher) dispatch(req *jrpc2.Request) {
	method := req.Method()
	switch {
	case method == common.NotifyProgress:
		if w.OnProgress == nil {
			return
		}
		var p common.ProgressNotification
		if err := req.UnmarshalParams(&p); err != nil {
			w.fail(method, err)
			return
		}
		w.OnProgress(&p)
	case strings.HasPrefix(method, common.EventPrefix):
		if w.OnEvent == nil {
			return
		}
		var ev common.EventNotification
		if err := req.UnmarshalParams(&ev); err != nil {
			w.fail(method, err)
			return
		}
		w.OnEvent(&ev)
	}
}

func (w Watcher) fail(method string, err error) {
	if w.OnError != nil {
		w.OnError(method, err)
	}
}

type wsChannel struct {
	conn *cws.Conn
	ctx  context.Context
}

func (c *wsChannel) Send(data []byte) error {
	return c.conn.Write(c.ctx, cws.MessageText, data)
}

func (c *wsChannel) Recv() ([]byte, error) {
	_, data, err := c.conn.Read(c.ctx)
	return data, err
}

func (c *wsChannel) Close() error {
	return c.conn.Close(cws.StatusNormalClosure, "")
}
