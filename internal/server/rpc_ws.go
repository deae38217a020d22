package server

import (
	"context"
	"errors"
	"net"
	"net/http"

	cws "github.com/coder/websocket"
	"github.com/creachadair/jrpc2"
)

// wsReadLimit bounds a single inbound RPC frame.
const wsReadLimit = 1 << 20

// handleWebSocket serves one push-enabled jrpc2 server per connection and
// keeps it registered for broadcasts until the peer goes away.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := cws.Accept(w, r, nil)
	if err != nil {
		s.l.Warning("RPC websocket accept: %v", err)
		return
	}
	srv := jrpc2.NewServer(s.methods, &jrpc2.ServerOptions{AllowPush: true})
	srv.Start(newWSChannel(r.Context(), conn))
	s.notifier.Register(srv)
	defer s.notifier.Unregister(srv)

	if err := srv.Wait(); err != nil && !peerGone(err) {
		s.l.Warning("RPC websocket %s: %v", r.RemoteAddr, err)
	}
}

// peerGone reports whether err is an ordinary end of a connection.
func peerGone(err error) bool {
	switch cws.CloseStatus(err) {
	case cws.StatusNormalClosure, cws.StatusGoingAway:
		return true
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, net.ErrClosed)
}

// wsChannel adapts a WebSocket connection to channel.Channel. Each jrpc2
// message travels as one text frame.
type wsChannel struct {
	ctx  context.Context
	conn *cws.Conn
}

func newWSChannel(ctx context.Context, conn *cws.Conn) *wsChannel {
	conn.SetReadLimit(wsReadLimit)
	return &wsChannel{ctx: ctx, conn: conn}
}

func (c *wsChannel) Send(msg []byte) error {
	return c.conn.Write(c.ctx, cws.MessageText, msg)
}

func (c *wsChannel) Recv() ([]byte, error) {
	for {
		typ, msg, err := c.conn.Read(c.ctx)
		if err != nil {
			return nil, err
		}
		if typ == cws.MessageText {
			return msg, nil
		}
	}
}

func (c *wsChannel) Close() error {
	return c.conn.Close(cws.StatusNormalClosure, "")
}
