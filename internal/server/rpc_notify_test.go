package server

import (
	"io"
	"testing"

	"github.com/creachadair/jrpc2"
	"github.com/creachadair/jrpc2/channel"
	"github.com/creachadair/jrpc2/handler"

	"github.com/warpdl/queuedl/common"
	"github.com/warpdl/queuedl/pkg/logger"
)

// newPipeServer starts a push-enabled jrpc2 server on an in-memory pipe and
// returns the client end of the pipe.
func newPipeServer(t *testing.T) (channel.Channel, *jrpc2.Server) {
	t.Helper()
	cr, sw := io.Pipe()
	sr, cw := io.Pipe()
	cli := channel.Line(cr, cw)
	srv := jrpc2.NewServer(handler.Map{}, &jrpc2.ServerOptions{AllowPush: true})
	srv.Start(channel.Line(sr, sw))
	t.Cleanup(func() {
		cli.Close()
		srv.Stop()
	})
	return cli, srv
}

func TestRPCNotifier_RegisterUnregister(t *testing.T) {
	n := NewRPCNotifier(nil)
	_, srv := newPipeServer(t)

	n.Register(srv)
	n.Register(srv)
	if n.Count() != 1 {
		t.Fatalf("Count = %d, want 1", n.Count())
	}
	n.Unregister(srv)
	n.Unregister(srv)
	if n.Count() != 0 {
		t.Fatalf("Count = %d, want 0", n.Count())
	}
}

func TestRPCNotifier_BroadcastNoServers(t *testing.T) {
	NewRPCNotifier(nil).Broadcast("event.noop", nil)
}

func TestRPCNotifier_BroadcastDelivers(t *testing.T) {
	n := NewRPCNotifier(nil)
	cli, srv := newPipeServer(t)
	n.Register(srv)

	got := make(chan []byte, 1)
	go func() {
		data, _ := cli.Recv()
		got <- data
	}()
	n.Broadcast(common.NotifyProgress, &common.ProgressNotification{FileRef: "x", Downloaded: 10})

	data := <-got
	if len(data) == 0 {
		t.Fatal("no notification received")
	}
	if n.Count() != 1 {
		t.Fatalf("Count = %d after successful push", n.Count())
	}
}

func TestRPCNotifier_DropsDeadServer(t *testing.T) {
	l := logger.NewMockLogger()
	n := NewRPCNotifier(l)
	cli, srv := newPipeServer(t)
	n.Register(srv)

	cli.Close()
	srv.Stop()

	n.Broadcast("event.download_added", nil)
	if n.Count() != 0 {
		t.Fatalf("Count = %d, want dead server dropped", n.Count())
	}
	if len(l.WarningCalls()) == 0 {
		t.Error("expected a warning for the failed push")
	}
}

func TestRPCNotifier_StopAll(t *testing.T) {
	n := NewRPCNotifier(nil)
	_, a := newPipeServer(t)
	_, b := newPipeServer(t)
	n.Register(a)
	n.Register(b)

	n.StopAll()
	if n.Count() != 0 {
		t.Fatalf("Count = %d after StopAll", n.Count())
	}
}
