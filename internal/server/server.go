// Package server exposes a queuelib.Manager over HTTP: a JSON-RPC 2.0
// bridge, a WebSocket endpoint that also receives lifecycle and progress
// pushes, and Prometheus metrics.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/creachadair/jrpc2/handler"
	"github.com/creachadair/jrpc2/jhttp"

	"github.com/warpdl/queuedl/common"
	"github.com/warpdl/queuedl/pkg/logger"
	"github.com/warpdl/queuedl/pkg/queuelib"
)

const (
	pushBuffer      = 1024
	shutdownTimeout = 5 * time.Second
)

// Observable is the manager surface the server subscribes to.
type Observable interface {
	Queue
	OnEvent(fn queuelib.EventFunc) (unsubscribe func())
	OnProgress(fileRef string, fn queuelib.ProgressFunc)
	Speed(fileRef string) float64
}

// Config configures the HTTP surface.
type Config struct {
	// Listen is the TCP address, e.g. 127.0.0.1:3849.
	Listen string
	// Secret is the bearer token. Empty disables every RPC endpoint.
	Secret  string
	Version common.VersionResult
}

type push struct {
	method string
	params any
}

// Server owns the RPC bridge, the push fan-out and the HTTP listener.
type Server struct {
	cfg      Config
	q        Observable
	l        logger.Logger
	methods  handler.Map
	bridge   jhttp.Bridge
	notifier *RPCNotifier
	metrics  http.Handler

	pushMu      sync.RWMutex
	pushClosed  bool
	pushes      chan push
	unsubscribe func()
	pumpDone    chan struct{}

	closeOnce sync.Once
}

// New builds a Server for q. metrics may be nil.
func New(cfg Config, q Observable, metrics http.Handler, l logger.Logger) *Server {
	if l == nil {
		l = logger.NewNopLogger()
	}
	rm := &rpcMethods{q: q, version: cfg.Version}
	s := &Server{
		cfg:      cfg,
		q:        q,
		l:        l,
		methods:  rm.handlers(),
		notifier: NewRPCNotifier(l),
		metrics:  metrics,
		pushes:   make(chan push, pushBuffer),
		pumpDone: make(chan struct{}),
	}
	s.bridge = jhttp.NewBridge(s.methods, nil)
	s.unsubscribe = q.OnEvent(s.observe)
	go s.pump()
	return s
}

// Notifier returns the push fan-out.
func (s *Server) Notifier() *RPCNotifier {
	return s.notifier
}

// Handler returns the HTTP routes of the daemon.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(common.RPCPath, s.authorize(s.bridge))
	mux.Handle(common.RPCWebSocketPath, s.authorize(http.HandlerFunc(s.handleWebSocket)))
	if s.metrics != nil {
		mux.Handle(common.MetricsPath, s.metrics)
	}
	mux.HandleFunc(common.HealthPath, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("ok\n"))
	})
	return mux
}

// ListenAndServe listens on cfg.Listen and serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Listen, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled, then shuts the listener down.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	s.l.Info("RPC listening on %s", ln.Addr())

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.notifier.StopAll()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.l.Warning("RPC shutdown: %v", err)
	}
	return nil
}

// Close stops observing the manager and releases the RPC bridge.
func (s *Server) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.unsubscribe()
		s.pushMu.Lock()
		s.pushClosed = true
		close(s.pushes)
		s.pushMu.Unlock()
		<-s.pumpDone
		s.notifier.StopAll()
		err = s.bridge.Close()
	})
	return err
}

// observe runs on manager goroutines, so it only queues the push.
func (s *Server) observe(ev queuelib.Event) {
	s.enqueue(common.EventPrefix+string(ev.Type), &common.EventNotification{
		Event: ev.Type,
		Job:   ev.Job,
		Error: ev.Error,
		Time:  ev.Time,
	})
	if ev.Job == nil {
		return
	}
	ref := ev.Job.FileRef
	switch ev.Type {
	case queuelib.EventDownloadStarted:
		s.q.OnProgress(ref, func(downloaded, total int64, percent float64) {
			s.enqueue(common.NotifyProgress, &common.ProgressNotification{
				FileRef:    ref,
				Downloaded: downloaded,
				Total:      total,
				Percent:    percent,
				Speed:      s.q.Speed(ref),
			})
		})
	case queuelib.EventDownloadCompleted,
		queuelib.EventDownloadFailed,
		queuelib.EventDownloadCancelled,
		queuelib.EventDownloadRequeued:
		s.q.OnProgress(ref, nil)
	}
}

func (s *Server) enqueue(method string, params any) {
	s.pushMu.RLock()
	defer s.pushMu.RUnlock()
	if s.pushClosed {
		return
	}
	select {
	case s.pushes <- push{method: method, params: params}:
	default:
		s.l.Warning("RPC push queue full, dropping %s", method)
	}
}

func (s *Server) pump() {
	defer close(s.pumpDone)
	for p := range s.pushes {
		if s.notifier.Count() == 0 {
			continue
		}
		s.notifier.Broadcast(p.method, p.params)
	}
}
