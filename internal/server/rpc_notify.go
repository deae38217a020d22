package server

import (
	"context"
	"sync"
	"time"

	"github.com/creachadair/jrpc2"

	"github.com/warpdl/queuedl/pkg/logger"
)

const pushTimeout = 5 * time.Second

// RPCNotifier is the set of push-enabled jrpc2 servers, one per connected
// WebSocket client.
type RPCNotifier struct {
	mu      sync.RWMutex
	servers map[*jrpc2.Server]struct{}
	l       logger.Logger
}

func NewRPCNotifier(l logger.Logger) *RPCNotifier {
	if l == nil {
		l = logger.NewNopLogger()
	}
	return &RPCNotifier{
		servers: make(map[*jrpc2.Server]struct{}),
		l:       l,
	}
}

// Register adds srv. Registering twice is a no-op.
func (n *RPCNotifier) Register(srv *jrpc2.Server) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.servers[srv] = struct{}{}
}

func (n *RPCNotifier) Unregister(srv *jrpc2.Server) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.servers, srv)
}

// Broadcast pushes method to every registered server concurrently, so a
// slow client only delays itself. A server that fails to accept the push
// is dropped.
func (n *RPCNotifier) Broadcast(method string, params any) {
	n.mu.RLock()
	servers := make([]*jrpc2.Server, 0, len(n.servers))
	for srv := range n.servers {
		servers = append(servers, srv)
	}
	n.mu.RUnlock()
	if len(servers) == 0 {
		return
	}

	var wg sync.WaitGroup
	for _, srv := range servers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), pushTimeout)
			defer cancel()
			if err := srv.Notify(ctx, method, params); err != nil {
				n.l.Warning("RPC push %s failed, dropping client: %v", method, err)
				n.Unregister(srv)
			}
		}()
	}
	wg.Wait()
}

// Count returns the number of connected push clients.
func (n *RPCNotifier) Count() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.servers)
}

// StopAll stops every registered server, closing its connection.
func (n *RPCNotifier) StopAll() {
	n.mu.Lock()
	servers := n.servers
	n.servers = make(map[*jrpc2.Server]struct{})
	n.mu.Unlock()
	for srv := range servers {
		srv.Stop()
	}
}
