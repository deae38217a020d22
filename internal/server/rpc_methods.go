package server

import (
	"context"
	"errors"
	"strings"

	"github.com/creachadair/jrpc2"
	"github.com/creachadair/jrpc2/handler"

	"github.com/warpdl/queuedl/common"
	"github.com/warpdl/queuedl/pkg/queuelib"
)

// Custom JSON-RPC error codes for queue operations.
const (
	codeJobNotFound   = jrpc2.Code(common.CodeJobNotFound)
	codeInvalidState  = jrpc2.Code(common.CodeInvalidState)
	codeInvalidParams = jrpc2.Code(-32602)
	codeInternal      = jrpc2.Code(-32603)
)

// Queue is the manager surface exposed over RPC.
type Queue interface {
	Add(fileRef, displayName, destDir string, meta queuelib.Metadata) (int64, error)
	Get(fileRef string) (*queuelib.Snapshot, error)
	List() ([]*queuelib.Snapshot, error)
	Pause()
	Resume()
	IsPaused() bool
	Cancel(fileRef string) error
	Retry(fileRef string) error
	Remove(fileRef string) error
	ClearFinished() (int64, error)
	ActiveCount() int
	QueueLen() int
	Info(ctx context.Context, fileRef string) (*queuelib.FileInfo, error)
}

// rpcMethods implements the queue.* and system.* methods.
type rpcMethods struct {
	q       Queue
	version common.VersionResult
}

func (rm *rpcMethods) handlers() handler.Map {
	return handler.Map{
		common.MethodVersion: handler.New(rm.systemGetVersion),
		common.MethodAdd:     handler.New(rm.queueAdd),
		common.MethodList:    handler.New(rm.queueList),
		common.MethodGet:     handler.New(rm.queueGet),
		common.MethodPause:   handler.New(rm.queuePause),
		common.MethodResume:  handler.New(rm.queueResume),
		common.MethodCancel:  handler.New(rm.queueCancel),
		common.MethodRetry:   handler.New(rm.queueRetry),
		common.MethodRemove:  handler.New(rm.queueRemove),
		common.MethodClear:   handler.New(rm.queueClear),
		common.MethodInfo:    handler.New(rm.queueInfo),
	}
}

func (rm *rpcMethods) systemGetVersion(_ context.Context) (*common.VersionResult, error) {
	v := rm.version
	return &v, nil
}

func (rm *rpcMethods) queueAdd(_ context.Context, p *common.AddParams) (*common.AddResult, error) {
	ref := strings.TrimSpace(p.FileRef)
	if ref == "" {
		return nil, &jrpc2.Error{Code: codeInvalidParams, Message: "missing required param: fileRef"}
	}
	id, err := rm.q.Add(ref, p.DisplayName, p.Dir, p.Metadata)
	if err != nil {
		return nil, rpcError(err)
	}
	return &common.AddResult{ID: id, FileRef: ref}, nil
}

func (rm *rpcMethods) queueList(_ context.Context, p *common.ListParams) (*common.ListResult, error) {
	want := make(map[queuelib.Status]bool, len(p.Status))
	for _, s := range p.Status {
		if !s.Valid() {
			return nil, &jrpc2.Error{Code: codeInvalidParams, Message: "invalid status: " + string(s)}
		}
		want[s] = true
	}
	all, err := rm.q.List()
	if err != nil {
		return nil, rpcError(err)
	}
	downloads := make([]*queuelib.Snapshot, 0, len(all))
	for _, s := range all {
		if len(want) == 0 || want[s.Status] {
			downloads = append(downloads, s)
		}
	}
	return &common.ListResult{
		Downloads: downloads,
		Paused:    rm.q.IsPaused(),
		Active:    rm.q.ActiveCount(),
		Queued:    rm.q.QueueLen(),
	}, nil
}

func (rm *rpcMethods) queueGet(_ context.Context, p *common.RefParams) (*queuelib.Snapshot, error) {
	if err := requireRef(p); err != nil {
		return nil, err
	}
	s, err := rm.q.Get(p.FileRef)
	if err != nil {
		return nil, rpcError(err)
	}
	return s, nil
}

func (rm *rpcMethods) queuePause(_ context.Context) (*common.StateResult, error) {
	rm.q.Pause()
	return &common.StateResult{Paused: rm.q.IsPaused()}, nil
}

func (rm *rpcMethods) queueResume(_ context.Context) (*common.StateResult, error) {
	rm.q.Resume()
	return &common.StateResult{Paused: rm.q.IsPaused()}, nil
}

func (rm *rpcMethods) queueCancel(_ context.Context, p *common.RefParams) (*common.EmptyResult, error) {
	return rm.byRef(p, rm.q.Cancel)
}

func (rm *rpcMethods) queueRetry(_ context.Context, p *common.RefParams) (*common.EmptyResult, error) {
	return rm.byRef(p, rm.q.Retry)
}

func (rm *rpcMethods) queueRemove(_ context.Context, p *common.RefParams) (*common.EmptyResult, error) {
	return rm.byRef(p, rm.q.Remove)
}

func (rm *rpcMethods) queueClear(_ context.Context) (*common.ClearResult, error) {
	n, err := rm.q.ClearFinished()
	if err != nil {
		return nil, rpcError(err)
	}
	return &common.ClearResult{Removed: n}, nil
}

func (rm *rpcMethods) queueInfo(ctx context.Context, p *common.RefParams) (*queuelib.FileInfo, error) {
	if err := requireRef(p); err != nil {
		return nil, err
	}
	info, err := rm.q.Info(ctx, p.FileRef)
	if err != nil {
		return nil, rpcError(err)
	}
	return info, nil
}

func (rm *rpcMethods) byRef(p *common.RefParams, fn func(string) error) (*common.EmptyResult, error) {
	if err := requireRef(p); err != nil {
		return nil, err
	}
	if err := fn(p.FileRef); err != nil {
		return nil, rpcError(err)
	}
	return &common.EmptyResult{}, nil
}

func requireRef(p *common.RefParams) error {
	if p == nil || strings.TrimSpace(p.FileRef) == "" {
		return &jrpc2.Error{Code: codeInvalidParams, Message: "missing required param: fileRef"}
	}
	return nil
}

// rpcError maps queue errors onto JSON-RPC error codes.
func rpcError(err error) error {
	var (
		fetchErr *queuelib.FetchError
		authErr  *queuelib.AuthError
	)
	switch {
	case errors.Is(err, queuelib.ErrJobNotFound):
		return &jrpc2.Error{Code: codeJobNotFound, Message: err.Error()}
	case errors.Is(err, queuelib.ErrJobActive),
		errors.Is(err, queuelib.ErrNotRetryable),
		errors.Is(err, queuelib.ErrNotCancellable),
		errors.Is(err, queuelib.ErrManagerStopped):
		return &jrpc2.Error{Code: codeInvalidState, Message: err.Error()}
	case errors.Is(err, queuelib.ErrEmptyFileRef),
		errors.Is(err, queuelib.ErrInvalidStatus):
		return &jrpc2.Error{Code: codeInvalidParams, Message: err.Error()}
	case errors.As(err, &fetchErr), errors.As(err, &authErr):
		return &jrpc2.Error{Code: codeInvalidState, Message: err.Error()}
	default:
		return &jrpc2.Error{Code: codeInternal, Message: err.Error()}
	}
}
