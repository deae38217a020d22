package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"

	"github.com/warpdl/queuedl/common"
	"github.com/warpdl/queuedl/pkg/queuelib"
)

const testSecret = "test-rpc-secret"

// fakeQueue is an in-memory Observable driven directly by the tests.
type fakeQueue struct {
	mu       sync.Mutex
	jobs     map[string]*queuelib.Job
	nextID   int64
	paused   bool
	failNext error
	observer queuelib.EventFunc
	progress map[string]queuelib.ProgressFunc
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{
		jobs:     make(map[string]*queuelib.Job),
		progress: make(map[string]queuelib.ProgressFunc),
	}
}

func (q *fakeQueue) take() error {
	err := q.failNext
	q.failNext = nil
	return err
}

func (q *fakeQueue) Add(ref, name, dir string, meta queuelib.Metadata) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if err := q.take(); err != nil {
		return 0, err
	}
	q.nextID++
	if name == "" {
		name = queuelib.DefaultDisplayName(ref)
	}
	q.jobs[ref] = &queuelib.Job{
		ID:          q.nextID,
		FileRef:     ref,
		DisplayName: name,
		TargetPath:  dir + "/" + name,
		TotalBytes:  queuelib.UnknownSize,
		Status:      queuelib.StatusPending,
		Metadata:    meta,
	}
	return q.nextID, nil
}

func (q *fakeQueue) Get(ref string) (*queuelib.Snapshot, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	j, ok := q.jobs[ref]
	if !ok {
		return nil, queuelib.ErrJobNotFound
	}
	cp := *j
	return &queuelib.Snapshot{Job: &cp, Speed: 42}, nil
}

func (q *fakeQueue) List() ([]*queuelib.Snapshot, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if err := q.take(); err != nil {
		return nil, err
	}
	out := make([]*queuelib.Snapshot, 0, len(q.jobs))
	for _, j := range q.jobs {
		cp := *j
		out = append(out, &queuelib.Snapshot{Job: &cp})
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	return out, nil
}

func (q *fakeQueue) Pause()  { q.setPaused(true) }
func (q *fakeQueue) Resume() { q.setPaused(false) }

func (q *fakeQueue) setPaused(v bool) {
	q.mu.Lock()
	q.paused = v
	q.mu.Unlock()
}

func (q *fakeQueue) IsPaused() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.paused
}

func (q *fakeQueue) ActiveCount() int { return 1 }
func (q *fakeQueue) QueueLen() int    { return 2 }

func (q *fakeQueue) setStatus(ref string, s queuelib.Status) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs[ref].Status = s
}

func (q *fakeQueue) Cancel(ref string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	j, ok := q.jobs[ref]
	if !ok {
		return queuelib.ErrJobNotFound
	}
	if j.Status.IsTerminal() {
		return fmt.Errorf("%w: %s is %s", queuelib.ErrNotCancellable, ref, j.Status)
	}
	j.Status = queuelib.StatusCancelled
	return nil
}

func (q *fakeQueue) Retry(ref string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	j, ok := q.jobs[ref]
	if !ok {
		return queuelib.ErrJobNotFound
	}
	if j.Status != queuelib.StatusFailed && j.Status != queuelib.StatusCancelled {
		return queuelib.ErrNotRetryable
	}
	j.Status = queuelib.StatusPending
	return nil
}

func (q *fakeQueue) Remove(ref string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.jobs[ref]; !ok {
		return queuelib.ErrJobNotFound
	}
	delete(q.jobs, ref)
	return nil
}

func (q *fakeQueue) ClearFinished() (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var n int64
	for ref, j := range q.jobs {
		if j.Status == queuelib.StatusCompleted || j.Status == queuelib.StatusCancelled {
			delete(q.jobs, ref)
			n++
		}
	}
	return n, nil
}

func (q *fakeQueue) Info(_ context.Context, ref string) (*queuelib.FileInfo, error) {
	if ref == "broken" {
		return nil, queuelib.NewFetchError("demo", "getInfo", io.ErrUnexpectedEOF)
	}
	return &queuelib.FileInfo{FileRef: ref, Name: ref + ".bin", Size: 1024}, nil
}

func (q *fakeQueue) OnEvent(fn queuelib.EventFunc) func() {
	q.mu.Lock()
	q.observer = fn
	q.mu.Unlock()
	return func() {
		q.mu.Lock()
		q.observer = nil
		q.mu.Unlock()
	}
}

func (q *fakeQueue) OnProgress(ref string, fn queuelib.ProgressFunc) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if fn == nil {
		delete(q.progress, ref)
		return
	}
	q.progress[ref] = fn
}

func (q *fakeQueue) Speed(string) float64 { return 512 }

func (q *fakeQueue) emit(ev queuelib.Event) {
	q.mu.Lock()
	fn := q.observer
	q.mu.Unlock()
	if fn != nil {
		fn(ev)
	}
}

func (q *fakeQueue) reportProgress(ref string, d, total int64) bool {
	q.mu.Lock()
	fn := q.progress[ref]
	q.mu.Unlock()
	if fn == nil {
		return false
	}
	fn(d, total, queuelib.PercentOf(d, total))
	return true
}

func newTestServer(t *testing.T) (*Server, *fakeQueue) {
	t.Helper()
	q := newFakeQueue()
	s := New(Config{
		Listen:  "127.0.0.1:0",
		Secret:  testSecret,
		Version: common.VersionResult{Version: "1.0.0", Commit: "abc123"},
	}, q, http.NotFoundHandler(), nil)
	t.Cleanup(func() { s.Close() })
	return s, q
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// rpcCall posts one JSON-RPC request through h and decodes the reply.
func rpcCall(t *testing.T, h http.Handler, method string, params any, token string) (int, *rpcResponse) {
	t.Helper()
	body := map[string]any{"jsonrpc": "2.0", "method": method, "id": 1}
	if params != nil {
		body["params"] = params
	}
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, common.RPCPath, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	var resp rpcResponse
	if rr.Body.Len() > 0 {
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("unmarshal: %v (body %s)", err, rr.Body.String())
		}
	}
	return rr.Code, &resp
}

func mustResult(t *testing.T, resp *rpcResponse, out any) {
	t.Helper()
	if resp.Error != nil {
		t.Fatalf("rpc error %d: %s", resp.Error.Code, resp.Error.Message)
	}
	if err := json.Unmarshal(resp.Result, out); err != nil {
		t.Fatalf("decode result: %v", err)
	}
}

func wantCode(t *testing.T, resp *rpcResponse, code int) {
	t.Helper()
	if resp.Error == nil {
		t.Fatalf("expected error code %d, got result %s", code, resp.Result)
	}
	if resp.Error.Code != code {
		t.Fatalf("error code = %d (%s), want %d", resp.Error.Code, resp.Error.Message, code)
	}
}
