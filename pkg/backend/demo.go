package backend

import (
	"context"
	"crypto/sha256"
	"io"
	"time"

	"github.com/spf13/afero"
	"github.com/warpdl/queuedl/pkg/logger"
	"github.com/warpdl/queuedl/pkg/queuelib"
)

const (
	demoName             = "demo"
	DefaultDemoSize      = 1 << 20
	DefaultDemoChunkSize = 8192
)

// DemoOptions configures the synthetic backend.
type DemoOptions struct {
	// Size is the number of bytes produced per file.
	Size int64
	// ChunkSize is the number of bytes produced per step.
	ChunkSize int
	// ChunkDelay is slept between steps to simulate a slow link.
	ChunkDelay time.Duration
}

// Demo writes deterministic pseudo-random content for any file reference.
// It needs no credentials and is the default backend.
type Demo struct {
	opts DemoOptions
	fs   afero.Fs
	l    logger.Logger
}

// NewDemo creates the synthetic backend.
func NewDemo(opts DemoOptions, fs afero.Fs, l logger.Logger) *Demo {
	if opts.Size <= 0 {
		opts.Size = DefaultDemoSize
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultDemoChunkSize
	}
	return &Demo{opts: opts, fs: fs, l: l}
}

func (d *Demo) Name() string { return demoName }
func (d *Demo) Close() error { return nil }

// IsAuthenticated is always true: the demo backend has no credentials.
func (d *Demo) IsAuthenticated() bool { return true }

func (d *Demo) GetInfo(ctx context.Context, fileRef string) (*queuelib.FileInfo, error) {
	return &queuelib.FileInfo{
		FileRef:  fileRef,
		UniqueID: fileRef,
		Name:     fileRef + ".bin",
		Size:     d.opts.Size,
	}, nil
}

func (d *Demo) Fetch(ctx context.Context, fileRef, destination string, onProgress queuelib.ProgressFunc) error {
	if onProgress != nil {
		onProgress(0, d.opts.Size, 0)
	}
	src := &demoReader{
		seed:  sha256.Sum256([]byte(fileRef)),
		left:  d.opts.Size,
		chunk: d.opts.ChunkSize,
		delay: d.opts.ChunkDelay,
		ctx:   ctx,
	}
	_, err := copyWithProgress(ctx, d.fs, destination, src, d.opts.Size, onProgress)
	return wrapFetchErr(demoName, "download", err)
}

// demoReader yields left bytes derived from seed, at most chunk per Read.
type demoReader struct {
	seed  [sha256.Size]byte
	pos   int64
	left  int64
	chunk int
	delay time.Duration
	ctx   context.Context
}

func (r *demoReader) Read(p []byte) (int, error) {
	if r.left <= 0 {
		return 0, io.EOF
	}
	if r.delay > 0 {
		t := time.NewTimer(r.delay)
		select {
		case <-r.ctx.Done():
			t.Stop()
			return 0, context.Cause(r.ctx)
		case <-t.C:
		}
	}
	n := len(p)
	if n > r.chunk {
		n = r.chunk
	}
	if int64(n) > r.left {
		n = int(r.left)
	}
	for i := 0; i < n; i++ {
		p[i] = r.seed[(r.pos+int64(i))%sha256.Size] ^ byte((r.pos+int64(i))>>5)
	}
	r.pos += int64(n)
	r.left -= int64(n)
	return n, nil
}
