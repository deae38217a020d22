package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
	"github.com/warpdl/queuedl/pkg/queuelib"
)

const (
	partSuffix = ".part"
	copyBuffer = 32 * 1024
	// progressInterval rate-limits progress callbacks during a copy.
	progressInterval = 200 * time.Millisecond
)

// sink receives a transfer into "<target>.part" and moves it over the
// target on Commit, so a failed attempt never leaves a truncated file
// under the final name.
type sink struct {
	fs     afero.Fs
	target string
	part   string
	f      afero.File
}

func openSink(fs afero.Fs, target string, size int64) (*sink, error) {
	dir := filepath.Dir(target)
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, &queuelib.FilesystemError{Path: dir, Err: err}
	}
	if _, ok := fs.(*afero.OsFs); ok {
		if err := checkDiskSpace(dir, size); err != nil {
			return nil, &queuelib.FilesystemError{Path: dir, Err: err}
		}
	}
	part := target + partSuffix
	f, err := fs.OpenFile(part, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, &queuelib.FilesystemError{Path: part, Err: err}
	}
	return &sink{fs: fs, target: target, part: part, f: f}, nil
}

func (s *sink) Write(p []byte) (int, error) {
	n, err := s.f.Write(p)
	if err != nil {
		return n, &queuelib.FilesystemError{Path: s.part, Err: err}
	}
	return n, nil
}

// Commit closes the part file and renames it to the target.
func (s *sink) Commit() error {
	if err := s.f.Close(); err != nil {
		return &queuelib.FilesystemError{Path: s.part, Err: err}
	}
	if err := s.fs.Rename(s.part, s.target); err != nil {
		return &queuelib.FilesystemError{Path: s.target, Err: err}
	}
	return nil
}

// Abort closes and removes the part file.
func (s *sink) Abort() {
	s.f.Close()
	s.fs.Remove(s.part)
}

// progressReader reports cumulative bytes read and stops as soon as ctx
// is cancelled.
type progressReader struct {
	ctx   context.Context
	r     io.Reader
	read  int64
	total int64
	fn    queuelib.ProgressFunc
	last  time.Time
}

func (p *progressReader) Read(b []byte) (int, error) {
	if p.ctx.Err() != nil {
		return 0, context.Cause(p.ctx)
	}
	n, err := p.r.Read(b)
	p.read += int64(n)
	if p.fn != nil && (err == io.EOF || time.Since(p.last) >= progressInterval || p.read == p.total) {
		p.last = time.Now()
		p.fn(p.read, p.total, queuelib.PercentOf(p.read, p.total))
	}
	return n, err
}

// copyWithProgress streams src into a sink for target. total may be
// queuelib.UnknownSize. The part file is removed on any failure.
func copyWithProgress(ctx context.Context, fs afero.Fs, target string, src io.Reader, total int64, fn queuelib.ProgressFunc) (int64, error) {
	out, err := openSink(fs, target, total)
	if err != nil {
		return 0, err
	}
	pr := &progressReader{ctx: ctx, r: src, total: total, fn: fn}
	n, err := io.CopyBuffer(out, pr, make([]byte, copyBuffer))
	if err == nil && ctx.Err() != nil {
		err = context.Cause(ctx)
	}
	if err != nil {
		out.Abort()
		return n, err
	}
	if total >= 0 && n != total {
		out.Abort()
		return n, fmt.Errorf("short transfer: got %d of %d bytes", n, total)
	}
	if err := out.Commit(); err != nil {
		return n, err
	}
	return n, nil
}

// wrapFetchErr turns err into a *queuelib.FetchError unless it already
// carries a more specific classification.
func wrapFetchErr(backend, op string, err error) error {
	if err == nil {
		return nil
	}
	var fsErr *queuelib.FilesystemError
	var authErr *queuelib.AuthError
	if errors.As(err, &fsErr) || errors.As(err, &authErr) || queuelib.IsCancelled(err) {
		return err
	}
	return queuelib.NewFetchError(backend, op, err)
}
