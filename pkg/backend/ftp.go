package backend

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"path"
	"strings"
	"sync/atomic"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/spf13/afero"
	"github.com/warpdl/queuedl/pkg/logger"
	"github.com/warpdl/queuedl/pkg/queuelib"
)

// Session transports.
const (
	ProtocolSFTP = "sftp"
	ProtocolFTP  = "ftp"
	ProtocolFTPS = "ftps"
)

const anonymousUser = "anonymous"

var ErrUnsupportedProtocol = errors.New("unsupported session protocol")

// ParseProtocol validates a session transport name. Empty selects sftp.
func ParseProtocol(s string) (string, error) {
	switch p := strings.ToLower(strings.TrimSpace(s)); p {
	case "", ProtocolSFTP:
		return ProtocolSFTP, nil
	case ProtocolFTP, ProtocolFTPS:
		return p, nil
	default:
		return "", fmt.Errorf("%w %q (want sftp, ftp or ftps)", ErrUnsupportedProtocol, s)
	}
}

// FTPSession downloads files from an FTP or explicit-TLS FTPS server.
// The control connection is not safe for concurrent transfers, so every
// operation logs in on its own connection.
type FTPSession struct {
	opts   SessionOptions
	useTLS bool
	fs     afero.Fs
	l      logger.Logger
	authed atomic.Bool
}

// NewFTPSession logs in once to check the credentials and the root.
func NewFTPSession(ctx context.Context, opts SessionOptions, fs afero.Fs, l logger.Logger) (*FTPSession, error) {
	if opts.Host == "" {
		return nil, &queuelib.AuthError{Backend: sessionName, Err: errors.New("session host is required")}
	}
	if !strings.Contains(opts.Host, ":") {
		opts.Host += ":21"
	}
	if opts.User == "" {
		opts.User, opts.Password = anonymousUser, anonymousUser
	}
	if opts.Root == "" {
		opts.Root = "."
	}
	s := &FTPSession{
		opts:   opts,
		useTLS: strings.EqualFold(opts.Protocol, ProtocolFTPS),
		fs:     fs,
		l:      l,
	}
	conn, err := s.connect(ctx)
	if err != nil {
		return nil, &queuelib.AuthError{Backend: sessionName, Err: err}
	}
	defer conn.Quit()
	if opts.Root != "." {
		if err := conn.ChangeDir(opts.Root); err != nil {
			return nil, &queuelib.AuthError{Backend: sessionName, Err: fmt.Errorf("open root %q: %w", opts.Root, err)}
		}
	}
	l.Info("FTP session established with %s@%s", opts.User, opts.Host)
	return s, nil
}

func (s *FTPSession) Name() string { return sessionName }

// IsAuthenticated reports whether the most recent login succeeded.
func (s *FTPSession) IsAuthenticated() bool { return s.authed.Load() }

func (s *FTPSession) Close() error {
	s.authed.Store(false)
	return nil
}

func (s *FTPSession) connect(ctx context.Context) (*ftp.ServerConn, error) {
	dialOpts := []ftp.DialOption{
		ftp.DialWithTimeout(sessionDialTimeout),
		ftp.DialWithContext(ctx),
	}
	if s.useTLS {
		hostname := s.opts.Host
		if h, _, err := net.SplitHostPort(hostname); err == nil {
			hostname = h
		}
		dialOpts = append(dialOpts, ftp.DialWithExplicitTLS(&tls.Config{
			ServerName: hostname,
			MinVersion: tls.VersionTLS12,
		}))
	}
	conn, err := ftp.Dial(s.opts.Host, dialOpts...)
	if err != nil {
		return nil, err
	}
	if err := conn.Login(s.opts.User, s.opts.Password); err != nil {
		s.authed.Store(false)
		conn.Quit()
		return nil, err
	}
	s.authed.Store(true)
	return conn, nil
}

// GetInfo asks the server for the file size.
func (s *FTPSession) GetInfo(ctx context.Context, fileRef string) (*queuelib.FileInfo, error) {
	remote, err := resolveUnder(s.opts.Root, fileRef)
	if err != nil {
		return nil, queuelib.NewFetchError(sessionName, "info", err)
	}
	conn, err := s.connect(ctx)
	if err != nil {
		return nil, queuelib.NewFetchError(sessionName, "connect", err)
	}
	defer conn.Quit()
	size, err := conn.FileSize(remote)
	if err != nil {
		return nil, queuelib.NewFetchError(sessionName, "size", err)
	}
	return &queuelib.FileInfo{
		FileRef:    fileRef,
		UniqueID:   remote,
		Name:       path.Base(remote),
		Size:       size,
		RemotePath: remote,
	}, nil
}

// Fetch retrieves the remote file in binary mode.
func (s *FTPSession) Fetch(ctx context.Context, fileRef, destination string, onProgress queuelib.ProgressFunc) error {
	remote, err := resolveUnder(s.opts.Root, fileRef)
	if err != nil {
		return queuelib.NewFetchError(sessionName, "resolve", err)
	}
	conn, err := s.connect(ctx)
	if err != nil {
		return queuelib.NewFetchError(sessionName, "connect", err)
	}
	defer conn.Quit()
	if err := conn.Type(ftp.TransferTypeBinary); err != nil {
		return queuelib.NewFetchError(sessionName, "type", err)
	}
	total := queuelib.UnknownSize
	if size, err := conn.FileSize(remote); err == nil {
		total = size
	}
	onProgress(0, total, 0)

	resp, err := conn.Retr(remote)
	if err != nil {
		return queuelib.NewFetchError(sessionName, "retr", err)
	}
	defer resp.Close()

	// a past deadline unblocks the data connection on cancel
	stop := context.AfterFunc(ctx, func() { resp.SetDeadline(time.Now()) })
	defer stop()

	_, err = copyWithProgress(ctx, s.fs, destination, resp, total, onProgress)
	if err != nil && ctx.Err() != nil {
		return context.Cause(ctx)
	}
	return wrapFetchErr(sessionName, "download", err)
}
