package backend

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/pkg/sftp"
	"github.com/spf13/afero"
	"github.com/warpdl/queuedl/pkg/logger"
	"github.com/warpdl/queuedl/pkg/queuelib"
	"golang.org/x/crypto/ssh"
	"golang.org/x/net/proxy"
)

const (
	sessionName        = "session"
	sessionDialTimeout = 15 * time.Second
)

var ErrNoAuthMethod = errors.New("no authentication method available")

// SessionOptions configures the SSH/SFTP user session backend.
type SessionOptions struct {
	// Host is host or host:port; port 22 is implied.
	Host     string
	User     string
	Password string
	// KeyPath is a private key used when Password is empty. Defaults to
	// ~/.ssh/id_ed25519 then ~/.ssh/id_rsa.
	KeyPath string
	// KnownHosts is the trust-on-first-use host key file.
	KnownHosts string
	// Root is the remote directory file references are resolved against.
	Root string
	// Proxy is an optional socks5 proxy URL. Only sftp uses it.
	Proxy string
	// Protocol is sftp, ftp or ftps. Empty selects sftp.
	Protocol string
}

// Session downloads files over a long-lived authenticated SFTP session.
// File references are paths relative to the session root.
type Session struct {
	opts   SessionOptions
	config *ssh.ClientConfig
	fs     afero.Fs
	l      logger.Logger

	mu   sync.Mutex
	conn *ssh.Client
	sftp *sftp.Client
}

// NewSession connects, authenticates and checks that the root exists.
func NewSession(ctx context.Context, opts SessionOptions, fs afero.Fs, l logger.Logger) (*Session, error) {
	if opts.Host == "" {
		return nil, &queuelib.AuthError{Backend: sessionName, Err: errors.New("session host is required")}
	}
	if !strings.Contains(opts.Host, ":") {
		opts.Host += ":22"
	}
	if opts.Root == "" {
		opts.Root = "."
	}
	auth, err := buildAuthMethods(opts.Password, opts.KeyPath)
	if err != nil {
		return nil, &queuelib.AuthError{Backend: sessionName, Err: err}
	}
	hostKey := ssh.InsecureIgnoreHostKey()
	if opts.KnownHosts != "" {
		hostKey = newTOFUHostKeyCallback(opts.KnownHosts)
	} else {
		l.Warning("No known_hosts file configured, host keys are not verified")
	}
	s := &Session{
		opts: opts,
		config: &ssh.ClientConfig{
			User:            opts.User,
			Auth:            auth,
			HostKeyCallback: hostKey,
			Timeout:         sessionDialTimeout,
		},
		fs: fs,
		l:  l,
	}
	c, err := s.client(ctx)
	if err != nil {
		return nil, &queuelib.AuthError{Backend: sessionName, Err: err}
	}
	if _, err := c.Stat(opts.Root); err != nil {
		s.Close()
		return nil, &queuelib.AuthError{Backend: sessionName, Err: fmt.Errorf("stat root %q: %w", opts.Root, err)}
	}
	l.Info("Session established with %s@%s", opts.User, opts.Host)
	return s, nil
}

func (s *Session) Name() string { return sessionName }

// IsAuthenticated reports whether an authenticated SFTP connection is
// currently open. It turns false after a dropped connection until the
// next operation reconnects.
func (s *Session) IsAuthenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sftp != nil
}

// client returns the shared SFTP client, reconnecting if needed.
func (s *Session) client(ctx context.Context) (*sftp.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sftp != nil {
		return s.sftp, nil
	}
	conn, err := s.dial(ctx)
	if err != nil {
		return nil, err
	}
	c, err := sftp.NewClient(conn)
	if err != nil {
		conn.Close()
		return nil, err
	}
	s.conn, s.sftp = conn, c
	return c, nil
}

func (s *Session) dial(ctx context.Context) (*ssh.Client, error) {
	var (
		raw net.Conn
		err error
	)
	if s.opts.Proxy != "" {
		raw, err = dialSOCKS(ctx, s.opts.Proxy, s.opts.Host)
	} else {
		d := net.Dialer{Timeout: sessionDialTimeout}
		raw, err = d.DialContext(ctx, "tcp", s.opts.Host)
	}
	if err != nil {
		return nil, err
	}
	c, chans, reqs, err := ssh.NewClientConn(raw, s.opts.Host, s.config)
	if err != nil {
		raw.Close()
		return nil, err
	}
	return ssh.NewClient(c, chans, reqs), nil
}

func dialSOCKS(ctx context.Context, proxyURL, addr string) (net.Conn, error) {
	u, err := parseSOCKS(proxyURL)
	if err != nil {
		return nil, err
	}
	var auth *proxy.Auth
	if u.user != "" {
		auth = &proxy.Auth{User: u.user, Password: u.pass}
	}
	d, err := proxy.SOCKS5("tcp", u.host, auth, &net.Dialer{Timeout: sessionDialTimeout})
	if err != nil {
		return nil, err
	}
	if cd, ok := d.(proxy.ContextDialer); ok {
		return cd.DialContext(ctx, "tcp", addr)
	}
	return d.Dial("tcp", addr)
}

// reset drops the shared connection so the next call reconnects.
func (s *Session) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sftp != nil {
		s.sftp.Close()
		s.sftp = nil
	}
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
}

func (s *Session) Close() error {
	s.reset()
	return nil
}

// resolve maps fileRef to a remote path under the session root.
func (s *Session) resolve(fileRef string) (string, error) {
	return resolveUnder(s.opts.Root, fileRef)
}

func resolveUnder(rootDir, fileRef string) (string, error) {
	root := path.Clean(rootDir)
	p := path.Join(root, fileRef)
	if p == root || (root != "." && !strings.HasPrefix(p, root+"/")) || strings.HasPrefix(p, "..") {
		return "", fmt.Errorf("file reference %q escapes root %q", fileRef, rootDir)
	}
	return p, nil
}

// GetInfo stats the remote file.
func (s *Session) GetInfo(ctx context.Context, fileRef string) (*queuelib.FileInfo, error) {
	remote, err := s.resolve(fileRef)
	if err != nil {
		return nil, queuelib.NewFetchError(sessionName, "info", err)
	}
	c, err := s.client(ctx)
	if err != nil {
		return nil, queuelib.NewFetchError(sessionName, "connect", err)
	}
	fi, err := c.Stat(remote)
	if err != nil {
		s.dropOnNetErr(err)
		return nil, queuelib.NewFetchError(sessionName, "stat", err)
	}
	return &queuelib.FileInfo{
		FileRef:    fileRef,
		UniqueID:   remote,
		Name:       fi.Name(),
		Size:       fi.Size(),
		RemotePath: remote,
	}, nil
}

// Fetch streams the remote file to destination.
func (s *Session) Fetch(ctx context.Context, fileRef, destination string, onProgress queuelib.ProgressFunc) error {
	remote, err := s.resolve(fileRef)
	if err != nil {
		return queuelib.NewFetchError(sessionName, "resolve", err)
	}
	c, err := s.client(ctx)
	if err != nil {
		return queuelib.NewFetchError(sessionName, "connect", err)
	}
	f, err := c.Open(remote)
	if err != nil {
		s.dropOnNetErr(err)
		return queuelib.NewFetchError(sessionName, "open", err)
	}
	defer f.Close()
	total := queuelib.UnknownSize
	if fi, err := f.Stat(); err == nil {
		total = fi.Size()
	}
	onProgress(0, total, 0)

	// unblock a pending read when the job is cancelled
	stop := context.AfterFunc(ctx, func() { f.Close() })
	defer stop()

	_, err = copyWithProgress(ctx, s.fs, destination, f, total, onProgress)
	if err != nil && ctx.Err() != nil {
		return context.Cause(ctx)
	}
	if err != nil {
		s.dropOnNetErr(err)
	}
	return wrapFetchErr(sessionName, "download", err)
}

func (s *Session) dropOnNetErr(err error) {
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, sftp.ErrSSHFxConnectionLost) || errors.Is(err, os.ErrClosed) {
		s.l.Warning("Session connection lost, reconnecting on next use: %v", err)
		s.reset()
	}
}

// buildAuthMethods prefers password authentication, then a private key.
func buildAuthMethods(password, keyPath string) ([]ssh.AuthMethod, error) {
	if password != "" {
		return []ssh.AuthMethod{ssh.Password(password)}, nil
	}
	paths := resolveKeyPaths(keyPath)
	for _, kp := range paths {
		pem, err := os.ReadFile(kp)
		if err != nil {
			continue
		}
		signer, err := ssh.ParsePrivateKey(pem)
		if err != nil {
			var ppErr *ssh.PassphraseMissingError
			if errors.As(err, &ppErr) {
				return nil, fmt.Errorf("key %q is passphrase-protected, which is not supported", kp)
			}
			continue
		}
		return []ssh.AuthMethod{ssh.PublicKeys(signer)}, nil
	}
	return nil, fmt.Errorf("%w: set a password or a key at %s", ErrNoAuthMethod, strings.Join(paths, ", "))
}

func resolveKeyPaths(explicit string) []string {
	if explicit != "" {
		return []string{explicit}
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	return []string{
		filepath.Join(home, ".ssh", "id_ed25519"),
		filepath.Join(home, ".ssh", "id_rsa"),
	}
}

type socksTarget struct {
	host, user, pass string
}

func parseSOCKS(raw string) (*socksTarget, error) {
	u, err := parseProxy(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "socks5" {
		return nil, fmt.Errorf("%w: session proxy must be socks5", ErrUnsupportedScheme)
	}
	t := &socksTarget{host: u.Host}
	if u.User != nil {
		t.user = u.User.Username()
		t.pass, _ = u.User.Password()
	}
	return t, nil
}
