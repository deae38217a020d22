package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/spf13/afero"
	"github.com/warpdl/queuedl/pkg/logger"
	"github.com/warpdl/queuedl/pkg/queuelib"
)

const (
	DefaultBotAPIURL = "https://api.telegram.org"
	botName          = "bot"
	botCallTimeout   = 30 * time.Second
)

var ErrMissingToken = errors.New("bot token is required")

// BotOptions configures the bot API backend.
type BotOptions struct {
	Token string
	// APIURL is the base URL of the bot API server.
	APIURL string
	// Proxy is an optional http, https or socks5 proxy URL.
	Proxy string
}

// Bot downloads files through a bot HTTP API: file references are resolved
// with getFile and streamed from the file endpoint.
type Bot struct {
	opts     BotOptions
	client   *http.Client
	fs       afero.Fs
	l        logger.Logger
	username string
	authed   atomic.Bool
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	ErrorCode   int             `json:"error_code"`
	Description string          `json:"description"`
}

type botUser struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

type botFile struct {
	FileID       string `json:"file_id"`
	FileUniqueID string `json:"file_unique_id"`
	FileSize     int64  `json:"file_size"`
	FilePath     string `json:"file_path"`
}

// NewBot creates the bot backend and verifies the token with getMe.
func NewBot(ctx context.Context, opts BotOptions, fs afero.Fs, l logger.Logger) (*Bot, error) {
	if opts.Token == "" {
		return nil, &queuelib.AuthError{Backend: botName, Err: ErrMissingToken}
	}
	if opts.APIURL == "" {
		opts.APIURL = DefaultBotAPIURL
	}
	opts.APIURL = strings.TrimRight(opts.APIURL, "/")
	client, err := NewHTTPClient(opts.Proxy, 0)
	if err != nil {
		return nil, fmt.Errorf("bot: %w", err)
	}
	b := &Bot{opts: opts, client: client, fs: fs, l: l}

	var me botUser
	if err := b.call(ctx, "getMe", nil, &me); err != nil {
		return nil, &queuelib.AuthError{Backend: botName, Err: err}
	}
	b.username = me.Username
	b.authed.Store(true)
	l.Info("Authenticated bot @%s", me.Username)
	return b, nil
}

func (b *Bot) Name() string { return botName }

// Username returns the bot account name reported by getMe.
func (b *Bot) Username() string { return b.username }

// IsAuthenticated reports whether getMe accepted the token and the
// backend has not been closed.
func (b *Bot) IsAuthenticated() bool { return b.authed.Load() }

func (b *Bot) Close() error {
	b.authed.Store(false)
	b.client.CloseIdleConnections()
	return nil
}

// GetInfo resolves fileRef with getFile.
func (b *Bot) GetInfo(ctx context.Context, fileRef string) (*queuelib.FileInfo, error) {
	f, err := b.getFile(ctx, fileRef)
	if err != nil {
		return nil, wrapFetchErr(botName, "info", err)
	}
	return &queuelib.FileInfo{
		FileRef:    fileRef,
		UniqueID:   f.FileUniqueID,
		Name:       pathBase(f.FilePath),
		Size:       f.FileSize,
		RemotePath: f.FilePath,
	}, nil
}

// Fetch resolves fileRef and streams the file to destination.
func (b *Bot) Fetch(ctx context.Context, fileRef, destination string, onProgress queuelib.ProgressFunc) error {
	f, err := b.getFile(ctx, fileRef)
	if err != nil {
		return wrapFetchErr(botName, "resolve", err)
	}
	if f.FilePath == "" {
		return queuelib.NewFetchError(botName, "resolve", errors.New("file is not downloadable"))
	}
	total := queuelib.UnknownSize
	if f.FileSize > 0 {
		total = f.FileSize
	}
	onProgress(0, total, 0)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.fileURL(f.FilePath), nil)
	if err != nil {
		return queuelib.NewFetchError(botName, "download", b.redact(err))
	}
	resp, err := b.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return context.Cause(ctx)
		}
		return queuelib.NewFetchError(botName, "download", b.redact(err))
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return queuelib.NewFetchError(botName, "download", fmt.Errorf("unexpected status %s", resp.Status))
	}
	if total < 0 && resp.ContentLength > 0 {
		total = resp.ContentLength
	}
	_, err = copyWithProgress(ctx, b.fs, destination, resp.Body, total, onProgress)
	return wrapFetchErr(botName, "download", b.redact(err))
}

func (b *Bot) getFile(ctx context.Context, fileRef string) (*botFile, error) {
	var f botFile
	if err := b.call(ctx, "getFile", url.Values{"file_id": {fileRef}}, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

func (b *Bot) call(ctx context.Context, method string, params url.Values, out interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, botCallTimeout)
	defer cancel()
	u := fmt.Sprintf("%s/bot%s/%s", b.opts.APIURL, b.opts.Token, method)
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return b.redact(err)
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return b.redact(err)
	}
	defer resp.Body.Close()

	var ar apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&ar); err != nil {
		return fmt.Errorf("%s: decode response (%s): %w", method, resp.Status, err)
	}
	if !ar.OK {
		return &APIError{Method: method, Code: ar.ErrorCode, Description: ar.Description}
	}
	if out != nil {
		if err := json.Unmarshal(ar.Result, out); err != nil {
			return fmt.Errorf("%s: decode result: %w", method, err)
		}
	}
	return nil
}

func (b *Bot) fileURL(filePath string) string {
	return fmt.Sprintf("%s/file/bot%s/%s", b.opts.APIURL, b.opts.Token, filePath)
}

// redact strips the token from err's message. The original error stays
// reachable through errors.Is and errors.As.
func (b *Bot) redact(err error) error {
	if err == nil || b.opts.Token == "" || !strings.Contains(err.Error(), b.opts.Token) {
		return err
	}
	return &redactedError{msg: strings.ReplaceAll(err.Error(), b.opts.Token, "<token>"), err: err}
}

type redactedError struct {
	msg string
	err error
}

func (e *redactedError) Error() string { return e.msg }
func (e *redactedError) Unwrap() error { return e.err }

// APIError is an error reply from the bot API.
type APIError struct {
	Method      string
	Code        int
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %d %s", e.Method, e.Code, e.Description)
}

func pathBase(p string) string {
	if i := strings.LastIndex(p, "/"); i >= 0 {
		return p[i+1:]
	}
	return p
}
