package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/warpdl/queuedl/pkg/logger"
	"github.com/warpdl/queuedl/pkg/queuelib"
)

const testToken = "123456:secret-token"

func newBotAPI(t *testing.T, payload string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/bot"+testToken+"/getMe", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"ok":true,"result":{"id":1,"username":"queuedl_bot"}}`)
	})
	mux.HandleFunc("/bot"+testToken+"/getFile", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("file_id") {
		case "good":
			fmt.Fprintf(w, `{"ok":true,"result":{"file_id":"good","file_unique_id":"u1","file_size":%d,"file_path":"documents/file_1.txt"}}`, len(payload))
		case "big":
			fmt.Fprint(w, `{"ok":false,"error_code":400,"description":"Bad Request: file is too big"}`)
		default:
			fmt.Fprint(w, `{"ok":false,"error_code":400,"description":"Bad Request: invalid file_id"}`)
		}
	})
	mux.HandleFunc("/file/bot"+testToken+"/documents/file_1.txt", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, payload)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"ok":false,"error_code":401,"description":"Unauthorized"}`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestBot_AuthenticateAndFetch(t *testing.T) {
	payload := strings.Repeat("queuedl", 5000)
	srv := newBotAPI(t, payload)
	fs := afero.NewMemMapFs()

	b, err := NewBot(context.Background(), BotOptions{Token: testToken, APIURL: srv.URL + "/"}, fs, logger.NewNopLogger())
	if err != nil {
		t.Fatalf("NewBot: %v", err)
	}
	if b.Username() != "queuedl_bot" {
		t.Fatalf("unexpected username %q", b.Username())
	}
	if !b.IsAuthenticated() {
		t.Fatal("expected bot to be authenticated after getMe")
	}
	defer func() {
		b.Close()
		if b.IsAuthenticated() {
			t.Error("closed bot still reports authenticated")
		}
	}()

	info, err := b.GetInfo(context.Background(), "good")
	if err != nil {
		t.Fatalf("GetInfo: %v", err)
	}
	if info.Size != int64(len(payload)) || info.Name != "file_1.txt" || info.UniqueID != "u1" {
		t.Fatalf("unexpected info %+v", info)
	}

	var final float64
	if err := b.Fetch(context.Background(), "good", "/dl/file_1.txt", func(d, total int64, p float64) { final = p }); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	got, err := afero.ReadFile(fs, "/dl/file_1.txt")
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != payload {
		t.Fatalf("content mismatch: got %d bytes", len(got))
	}
	if final != 100 {
		t.Fatalf("expected final progress 100, got %f", final)
	}
}

func TestBot_APIErrorIsFetchError(t *testing.T) {
	srv := newBotAPI(t, "x")
	b, err := NewBot(context.Background(), BotOptions{Token: testToken, APIURL: srv.URL}, afero.NewMemMapFs(), logger.NewNopLogger())
	if err != nil {
		t.Fatalf("NewBot: %v", err)
	}
	err = b.Fetch(context.Background(), "big", "/dl/x", func(int64, int64, float64) {})
	var fetchErr *queuelib.FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("expected FetchError, got %v", err)
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || !strings.Contains(apiErr.Description, "too big") {
		t.Fatalf("expected API error description, got %v", err)
	}
}

func TestBot_BadTokenIsAuthError(t *testing.T) {
	srv := newBotAPI(t, "x")
	_, err := NewBot(context.Background(), BotOptions{Token: "wrong", APIURL: srv.URL}, afero.NewMemMapFs(), logger.NewNopLogger())
	var authErr *queuelib.AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected AuthError, got %v", err)
	}
}

func TestBot_ErrorsDoNotLeakToken(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewBot(context.Background(), BotOptions{Token: testToken, APIURL: url}, afero.NewMemMapFs(), logger.NewNopLogger())
	if err == nil {
		t.Fatal("expected connection error")
	}
	if strings.Contains(err.Error(), testToken) {
		t.Fatalf("token leaked in error: %v", err)
	}
}
