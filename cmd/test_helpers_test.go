package cmd

import (
	"bytes"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/afero"

	"github.com/warpdl/queuedl/common"
	"github.com/warpdl/queuedl/internal/server"
	"github.com/warpdl/queuedl/pkg/backend"
	"github.com/warpdl/queuedl/pkg/queuelib"
)

const testSecret = "cmd-test-secret"

// captureOutput captures stdout and stderr while f runs.
func captureOutput(f func()) (stdout, stderr string) {
	oldStdout := os.Stdout
	oldStderr := os.Stderr

	rOut, wOut, _ := os.Pipe()
	rErr, wErr, _ := os.Pipe()
	os.Stdout = wOut
	os.Stderr = wErr

	outC := make(chan string)
	errC := make(chan string)
	go func() {
		var b bytes.Buffer
		io.Copy(&b, rOut)
		outC <- b.String()
	}()
	go func() {
		var b bytes.Buffer
		io.Copy(&b, rErr)
		errC <- b.String()
	}()

	f()

	wOut.Close()
	wErr.Close()
	os.Stdout = oldStdout
	os.Stderr = oldStderr
	stdout, stderr = <-outC, <-errC
	rOut.Close()
	rErr.Close()
	return stdout, stderr
}

func assertContains(t *testing.T, output, expected string) {
	t.Helper()
	if !strings.Contains(output, expected) {
		t.Errorf("expected output to contain %q, got:\n%s", expected, output)
	}
}

// isolateConfig points the config directory at a temp dir and clears the
// environment overrides the commands read.
func isolateConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("QUEUEDL_CONFIG_DIR", dir)
	t.Setenv("QUEUEDL_CONFIG", "")
	t.Setenv(common.DaemonURLEnv, "")
	t.Setenv(common.RPCSecretEnv, "")
	return dir
}

type testDaemon struct {
	m   *queuelib.Manager
	url string
}

func newTestDaemon(t *testing.T) *testDaemon {
	t.Helper()
	isolateConfig(t)
	store, err := queuelib.OpenStore(filepath.Join(t.TempDir(), "queue.db"))
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	fetcher := backend.NewDemo(backend.DemoOptions{Size: 4096}, afero.NewMemMapFs(), nil)
	m := queuelib.NewManager(store, fetcher, queuelib.ManagerOpts{DownloadDir: "/dl"})
	s := server.New(server.Config{Secret: testSecret}, m, nil, nil)
	hs := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		hs.Close()
		s.Close()
		store.Close()
	})
	return &testDaemon{m: m, url: hs.URL}
}

// run executes the CLI against d and returns stdout and the error.
func (d *testDaemon) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	full := append([]string{"queuedl", "--url", d.url, "--secret", testSecret}, args...)
	var err error
	out, _ := captureOutput(func() {
		err = Execute(full, BuildArgs{})
	})
	return out, err
}
