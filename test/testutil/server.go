// Package testutil provides helpers to boot the fake S3 endpoint for
// tests.
package testutil

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kumasuke/s3check/internal/fakes3"
)

// TestServer provides an in-process S3-compatible endpoint for tests.
type TestServer struct {
	t         *testing.T
	Endpoint  string
	AccessKey string
	SecretKey string
	DataDir   string

	listener net.Listener
	server   *http.Server
	store    *fakes3.Store
}

// NewTestServer creates and starts a fake S3 endpoint on a random port.
func NewTestServer(t *testing.T) *TestServer {
	t.Helper()

	dataDir, err := os.MkdirTemp("", "s3check-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}

	store, err := fakes3.Open(dataDir, filepath.Join(dataDir, "metadata.db"))
	if err != nil {
		os.RemoveAll(dataDir)
		t.Fatalf("failed to create store: %v", err)
	}

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		store.Close()
		os.RemoveAll(dataDir)
		t.Fatalf("failed to find available port: %v", err)
	}

	srv := &http.Server{
		Handler: fakes3.NewHandler(store),
	}

	ts := &TestServer{
		t:         t,
		Endpoint:  fmt.Sprintf("http://%s", listener.Addr().String()),
		AccessKey: "minioadmin",
		SecretKey: "minioadmin",
		DataDir:   dataDir,
		listener:  listener,
		server:    srv,
		store:     store,
	}

	go func() {
		if err := srv.Serve(listener); err != nil && err != http.ErrServerClosed {
			if ts.store != nil {
				t.Logf("server error: %v", err)
			}
		}
	}()

	ts.waitForReady()

	return ts
}

// waitForReady waits for the endpoint to accept requests.
func (ts *TestServer) waitForReady() {
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get(ts.Endpoint + "/")
		if err == nil {
			resp.Body.Close()
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	ts.t.Fatalf("server did not become ready")
}

// Cleanup stops the server and removes test data.
func (ts *TestServer) Cleanup() {
	if ts.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		ts.server.Shutdown(ctx)
	}

	if ts.store != nil {
		ts.store.Close()
		ts.store = nil
	}

	if ts.DataDir != "" {
		os.RemoveAll(ts.DataDir)
	}
}

// Store returns the underlying store for direct manipulation in tests.
func (ts *TestServer) Store() *fakes3.Store {
	return ts.store
}
