package httputil

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func fastRetry() RetryConfig {
	return RetryConfig{MaxRetries: 2, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, BackoffFactor: 2}
}

func TestGetRetriesTransientStatus(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	resp, err := Get(context.Background(), srv.Client(), srv.URL, nil, fastRetry())
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	resp.Body.Close()
	if hits.Load() != 3 {
		t.Fatalf("hits = %d, want 3", hits.Load())
	}
}

func TestGetGivesUpAfterMaxRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := Get(context.Background(), srv.Client(), srv.URL, nil, fastRetry())
	var serr *StatusError
	if !errors.As(err, &serr) || serr.StatusCode != http.StatusBadGateway {
		t.Fatalf("err = %v, want StatusError 502", err)
	}
}

func TestGetSendsHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != "affinity-installer" {
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
	defer srv.Close()

	resp, err := Get(context.Background(), srv.Client(), srv.URL, http.Header{"User-Agent": {"affinity-installer"}}, fastRetry())
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestDownloadWritesFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("shim-bytes"))
	}))
	defer srv.Close()

	dst := filepath.Join(t.TempDir(), "nested", "wintypes.dll")
	n, err := Download(context.Background(), srv.Client(), srv.URL, dst, fastRetry())
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	data, _ := os.ReadFile(dst)
	if n != 10 || string(data) != "shim-bytes" {
		t.Fatalf("n = %d, data = %q", n, data)
	}
}

func TestDownloadNotFoundLeavesNoFile(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	dir := t.TempDir()
	dst := filepath.Join(dir, "missing.dll")
	if _, err := Download(context.Background(), srv.Client(), srv.URL, dst, fastRetry()); err == nil {
		t.Fatal("expected error for 404")
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Fatalf("left files behind: %v", entries)
	}
}

func TestApplyJitterBounds(t *testing.T) {
	for i := 0; i < 100; i++ {
		d := applyJitter(time.Second, 0.3)
		if d < 700*time.Millisecond || d > 1300*time.Millisecond {
			t.Fatalf("jitter out of range: %v", d)
		}
	}
	if applyJitter(time.Second, 0) != time.Second {
		t.Fatal("zero jitter should return input")
	}
}
