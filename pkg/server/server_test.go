// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package server

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/go-core-stack/removebg-relay/pkg/config"
)

func testConfig() config.Config {
	return config.Config{
		Port:                    "0",
		ListenAddr:              "127.0.0.1:0",
		APIKey:                  "key-id",
		LogLevel:                "info",
		LogFormat:               config.LogFormatJSON,
		ServerReadTimeout:       time.Second,
		ServerIdleTimeout:       time.Second,
		GracefulShutdownTimeout: time.Second,
	}
}

func TestRouterDispatchesRelayPath(t *testing.T) {
	var calls int32
	relay := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("png"))
	})

	var logs bytes.Buffer
	router := NewRouter(relay, zerolog.New(&logs))

	req := httptest.NewRequest(http.MethodPost, "http://relay"+RelayPath, strings.NewReader("body"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("expected relay to be called once, got %d", calls)
	}
	if !strings.Contains(logs.String(), `"path":"/remove-bg"`) || !strings.Contains(logs.String(), `"status":200`) {
		t.Fatalf("access log missing request details: %s", logs.String())
	}
}

func TestRouterRejectsOtherMethods(t *testing.T) {
	relay := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("relay must not be reached for GET")
	})
	router := NewRouter(relay, zerolog.Nop())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "http://relay"+RelayPath, nil))

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestRouterHealth(t *testing.T) {
	router := NewRouter(http.NotFoundHandler(), zerolog.Nop())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "http://relay/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	if body := strings.TrimSpace(rec.Body.String()); body != `{"status":"ok"}` {
		t.Fatalf("unexpected body: %s", body)
	}
}

func TestRouterRecoversPanics(t *testing.T) {
	relay := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("secret internal state")
	})
	router := NewRouter(relay, zerolog.Nop())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "http://relay"+RelayPath, nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "secret internal state") {
		t.Fatalf("panic detail leaked: %q", rec.Body.String())
	}
}

func TestServeStopsOnContextCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	srv := New(testConfig(), NewRouter(http.NotFoundHandler(), zerolog.Nop()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- srv.Serve(ctx, ln)
	}()

	url := "http://" + ln.Addr().String() + "/healthz"
	waitUntil(t, time.Second, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp.StatusCode == http.StatusOK
	})

	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Serve returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop after context cancel")
	}

	if _, err := http.Get(url); err == nil {
		t.Fatal("expected listener to be closed after shutdown")
	}
}

func TestRunFailsWhenAddressInUse(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	cfg := testConfig()
	cfg.ListenAddr = ln.Addr().String()

	if err := New(cfg, http.NotFoundHandler()).Run(context.Background()); err == nil {
		t.Fatal("expected listen error for an address already in use")
	}
}

func waitUntil(t *testing.T, timeout time.Duration, fn func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}
