package audit

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// ---------------------------------------------------------------------------
// FileShipper
// ---------------------------------------------------------------------------

func TestFileShipper_AppendsLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	fs, err := NewFileShipper(path, 0, 0)
	if err != nil {
		t.Fatalf("NewFileShipper: %v", err)
	}
	defer fs.Close()

	for _, line := range []string{"login_log - {}", "operation_log - {}"} {
		if err := fs.Ship(context.Background(), line); err != nil {
			t.Fatalf("Ship: %v", err)
		}
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("opening log: %v", err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if len(lines) != 2 || lines[0] != "login_log - {}" {
		t.Errorf("lines = %v", lines)
	}
}

func TestFileShipper_RotatesBySize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	fs, err := NewFileShipper(path, 1, 2) // 1 MB cap
	if err != nil {
		t.Fatalf("NewFileShipper: %v", err)
	}
	defer fs.Close()

	big := strings.Repeat("x", 1024)
	for i := 0; i < 1100; i++ { // > 1 MB
		if err := fs.Ship(context.Background(), big); err != nil {
			t.Fatalf("Ship: %v", err)
		}
	}

	if _, err := os.Stat(path + ".1"); err != nil {
		t.Errorf("expected rotated backup %s.1: %v", path, err)
	}
}

// ---------------------------------------------------------------------------
// WebhookShipper
// ---------------------------------------------------------------------------

func TestWebhookShipper_PostsLine(t *testing.T) {
	var body string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		body = string(b)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ws, err := NewWebhookShipper(WebhookOptions{URL: srv.URL, Timeout: time.Second})
	if err != nil {
		t.Fatalf("NewWebhookShipper: %v", err)
	}
	defer ws.Close()

	if err := ws.Ship(context.Background(), "login_log - {}"); err != nil {
		t.Fatalf("Ship: %v", err)
	}
	if body != "login_log - {}\n" {
		t.Errorf("body = %q", body)
	}
}

func TestWebhookShipper_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ws, err := NewWebhookShipper(WebhookOptions{URL: srv.URL, Timeout: time.Second})
	if err != nil {
		t.Fatalf("NewWebhookShipper: %v", err)
	}
	defer ws.Close()

	if err := ws.Ship(context.Background(), "x"); err == nil {
		t.Error("expected error for 500 response")
	}
}

func TestWebhookShipper_CustomHeaders(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("X-Audit-Token")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ws, err := NewWebhookShipper(WebhookOptions{
		URL:     srv.URL,
		Timeout: time.Second,
		Headers: map[string]string{"X-Audit-Token": "tok123"},
	})
	if err != nil {
		t.Fatalf("NewWebhookShipper: %v", err)
	}
	defer ws.Close()

	if err := ws.Ship(context.Background(), "x"); err != nil {
		t.Fatalf("Ship: %v", err)
	}
	if got != "tok123" {
		t.Errorf("header = %q, want tok123", got)
	}
}

func TestWebhookShipper_BatchFlushOnSize(t *testing.T) {
	bodyCh := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		bodyCh <- string(b)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ws, err := NewWebhookShipper(WebhookOptions{
		URL:           srv.URL,
		Timeout:       time.Second,
		BatchSize:     2,
		FlushInterval: time.Hour, // only the size trigger should fire
	})
	if err != nil {
		t.Fatalf("NewWebhookShipper: %v", err)
	}
	defer ws.Close()

	if err := ws.Ship(context.Background(), "line-1"); err != nil {
		t.Fatalf("Ship: %v", err)
	}
	if err := ws.Ship(context.Background(), "line-2"); err != nil {
		t.Fatalf("Ship: %v", err)
	}

	select {
	case body := <-bodyCh:
		if body != "line-1\nline-2\n" {
			t.Errorf("batched body = %q", body)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("batch never flushed")
	}
}

func TestWebhookShipper_RequiresURL(t *testing.T) {
	if _, err := NewWebhookShipper(WebhookOptions{}); err == nil {
		t.Error("expected error for missing URL")
	}
}

// ---------------------------------------------------------------------------
// MultiShipper
// ---------------------------------------------------------------------------

type errShipper struct{ err error }

func (e *errShipper) Ship(context.Context, string) error { return e.err }
func (e *errShipper) Close() error                       { return nil }

func TestMultiShipper_Empty(t *testing.T) {
	ms := NewMultiShipper()
	if err := ms.Ship(context.Background(), "x"); err != nil {
		t.Errorf("Ship on empty multi-shipper = %v, want nil", err)
	}
	if err := ms.Close(); err != nil {
		t.Errorf("Close on empty multi-shipper = %v, want nil", err)
	}
}

func TestMultiShipper_ContinuesPastFailure(t *testing.T) {
	ok := &captureShipper{}
	ms := NewMultiShipper(&errShipper{err: errors.New("down")}, ok)

	if err := ms.Ship(context.Background(), "x"); err == nil {
		t.Error("Ship = nil, want the failing shipper's error")
	}
	if len(ok.lines) != 1 {
		t.Errorf("healthy shipper received %d lines, want 1", len(ok.lines))
	}
}
