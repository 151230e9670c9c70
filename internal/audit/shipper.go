package audit

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"
)

// Shipper delivers secondary-stream lines to one destination. Implementations
// must tolerate concurrent Ship calls.
type Shipper interface {
	// Ship appends one line to the destination.
	Ship(ctx context.Context, line string) error
	// Close flushes buffered lines and releases resources.
	Close() error
}

// MultiShipper fans each line out to every configured destination and keeps
// going past per-destination failures; the last error is returned so callers
// can count it, but one broken sink never starves the others.
type MultiShipper struct {
	mu       sync.RWMutex
	shippers []Shipper
}

// NewMultiShipper wraps the given shippers. An empty list is valid and ships
// into the void, so the mirror can be wired unconditionally.
func NewMultiShipper(shippers ...Shipper) *MultiShipper {
	return &MultiShipper{shippers: shippers}
}

// Ship implements Shipper.
func (ms *MultiShipper) Ship(ctx context.Context, line string) error {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	var lastErr error
	for _, s := range ms.shippers {
		if err := s.Ship(ctx, line); err != nil {
			lastErr = err
			slog.Warn("secondary-stream shipper failed", "error", err)
		}
	}
	return lastErr
}

// Close implements Shipper.
func (ms *MultiShipper) Close() error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	var lastErr error
	for _, s := range ms.shippers {
		if err := s.Close(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// FileShipper appends lines to a local file, rotating by size.
type FileShipper struct {
	mu         sync.Mutex
	path       string
	maxSize    int64 // bytes; 0 disables rotation
	maxBackups int
	file       *os.File
}

// NewFileShipper opens (or creates) the log file at path. maxSizeMB of 0
// disables rotation.
func NewFileShipper(path string, maxSizeMB, maxBackups int) (*FileShipper, error) {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening secondary log file: %w", err)
	}
	return &FileShipper{
		path:       path,
		maxSize:    int64(maxSizeMB) * 1024 * 1024,
		maxBackups: maxBackups,
		file:       file,
	}, nil
}

// Ship implements Shipper.
func (fs *FileShipper) Ship(_ context.Context, line string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if fs.maxSize > 0 {
		if info, err := fs.file.Stat(); err == nil && info.Size() > fs.maxSize {
			if err := fs.rotate(); err != nil {
				slog.Warn("rotating secondary log file failed", "error", err)
			}
		}
	}

	if _, err := fs.file.WriteString(line + "\n"); err != nil {
		return fmt.Errorf("writing secondary log line: %w", err)
	}
	return nil
}

// rotate shifts path → path.1 → path.2 … keeping maxBackups files.
func (fs *FileShipper) rotate() error {
	if err := fs.file.Close(); err != nil {
		return err
	}
	for i := fs.maxBackups - 1; i >= 1; i-- {
		_ = os.Rename(fmt.Sprintf("%s.%d", fs.path, i), fmt.Sprintf("%s.%d", fs.path, i+1))
	}
	_ = os.Rename(fs.path, fs.path+".1")
	if fs.maxBackups > 0 {
		_ = os.Remove(fmt.Sprintf("%s.%d", fs.path, fs.maxBackups+1))
	}

	file, err := os.OpenFile(fs.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	fs.file = file
	return nil
}

// Close implements Shipper.
func (fs *FileShipper) Close() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.file.Close()
}

// WebhookOptions configures a WebhookShipper.
type WebhookOptions struct {
	URL     string
	Headers map[string]string
	Timeout time.Duration
	// BatchSize > 0 enables batching: lines are buffered and POSTed as one
	// newline-delimited body when the batch fills or FlushInterval elapses.
	BatchSize     int
	FlushInterval time.Duration
}

// WebhookShipper POSTs lines to an HTTP endpoint, optionally batched as
// newline-delimited text.
type WebhookShipper struct {
	opts   WebhookOptions
	client *http.Client

	mu        sync.Mutex
	batch     []string
	batchCh   chan string
	closeCh   chan struct{}
	closeOnce sync.Once
}

// NewWebhookShipper creates a WebhookShipper. A zero Timeout defaults to 10 s,
// a zero FlushInterval to 5 s.
func NewWebhookShipper(opts WebhookOptions) (*WebhookShipper, error) {
	if opts.URL == "" {
		return nil, fmt.Errorf("webhook shipper requires a URL")
	}
	if opts.Timeout == 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.FlushInterval == 0 {
		opts.FlushInterval = 5 * time.Second
	}

	ws := &WebhookShipper{
		opts:    opts,
		client:  &http.Client{Timeout: opts.Timeout},
		batchCh: make(chan string, 1000),
		closeCh: make(chan struct{}),
	}
	if opts.BatchSize > 0 {
		go ws.processBatches()
	}
	return ws, nil
}

func (ws *WebhookShipper) processBatches() {
	ticker := time.NewTicker(ws.opts.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case line := <-ws.batchCh:
			ws.mu.Lock()
			ws.batch = append(ws.batch, line)
			if len(ws.batch) >= ws.opts.BatchSize {
				ws.flushLocked()
			}
			ws.mu.Unlock()
		case <-ticker.C:
			ws.mu.Lock()
			ws.flushLocked()
			ws.mu.Unlock()
		case <-ws.closeCh:
			ws.mu.Lock()
			ws.flushLocked()
			ws.mu.Unlock()
			return
		}
	}
}

// flushLocked posts and clears the pending batch. Caller holds ws.mu.
func (ws *WebhookShipper) flushLocked() {
	if len(ws.batch) == 0 {
		return
	}
	body := strings.Join(ws.batch, "\n") + "\n"
	ws.batch = ws.batch[:0]

	ctx, cancel := context.WithTimeout(context.Background(), ws.opts.Timeout)
	defer cancel()
	if err := ws.post(ctx, body); err != nil {
		slog.Warn("flushing secondary-stream batch failed", "error", err)
	}
}

// Ship implements Shipper. With batching enabled the line is queued; a full
// queue falls through to a direct send rather than blocking the caller.
func (ws *WebhookShipper) Ship(ctx context.Context, line string) error {
	if ws.opts.BatchSize > 0 {
		select {
		case ws.batchCh <- line:
			return nil
		default:
		}
	}
	return ws.post(ctx, line+"\n")
}

func (ws *WebhookShipper) post(ctx context.Context, body string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ws.opts.URL, strings.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-ndjson")
	for k, v := range ws.opts.Headers {
		req.Header.Set(k, v)
	}

	resp, err := ws.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending webhook request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// Close implements Shipper, flushing any batched lines.
func (ws *WebhookShipper) Close() error {
	ws.closeOnce.Do(func() {
		close(ws.closeCh)
	})
	return nil
}
