// Package jobs contains the service's background jobs. archive_export.go
// implements the nightly export of the previous day's audit records to the
// configured archive backend as NDJSON files.
package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/bastionhq/bastion-audit/internal/db/models"
	"github.com/bastionhq/bastion-audit/internal/storage"
	"github.com/bastionhq/bastion-audit/internal/telemetry"
)

// RecordSource is the slice of the repository layer the exporter reads from.
type RecordSource interface {
	OperateLogsBetween(ctx context.Context, from, to time.Time) ([]*models.OperateLog, error)
	LoginLogsBetween(ctx context.Context, from, to time.Time) ([]*models.UserLoginLog, error)
	PasswordChangeLogsBetween(ctx context.Context, from, to time.Time) ([]*models.PasswordChangeLog, error)
}

// ArchiveExporter exports each completed day's audit records to the archive
// backend. One NDJSON file per record type, keyed by date:
//
//	2025/03/01/operate_logs.ndjson
//	2025/03/01/login_logs.ndjson
//	2025/03/01/password_change_logs.ndjson
//
// Export is idempotent: a day already present in the archive is skipped, so
// a restarted service does not rewrite history.
type ArchiveExporter struct {
	source   RecordSource
	archiver storage.Archiver
	interval time.Duration
	stopChan chan struct{}
}

// NewArchiveExporter creates the export job. interval controls how often the
// job wakes up to check for an unexported day; the default is hourly.
func NewArchiveExporter(source RecordSource, archiver storage.Archiver, interval time.Duration) *ArchiveExporter {
	if interval <= 0 {
		interval = time.Hour
	}
	return &ArchiveExporter{
		source:   source,
		archiver: archiver,
		interval: interval,
		stopChan: make(chan struct{}),
	}
}

// Start begins the export loop. It runs an initial check immediately, then
// repeats on the configured interval. The loop exits when ctx is cancelled
// or Stop() is called.
func (e *ArchiveExporter) Start(ctx context.Context) {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	slog.Info("archive exporter started", "interval", e.interval)

	e.run(ctx, time.Now())

	for {
		select {
		case <-ticker.C:
			e.run(ctx, time.Now())
		case <-e.stopChan:
			slog.Info("archive exporter stopped")
			return
		case <-ctx.Done():
			slog.Info("archive exporter context cancelled")
			return
		}
	}
}

// Stop stops the export job
func (e *ArchiveExporter) Stop() {
	close(e.stopChan)
}

// run exports the day before now, unless it is already archived.
func (e *ArchiveExporter) run(ctx context.Context, now time.Time) {
	day := now.UTC().AddDate(0, 0, -1).Truncate(24 * time.Hour)

	if err := e.ExportDay(ctx, day); err != nil {
		telemetry.ArchiveExportsTotal.WithLabelValues("error").Inc()
		slog.Error("archive export failed", "day", day.Format("2006-01-02"), "error", err)
		return
	}
}

// ExportDay exports all records created on the given UTC day. Already
// archived days are skipped.
func (e *ArchiveExporter) ExportDay(ctx context.Context, day time.Time) error {
	day = day.UTC().Truncate(24 * time.Hour)
	from, to := day, day.AddDate(0, 0, 1)
	prefix := day.Format("2006/01/02")

	exists, err := e.archiver.Exists(ctx, prefix+"/operate_logs.ndjson")
	if err != nil {
		return fmt.Errorf("checking archive: %w", err)
	}
	if exists {
		return nil
	}

	operate, err := e.source.OperateLogsBetween(ctx, from, to)
	if err != nil {
		return fmt.Errorf("loading operate logs: %w", err)
	}
	logins, err := e.source.LoginLogsBetween(ctx, from, to)
	if err != nil {
		return fmt.Errorf("loading login logs: %w", err)
	}
	passwords, err := e.source.PasswordChangeLogsBetween(ctx, from, to)
	if err != nil {
		return fmt.Errorf("loading password change logs: %w", err)
	}

	files := []struct {
		name    string
		records any
		count   int
	}{
		{"operate_logs.ndjson", operate, len(operate)},
		{"login_logs.ndjson", logins, len(logins)},
		{"password_change_logs.ndjson", passwords, len(passwords)},
	}

	total := 0
	for _, f := range files {
		data, err := encodeNDJSON(f.records)
		if err != nil {
			return fmt.Errorf("encoding %s: %w", f.name, err)
		}
		result, err := e.archiver.Upload(ctx, prefix+"/"+f.name, bytes.NewReader(data))
		if err != nil {
			return fmt.Errorf("uploading %s: %w", f.name, err)
		}
		slog.Info("archived audit records",
			"file", result.Path,
			"records", f.count,
			"bytes", result.Size,
			"sha256", result.Checksum,
		)
		total += f.count
	}

	telemetry.ArchiveExportsTotal.WithLabelValues("success").Inc()
	slog.Info("archive export completed", "day", day.Format("2006-01-02"), "records", total)
	return nil
}

// encodeNDJSON renders a slice of records as newline-delimited JSON.
func encodeNDJSON(records any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)

	switch rs := records.(type) {
	case []*models.OperateLog:
		for _, r := range rs {
			if err := enc.Encode(r); err != nil {
				return nil, err
			}
		}
	case []*models.UserLoginLog:
		for _, r := range rs {
			if err := enc.Encode(r); err != nil {
				return nil, err
			}
		}
	case []*models.PasswordChangeLog:
		for _, r := range rs {
			if err := enc.Encode(r); err != nil {
				return nil, err
			}
		}
	default:
		return nil, fmt.Errorf("unsupported record type %T", records)
	}
	return buf.Bytes(), nil
}
