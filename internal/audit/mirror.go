package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/bastionhq/bastion-audit/internal/telemetry"
)

// Category identifies one mirrored record stream on the secondary log.
type Category string

// Mirrored categories. Session, command, and FTP records are produced by
// other services of the platform; the categories are listed here so their
// write paths mirror through the same table.
const (
	CategoryLoginLog          Category = "login_log"
	CategoryFTPLog            Category = "ftp_log"
	CategoryOperationLog      Category = "operation_log"
	CategoryPasswordChangeLog Category = "password_change_log"
	CategoryHostSessionLog    Category = "host_session_log"
	CategorySessionCommandLog Category = "session_command_log"
)

// RecordObserver is notified after every successful persist. The repository
// layer calls it for each record it writes, so mirroring coverage is a
// property of the persistence layer: no write path that goes through it can
// skip the mirror.
type RecordObserver interface {
	RecordPersisted(category Category, record any)
}

// Mirror serializes persisted records onto the secondary log stream, one line
// per record, shaped "<category> - <json>". Mirroring is best-effort: every
// failure is logged and counted, none is ever propagated, so the primary
// write stands regardless.
type Mirror struct {
	shipper     Shipper
	serializers map[Category]func(record any) ([]byte, error)
	timeout     time.Duration
}

// NewMirror creates a Mirror shipping through the given shipper. The routing
// table covers exactly the mirrored categories; records of any other category
// are not mirrored.
func NewMirror(shipper Shipper) *Mirror {
	serializers := make(map[Category]func(any) ([]byte, error))
	for _, c := range []Category{
		CategoryLoginLog,
		CategoryFTPLog,
		CategoryOperationLog,
		CategoryPasswordChangeLog,
		CategoryHostSessionLog,
		CategorySessionCommandLog,
	} {
		serializers[c] = json.Marshal
	}
	return &Mirror{
		shipper:     shipper,
		serializers: serializers,
		timeout:     5 * time.Second,
	}
}

// RecordPersisted implements RecordObserver.
func (m *Mirror) RecordPersisted(category Category, record any) {
	serialize, ok := m.serializers[category]
	if !ok {
		return
	}
	data, err := serialize(record)
	if err != nil {
		slog.Warn("mirror: serializing record failed", "category", category, "error", err)
		telemetry.MirrorFailuresTotal.WithLabelValues(string(category)).Inc()
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	line := string(category) + " - " + string(data)
	if err := m.shipper.Ship(ctx, line); err != nil {
		slog.Warn("mirror: shipping record failed", "category", category, "error", err)
		telemetry.MirrorFailuresTotal.WithLabelValues(string(category)).Inc()
	}
}
