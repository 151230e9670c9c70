package audit

import (
	"context"

	"github.com/bastionhq/bastion-audit/internal/db/models"
)

// Fallbacks for system-initiated password changes.
const (
	systemActor    = "System"
	loopbackOrigin = "127.0.0.1"
)

// PasswordChangeStore persists password-change records. CreatePasswordChangeLog
// must be atomic; implementations wrap the insert in a transaction.
type PasswordChangeStore interface {
	CreatePasswordChangeLog(ctx context.Context, log *models.PasswordChangeLog) error
}

// PasswordRecorder writes one PasswordChangeLog per password change through
// its own dedicated path. Unlike the mirror-backed paths, a write failure
// here propagates to the caller: there is no secondary copy to compensate
// with, so the record must land or the change must fail.
type PasswordRecorder struct {
	store PasswordChangeStore
}

// NewPasswordRecorder creates a PasswordRecorder.
func NewPasswordRecorder(store PasswordChangeStore) *PasswordRecorder {
	return &PasswordRecorder{store: store}
}

// OnPasswordChanged records that subject's password changed. op is nil when
// there is no ambient request context (system-initiated change): the record
// then attributes the change to "System" from the loopback address. With a
// context present, an unauthenticated actor falls back to the subject itself:
// a user completing a forced reset is acting on their own account.
func (p *PasswordRecorder) OnPasswordChanged(ctx context.Context, op *OperationContext, subject Entity) error {
	changeBy := systemActor
	remoteAddr := loopbackOrigin
	var orgID string

	if op != nil {
		orgID = op.OrgID
		if op.RemoteAddr != "" {
			remoteAddr = op.RemoteAddr
		}
		if name, ok := op.ActorName(); ok {
			changeBy = name
		} else {
			changeBy = subject.String()
		}
	}

	return p.store.CreatePasswordChangeLog(ctx, &models.PasswordChangeLog{
		User:       subject.String(),
		ChangeBy:   changeBy,
		RemoteAddr: remoteAddr,
		OrgID:      orgID,
	})
}
