package audit

import (
	"context"
	"fmt"

	"github.com/bastionhq/bastion-audit/internal/db/models"
)

// RelationAction is the membership-change sub-signal reported by the storage
// layer. Only add, remove, and clear produce records; anything else is
// ignored.
type RelationAction string

const (
	RelationAdd    RelationAction = "add"
	RelationRemove RelationAction = "remove"
	RelationClear  RelationAction = "clear"
)

// lastLoginField is the User column touched on every login. A save that
// changes only this field is a login-timestamp touch, not an auditable
// mutation.
const lastLoginField = "last_login"

// RecordStore is the slice of the repository layer the recorder writes
// through. CreateOperateLogs must insert the whole batch in one statement so
// a relation-change batch is visible all-or-none.
type RecordStore interface {
	CreateOperateLog(ctx context.Context, log *models.OperateLog) error
	CreateOperateLogs(ctx context.Context, logs []*models.OperateLog) error
}

// RelatedLoader fetches the display entities of one type by primary key.
// Relation-change signals carry only primary keys; the recorder resolves them
// through the loader registered for the related type.
type RelatedLoader func(ctx context.Context, pks []string) ([]Entity, error)

// MutationHooks is the contract the storage layer must honor: every mutating
// call wraps the corresponding hook. EntityDeleting runs before the row is
// removed so its fields are still readable. Hook errors propagate to the
// caller and may fail the triggering transaction: audit durability is
// deliberately coupled to business-transaction success on this path.
type MutationHooks interface {
	EntitySaved(ctx context.Context, op OperationContext, e Entity, created bool, changedFields []string) error
	EntityDeleting(ctx context.Context, op OperationContext, e Entity) error
	RelationChanged(ctx context.Context, op OperationContext, relation string, action RelationAction,
		owner Entity, ownerBaseType string, relatedType string, relatedPKs []string) error
}

// Recorder turns mutation hooks into OperateLog rows. It is safe for
// concurrent use once all loaders are registered; registration must finish
// before the storage layer starts invoking hooks.
type Recorder struct {
	store   RecordStore
	loaders map[string]RelatedLoader
}

// NewRecorder creates a Recorder writing through the given store.
func NewRecorder(store RecordStore) *Recorder {
	return &Recorder{
		store:   store,
		loaders: make(map[string]RelatedLoader),
	}
}

// RegisterLoader installs the primary-key loader for one related entity type.
// Called during wiring, before any hook fires.
func (r *Recorder) RegisterLoader(entityType string, loader RelatedLoader) {
	r.loaders[entityType] = loader
}

// EntitySaved records a create or update. Unauthenticated and system
// operations are not audited on this path. Replayed saves are recorded again:
// the pipeline never deduplicates, only the last-login touch is suppressed.
func (r *Recorder) EntitySaved(ctx context.Context, op OperationContext, e Entity, created bool, changedFields []string) error {
	if e.LogName() == "User" && len(changedFields) == 1 && changedFields[0] == lastLoginField {
		return nil
	}
	action := models.ActionUpdate
	if created {
		action = models.ActionCreate
	}
	return r.record(ctx, op, e, action)
}

// EntityDeleting records a delete. The storage layer must invoke it before
// removing the row.
func (r *Recorder) EntityDeleting(ctx context.Context, op OperationContext, e Entity) error {
	return r.record(ctx, op, e, models.ActionDelete)
}

// record is the shared builder behind EntitySaved and EntityDeleting.
func (r *Recorder) record(ctx context.Context, op OperationContext, e Entity, action string) error {
	actor, ok := op.ActorName()
	if !ok {
		return nil
	}
	return r.store.CreateOperateLog(ctx, &models.OperateLog{
		User:         actor,
		Action:       action,
		ResourceType: e.LogName(),
		Resource:     Truncate(e.String(), models.ResourceMaxLen),
		RemoteAddr:   op.RemoteAddr,
		OrgID:        op.OrgID,
	})
}

// RelationChanged records a membership change of a tracked relation as one
// OperateLog per related instance, inserted as a single batch.
//
// relation is the relation-owner type name looked up in the static registry;
// untracked relations produce nothing. ownerBaseType is the owner's declared
// base type name used as the template substitution key, deliberately not the
// runtime subtype (see FormatResource).
func (r *Recorder) RelationChanged(ctx context.Context, op OperationContext, relation string, action RelationAction,
	owner Entity, ownerBaseType string, relatedType string, relatedPKs []string) error {

	var mapped string
	switch action {
	case RelationAdd:
		mapped = models.ActionCreate
	case RelationRemove, RelationClear:
		mapped = models.ActionDelete
	default:
		return nil
	}

	actor, ok := op.ActorName()
	if !ok {
		return nil
	}

	rule, ok := LookupRelation(relation)
	if !ok {
		return nil
	}

	if len(relatedPKs) == 0 {
		return nil
	}

	loader, ok := r.loaders[relatedType]
	if !ok {
		return fmt.Errorf("no related loader registered for entity type %q", relatedType)
	}
	related, err := loader(ctx, relatedPKs)
	if err != nil {
		return fmt.Errorf("loading related %s instances: %w", relatedType, err)
	}

	template := rule.Template(mapped)
	batch := make([]*models.OperateLog, 0, len(related))
	for _, obj := range related {
		batch = append(batch, &models.OperateLog{
			User:         actor,
			Action:       mapped,
			ResourceType: rule.Category,
			Resource:     FormatResource(template, ownerBaseType, owner.String(), obj.LogName(), obj.String()),
			RemoteAddr:   op.RemoteAddr,
			OrgID:        op.OrgID,
		})
	}
	if len(batch) == 0 {
		return nil
	}
	return r.store.CreateOperateLogs(ctx, batch)
}
