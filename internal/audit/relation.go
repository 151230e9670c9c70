package audit

import (
	"strings"

	"github.com/bastionhq/bastion-audit/internal/db/models"
)

// RelationRule describes how membership changes of one tracked many-to-many
// relation are rendered. Templates hold two {TypeName} placeholders, the
// owning side and the related side, substituted by type name, not position.
type RelationRule struct {
	Category       string
	AddTemplate    string
	RemoveTemplate string
}

// relationRules is the static registry of tracked relations, keyed by the
// relation-owner type name (the join-table identity the storage layer reports
// in RelationChanged). Populated at process start, read-only afterwards;
// relations absent from this table produce no audit records.
var relationRules = map[string]RelationRule{
	"user_groups": {
		Category:       "User and Group",
		AddTemplate:    "{User} JOINED {UserGroup}",
		RemoveTemplate: "{User} LEFT {UserGroup}",
	},
	"asset_nodes": {
		Category:       "Node and Asset",
		AddTemplate:    "{Node} ADD {Asset}",
		RemoveTemplate: "{Node} REMOVE {Asset}",
	},
	"asset_permission_users": {
		Category:       "User asset permissions",
		AddTemplate:    "{AssetPermission} ADD {User}",
		RemoveTemplate: "{AssetPermission} REMOVE {User}",
	},
	"asset_permission_user_groups": {
		Category:       "User group asset permissions",
		AddTemplate:    "{AssetPermission} ADD {UserGroup}",
		RemoveTemplate: "{AssetPermission} REMOVE {UserGroup}",
	},
	"asset_permission_assets": {
		Category:       "Asset permission",
		AddTemplate:    "{AssetPermission} ADD {Asset}",
		RemoveTemplate: "{AssetPermission} REMOVE {Asset}",
	},
}

// LookupRelation returns the rendering rule for a relation-owner type name.
// ok is false for untracked relations, which the recorder treats as a no-op.
func LookupRelation(relation string) (RelationRule, bool) {
	rule, ok := relationRules[relation]
	return rule, ok
}

// Template returns the add or remove template for the mapped action.
func (r RelationRule) Template(action string) string {
	if action == models.ActionCreate {
		return r.AddTemplate
	}
	return r.RemoveTemplate
}

// FormatResource substitutes both sides into the template by type name and
// caps the result at the resource column width.
//
// ownerType must be the owner's declared base type name: when the owning
// instance is a polymorphic subtype, substitution still happens under the base
// name the template was written against. The storage layer is responsible for
// reporting the base name, not the runtime subtype.
func FormatResource(template, ownerType, ownerDisplay, relatedType, relatedDisplay string) string {
	s := strings.ReplaceAll(template, "{"+ownerType+"}", ownerDisplay)
	s = strings.ReplaceAll(s, "{"+relatedType+"}", relatedDisplay)
	return Truncate(s, models.ResourceMaxLen)
}
