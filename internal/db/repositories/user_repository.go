package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"golang.org/x/crypto/bcrypt"

	"github.com/bastionhq/bastion-audit/internal/audit"
	"github.com/bastionhq/bastion-audit/internal/db/models"
)

// UserRepository handles user and user-group database operations. Every
// mutating method wraps the matching audit.MutationHooks call, making this
// the reference implementation of the hook contract for the rest of the
// platform's storage layers.
type UserRepository struct {
	db        *sqlx.DB
	hooks     audit.MutationHooks
	passwords *audit.PasswordRecorder
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(db *sqlx.DB, hooks audit.MutationHooks, passwords *audit.PasswordRecorder) *UserRepository {
	return &UserRepository{db: db, hooks: hooks, passwords: passwords}
}

// GetUser retrieves a user by ID.
func (r *UserRepository) GetUser(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	if err := r.db.GetContext(ctx, &user, "SELECT * FROM users WHERE id = $1", id); err != nil {
		return nil, err
	}
	return &user, nil
}

// GetUserByUsername retrieves a user by username.
func (r *UserRepository) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	if err := r.db.GetContext(ctx, &user, "SELECT * FROM users WHERE username = $1", username); err != nil {
		return nil, err
	}
	return &user, nil
}

// CreateUser inserts a new user and records the create.
func (r *UserRepository) CreateUser(ctx context.Context, op audit.OperationContext, user *models.User) error {
	user.ID = uuid.New().String()
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt

	query := `
		INSERT INTO users (id, username, name, email, password_hash, source, mfa_enabled, org_id, created_at, updated_at)
		VALUES (:id, :username, :name, :email, :password_hash, :source, :mfa_enabled, :org_id, :created_at, :updated_at)
	`
	if _, err := r.db.NamedExecContext(ctx, query, user); err != nil {
		return fmt.Errorf("inserting user: %w", err)
	}
	return r.hooks.EntitySaved(ctx, op, user, true, nil)
}

// UpdateUser persists profile changes and records the update. changedFields
// names the columns the caller actually modified.
func (r *UserRepository) UpdateUser(ctx context.Context, op audit.OperationContext, user *models.User, changedFields []string) error {
	user.UpdatedAt = time.Now()

	query := `
		UPDATE users
		SET name = :name, email = :email, source = :source, mfa_enabled = :mfa_enabled, updated_at = :updated_at
		WHERE id = :id
	`
	if _, err := r.db.NamedExecContext(ctx, query, user); err != nil {
		return fmt.Errorf("updating user: %w", err)
	}
	return r.hooks.EntitySaved(ctx, op, user, false, changedFields)
}

// UpdateLastLogin touches the login timestamp. The save is reported with only
// the last_login field changed, which the recorder suppresses.
func (r *UserRepository) UpdateLastLogin(ctx context.Context, op audit.OperationContext, user *models.User, at time.Time) error {
	if _, err := r.db.ExecContext(ctx,
		"UPDATE users SET last_login = $1, updated_at = $1 WHERE id = $2", at, user.ID); err != nil {
		return fmt.Errorf("updating last login: %w", err)
	}
	user.LastLogin = &at
	return r.hooks.EntitySaved(ctx, op, user, false, []string{"last_login"})
}

// UpdatePassword hashes and stores a new password, then records the change.
// The password-change record must land or the whole operation fails.
func (r *UserRepository) UpdatePassword(ctx context.Context, op *audit.OperationContext, user *models.User, plaintext string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}

	if _, err := r.db.ExecContext(ctx,
		"UPDATE users SET password_hash = $1, updated_at = $2 WHERE id = $3",
		string(hash), time.Now(), user.ID); err != nil {
		return fmt.Errorf("updating password: %w", err)
	}
	user.PasswordHash = string(hash)
	return r.passwords.OnPasswordChanged(ctx, op, user)
}

// DeleteUser records the delete while the row is still readable, then removes
// it. A failed audit write aborts the delete.
func (r *UserRepository) DeleteUser(ctx context.Context, op audit.OperationContext, id string) error {
	user, err := r.GetUser(ctx, id)
	if err != nil {
		return err
	}
	if err := r.hooks.EntityDeleting(ctx, op, user); err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx, "DELETE FROM users WHERE id = $1", id); err != nil {
		return fmt.Errorf("deleting user: %w", err)
	}
	return nil
}

// CreateGroup inserts a new user group and records the create.
func (r *UserRepository) CreateGroup(ctx context.Context, op audit.OperationContext, group *models.UserGroup) error {
	group.ID = uuid.New().String()
	group.CreatedAt = time.Now()

	query := `
		INSERT INTO user_groups (id, name, comment, org_id, created_at)
		VALUES (:id, :name, :comment, :org_id, :created_at)
	`
	if _, err := r.db.NamedExecContext(ctx, query, group); err != nil {
		return fmt.Errorf("inserting user group: %w", err)
	}
	return r.hooks.EntitySaved(ctx, op, group, true, nil)
}

// GroupsByIDs retrieves user groups by primary key, for display resolution.
func (r *UserRepository) GroupsByIDs(ctx context.Context, ids []string) ([]*models.UserGroup, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In("SELECT * FROM user_groups WHERE id IN (?)", ids)
	if err != nil {
		return nil, err
	}
	groups := make([]*models.UserGroup, 0, len(ids))
	if err := r.db.SelectContext(ctx, &groups, r.db.Rebind(query), args...); err != nil {
		return nil, err
	}
	return groups, nil
}

// UsersByIDs retrieves users by primary key, for display resolution.
func (r *UserRepository) UsersByIDs(ctx context.Context, ids []string) ([]*models.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In("SELECT * FROM users WHERE id IN (?)", ids)
	if err != nil {
		return nil, err
	}
	users := make([]*models.User, 0, len(ids))
	if err := r.db.SelectContext(ctx, &users, r.db.Rebind(query), args...); err != nil {
		return nil, err
	}
	return users, nil
}

// RegisterLoaders installs this repository's entity loaders on the recorder.
func (r *UserRepository) RegisterLoaders(rec *audit.Recorder) {
	rec.RegisterLoader("UserGroup", func(ctx context.Context, pks []string) ([]audit.Entity, error) {
		groups, err := r.GroupsByIDs(ctx, pks)
		if err != nil {
			return nil, err
		}
		entities := make([]audit.Entity, len(groups))
		for i, g := range groups {
			entities[i] = g
		}
		return entities, nil
	})
	rec.RegisterLoader("User", func(ctx context.Context, pks []string) ([]audit.Entity, error) {
		users, err := r.UsersByIDs(ctx, pks)
		if err != nil {
			return nil, err
		}
		entities := make([]audit.Entity, len(users))
		for i, u := range users {
			entities[i] = u
		}
		return entities, nil
	})
}

// AddUserToGroups adds the user to each group and records one membership
// change per group.
func (r *UserRepository) AddUserToGroups(ctx context.Context, op audit.OperationContext, user *models.User, groupIDs []string) error {
	if len(groupIDs) == 0 {
		return nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning membership transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	for _, gid := range groupIDs {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO user_group_members (user_id, group_id) VALUES ($1, $2) ON CONFLICT DO NOTHING",
			user.ID, gid); err != nil {
			return fmt.Errorf("adding user to group %s: %w", gid, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing membership change: %w", err)
	}

	return r.hooks.RelationChanged(ctx, op, "user_groups", audit.RelationAdd, user, "User", "UserGroup", groupIDs)
}

// RemoveUserFromGroups removes the user from each group and records one
// membership change per group.
func (r *UserRepository) RemoveUserFromGroups(ctx context.Context, op audit.OperationContext, user *models.User, groupIDs []string) error {
	if len(groupIDs) == 0 {
		return nil
	}
	query, args, err := sqlx.In("DELETE FROM user_group_members WHERE user_id = ? AND group_id IN (?)", user.ID, groupIDs)
	if err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx, r.db.Rebind(query), args...); err != nil {
		return fmt.Errorf("removing user from groups: %w", err)
	}

	return r.hooks.RelationChanged(ctx, op, "user_groups", audit.RelationRemove, user, "User", "UserGroup", groupIDs)
}

// ClearUserGroups removes the user from every group. The pre-clear membership
// is captured first so the audit records can name each group left.
func (r *UserRepository) ClearUserGroups(ctx context.Context, op audit.OperationContext, user *models.User) error {
	var groupIDs []string
	if err := r.db.SelectContext(ctx, &groupIDs,
		"SELECT group_id FROM user_group_members WHERE user_id = $1", user.ID); err != nil {
		return fmt.Errorf("loading memberships: %w", err)
	}
	if len(groupIDs) == 0 {
		return nil
	}

	if _, err := r.db.ExecContext(ctx,
		"DELETE FROM user_group_members WHERE user_id = $1", user.ID); err != nil {
		return fmt.Errorf("clearing memberships: %w", err)
	}

	return r.hooks.RelationChanged(ctx, op, "user_groups", audit.RelationClear, user, "User", "UserGroup", groupIDs)
}
