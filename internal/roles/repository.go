package roles

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dealerhub/dealerhub/internal/platform/db"
	"github.com/dealerhub/dealerhub/internal/platform/httpx"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const roleColumns = `
SELECT r.id, r.name, r.description, r.created_at, r.updated_at,
       (SELECT count(*) FROM user_profile u WHERE u.role_id = r.id),
       COALESCE((SELECT array_agg(p.name ORDER BY p.name)
                   FROM role_permissions rp JOIN permissions p ON p.id = rp.permission_id
                  WHERE rp.role_id = r.id), '{}')
  FROM roles r`

var sortColumns = map[string]string{
	"name":       "r.name",
	"created_at": "r.created_at",
	"updated_at": "r.updated_at",
}

func orderClause(f ListFilters) string {
	col, ok := sortColumns[f.SortBy]
	if !ok {
		col = "r.name"
	}
	dir := "ASC"
	if f.SortDir == "desc" {
		dir = "DESC"
	}
	return fmt.Sprintf(" ORDER BY %s %s, r.id", col, dir)
}

func scanRole(row pgx.Row) (Role, error) {
	var role Role
	err := row.Scan(&role.ID, &role.Name, &role.Description, &role.CreatedAt, &role.UpdatedAt, &role.UserCount, &role.Permissions)
	return role, err
}

// ListRoles returns all roles.
func (r *Repository) ListRoles(ctx context.Context, filters ListFilters) ([]Role, error) {
	rows, err := r.pool.Query(ctx, roleColumns+orderClause(filters))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return roles, nil
}

// GetRole returns the role with id.
func (r *Repository) GetRole(ctx context.Context, id int64) (Role, error) {
	role, err := scanRole(r.pool.QueryRow(ctx, roleColumns+` WHERE r.id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Role{}, ErrNotFound
	}
	return role, err
}

// CreateRole inserts a new role.
func (r *Repository) CreateRole(ctx context.Context, in RoleInput) (Role, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `
INSERT INTO roles (name, description, permissions)
VALUES ($1, $2, '{}'::jsonb)
RETURNING id`, in.Name, in.Description).Scan(&id)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return Role{}, fmt.Errorf("%w: role %q", httpx.ErrDuplicate, in.Name)
		}
		return Role{}, err
	}
	return r.GetRole(ctx, id)
}

// UpdateRole changes name and description.
func (r *Repository) UpdateRole(ctx context.Context, id int64, in RoleInput) (Role, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE roles SET name = $2, description = $3, updated_at = NOW() WHERE id = $1`, id, in.Name, in.Description)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return Role{}, fmt.Errorf("%w: role %q", httpx.ErrDuplicate, in.Name)
		}
		return Role{}, err
	}
	if tag.RowsAffected() == 0 {
		return Role{}, ErrNotFound
	}
	return r.GetRole(ctx, id)
}

// DeleteRole removes the role, first moving its users to reassignTo when set.
// Both happen in one transaction.
func (r *Repository) DeleteRole(ctx context.Context, id int64, reassignTo *int64) (int64, error) {
	var moved int64
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if reassignTo != nil {
			tag, err := tx.Exec(ctx, `UPDATE user_profile SET role_id = $2, updated_at = NOW() WHERE role_id = $1`, id, *reassignTo)
			if err != nil {
				if db.IsForeignKeyViolation(err) {
					return fmt.Errorf("%w: reassign target", ErrNotFound)
				}
				return err
			}
			moved = tag.RowsAffected()
		}
		tag, err := tx.Exec(ctx, `DELETE FROM roles WHERE id = $1`, id)
		if err != nil {
			if db.IsForeignKeyViolation(err) {
				return ErrRoleInUse
			}
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return nil
	})
	return moved, err
}

// ReplacePermissions swaps the role permission links and matrix for the
// given names. Names missing from the permissions table are skipped.
func (r *Repository) ReplacePermissions(ctx context.Context, id int64, names []string, matrix []byte) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE roles SET permissions = $2::jsonb, updated_at = NOW() WHERE id = $1`, id, string(matrix))
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		if _, err := tx.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, id); err != nil {
			return err
		}
		if len(names) == 0 {
			return nil
		}
		_, err = tx.Exec(ctx, `
INSERT INTO role_permissions (role_id, permission_id)
SELECT $1, p.id FROM permissions p WHERE p.name = ANY($2)
ON CONFLICT DO NOTHING`, id, names)
		return err
	})
}

var _ RepositoryPort = (*Repository)(nil)
