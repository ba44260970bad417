package rbac

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGRepository reads authorization data from PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const loadAccountSQL = `
SELECT u.id, u.auth_identity::text, COALESCE(r.id, 0), COALESCE(r.name, ''), COALESCE(r.permissions::text, ''),
       COALESCE((SELECT array_agg(p.name ORDER BY p.name)
                   FROM role_permissions rp JOIN permissions p ON p.id = rp.permission_id
                  WHERE rp.role_id = r.id), '{}'),
       COALESCE((SELECT array_agg(p.name ORDER BY p.name)
                   FROM user_permissions up JOIN permissions p ON p.id = up.permission_id
                  WHERE up.user_id = u.id), '{}')
  FROM user_profile u
  LEFT JOIN roles r ON r.id = u.role_id
 WHERE u.auth_identity::text = $1`

// LoadAccount returns the profile, role and overrides of identity.
func (r *PGRepository) LoadAccount(ctx context.Context, identity string) (AccountRecord, error) {
	var (
		rec    AccountRecord
		matrix string
	)
	err := r.pool.QueryRow(ctx, loadAccountSQL, identity).Scan(
		&rec.UserID, &rec.Identity, &rec.RoleID, &rec.RoleName, &matrix, &rec.RolePermissions, &rec.Overrides,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return AccountRecord{}, fmt.Errorf("%w: account %s", ErrNotFound, identity)
		}
		return AccountRecord{}, fmt.Errorf("rbac: load account: %w", err)
	}
	rec.RoleMatrix = []byte(matrix)
	return rec, nil
}

// ListPermissions returns persisted permissions ordered by category and name.
func (r *PGRepository) ListPermissions(ctx context.Context) ([]Permission, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, resource, action, category, description FROM permissions ORDER BY category, name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var perms []Permission
	for rows.Next() {
		var p Permission
		if err := rows.Scan(&p.ID, &p.Name, &p.Resource, &p.Action, &p.Category, &p.Description); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

// EnsurePermission upserts p. Name, resource and action are immutable;
// only display metadata is refreshed.
func (r *PGRepository) EnsurePermission(ctx context.Context, p Permission) (Permission, error) {
	row := r.pool.QueryRow(ctx, `
INSERT INTO permissions (name, resource, action, category, description)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (name) DO UPDATE SET category = EXCLUDED.category, description = EXCLUDED.description
RETURNING id, name, resource, action, category, description`,
		p.Name, p.Resource, string(p.Action), p.Category, p.Description)
	var out Permission
	if err := row.Scan(&out.ID, &out.Name, &out.Resource, &out.Action, &out.Category, &out.Description); err != nil {
		return Permission{}, err
	}
	return out, nil
}

var _ Store = (*PGRepository)(nil)
