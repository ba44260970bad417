package users

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dealerhub/dealerhub/internal/platform/db"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const userColumns = `
SELECT u.id, u.auth_identity::text, u.email, u.display_name, u.role_id, COALESCE(r.name, ''),
       COALESCE((SELECT array_agg(p.name ORDER BY p.name)
                   FROM user_permissions up JOIN permissions p ON p.id = up.permission_id
                  WHERE up.user_id = u.id), '{}'),
       u.created_at, u.updated_at
  FROM user_profile u
  LEFT JOIN roles r ON r.id = u.role_id`

func scanUser(row pgx.Row) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Identity, &u.Email, &u.DisplayName, &u.RoleID, &u.RoleName, &u.Overrides, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

// ListUsers returns users ordered by email.
func (r *Repository) ListUsers(ctx context.Context, filters ListFilters) ([]User, error) {
	rows, err := r.pool.Query(ctx, userColumns+`
 WHERE ($1::bigint IS NULL OR u.role_id = $1)
   AND ($2 = '' OR u.email ILIKE '%' || $2 || '%' OR u.display_name ILIKE '%' || $2 || '%')
 ORDER BY u.email`, filters.RoleID, filters.Search)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var users []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

// GetUser returns the user with id.
func (r *Repository) GetUser(ctx context.Context, id int64) (User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx, userColumns+` WHERE u.id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, ErrNotFound
	}
	return u, err
}

// AssignRole sets or clears the role of a user.
func (r *Repository) AssignRole(ctx context.Context, id int64, roleID *int64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE user_profile SET role_id = $2, updated_at = NOW() WHERE id = $1`, id, roleID)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return ErrUnknownRole
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ReplaceOverrides synchronises user_permissions with names: links not
// listed are removed and missing ones inserted.
func (r *Repository) ReplaceOverrides(ctx context.Context, id int64, names []string) error {
	if names == nil {
		names = []string{}
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM user_profile WHERE id = $1 FOR UPDATE)`, id).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ErrNotFound
		}
		if _, err := tx.Exec(ctx, `
DELETE FROM user_permissions up
 USING permissions p
 WHERE up.permission_id = p.id AND up.user_id = $1 AND NOT (p.name = ANY($2))`, id, names); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `
INSERT INTO user_permissions (user_id, permission_id)
SELECT $1, p.id FROM permissions p WHERE p.name = ANY($2)
ON CONFLICT DO NOTHING`, id, names)
		return err
	})
}

// DeleteUser removes the profile, its overrides, sessions and credentials in
// one transaction. It returns the deleted identity.
func (r *Repository) DeleteUser(ctx context.Context, id int64) (string, error) {
	var identity string
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `SELECT auth_identity::text FROM user_profile WHERE id = $1 FOR UPDATE`, id).Scan(&identity)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}
		statements := []string{
			`DELETE FROM user_permissions WHERE user_id = $1`,
			`DELETE FROM user_profile WHERE id = $1`,
		}
		for _, stmt := range statements {
			if _, err := tx.Exec(ctx, stmt, id); err != nil {
				return err
			}
		}
		if _, err := tx.Exec(ctx, `DELETE FROM user_sessions WHERE identity = $1`, identity); err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `DELETE FROM auth_users WHERE id::text = $1`, identity)
		return err
	})
	return identity, err
}

var _ RepositoryPort = (*Repository)(nil)
