package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"cambria.dev/dashboard/internal/auth"
	"cambria.dev/dashboard/internal/ids"
)

// Permissions implements auth.PermissionStore.
type Permissions struct {
	db *sql.DB
}

var _ auth.PermissionStore = (*Permissions)(nil)

const permissionColumns = `id, user_id, user_name, permission_type, resource, granted_by, granted_at, expires_at, created_at, updated_at`

func scanPermission(row rowScanner) (auth.Permission, error) {
	var (
		p       auth.Permission
		expires sql.NullTime
	)
	if err := row.Scan(&p.ID, &p.UserID, &p.UserName, &p.PermissionType, &p.Resource, &p.GrantedBy,
		&p.GrantedAt, &expires, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return auth.Permission{}, err
	}
	p.ExpiresAt = timePtr(expires)
	return p, nil
}

func (s *Permissions) Add(ctx context.Context, p auth.Permission) (auth.Permission, error) {
	if s.db == nil {
		return auth.Permission{}, errNoDB
	}
	if p.ID == "" {
		p.ID = ids.New()
	}
	created, err := scanPermission(s.db.QueryRowContext(ctx, `
		insert into permissions (id, user_id, user_name, permission_type, resource, granted_by, granted_at, expires_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8)
		returning `+permissionColumns,
		p.ID, p.UserID, p.UserName, p.PermissionType, p.Resource, p.GrantedBy, p.GrantedAt, nullTime(p.ExpiresAt)))
	if err != nil {
		if isUniqueViolation(err) {
			return auth.Permission{}, auth.ErrConflict
		}
		return auth.Permission{}, err
	}
	return created, nil
}

func (s *Permissions) List(ctx context.Context, f auth.PermissionFilter) ([]auth.Permission, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	var (
		where []string
		args  []any
	)
	if f.UserID != "" {
		args = append(args, f.UserID)
		where = append(where, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if f.Type != "" {
		args = append(args, f.Type)
		where = append(where, fmt.Sprintf("permission_type = $%d", len(args)))
	}
	query := `select ` + permissionColumns + ` from permissions`
	if len(where) > 0 {
		query += ` where ` + strings.Join(where, " and ")
	}
	query += ` order by created_at, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	perms := []auth.Permission{}
	for rows.Next() {
		p, err := scanPermission(rows)
		if err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return perms, nil
}

func (s *Permissions) GetByID(ctx context.Context, id string) (auth.Permission, error) {
	if s.db == nil {
		return auth.Permission{}, errNoDB
	}
	p, err := scanPermission(s.db.QueryRowContext(ctx, `select `+permissionColumns+` from permissions where id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return auth.Permission{}, auth.ErrNotFound
	}
	return p, err
}

func (s *Permissions) Update(ctx context.Context, id string, upd auth.PermissionUpdate) (auth.Permission, error) {
	if s.db == nil {
		return auth.Permission{}, errNoDB
	}
	var (
		setClauses []string
		args       []any
		idx        = 1
	)
	set := func(column string, value any) {
		setClauses = append(setClauses, fmt.Sprintf("%s = $%d", column, idx))
		args = append(args, value)
		idx++
	}
	if upd.PermissionType != nil {
		set("permission_type", *upd.PermissionType)
	}
	if upd.Resource != nil {
		set("resource", *upd.Resource)
	}
	if upd.UserName != nil {
		set("user_name", *upd.UserName)
	}
	if upd.ExpiresAt != nil {
		set("expires_at", nullTime(*upd.ExpiresAt))
	}
	if len(setClauses) == 0 {
		return s.GetByID(ctx, id)
	}
	setClauses = append(setClauses, "updated_at = now()")
	query := fmt.Sprintf(`update permissions set %s where id = $%d returning %s`, strings.Join(setClauses, ", "), idx, permissionColumns)
	args = append(args, id)

	p, err := scanPermission(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return auth.Permission{}, auth.ErrNotFound
	}
	return p, err
}

func (s *Permissions) Delete(ctx context.Context, id string) error {
	if s.db == nil {
		return errNoDB
	}
	res, err := s.db.ExecContext(ctx, `delete from permissions where id = $1`, id)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return auth.ErrNotFound
	}
	return nil
}
