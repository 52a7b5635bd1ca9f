package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"cambria.dev/dashboard/internal/auth"
	"cambria.dev/dashboard/internal/ids"
)

// Users implements auth.UserStore. Client grants live in a jsonb column.
type Users struct {
	db *sql.DB
}

var _ auth.UserStore = (*Users)(nil)

const userColumns = `id, email, name, role, status, password_hash, password_salt, client_permissions, last_login_at, created_at, updated_at`

func scanUser(row rowScanner) (auth.User, error) {
	var (
		u         auth.User
		rawGrants []byte
		lastLogin sql.NullTime
	)
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &u.Role, &u.Status, &u.PasswordHash, &u.PasswordSalt,
		&rawGrants, &lastLogin, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return auth.User{}, err
	}
	u.ClientPermissions = []auth.ClientPermission{}
	if len(rawGrants) > 0 {
		if err := json.Unmarshal(rawGrants, &u.ClientPermissions); err != nil {
			return auth.User{}, fmt.Errorf("decode client permissions: %w", err)
		}
	}
	u.LastLoginAt = timePtr(lastLogin)
	return u, nil
}

func encodeGrants(grants []auth.ClientPermission) ([]byte, error) {
	if grants == nil {
		grants = []auth.ClientPermission{}
	}
	b, err := json.Marshal(grants)
	if err != nil {
		return nil, fmt.Errorf("encode client permissions: %w", err)
	}
	return b, nil
}

func (s *Users) GetByID(ctx context.Context, id string) (auth.User, error) {
	if s.db == nil {
		return auth.User{}, errNoDB
	}
	u, err := scanUser(s.db.QueryRowContext(ctx, `select `+userColumns+` from users where id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return auth.User{}, auth.ErrNotFound
	}
	return u, err
}

func (s *Users) GetByEmail(ctx context.Context, email string) (auth.User, error) {
	if s.db == nil {
		return auth.User{}, errNoDB
	}
	u, err := scanUser(s.db.QueryRowContext(ctx, `select `+userColumns+` from users where lower(email) = lower($1)`, email))
	if errors.Is(err, sql.ErrNoRows) {
		return auth.User{}, auth.ErrNotFound
	}
	return u, err
}

func (s *Users) List(ctx context.Context) ([]auth.User, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	rows, err := s.db.QueryContext(ctx, `select `+userColumns+` from users order by email`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := []auth.User{}
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

func (s *Users) Add(ctx context.Context, u auth.User) (auth.User, error) {
	if s.db == nil {
		return auth.User{}, errNoDB
	}
	grants, err := encodeGrants(u.ClientPermissions)
	if err != nil {
		return auth.User{}, err
	}
	if u.ID == "" {
		u.ID = ids.New()
	}
	created, err := scanUser(s.db.QueryRowContext(ctx, `
		insert into users (id, email, name, role, status, password_hash, password_salt, client_permissions, last_login_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		returning `+userColumns,
		u.ID, u.Email, u.Name, u.Role, u.Status, u.PasswordHash, u.PasswordSalt, grants, nullTime(u.LastLoginAt)))
	if err != nil {
		if isUniqueViolation(err) {
			return auth.User{}, auth.ErrConflict
		}
		return auth.User{}, err
	}
	return created, nil
}

func (s *Users) Update(ctx context.Context, id string, upd auth.UserUpdate) (auth.User, error) {
	if s.db == nil {
		return auth.User{}, errNoDB
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
	if upd.Email != nil {
		set("email", *upd.Email)
	}
	if upd.Name != nil {
		set("name", *upd.Name)
	}
	if upd.Role != nil {
		set("role", *upd.Role)
	}
	if upd.Status != nil {
		set("status", *upd.Status)
	}
	if upd.PasswordHash != nil {
		set("password_hash", *upd.PasswordHash)
	}
	if upd.PasswordSalt != nil {
		set("password_salt", *upd.PasswordSalt)
	}
	if upd.ClientPermissions != nil {
		grants, err := encodeGrants(*upd.ClientPermissions)
		if err != nil {
			return auth.User{}, err
		}
		set("client_permissions", grants)
	}
	if upd.LastLoginAt != nil {
		set("last_login_at", *upd.LastLoginAt)
	}
	if len(setClauses) == 0 {
		return s.GetByID(ctx, id)
	}
	setClauses = append(setClauses, "updated_at = now()")
	query := fmt.Sprintf(`update users set %s where id = $%d returning %s`, strings.Join(setClauses, ", "), idx, userColumns)
	args = append(args, id)

	u, err := scanUser(s.db.QueryRowContext(ctx, query, args...))
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return auth.User{}, auth.ErrNotFound
	case isUniqueViolation(err):
		return auth.User{}, auth.ErrConflict
	case err != nil:
		return auth.User{}, err
	}
	return u, nil
}

func (s *Users) Delete(ctx context.Context, id string) error {
	if s.db == nil {
		return errNoDB
	}
	res, err := s.db.ExecContext(ctx, `delete from users where id = $1`, id)
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
