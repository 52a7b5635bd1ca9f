package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"cambria.dev/dashboard/internal/auth"
	"cambria.dev/dashboard/internal/clients"
)

// Clients implements clients.Store.
type Clients struct {
	db *sql.DB
}

var _ clients.Store = (*Clients)(nil)

const clientColumns = `code, name, status, sheet_id, folder_id, created_at, updated_at`

func scanClient(row rowScanner) (clients.Client, error) {
	var c clients.Client
	err := row.Scan(&c.Code, &c.Name, &c.Status, &c.SheetID, &c.FolderID, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

func (s *Clients) List(ctx context.Context) ([]clients.Client, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	rows, err := s.db.QueryContext(ctx, `select `+clientColumns+` from clients order by code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []clients.Client{}
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Clients) GetByCode(ctx context.Context, code string) (clients.Client, error) {
	if s.db == nil {
		return clients.Client{}, errNoDB
	}
	c, err := scanClient(s.db.QueryRowContext(ctx, `select `+clientColumns+` from clients where lower(code) = lower($1)`, code))
	if errors.Is(err, sql.ErrNoRows) {
		return clients.Client{}, auth.ErrNotFound
	}
	return c, err
}

func (s *Clients) Update(ctx context.Context, code string, upd clients.Update) (clients.Client, error) {
	if s.db == nil {
		return clients.Client{}, errNoDB
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
	if upd.Name != nil {
		set("name", *upd.Name)
	}
	if upd.Status != nil {
		set("status", *upd.Status)
	}
	if upd.SheetID != nil {
		set("sheet_id", *upd.SheetID)
	}
	if upd.FolderID != nil {
		set("folder_id", *upd.FolderID)
	}
	if len(setClauses) == 0 {
		return s.GetByCode(ctx, code)
	}
	setClauses = append(setClauses, "updated_at = now()")
	query := fmt.Sprintf(`update clients set %s where lower(code) = lower($%d) returning %s`, strings.Join(setClauses, ", "), idx, clientColumns)
	args = append(args, code)

	c, err := scanClient(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return clients.Client{}, auth.ErrNotFound
	}
	return c, err
}
