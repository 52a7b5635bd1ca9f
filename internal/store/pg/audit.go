package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"cambria.dev/dashboard/internal/audit"
)

// AuditLog implements audit.Store. Insertion order is kept by the seq column.
type AuditLog struct {
	db *sql.DB
}

var _ audit.Store = (*AuditLog)(nil)

const auditColumns = `id, user_id, user_name, user_email, action, resource, resource_id, resource_name, details, ip_address, user_agent, "timestamp", created_at, updated_at`

func scanEntry(row rowScanner) (audit.Entry, error) {
	var (
		e          audit.Entry
		rawDetails []byte
	)
	if err := row.Scan(&e.ID, &e.UserID, &e.UserName, &e.UserEmail, &e.Action, &e.Resource, &e.ResourceID,
		&e.ResourceName, &rawDetails, &e.IPAddress, &e.UserAgent, &e.Timestamp, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return audit.Entry{}, err
	}
	e.Details = map[string]any{}
	if len(rawDetails) > 0 {
		if err := json.Unmarshal(rawDetails, &e.Details); err != nil {
			return audit.Entry{}, fmt.Errorf("decode audit details: %w", err)
		}
	}
	return e, nil
}

func (s *AuditLog) Append(ctx context.Context, e audit.Entry) (audit.Entry, error) {
	if s.db == nil {
		return audit.Entry{}, errNoDB
	}
	details := e.Details
	if details == nil {
		details = map[string]any{}
	}
	raw, err := json.Marshal(details)
	if err != nil {
		return audit.Entry{}, fmt.Errorf("encode audit details: %w", err)
	}
	return scanEntry(s.db.QueryRowContext(ctx, `
		insert into audit_logs (id, user_id, user_name, user_email, action, resource, resource_id, resource_name, details, ip_address, user_agent, "timestamp")
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		returning `+auditColumns,
		e.ID, e.UserID, e.UserName, e.UserEmail, e.Action, e.Resource, e.ResourceID, e.ResourceName,
		raw, e.IPAddress, e.UserAgent, e.Timestamp))
}

func (s *AuditLog) List(ctx context.Context) ([]audit.Entry, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	rows, err := s.db.QueryContext(ctx, `select `+auditColumns+` from audit_logs order by seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []audit.Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}
