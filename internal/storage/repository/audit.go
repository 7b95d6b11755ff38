package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/magabrotheeeer/finance-saas/internal/models"
)

const auditColumns = `id, actor_type, actor_id, action, resource, resource_id, ip, user_agent, severity, metadata, created_at`

func scanAudit(row scanner) (*models.AuditLog, error) {
	var (
		l    models.AuditLog
		meta []byte
	)
	err := row.Scan(&l.ID, &l.ActorType, &l.ActorID, &l.Action, &l.Resource, &l.ResourceID, &l.IP, &l.UserAgent,
		&l.Severity, &meta, &l.CreatedAt)
	if err != nil {
		return nil, err
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &l.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
	}
	return &l, nil
}

// InsertAuditLog добавляет запись в журнал аудита.
func (s *Storage) InsertAuditLog(ctx context.Context, l *models.AuditLog) error {
	const op = "storage.InsertAuditLog"
	if err := checkCtx(ctx, op); err != nil {
		return err
	}
	meta := []byte("{}")
	if len(l.Metadata) > 0 {
		b, err := json.Marshal(l.Metadata)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		meta = b
	}
	severity := l.Severity
	if severity == "" {
		severity = models.SeverityInfo
	}
	_, err := s.DB.ExecContext(ctx, `INSERT INTO audit_logs
		(actor_type, actor_id, action, resource, resource_id, ip, user_agent, severity, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::jsonb)`,
		string(l.ActorType), l.ActorID, l.Action, l.Resource, l.ResourceID, l.IP, l.UserAgent,
		string(severity), string(meta))
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// ListAuditLogs возвращает страницу журнала по фильтру и общее число записей.
func (s *Storage) ListAuditLogs(ctx context.Context, f models.AuditFilter) ([]*models.AuditLog, int64, error) {
	const op = "storage.ListAuditLogs"
	if err := checkCtx(ctx, op); err != nil {
		return nil, 0, err
	}

	var (
		args  []any
		where []string
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.ActorType != "" {
		add("actor_type = $%d", string(f.ActorType))
	}
	if f.Action != "" {
		add("action = $%d", f.Action)
	}
	if f.Severity != "" {
		add("severity = $%d", string(f.Severity))
	}
	if f.From != nil {
		add("created_at >= $%d", *f.From)
	}
	if f.To != nil {
		add("created_at <= $%d", *f.To)
	}
	cond := ""
	if len(where) > 0 {
		cond = " WHERE " + strings.Join(where, " AND ")
	}

	var total int64
	if err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_logs`+cond, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("%s: %w", op, err)
	}

	page := f.Page.Normalize()
	args = append(args, page.Limit, page.Offset)
	rows, err := s.DB.QueryContext(ctx, fmt.Sprintf(`SELECT %s FROM audit_logs%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		auditColumns, cond, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var list []*models.AuditLog
	for rows.Next() {
		l, err := scanAudit(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("%s: %w", op, err)
		}
		list = append(list, l)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("%s: %w", op, err)
	}
	return list, total, nil
}
