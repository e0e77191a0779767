package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/foxzi/outreach/internal/web/models"
)

// Audit actions
const (
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionToggle = "toggle"
	ActionMove   = "move"
	ActionDelete = "delete"
	ActionLogin  = "login"
	ActionLogout = "logout"
)

// AuditRepository stores the trail of console writes in sqlite
type AuditRepository struct {
	db *sql.DB
}

func NewAuditRepository(db *sql.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Add adds an audit log entry
func (r *AuditRepository) Add(ctx context.Context, entry *models.AuditEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO audit_log (user_id, user_email, action, entity_type, entity_id, details, ip_address, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.UserID, entry.UserEmail, entry.Action, entry.EntityType, entry.EntityID, entry.Details, entry.IPAddress, entry.CreatedAt,
	)
	if err != nil {
		return err
	}
	entry.ID, _ = res.LastInsertId()
	return nil
}

// List returns entries newest first and the total matching the filter
func (r *AuditRepository) List(ctx context.Context, filter models.AuditFilter) ([]models.AuditEntry, int, error) {
	where := " WHERE 1=1"
	args := []any{}

	if filter.UserID != "" {
		where += " AND user_id = ?"
		args = append(args, filter.UserID)
	}
	if filter.Action != "" {
		where += " AND action = ?"
		args = append(args, filter.Action)
	}
	if filter.EntityType != "" {
		where += " AND entity_type = ?"
		args = append(args, filter.EntityType)
	}
	if !filter.Since.IsZero() {
		where += " AND created_at >= ?"
		args = append(args, filter.Since)
	}

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM audit_log"+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `
		SELECT id, COALESCE(user_id, '') as user_id, COALESCE(user_email, '') as user_email,
			action, COALESCE(entity_type, '') as entity_type, COALESCE(entity_id, '') as entity_id,
			COALESCE(details, '') as details, COALESCE(ip_address, '') as ip_address, created_at
		FROM audit_log` + where + " ORDER BY created_at DESC, id DESC"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, filter.Offset)
		}
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	entries := []models.AuditEntry{}
	for rows.Next() {
		var e models.AuditEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.UserEmail, &e.Action, &e.EntityType, &e.EntityID, &e.Details, &e.IPAddress, &e.CreatedAt); err != nil {
			return nil, 0, err
		}
		entries = append(entries, e)
	}

	return entries, total, rows.Err()
}

// DeleteBefore removes entries older than t and returns how many were removed
func (r *AuditRepository) DeleteBefore(ctx context.Context, t time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, "DELETE FROM audit_log WHERE created_at < ?", t)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// CountBefore counts entries older than t
func (r *AuditRepository) CountBefore(ctx context.Context, t time.Time) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM audit_log WHERE created_at < ?", t).Scan(&n)
	return n, err
}
