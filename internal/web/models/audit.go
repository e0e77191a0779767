package models

import "time"

// AuditEntry is one console write: who changed which segment or credential
type AuditEntry struct {
	ID         int64     `json:"id"`
	UserID     string    `json:"user_id"`
	UserEmail  string    `json:"user_email"`
	Action     string    `json:"action"`
	EntityType string    `json:"entity_type"` // segment, rpa_account, mail_settings, api_settings, session
	EntityID   string    `json:"entity_id"`
	Details    string    `json:"details"`
	IPAddress  string    `json:"ip_address"`
	CreatedAt  time.Time `json:"created_at"`
}

// AuditFilter narrows the audit page; zero fields match everything
type AuditFilter struct {
	UserID     string
	Action     string
	EntityType string
	Since      time.Time
	Limit      int
	Offset     int
}
