package models

import (
	"time"

	"github.com/google/uuid"
)

// ActorType — кто выполнил действие.
type ActorType string

// Типы акторов журнала аудита.
const (
	ActorUser   ActorType = "user"
	ActorAdmin  ActorType = "admin"
	ActorSystem ActorType = "system"
)

// Severity — важность записи аудита.
type Severity string

// Уровни важности.
const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// AuditLog — запись журнала аудита.
type AuditLog struct {
	ID         uuid.UUID      `json:"id"`
	ActorType  ActorType      `json:"actorType"`
	ActorID    *uuid.UUID     `json:"actorId,omitempty"`
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	ResourceID string         `json:"resourceId,omitempty"`
	IP         string         `json:"ip,omitempty"`
	UserAgent  string         `json:"userAgent,omitempty"`
	Severity   Severity       `json:"severity"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  time.Time      `json:"createdAt"`
}

// AuditFilter — параметры выборки журнала.
type AuditFilter struct {
	ActorType ActorType
	Action    string
	Severity  Severity
	From      *time.Time
	To        *time.Time
	Page
}
