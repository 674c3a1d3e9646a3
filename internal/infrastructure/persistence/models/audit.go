package models

import (
	"time"

	"github.com/casaviva/backoffice/internal/domain/sales"
	"github.com/google/uuid"
)

// AuditEntryModel is an append-only row of the client activity trail.
type AuditEntryModel struct {
	ID         uuid.UUID  `gorm:"type:uuid;primary_key"`
	ClientID   uuid.UUID  `gorm:"type:uuid;not null;index:idx_audit_client_time,priority:1"`
	HouseID    *uuid.UUID `gorm:"type:uuid"`
	StepKey    string     `gorm:"type:varchar(60)"`
	Action     string     `gorm:"type:varchar(40);not null"`
	Message    string     `gorm:"type:text;not null"`
	ActorName  string     `gorm:"type:varchar(200);not null"`
	OccurredAt time.Time  `gorm:"not null;index:idx_audit_client_time,priority:2"`
}

// TableName returns the table name for GORM
func (AuditEntryModel) TableName() string {
	return "audit_entries"
}

// ToDomain converts the persistence model to a domain AuditEntry.
func (m *AuditEntryModel) ToDomain() sales.AuditEntry {
	return sales.AuditEntry{
		ID:         m.ID,
		ClientID:   m.ClientID,
		HouseID:    m.HouseID,
		StepKey:    m.StepKey,
		Action:     sales.AuditAction(m.Action),
		Message:    m.Message,
		ActorName:  m.ActorName,
		OccurredAt: m.OccurredAt.UTC(),
	}
}

// AuditEntryModelFromDomain creates a persistence model from a domain
// AuditEntry.
func AuditEntryModelFromDomain(e sales.AuditEntry) *AuditEntryModel {
	return &AuditEntryModel{
		ID:         e.ID,
		ClientID:   e.ClientID,
		HouseID:    e.HouseID,
		StepKey:    e.StepKey,
		Action:     string(e.Action),
		Message:    e.Message,
		ActorName:  e.ActorName,
		OccurredAt: e.OccurredAt,
	}
}

// AllModels lists every model for AutoMigrate in tests.
func AllModels() []interface{} {
	return []interface{}{
		&HouseModel{},
		&ClientModel{},
		&PaymentModel{},
		&RenunciationModel{},
		&AuditEntryModel{},
	}
}
