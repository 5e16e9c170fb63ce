// services/audit_service.go
package services

import (
	"hackathon-engine/models"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// AuditService appends audit records. Writes are best-effort: failures are
// logged and swallowed, never surfaced to the caller of the primary
// operation.
type AuditService struct {
	DB *gorm.DB
}

func NewAuditService(db *gorm.DB) *AuditService {
	return &AuditService{DB: db}
}

// Record writes one audit row synchronously (best-effort).
func (s *AuditService) Record(entry models.AuditLog) {
	if s == nil || s.DB == nil {
		return
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if err := s.DB.Create(&entry).Error; err != nil {
		log.Errorf("⚠️ [AUDIT] Failed to record %q for event %s: %v", entry.Action, entry.EventID, err)
	}
}

// RecordAsync writes one audit row off the caller's goroutine. Used after
// state-changing commits so a slow audit store never delays the operation.
func (s *AuditService) RecordAsync(entry models.AuditLog) {
	go s.Record(entry)
}
