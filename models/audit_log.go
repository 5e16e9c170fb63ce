// models/audit_log.go
package models

import (
	"fmt"
	"time"
)

// TriggerKind discriminates who initiated a state change.
type TriggerKind string

const (
	TriggerKindSystem    TriggerKind = "system"
	TriggerKindOrganizer TriggerKind = "organizer"
	TriggerKindAdmin     TriggerKind = "admin"
)

// Trigger identifies the initiator of an audited action: the system itself,
// an event organizer, or a platform admin.
type Trigger struct {
	Kind     TriggerKind
	Identity string // empty for system
}

func SystemTrigger() Trigger             { return Trigger{Kind: TriggerKindSystem} }
func OrganizerTrigger(id string) Trigger { return Trigger{Kind: TriggerKindOrganizer, Identity: id} }
func AdminTrigger(id string) Trigger     { return Trigger{Kind: TriggerKindAdmin, Identity: id} }

func (t Trigger) String() string {
	if t.Kind == TriggerKindSystem || t.Identity == "" {
		return string(t.Kind)
	}
	return fmt.Sprintf("%s:%s", t.Kind, t.Identity)
}

// AuditLog is an append-only record of a state-changing action. Writes are
// best-effort: a failed audit write never fails the action it describes.
type AuditLog struct {
	ID        string `json:"id" gorm:"primaryKey;type:uuid"`
	EventID   string `json:"event_id" gorm:"index"`
	Action    string `json:"action" gorm:"not null;index"`
	FromPhase string `json:"from_phase,omitempty" gorm:"type:varchar(32)"`
	ToPhase   string `json:"to_phase,omitempty" gorm:"type:varchar(32)"`
	Reason    string `json:"reason" gorm:"type:text"`

	TriggeredBy string `json:"triggered_by" gorm:"type:varchar(128)"` // Trigger.String()
	Actor       string `json:"actor,omitempty"`
	Metadata    string `json:"metadata,omitempty" gorm:"type:text"` // JSON blob

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
}
