package services

import (
	"testing"
	"time"

	"hackathon-engine/models"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access underlying sql.DB: %v", err)
	}
	// One connection keeps the in-memory database from forking per conn.
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(
		&models.Event{},
		&models.Participant{},
		&models.JudgeAssignment{},
		&models.Vote{},
		&models.PrizePool{},
		&models.Distribution{},
		&models.DistributionTransaction{},
		&models.AuditLog{},
	); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	return db
}

// seedPayableEvent creates a completed event with a funded pool and one
// ranked participant holding a prize, plus a Pending distribution row.
func seedPayableEvent(t *testing.T, db *gorm.DB, eventID string) {
	t.Helper()
	now := time.Now()
	event := models.Event{
		ID:                   eventID,
		Title:                "Test Hack",
		Slug:                 eventID,
		OrganizerID:          "org-1",
		Phase:                models.PhaseCompleted,
		RegistrationDeadline: now.Add(-3 * time.Hour),
		SubmissionDeadline:   now.Add(-2 * time.Hour),
		VotingDeadline:       now.Add(-time.Hour),
	}
	if err := db.Create(&event).Error; err != nil {
		t.Fatalf("failed to seed event: %v", err)
	}
	pool := models.PrizePool{
		ID:          uuid.NewString(),
		EventID:     eventID,
		TotalAmount: 100000,
		FeeRateBps:  0,
		Deposited:   true,
	}
	if err := db.Create(&pool).Error; err != nil {
		t.Fatalf("failed to seed prize pool: %v", err)
	}

	rank := 1
	prize := int64(100000)
	submitted := now.Add(-90 * time.Minute)
	participant := models.Participant{
		ID:            uuid.NewString(),
		EventID:       eventID,
		UserID:        "user-1",
		WalletAddress: "0x00000000000000000000000000000000000000aa",
		SubmissionURL: "https://cdn.example.com/submissions/a.zip",
		SubmittedAt:   &submitted,
		FinalRank:     &rank,
		PrizeAmount:   &prize,
	}
	if err := db.Create(&participant).Error; err != nil {
		t.Fatalf("failed to seed participant: %v", err)
	}

	row := models.Distribution{
		ID:               uuid.NewString(),
		PrizePoolID:      pool.ID,
		EventID:          eventID,
		ParticipantID:    participant.ID,
		RecipientAddress: participant.WalletAddress,
		Position:         1,
		Amount:           prize,
		PercentageBps:    10000,
		Status:           models.DistributionPending,
	}
	if err := db.Create(&row).Error; err != nil {
		t.Fatalf("failed to seed distribution: %v", err)
	}
}
