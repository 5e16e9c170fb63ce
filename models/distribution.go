// models/distribution.go
package models

import (
	"time"
)

type DistributionStatus string

const (
	DistributionPending   DistributionStatus = "pending"
	DistributionCompleted DistributionStatus = "completed"
	DistributionFailed    DistributionStatus = "failed"
	DistributionCancelled DistributionStatus = "cancelled"
)

// Distribution is one winner's share of one prize pool. The sum of amounts
// across positions never exceeds the pool total minus the locked fee.
type Distribution struct {
	ID            string `json:"id" gorm:"primaryKey;type:uuid"`
	PrizePoolID   string `json:"prize_pool_id" gorm:"not null;index"`
	EventID       string `json:"event_id" gorm:"not null;index"`
	ParticipantID string `json:"participant_id" gorm:"not null;index"`

	RecipientAddress string `json:"recipient_address" gorm:"type:varchar(128);not null"`
	Position         int    `json:"position" gorm:"not null"`       // 1..N
	Amount           int64  `json:"amount" gorm:"not null"`         // smallest currency units
	PercentageBps    int    `json:"percentage_bps" gorm:"not null"` // share of the pool, basis points

	Status DistributionStatus `json:"status" gorm:"type:varchar(16);default:'pending';index"`
	TxHash string             `json:"tx_hash,omitempty" gorm:"type:varchar(128)"`

	CreatedAt   time.Time  `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt   time.Time  `json:"updated_at" gorm:"autoUpdateTime"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

type TransactionStatus string

const (
	TransactionPending   TransactionStatus = "pending"
	TransactionCompleted TransactionStatus = "completed"
	TransactionFailed    TransactionStatus = "failed"
)

// DistributionTransaction tracks one on-ledger payout transaction from
// submission until it is confirmed or declared failed by the monitor.
type DistributionTransaction struct {
	ID      string `json:"id" gorm:"primaryKey;type:uuid"`
	EventID string `json:"event_id" gorm:"not null;index"`
	TxHash  string `json:"tx_hash" gorm:"type:varchar(128);not null;uniqueIndex"`

	Status      TransactionStatus `json:"status" gorm:"type:varchar(16);default:'pending';index"`
	TotalAmount int64             `json:"total_amount" gorm:"not null"`
	Recipients  string            `json:"recipients" gorm:"type:text"` // JSON array of addresses
	Amounts     string            `json:"amounts" gorm:"type:text"`    // JSON array of amounts

	GasPrice   string `json:"gas_price,omitempty" gorm:"type:varchar(64)"` // wei, decimal string
	GasLimit   uint64 `json:"gas_limit,omitempty"`
	RetryCount int    `json:"retry_count" gorm:"default:0"`
	LastError  string `json:"last_error,omitempty" gorm:"type:text"`

	SubmittedAt time.Time  `json:"submitted_at" gorm:"autoCreateTime"`
	ConfirmedAt *time.Time `json:"confirmed_at,omitempty"`
	UpdatedAt   time.Time  `json:"updated_at" gorm:"autoUpdateTime"`
}
