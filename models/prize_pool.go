// models/prize_pool.go
package models

import (
	"time"
)

// PrizePool holds the funded prize money for one event. Amounts are integer
// smallest currency units (e.g. USDC 6-decimals base units). The fee rate is
// locked at creation time and never changes afterward.
type PrizePool struct {
	ID          string `json:"id" gorm:"primaryKey;type:uuid"`
	EventID     string `json:"event_id" gorm:"not null;uniqueIndex"`
	TotalAmount int64  `json:"total_amount" gorm:"not null"`
	FeeRateBps  int    `json:"fee_rate_bps" gorm:"not null"` // locked at creation, basis points

	Deposited   bool `json:"deposited" gorm:"default:false"`
	Distributed bool `json:"distributed" gorm:"default:false"`

	DepositTxHash string    `json:"deposit_tx_hash,omitempty" gorm:"type:varchar(128)"`
	CreatedAt     time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt     time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// Fee returns the platform fee in smallest currency units.
func (p *PrizePool) Fee() int64 {
	return p.TotalAmount * int64(p.FeeRateBps) / 10000
}

// Distributable returns the pool amount payable to winners after the fee.
func (p *PrizePool) Distributable() int64 {
	return p.TotalAmount - p.Fee()
}
