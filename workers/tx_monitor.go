// workers/tx_monitor.go
package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"sync"
	"time"

	"hackathon-engine/ledger"
	"hackathon-engine/models"
	"hackathon-engine/services"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Retrier is the orchestrator-side retry policy for failed ledger
// transactions.
type Retrier interface {
	OnTransactionFailed(eventID string, attempt int, reason string)
}

// EmergencyFlag gates submissions and polling during an emergency stop.
type EmergencyFlag interface {
	Active() bool
}

// fallbackGasLimit is the heuristic used when on-chain estimation fails:
// a fixed base plus a per-recipient transfer allowance.
func fallbackGasLimit(recipientCount int) uint64 {
	return 100000 + 40000*uint64(recipientCount)
}

// bufferedGasPrice adds a 10% buffer on top of the current network price.
func bufferedGasPrice(price *big.Int) *big.Int {
	buffered := new(big.Int).Mul(price, big.NewInt(110))
	return buffered.Div(buffered, big.NewInt(100))
}

// paddedGasLimit applies the 1.2x safety multiplier to a contract estimate.
func paddedGasLimit(estimate uint64) uint64 {
	return estimate * 12 / 10
}

type txOutcome int

const (
	outcomeUnmined    txOutcome = iota // no receipt, still within timeout
	outcomeTimeout                     // no receipt past the timeout, retry-eligible failure
	outcomeConfirming                  // success receipt, below confirmation threshold
	outcomeCompleted                   // success receipt, confirmed
	outcomeReverted                    // failure receipt
)

// classifyReceipt maps a poll observation to an outcome.
func classifyReceipt(rcpt *ledger.Receipt, currentBlock uint64, submittedAt, now time.Time, threshold uint64, timeout time.Duration) txOutcome {
	if rcpt == nil {
		if now.Sub(submittedAt) > timeout {
			return outcomeTimeout
		}
		return outcomeUnmined
	}
	if rcpt.Status != 1 {
		return outcomeReverted
	}
	if currentBlock < rcpt.BlockNumber || currentBlock-rcpt.BlockNumber < threshold {
		return outcomeConfirming
	}
	return outcomeCompleted
}

type pendingTx struct {
	TxHash      string
	EventID     string
	SubmittedAt time.Time
}

// TxMonitor submits payout transactions to the ledger and polls them to a
// terminal state. The polling set is process-local; Initialize reloads it
// from the durable pending rows on boot.
type TxMonitor struct {
	DB        *gorm.DB
	Ledger    ledger.Client
	Audit     *services.AuditService
	Retrier   Retrier
	Emergency EmergencyFlag

	ConfirmationThreshold uint64
	ReceiptTimeout        time.Duration

	mu      sync.Mutex
	pending map[string]*pendingTx // keyed by tx hash
}

func NewTxMonitor(db *gorm.DB, client ledger.Client, audit *services.AuditService, threshold uint64, timeout time.Duration) *TxMonitor {
	if threshold == 0 {
		threshold = 12
	}
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}
	return &TxMonitor{
		DB:                    db,
		Ledger:                client,
		Audit:                 audit,
		ConfirmationThreshold: threshold,
		ReceiptTimeout:        timeout,
		pending:               make(map[string]*pendingTx),
	}
}

// Initialize reloads still-Pending transactions into the polling set. Must
// run on process start, before the poll loop.
func (m *TxMonitor) Initialize(ctx context.Context) error {
	var rows []models.DistributionTransaction
	err := m.DB.WithContext(ctx).
		Where("status = ?", models.TransactionPending).
		Find(&rows).Error
	if err != nil {
		return fmt.Errorf("failed to reload pending transactions: %w", err)
	}

	m.mu.Lock()
	for _, row := range rows {
		m.pending[row.TxHash] = &pendingTx{
			TxHash:      row.TxHash,
			EventID:     row.EventID,
			SubmittedAt: row.SubmittedAt,
		}
	}
	m.mu.Unlock()

	if len(rows) > 0 {
		log.Printf("🔄 [TX_MONITOR] Reloaded %d pending transaction(s) into the polling set", len(rows))
	}
	return nil
}

// Submit validates the payout, computes gas, submits to the ledger and
// persists a Pending DistributionTransaction. On ledger failure nothing is
// persisted and the error is returned to the orchestrator's retry policy.
func (m *TxMonitor) Submit(ctx context.Context, eventID string, recipients []string, amounts []int64) (string, error) {
	if len(recipients) == 0 {
		return "", fmt.Errorf("payout requires at least one recipient")
	}
	if len(recipients) != len(amounts) {
		return "", fmt.Errorf("recipients (%d) and amounts (%d) length mismatch", len(recipients), len(amounts))
	}
	if m.Emergency != nil && m.Emergency.Active() {
		return "", services.ErrEmergencyStopped
	}

	var total int64
	bigAmounts := make([]*big.Int, len(amounts))
	for i, a := range amounts {
		if a <= 0 {
			return "", fmt.Errorf("payout amount for %s must be positive", recipients[i])
		}
		total += a
		bigAmounts[i] = big.NewInt(a)
	}

	price, err := m.Ledger.GasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("gas price: %w", err)
	}
	gasPrice := bufferedGasPrice(price)

	gasLimit := fallbackGasLimit(len(recipients))
	if estimate, err := m.Ledger.EstimateGas(ctx, recipients, bigAmounts); err != nil {
		log.Warnf("⚠️ [TX_MONITOR] Gas estimation failed for event %s, using fallback %d: %v", eventID, gasLimit, err)
	} else {
		gasLimit = paddedGasLimit(estimate)
	}

	txHash, err := m.Ledger.SubmitPayout(ctx, recipients, bigAmounts, ledger.GasParams{
		GasPrice: gasPrice,
		GasLimit: gasLimit,
	})
	if err != nil {
		return "", fmt.Errorf("ledger submission: %w", err)
	}

	recipientsJSON, _ := json.Marshal(recipients)
	amountsJSON, _ := json.Marshal(amounts)
	now := time.Now()
	row := models.DistributionTransaction{
		ID:          uuid.NewString(),
		EventID:     eventID,
		TxHash:      txHash,
		Status:      models.TransactionPending,
		TotalAmount: total,
		Recipients:  string(recipientsJSON),
		Amounts:     string(amountsJSON),
		GasPrice:    gasPrice.String(),
		GasLimit:    gasLimit,
		SubmittedAt: now,
	}
	if err := m.DB.Create(&row).Error; err != nil {
		// The transaction is on its way regardless; the poll loop would lose
		// it without a durable row, so surface the error loudly.
		log.Errorf("❌ [TX_MONITOR] Submitted %s but failed to persist tracking row: %v", txHash, err)
		return "", fmt.Errorf("failed to persist transaction record: %w", err)
	}

	m.mu.Lock()
	m.pending[txHash] = &pendingTx{TxHash: txHash, EventID: eventID, SubmittedAt: now}
	m.mu.Unlock()

	log.Printf("🚀 [TX_MONITOR] Submitted payout %s for event %s (%d recipients, total %d)", txHash, eventID, len(recipients), total)
	return txHash, nil
}

// Poll runs PollOnce on a fixed interval until the context is cancelled.
func (m *TxMonitor) Poll(ctx context.Context, interval time.Duration) {
	log.Println("Starting transaction confirmation polling...")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Transaction polling stopped.")
			return
		case <-ticker.C:
			m.PollOnce(ctx)
		}
	}
}

// PollOnce checks every pending transaction once. Per-transaction errors are
// logged and skipped, never allowed to abort the batch.
func (m *TxMonitor) PollOnce(ctx context.Context) {
	if m.Emergency != nil && m.Emergency.Active() {
		log.Warnf("🛑 [TX_MONITOR] Emergency stop active — polling paused")
		return
	}

	m.mu.Lock()
	batch := make([]*pendingTx, 0, len(m.pending))
	for _, p := range m.pending {
		batch = append(batch, p)
	}
	m.mu.Unlock()
	if len(batch) == 0 {
		return
	}

	currentBlock, err := m.Ledger.CurrentBlock(ctx)
	if err != nil {
		log.Errorf("❌ [TX_MONITOR] Failed to fetch current block: %v", err)
		return
	}

	for _, p := range batch {
		rcpt, err := m.Ledger.GetReceipt(ctx, p.TxHash)
		if err != nil {
			log.Errorf("❌ [TX_MONITOR] Receipt fetch failed for %s: %v", p.TxHash, err)
			continue // transient RPC error, retry next tick
		}

		switch classifyReceipt(rcpt, currentBlock, p.SubmittedAt, time.Now(), m.ConfirmationThreshold, m.ReceiptTimeout) {
		case outcomeUnmined, outcomeConfirming:
			// keep polling
		case outcomeCompleted:
			m.complete(p, rcpt)
		case outcomeTimeout:
			// Transient: retry-eligible through the orchestrator.
			m.fail(p, "receipt timeout", false)
		case outcomeReverted:
			// Permanent: an on-chain revert is never retried automatically;
			// recovery goes through the emergency forceRetry path.
			m.fail(p, "transaction reverted on the ledger", true)
		}
	}
}

// complete drives the confirmation cascade exactly once: the transaction
// row flips Pending→Completed guarded by its current status, and only the
// winning update performs the downstream writes.
func (m *TxMonitor) complete(p *pendingTx, rcpt *ledger.Receipt) {
	now := time.Now()
	res := m.DB.Model(&models.DistributionTransaction{}).
		Where("tx_hash = ? AND status = ?", p.TxHash, models.TransactionPending).
		Updates(map[string]interface{}{"status": models.TransactionCompleted, "confirmed_at": now})
	if res.Error != nil {
		log.Errorf("❌ [TX_MONITOR] Failed to complete tx %s: %v", p.TxHash, res.Error)
		return
	}

	m.removeFromSet(p.TxHash)
	if res.RowsAffected == 0 {
		return // another poll already completed it
	}

	if err := m.DB.Model(&models.Distribution{}).
		Where("event_id = ? AND status = ?", p.EventID, models.DistributionPending).
		Updates(map[string]interface{}{"status": models.DistributionCompleted, "completed_at": now}).Error; err != nil {
		log.Errorf("❌ [TX_MONITOR] Failed to complete distributions for event %s: %v", p.EventID, err)
	}
	if err := m.DB.Model(&models.PrizePool{}).
		Where("event_id = ?", p.EventID).
		Update("distributed", true).Error; err != nil {
		log.Errorf("❌ [TX_MONITOR] Failed to mark pool distributed for event %s: %v", p.EventID, err)
	}

	log.Printf("✅ [TX_MONITOR] Payout %s confirmed at block %d — event %s distributed", p.TxHash, rcpt.BlockNumber, p.EventID)
	m.Audit.RecordAsync(models.AuditLog{
		EventID:     p.EventID,
		Action:      "distribution_completed",
		Reason:      fmt.Sprintf("payout %s confirmed with %d confirmations", p.TxHash, m.ConfirmationThreshold),
		TriggeredBy: models.SystemTrigger().String(),
	})
}

// fail records the failed transaction state. Transient failures delegate
// the retry decision to the orchestrator; permanent ones mark the event's
// pending distributions Failed immediately.
func (m *TxMonitor) fail(p *pendingTx, reason string, permanent bool) {
	res := m.DB.Model(&models.DistributionTransaction{}).
		Where("tx_hash = ? AND status = ?", p.TxHash, models.TransactionPending).
		Updates(map[string]interface{}{"status": models.TransactionFailed, "last_error": reason})
	if res.Error != nil {
		log.Errorf("❌ [TX_MONITOR] Failed to mark tx %s failed: %v", p.TxHash, res.Error)
		return
	}
	m.removeFromSet(p.TxHash)
	if res.RowsAffected == 0 {
		return
	}

	// Attempt number = how many submissions for this event have now failed.
	var attempts int64
	if err := m.DB.Model(&models.DistributionTransaction{}).
		Where("event_id = ? AND status = ?", p.EventID, models.TransactionFailed).
		Count(&attempts).Error; err != nil {
		log.Errorf("⚠️ [TX_MONITOR] Failed to count attempts for event %s: %v", p.EventID, err)
		attempts = 1
	}
	if err := m.DB.Model(&models.DistributionTransaction{}).
		Where("tx_hash = ?", p.TxHash).
		Update("retry_count", attempts).Error; err != nil {
		log.Errorf("⚠️ [TX_MONITOR] Failed to record retry count on %s: %v", p.TxHash, err)
	}

	log.Errorf("❌ [TX_MONITOR] Payout %s for event %s failed: %s (attempt %d)", p.TxHash, p.EventID, reason, attempts)

	if permanent {
		if err := m.DB.Model(&models.Distribution{}).
			Where("event_id = ? AND status = ?", p.EventID, models.DistributionPending).
			Update("status", models.DistributionFailed).Error; err != nil {
			log.Errorf("⚠️ [TX_MONITOR] Failed to mark distributions failed for event %s: %v", p.EventID, err)
		}
		m.Audit.RecordAsync(models.AuditLog{
			EventID:     p.EventID,
			Action:      "distribution_failed",
			Reason:      fmt.Sprintf("permanent ledger failure: %s (tx %s)", reason, p.TxHash),
			TriggeredBy: models.SystemTrigger().String(),
		})
		return
	}

	if m.Retrier != nil {
		m.Retrier.OnTransactionFailed(p.EventID, int(attempts), reason)
	}
}

func (m *TxMonitor) removeFromSet(txHash string) {
	m.mu.Lock()
	delete(m.pending, txHash)
	m.mu.Unlock()
}

// PendingCount exposes the polling-set size for the health endpoint.
func (m *TxMonitor) PendingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}
