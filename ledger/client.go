// ledger/client.go
package ledger

import (
	"context"
	"math/big"
)

// Receipt is the subset of a ledger transaction receipt the engine needs to
// classify an outcome.
type Receipt struct {
	Status      uint64 // 1 = success, 0 = reverted
	BlockNumber uint64
	GasUsed     uint64
}

// GasParams carries the gas settings computed before submission.
type GasParams struct {
	GasPrice *big.Int // wei
	GasLimit uint64
}

// Client is the payout ledger collaborator. The production implementation
// talks to the prize escrow contract over JSON-RPC; tests substitute a fake.
type Client interface {
	// SubmitPayout calls the escrow's batch payout and returns the tx hash.
	SubmitPayout(ctx context.Context, recipients []string, amounts []*big.Int, gas GasParams) (string, error)
	// GetReceipt returns the receipt for txHash, or (nil, nil) while the
	// transaction is still unmined.
	GetReceipt(ctx context.Context, txHash string) (*Receipt, error)
	CurrentBlock(ctx context.Context) (uint64, error)
	GasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, recipients []string, amounts []*big.Int) (uint64, error)
}
