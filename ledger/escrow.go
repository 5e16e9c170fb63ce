// ledger/escrow.go
package ledger

import (
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Minimal ABI for PrizeEscrow.distributePrizes
const escrowDistributeABI = `[
	{"name":"distributePrizes","type":"function","inputs":[
		{"name":"recipients","type":"address[]"},
		{"name":"amounts","type":"uint256[]"}
	],"outputs":[]}
]`

// EscrowClient submits batch payouts to the PrizeEscrow contract. The
// executor key's address must hold EXECUTOR_ROLE on the contract; gas is
// paid by that account.
type EscrowClient struct {
	client   *ethclient.Client
	contract common.Address
	key      *ecdsa.PrivateKey
	from     common.Address
	chainID  *big.Int
	abi      abi.ABI
}

// Dial connects to the ledger RPC and prepares the executor signer.
func Dial(ctx context.Context, rpcURL, escrowAddr, executorPrivateKeyHex string) (*EscrowClient, error) {
	if rpcURL == "" || escrowAddr == "" || executorPrivateKeyHex == "" {
		return nil, fmt.Errorf("rpc_url, escrow_address and executor_private_key are required")
	}

	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}

	keyHex := strings.TrimPrefix(executorPrivateKeyHex, "0x")
	keyBuf, err := hex.DecodeString(keyHex)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("decode executor key: %w", err)
	}
	key, err := crypto.ToECDSA(keyBuf)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("to ecdsa: %w", err)
	}

	chainID, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("chain id: %w", err)
	}

	parsed, err := abi.JSON(strings.NewReader(escrowDistributeABI))
	if err != nil {
		client.Close()
		return nil, err
	}

	return &EscrowClient{
		client:   client,
		contract: common.HexToAddress(escrowAddr),
		key:      key,
		from:     crypto.PubkeyToAddress(key.PublicKey),
		chainID:  chainID,
		abi:      parsed,
	}, nil
}

func (c *EscrowClient) Close() {
	c.client.Close()
}

func (c *EscrowClient) packDistribute(recipients []string, amounts []*big.Int) ([]byte, error) {
	addrs := make([]common.Address, len(recipients))
	for i, r := range recipients {
		if !common.IsHexAddress(r) {
			return nil, fmt.Errorf("invalid recipient address: %s", r)
		}
		addrs[i] = common.HexToAddress(r)
	}
	data, err := c.abi.Pack("distributePrizes", addrs, amounts)
	if err != nil {
		return nil, fmt.Errorf("pack distributePrizes: %w", err)
	}
	return data, nil
}

// SubmitPayout signs and broadcasts distributePrizes(recipients, amounts).
func (c *EscrowClient) SubmitPayout(ctx context.Context, recipients []string, amounts []*big.Int, gas GasParams) (string, error) {
	data, err := c.packDistribute(recipients, amounts)
	if err != nil {
		return "", err
	}

	nonce, err := c.client.PendingNonceAt(ctx, c.from)
	if err != nil {
		return "", fmt.Errorf("pending nonce: %w", err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gas.GasPrice,
		Gas:      gas.GasLimit,
		To:       &c.contract,
		Value:    big.NewInt(0),
		Data:     data,
	})
	signed, err := types.SignTx(tx, types.NewEIP155Signer(c.chainID), c.key)
	if err != nil {
		return "", fmt.Errorf("sign tx: %w", err)
	}
	if err := c.client.SendTransaction(ctx, signed); err != nil {
		return "", fmt.Errorf("send tx: %w", err)
	}
	return signed.Hash().Hex(), nil
}

// GetReceipt returns (nil, nil) while the transaction is still unmined.
func (c *EscrowClient) GetReceipt(ctx context.Context, txHash string) (*Receipt, error) {
	receipt, err := c.client.TransactionReceipt(ctx, common.HexToHash(txHash))
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("transaction receipt: %w", err)
	}
	return &Receipt{
		Status:      receipt.Status,
		BlockNumber: receipt.BlockNumber.Uint64(),
		GasUsed:     receipt.GasUsed,
	}, nil
}

func (c *EscrowClient) CurrentBlock(ctx context.Context) (uint64, error) {
	return c.client.BlockNumber(ctx)
}

func (c *EscrowClient) GasPrice(ctx context.Context) (*big.Int, error) {
	return c.client.SuggestGasPrice(ctx)
}

func (c *EscrowClient) EstimateGas(ctx context.Context, recipients []string, amounts []*big.Int) (uint64, error) {
	data, err := c.packDistribute(recipients, amounts)
	if err != nil {
		return 0, err
	}
	return c.client.EstimateGas(ctx, ethereum.CallMsg{
		From: c.from,
		To:   &c.contract,
		Data: data,
	})
}
