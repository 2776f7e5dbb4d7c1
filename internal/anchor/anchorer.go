package anchor

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"github.com/agritrace/provenance-anchor/internal/adapter"
	"github.com/agritrace/provenance-anchor/internal/domain"
	"github.com/agritrace/provenance-anchor/internal/logger"
)

// Anchorer writes digests onto the ledger and reads them back. The ledger is
// used purely as an immutable bulletin board: each anchor is a zero-value
// transaction from the service identity to itself whose data field carries
// the envelope.
type Anchorer interface {
	// Anchor submits a digest to the ledger and blocks until confirmation
	Anchor(ctx context.Context, digest domain.Digest, metadata map[string]string) (*Result, error)

	// Recover fetches a transaction and decodes its envelope
	Recover(ctx context.Context, txHash string) (*Recovery, error)

	// Balance returns the balance of an address (service identity if empty)
	Balance(ctx context.Context, address string) (*big.Int, error)

	// NetworkInfo returns read-only status of the ledger connection
	NetworkInfo(ctx context.Context) (*Network, error)

	// Close closes the underlying client connection
	Close()
}

// Result describes a confirmed anchor submission
type Result struct {
	TxHash            string
	ChainID           string
	BlockNumber       uint64
	BlockHash         string
	From              string
	To                string
	GasUsed           uint64
	EffectiveGasPrice *big.Int
	Status            domain.AnchorStatus
	Envelope          *Envelope
}

// Recovery describes a transaction read back from the ledger. Envelope is nil
// when the payload could not be decoded; confirmation and payload legibility
// are separate facts.
type Recovery struct {
	TxHash      string
	BlockNumber uint64
	BlockHash   string
	From        string
	To          string
	GasUsed     uint64
	Status      domain.AnchorStatus
	Envelope    *Envelope
}

// Network is the read-only status of the ledger connection
type Network struct {
	ChainID       *big.Int
	NetworkID     *big.Int
	LatestBlock   uint64
	SignerAddress string
	SignerBalance *big.Int
}

// Config holds anchoring parameters
type Config struct {
	// ConfirmTimeout bounds the wait for a receipt after submission
	ConfirmTimeout time.Duration
	// PollInterval is the delay between receipt polls
	PollInterval time.Duration
}

type anchorer struct {
	client  adapter.EthClient
	clock   adapter.Clock
	key     *ecdsa.PrivateKey
	address common.Address
	chainID *big.Int
	cfg     Config
}

// New creates an Anchorer signing with the given hex-encoded private key.
// The chain ID is fetched once at construction.
func New(ctx context.Context, client adapter.EthClient, privateKeyHex string, clock adapter.Clock, cfg Config) (Anchorer, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse signing key: %w", err)
	}

	chainID, err := client.ChainID(ctx)
	if err != nil {
		return nil, domain.NewLedgerError(domain.LedgerCauseNetwork,
			fmt.Errorf("failed to get chain ID: %w", err))
	}

	if cfg.ConfirmTimeout == 0 {
		cfg.ConfirmTimeout = 90 * time.Second
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 3 * time.Second
	}

	return &anchorer{
		client:  client,
		clock:   clock,
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
		chainID: chainID,
		cfg:     cfg,
	}, nil
}

// Anchor submits a digest to the ledger and blocks until the network reports
// confirmation. There is no retry loop here: a submission failure surfaces
// immediately and the caller decides whether to retry the whole operation
// (retrying re-submits and re-pays, it does not resume).
func (a *anchorer) Anchor(ctx context.Context, digest domain.Digest, metadata map[string]string) (*Result, error) {
	envelope := &Envelope{
		Version:   EnvelopeVersion,
		Timestamp: a.clock.Now().UTC(),
		Hash:      digest,
		Metadata:  metadata,
	}

	data, err := EncodeEnvelope(envelope)
	if err != nil {
		return nil, err
	}

	nonce, err := a.client.PendingNonceAt(ctx, a.address)
	if err != nil {
		return nil, domain.NewLedgerError(domain.LedgerCauseNetwork,
			fmt.Errorf("failed to get nonce: %w", err))
	}

	gasPrice, err := a.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, domain.NewLedgerError(domain.LedgerCauseNetwork,
			fmt.Errorf("failed to get gas price: %w", err))
	}

	gasLimit, err := a.client.EstimateGas(ctx, ethereum.CallMsg{
		From:  a.address,
		To:    &a.address,
		Value: big.NewInt(0),
		Data:  data,
	})
	if err != nil {
		return nil, domain.NewLedgerError(domain.LedgerCauseNetwork,
			fmt.Errorf("failed to estimate gas: %w", err))
	}

	// Pre-submit funds check so a drained identity fails with a clear cause
	// instead of an opaque node error.
	balance, err := a.client.BalanceAt(ctx, a.address, nil)
	if err != nil {
		return nil, domain.NewLedgerError(domain.LedgerCauseNetwork,
			fmt.Errorf("failed to get balance: %w", err))
	}
	cost := new(big.Int).Mul(gasPrice, new(big.Int).SetUint64(gasLimit))
	if balance.Cmp(cost) < 0 {
		return nil, domain.NewLedgerError(domain.LedgerCauseInsufficientFunds,
			fmt.Errorf("balance %s below estimated cost %s", balance, cost))
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &a.address,
		Value:    big.NewInt(0),
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     data,
	})

	signedTx, err := types.SignTx(tx, types.LatestSignerForChainID(a.chainID), a.key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}

	if err := a.client.SendTransaction(ctx, signedTx); err != nil {
		return nil, classifySubmitError(err)
	}

	txHash := signedTx.Hash()
	logger.InfoCtx(ctx, "Anchor transaction submitted",
		zap.String("tx_hash", txHash.Hex()),
		zap.String("digest", digest.String()),
		zap.Uint64("nonce", nonce))

	receipt, err := a.waitForReceipt(ctx, txHash)
	if err != nil {
		return nil, err
	}

	if receipt.Status == types.ReceiptStatusFailed {
		return nil, domain.NewLedgerError(domain.LedgerCauseReverted,
			fmt.Errorf("transaction %s reverted in block %d", txHash.Hex(), receipt.BlockNumber.Uint64()))
	}

	return &Result{
		TxHash:            txHash.Hex(),
		ChainID:           a.chainID.String(),
		BlockNumber:       receipt.BlockNumber.Uint64(),
		BlockHash:         receipt.BlockHash.Hex(),
		From:              a.address.Hex(),
		To:                a.address.Hex(),
		GasUsed:           receipt.GasUsed,
		EffectiveGasPrice: receipt.EffectiveGasPrice,
		Status:            domain.AnchorStatusConfirmed,
		Envelope:          envelope,
	}, nil
}

// waitForReceipt polls for the transaction receipt at a constant interval
// until it appears or the confirmation timeout elapses. Confirmation is
// observed, not driven: this never influences consensus.
func (a *anchorer) waitForReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	waitCtx, cancel := context.WithTimeout(ctx, a.cfg.ConfirmTimeout)
	defer cancel()

	receipt, err := backoff.RetryWithData(func() (*types.Receipt, error) {
		r, err := a.client.TransactionReceipt(waitCtx, txHash)
		if err != nil {
			if errors.Is(err, ethereum.NotFound) {
				return nil, fmt.Errorf("receipt not yet available")
			}
			return nil, backoff.Permanent(err)
		}
		return r, nil
	}, backoff.WithContext(backoff.NewConstantBackOff(a.cfg.PollInterval), waitCtx))
	if err != nil {
		return nil, domain.NewLedgerError(domain.LedgerCauseNetwork,
			fmt.Errorf("confirmation wait for %s failed: %w", txHash.Hex(), err))
	}

	return receipt, nil
}

// Recover fetches a transaction and its receipt, then decodes the payload.
// An undecodable payload yields receipt facts with a nil envelope.
func (a *anchorer) Recover(ctx context.Context, txHash string) (*Recovery, error) {
	if !domain.IsHexIdentifier(txHash) {
		return nil, domain.NewLedgerError(domain.LedgerCauseInvalidDigest,
			fmt.Errorf("invalid transaction hash format: %q", txHash))
	}

	hash := common.HexToHash(txHash)
	tx, isPending, err := a.client.TransactionByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return nil, domain.ErrAnchorNotFound
		}
		return nil, domain.NewLedgerError(domain.LedgerCauseNetwork,
			fmt.Errorf("failed to fetch transaction: %w", err))
	}
	if isPending {
		return nil, domain.ErrAnchorNotConfirmed
	}

	receipt, err := a.client.TransactionReceipt(ctx, hash)
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return nil, domain.ErrAnchorNotConfirmed
		}
		return nil, domain.NewLedgerError(domain.LedgerCauseNetwork,
			fmt.Errorf("failed to fetch receipt: %w", err))
	}

	status := domain.AnchorStatusConfirmed
	if receipt.Status == types.ReceiptStatusFailed {
		status = domain.AnchorStatusReverted
	}

	from := ""
	if sender, err := types.Sender(types.LatestSignerForChainID(a.chainID), tx); err == nil {
		from = sender.Hex()
	}
	to := ""
	if tx.To() != nil {
		to = tx.To().Hex()
	}

	recovery := &Recovery{
		TxHash:      hash.Hex(),
		BlockNumber: receipt.BlockNumber.Uint64(),
		BlockHash:   receipt.BlockHash.Hex(),
		From:        from,
		To:          to,
		GasUsed:     receipt.GasUsed,
		Status:      status,
	}

	envelope, err := DecodeEnvelope(tx.Data())
	if err != nil {
		logger.WarnCtx(ctx, "Anchor payload not decodable",
			zap.String("tx_hash", hash.Hex()),
			zap.Error(err))
		return recovery, nil
	}
	recovery.Envelope = envelope

	return recovery, nil
}

// Balance returns the balance of an address, defaulting to the service identity
func (a *anchorer) Balance(ctx context.Context, address string) (*big.Int, error) {
	addr := a.address
	if address != "" {
		if !common.IsHexAddress(address) {
			return nil, domain.NewValidationError(fmt.Sprintf("invalid address: %q", address))
		}
		addr = common.HexToAddress(address)
	}

	balance, err := a.client.BalanceAt(ctx, addr, nil)
	if err != nil {
		return nil, domain.NewLedgerError(domain.LedgerCauseNetwork,
			fmt.Errorf("failed to get balance: %w", err))
	}
	return balance, nil
}

// NetworkInfo returns read-only status of the ledger connection
func (a *anchorer) NetworkInfo(ctx context.Context) (*Network, error) {
	networkID, err := a.client.NetworkID(ctx)
	if err != nil {
		return nil, domain.NewLedgerError(domain.LedgerCauseNetwork,
			fmt.Errorf("failed to get network ID: %w", err))
	}

	latest, err := a.client.BlockNumber(ctx)
	if err != nil {
		return nil, domain.NewLedgerError(domain.LedgerCauseNetwork,
			fmt.Errorf("failed to get block number: %w", err))
	}

	balance, err := a.client.BalanceAt(ctx, a.address, nil)
	if err != nil {
		return nil, domain.NewLedgerError(domain.LedgerCauseNetwork,
			fmt.Errorf("failed to get balance: %w", err))
	}

	return &Network{
		ChainID:       a.chainID,
		NetworkID:     networkID,
		LatestBlock:   latest,
		SignerAddress: a.address.Hex(),
		SignerBalance: balance,
	}, nil
}

// Close closes the underlying client connection
func (a *anchorer) Close() {
	a.client.Close()
}

// classifySubmitError maps node submission errors onto the ledger error taxonomy
func classifySubmitError(err error) error {
	if strings.Contains(err.Error(), "insufficient funds") {
		return domain.NewLedgerError(domain.LedgerCauseInsufficientFunds, err)
	}
	return domain.NewLedgerError(domain.LedgerCauseNetwork, err)
}
