// Package certifier handles the on-chain certification credential mint.
//
// When a trader crosses a certification threshold, the platform wallet
// submits awardCertification(trader, level) to the certification NFT
// contract and waits for the receipt. The transaction hash becomes the
// trader's credential token.
package certifier

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/quantumforge/platform/internal/reputation"
	"github.com/quantumforge/platform/internal/traces"
)

var (
	ErrInvalidPrivateKey = errors.New("certifier: invalid private key")
	ErrInvalidAddress    = errors.New("certifier: invalid trader address")
	ErrInvalidTier       = errors.New("certifier: tier has no on-chain level")
	ErrMintReverted      = errors.New("certifier: mint transaction reverted")
	ErrTimeout           = errors.New("certifier: operation timed out")
	ErrRPCConnection     = errors.New("certifier: RPC connection failed")
)

// MintError wraps mint failures with the step that failed and the tx hash
// when one was produced.
type MintError struct {
	Op     string
	TxHash string
	Err    error
}

func (e *MintError) Error() string {
	if e.TxHash != "" {
		return fmt.Sprintf("certifier: %s failed (tx: %s): %v", e.Op, e.TxHash, e.Err)
	}
	return fmt.Sprintf("certifier: %s failed: %v", e.Op, e.Err)
}

func (e *MintError) Unwrap() error { return e.Err }

// Minter issues certification credentials.
type Minter interface {
	Mint(ctx context.Context, traderAddr string, tier reputation.Tier) (string, error)
	Address() string
	Close() error
}

// EthClient abstracts the go-ethereum client for testing.
type EthClient interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	Close()
}

// Minimal ABI for the certification contract.
const certificationABI = `[
	{"inputs":[{"name":"trader","type":"address"},{"name":"level","type":"uint8"}],"name":"awardCertification","outputs":[],"type":"function"},
	{"anonymous":false,"inputs":[{"indexed":true,"name":"trader","type":"address"},{"indexed":false,"name":"level","type":"uint8"},{"indexed":false,"name":"tokenId","type":"uint256"}],"name":"CertificationAwarded","type":"event"}
]`

const (
	// DefaultGasLimit used when estimation fails.
	DefaultGasLimit = uint64(150000)

	// DefaultConfirmationTimeout bounds the receipt wait.
	DefaultConfirmationTimeout = 60 * time.Second

	// ConfirmationPollInterval between receipt checks.
	ConfirmationPollInterval = 2 * time.Second
)

// TierLevel maps a tier to the contract's CertificationLevel enum.
// Returns 0, false for TierNone and unknown tiers.
func TierLevel(t reputation.Tier) (uint8, bool) {
	switch t {
	case reputation.TierBronze:
		return 1, true
	case reputation.TierSilver:
		return 2, true
	case reputation.TierGold:
		return 3, true
	default:
		return 0, false
	}
}

// Config for creating a new contract minter.
type Config struct {
	RPCURL     string
	PrivateKey string // Hex, with or without 0x prefix
	ChainID    int64
	Contract   string // Certification NFT contract address
}

// Option configures the minter.
type Option func(*ContractMinter)

// WithClient sets a custom Ethereum client (useful for testing).
func WithClient(client EthClient) Option {
	return func(m *ContractMinter) {
		m.client = client
	}
}

// WithConfirmationTimeout overrides the receipt wait timeout.
func WithConfirmationTimeout(d time.Duration) Option {
	return func(m *ContractMinter) {
		m.confirmTimeout = d
	}
}

// ContractMinter mints certification credentials via the NFT contract.
type ContractMinter struct {
	client         EthClient
	privateKey     *ecdsa.PrivateKey
	address        common.Address
	chainID        *big.Int
	contract       common.Address
	contractABI    abi.ABI
	confirmTimeout time.Duration
}

var _ Minter = (*ContractMinter)(nil)

// New creates a minter from config. Dials the RPC endpoint unless a client
// is injected via WithClient.
func New(cfg Config, opts ...Option) (*ContractMinter, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPrivateKey, err)
	}

	publicKey, ok := privateKey.Public().(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: failed to derive public key", ErrInvalidPrivateKey)
	}

	parsedABI, err := abi.JSON(strings.NewReader(certificationABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse certification ABI: %w", err)
	}

	m := &ContractMinter{
		privateKey:     privateKey,
		address:        crypto.PubkeyToAddress(*publicKey),
		chainID:        big.NewInt(cfg.ChainID),
		contract:       common.HexToAddress(cfg.Contract),
		contractABI:    parsedABI,
		confirmTimeout: DefaultConfirmationTimeout,
	}

	for _, opt := range opts {
		opt(m)
	}

	if m.client == nil {
		client, err := ethclient.Dial(cfg.RPCURL)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRPCConnection, err)
		}
		m.client = client
	}

	return m, nil
}

func validateConfig(cfg Config) error {
	if cfg.RPCURL == "" {
		return fmt.Errorf("%w: RPC URL required", ErrRPCConnection)
	}
	key := strings.TrimPrefix(cfg.PrivateKey, "0x")
	if len(key) != 64 {
		return fmt.Errorf("%w: must be 64 hex characters", ErrInvalidPrivateKey)
	}
	if cfg.ChainID == 0 {
		return fmt.Errorf("chain ID required")
	}
	if cfg.Contract == "" {
		return fmt.Errorf("certification contract address required")
	}
	return nil
}

// Address returns the platform signing wallet's address.
func (m *ContractMinter) Address() string {
	return m.address.Hex()
}

// Mint submits awardCertification(trader, level) and waits for the receipt.
// Returns the transaction hash on success. Not idempotent: every successful
// call submits a fresh transaction, so callers must gate it on an actual
// tier increase.
func (m *ContractMinter) Mint(ctx context.Context, traderAddr string, tier reputation.Tier) (string, error) {
	level, ok := TierLevel(tier)
	if !ok {
		return "", ErrInvalidTier
	}
	if !common.IsHexAddress(traderAddr) {
		return "", ErrInvalidAddress
	}
	trader := common.HexToAddress(traderAddr)

	ctx, span := traces.StartSpan(ctx, "certifier.Mint",
		traces.TraderAddr(traderAddr), traces.Tier(string(tier)))
	defer span.End()

	data, err := m.contractABI.Pack("awardCertification", trader, level)
	if err != nil {
		return "", &MintError{Op: "pack", Err: err}
	}

	nonce, err := m.client.PendingNonceAt(ctx, m.address)
	if err != nil {
		return "", &MintError{Op: "nonce", Err: err}
	}

	gasPrice, err := m.client.SuggestGasPrice(ctx)
	if err != nil {
		return "", &MintError{Op: "gas_price", Err: err}
	}

	gasLimit, err := m.client.EstimateGas(ctx, ethereum.CallMsg{
		From: m.address,
		To:   &m.contract,
		Data: data,
	})
	if err != nil {
		gasLimit = DefaultGasLimit
	}

	tx := types.NewTransaction(nonce, m.contract, big.NewInt(0), gasLimit, gasPrice, data)

	signedTx, err := types.SignTx(tx, types.NewEIP155Signer(m.chainID), m.privateKey)
	if err != nil {
		return "", &MintError{Op: "sign", Err: err}
	}

	if err := m.client.SendTransaction(ctx, signedTx); err != nil {
		return "", &MintError{Op: "send", TxHash: signedTx.Hash().Hex(), Err: err}
	}

	txHash := signedTx.Hash().Hex()
	if err := m.waitForConfirmation(ctx, signedTx.Hash()); err != nil {
		return "", &MintError{Op: "confirm", TxHash: txHash, Err: err}
	}

	return txHash, nil
}

// waitForConfirmation polls for the receipt until mined or timeout.
func (m *ContractMinter) waitForConfirmation(ctx context.Context, hash common.Hash) error {
	ctx, cancel := context.WithTimeout(ctx, m.confirmTimeout)
	defer cancel()

	ticker := time.NewTicker(ConfirmationPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return ErrTimeout
			}
			return ctx.Err()

		case <-ticker.C:
			receipt, err := m.client.TransactionReceipt(ctx, hash)
			if err != nil {
				// Not yet mined.
				continue
			}
			if receipt.Status == 0 {
				return ErrMintReverted
			}
			return nil
		}
	}
}

// Close closes the underlying client connection.
func (m *ContractMinter) Close() error {
	if m.client != nil {
		m.client.Close()
	}
	return nil
}
