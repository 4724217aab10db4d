package certifier

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantumforge/platform/internal/reputation"
)

const (
	testKey      = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"
	testContract = "0xF5322EB08282c7DeD91CcD2CA545ef146b4C5021"
	testTrader   = "0x1111111111111111111111111111111111111111"
)

// fakeClient implements EthClient without touching the network.
type fakeClient struct {
	nonce         uint64
	nonceErr      error
	sendErr       error
	receiptStatus uint64
	receiptErr    error
	sentTx        *types.Transaction
}

func (f *fakeClient) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return f.nonce, f.nonceErr
}

func (f *fakeClient) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (f *fakeClient) EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error) {
	return 0, errors.New("estimation unavailable") // Forces the default gas limit path
}

func (f *fakeClient) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sentTx = tx
	return nil
}

func (f *fakeClient) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	if f.receiptErr != nil {
		return nil, f.receiptErr
	}
	return &types.Receipt{Status: f.receiptStatus, BlockNumber: big.NewInt(42)}, nil
}

func (f *fakeClient) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	return nil, nil
}

func (f *fakeClient) Close() {}

func newTestMinter(t *testing.T, client EthClient) *ContractMinter {
	t.Helper()
	m, err := New(Config{
		RPCURL:     "https://sepolia.example.org",
		PrivateKey: testKey,
		ChainID:    11155111,
		Contract:   testContract,
	}, WithClient(client), WithConfirmationTimeout(5*time.Second))
	require.NoError(t, err)
	return m
}

func TestTierLevel(t *testing.T) {
	tests := []struct {
		tier  reputation.Tier
		level uint8
		ok    bool
	}{
		{reputation.TierBronze, 1, true},
		{reputation.TierSilver, 2, true},
		{reputation.TierGold, 3, true},
		{reputation.TierNone, 0, false},
		{reputation.Tier("Platinum"), 0, false},
	}
	for _, tt := range tests {
		level, ok := TierLevel(tt.tier)
		assert.Equal(t, tt.level, level, "tier %q", tt.tier)
		assert.Equal(t, tt.ok, ok, "tier %q", tt.tier)
	}
}

func TestMint_Success(t *testing.T) {
	client := &fakeClient{nonce: 7, receiptStatus: 1}
	m := newTestMinter(t, client)

	txHash, err := m.Mint(context.Background(), testTrader, reputation.TierBronze)
	require.NoError(t, err)
	assert.NotEmpty(t, txHash)
	require.NotNil(t, client.sentTx)
	assert.Equal(t, uint64(7), client.sentTx.Nonce())
	assert.Equal(t, common.HexToAddress(testContract), *client.sentTx.To())
	// Estimation failed in the fake, so the default limit applies.
	assert.Equal(t, DefaultGasLimit, client.sentTx.Gas())
	assert.Equal(t, txHash, client.sentTx.Hash().Hex())
}

func TestMint_InvalidTier(t *testing.T) {
	m := newTestMinter(t, &fakeClient{receiptStatus: 1})

	_, err := m.Mint(context.Background(), testTrader, reputation.TierNone)
	assert.ErrorIs(t, err, ErrInvalidTier)
}

func TestMint_InvalidAddress(t *testing.T) {
	m := newTestMinter(t, &fakeClient{receiptStatus: 1})

	_, err := m.Mint(context.Background(), "not-an-address", reputation.TierGold)
	assert.ErrorIs(t, err, ErrInvalidAddress)
}

func TestMint_SendFailure(t *testing.T) {
	client := &fakeClient{sendErr: errors.New("rpc: connection refused")}
	m := newTestMinter(t, client)

	_, err := m.Mint(context.Background(), testTrader, reputation.TierSilver)
	require.Error(t, err)

	var me *MintError
	require.ErrorAs(t, err, &me)
	assert.Equal(t, "send", me.Op)
	assert.NotEmpty(t, me.TxHash)
}

func TestMint_Reverted(t *testing.T) {
	client := &fakeClient{receiptStatus: 0}
	m := newTestMinter(t, client)

	_, err := m.Mint(context.Background(), testTrader, reputation.TierGold)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMintReverted)

	var me *MintError
	require.ErrorAs(t, err, &me)
	assert.Equal(t, "confirm", me.Op)
}

func TestMint_NonceFailure(t *testing.T) {
	client := &fakeClient{nonceErr: errors.New("rpc down")}
	m := newTestMinter(t, client)

	_, err := m.Mint(context.Background(), testTrader, reputation.TierBronze)
	var me *MintError
	require.ErrorAs(t, err, &me)
	assert.Equal(t, "nonce", me.Op)
	assert.Empty(t, me.TxHash)
}

func TestValidateConfig(t *testing.T) {
	valid := Config{
		RPCURL:     "https://sepolia.example.org",
		PrivateKey: testKey,
		ChainID:    11155111,
		Contract:   testContract,
	}

	assert.NoError(t, validateConfig(valid))

	withPrefix := valid
	withPrefix.PrivateKey = "0x" + testKey
	assert.NoError(t, validateConfig(withPrefix))

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing RPC URL", func(c *Config) { c.RPCURL = "" }},
		{"missing private key", func(c *Config) { c.PrivateKey = "" }},
		{"short private key", func(c *Config) { c.PrivateKey = "abc123" }},
		{"missing chain ID", func(c *Config) { c.ChainID = 0 }},
		{"missing contract", func(c *Config) { c.Contract = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			assert.Error(t, validateConfig(cfg))
		})
	}
}

func TestMintError_Unwrap(t *testing.T) {
	inner := errors.New("boom")
	err := &MintError{Op: "send", TxHash: "0xabc", Err: inner}
	assert.True(t, errors.Is(err, inner))
	assert.Contains(t, err.Error(), "0xabc")
}
