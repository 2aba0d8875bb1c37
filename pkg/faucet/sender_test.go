package faucet

import (
	"errors"
	"math/big"
	"strings"
	"testing"

	"github.com/ava-labs/libevm/common"
	"github.com/ava-labs/libevm/core/types"
	"github.com/ava-labs/libevm/crypto"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/testnet-dashboard/leaderboard-indexer/pkg/chainclient/testutils"
	"github.com/testnet-dashboard/leaderboard-indexer/pkg/metrics"
)

const testKey = "b71c71a67e1177ad4e901695e1b4b9ee17ae16c6668d313eac2f96dbcda3f291"

func newTestSender(t *testing.T, client *testutils.MockClient) (*Sender, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	require.NoError(t, err)

	s, err := NewSender(Config{
		PrivateKey: "0x" + testKey,
		Amount:     big.NewInt(1e17),
		Limits:     DefaultLimiterConfig(),
	}, client, zaptest.NewLogger(t).Sugar(), m)
	require.NoError(t, err)
	return s, reg
}

func assertCounter(t *testing.T, reg *prometheus.Registry, name, label string, want string) {
	t.Helper()
	expected := "# HELP " + name + " " + helpText[name] + "\n# TYPE " + name + " counter\n" + name + label + " " + want + "\n"
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), name))
}

var helpText = map[string]string{
	"leaderboard_faucet_drips_total":      "Faucet transfers by status",
	"leaderboard_faucet_rate_limit_total": "Faucet requests rejected by the rate limiter",
}

func TestNewSender_Validation(t *testing.T) {
	t.Parallel()

	_, err := NewSender(Config{Amount: big.NewInt(1)}, nil, nil, nil)
	require.ErrorIs(t, err, ErrFaucetDisabled)

	_, err = NewSender(Config{PrivateKey: testKey}, nil, nil, nil)
	require.ErrorIs(t, err, ErrInvalidAmount)

	_, err = NewSender(Config{PrivateKey: "zz", Amount: big.NewInt(1)}, nil, nil, nil)
	require.ErrorContains(t, err, "failed to parse faucet key")

	s, err := NewSender(Config{PrivateKey: testKey, Amount: big.NewInt(1)}, nil, nil, nil)
	require.NoError(t, err)
	key, err := crypto.HexToECDSA(testKey)
	require.NoError(t, err)
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey), s.Address())
}

func TestSender_Request(t *testing.T) {
	t.Parallel()

	client := &testutils.MockClient{}
	s, reg := newTestSender(t, client)
	to := common.HexToAddress("0x00000000000000000000000000000000000000AB")

	var sent *types.Transaction
	client.On("ChainID", mock.Anything).Return(big.NewInt(43113), nil).Once()
	client.On("PendingNonceAt", mock.Anything, s.Address()).Return(uint64(7), nil).Once()
	client.On("SuggestGasPrice", mock.Anything).Return(big.NewInt(25e9), nil).Once()
	client.On("SendTransaction", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { sent = args.Get(1).(*types.Transaction) }).
		Return(nil).Once()

	drip, err := s.Request(t.Context(), "1.2.3.4", to.Hex())
	require.NoError(t, err)

	require.NotNil(t, sent)
	assert.Equal(t, sent.Hash(), drip.TxHash)
	assert.Equal(t, uint64(7), drip.Nonce)
	assert.Equal(t, "100000000000000000", drip.Amount)
	assert.Equal(t, to, *sent.To())
	assert.Equal(t, uint64(transferGas), sent.Gas())

	signer := types.NewEIP155Signer(big.NewInt(43113))
	from, err := types.Sender(signer, sent)
	require.NoError(t, err)
	assert.Equal(t, s.Address(), from)

	assertCounter(t, reg, "leaderboard_faucet_drips_total", `{status="success"}`, "1")

	// second request for the same address inside 24h is rejected before touching the node
	_, err = s.Request(t.Context(), "5.6.7.8", to.Hex())
	require.ErrorIs(t, err, ErrRateLimited)

	client.AssertExpectations(t)
}

func TestSender_Request_InvalidAddress(t *testing.T) {
	t.Parallel()

	s, _ := newTestSender(t, &testutils.MockClient{})
	_, err := s.Request(t.Context(), "1.2.3.4", "not-an-address")
	require.ErrorContains(t, err, "invalid address")
}

func TestSender_Request_FailureBeforeSendFreesAddress(t *testing.T) {
	t.Parallel()

	client := &testutils.MockClient{}
	s, _ := newTestSender(t, client)
	addr := "0x00000000000000000000000000000000000000ab"

	client.On("ChainID", mock.Anything).Return(nil, errors.New("rpc down")).Once()
	_, err := s.Request(t.Context(), "1.2.3.4", addr)
	require.ErrorContains(t, err, "failed to get chain id")

	client.On("ChainID", mock.Anything).Return(big.NewInt(1), nil).Once()
	client.On("PendingNonceAt", mock.Anything, mock.Anything).Return(uint64(0), nil).Once()
	client.On("SuggestGasPrice", mock.Anything).Return(big.NewInt(1), nil).Once()
	client.On("SendTransaction", mock.Anything, mock.Anything).Return(nil).Once()

	_, err = s.Request(t.Context(), "1.2.3.4", addr)
	require.NoError(t, err)
	client.AssertExpectations(t)
}

func TestSender_Request_SendFailureKeepsLimit(t *testing.T) {
	t.Parallel()

	client := &testutils.MockClient{}
	s, _ := newTestSender(t, client)
	addr := "0x00000000000000000000000000000000000000ab"

	client.On("ChainID", mock.Anything).Return(big.NewInt(1), nil).Once()
	client.On("PendingNonceAt", mock.Anything, mock.Anything).Return(uint64(0), nil).Once()
	client.On("SuggestGasPrice", mock.Anything).Return(big.NewInt(1), nil).Once()
	client.On("SendTransaction", mock.Anything, mock.Anything).Return(errors.New("nonce too low")).Once()

	_, err := s.Request(t.Context(), "1.2.3.4", addr)
	require.ErrorContains(t, err, "failed to send transfer")

	_, err = s.Request(t.Context(), "1.2.3.4", addr)
	require.ErrorIs(t, err, ErrRateLimited)
	client.AssertExpectations(t)
}

func TestSender_Request_IPLimit(t *testing.T) {
	t.Parallel()

	client := &testutils.MockClient{}
	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	require.NoError(t, err)
	s, err := NewSender(Config{
		PrivateKey: testKey,
		Amount:     big.NewInt(1),
		Limits:     LimiterConfig{PerIP: 1, PerIPWindow: 60e9},
	}, client, nil, m)
	require.NoError(t, err)

	client.On("ChainID", mock.Anything).Return(big.NewInt(1), nil).Once()
	client.On("PendingNonceAt", mock.Anything, mock.Anything).Return(uint64(0), nil).Once()
	client.On("SuggestGasPrice", mock.Anything).Return(big.NewInt(1), nil).Once()
	client.On("SendTransaction", mock.Anything, mock.Anything).Return(nil).Once()

	_, err = s.Request(t.Context(), "9.9.9.9", "0x00000000000000000000000000000000000000aa")
	require.NoError(t, err)
	_, err = s.Request(t.Context(), "9.9.9.9", "0x00000000000000000000000000000000000000bb")
	require.ErrorIs(t, err, ErrRateLimited)

	assertCounter(t, reg, "leaderboard_faucet_rate_limit_total", `{type="ip"}`, "1")
}
