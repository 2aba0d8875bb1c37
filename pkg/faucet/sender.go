package faucet

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ava-labs/libevm/common"
	"github.com/ava-labs/libevm/core/types"
	"github.com/ava-labs/libevm/crypto"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/testnet-dashboard/leaderboard-indexer/pkg/chainclient"
	"github.com/testnet-dashboard/leaderboard-indexer/pkg/metrics"
)

// transferGas is the intrinsic gas of a plain value transfer.
const transferGas = 21_000

var (
	ErrFaucetDisabled = errors.New("faucet is disabled")
	ErrInvalidAmount  = errors.New("faucet amount must be positive")
)

// Config for the native-token faucet. An empty PrivateKey disables it.
type Config struct {
	PrivateKey string   // hex, with or without 0x
	Amount     *big.Int // wei per drip
	Limits     LimiterConfig
}

// Drip is the outcome of one successful transfer.
type Drip struct {
	To     common.Address `json:"to"`
	Amount string         `json:"amount"`
	TxHash common.Hash    `json:"txHash"`
	Nonce  uint64         `json:"nonce"`
}

// Sender signs and submits fixed-amount transfers from the faucet account.
type Sender struct {
	client  chainclient.TxSender
	key     *ecdsa.PrivateKey
	from    common.Address
	amount  *big.Int
	limiter *Limiter
	sem     *semaphore.Weighted
	log     *zap.SugaredLogger
	metrics *metrics.Metrics
}

// NewSender returns ErrFaucetDisabled when no key is configured.
func NewSender(cfg Config, client chainclient.TxSender, log *zap.SugaredLogger, m *metrics.Metrics) (*Sender, error) {
	if strings.TrimSpace(cfg.PrivateKey) == "" {
		return nil, ErrFaucetDisabled
	}
	if cfg.Amount == nil || cfg.Amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(cfg.PrivateKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse faucet key: %w", err)
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	return &Sender{
		client:  client,
		key:     key,
		from:    crypto.PubkeyToAddress(key.PublicKey),
		amount:  new(big.Int).Set(cfg.Amount),
		limiter: NewLimiter(cfg.Limits),
		sem:     semaphore.NewWeighted(1),
		log:     log,
		metrics: m,
	}, nil
}

// Address is the faucet account.
func (s *Sender) Address() common.Address {
	return s.from
}

// Request applies the IP and address limits, then sends a transfer to addr.
func (s *Sender) Request(ctx context.Context, ip, addr string) (Drip, error) {
	if !common.IsHexAddress(addr) {
		return Drip{}, fmt.Errorf("invalid address %q", addr)
	}
	to := common.HexToAddress(addr)
	key := strings.ToLower(to.Hex())

	if err := s.limiter.AllowIP(ip); err != nil {
		s.metrics.IncRateLimitHit("ip")
		s.log.Warnw("faucet rate limited", "kind", "ip", "ip", ip)
		return Drip{}, err
	}
	if err := s.limiter.AllowAddress(key); err != nil {
		s.metrics.IncRateLimitHit("address")
		s.log.Warnw("faucet rate limited", "kind", "address", "address", key)
		return Drip{}, err
	}

	drip, sent, err := s.send(ctx, to)
	s.metrics.RecordFaucetDrip(err)
	if err != nil {
		if !sent {
			s.limiter.Forget(key)
		}
		s.log.Errorw("faucet drip failed", "address", key, "error", err)
		return Drip{}, err
	}

	s.log.Infow("faucet drip sent", "address", key, "tx", drip.TxHash.Hex(), "nonce", drip.Nonce)
	return drip, nil
}

// send reports whether the transaction reached the node, even on error.
func (s *Sender) send(ctx context.Context, to common.Address) (Drip, bool, error) {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return Drip{}, false, err
	}
	defer s.sem.Release(1)

	chainID, err := s.client.ChainID(ctx)
	if err != nil {
		return Drip{}, false, fmt.Errorf("failed to get chain id: %w", err)
	}
	nonce, err := s.client.PendingNonceAt(ctx, s.from)
	if err != nil {
		return Drip{}, false, fmt.Errorf("failed to get nonce: %w", err)
	}
	gasPrice, err := s.client.SuggestGasPrice(ctx)
	if err != nil {
		return Drip{}, false, fmt.Errorf("failed to get gas price: %w", err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    s.amount,
		Gas:      transferGas,
		GasPrice: gasPrice,
	})
	signed, err := types.SignTx(tx, types.NewEIP155Signer(chainID), s.key)
	if err != nil {
		return Drip{}, false, fmt.Errorf("failed to sign transfer: %w", err)
	}
	if err := s.client.SendTransaction(ctx, signed); err != nil {
		return Drip{}, true, fmt.Errorf("failed to send transfer: %w", err)
	}

	return Drip{
		To:     to,
		Amount: s.amount.String(),
		TxHash: signed.Hash(),
		Nonce:  nonce,
	}, true, nil
}
