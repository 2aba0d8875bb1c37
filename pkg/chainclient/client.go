package chainclient

import (
	"context"
	"fmt"
	"math/big"
	"time"

	ethereum "github.com/ava-labs/libevm"
	"github.com/ava-labs/libevm/common"
	"github.com/ava-labs/libevm/core/types"
	"github.com/ava-labs/libevm/ethclient"

	"github.com/testnet-dashboard/leaderboard-indexer/pkg/metrics"
)

// Client wraps the libevm eth client and records RPC metrics.
type Client struct {
	eth     *ethclient.Client
	metrics *metrics.Metrics // nil if metrics disabled
}

var _ ChainClient = (*Client)(nil)

// Option configures the Client.
type Option func(*Client)

// WithMetrics enables metrics collection for the client.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// Dial connects to an HTTP or websocket JSON-RPC endpoint.
func Dial(ctx context.Context, url string, opts ...Option) (*Client, error) {
	eth, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}

	client := &Client{eth: eth}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

func (c *Client) observe(method string) func(error) {
	start := time.Now()
	c.metrics.IncRPCInFlight()
	return func(err error) {
		c.metrics.DecRPCInFlight()
		c.metrics.RecordRPCCall(method, err, time.Since(start).Seconds())
	}
}

func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	done := c.observe("eth_blockNumber")
	n, err := c.eth.BlockNumber(ctx)
	done(err)
	if err != nil {
		return 0, fmt.Errorf("get block number: %w", err)
	}
	return n, nil
}

func (c *Client) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	done := c.observe("eth_getLogs")
	logs, err := c.eth.FilterLogs(ctx, q)
	done(err)
	if err != nil {
		return nil, fmt.Errorf("get logs [%v, %v]: %w", q.FromBlock, q.ToBlock, err)
	}
	return logs, nil
}

func (c *Client) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	done := c.observe("eth_getBalance")
	bal, err := c.eth.BalanceAt(ctx, account, blockNumber)
	done(err)
	return bal, err
}

func (c *Client) NonceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (uint64, error) {
	done := c.observe("eth_getTransactionCount")
	nonce, err := c.eth.NonceAt(ctx, account, blockNumber)
	done(err)
	return nonce, err
}

func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	done := c.observe("eth_chainId")
	id, err := c.eth.ChainID(ctx)
	done(err)
	return id, err
}

func (c *Client) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	done := c.observe("eth_getTransactionCount")
	nonce, err := c.eth.PendingNonceAt(ctx, account)
	done(err)
	return nonce, err
}

func (c *Client) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	done := c.observe("eth_gasPrice")
	price, err := c.eth.SuggestGasPrice(ctx)
	done(err)
	return price, err
}

func (c *Client) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	done := c.observe("eth_sendRawTransaction")
	err := c.eth.SendTransaction(ctx, tx)
	done(err)
	return err
}

// Close closes the underlying RPC client.
func (c *Client) Close() {
	c.eth.Close()
}
