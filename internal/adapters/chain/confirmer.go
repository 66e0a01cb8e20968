package chain

import (
	"context"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"govdash/internal/domain/topic"
	"govdash/pkg/errors"
	"govdash/pkg/logger"
)

// Status of a submitted transaction
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusFailed    Status = "failed"
)

// ReceiptReader is the subset of ethclient.Client the confirmer uses
type ReceiptReader interface {
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

// Dialer opens a reader for a JSON-RPC endpoint
type Dialer func(ctx context.Context, rpcURL string) (ReceiptReader, error)

// DialEth connects with go-ethereum's ethclient
func DialEth(ctx context.Context, rpcURL string) (ReceiptReader, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// Confirmer reports whether proxy setup transactions made it on chain.
// Connections are opened per network on first use.
type Confirmer struct {
	mu            sync.Mutex
	readers       map[topic.Network]ReceiptReader
	endpoints     map[topic.Network]string
	dial          Dialer
	confirmations uint64
	log           *logger.Logger
}

// NewConfirmer creates a confirmer. endpoints maps networks to JSON-RPC
// URLs; networks without an endpoint report ErrUnavailable.
func NewConfirmer(endpoints map[topic.Network]string, confirmations uint64, dial Dialer, log *logger.Logger) *Confirmer {
	if dial == nil {
		dial = DialEth
	}
	if confirmations == 0 {
		confirmations = 1
	}
	return &Confirmer{
		readers:       make(map[topic.Network]ReceiptReader),
		endpoints:     endpoints,
		dial:          dial,
		confirmations: confirmations,
		log:           log.With("component", "chain_confirmer"),
	}
}

// Status looks up the receipt for txHash on network
func (c *Confirmer) Status(ctx context.Context, network topic.Network, txHash string) (Status, error) {
	if !isTxHash(txHash) {
		return "", errors.Wrapf(errors.ErrInvalidInput, "tx hash %q", txHash)
	}

	reader, err := c.reader(ctx, network)
	if err != nil {
		return "", err
	}

	receipt, err := reader.TransactionReceipt(ctx, common.HexToHash(txHash))
	if errors.Is(err, ethereum.NotFound) {
		return StatusPending, nil
	}
	if err != nil {
		return "", errors.Wrapf(err, "receipt %s", txHash)
	}

	if receipt.Status == types.ReceiptStatusFailed {
		return StatusFailed, nil
	}
	if receipt.BlockNumber == nil {
		return StatusPending, nil
	}

	tip, err := reader.BlockNumber(ctx)
	if err != nil {
		return "", errors.Wrap(err, "block number")
	}

	confs := new(big.Int).Sub(new(big.Int).SetUint64(tip), receipt.BlockNumber)
	confs.Add(confs, big.NewInt(1))
	if confs.Cmp(new(big.Int).SetUint64(c.confirmations)) < 0 {
		return StatusPending, nil
	}
	return StatusConfirmed, nil
}

func (c *Confirmer) reader(ctx context.Context, network topic.Network) (ReceiptReader, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if r, ok := c.readers[network]; ok {
		return r, nil
	}

	endpoint := c.endpoints[network]
	if endpoint == "" {
		return nil, errors.Wrapf(errors.ErrUnavailable, "no rpc endpoint for %s", network)
	}

	r, err := c.dial(ctx, endpoint)
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s rpc", network)
	}

	c.log.Infow("Connected to chain", "network", network)
	c.readers[network] = r
	return r, nil
}

// Close releases every opened connection
func (c *Confirmer) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for network, r := range c.readers {
		if closer, ok := r.(interface{ Close() }); ok {
			closer.Close()
		}
		delete(c.readers, network)
	}
}

func isTxHash(s string) bool {
	if !strings.HasPrefix(s, "0x") || len(s) != 66 {
		return false
	}
	for _, r := range s[2:] {
		if !strings.ContainsRune("0123456789abcdefABCDEF", r) {
			return false
		}
	}
	return true
}
