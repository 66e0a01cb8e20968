package chain

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"govdash/internal/domain/topic"
	"govdash/pkg/errors"
	"govdash/pkg/logger"
)

const txHash = "0x5c504ed432cb51138bcf09aa5e8a410dd4a1e204ef84bfed1be16dfba1b22060"

type MockReader struct {
	mock.Mock
}

func (m *MockReader) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	args := m.Called(ctx, hash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.Receipt), args.Error(1)
}

func (m *MockReader) BlockNumber(ctx context.Context) (uint64, error) {
	args := m.Called(ctx)
	return args.Get(0).(uint64), args.Error(1)
}

func newConfirmer(reader ReceiptReader, confirmations uint64) *Confirmer {
	dial := func(context.Context, string) (ReceiptReader, error) { return reader, nil }
	return NewConfirmer(map[topic.Network]string{topic.Kovan: "http://kovan.local"}, confirmations, dial, logger.Nop())
}

func TestConfirmer_Status(t *testing.T) {
	tests := []struct {
		name    string
		receipt *types.Receipt
		err     error
		tip     uint64
		want    Status
	}{
		{"not mined", nil, ethereum.NotFound, 0, StatusPending},
		{"reverted", &types.Receipt{Status: types.ReceiptStatusFailed, BlockNumber: big.NewInt(10)}, nil, 10, StatusFailed},
		{"too few confirmations", &types.Receipt{Status: types.ReceiptStatusSuccessful, BlockNumber: big.NewInt(10)}, nil, 10, StatusPending},
		{"confirmed", &types.Receipt{Status: types.ReceiptStatusSuccessful, BlockNumber: big.NewInt(10)}, nil, 11, StatusConfirmed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reader := new(MockReader)
			reader.On("TransactionReceipt", mock.Anything, common.HexToHash(txHash)).Return(tt.receipt, tt.err)
			reader.On("BlockNumber", mock.Anything).Return(tt.tip, nil).Maybe()

			status, err := newConfirmer(reader, 2).Status(context.Background(), topic.Kovan, txHash)
			require.NoError(t, err)
			assert.Equal(t, tt.want, status)
		})
	}
}

func TestConfirmer_Errors(t *testing.T) {
	reader := new(MockReader)
	reader.On("TransactionReceipt", mock.Anything, mock.Anything).Return(nil, errors.New("rpc down"))
	c := newConfirmer(reader, 1)

	_, err := c.Status(context.Background(), topic.Kovan, "0x1234")
	assert.True(t, errors.Is(err, errors.ErrInvalidInput))

	_, err = c.Status(context.Background(), topic.Mainnet, txHash)
	assert.True(t, errors.Is(err, errors.ErrUnavailable))

	_, err = c.Status(context.Background(), topic.Kovan, txHash)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rpc down")
}

func TestConfirmer_DialsOncePerNetwork(t *testing.T) {
	reader := new(MockReader)
	reader.On("TransactionReceipt", mock.Anything, mock.Anything).Return(nil, ethereum.NotFound)

	dials := 0
	dial := func(context.Context, string) (ReceiptReader, error) {
		dials++
		return reader, nil
	}
	c := NewConfirmer(map[topic.Network]string{topic.Kovan: "http://kovan.local"}, 1, dial, logger.Nop())

	for i := 0; i < 3; i++ {
		_, err := c.Status(context.Background(), topic.Kovan, txHash)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, dials)
}
