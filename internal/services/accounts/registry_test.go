package accounts

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"govdash/internal/domain/account"
	"govdash/pkg/errors"
	"govdash/pkg/logger"
)

var (
	cold = common.HexToAddress("0x00000000000000000000000000000000000000c0")
	hot  = common.HexToAddress("0x00000000000000000000000000000000000000a0")
)

func TestRegistry_RegisterAndGet(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(logger.Nop())

	require.NoError(t, r.Register(ctx, account.Account{
		Address:    cold,
		Type:       account.TypeLedger,
		ProxyRole:  account.RoleCold,
		MkrBalance: decimal.NewFromInt(10),
	}))
	require.NoError(t, r.Register(ctx, account.Account{Address: hot, Type: account.TypeMetaMask}))

	acc, err := r.Get(ctx, cold)
	require.NoError(t, err)
	assert.True(t, acc.HasProxy())
	assert.True(t, acc.IsHardware())

	list, err := r.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, hot, list[0].Address)

	_, err = r.Get(ctx, common.HexToAddress("0x01"))
	assert.True(t, errors.Is(err, errors.ErrAccountNotFound))
}

func TestRegistry_Active(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(logger.Nop())

	_, err := r.Active(ctx)
	assert.True(t, errors.Is(err, errors.ErrAccountNotFound))

	err = r.SetActive(ctx, hot)
	assert.True(t, errors.Is(err, errors.ErrAccountNotFound))

	require.NoError(t, r.Register(ctx, account.Account{Address: hot, Type: account.TypeProvider, ProxyRole: account.RoleHot}))
	require.NoError(t, r.SetActive(ctx, hot))

	acc, err := r.Active(ctx)
	require.NoError(t, err)
	assert.Equal(t, hot, acc.Address)
	assert.True(t, acc.HasProxy())
}

func TestRegistry_RegisterValidation(t *testing.T) {
	tests := []struct {
		name  string
		acc   account.Account
		field string
	}{
		{"zero address", account.Account{Type: account.TypeMetaMask}, "address"},
		{"unknown type", account.Account{Address: hot, Type: "PAPER"}, "type"},
		{"unknown role", account.Account{Address: hot, Type: account.TypeMetaMask, ProxyRole: "warm"}, "proxyRole"},
		{"negative balance", account.Account{Address: hot, Type: account.TypeMetaMask, MkrBalance: decimal.NewFromInt(-1)}, "mkrBalance"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewRegistry(logger.Nop()).Register(context.Background(), tt.acc)
			var verr *errors.ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}
