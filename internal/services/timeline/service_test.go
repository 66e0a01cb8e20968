package timeline

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"govdash/internal/domain/account"
	"govdash/internal/domain/topic"
	"govdash/internal/events"
	"govdash/internal/services/accounts"
	"govdash/pkg/errors"
	"govdash/pkg/logger"
)

type staticStore map[topic.Network]events.TopicsState

func (s staticStore) Get(network topic.Network) (events.TopicsState, bool) {
	st, ok := s[network]
	return st, ok
}

var now = time.Date(2018, 11, 1, 12, 0, 0, 0, time.UTC)

func feed() topic.Topics {
	return topic.Topics{
		{
			Topic:        "Stability Fee",
			Key:          "fee",
			Active:       true,
			EndTimestamp: now.Add(5 * time.Hour).UnixMilli(),
			Proposals: []topic.Proposal{
				{Title: "Raise Fee to 1.5%", Source: common.HexToAddress("0x01"), EndTimestamp: now.Add(5 * time.Hour).UnixMilli()},
				{Title: "Keep Fee", Source: common.HexToAddress("0x02"), EndTimestamp: now.Add(-72 * time.Hour).UnixMilli()},
			},
		},
		{
			Topic:        "Add Collateral",
			Key:          "collateral",
			EndTimestamp: now.Add(-72 * time.Hour).UnixMilli(),
		},
	}
}

func newService(t *testing.T, store TopicsReader, reg account.Registry) *Service {
	t.Helper()
	s := NewService(store, reg, logger.Nop())
	s.now = func() time.Time { return now }
	return s
}

func TestBuild_KeepsBackendOrderAndLinks(t *testing.T) {
	store := staticStore{topic.Mainnet: {
		Network:   topic.Mainnet,
		Topics:    feed(),
		UpdatedAt: now.Add(-2 * time.Minute),
	}}
	page, err := newService(t, store, nil).Build(context.Background(), topic.Mainnet, nil)
	require.NoError(t, err)

	require.Len(t, page.Topics, 2)
	assert.Equal(t, "fee", page.Topics[0].Key)
	assert.Equal(t, "collateral", page.Topics[1].Key)
	assert.Equal(t, "2 minutes ago", page.UpdatedAt)
	assert.Equal(t, 1, page.ActiveTopics)
	assert.Equal(t, 2, page.ProposalCount)

	fee := page.Topics[0]
	assert.False(t, fee.Ended)
	assert.Equal(t, "ends 5 hours from now", fee.EndsIn)
	require.Len(t, fee.Proposals, 2)
	assert.Equal(t, "/stability-fee/raise-fee-to-1-5", fee.Proposals[0].Link)
	assert.True(t, fee.Proposals[1].Ended)
	assert.Equal(t, "ended 3 days ago", fee.Proposals[1].EndsIn)

	assert.Empty(t, page.Topics[1].Proposals)
	assert.False(t, page.CanVote)
	assert.Nil(t, page.Voter)
}

func TestBuild_FetchingAndError(t *testing.T) {
	store := staticStore{topic.Kovan: {Network: topic.Kovan, Fetching: true, Error: "backend down"}}
	page, err := newService(t, store, nil).Build(context.Background(), topic.Kovan, nil)
	require.NoError(t, err)
	assert.True(t, page.Fetching)
	assert.Equal(t, "backend down", page.Error)
	assert.Empty(t, page.Topics)
	assert.Empty(t, page.UpdatedAt)
}

func TestBuild_CanVote(t *testing.T) {
	ctx := context.Background()
	reg := accounts.NewRegistry(logger.Nop())
	cold := common.HexToAddress("0xc0")
	plain := common.HexToAddress("0xd0")
	require.NoError(t, reg.Register(ctx, account.Account{
		Address:    cold,
		Type:       account.TypeLedger,
		ProxyRole:  account.RoleCold,
		MkrBalance: decimal.RequireFromString("1234.5"),
	}))
	require.NoError(t, reg.Register(ctx, account.Account{Address: plain, Type: account.TypeMetaMask}))

	s := newService(t, staticStore{}, reg)

	// no active account yet
	page, err := s.Build(ctx, topic.Mainnet, nil)
	require.NoError(t, err)
	assert.False(t, page.CanVote)

	require.NoError(t, reg.SetActive(ctx, cold))
	page, err = s.Build(ctx, topic.Mainnet, nil)
	require.NoError(t, err)
	assert.True(t, page.CanVote)
	require.NotNil(t, page.Voter)
	assert.Equal(t, "1,234.5", page.Voter.MkrBalance)
	assert.True(t, page.Voter.Hardware)

	page, err = s.Build(ctx, topic.Mainnet, &plain)
	require.NoError(t, err)
	assert.False(t, page.CanVote)
	require.NotNil(t, page.Voter)
	assert.False(t, page.Voter.Hardware)

	stranger := common.HexToAddress("0xee")
	_, err = s.Build(ctx, topic.Mainnet, &stranger)
	assert.True(t, errors.Is(err, errors.ErrAccountNotFound))
}

func TestBuild_UnknownNetwork(t *testing.T) {
	_, err := newService(t, staticStore{}, nil).Build(context.Background(), topic.Network("ropsten"), nil)
	assert.True(t, errors.Is(err, errors.ErrUnknownNetwork))
}
