package proxysetup

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"govdash/internal/domain/account"
	"govdash/internal/domain/proxy"
	"govdash/internal/domain/topic"
	"govdash/internal/events"
	"govdash/internal/repository/memory"
	"govdash/internal/services/accounts"
	"govdash/pkg/errors"
	"govdash/pkg/logger"
)

var (
	coldAddr = common.HexToAddress("0x00000000000000000000000000000000000000c0")
	hotAddr  = common.HexToAddress("0x00000000000000000000000000000000000000a0")
)

type fixture struct {
	svc      *Service
	repo     *memory.ProxySessionRepository
	registry *accounts.Registry
	rec      *events.Recorder
}

func newFixture(t *testing.T, withRegistry bool) *fixture {
	t.Helper()

	f := &fixture{
		repo: memory.NewProxySessionRepository(),
		rec:  events.NewRecorder(),
	}

	var reg account.Registry
	if withRegistry {
		f.registry = accounts.NewRegistry(logger.Nop())
		ctx := context.Background()
		require.NoError(t, f.registry.Register(ctx, account.Account{Address: coldAddr, Type: account.TypeLedger, ProxyRole: account.RoleCold}))
		require.NoError(t, f.registry.Register(ctx, account.Account{Address: hotAddr, Type: account.TypeMetaMask, ProxyRole: account.RoleHot}))
		reg = f.registry
	}

	f.svc = NewService(f.repo, reg, f.rec, time.Hour, logger.Nop())
	return f
}

// walk drives a fresh session up to and including target
func (f *fixture) walk(t *testing.T, target proxy.Step) *proxy.Session {
	t.Helper()
	ctx := context.Background()

	session, err := f.svc.Open(ctx, topic.Kovan)
	require.NoError(t, err)
	id := session.ID

	steps := []func() (*proxy.Session, error){
		func() (*proxy.Session, error) { return f.svc.Begin(ctx, id) },
		func() (*proxy.Session, error) { return f.svc.InitiateLink(ctx, id, coldAddr, hotAddr, "0xinit") },
		func() (*proxy.Session, error) { return f.svc.ConfirmInitiate(ctx, id) },
		func() (*proxy.Session, error) { return f.svc.ApproveLink(ctx, id, "0xapprove") },
		func() (*proxy.Session, error) { return f.svc.Lock(ctx, id, decimal.NewFromFloat(1.5), "0xlock") },
		func() (*proxy.Session, error) { return f.svc.ConfirmLock(ctx, id) },
	}
	for i := 0; i < target.Index(); i++ {
		session, err = steps[i]()
		require.NoError(t, err, "step %d", i+1)
	}
	f.rec.Reset()
	return session
}

func TestService_OpenStartsCleared(t *testing.T) {
	f := newFixture(t, false)

	session, err := f.svc.Open(context.Background(), topic.Mainnet)
	require.NoError(t, err)
	assert.Equal(t, proxy.StepNone, session.State.Step)
	assert.Equal(t, topic.Mainnet, session.Network)

	require.Len(t, f.rec.Events(), 1)
	e := f.rec.Events()[0]
	assert.Equal(t, events.ProxyClear, e.Type)
	assert.Equal(t, session.ID.String(), e.SessionID)

	_, err = f.svc.Open(context.Background(), topic.Network("ropsten"))
	assert.True(t, errors.Is(err, errors.ErrUnknownNetwork))
}

func TestService_FullWalkthrough(t *testing.T) {
	f := newFixture(t, true)
	session := f.walk(t, proxy.StepSummary)

	st := session.State
	assert.Equal(t, proxy.StepSummary, st.Step)
	assert.Equal(t, coldAddr, *st.ColdAddress)
	assert.Equal(t, hotAddr, *st.HotAddress)
	assert.Equal(t, "0xinit", st.InitiateLinkTxHash)
	assert.Equal(t, "0xapprove", st.ApproveLinkTxHash)
	assert.Equal(t, "0xlock", st.SendMkrTxHash)
	assert.True(t, decimal.NewFromFloat(1.5).Equal(*st.SendMkrAmount))

	stored, err := f.svc.Get(context.Background(), session.ID)
	require.NoError(t, err)
	assert.Equal(t, proxy.StepSummary, stored.State.Step)
}

func TestService_AdvanceDispatchesTransition(t *testing.T) {
	f := newFixture(t, false)
	session := f.walk(t, proxy.StepLink)

	_, err := f.svc.InitiateLink(context.Background(), session.ID, coldAddr, hotAddr, "0xinit")
	require.NoError(t, err)

	require.Len(t, f.rec.Events(), 1)
	e := f.rec.Events()[0]
	assert.Equal(t, events.ProxyAdvance, e.Type)
	assert.Equal(t, session.ID.String(), e.SessionID)

	p, ok := e.Payload.(AdvancePayload)
	require.True(t, ok)
	assert.Equal(t, proxy.StepLink, p.From)
	assert.Equal(t, proxy.StepInitiate, p.To)
	assert.Equal(t, "0xinit", p.Payload.TxHash)
}

func TestService_AdvanceRejectsSkips(t *testing.T) {
	f := newFixture(t, false)
	session := f.walk(t, proxy.StepLink)

	_, err := f.svc.Advance(context.Background(), session.ID, proxy.StepLock, proxy.Payload{TxHash: "0x1"})
	assert.True(t, errors.Is(err, errors.ErrInvalidTransition))
	assert.Empty(t, f.rec.Events())

	stored, err := f.svc.Get(context.Background(), session.ID)
	require.NoError(t, err)
	assert.Equal(t, proxy.StepLink, stored.State.Step, "rejected advance leaves state untouched")
}

func TestService_SameStepIsNoop(t *testing.T) {
	f := newFixture(t, false)
	session := f.walk(t, proxy.StepInitiate)

	got, err := f.svc.Advance(context.Background(), session.ID, proxy.StepInitiate, proxy.Payload{TxHash: "0xother"})
	require.NoError(t, err)
	assert.Equal(t, "0xinit", got.State.InitiateLinkTxHash)
	assert.Empty(t, f.rec.Events())
}

func TestService_UnknownAccountsRejected(t *testing.T) {
	f := newFixture(t, true)
	session := f.walk(t, proxy.StepLink)

	stranger := common.HexToAddress("0x00000000000000000000000000000000000000ee")
	_, err := f.svc.InitiateLink(context.Background(), session.ID, stranger, hotAddr, "0xinit")
	assert.True(t, errors.Is(err, errors.ErrAccountNotFound))
}

func TestService_MissingSession(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	id := uuid.New()

	_, err := f.svc.Begin(ctx, id)
	assert.True(t, errors.Is(err, errors.ErrSessionNotFound))
	_, err = f.svc.Reset(ctx, id)
	assert.True(t, errors.Is(err, errors.ErrSessionNotFound))
	assert.True(t, errors.Is(f.svc.Close(ctx, id), errors.ErrSessionNotFound))
}

func TestService_ExpiredSessionReleasesLock(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)
	session := f.walk(t, proxy.StepLink)

	_, held := f.svc.locks.Load(session.ID)
	require.True(t, held)

	// the repository TTL removes the session behind the service's back
	require.NoError(t, f.repo.Delete(ctx, session.ID))

	_, err := f.svc.Advance(ctx, session.ID, proxy.StepInitiate, proxy.Payload{})
	assert.True(t, errors.Is(err, errors.ErrSessionNotFound))

	_, held = f.svc.locks.Load(session.ID)
	assert.False(t, held)
}

func TestService_ResetFromEveryStep(t *testing.T) {
	steps := []proxy.Step{
		proxy.StepNone, proxy.StepLink, proxy.StepInitiate, proxy.StepApprove,
		proxy.StepLockInput, proxy.StepLock, proxy.StepSummary,
	}
	for _, step := range steps {
		t.Run(step.String(), func(t *testing.T) {
			f := newFixture(t, false)
			session := f.walk(t, step)

			got, err := f.svc.Reset(context.Background(), session.ID)
			require.NoError(t, err)
			assert.Equal(t, proxy.State{}, got.State)
			assert.Equal(t, []events.Type{events.ProxyClear}, f.rec.Types())

			stored, err := f.svc.Get(context.Background(), session.ID)
			require.NoError(t, err)
			assert.Equal(t, proxy.StepNone, stored.State.Step)
		})
	}
}

func TestService_DismissOnlyFromSummary(t *testing.T) {
	ctx := context.Background()

	f := newFixture(t, false)
	session := f.walk(t, proxy.StepLock)
	err := f.svc.Dismiss(ctx, session.ID)
	assert.True(t, errors.Is(err, errors.ErrInvalidTransition))
	assert.Empty(t, f.rec.Events())

	f = newFixture(t, false)
	session = f.walk(t, proxy.StepSummary)
	require.NoError(t, f.svc.Dismiss(ctx, session.ID))
	assert.Equal(t, []events.Type{events.ProxyClear}, f.rec.Types())

	_, err = f.svc.Get(ctx, session.ID)
	assert.True(t, errors.Is(err, errors.ErrSessionNotFound))
}

func TestService_CloseFromAnyStep(t *testing.T) {
	f := newFixture(t, false)
	session := f.walk(t, proxy.StepApprove)

	require.NoError(t, f.svc.Close(context.Background(), session.ID))
	assert.Equal(t, []events.Type{events.ProxyClear}, f.rec.Types())

	_, err := f.svc.Get(context.Background(), session.ID)
	assert.True(t, errors.Is(err, errors.ErrSessionNotFound))
}

func TestService_ViewAndConfirming(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	session := f.walk(t, proxy.StepInitiate)
	v, err := f.svc.View(ctx, session.ID)
	require.NoError(t, err)
	require.NotNil(t, v.ColdAccount)
	require.NotNil(t, v.HotAccount)
	assert.Equal(t, account.TypeLedger, v.ColdAccount.Type)
	assert.True(t, v.Pending.Awaiting)
	assert.Equal(t, "0xinit", v.Pending.TxHash)
	assert.Equal(t, coldAddr, *v.Pending.Signer)

	_, err = f.svc.ConfirmInitiate(ctx, session.ID)
	require.NoError(t, err)

	pending, err := f.svc.Confirming(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, proxy.StepApprove, pending.Step)
	assert.True(t, pending.Awaiting)
	assert.Empty(t, pending.TxHash)
	assert.Equal(t, hotAddr, *pending.Signer)

	_, err = f.svc.ApproveLink(ctx, session.ID, "0xapprove")
	require.NoError(t, err)
	pending, err = f.svc.Confirming(ctx, session.ID)
	require.NoError(t, err)
	assert.False(t, pending.Awaiting)
}
