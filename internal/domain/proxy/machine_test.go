package proxy

import (
	"encoding/json"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"govdash/pkg/errors"
)

var (
	coldAddr = common.HexToAddress("0x00000000000000000000000000000000000000c0")
	hotAddr  = common.HexToAddress("0x00000000000000000000000000000000000000a0")
)

func linkPayload() Payload {
	cold, hot := coldAddr, hotAddr
	return Payload{ColdAddress: &cold, HotAddress: &hot, TxHash: "0xinitiate"}
}

// machineAt walks a fresh machine to the given step along the happy path
func machineAt(t *testing.T, target Step) *Machine {
	t.Helper()

	m := NewMachine()
	amount := decimal.RequireFromString("12.5")
	payloads := map[Step]Payload{
		StepInitiate:  linkPayload(),
		StepLockInput: {TxHash: "0xapprove"},
		StepLock:      {TxHash: "0xlock", Amount: &amount},
	}

	for _, s := range order[1:] {
		if !target.Reached(s) {
			break
		}
		_, applied, err := m.Advance(s, payloads[s])
		require.NoError(t, err)
		require.True(t, applied)
	}
	require.Equal(t, target, m.CurrentStep())
	return m
}

func TestMachine_HappyPath(t *testing.T) {
	m := machineAt(t, StepSummary)

	state := m.State()
	assert.Equal(t, StepSummary, state.Step)
	require.NotNil(t, state.ColdAddress)
	require.NotNil(t, state.HotAddress)
	assert.Equal(t, coldAddr, *state.ColdAddress)
	assert.Equal(t, hotAddr, *state.HotAddress)
	assert.Equal(t, "0xinitiate", state.InitiateLinkTxHash)
	assert.Equal(t, "0xapprove", state.ApproveLinkTxHash)
	assert.Equal(t, "0xlock", state.SendMkrTxHash)
	require.NotNil(t, state.SendMkrAmount)
	assert.True(t, state.SendMkrAmount.Equal(decimal.RequireFromString("12.5")))
	assert.NoError(t, state.Validate())
}

func TestMachine_RejectsNonSuccessor(t *testing.T) {
	tests := []struct {
		name   string
		from   Step
		target Step
	}{
		{"skip to summary from link", StepLink, StepSummary},
		{"skip link", StepNone, StepInitiate},
		{"backwards", StepApprove, StepInitiate},
		{"past the end", StepSummary, StepNone},
		{"lock before input", StepApprove, StepLock},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := machineAt(t, tt.from)
			before := m.State()

			_, applied, err := m.Advance(tt.target, linkPayload())
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.ErrInvalidTransition))
			assert.False(t, applied)
			assert.Equal(t, before, m.State())
		})
	}
}

func TestMachine_AdvanceFromLinkToInitiate(t *testing.T) {
	m := machineAt(t, StepLink)

	tr, applied, err := m.Advance(StepInitiate, linkPayload())
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, StepLink, tr.From)
	assert.Equal(t, StepInitiate, tr.To)
	assert.Equal(t, "0xinitiate", tr.Payload.TxHash)
	assert.Equal(t, "0xinitiate", m.State().InitiateLinkTxHash)
}

func TestMachine_SameStepIsNoop(t *testing.T) {
	m := machineAt(t, StepInitiate)
	before := m.State()

	other := linkPayload()
	other.TxHash = "0xother"
	_, applied, err := m.Advance(StepInitiate, other)
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Equal(t, before, m.State())
}

func TestMachine_PayloadValidation(t *testing.T) {
	zero := decimal.Zero
	same := coldAddr

	tests := []struct {
		name    string
		from    Step
		target  Step
		payload Payload
	}{
		{"initiate without addresses", StepLink, StepInitiate, Payload{TxHash: "0x1"}},
		{"initiate with equal addresses", StepLink, StepInitiate, Payload{ColdAddress: &same, HotAddress: &same, TxHash: "0x1"}},
		{"initiate without hash", StepLink, StepInitiate, Payload{ColdAddress: linkPayload().ColdAddress, HotAddress: linkPayload().HotAddress}},
		{"approve without hash", StepApprove, StepLockInput, Payload{}},
		{"lock without amount", StepLockInput, StepLock, Payload{TxHash: "0x1"}},
		{"lock with zero amount", StepLockInput, StepLock, Payload{TxHash: "0x1", Amount: &zero}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := machineAt(t, tt.from)
			_, applied, err := m.Advance(tt.target, tt.payload)
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.ErrInvalidInput))
			assert.False(t, applied)
			assert.Equal(t, tt.from, m.CurrentStep())
		})
	}
}

func TestMachine_Reset(t *testing.T) {
	for _, step := range order {
		t.Run(step.String(), func(t *testing.T) {
			m := machineAt(t, step)
			m.Reset()

			assert.Equal(t, StepNone, m.CurrentStep())
			assert.Equal(t, State{}, m.State())
		})
	}
}

func TestMachine_StateIsCopied(t *testing.T) {
	m := machineAt(t, StepLock)

	state := m.State()
	*state.ColdAddress = common.Address{}
	*state.SendMkrAmount = decimal.NewFromInt(1)

	assert.Equal(t, coldAddr, *m.State().ColdAddress)
	assert.True(t, m.State().SendMkrAmount.Equal(decimal.RequireFromString("12.5")))
}

func TestRestore(t *testing.T) {
	t.Run("valid state", func(t *testing.T) {
		state := machineAt(t, StepLockInput).State()

		m, err := Restore(state)
		require.NoError(t, err)
		assert.Equal(t, StepLockInput, m.CurrentStep())
	})

	t.Run("hash ahead of step", func(t *testing.T) {
		_, err := Restore(State{Step: StepLink, InitiateLinkTxHash: "0x1"})
		var verr *errors.ValidationError
		require.True(t, errors.As(err, &verr))
		assert.Equal(t, "initiateLinkTxHash", verr.Field)
	})

	t.Run("missing hash for completed step", func(t *testing.T) {
		state := machineAt(t, StepLock).State()
		state.ApproveLinkTxHash = ""

		_, err := Restore(state)
		require.Error(t, err)
	})

	t.Run("unknown step", func(t *testing.T) {
		_, err := Restore(State{Step: Step("vote")})
		assert.True(t, errors.Is(err, errors.ErrUnknownStep))
	})
}

func TestState_Pending(t *testing.T) {
	initiate := machineAt(t, StepInitiate).State()
	hash, ok := initiate.PendingTxHash()
	assert.True(t, ok)
	assert.Equal(t, "0xinitiate", hash)
	signer, ok := initiate.PendingSigner()
	require.True(t, ok)
	assert.Equal(t, coldAddr, *signer)

	approve := machineAt(t, StepApprove).State()
	_, ok = approve.PendingTxHash()
	assert.False(t, ok)
	signer, ok = approve.PendingSigner()
	require.True(t, ok)
	assert.Equal(t, hotAddr, *signer)

	lock := machineAt(t, StepLock).State()
	hash, ok = lock.PendingTxHash()
	assert.True(t, ok)
	assert.Equal(t, "0xlock", hash)

	_, ok = machineAt(t, StepSummary).State().PendingTxHash()
	assert.False(t, ok)
}

func TestStep_JSON(t *testing.T) {
	data, err := json.Marshal(State{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"setupProgress":null}`, string(data))

	var state State
	require.NoError(t, json.Unmarshal([]byte(`{"setupProgress":"lockInput"}`), &state))
	assert.Equal(t, StepLockInput, state.Step)

	err = json.Unmarshal([]byte(`{"setupProgress":"bogus"}`), &state)
	assert.True(t, errors.Is(err, errors.ErrUnknownStep))
}

func TestParseStep(t *testing.T) {
	for _, in := range []string{"", "none", "null"} {
		s, err := ParseStep(in)
		require.NoError(t, err)
		assert.Equal(t, StepNone, s)
	}

	s, err := ParseStep("approve")
	require.NoError(t, err)
	assert.Equal(t, StepApprove, s)

	next, ok := StepLock.Next()
	assert.True(t, ok)
	assert.Equal(t, StepSummary, next)

	_, ok = StepSummary.Next()
	assert.False(t, ok)
}
