package proxy

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"govdash/pkg/errors"
)

// Payload carries the data a transition records. Only the fields relevant to
// the target step are read.
type Payload struct {
	ColdAddress *common.Address  `json:"coldAddress,omitempty"`
	HotAddress  *common.Address  `json:"hotAddress,omitempty"`
	TxHash      string           `json:"txHash,omitempty"`
	Amount      *decimal.Decimal `json:"amount,omitempty"`
}

// State is the wizard's data. Accounts are referenced by address only; the
// account records stay with the registry.
type State struct {
	Step               Step             `json:"setupProgress"`
	ColdAddress        *common.Address  `json:"coldAddress,omitempty"`
	HotAddress         *common.Address  `json:"hotAddress,omitempty"`
	InitiateLinkTxHash string           `json:"initiateLinkTxHash,omitempty"`
	ApproveLinkTxHash  string           `json:"approveLinkTxHash,omitempty"`
	SendMkrTxHash      string           `json:"sendMkrTxHash,omitempty"`
	SendMkrAmount      *decimal.Decimal `json:"sendMkrAmount,omitempty"`
}

// PendingTxHash returns the transaction the chain watcher should follow for
// the current step. The approve step waits on the hot account's signature
// instead, whose hash only arrives with the advance to lockInput.
func (s State) PendingTxHash() (string, bool) {
	switch s.Step {
	case StepInitiate:
		return s.InitiateLinkTxHash, s.InitiateLinkTxHash != ""
	case StepLock:
		return s.SendMkrTxHash, s.SendMkrTxHash != ""
	}
	return "", false
}

// PendingSigner returns which side of the link acts on the current step:
// cold for the link initiation and the MKR lock, hot for the approval.
func (s State) PendingSigner() (*common.Address, bool) {
	switch s.Step {
	case StepInitiate, StepLock:
		return s.ColdAddress, s.ColdAddress != nil
	case StepApprove:
		return s.HotAddress, s.HotAddress != nil
	}
	return nil, false
}

// Validate checks the invariants tying recorded data to the active step.
func (s State) Validate() error {
	if !s.Step.Valid() {
		return errors.Wrapf(errors.ErrUnknownStep, "%q", string(s.Step))
	}

	checks := []struct {
		field string
		set   bool
		from  Step
	}{
		{"coldAddress", s.ColdAddress != nil, StepInitiate},
		{"hotAddress", s.HotAddress != nil, StepInitiate},
		{"initiateLinkTxHash", s.InitiateLinkTxHash != "", StepInitiate},
		{"approveLinkTxHash", s.ApproveLinkTxHash != "", StepLockInput},
		{"sendMkrTxHash", s.SendMkrTxHash != "", StepLock},
		{"sendMkrAmount", s.SendMkrAmount != nil, StepLock},
	}
	for _, c := range checks {
		if c.set != s.Step.Reached(c.from) {
			return errors.NewValidationError(c.field, "does not match step "+s.Step.String(), c.set)
		}
	}
	return nil
}

// Transition describes one applied advance
type Transition struct {
	From    Step    `json:"from"`
	To      Step    `json:"to"`
	Payload Payload `json:"payload"`
}

// Machine enforces the linear link -> initiate -> approve -> lockInput ->
// lock -> summary order. It is not safe for concurrent use; callers
// serialize access per session.
type Machine struct {
	state State
}

// NewMachine returns a machine on the intro screen
func NewMachine() *Machine {
	return &Machine{}
}

// Restore rebuilds a machine from persisted state
func Restore(state State) (*Machine, error) {
	if err := state.Validate(); err != nil {
		return nil, errors.Wrap(err, "restore proxy setup state")
	}
	return &Machine{state: state.clone()}, nil
}

// CurrentStep returns the active step
func (m *Machine) CurrentStep() Step {
	return m.state.Step
}

// State returns a copy of the wizard data
func (m *Machine) State() State {
	return m.state.clone()
}

// Advance moves to next if it is the defined successor of the current step,
// recording the payload fields that step owns. Advancing to the step that is
// already active is a no-op and reports applied == false.
func (m *Machine) Advance(next Step, p Payload) (Transition, bool, error) {
	from := m.state.Step
	if !next.Valid() {
		return Transition{}, false, errors.Wrapf(errors.ErrUnknownStep, "%q", string(next))
	}
	if next == from {
		return Transition{From: from, To: next}, false, nil
	}
	if succ, ok := from.Next(); !ok || succ != next {
		return Transition{}, false, errors.Wrapf(errors.ErrInvalidTransition, "%s -> %s", from, next)
	}

	updated := m.state.clone()
	recorded := Payload{}

	switch next {
	case StepInitiate:
		if p.ColdAddress == nil || p.HotAddress == nil {
			return Transition{}, false, errors.Wrap(errors.ErrInvalidInput, "link requires cold and hot addresses")
		}
		if *p.ColdAddress == *p.HotAddress {
			return Transition{}, false, errors.Wrap(errors.ErrInvalidInput, "cold and hot address must differ")
		}
		if p.TxHash == "" {
			return Transition{}, false, errors.Wrap(errors.ErrInvalidInput, "initiate link requires a tx hash")
		}
		cold, hot := *p.ColdAddress, *p.HotAddress
		updated.ColdAddress, updated.HotAddress = &cold, &hot
		updated.InitiateLinkTxHash = p.TxHash
		recorded = Payload{ColdAddress: &cold, HotAddress: &hot, TxHash: p.TxHash}

	case StepLockInput:
		if p.TxHash == "" {
			return Transition{}, false, errors.Wrap(errors.ErrInvalidInput, "approve link requires a tx hash")
		}
		updated.ApproveLinkTxHash = p.TxHash
		recorded = Payload{TxHash: p.TxHash}

	case StepLock:
		if p.Amount == nil || !p.Amount.IsPositive() {
			return Transition{}, false, errors.Wrap(errors.ErrInvalidInput, "lock requires a positive MKR amount")
		}
		if p.TxHash == "" {
			return Transition{}, false, errors.Wrap(errors.ErrInvalidInput, "lock requires a tx hash")
		}
		amount := *p.Amount
		updated.SendMkrAmount = &amount
		updated.SendMkrTxHash = p.TxHash
		recorded = Payload{TxHash: p.TxHash, Amount: &amount}
	}

	updated.Step = next
	m.state = updated
	return Transition{From: from, To: next, Payload: recorded}, true, nil
}

// Reset clears every field and returns to the intro screen
func (m *Machine) Reset() {
	m.state = State{}
}

func (s State) clone() State {
	out := s
	if s.ColdAddress != nil {
		a := *s.ColdAddress
		out.ColdAddress = &a
	}
	if s.HotAddress != nil {
		a := *s.HotAddress
		out.HotAddress = &a
	}
	if s.SendMkrAmount != nil {
		d := *s.SendMkrAmount
		out.SendMkrAmount = &d
	}
	return out
}
