package proxy

import (
	"encoding/json"

	"govdash/pkg/errors"
)

// Step is one screen of the proxy setup wizard. StepNone is the intro screen
// shown before the user starts linking.
type Step string

const (
	StepNone      Step = ""
	StepLink      Step = "link"
	StepInitiate  Step = "initiate"
	StepApprove   Step = "approve"
	StepLockInput Step = "lockInput"
	StepLock      Step = "lock"
	StepSummary   Step = "summary"
)

// order is the only path through the wizard.
var order = []Step{StepNone, StepLink, StepInitiate, StepApprove, StepLockInput, StepLock, StepSummary}

var position = func() map[Step]int {
	m := make(map[Step]int, len(order))
	for i, s := range order {
		m[s] = i
	}
	return m
}()

// ParseStep accepts the wire names; "", "none" and "null" mean StepNone
func ParseStep(s string) (Step, error) {
	switch s {
	case "", "none", "null":
		return StepNone, nil
	}
	if _, ok := position[Step(s)]; !ok {
		return StepNone, errors.Wrapf(errors.ErrUnknownStep, "%q", s)
	}
	return Step(s), nil
}

// Valid reports whether s is one of the wizard's steps
func (s Step) Valid() bool {
	_, ok := position[s]
	return ok
}

// Index is the zero-based position of the step in the wizard
func (s Step) Index() int {
	i, ok := position[s]
	if !ok {
		return -1
	}
	return i
}

// Next returns the defined successor; summary has none
func (s Step) Next() (Step, bool) {
	i, ok := position[s]
	if !ok || i == len(order)-1 {
		return StepNone, false
	}
	return order[i+1], true
}

// AwaitsConfirmation reports whether entering s leaves a transaction pending
// that an external collaborator has to confirm
func (s Step) AwaitsConfirmation() bool {
	return s == StepInitiate || s == StepApprove || s == StepLock
}

// Reached reports whether s is at or past target in wizard order
func (s Step) Reached(target Step) bool {
	return s.Index() >= target.Index() && target.Valid()
}

func (s Step) String() string {
	if s == StepNone {
		return "none"
	}
	return string(s)
}

// MarshalJSON encodes StepNone as null, matching an unset setupProgress
func (s Step) MarshalJSON() ([]byte, error) {
	if s == StepNone {
		return []byte("null"), nil
	}
	return json.Marshal(string(s))
}

func (s *Step) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*s = StepNone
		return nil
	}
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	step, err := ParseStep(raw)
	if err != nil {
		return err
	}
	*s = step
	return nil
}
