package proxysetup

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"govdash/internal/domain/account"
	"govdash/internal/domain/proxy"
	"govdash/internal/domain/topic"
	"govdash/internal/events"
	"govdash/internal/metrics"
	"govdash/pkg/errors"
	"govdash/pkg/logger"
)

// AdvancePayload is the body of PROXY_ADVANCE
type AdvancePayload struct {
	From    proxy.Step    `json:"from"`
	To      proxy.Step    `json:"to"`
	Payload proxy.Payload `json:"payload"`
}

// Pending describes what the current step is waiting for
type Pending struct {
	Step     proxy.Step      `json:"step"`
	Awaiting bool            `json:"awaiting"`
	TxHash   string          `json:"txHash,omitempty"`
	Signer   *common.Address `json:"signer,omitempty"`
}

// View is a session with its accounts resolved through the registry
type View struct {
	*proxy.Session
	ColdAccount *account.Account `json:"coldAccount,omitempty"`
	HotAccount  *account.Account `json:"hotAccount,omitempty"`
	Pending     Pending          `json:"pending"`
}

// Service drives proxy setup sessions through the step machine
type Service struct {
	repo       proxy.Repository
	accounts   account.Registry
	dispatcher events.Dispatcher
	ttl        time.Duration
	locks      sync.Map // uuid.UUID -> *sync.Mutex
	log        *logger.Logger
}

// NewService creates the proxy setup service. accounts may be nil, in which
// case linked addresses are not checked against the registry.
func NewService(repo proxy.Repository, accounts account.Registry, dispatcher events.Dispatcher, ttl time.Duration, log *logger.Logger) *Service {
	if dispatcher == nil {
		dispatcher = events.Discard
	}
	return &Service{
		repo:       repo,
		accounts:   accounts,
		dispatcher: dispatcher,
		ttl:        ttl,
		log:        log.With("service", "proxysetup"),
	}
}

// Open starts a fresh session on the intro screen. Mounting the wizard
// always begins from cleared state.
func (s *Service) Open(ctx context.Context, network topic.Network) (*proxy.Session, error) {
	if !network.Valid() {
		return nil, errors.Wrapf(errors.ErrUnknownNetwork, "%q", network.String())
	}

	session := proxy.NewSession(network)
	if err := s.repo.Save(ctx, session, s.ttl); err != nil {
		s.log.Errorw("Failed to save proxy session", "session_id", session.ID, "error", err)
		return nil, err
	}

	metrics.ProxyResets.WithLabelValues("open").Inc()
	s.dispatch(ctx, events.ProxyClear, session.ID, struct{}{})

	s.log.Debugw("Proxy session opened", "session_id", session.ID, "network", network)
	return session, nil
}

// Get returns a session or ErrSessionNotFound
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*proxy.Session, error) {
	return s.load(ctx, id)
}

// View resolves the session's cold and hot accounts. Addresses the
// registry no longer knows are left unresolved.
func (s *Service) View(ctx context.Context, id uuid.UUID) (*View, error) {
	session, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	v := &View{Session: session, Pending: pendingOf(session.State)}
	if s.accounts == nil {
		return v, nil
	}
	if session.State.ColdAddress != nil {
		v.ColdAccount, _ = s.accounts.Get(ctx, *session.State.ColdAddress)
	}
	if session.State.HotAddress != nil {
		v.HotAccount, _ = s.accounts.Get(ctx, *session.State.HotAddress)
	}
	return v, nil
}

// Confirming reports whether the current step waits on an external
// confirmation, the transaction involved and which account signs it
func (s *Service) Confirming(ctx context.Context, id uuid.UUID) (Pending, error) {
	session, err := s.load(ctx, id)
	if err != nil {
		return Pending{}, err
	}
	return pendingOf(session.State), nil
}

func pendingOf(state proxy.State) Pending {
	p := Pending{Step: state.Step, Awaiting: state.Step.AwaitsConfirmation()}
	if !p.Awaiting {
		return p
	}
	p.TxHash, _ = state.PendingTxHash()
	p.Signer, _ = state.PendingSigner()
	return p
}

// Begin leaves the intro screen
func (s *Service) Begin(ctx context.Context, id uuid.UUID) (*proxy.Session, error) {
	return s.Advance(ctx, id, proxy.StepLink, proxy.Payload{})
}

// InitiateLink records the submitted link transaction
func (s *Service) InitiateLink(ctx context.Context, id uuid.UUID, cold, hot common.Address, txHash string) (*proxy.Session, error) {
	return s.Advance(ctx, id, proxy.StepInitiate, proxy.Payload{
		ColdAddress: &cold,
		HotAddress:  &hot,
		TxHash:      txHash,
	})
}

// ConfirmInitiate moves on once the cold account's link tx is confirmed
func (s *Service) ConfirmInitiate(ctx context.Context, id uuid.UUID) (*proxy.Session, error) {
	return s.Advance(ctx, id, proxy.StepApprove, proxy.Payload{})
}

// ApproveLink records the hot account's approval transaction
func (s *Service) ApproveLink(ctx context.Context, id uuid.UUID, txHash string) (*proxy.Session, error) {
	return s.Advance(ctx, id, proxy.StepLockInput, proxy.Payload{TxHash: txHash})
}

// Lock records the MKR amount and the lock transaction
func (s *Service) Lock(ctx context.Context, id uuid.UUID, amount decimal.Decimal, txHash string) (*proxy.Session, error) {
	return s.Advance(ctx, id, proxy.StepLock, proxy.Payload{Amount: &amount, TxHash: txHash})
}

// ConfirmLock moves to the summary once the lock tx is confirmed
func (s *Service) ConfirmLock(ctx context.Context, id uuid.UUID) (*proxy.Session, error) {
	return s.Advance(ctx, id, proxy.StepSummary, proxy.Payload{})
}

// Advance applies a transition to a stored session. Re-sending the current
// step returns the session unchanged and dispatches nothing.
func (s *Service) Advance(ctx context.Context, id uuid.UUID, to proxy.Step, p proxy.Payload) (*proxy.Session, error) {
	unlock := s.lock(id)
	defer unlock()

	session, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	m, err := session.Machine()
	if err != nil {
		s.log.Errorw("Stored proxy session is inconsistent", "session_id", id, "error", err)
		return nil, err
	}

	from := m.CurrentStep()
	if to == proxy.StepInitiate && from == proxy.StepLink {
		if err := s.checkAccounts(ctx, p); err != nil {
			return nil, err
		}
	}

	transition, applied, err := m.Advance(to, p)
	if err != nil {
		if errors.Is(err, errors.ErrInvalidTransition) {
			metrics.RecordTransition(from.String(), to.String(), err)
			s.log.Debugw("Rejected proxy transition",
				"session_id", id,
				"from", from,
				"to", to,
			)
		}
		return nil, err
	}
	if !applied {
		return session, nil
	}

	session.Apply(m)
	if err := s.repo.Save(ctx, session, s.ttl); err != nil {
		s.log.Errorw("Failed to save proxy session", "session_id", id, "error", err)
		return nil, err
	}

	metrics.RecordTransition(from.String(), to.String(), nil)
	s.dispatch(ctx, events.ProxyAdvance, id, AdvancePayload{
		From:    transition.From,
		To:      transition.To,
		Payload: transition.Payload,
	})

	s.log.Infow("Proxy setup advanced",
		"session_id", id,
		"from", from,
		"to", to,
	)
	return session, nil
}

func (s *Service) checkAccounts(ctx context.Context, p proxy.Payload) error {
	if s.accounts == nil {
		return nil
	}
	for _, addr := range []*common.Address{p.ColdAddress, p.HotAddress} {
		if addr == nil {
			continue
		}
		if _, err := s.accounts.Get(ctx, *addr); err != nil {
			return err
		}
	}
	return nil
}

// Reset clears the session's state and keeps it open
func (s *Service) Reset(ctx context.Context, id uuid.UUID) (*proxy.Session, error) {
	unlock := s.lock(id)
	defer unlock()

	session, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	m := proxy.NewMachine()
	session.Apply(m)
	if err := s.repo.Save(ctx, session, s.ttl); err != nil {
		return nil, err
	}

	metrics.ProxyResets.WithLabelValues("reset").Inc()
	s.dispatch(ctx, events.ProxyClear, id, struct{}{})
	return session, nil
}

// Dismiss closes a finished session from the summary screen
func (s *Service) Dismiss(ctx context.Context, id uuid.UUID) error {
	return s.close(ctx, id, "dismiss", true)
}

// Close discards a session from any step
func (s *Service) Close(ctx context.Context, id uuid.UUID) error {
	return s.close(ctx, id, "close", false)
}

func (s *Service) close(ctx context.Context, id uuid.UUID, reason string, requireSummary bool) error {
	unlock := s.lock(id)
	defer unlock()

	session, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if requireSummary && session.State.Step != proxy.StepSummary {
		metrics.RecordTransition(session.State.Step.String(), "closed", errors.ErrInvalidTransition)
		return errors.Wrapf(errors.ErrInvalidTransition, "dismiss from %s", session.State.Step)
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		s.log.Errorw("Failed to delete proxy session", "session_id", id, "error", err)
		return err
	}
	s.locks.Delete(id)

	metrics.ProxyResets.WithLabelValues(reason).Inc()
	s.dispatch(ctx, events.ProxyClear, id, struct{}{})

	s.log.Debugw("Proxy session closed", "session_id", id, "reason", reason)
	return nil
}

// load reads a session and forgets the lock of one that expired
func (s *Service) load(ctx context.Context, id uuid.UUID) (*proxy.Session, error) {
	session, err := s.repo.Get(ctx, id)
	if errors.Is(err, errors.ErrSessionNotFound) {
		s.locks.Delete(id)
	}
	return session, err
}

// lock serializes operations on one session within this process
func (s *Service) lock(id uuid.UUID) func() {
	v, _ := s.locks.LoadOrStore(id, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func (s *Service) dispatch(ctx context.Context, t events.Type, id uuid.UUID, payload interface{}) {
	e := events.New(t, payload)
	e.SessionID = id.String()

	metrics.EventsDispatched.WithLabelValues(string(t)).Inc()
	s.dispatcher.Dispatch(ctx, e)
}
