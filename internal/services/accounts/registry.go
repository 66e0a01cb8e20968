package accounts

import (
	"context"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"govdash/internal/domain/account"
	"govdash/pkg/errors"
	"govdash/pkg/logger"
)

// Registry is an in-memory account.Registry fed by the wallet layer
type Registry struct {
	mu       sync.RWMutex
	accounts map[common.Address]account.Account
	active   *common.Address
	log      *logger.Logger
}

func NewRegistry(log *logger.Logger) *Registry {
	return &Registry{
		accounts: make(map[common.Address]account.Account),
		log:      log.With("service", "accounts"),
	}
}

// Register adds or replaces an account
func (r *Registry) Register(_ context.Context, acc account.Account) error {
	if acc.Address == (common.Address{}) {
		return errors.NewValidationError("address", "zero address", acc.Address.Hex())
	}
	switch acc.Type {
	case account.TypeMetaMask, account.TypeTrezor, account.TypeLedger, account.TypeProvider:
	default:
		return errors.NewValidationError("type", "unknown wallet type", acc.Type)
	}
	switch acc.ProxyRole {
	case account.RoleNone, account.RoleCold, account.RoleHot:
	default:
		return errors.NewValidationError("proxyRole", "unknown proxy role", acc.ProxyRole)
	}
	if acc.MkrBalance.IsNegative() {
		return errors.NewValidationError("mkrBalance", "negative balance", acc.MkrBalance.String())
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.accounts[acc.Address] = acc

	r.log.Debugw("Account registered", "address", acc.Address.Hex(), "type", acc.Type)
	return nil
}

// SetActive selects the account the dashboard acts for
func (r *Registry) SetActive(_ context.Context, address common.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.accounts[address]; !ok {
		return errors.Wrapf(errors.ErrAccountNotFound, "%s", address.Hex())
	}
	r.active = &address
	return nil
}

func (r *Registry) Get(_ context.Context, address common.Address) (*account.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	acc, ok := r.accounts[address]
	if !ok {
		return nil, errors.Wrapf(errors.ErrAccountNotFound, "%s", address.Hex())
	}
	return &acc, nil
}

// List returns accounts ordered by address
func (r *Registry) List(_ context.Context) ([]account.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]account.Account, 0, len(r.accounts))
	for _, acc := range r.accounts {
		out = append(out, acc)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Address.Cmp(out[j].Address) < 0
	})
	return out, nil
}

// Active returns ErrAccountNotFound while no account is selected
func (r *Registry) Active(_ context.Context) (*account.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.active == nil {
		return nil, errors.Wrap(errors.ErrAccountNotFound, "no active account")
	}
	acc := r.accounts[*r.active]
	return &acc, nil
}
