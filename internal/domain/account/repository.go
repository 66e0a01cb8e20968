package account

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// Registry is the read side of the external account registry.
// The core only reads accounts; it never mutates them.
type Registry interface {
	// Get returns the account for an address or errors.ErrAccountNotFound
	Get(ctx context.Context, address common.Address) (*Account, error)

	// List returns every known account
	List(ctx context.Context) ([]Account, error)

	// Active returns the account currently selected in the wallet, if any
	Active(ctx context.Context) (*Account, error)
}
