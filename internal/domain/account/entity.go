package account

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Type is the wallet provider holding the key
type Type string

const (
	TypeMetaMask Type = "METAMASK"
	TypeTrezor   Type = "TREZOR"
	TypeLedger   Type = "LEDGER"
	TypeProvider Type = "PROVIDER"
)

// ProxyRole marks which side of a voting proxy an account sits on
type ProxyRole string

const (
	RoleNone ProxyRole = ""
	RoleCold ProxyRole = "cold"
	RoleHot  ProxyRole = "hot"
)

// Account is a wallet account as reported by the wallet collaborator
type Account struct {
	Address    common.Address  `json:"address"`
	Type       Type            `json:"type"`
	ProxyRole  ProxyRole       `json:"proxyRole"`
	MkrBalance decimal.Decimal `json:"mkrBalance"`
}

// HasProxy reports whether the account takes part in a proxy link
func (a Account) HasProxy() bool {
	return a.ProxyRole == RoleCold || a.ProxyRole == RoleHot
}

// IsHardware reports whether the key lives on a hardware wallet
func (a Account) IsHardware() bool {
	return a.Type == TypeTrezor || a.Type == TypeLedger
}
