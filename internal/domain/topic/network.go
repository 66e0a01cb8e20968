package topic

import (
	"strings"

	"govdash/pkg/errors"
)

// Network identifies the chain whose governance feed is requested
type Network string

const (
	Mainnet Network = "mainnet"
	Kovan   Network = "kovan"
)

// Networks lists every supported network in display order
func Networks() []Network {
	return []Network{Mainnet, Kovan}
}

// ParseNetwork maps a user supplied name onto a Network
func ParseNetwork(s string) (Network, error) {
	switch n := Network(strings.ToLower(strings.TrimSpace(s))); n {
	case Mainnet, Kovan:
		return n, nil
	}
	return "", errors.Wrapf(errors.ErrUnknownNetwork, "%q", s)
}

// Valid reports whether n is a supported network
func (n Network) Valid() bool {
	return n == Mainnet || n == Kovan
}

func (n Network) String() string {
	return string(n)
}
