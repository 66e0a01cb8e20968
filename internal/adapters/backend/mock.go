package backend

import (
	"embed"

	"govdash/internal/domain/topic"
	"govdash/pkg/errors"
)

//go:embed mockdata/*.json
var mockData embed.FS

// MockSource serves the bundled topic feeds. It always succeeds for a known
// network and never touches the network.
type MockSource struct{}

func NewMockSource() *MockSource {
	return &MockSource{}
}

// Topics decodes the bundled feed for network through the same validation
// path as live responses
func (MockSource) Topics(network topic.Network) (topic.Topics, error) {
	data, err := mockData.ReadFile("mockdata/" + network.String() + ".json")
	if err != nil {
		return nil, errors.Wrapf(errors.ErrUnknownNetwork, "%q", network.String())
	}
	return topic.Decode(data)
}
