package topic

import (
	"encoding/json"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"govdash/pkg/errors"
)

const validFeed = `[
  {
    "topic": "Stability Fee",
    "key": "stability-fee-2018-10",
    "active": true,
    "govVote": false,
    "topic_blurb": "Adjust the Dai stability fee",
    "end_timestamp": 1541001600000,
    "date": "2018-10-31T16:00:00.000Z",
    "verified": true,
    "submitted_by": {"name": "Maker Foundation", "link": "https://makerdao.com"},
    "proposals": [
      {
        "title": "Raise stability fee to 1.5%",
        "proposal_blurb": "Raise the fee",
        "about": "# Raise\nLonger body",
        "source": "0x54f4E7E2A5c6a9f56F8a8d5c0Ce6a2F0C5E4B9d1",
        "end_timestamp": 1541001600000,
        "date": "2018-10-31T16:00:00.000Z",
        "verified": true,
        "submitted_by": {"name": "Maker Foundation", "link": "https://makerdao.com"}
      }
    ]
  }
]`

func mutate(t *testing.T, fn func(topics []map[string]interface{})) []byte {
	t.Helper()
	var raw []map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(validFeed), &raw))
	fn(raw)
	out, err := json.Marshal(raw)
	require.NoError(t, err)
	return out
}

func firstProposal(topics []map[string]interface{}) map[string]interface{} {
	return topics[0]["proposals"].([]interface{})[0].(map[string]interface{})
}

func TestDecode_ValidFeed(t *testing.T) {
	topics, err := Decode([]byte(validFeed))
	require.NoError(t, err)
	require.Len(t, topics, 1)

	tp := topics[0]
	assert.Equal(t, "Stability Fee", tp.Topic)
	assert.Equal(t, "stability-fee-2018-10", tp.Key)
	assert.True(t, tp.Active)
	assert.False(t, tp.GovVote)
	assert.Equal(t, "Maker Foundation", tp.SubmittedBy.Name)
	assert.Equal(t, 2018, tp.Date.Year())
	assert.Equal(t, int64(1541001600000), tp.Ends().UnixMilli())

	require.Len(t, tp.Proposals, 1)
	p := tp.Proposals[0]
	assert.Equal(t, common.HexToAddress("0x54f4e7e2a5c6a9f56f8a8d5c0ce6a2f0c5e4b9d1"), p.Source)
	assert.Equal(t, "# Raise\nLonger body", p.About)

	_, found, ok := topics.ProposalBySource(p.Source)
	assert.True(t, ok)
	assert.Equal(t, p.Title, found.Title)
}

func TestDecode_Malformed(t *testing.T) {
	tests := []struct {
		name string
		body []byte
	}{
		{name: "not json", body: []byte("<html>404</html>")},
		{name: "empty body", body: []byte("")},
		{name: "object instead of array", body: []byte(`{"topics": []}`)},
		{name: "empty array", body: []byte(`[]`)},
		{name: "empty topic name", body: mutate(t, func(ts []map[string]interface{}) { ts[0]["topic"] = "" })},
		{name: "missing key", body: mutate(t, func(ts []map[string]interface{}) { delete(ts[0], "key") })},
		{name: "missing active flag", body: mutate(t, func(ts []map[string]interface{}) { delete(ts[0], "active") })},
		{name: "string govVote", body: mutate(t, func(ts []map[string]interface{}) { ts[0]["govVote"] = "yes" })},
		{name: "date without millis", body: mutate(t, func(ts []map[string]interface{}) { ts[0]["date"] = "2018-10-31T16:00:00Z" })},
		{name: "impossible date", body: mutate(t, func(ts []map[string]interface{}) { ts[0]["date"] = "2018-13-45T16:00:00.000Z" })},
		{name: "missing submitter", body: mutate(t, func(ts []map[string]interface{}) { delete(ts[0], "submitted_by") })},
		{name: "no proposals", body: mutate(t, func(ts []map[string]interface{}) { ts[0]["proposals"] = []interface{}{} })},
		{name: "bad proposal source", body: mutate(t, func(ts []map[string]interface{}) { firstProposal(ts)["source"] = "0x1234" })},
		{name: "missing proposal verified", body: mutate(t, func(ts []map[string]interface{}) { delete(firstProposal(ts), "verified") })},
		{name: "missing proposal about", body: mutate(t, func(ts []map[string]interface{}) { delete(firstProposal(ts), "about") })},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.body)
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.ErrMalformedResponse), "got %v", err)
		})
	}
}

func TestDecode_DuplicateKeys(t *testing.T) {
	var raw []json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(validFeed), &raw))
	dup, err := json.Marshal([]json.RawMessage{raw[0], raw[0]})
	require.NoError(t, err)

	_, err = Decode(dup)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrMalformedResponse))

	var verr *errors.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "key", verr.Field)
}

func TestDecode_ValidationErrorsUseJSONNames(t *testing.T) {
	body := mutate(t, func(ts []map[string]interface{}) { delete(ts[0], "govVote") })

	_, err := Decode(body)
	require.Error(t, err)

	var verrs validator.ValidationErrors
	require.True(t, errors.As(err, &verrs))
	assert.Equal(t, "govVote", verrs[0].Field())
}

func TestSlug(t *testing.T) {
	assert.Equal(t, "stability-fee", Slug("Stability Fee"))
	assert.Equal(t, "raise-stability-fee-to-1-5", Slug("Raise stability fee to 1.5%"))
	assert.Equal(t, "", Slug("  "))
}

func TestParseNetwork(t *testing.T) {
	n, err := ParseNetwork(" Kovan ")
	require.NoError(t, err)
	assert.Equal(t, Kovan, n)

	_, err = ParseNetwork("ropsten")
	assert.True(t, errors.Is(err, errors.ErrUnknownNetwork))
}
