package topic

import (
	"regexp"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// SubmittedBy references whoever put a topic or proposal forward
type SubmittedBy struct {
	Name string `json:"name"`
	Link string `json:"link"`
}

// Proposal is a single voting candidate; Source is the address votes are cast for
type Proposal struct {
	Title        string         `json:"title"`
	Blurb        string         `json:"proposal_blurb"`
	About        string         `json:"about"`
	Source       common.Address `json:"source"`
	EndTimestamp int64          `json:"end_timestamp"`
	Date         time.Time      `json:"date"`
	Verified     bool           `json:"verified"`
	SubmittedBy  SubmittedBy    `json:"submitted_by"`
}

// Topic is a governance category grouping one or more proposals
type Topic struct {
	Topic        string      `json:"topic"`
	Key          string      `json:"key"`
	Active       bool        `json:"active"`
	GovVote      bool        `json:"govVote"`
	Blurb        string      `json:"topic_blurb"`
	EndTimestamp int64       `json:"end_timestamp"`
	Date         time.Time   `json:"date"`
	Verified     bool        `json:"verified"`
	SubmittedBy  SubmittedBy `json:"submitted_by"`
	Proposals    []Proposal  `json:"proposals"`
}

// Ends returns the topic's end instant
func (t Topic) Ends() time.Time {
	return time.UnixMilli(t.EndTimestamp).UTC()
}

// Ends returns the proposal's end instant
func (p Proposal) Ends() time.Time {
	return time.UnixMilli(p.EndTimestamp).UTC()
}

// Topics is one complete feed as returned by the backend. A new result
// always replaces the previous one; nothing is merged.
type Topics []Topic

// ByKey finds a topic by its unique key
func (ts Topics) ByKey(key string) (Topic, bool) {
	for _, t := range ts {
		if t.Key == key {
			return t, true
		}
	}
	return Topic{}, false
}

// ProposalBySource finds the proposal voting for the given candidate address
func (ts Topics) ProposalBySource(source common.Address) (Topic, Proposal, bool) {
	for _, t := range ts {
		for _, p := range t.Proposals {
			if p.Source == source {
				return t, p, true
			}
		}
	}
	return Topic{}, Proposal{}, false
}

// Active returns the topics still open for voting
func (ts Topics) Active() Topics {
	out := make(Topics, 0, len(ts))
	for _, t := range ts {
		if t.Active {
			out = append(out, t)
		}
	}
	return out
}

// ProposalCount returns the number of proposals across all topics
func (ts Topics) ProposalCount() int {
	n := 0
	for _, t := range ts {
		n += len(t.Proposals)
	}
	return n
}

var slugStrip = regexp.MustCompile(`[^a-z0-9]+`)

// Slug turns a title into the path segment used by the timeline links
func Slug(s string) string {
	return strings.Trim(slugStrip.ReplaceAllString(strings.ToLower(s), "-"), "-")
}
