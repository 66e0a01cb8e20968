package timeline

import (
	"context"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/ethereum/go-ethereum/common"

	"govdash/internal/domain/account"
	"govdash/internal/domain/topic"
	"govdash/internal/events"
	"govdash/pkg/errors"
	"govdash/pkg/logger"
)

// TopicsReader is the read side of the topics store
type TopicsReader interface {
	Get(network topic.Network) (events.TopicsState, bool)
}

// ProposalCard is one votable proposal on the timeline
type ProposalCard struct {
	Title       string            `json:"title"`
	Blurb       string            `json:"blurb"`
	Source      common.Address    `json:"source"`
	Link        string            `json:"link"`
	Verified    bool              `json:"verified"`
	SubmittedBy topic.SubmittedBy `json:"submittedBy"`
	Ended       bool              `json:"ended"`
	EndsIn      string            `json:"endsIn"`
}

// TopicCard groups a topic's proposals
type TopicCard struct {
	Title     string         `json:"title"`
	Key       string         `json:"key"`
	Active    bool           `json:"active"`
	GovVote   bool           `json:"govVote"`
	Blurb     string         `json:"blurb"`
	Ended     bool           `json:"ended"`
	EndsIn    string         `json:"endsIn"`
	Proposals []ProposalCard `json:"proposals"`
}

// Voter summarizes the account the page is rendered for
type Voter struct {
	Address    common.Address    `json:"address"`
	Type       account.Type      `json:"type"`
	ProxyRole  account.ProxyRole `json:"proxyRole"`
	Hardware   bool              `json:"hardware"`
	MkrBalance string            `json:"mkrBalance"`
}

// Page is the timeline view model
type Page struct {
	Network       topic.Network `json:"network"`
	Fetching      bool          `json:"fetching"`
	Error         string        `json:"error,omitempty"`
	UpdatedAt     string        `json:"updatedAt,omitempty"`
	ActiveTopics  int           `json:"activeTopics"`
	ProposalCount int           `json:"proposalCount"`
	CanVote       bool          `json:"canVote"`
	Voter         *Voter        `json:"voter,omitempty"`
	Topics        []TopicCard   `json:"topics"`
}

// Service assembles the timeline from the topics store and the account
// registry
type Service struct {
	store    TopicsReader
	accounts account.Registry
	now      func() time.Time
	log      *logger.Logger
}

// NewService creates the timeline builder; accounts may be nil
func NewService(store TopicsReader, accounts account.Registry, log *logger.Logger) *Service {
	return &Service{
		store:    store,
		accounts: accounts,
		now:      time.Now,
		log:      log.With("service", "timeline"),
	}
}

// Build renders the page for network. With a nil voter the registry's
// active account is used. Topics keep the order the backend sent them in.
func (s *Service) Build(ctx context.Context, network topic.Network, voter *common.Address) (*Page, error) {
	if !network.Valid() {
		return nil, errors.Wrapf(errors.ErrUnknownNetwork, "%q", network.String())
	}

	now := s.now()
	state, _ := s.store.Get(network)

	page := &Page{
		Network:       network,
		Fetching:      state.Fetching,
		Error:         state.Error,
		ActiveTopics:  len(state.Topics.Active()),
		ProposalCount: state.Topics.ProposalCount(),
		Topics:        make([]TopicCard, 0, len(state.Topics)),
	}
	if !state.UpdatedAt.IsZero() {
		page.UpdatedAt = humanize.RelTime(state.UpdatedAt, now, "ago", "from now")
	}

	for _, t := range state.Topics {
		page.Topics = append(page.Topics, topicCard(t, now))
	}

	acc, err := s.voter(ctx, voter)
	if err != nil {
		return nil, err
	}
	if acc != nil {
		page.CanVote = acc.HasProxy()
		page.Voter = &Voter{
			Address:    acc.Address,
			Type:       acc.Type,
			ProxyRole:  acc.ProxyRole,
			Hardware:   acc.IsHardware(),
			MkrBalance: humanize.CommafWithDigits(acc.MkrBalance.InexactFloat64(), 4),
		}
	}

	return page, nil
}

func (s *Service) voter(ctx context.Context, address *common.Address) (*account.Account, error) {
	if s.accounts == nil {
		return nil, nil
	}
	if address != nil {
		return s.accounts.Get(ctx, *address)
	}

	acc, err := s.accounts.Active(ctx)
	if errors.Is(err, errors.ErrAccountNotFound) {
		return nil, nil
	}
	return acc, err
}

func topicCard(t topic.Topic, now time.Time) TopicCard {
	card := TopicCard{
		Title:     t.Topic,
		Key:       t.Key,
		Active:    t.Active,
		GovVote:   t.GovVote,
		Blurb:     t.Blurb,
		Proposals: make([]ProposalCard, 0, len(t.Proposals)),
	}
	card.Ended, card.EndsIn = deadline(t.Ends(), now)

	for _, p := range t.Proposals {
		pc := ProposalCard{
			Title:       p.Title,
			Blurb:       p.Blurb,
			Source:      p.Source,
			Link:        "/" + topic.Slug(t.Topic) + "/" + topic.Slug(p.Title),
			Verified:    p.Verified,
			SubmittedBy: p.SubmittedBy,
		}
		pc.Ended, pc.EndsIn = deadline(p.Ends(), now)
		card.Proposals = append(card.Proposals, pc)
	}
	return card
}

func deadline(end, now time.Time) (bool, string) {
	if !end.After(now) {
		return true, "ended " + humanize.RelTime(end, now, "ago", "from now")
	}
	return false, "ends " + humanize.RelTime(end, now, "ago", "from now")
}
