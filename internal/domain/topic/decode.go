package topic

import (
	"encoding/json"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-playground/validator/v10"

	"govdash/pkg/errors"
)

// DateLayout is the millisecond ISO-8601 form the governance backend emits
const DateLayout = "2006-01-02T15:04:05.000Z"

var dateRegex = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}\.\d{3}Z$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("isodate", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		if !dateRegex.MatchString(s) {
			return false
		}
		_, err := time.Parse(DateLayout, s)
		return err == nil
	})
	return v
}

// Wire shapes keep pointers so that a missing field is distinguishable from a
// zero value.

type wireSubmitter struct {
	Name *string `json:"name" validate:"required"`
	Link *string `json:"link" validate:"required"`
}

type wireProposal struct {
	Title        *string        `json:"title" validate:"required"`
	Blurb        *string        `json:"proposal_blurb" validate:"required"`
	About        *string        `json:"about" validate:"required"`
	Source       *string        `json:"source" validate:"required,eth_addr"`
	EndTimestamp *int64         `json:"end_timestamp" validate:"required,gt=0"`
	Date         *string        `json:"date" validate:"required,isodate"`
	Verified     *bool          `json:"verified" validate:"required"`
	SubmittedBy  *wireSubmitter `json:"submitted_by" validate:"required"`
}

type wireTopic struct {
	Topic        string         `json:"topic" validate:"required"`
	Key          *string        `json:"key" validate:"required,min=1"`
	Active       *bool          `json:"active" validate:"required"`
	GovVote      *bool          `json:"govVote" validate:"required"`
	Blurb        *string        `json:"topic_blurb" validate:"required"`
	EndTimestamp *int64         `json:"end_timestamp" validate:"required,gt=0"`
	Date         *string        `json:"date" validate:"required,isodate"`
	Verified     *bool          `json:"verified" validate:"required"`
	SubmittedBy  *wireSubmitter `json:"submitted_by" validate:"required"`
	Proposals    []wireProposal `json:"proposals" validate:"required,min=1,dive"`
}

type wireFeed struct {
	Topics []wireTopic `json:"topics" validate:"required,min=1,dive"`
}

// Decode parses and validates a backend topics feed. Anything that is not a
// JSON array of well-formed topics yields an error wrapping
// ErrMalformedResponse.
func Decode(data []byte) (Topics, error) {
	var feed wireFeed
	if err := json.Unmarshal(data, &feed.Topics); err != nil {
		return nil, fmt.Errorf("%w: %w", errors.ErrMalformedResponse, err)
	}

	if err := validate.Struct(&feed); err != nil {
		return nil, fmt.Errorf("%w: %w", errors.ErrMalformedResponse, err)
	}

	seen := make(map[string]struct{}, len(feed.Topics))
	topics := make(Topics, len(feed.Topics))
	for i, wt := range feed.Topics {
		if _, dup := seen[*wt.Key]; dup {
			return nil, fmt.Errorf("%w: %w", errors.ErrMalformedResponse,
				errors.NewValidationError("key", "duplicate topic key", *wt.Key))
		}
		seen[*wt.Key] = struct{}{}
		topics[i] = wt.toTopic()
	}
	return topics, nil
}

func (w wireTopic) toTopic() Topic {
	t := Topic{
		Topic:        w.Topic,
		Key:          *w.Key,
		Active:       *w.Active,
		GovVote:      *w.GovVote,
		Blurb:        *w.Blurb,
		EndTimestamp: *w.EndTimestamp,
		Date:         mustParseDate(*w.Date),
		Verified:     *w.Verified,
		SubmittedBy:  w.SubmittedBy.toSubmittedBy(),
		Proposals:    make([]Proposal, len(w.Proposals)),
	}
	for i, wp := range w.Proposals {
		t.Proposals[i] = wp.toProposal()
	}
	return t
}

func (w wireProposal) toProposal() Proposal {
	return Proposal{
		Title:        *w.Title,
		Blurb:        *w.Blurb,
		About:        *w.About,
		Source:       common.HexToAddress(*w.Source),
		EndTimestamp: *w.EndTimestamp,
		Date:         mustParseDate(*w.Date),
		Verified:     *w.Verified,
		SubmittedBy:  w.SubmittedBy.toSubmittedBy(),
	}
}

func (w *wireSubmitter) toSubmittedBy() SubmittedBy {
	return SubmittedBy{Name: *w.Name, Link: *w.Link}
}

// mustParseDate is only called after the isodate validation passed.
func mustParseDate(s string) time.Time {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		panic(fmt.Sprintf("topic: unvalidated date %q: %v", s, err))
	}
	return t
}
