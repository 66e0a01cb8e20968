// Package pagination provides keyset cursors for newest-first listings
package pagination

import (
	"encoding/base64"
	"strconv"
	"strings"

	"govdash/pkg/errors"
)

const (
	DefaultLimit = 20
	MaxLimit     = 500

	cursorPrefix = "cursor:"
)

// Params is a page request: at most Limit rows older than the After cursor
type Params struct {
	Limit int
	After string
}

// ParseParams reads raw query values; empty values take the defaults
func ParseParams(limit, after string) (Params, error) {
	p := Params{Limit: DefaultLimit, After: after}

	if limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n <= 0 || n > MaxLimit {
			return Params{}, errors.NewValidationError("limit", "must be between 1 and "+strconv.Itoa(MaxLimit), limit)
		}
		p.Limit = n
	}

	if _, err := p.BeforeID(); err != nil {
		return Params{}, err
	}
	return p, nil
}

// BeforeID returns the id rows must be older than, zero for the first page
func (p Params) BeforeID() (int64, error) {
	if p.After == "" {
		return 0, nil
	}
	return DecodeCursor(p.After)
}

// EncodeCursor encodes a row id into an opaque cursor
func EncodeCursor(id int64) string {
	return base64.RawURLEncoding.EncodeToString([]byte(cursorPrefix + strconv.FormatInt(id, 10)))
}

// DecodeCursor reverses EncodeCursor
func DecodeCursor(cursor string) (int64, error) {
	decoded, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return 0, errors.NewValidationError("after", "invalid cursor encoding", cursor)
	}

	str := string(decoded)
	if !strings.HasPrefix(str, cursorPrefix) {
		return 0, errors.NewValidationError("after", "invalid cursor format", cursor)
	}

	id, err := strconv.ParseInt(strings.TrimPrefix(str, cursorPrefix), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.NewValidationError("after", "invalid cursor id", cursor)
	}
	return id, nil
}

// PageInfo tells the client whether and where to continue
type PageInfo struct {
	HasNextPage bool    `json:"hasNextPage"`
	EndCursor   *string `json:"endCursor,omitempty"`
}

// Page is one slice of a newest-first listing
type Page[T any] struct {
	Items    []T      `json:"items"`
	PageInfo PageInfo `json:"pageInfo"`
}

// NewPage builds a page from rows fetched with limit+1, so a surplus row
// signals another page without a count query
func NewPage[T any](rows []T, limit int, idOf func(T) int64) Page[T] {
	page := Page[T]{Items: rows}
	if page.Items == nil {
		page.Items = []T{}
	}

	if len(rows) > limit {
		page.Items = rows[:limit]
		page.PageInfo.HasNextPage = true
	}

	if n := len(page.Items); n > 0 {
		cursor := EncodeCursor(idOf(page.Items[n-1]))
		page.PageInfo.EndCursor = &cursor
	}
	return page
}
