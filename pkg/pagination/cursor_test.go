package pagination

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"govdash/pkg/errors"
)

func TestEncodeDecode(t *testing.T) {
	tests := []struct {
		name string
		id   int64
	}{
		{"one", 1},
		{"positive", 42},
		{"large", 9_007_199_254_740_993},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := DecodeCursor(EncodeCursor(tt.id))
			require.NoError(t, err)
			assert.Equal(t, tt.id, id)
		})
	}
}

func TestDecodeCursor_Invalid(t *testing.T) {
	enc := base64.RawURLEncoding.EncodeToString
	tests := []struct {
		name   string
		cursor string
	}{
		{"empty", ""},
		{"invalid base64", "!!!invalid!!!"},
		{"invalid format", enc([]byte("hello"))},
		{"invalid id", enc([]byte("cursor:abc"))},
		{"zero id", enc([]byte("cursor:0"))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeCursor(tt.cursor)
			var verr *errors.ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, "after", verr.Field)
		})
	}
}

func TestParseParams(t *testing.T) {
	tests := []struct {
		name      string
		limit     string
		after     string
		wantLimit int
		wantField string
	}{
		{name: "defaults", wantLimit: DefaultLimit},
		{name: "explicit limit", limit: "5", wantLimit: 5},
		{name: "max limit", limit: "500", wantLimit: MaxLimit},
		{name: "with cursor", limit: "3", after: EncodeCursor(7), wantLimit: 3},
		{name: "zero limit", limit: "0", wantField: "limit"},
		{name: "over max", limit: "501", wantField: "limit"},
		{name: "not a number", limit: "ten", wantField: "limit"},
		{name: "bad cursor", after: "nope", wantField: "after"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := ParseParams(tt.limit, tt.after)
			if tt.wantField != "" {
				var verr *errors.ValidationError
				require.True(t, errors.As(err, &verr))
				assert.Equal(t, tt.wantField, verr.Field)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantLimit, p.Limit)
		})
	}
}

func TestParams_BeforeID(t *testing.T) {
	id, err := Params{}.BeforeID()
	require.NoError(t, err)
	assert.Zero(t, id)

	id, err = Params{After: EncodeCursor(12)}.BeforeID()
	require.NoError(t, err)
	assert.Equal(t, int64(12), id)
}

func TestNewPage(t *testing.T) {
	idOf := func(v int64) int64 { return v }

	t.Run("surplus row means another page", func(t *testing.T) {
		page := NewPage([]int64{9, 8, 7}, 2, idOf)
		assert.Equal(t, []int64{9, 8}, page.Items)
		assert.True(t, page.PageInfo.HasNextPage)
		require.NotNil(t, page.PageInfo.EndCursor)

		id, err := DecodeCursor(*page.PageInfo.EndCursor)
		require.NoError(t, err)
		assert.Equal(t, int64(8), id)
	})

	t.Run("last page", func(t *testing.T) {
		page := NewPage([]int64{3}, 2, idOf)
		assert.Equal(t, []int64{3}, page.Items)
		assert.False(t, page.PageInfo.HasNextPage)
		assert.NotNil(t, page.PageInfo.EndCursor)
	})

	t.Run("empty", func(t *testing.T) {
		page := NewPage[int64](nil, 2, idOf)
		assert.NotNil(t, page.Items)
		assert.Empty(t, page.Items)
		assert.False(t, page.PageInfo.HasNextPage)
		assert.Nil(t, page.PageInfo.EndCursor)
	})
}
