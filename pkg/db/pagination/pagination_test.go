package pagination

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type row struct{ id int64 }

func TestTrimProducesResumableToken(t *testing.T) {
	rows := []*row{{id: 9}, {id: 7}, {id: 5}}
	page, info := Trim(rows, 2, func(r *row) int64 { return r.id })

	require.Len(t, page, 2)
	assert.True(t, info.HasMore)

	next, err := Pagination{PageToken: info.NextPageToken}.CursorID()
	require.NoError(t, err)
	assert.Equal(t, int64(7), next)
}

func TestTrimLastPage(t *testing.T) {
	rows := []*row{{id: 3}}
	page, info := Trim(rows, 2, func(r *row) int64 { return r.id })
	assert.Len(t, page, 1)
	assert.False(t, info.HasMore)
	assert.Empty(t, info.NextPageToken)
}

func TestLimitClamps(t *testing.T) {
	assert.Equal(t, DefaultPageSize, Pagination{}.Limit())
	assert.Equal(t, MaxPageSize, Pagination{PageSize: 10_000}.Limit())
	assert.Equal(t, 5, Pagination{PageSize: 5}.Limit())
}

func TestCursorIDRejectsGarbage(t *testing.T) {
	_, err := Pagination{PageToken: "%%%"}.CursorID()
	assert.Error(t, err)
}
