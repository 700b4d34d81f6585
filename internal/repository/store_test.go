package repository

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/mdawoud27/job-search-app-sub000/internal/models"
)

func TestPaginateKeepsInsertionOrderOnTies(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	msgs := []models.Message{
		{ID: "1", Body: "first", CreatedAt: at},
		{ID: "2", Body: "second", CreatedAt: at},
		{ID: "0", Body: "earlier", CreatedAt: at.Add(-time.Minute)},
	}

	asc, total := paginate(msgs, Page{Sort: SortAsc})
	assert.Equal(t, int64(3), total)
	assert.Equal(t, []string{"earlier", "first", "second"}, bodies(asc))

	desc, _ := paginate(msgs, Page{Sort: SortDesc})
	assert.Equal(t, []string{"second", "first", "earlier"}, bodies(desc))
}

func TestPageNormalize(t *testing.T) {
	p := Page{Offset: -3, Limit: 1000}.normalize()
	assert.Equal(t, 0, p.Offset)
	assert.Equal(t, MaxPageLimit, p.Limit)
	assert.Equal(t, SortDesc, p.Sort)

	assert.Equal(t, DefaultPageLimit, Page{}.normalize().Limit)
}

func TestParseSort(t *testing.T) {
	assert.Equal(t, SortAsc, ParseSort("asc"))
	assert.Equal(t, SortAsc, ParseSort("1"))
	assert.Equal(t, SortDesc, ParseSort("-1"))
	assert.Equal(t, SortDesc, ParseSort(""))
}
