package festival

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOccurrencesIncludesSolarAndLunar(t *testing.T) {
	c := Default()
	start := time.Date(2024, 2, 9, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 2, 14, 23, 59, 0, 0, time.UTC)

	got := c.Occurrences(start, end, "")
	var titles []string
	for _, o := range got {
		titles = append(titles, o.Title)
		assert.True(t, o.AllDay)
		assert.True(t, o.IsFestival())
	}
	assert.Contains(t, titles, "春节")
	assert.Contains(t, titles, "情人节")
}

func TestOccurrencesKeywordFilter(t *testing.T) {
	c := Default()
	start := time.Date(2024, 2, 9, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 2, 14, 0, 0, 0, 0, time.UTC)

	got := c.Occurrences(start, end, "春")
	require.Len(t, got, 1)
	assert.Equal(t, time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC), got[0].Start)
}

func TestIDIsDeterministic(t *testing.T) {
	day := time.Date(2024, 10, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, ID(day, "国庆节"), ID(day, "国庆节"))
	assert.NotEqual(t, ID(day, "国庆节"), ID(day.AddDate(1, 0, 0), "国庆节"))
}

func TestLoadCustomTable(t *testing.T) {
	c, err := Load([]byte("solar:\n  - {month: 4, day: 1, title: Fools}\n"))
	require.NoError(t, err)
	got := c.Occurrences(time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC), "")
	require.Len(t, got, 1)
	assert.Equal(t, "Fools", got[0].Title)
}

func TestEnabled(t *testing.T) {
	assert.True(t, Enabled("zh_CN"))
	assert.True(t, Enabled("zh-TW"))
	assert.False(t, Enabled("en_US"))
}
