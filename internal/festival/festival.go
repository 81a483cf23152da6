// Package festival produces read-only all-day festival occurrences.
package festival

import (
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hray3182/calendard/internal/lunar"
	"github.com/hray3182/calendard/internal/models"
)

//go:embed festivals.yaml
var defaultTable []byte

type entry struct {
	Month int    `yaml:"month"`
	Day   int    `yaml:"day"`
	Title string `yaml:"title"`
}

type table struct {
	Solar []entry `yaml:"solar"`
	Lunar []entry `yaml:"lunar"`
}

type Calendar struct {
	solar map[[2]int][]string
	lunar map[[2]int][]string
}

// Load parses a festival table; an empty input selects the built-in one.
func Load(data []byte) (*Calendar, error) {
	if len(data) == 0 {
		data = defaultTable
	}
	var t table
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to parse festival table: %w", err)
	}
	c := &Calendar{
		solar: make(map[[2]int][]string),
		lunar: make(map[[2]int][]string),
	}
	for _, e := range t.Solar {
		c.solar[[2]int{e.Month, e.Day}] = append(c.solar[[2]int{e.Month, e.Day}], e.Title)
	}
	for _, e := range t.Lunar {
		c.lunar[[2]int{e.Month, e.Day}] = append(c.lunar[[2]int{e.Month, e.Day}], e.Title)
	}
	return c, nil
}

// Default returns the built-in festival table.
func Default() *Calendar {
	c, err := Load(nil)
	if err != nil {
		panic(err)
	}
	return c
}

// Enabled reports whether festivals are shown for locale.
func Enabled(locale string) bool {
	return strings.HasPrefix(strings.ToLower(locale), "zh")
}

// ID derives a stable identifier from the festival start and title.
func ID(start time.Time, title string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%d:%s", start.Unix(), title)))
	return hex.EncodeToString(sum[:16])
}

// Occurrences returns all-day festival occurrences for every day in
// [start, end] whose title contains keyword (when keyword is non-empty).
func (c *Calendar) Occurrences(start, end time.Time, keyword string) []*models.Schedule {
	loc := start.Location()
	day := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, loc)
	var out []*models.Schedule
	for !day.After(end) {
		var titles []string
		titles = append(titles, c.solar[[2]int{int(day.Month()), day.Day()}]...)
		l := lunar.FromSolar(day)
		// Leap months repeat the previous month's number but carry no festivals.
		if l.Month > 0 {
			titles = append(titles, c.lunar[[2]int{l.Month, l.Day}]...)
		}
		for _, title := range titles {
			if keyword != "" && !strings.Contains(title, keyword) {
				continue
			}
			out = append(out, &models.Schedule{
				ScheduleID: ID(day, title),
				TypeID:     models.FestivalTypeID,
				Title:      title,
				AllDay:     true,
				Start:      day,
				End:        day.AddDate(0, 0, 1),
			})
		}
		day = day.AddDate(0, 0, 1)
	}
	return out
}
