// Package materialize expands schedules into the concrete occurrences that
// fall inside a query window, bucketed by calendar day.
package materialize

import (
	"log"
	"sort"
	"time"

	"cloud.google.com/go/civil"

	"github.com/hray3182/calendard/internal/festival"
	"github.com/hray3182/calendard/internal/lunar"
	"github.com/hray3182/calendard/internal/models"
	"github.com/hray3182/calendard/internal/rrule"
)

// Days maps every date of a query window to the occurrences shown on it.
type Days map[civil.Date][]*models.Schedule

type Materializer struct {
	lunar *lunar.Evaluator
}

func New() *Materializer {
	return &Materializer{lunar: lunar.NewEvaluator()}
}

// Materialize expands schedules over [start, end]. The result has a bucket
// for every date of the window, in start's location. With extendMultiDay an
// occurrence spanning several days is placed in every bucket it touches,
// otherwise only in the bucket of its first visible day.
func (m *Materializer) Materialize(schedules []*models.Schedule, start, end time.Time, extendMultiDay bool) Days {
	loc := start.Location()
	end = end.In(loc)
	first, last := civil.DateOf(start), civil.DateOf(end)

	days := make(Days)
	for d := first; !d.After(last); d = d.AddDays(1) {
		days[d] = []*models.Schedule{}
	}

	for _, s := range schedules {
		if s.Deleted {
			continue
		}
		if !s.IsRecurring() {
			if intersects(s, start, end, loc) {
				days.place(s.Clone(), first, last, extendMultiDay, loc)
			}
			continue
		}

		instances, err := m.instances(s, start, end, extendMultiDay)
		if err != nil {
			log.Printf("Failed to expand schedule %s: %v", s.ScheduleID, err)
			continue
		}
		for _, inst := range instances {
			if rrule.ExceptionsContain(s.Exceptions, inst, s.AllDay) {
				continue
			}
			occ := s.Clone()
			occ.Start = inst
			occ.End = inst.Add(s.Duration())
			if !inst.Equal(s.Start) {
				rid := inst
				occ.RecurrenceID = &rid
			}
			if !intersects(occ, start, end, loc) {
				continue
			}
			days.place(occ, first, last, extendMultiDay, loc)
		}
	}

	days.sort()
	return days
}

// AddFestivals merges read-only festival occurrences into days.
func (d Days) AddFestivals(c *festival.Calendar, start, end time.Time, keyword string) {
	loc := start.Location()
	first, last := civil.DateOf(start), civil.DateOf(end.In(loc))
	for _, occ := range c.Occurrences(start, end, keyword) {
		d.place(occ, first, last, false, loc)
	}
	d.sort()
}

// Merge appends the buckets of other into d and restores bucket order.
func (d Days) Merge(other Days) {
	for date, occs := range other {
		d[date] = append(d[date], occs...)
	}
	d.sort()
}

// Flatten returns every occurrence once, ordered by start then id. Multi-day
// occurrences placed in several buckets are reported once.
func (d Days) Flatten() []*models.Schedule {
	dates := make([]civil.Date, 0, len(d))
	for date := range d {
		dates = append(dates, date)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	seen := make(map[string]bool)
	var out []*models.Schedule
	for _, date := range dates {
		for _, occ := range d[date] {
			key := models.OccurrenceKey(occ.ScheduleID, occ.RecurrenceID)
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, occ)
		}
	}
	return out
}

func (m *Materializer) instances(s *models.Schedule, start, end time.Time, extend bool) ([]time.Time, error) {
	searchStart := start
	if s.AllDay {
		searchStart = midnight(start.In(s.Start.Location()))
	}
	if extend {
		searchStart = searchStart.Add(-s.Duration())
	}

	if !s.IsLunar {
		return rrule.InstancesBetween(s.RecurrenceRule, s.Start, searchStart, end)
	}

	byOrdinal, err := m.lunar.SolarInstanceDatesInRange(s.RecurrenceRule, s.Start, searchStart, end)
	if err != nil {
		return nil, err
	}
	out := make([]time.Time, 0, len(byOrdinal))
	for _, t := range byOrdinal {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out, nil
}

// span returns the first and last calendar day an occurrence covers. An end
// exactly at midnight does not reach into that day.
func span(s *models.Schedule, loc *time.Location) (civil.Date, civil.Date) {
	if s.AllDay {
		first := civil.DateOf(s.Start)
		if !s.End.After(s.Start) {
			return first, first
		}
		return first, civil.DateOf(s.End.Add(-time.Nanosecond))
	}
	first := civil.DateOf(s.Start.In(loc))
	if !s.End.After(s.Start) {
		return first, first
	}
	return first, civil.DateOf(s.End.Add(-time.Nanosecond).In(loc))
}

func intersects(s *models.Schedule, start, end time.Time, loc *time.Location) bool {
	if s.AllDay {
		first, last := span(s, loc)
		return !last.Before(civil.DateOf(start)) && !first.After(civil.DateOf(end))
	}
	return !s.End.Before(start) && !s.Start.After(end)
}

func (d Days) place(occ *models.Schedule, first, last civil.Date, extend bool, loc *time.Location) {
	from, to := span(occ, loc)
	if !extend {
		if from.Before(first) {
			from = first
		}
		if _, ok := d[from]; ok {
			d[from] = append(d[from], occ)
		}
		return
	}
	for day := from; !day.After(to); day = day.AddDays(1) {
		if day.After(last) {
			break
		}
		if _, ok := d[day]; ok {
			d[day] = append(d[day], occ)
		}
	}
}

func (d Days) sort() {
	for _, bucket := range d {
		sort.SliceStable(bucket, func(i, j int) bool {
			if !bucket[i].Start.Equal(bucket[j].Start) {
				return bucket[i].Start.Before(bucket[j].Start)
			}
			return bucket[i].ScheduleID < bucket[j].ScheduleID
		})
	}
}

func midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
