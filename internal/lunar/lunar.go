// Package lunar expands recurrence rules whose anchor is a Chinese lunar
// date into solar calendar dates.
package lunar

import (
	"errors"
	"fmt"
	"time"

	"github.com/6tail/lunar-go/calendar"
	"github.com/teambition/rrule-go"

	rr "github.com/hray3182/calendard/internal/rrule"
)

// maxSteps bounds rule expansion when neither COUNT nor UNTIL ends it.
const maxSteps = 5000

var ErrUnsupportedFrequency = errors.New("lunar rules support only MONTHLY and YEARLY")

// Date is a lunar calendar date. Month is negative for a leap month.
type Date struct {
	Year  int
	Month int
	Day   int
}

// FromSolar converts a solar day to its lunar date.
func FromSolar(t time.Time) Date {
	l := calendar.NewSolarFromYmd(t.Year(), int(t.Month()), t.Day()).GetLunar()
	return Date{Year: l.GetYear(), Month: l.GetMonth(), Day: l.GetDay()}
}

// ToSolar returns midnight of the solar day matching d in loc. ok is false
// when d does not exist (for example day 30 of a 29-day month).
func ToSolar(d Date, loc *time.Location) (t time.Time, ok bool) {
	first := monthStart(d.Year, d.Month, loc)
	t = first.AddDate(0, 0, d.Day-1)
	if FromSolar(t) != d {
		return time.Time{}, false
	}
	return t, true
}

func monthStart(year, month int, loc *time.Location) time.Time {
	s := calendar.NewLunarFromYmd(year, month, 1).GetSolar()
	return time.Date(s.GetYear(), time.Month(s.GetMonth()), s.GetDay(), 0, 0, 0, 0, loc)
}

// nextMonth returns the lunar (year, month) following the month that
// starts at first. Leap months are visited like any other month.
func nextMonth(first time.Time) (int, int, time.Time) {
	// Lunar months are 29 or 30 days long.
	t := first.AddDate(0, 0, 29)
	d := FromSolar(t)
	if d.Day != 1 {
		t = t.AddDate(0, 0, 1)
		d = FromSolar(t)
	}
	return d.Year, d.Month, t
}

type Evaluator struct{}

func NewEvaluator() *Evaluator {
	return &Evaluator{}
}

// SolarInstanceDatesInRange expands ruleStr anchored at the lunar date of
// dtstart and returns the solar instance starts (dtstart's clock time)
// inside [start, end]. The map key is the instance ordinal, 0 being the
// template itself.
func (e *Evaluator) SolarInstanceDatesInRange(ruleStr string, dtstart, start, end time.Time) (map[int]time.Time, error) {
	opt, err := rr.ParseOption(ruleStr)
	if err != nil {
		return nil, err
	}
	if opt.Freq != rrule.MONTHLY && opt.Freq != rrule.YEARLY {
		return nil, fmt.Errorf("%w: got %v", ErrUnsupportedFrequency, opt.Freq)
	}
	interval := opt.Interval
	if interval <= 0 {
		interval = 1
	}

	loc := dtstart.Location()
	clock := dtstart.Sub(time.Date(dtstart.Year(), dtstart.Month(), dtstart.Day(), 0, 0, 0, 0, loc))
	anchor := FromSolar(dtstart)

	result := make(map[int]time.Time)
	emit := func(ordinal int, day time.Time) bool {
		inst := day.Add(clock)
		if !opt.Until.IsZero() && inst.After(opt.Until) {
			return false
		}
		if inst.After(end) {
			return false
		}
		if !inst.Before(start) {
			result[ordinal] = inst
		}
		return true
	}

	ordinal := 0
	if opt.Freq == rrule.YEARLY {
		month := anchor.Month
		if month < 0 {
			month = -month
		}
		for step := 0; step < maxSteps; step += interval {
			day, ok := ToSolar(Date{Year: anchor.Year + step, Month: month, Day: anchor.Day}, loc)
			if step == 0 {
				day, ok = time.Date(dtstart.Year(), dtstart.Month(), dtstart.Day(), 0, 0, 0, 0, loc), true
			}
			if !ok {
				continue
			}
			if opt.Count > 0 && ordinal >= opt.Count {
				break
			}
			if !emit(ordinal, day) {
				break
			}
			ordinal++
		}
		return result, nil
	}

	year, month := anchor.Year, anchor.Month
	first := monthStart(year, month, loc)
	for step := 0; step < maxSteps; step++ {
		if step%interval == 0 {
			day, ok := ToSolar(Date{Year: year, Month: month, Day: anchor.Day}, loc)
			if ok {
				if opt.Count > 0 && ordinal >= opt.Count {
					break
				}
				if !emit(ordinal, day) {
					break
				}
				ordinal++
			}
		}
		year, month, first = nextMonth(first)
		if first.After(end) {
			break
		}
	}
	return result, nil
}
