package models

import "time"

// AlarmType is the reminder offset attached to a schedule. The first group
// applies to timed schedules, the "At9" group fires at 09:00 local time and
// is meant for all-day schedules.
type AlarmType int

const (
	AlarmNone AlarmType = iota
	AlarmAtStart
	Alarm15MinutesBefore
	Alarm30MinutesBefore
	Alarm1HourBefore
	Alarm1DayBefore
	Alarm2DaysBefore
	Alarm1WeekBefore
	AlarmOnDayAt9
	Alarm1DayBeforeAt9
	Alarm2DaysBeforeAt9
	Alarm1WeekBeforeAt9
)

// MaxAlarmLead is the furthest any alarm can fire ahead of its occurrence.
const MaxAlarmLead = 8 * 24 * time.Hour

func (a AlarmType) Valid() bool {
	return a >= AlarmNone && a <= Alarm1WeekBeforeAt9
}

// TriggerTime returns when the alarm fires for an occurrence starting at
// start. ok is false for AlarmNone and unknown values.
func (a AlarmType) TriggerTime(start time.Time) (t time.Time, ok bool) {
	switch a {
	case AlarmAtStart:
		return start, true
	case Alarm15MinutesBefore:
		return start.Add(-15 * time.Minute), true
	case Alarm30MinutesBefore:
		return start.Add(-30 * time.Minute), true
	case Alarm1HourBefore:
		return start.Add(-time.Hour), true
	case Alarm1DayBefore:
		return start.AddDate(0, 0, -1), true
	case Alarm2DaysBefore:
		return start.AddDate(0, 0, -2), true
	case Alarm1WeekBefore:
		return start.AddDate(0, 0, -7), true
	case AlarmOnDayAt9:
		return atNine(start, 0), true
	case Alarm1DayBeforeAt9:
		return atNine(start, -1), true
	case Alarm2DaysBeforeAt9:
		return atNine(start, -2), true
	case Alarm1WeekBeforeAt9:
		return atNine(start, -7), true
	}
	return time.Time{}, false
}

func atNine(start time.Time, days int) time.Time {
	y, m, d := start.Date()
	return time.Date(y, m, d+days, 9, 0, 0, 0, start.Location())
}

func (a AlarmType) String() string {
	switch a {
	case AlarmNone:
		return "none"
	case AlarmAtStart:
		return "at start"
	case Alarm15MinutesBefore:
		return "15 minutes before"
	case Alarm30MinutesBefore:
		return "30 minutes before"
	case Alarm1HourBefore:
		return "1 hour before"
	case Alarm1DayBefore:
		return "1 day before"
	case Alarm2DaysBefore:
		return "2 days before"
	case Alarm1WeekBefore:
		return "1 week before"
	case AlarmOnDayAt9:
		return "on the day at 09:00"
	case Alarm1DayBeforeAt9:
		return "1 day before at 09:00"
	case Alarm2DaysBeforeAt9:
		return "2 days before at 09:00"
	case Alarm1WeekBeforeAt9:
		return "1 week before at 09:00"
	}
	return "unknown"
}
