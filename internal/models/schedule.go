package models

import "time"

// FestivalTypeID marks read-only festival occurrences produced at query time.
const FestivalTypeID = "festival"

type Schedule struct {
	ScheduleID     string      `json:"schedule_id"`
	AccountID      string      `json:"account_id"`
	TypeID         string      `json:"type_id"`
	Title          string      `json:"title"`
	Description    string      `json:"description"`
	AllDay         bool        `json:"all_day"`
	Start          time.Time   `json:"dtstart"`
	End            time.Time   `json:"dtend"`
	RecurrenceRule string      `json:"recurrence_rule"` // RFC 5545 RRULE
	Exceptions     []time.Time `json:"exdates"`
	IsLunar        bool        `json:"is_lunar"`
	Alarm          AlarmType   `json:"alarm"`
	Revision       int         `json:"revision"`
	Deleted        bool        `json:"deleted"`
	RecurrenceID   *time.Time  `json:"recurrence_id,omitempty"` // Only set on materialized instances
	CreatedAt      time.Time   `json:"created_at"`
	ModifiedAt     time.Time   `json:"modified_at"`
}

// IsRecurring returns true if this schedule has a recurrence rule
func (s *Schedule) IsRecurring() bool {
	return s.RecurrenceRule != ""
}

func (s *Schedule) Duration() time.Duration {
	return s.End.Sub(s.Start)
}

func (s *Schedule) IsFestival() bool {
	return s.TypeID == FestivalTypeID
}

// Clone returns a copy that shares nothing mutable with s.
func (s *Schedule) Clone() *Schedule {
	c := *s
	if s.Exceptions != nil {
		c.Exceptions = append([]time.Time(nil), s.Exceptions...)
	}
	if s.RecurrenceID != nil {
		rid := *s.RecurrenceID
		c.RecurrenceID = &rid
	}
	return &c
}

type ScheduleType struct {
	TypeID    string    `json:"type_id"`
	Name      string    `json:"name"`
	ColorID   string    `json:"color_id"`
	Deleted   bool      `json:"deleted"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Color struct {
	ColorID   string    `json:"color_id"`
	Hex       string    `json:"hex"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DefaultColors and DefaultScheduleTypes seed a fresh account or snapshot.
var DefaultColors = []Color{
	{ColorID: "color-work", Hex: "#ff5e97"},
	{ColorID: "color-life", Hex: "#5bdd80"},
	{ColorID: "color-other", Hex: "#5d51ff"},
}

var DefaultScheduleTypes = []ScheduleType{
	{TypeID: "type-work", Name: "Work", ColorID: "color-work"},
	{TypeID: "type-life", Name: "Life", ColorID: "color-life"},
	{TypeID: "type-other", Name: "Other", ColorID: "color-other"},
}
