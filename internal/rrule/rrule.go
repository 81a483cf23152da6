package rrule

import (
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/teambition/rrule-go"
)

// ParseOption parses an RFC 5545 RRULE string without binding it to a start.
func ParseOption(ruleStr string) (*rrule.ROption, error) {
	// Handle RRULE: prefix if present
	ruleStr = strings.TrimPrefix(strings.TrimSpace(ruleStr), "RRULE:")

	opt, err := rrule.StrToROption(ruleStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse RRULE: %w", err)
	}
	return opt, nil
}

// ParseRRule parses an RFC 5545 RRULE string and binds it to dtstart.
// Instances are produced in dtstart's location.
func ParseRRule(ruleStr string, dtstart time.Time) (*rrule.RRule, error) {
	opt, err := ParseOption(ruleStr)
	if err != nil {
		return nil, err
	}
	opt.Dtstart = dtstart
	return rrule.NewRRule(*opt)
}

// InstancesBetween returns every instance start of the rule anchored at
// dtstart that falls inside [start, end], both ends inclusive.
func InstancesBetween(ruleStr string, dtstart, start, end time.Time) ([]time.Time, error) {
	rule, err := ParseRRule(ruleStr, dtstart)
	if err != nil {
		return nil, err
	}
	if end.Before(start) {
		return nil, nil
	}
	return rule.Between(start, end, true), nil
}

// ExceptionsContain reports whether instance is excluded. All-day schedules
// compare by calendar date, timed schedules by exact instant.
func ExceptionsContain(exceptions []time.Time, instance time.Time, allDay bool) bool {
	for _, ex := range exceptions {
		if allDay {
			if civil.DateOf(ex) == civil.DateOf(instance) {
				return true
			}
			continue
		}
		if ex.Equal(instance) {
			return true
		}
	}
	return false
}

// Equal reports whether two rule strings describe the same recurrence.
// Unparsable rules only compare equal when they are textually identical.
func Equal(a, b string) bool {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	if a == b {
		return true
	}
	if a == "" || b == "" {
		return false
	}
	oa, errA := ParseOption(a)
	ob, errB := ParseOption(b)
	if errA != nil || errB != nil {
		return false
	}
	return oa.RRuleString() == ob.RRuleString()
}

// Describe returns a short English description of the RRULE
func Describe(ruleStr string) string {
	ruleStr = strings.TrimPrefix(strings.TrimSpace(ruleStr), "RRULE:")

	parts := strings.Split(ruleStr, ";")
	info := make(map[string]string)
	for _, p := range parts {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) == 2 {
			info[strings.ToUpper(kv[0])] = kv[1]
		}
	}

	units := map[string]string{
		"HOURLY":  "hour",
		"DAILY":   "day",
		"WEEKLY":  "week",
		"MONTHLY": "month",
		"YEARLY":  "year",
	}
	unit, ok := units[strings.ToUpper(info["FREQ"])]
	if !ok {
		return "once"
	}

	var result strings.Builder
	if interval := info["INTERVAL"]; interval == "" || interval == "1" {
		result.WriteString("every " + unit)
	} else {
		result.WriteString(fmt.Sprintf("every %s %ss", interval, unit))
	}

	if byDay := info["BYDAY"]; byDay != "" {
		dayMap := map[string]string{
			"MO": "Mon", "TU": "Tue", "WE": "Wed", "TH": "Thu",
			"FR": "Fri", "SA": "Sat", "SU": "Sun",
		}
		var days []string
		for _, d := range strings.Split(byDay, ",") {
			if name, ok := dayMap[strings.ToUpper(d)]; ok {
				days = append(days, name)
			}
		}
		if len(days) > 0 {
			result.WriteString(" on " + strings.Join(days, ", "))
		}
	}

	if count := info["COUNT"]; count != "" {
		result.WriteString(fmt.Sprintf(", %s times", count))
	}

	if until := info["UNTIL"]; until != "" {
		if t, err := time.Parse("20060102T150405Z", until); err == nil {
			result.WriteString(fmt.Sprintf(", until %s", t.Format("2006-01-02")))
		}
	}
	return result.String()
}
