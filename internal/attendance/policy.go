package attendance

import (
	"regexp"
	"strings"
	"time"

	"github.com/mkratky/rollcall/internal/store"
)

// clockTime is a wall-clock time of day, independent of date.
type clockTime struct {
	Hour   int
	Minute int
}

func (c clockTime) minutes() int { return c.Hour*60 + c.Minute }

// Policy classifies automatic marks as present or late. Each group's
// schedule string yields its own cutoff (start time plus grace); groups
// with no parseable schedule use the fixed default cutoff.
type Policy struct {
	defaultCutoff clockTime
	grace         time.Duration
}

// NewPolicy builds a lateness policy. defaultCutoff is "HH:MM"; an
// unparseable value falls back to 08:15.
func NewPolicy(defaultCutoff string, grace time.Duration) *Policy {
	cutoff, ok := parseClock(defaultCutoff)
	if !ok {
		cutoff = clockTime{Hour: 8, Minute: 15}
	}
	return &Policy{defaultCutoff: cutoff, grace: grace}
}

// Classify returns present or late for an automatic mark at the given
// time, under the group's schedule.
func (p *Policy) Classify(group *store.Group, now time.Time) store.Status {
	cutoff := p.cutoffFor(group)
	if clockOf(now).minutes() > cutoff.minutes() {
		return store.StatusLate
	}
	return store.StatusPresent
}

// cutoffFor derives the group's cutoff: schedule start plus grace, or the
// default when the schedule has no recognizable start time.
func (p *Policy) cutoffFor(group *store.Group) clockTime {
	if group != nil {
		if start, ok := parseScheduleStart(group.Schedule); ok {
			return addMinutes(start, int(p.grace.Minutes()))
		}
	}
	return p.defaultCutoff
}

// scheduleStartRe matches the first time-of-day in a schedule string
// such as "MWF 8:00-9:00" or "TTh 1:30-3:00 PM".
var scheduleStartRe = regexp.MustCompile(`(\d{1,2}):(\d{2})\s*(?:-\s*\d{1,2}:\d{2})?\s*([AaPp][Mm])?`)

// parseScheduleStart extracts the start time from a schedule string.
// A trailing AM/PM marker applies to the start time.
func parseScheduleStart(schedule string) (clockTime, bool) {
	m := scheduleStartRe.FindStringSubmatch(schedule)
	if m == nil {
		return clockTime{}, false
	}
	hour := atoi(m[1])
	minute := atoi(m[2])
	if hour > 23 || minute > 59 {
		return clockTime{}, false
	}
	switch strings.ToUpper(m[3]) {
	case "PM":
		if hour < 12 {
			hour += 12
		}
	case "AM":
		if hour == 12 {
			hour = 0
		}
	}
	return clockTime{Hour: hour, Minute: minute}, true
}

func parseClock(s string) (clockTime, bool) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return clockTime{}, false
	}
	return clockTime{Hour: t.Hour(), Minute: t.Minute()}, true
}

func clockOf(t time.Time) clockTime {
	return clockTime{Hour: t.Hour(), Minute: t.Minute()}
}

func addMinutes(c clockTime, minutes int) clockTime {
	total := c.minutes() + minutes
	total %= 24 * 60
	if total < 0 {
		total += 24 * 60
	}
	return clockTime{Hour: total / 60, Minute: total % 60}
}

func atoi(s string) int {
	n := 0
	for _, r := range s {
		n = n*10 + int(r-'0')
	}
	return n
}
