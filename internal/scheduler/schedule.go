package scheduler

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// TriggerKind selects how a schedule computes its fire times.
type TriggerKind string

// Trigger kinds.
const (
	TriggerInterval TriggerKind = "interval"
	TriggerDaily    TriggerKind = "daily"
	TriggerWeekly   TriggerKind = "weekly"
)

// FallbackInterval is used whenever a schedule cannot be interpreted.
const FallbackInterval = time.Hour

// Schedule is the declarative trigger configuration of a subject.
type Schedule struct {
	Kind    TriggerKind `json:"type" toml:"type"`
	Hours   int         `json:"interval_hrs,omitempty" toml:"interval_hrs,omitempty"`
	Minutes int         `json:"interval_mins,omitempty" toml:"interval_mins,omitempty"`
	Time    string      `json:"time,omitempty" toml:"time,omitempty"` // HH:MM
	Days    []string    `json:"days,omitempty" toml:"days,omitempty"` // weekly only
}

// Every returns an interval schedule.
func Every(hours, minutes int) Schedule {
	return Schedule{Kind: TriggerInterval, Hours: hours, Minutes: minutes}
}

// DailyAt returns a daily schedule for HH:MM.
func DailyAt(hhmm string) Schedule {
	return Schedule{Kind: TriggerDaily, Time: hhmm}
}

// WeeklyAt returns a weekly schedule for HH:MM on the given days.
func WeeklyAt(hhmm string, days ...string) Schedule {
	return Schedule{Kind: TriggerWeekly, Time: hhmm, Days: days}
}

// Validate reports why a schedule would fall back to hourly, or nil.
func (s Schedule) Validate() error {
	_, err := s.compile(time.UTC)
	return err
}

// nexter computes the next fire time strictly after a given instant.
type nexter interface {
	next(after time.Time) time.Time
	String() string
}

type intervalNexter struct {
	every time.Duration
}

func (n intervalNexter) next(after time.Time) time.Time {
	return after.Add(n.every)
}

func (n intervalNexter) String() string {
	return "every " + n.every.String()
}

type cronNexter struct {
	spec *cron.SpecSchedule
	desc string
}

func (n cronNexter) next(after time.Time) time.Time {
	return n.spec.Next(after)
}

func (n cronNexter) String() string {
	return n.desc
}

// resolve compiles the schedule, falling back to hourly when it is misconfigured.
func (s Schedule) resolve(loc *time.Location) (nexter, error) {
	n, err := s.compile(loc)
	if err != nil {
		return intervalNexter{every: FallbackInterval}, err
	}
	return n, nil
}

func (s Schedule) compile(loc *time.Location) (nexter, error) {
	switch s.Kind {
	case TriggerInterval, "":
		minutes := s.Hours*60 + s.Minutes
		if minutes <= 0 {
			return nil, invalidSchedule("interval must be positive, got %dh%dm", s.Hours, s.Minutes)
		}
		return intervalNexter{every: time.Duration(minutes) * time.Minute}, nil

	case TriggerDaily, TriggerWeekly:
		hour, minute, err := parseClock(s.Time)
		if err != nil {
			return nil, err
		}

		dow := "*"
		desc := fmt.Sprintf("daily at %02d:%02d", hour, minute)
		if s.Kind == TriggerWeekly {
			days, err := ParseWeekdays(s.Days)
			if err != nil {
				return nil, err
			}
			if len(days) == 0 {
				return nil, invalidSchedule("weekly schedule needs at least one day")
			}
			parts := make([]string, len(days))
			names := make([]string, len(days))
			for i, d := range days {
				parts[i] = strconv.Itoa(int(d))
				names[i] = d.String()[:3]
			}
			dow = strings.Join(parts, ",")
			desc = fmt.Sprintf("weekly on %s at %02d:%02d", strings.Join(names, ","), hour, minute)
		}

		parsed, err := cron.ParseStandard(fmt.Sprintf("%d %d * * %s", minute, hour, dow))
		if err != nil {
			return nil, invalidSchedule("cron: %v", err)
		}
		spec, ok := parsed.(*cron.SpecSchedule)
		if !ok {
			return nil, invalidSchedule("unexpected cron schedule type %T", parsed)
		}
		if loc != nil {
			spec.Location = loc
		}
		return cronNexter{spec: spec, desc: desc}, nil

	default:
		return nil, invalidSchedule("unknown schedule type %q", s.Kind)
	}
}

func invalidSchedule(format string, args ...any) error {
	return &SchedulerError{Code: ErrCodeInvalidSchedule, Message: fmt.Sprintf(format, args...)}
}

// parseClock parses HH:MM.
func parseClock(s string) (hour, minute int, err error) {
	h, m, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, 0, invalidSchedule("time %q is not HH:MM", s)
	}
	hour, err = strconv.Atoi(h)
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, invalidSchedule("invalid hour in %q", s)
	}
	minute, err = strconv.Atoi(m)
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, invalidSchedule("invalid minute in %q", s)
	}
	return hour, minute, nil
}

var weekdayNames = map[string]time.Weekday{
	"sunday": time.Sunday, "sun": time.Sunday, "minggu": time.Sunday, "min": time.Sunday,
	"monday": time.Monday, "mon": time.Monday, "senin": time.Monday, "sen": time.Monday,
	"tuesday": time.Tuesday, "tue": time.Tuesday, "selasa": time.Tuesday, "sel": time.Tuesday,
	"wednesday": time.Wednesday, "wed": time.Wednesday, "rabu": time.Wednesday, "rab": time.Wednesday,
	"thursday": time.Thursday, "thu": time.Thursday, "kamis": time.Thursday, "kam": time.Thursday,
	"friday": time.Friday, "fri": time.Friday, "jumat": time.Friday, "jum'at": time.Friday, "jum": time.Friday,
	"saturday": time.Saturday, "sat": time.Saturday, "sabtu": time.Saturday, "sab": time.Saturday,
}

// ParseWeekdays parses weekday names (English or Indonesian, full or three
// letters, any case) or numbers 0-6 with 0 = Sunday. The result is sorted and
// deduplicated. Entries may also be comma separated within one string.
func ParseWeekdays(names []string) ([]time.Weekday, error) {
	seen := make(map[time.Weekday]bool)
	for _, entry := range names {
		for _, raw := range strings.Split(entry, ",") {
			name := strings.ToLower(strings.TrimSpace(raw))
			if name == "" {
				continue
			}
			if d, ok := weekdayNames[name]; ok {
				seen[d] = true
				continue
			}
			if n, err := strconv.Atoi(name); err == nil && n >= 0 && n <= 6 {
				seen[time.Weekday(n)] = true
				continue
			}
			return nil, invalidSchedule("unknown weekday %q", raw)
		}
	}

	days := make([]time.Weekday, 0, len(seen))
	for d := range seen {
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i] < days[j] })
	return days, nil
}
