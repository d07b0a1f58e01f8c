package scheduler

import (
	"errors"
	"testing"
	"time"
)

func TestScheduleNext(t *testing.T) {
	loc := time.UTC
	// Wednesday
	base := time.Date(2025, 1, 1, 9, 15, 0, 0, loc)

	tests := []struct {
		name     string
		schedule Schedule
		want     time.Time
		wantErr  bool
	}{
		{"interval minutes", Every(0, 1), base.Add(time.Minute), false},
		{"interval hours and minutes", Every(1, 30), base.Add(90 * time.Minute), false},
		{"interval zero falls back", Every(0, 0), base.Add(time.Hour), true},
		{"interval negative falls back", Every(-1, 0), base.Add(time.Hour), true},
		{"empty kind is interval", Schedule{Hours: 2}, base.Add(2 * time.Hour), false},
		{"daily later today", DailyAt("10:00"), time.Date(2025, 1, 1, 10, 0, 0, 0, loc), false},
		{"daily tomorrow", DailyAt("08:00"), time.Date(2025, 1, 2, 8, 0, 0, 0, loc), false},
		{"daily bad time falls back", DailyAt("25:99"), base.Add(time.Hour), true},
		{"daily missing time falls back", Schedule{Kind: TriggerDaily}, base.Add(time.Hour), true},
		{"weekly english", WeeklyAt("08:00", "Friday"), time.Date(2025, 1, 3, 8, 0, 0, 0, loc), false},
		{"weekly indonesian", WeeklyAt("08:00", "senin"), time.Date(2025, 1, 6, 8, 0, 0, 0, loc), false},
		{"weekly mixed picks earliest", WeeklyAt("20:00", "SAB", "wed"), time.Date(2025, 1, 1, 20, 0, 0, 0, loc), false},
		{"weekly no days falls back", WeeklyAt("08:00"), base.Add(time.Hour), true},
		{"weekly unknown day falls back", WeeklyAt("08:00", "someday"), base.Add(time.Hour), true},
		{"unknown kind falls back", Schedule{Kind: "monthly"}, base.Add(time.Hour), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := tt.schedule.resolve(loc)
			if (err != nil) != tt.wantErr {
				t.Fatalf("resolve() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				var schedErr *SchedulerError
				if !errors.As(err, &schedErr) || schedErr.Code != ErrCodeInvalidSchedule {
					t.Errorf("error = %v, want %s", err, ErrCodeInvalidSchedule)
				}
			}
			if got := n.next(base); !got.Equal(tt.want) {
				t.Errorf("next(%v) = %v, want %v", base, got, tt.want)
			}
		})
	}
}

func TestScheduleLocation(t *testing.T) {
	jakarta := time.FixedZone("WIB", 7*60*60)
	n, err := DailyAt("08:00").resolve(jakarta)
	if err != nil {
		t.Fatal(err)
	}
	// 00:30 UTC is 07:30 WIB, so the next 08:00 WIB is 01:00 UTC the same day.
	got := n.next(time.Date(2025, 1, 1, 0, 30, 0, 0, time.UTC))
	if want := time.Date(2025, 1, 1, 1, 0, 0, 0, time.UTC); !got.Equal(want) {
		t.Errorf("next = %v, want %v", got.UTC(), want)
	}
}

func TestParseWeekdays(t *testing.T) {
	tests := []struct {
		name    string
		input   []string
		want    []time.Weekday
		wantErr bool
	}{
		{"english full", []string{"Monday", "tuesday"}, []time.Weekday{time.Monday, time.Tuesday}, false},
		{"english short", []string{"SUN", "sat"}, []time.Weekday{time.Sunday, time.Saturday}, false},
		{"indonesian", []string{"Senin", "Rabu", "Jumat", "Minggu"}, []time.Weekday{time.Sunday, time.Monday, time.Wednesday, time.Friday}, false},
		{"comma separated", []string{"mon, wed ,fri"}, []time.Weekday{time.Monday, time.Wednesday, time.Friday}, false},
		{"numbers", []string{"0", "6"}, []time.Weekday{time.Sunday, time.Saturday}, false},
		{"dedup", []string{"mon", "Monday", "senin"}, []time.Weekday{time.Monday}, false},
		{"empty", nil, []time.Weekday{}, false},
		{"unknown", []string{"funday"}, nil, true},
		{"out of range", []string{"7"}, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseWeekdays(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseWeekdays() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if len(got) != len(tt.want) {
				t.Fatalf("ParseWeekdays() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("day %d = %v, want %v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestScheduleValidate(t *testing.T) {
	if err := Every(0, 15).Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}
	if err := WeeklyAt("07:00").Validate(); err == nil {
		t.Error("Validate() should reject weekly without days")
	}
}

func TestJobIDs(t *testing.T) {
	tests := []struct {
		subject Subject
		want    string
	}{
		{CameraSubject("front_door", true, Every(1, 0)), "analysis_front_door"},
		{Subject{Kind: KindPatrol}, "patrol_global"},
		{Subject{Kind: KindPersonFinder}, "person_finder_scheduled"},
		{Subject{Kind: KindMeter, ID: "water"}, "meter_water"},
		{Subject{Kind: KindDoorbell}, "doorbell_iq"},
	}
	for _, tt := range tests {
		if got := tt.subject.JobID(); got != tt.want {
			t.Errorf("JobID() = %q, want %q", got, tt.want)
		}
	}
}
