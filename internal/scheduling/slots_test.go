package scheduling

import (
	"testing"
	"time"
)

func weekdayTemplate(start, end string) AvailabilityTemplate {
	var tmpl AvailabilityTemplate
	for d := time.Monday; d <= time.Friday; d++ {
		tmpl.Windows = append(tmpl.Windows, AvailabilityWindow{
			Weekday:   d,
			StartTime: start,
			EndTime:   end,
			Available: true,
		})
	}
	return tmpl
}

// 2026-03-02 is a Monday.
var monday = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

func labels(slots []Slot) []string {
	out := make([]string, 0, len(slots))
	for _, s := range slots {
		out = append(out, s.Label)
	}
	return out
}

func TestGenerateSlotsBasic(t *testing.T) {
	tmpl := weekdayTemplate("09:00", "10:00")
	now := monday.Add(-24 * time.Hour) // generating the day before

	slots := GenerateSlots(tmpl, monday, nil, 15, 10, now)

	want := []string{"09:00", "09:15", "09:30", "09:45"}
	got := labels(slots)
	if len(got) != len(want) {
		t.Fatalf("got %d slots %v, want %d", len(got), got, len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("slot %d = %s, want %s", i, got[i], want[i])
		}
	}

	if !slots[0].Start.Equal(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)) {
		t.Errorf("first slot start = %s", slots[0].Start)
	}
	if !slots[0].End.Equal(slots[0].Start.Add(15 * time.Minute)) {
		t.Errorf("first slot end = %s", slots[0].End)
	}
}

func TestGenerateSlotsSkipsBookedLabels(t *testing.T) {
	tmpl := weekdayTemplate("09:00", "10:00")
	now := monday.Add(-24 * time.Hour)

	slots := GenerateSlots(tmpl, monday, []string{"09:15"}, 15, 3, now)

	// The booked label is skipped without counting toward the cap, so
	// three free slots still come back.
	want := []string{"09:00", "09:30", "09:45"}
	got := labels(slots)
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("slot %d = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestGenerateSlotsMaxSlotsCap(t *testing.T) {
	tmpl := weekdayTemplate("09:00", "17:00")
	now := monday.Add(-24 * time.Hour)

	slots := GenerateSlots(tmpl, monday, nil, 15, 3, now)
	if len(slots) != 3 {
		t.Fatalf("got %d slots, want 3", len(slots))
	}
}

func TestGenerateSlotsTodayClampsToNow(t *testing.T) {
	tmpl := weekdayTemplate("09:00", "10:00")

	tests := []struct {
		name string
		now  time.Time
		want []string
	}{
		{
			name: "mid-slot rounds up to next boundary",
			now:  monday.Add(9*time.Hour + 20*time.Minute),
			want: []string{"09:30", "09:45"},
		},
		{
			name: "exactly on a boundary keeps that boundary",
			now:  monday.Add(9*time.Hour + 30*time.Minute),
			want: []string{"09:30", "09:45"},
		},
		{
			name: "before opening offers the full day",
			now:  monday.Add(8 * time.Hour),
			want: []string{"09:00", "09:15", "09:30", "09:45"},
		},
		{
			name: "after closing offers nothing",
			now:  monday.Add(11 * time.Hour),
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := labels(GenerateSlots(tmpl, monday, nil, 15, 10, tt.now))
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("slot %d = %s, want %s", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestGenerateSlotsNoWindow(t *testing.T) {
	tmpl := weekdayTemplate("09:00", "17:00")
	sunday := monday.Add(-24 * time.Hour)

	if slots := GenerateSlots(tmpl, sunday, nil, 15, 10, sunday); len(slots) != 0 {
		t.Fatalf("expected no slots on a closed day, got %d", len(slots))
	}
}

func TestGenerateSlotsUnavailableWindow(t *testing.T) {
	tmpl := AvailabilityTemplate{Windows: []AvailabilityWindow{
		{Weekday: time.Monday, StartTime: "09:00", EndTime: "17:00", Available: false},
	}}

	if slots := GenerateSlots(tmpl, monday, nil, 15, 10, monday); len(slots) != 0 {
		t.Fatalf("expected no slots for an unavailable window, got %d", len(slots))
	}
}

func TestGenerateSlotsInvalidInputs(t *testing.T) {
	tmpl := weekdayTemplate("09:00", "17:00")

	if slots := GenerateSlots(tmpl, monday, nil, 0, 10, monday); slots != nil {
		t.Errorf("zero slot length should yield nothing")
	}
	if slots := GenerateSlots(tmpl, monday, nil, 15, 0, monday); slots != nil {
		t.Errorf("zero cap should yield nothing")
	}

	bad := AvailabilityTemplate{Windows: []AvailabilityWindow{
		{Weekday: time.Monday, StartTime: "9am", EndTime: "17:00", Available: true},
	}}
	if slots := GenerateSlots(bad, monday, nil, 15, 10, monday); slots != nil {
		t.Errorf("malformed window times should yield nothing")
	}
}
