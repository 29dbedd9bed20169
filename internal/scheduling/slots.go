package scheduling

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// GenerateSlots enumerates the bookable slots for a provider on a date.
// It is pure: callers pass the availability template, the labels already
// taken that day, the provider's slot length and daily cap, and the
// current instant. An empty result means no hours are configured or
// everything bookable is gone; that is not an error.
func GenerateSlots(tmpl AvailabilityTemplate, date time.Time, booked []string, slotMinutes, maxSlots int, now time.Time) []Slot {
	if slotMinutes <= 0 || maxSlots <= 0 {
		return nil
	}

	win, ok := tmpl.WindowFor(date.Weekday())
	if !ok {
		return nil
	}

	start, err := win.startOn(date)
	if err != nil {
		return nil
	}
	end, err := win.endOn(date)
	if err != nil {
		return nil
	}

	step := time.Duration(slotMinutes) * time.Minute

	// Never offer slots in the past: on the current day the cursor jumps
	// forward to the next slot boundary after now.
	cursor := start
	if sameDay(now, date) && now.After(cursor) {
		elapsed := now.Sub(start)
		steps := (elapsed + step - 1) / step
		cursor = start.Add(steps * step)
	}

	taken := make(map[string]struct{}, len(booked))
	for _, label := range booked {
		taken[label] = struct{}{}
	}

	var slots []Slot
	for cursor.Before(end) && len(slots) < maxSlots {
		label := cursor.Format("15:04")
		if _, isBooked := taken[label]; !isBooked {
			slots = append(slots, Slot{
				Label: label,
				Start: cursor,
				End:   cursor.Add(step),
			})
		}
		cursor = cursor.Add(step)
	}

	return slots
}

func (w AvailabilityWindow) startOn(date time.Time) (time.Time, error) {
	return clockOn(date, w.StartTime)
}

func (w AvailabilityWindow) endOn(date time.Time) (time.Time, error) {
	return clockOn(date, w.EndTime)
}

// clockOn anchors an "HH:MM" time of day onto a calendar date.
func clockOn(date time.Time, clock string) (time.Time, error) {
	parts := strings.SplitN(clock, ":", 2)
	if len(parts) != 2 {
		return time.Time{}, fmt.Errorf("invalid time of day %q", clock)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time of day %q", clock)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time of day %q", clock)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return time.Time{}, fmt.Errorf("invalid time of day %q", clock)
	}

	y, m, d := date.Date()
	return time.Date(y, m, d, hour, minute, 0, 0, date.Location()), nil
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// dayOf truncates an instant to midnight of its calendar day.
func dayOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
