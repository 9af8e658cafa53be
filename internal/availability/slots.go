package availability

import (
	"fmt"
	"sort"
	"time"
)

// SlotsForDate computes the candidate booking times for one doctor on one
// calendar date. The result is sorted ascending, free of duplicates, and
// depends only on the inputs; existing bookings are subtracted elsewhere.
//
// An empty result is a normal outcome (day off, no configuration, or a
// malformed window), not an error.
func SlotsForDate(r Rules, date time.Time) []string {
	if !r.WorksOn(ISOWeekday(date)) {
		return nil
	}

	if len(r.DailySlots) > 0 {
		return explicitSlots(r.DailySlots)
	}

	if r.WorkingHourStart != "" && r.WorkingHourEnd != "" {
		return windowSlots(r.WorkingHourStart, r.WorkingHourEnd, r.AppointmentDuration)
	}

	return nil
}

// ISOWeekday maps time.Weekday to ISO numbering, 1=Monday .. 7=Sunday.
func ISOWeekday(date time.Time) int {
	wd := int(date.Weekday())
	if wd == 0 {
		return 7
	}
	return wd
}

func explicitSlots(raw []string) []string {
	seen := make(map[int]struct{}, len(raw))
	minutes := make([]int, 0, len(raw))

	for _, s := range raw {
		m, ok := parseClock(s)
		if !ok {
			continue
		}
		if _, dup := seen[m]; dup {
			continue
		}
		seen[m] = struct{}{}
		minutes = append(minutes, m)
	}

	sort.Ints(minutes)

	out := make([]string, len(minutes))
	for i, m := range minutes {
		out[i] = formatClock(m)
	}
	return out
}

func windowSlots(startStr, endStr string, duration int) []string {
	start, ok := parseClock(startStr)
	if !ok {
		return nil
	}
	end, ok := parseClock(endStr)
	if !ok {
		return nil
	}

	if duration <= 0 {
		duration = DefaultSlotMinutes
	}

	var out []string
	for cur := start; cur+duration <= end; cur += duration {
		out = append(out, formatClock(cur))
	}
	return out
}

// parseClock parses a strict "15:04" clock into minutes since midnight.
func parseClock(s string) (int, bool) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, false
	}
	return t.Hour()*60 + t.Minute(), true
}

func formatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}
