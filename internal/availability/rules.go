package availability

// DefaultSlotMinutes is used when a doctor has a working-hour window but no
// usable appointment duration.
const DefaultSlotMinutes = 15

// Rules is a doctor's availability configuration. Any field may be unset;
// malformed values are tolerated and simply produce no slots.
type Rules struct {
	// WorkingDays holds ISO weekday numbers (1=Monday .. 7=Sunday).
	// Empty means no day restriction.
	WorkingDays []int

	// WorkingHourStart and WorkingHourEnd bound the hour-window generator,
	// formatted "15:04".
	WorkingHourStart string
	WorkingHourEnd   string

	// AppointmentDuration is the slot length in minutes for the hour-window
	// generator. Values <= 0 fall back to DefaultSlotMinutes.
	AppointmentDuration int

	// DailySlots is an explicit list of bookable times ("15:04"). When
	// non-empty it is the sole source of candidates and the hour window is
	// ignored.
	DailySlots []string
}

// Configured reports whether any availability restriction is set at all.
// An unconfigured doctor has no generated slots; whether such a doctor is
// bookable is a policy decision made by the caller.
func (r Rules) Configured() bool {
	return len(r.WorkingDays) > 0 ||
		r.WorkingHourStart != "" ||
		r.WorkingHourEnd != "" ||
		len(r.DailySlots) > 0
}

// WorksOn reports whether the doctor works on the given ISO weekday.
// No configured days means every day.
func (r Rules) WorksOn(weekday int) bool {
	if len(r.WorkingDays) == 0 {
		return true
	}
	for _, d := range r.WorkingDays {
		if d == weekday {
			return true
		}
	}
	return false
}
