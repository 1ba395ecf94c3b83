package bot

import (
	"strconv"
	"strings"
	"time"

	"github.com/caixaflow/caixabot/internal/config"
)

var weekdayNames = map[string]time.Weekday{
	"sun": time.Sunday,
	"mon": time.Monday,
	"tue": time.Tuesday,
	"wed": time.Wednesday,
	"thu": time.Thursday,
	"fri": time.Friday,
	"sat": time.Saturday,
}

// InBusinessHours reports whether now falls inside the configured schedule.
// A disabled schedule treats every moment as in-hours. The decision is a pure
// function of its inputs: weekday membership in the configured day set and
// time-of-day within [start, end], both ends inclusive.
func InBusinessHours(now time.Time, schedule config.BusinessHoursConfig) bool {
	if !schedule.Enabled {
		return true
	}

	inDaySet := false
	for _, name := range schedule.Weekdays {
		if wd, ok := weekdayNames[strings.ToLower(name)]; ok && wd == now.Weekday() {
			inDaySet = true
			break
		}
	}
	if !inDaySet {
		return false
	}

	start, okStart := parseClock(schedule.Start)
	end, okEnd := parseClock(schedule.End)
	if !okStart || !okEnd {
		// Malformed schedules are caught by config validation; treat as
		// always in-hours rather than silently dropping replies.
		return true
	}

	minute := now.Hour()*60 + now.Minute()
	return minute >= start && minute <= end
}

// parseClock parses a "HH:MM" wall-clock time into minutes since midnight.
func parseClock(s string) (int, bool) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, false
	}

	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, false
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, false
	}
	return hour*60 + minute, true
}
