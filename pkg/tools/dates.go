package tools

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	inHoursRe = regexp.MustCompile(`in\s+(\d+)\s+hours?`)
	inDaysRe  = regexp.MustCompile(`in\s+(\d+)\s+days?`)
)

// ParseDeadline turns an agent-supplied deadline expression into a
// concrete time. Accepted forms: ISO timestamps and dates, "today",
// "eod", "tomorrow", weekday names, "in N hours", "in N days".
// Date-granular forms resolve to end of day in loc. Returns ok=false
// for anything unparsable.
func ParseDeadline(expr string, now time.Time, loc *time.Location) (time.Time, bool) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return time.Time{}, false
	}

	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04"} {
		if t, err := time.ParseInLocation(layout, expr, loc); err == nil {
			return t, true
		}
	}
	if t, err := time.ParseInLocation("2006-01-02", expr, loc); err == nil {
		return endOfDay(t, loc), true
	}

	local := now.In(loc)
	lower := strings.ToLower(expr)

	switch lower {
	case "today", "end of day", "eod":
		return endOfDay(local, loc), true
	case "tomorrow":
		return endOfDay(local.AddDate(0, 0, 1), loc), true
	}

	weekdays := map[string]time.Weekday{
		"monday":    time.Monday,
		"tuesday":   time.Tuesday,
		"wednesday": time.Wednesday,
		"thursday":  time.Thursday,
		"friday":    time.Friday,
		"saturday":  time.Saturday,
		"sunday":    time.Sunday,
	}
	for name, weekday := range weekdays {
		if strings.Contains(lower, name) {
			return endOfDay(nextWeekday(local, weekday), loc), true
		}
	}

	if m := inHoursRe.FindStringSubmatch(lower); m != nil {
		hours, _ := strconv.Atoi(m[1])
		return local.Add(time.Duration(hours) * time.Hour), true
	}

	if m := inDaysRe.FindStringSubmatch(lower); m != nil {
		days, _ := strconv.Atoi(m[1])
		return endOfDay(local.AddDate(0, 0, days), loc), true
	}

	return time.Time{}, false
}

// nextWeekday returns the next strictly-future occurrence of weekday.
func nextWeekday(from time.Time, weekday time.Weekday) time.Time {
	days := int(weekday-from.Weekday()+7) % 7
	if days == 0 {
		days = 7
	}
	return from.AddDate(0, 0, days)
}

func endOfDay(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 23, 59, 59, 0, loc)
}

// ReminderTimes computes the two standard reminder fire times for a
// task: the halfway point between creation and deadline, and 24 hours
// before the deadline.
func ReminderTimes(createdAt, deadline time.Time) (halfway, dayBefore time.Time) {
	halfway = createdAt.Add(deadline.Sub(createdAt) / 2)
	dayBefore = deadline.Add(-24 * time.Hour)
	return halfway, dayBefore
}

// TimeUntil renders the remaining time before deadline as "2d 3h" or
// "5h", or "overdue" once passed.
func TimeUntil(deadline, now time.Time) string {
	diff := deadline.Sub(now)
	if diff <= 0 {
		return "overdue"
	}

	hours := int(diff.Hours())
	days := hours / 24
	if days > 0 {
		return fmt.Sprintf("%dd %dh", days, hours%24)
	}
	return fmt.Sprintf("%dh", hours)
}

// FormatDate renders a long-form date for status views.
func FormatDate(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("Monday, January 2, 2006")
}

// FormatDateTime renders a long-form date with time.
func FormatDateTime(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("Monday, January 2, 2006 3:04 PM MST")
}
