// Package quietwindow implements the deferral policy for outbound
// deliveries: during a configured daily quiet window, reminders and
// other non-urgent messages are deferred rather than sent or dropped.
package quietwindow

import (
	"fmt"
	"strings"
	"time"
)

// Window is one daily quiet period in the configured location.
type Window struct {
	Start  Clock
	End    Clock
	Buffer time.Duration
}

// Clock is a wall-clock time of day.
type Clock struct {
	Hour   int
	Minute int
}

func (c Clock) at(day time.Time, loc *time.Location) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), c.Hour, c.Minute, 0, 0, loc)
}

// ParseClock parses "HH:MM".
func ParseClock(s string) (Clock, error) {
	var h, m int
	if _, err := fmt.Sscanf(strings.TrimSpace(s), "%d:%d", &h, &m); err != nil {
		return Clock{}, fmt.Errorf("invalid clock time %q: %w", s, err)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return Clock{}, fmt.Errorf("clock time %q out of range", s)
	}
	return Clock{Hour: h, Minute: m}, nil
}

// ParseWindow parses "HH:MM-HH:MM".
func ParseWindow(s string, buffer time.Duration) (Window, error) {
	parts := strings.SplitN(s, "-", 2)
	if len(parts) != 2 {
		return Window{}, fmt.Errorf("invalid window %q: want HH:MM-HH:MM", s)
	}
	start, err := ParseClock(parts[0])
	if err != nil {
		return Window{}, err
	}
	end, err := ParseClock(parts[1])
	if err != nil {
		return Window{}, err
	}
	return Window{Start: start, End: end, Buffer: buffer}, nil
}

// Policy decides whether a delivery moment falls inside a quiet window
// and how long to defer it.
type Policy struct {
	windows    []Window
	location   *time.Location
	deferDelay time.Duration
}

// Config configures a Policy.
type Config struct {
	// Windows are "HH:MM-HH:MM" ranges in Location.
	Windows []string
	// Buffer extends each window's end.
	Buffer time.Duration
	// Location is the timezone the windows are expressed in.
	Location *time.Location
	// DeferDelay is the nominal requeue delay for deferred deliveries.
	DeferDelay time.Duration
}

// DefaultDeferDelay matches the fixed 30 minute deferral the delivery
// worker uses when no delay is configured.
const DefaultDeferDelay = 30 * time.Minute

// New builds a Policy from config.
func New(cfg Config) (*Policy, error) {
	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}
	delay := cfg.DeferDelay
	if delay <= 0 {
		delay = DefaultDeferDelay
	}

	windows := make([]Window, 0, len(cfg.Windows))
	for _, spec := range cfg.Windows {
		w, err := ParseWindow(spec, cfg.Buffer)
		if err != nil {
			return nil, err
		}
		windows = append(windows, w)
	}

	return &Policy{
		windows:    windows,
		location:   loc,
		deferDelay: delay,
	}, nil
}

// ShouldDefer reports whether now falls inside any quiet window.
func (p *Policy) ShouldDefer(now time.Time) bool {
	_, in := p.currentWindowEnd(now)
	return in
}

// NextAvailable returns the first moment delivery is allowed: the end
// of the enclosing window, or now when no window applies.
func (p *Policy) NextAvailable(now time.Time) time.Time {
	if end, in := p.currentWindowEnd(now); in {
		return end
	}
	return now
}

// DeferDelay returns how long to requeue a delivery that fired at now.
// The nominal delay is clamped to the end of the enclosing window so a
// long window converges promptly once it ends, instead of overshooting
// by a full fixed delay.
func (p *Policy) DeferDelay(now time.Time) time.Duration {
	end, in := p.currentWindowEnd(now)
	if !in {
		return 0
	}
	delay := p.deferDelay
	if remaining := end.Sub(now); remaining < delay {
		delay = remaining
	}
	if delay < time.Minute {
		delay = time.Minute
	}
	return delay
}

// currentWindowEnd returns the buffered end of the window enclosing
// now, checking yesterday's windows too so ranges that cross midnight
// are handled.
func (p *Policy) currentWindowEnd(now time.Time) (time.Time, bool) {
	local := now.In(p.location)

	for _, day := range []time.Time{local.AddDate(0, 0, -1), local} {
		for _, w := range p.windows {
			start := w.Start.at(day, p.location)
			end := w.End.at(day, p.location)
			if !end.After(start) {
				// Window crosses midnight
				end = end.AddDate(0, 0, 1)
			}
			end = end.Add(w.Buffer)
			if !local.Before(start) && !local.After(end) {
				return end, true
			}
		}
	}

	return time.Time{}, false
}
