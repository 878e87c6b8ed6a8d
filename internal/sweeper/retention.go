package sweeper

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Retention is an inactivity window. Calendar parts (years, months, days) are
// applied with time.AddDate so "6 months" follows month lengths; the clock
// part is a fixed duration.
type Retention struct {
	years  int
	months int
	days   int
	clock  time.Duration
	text   string
}

// maxCalendarCount bounds the whole years, months or days one part may add
const maxCalendarCount = math.MaxInt32

// ParseRetention parses a human readable window such as "6 months",
// "1 hour", "2h30m", "1 year, 2 weeks", "1.5 hours" or "1 day 02:00:00".
// Go duration syntax is accepted as well. A fractional year carries into
// whole months, a fractional month into 30-day days and a fractional day into
// hours. The window must be positive.
func ParseRetention(text string) (Retention, error) {
	s := strings.TrimSpace(text)
	if s == "" {
		return Retention{}, fmt.Errorf("retention window is empty")
	}

	if d, err := time.ParseDuration(s); err == nil {
		if d <= 0 {
			return Retention{}, fmt.Errorf("retention window must be positive: %q", text)
		}
		return Retention{clock: d, text: s}, nil
	}

	r := Retention{text: s}
	rest := s
	for {
		rest = strings.TrimLeft(rest, " \t,")
		if rest == "" {
			break
		}

		num := numberPrefix(rest)
		if num == "" {
			return Retention{}, fmt.Errorf("expected a number at %q in retention window %q", rest, text)
		}

		if strings.HasPrefix(rest[len(num):], ":") {
			i := 0
			for i < len(rest) && (isDigit(rest[i]) || rest[i] == ':' || rest[i] == '.') {
				i++
			}
			d, err := parseClock(rest[:i])
			if err != nil {
				return Retention{}, fmt.Errorf("%w in retention window %q", err, text)
			}
			if err := r.addClock(float64(d), 1); err != nil {
				return Retention{}, fmt.Errorf("%w in retention window %q", err, text)
			}
			rest = rest[i:]
			continue
		}

		n, err := strconv.ParseFloat(num, 64)
		if err != nil {
			return Retention{}, fmt.Errorf("invalid number %q in retention window %q", num, text)
		}

		rest = strings.TrimLeft(rest[len(num):], " \t")
		j := 0
		for j < len(rest) && isASCIILetter(rest[j]) {
			j++
		}
		if j == 0 {
			return Retention{}, fmt.Errorf("missing unit after %s in retention window %q", num, text)
		}
		unit := strings.ToLower(rest[:j])
		rest = rest[j:]

		if err := r.add(n, unit); err != nil {
			return Retention{}, fmt.Errorf("%w in retention window %q", err, text)
		}
	}

	if r.years == 0 && r.months == 0 && r.days == 0 && r.clock == 0 {
		return Retention{}, fmt.Errorf("retention window must be positive: %q", text)
	}
	return r, nil
}

// MustParseRetention is like ParseRetention but panics on error
func MustParseRetention(text string) Retention {
	r, err := ParseRetention(text)
	if err != nil {
		panic(err)
	}
	return r
}

func (r *Retention) add(n float64, unit string) error {
	switch unit {
	case "y", "yr", "yrs", "year", "years":
		whole, frac := math.Modf(n)
		if err := addCount(&r.years, whole); err != nil {
			return err
		}
		return addCount(&r.months, math.Trunc(frac*12))
	case "mon", "mons", "month", "months":
		whole, frac := math.Modf(n)
		if err := addCount(&r.months, whole); err != nil {
			return err
		}
		return r.addDays(frac * 30)
	case "w", "week", "weeks":
		return r.addDays(n * 7)
	case "d", "day", "days":
		return r.addDays(n)
	case "h", "hr", "hrs", "hour", "hours":
		return r.addClock(n, time.Hour)
	case "m", "min", "mins", "minute", "minutes":
		return r.addClock(n, time.Minute)
	case "s", "sec", "secs", "second", "seconds":
		return r.addClock(n, time.Second)
	case "ms", "msec", "millisecond", "milliseconds":
		return r.addClock(n, time.Millisecond)
	case "us", "usec", "microsecond", "microseconds":
		return r.addClock(n, time.Microsecond)
	default:
		return fmt.Errorf("unknown unit %q", unit)
	}
}

func (r *Retention) addDays(n float64) error {
	whole, frac := math.Modf(n)
	if err := addCount(&r.days, whole); err != nil {
		return err
	}
	return r.addClock(frac*24, time.Hour)
}

func (r *Retention) addClock(n float64, unit time.Duration) error {
	d := math.Round(n * float64(unit))
	if d > float64(math.MaxInt64-int64(r.clock)) {
		return fmt.Errorf("duration overflow")
	}
	r.clock += time.Duration(d)
	return nil
}

func addCount(field *int, n float64) error {
	if n > float64(maxCalendarCount-*field) {
		return fmt.Errorf("calendar overflow")
	}
	*field += int(n)
	return nil
}

// numberPrefix returns the leading decimal number of s, or "" if s does not
// start with a digit
func numberPrefix(s string) string {
	i := 0
	for i < len(s) && isDigit(s[i]) {
		i++
	}
	if i == 0 {
		return ""
	}
	if i+1 < len(s) && s[i] == '.' && isDigit(s[i+1]) {
		i++
		for i < len(s) && isDigit(s[i]) {
			i++
		}
	}
	return s[:i]
}

// parseClock parses "H:MM" or "H:MM:SS[.fff]"
func parseClock(s string) (time.Duration, error) {
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("invalid time %q", s)
	}
	hours, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("invalid hours in %q", s)
	}
	minutes, err := strconv.Atoi(parts[1])
	if err != nil || minutes > 59 {
		return 0, fmt.Errorf("invalid minutes in %q", s)
	}
	var seconds float64
	if len(parts) == 3 {
		seconds, err = strconv.ParseFloat(parts[2], 64)
		if err != nil || seconds < 0 || seconds >= 60 {
			return 0, fmt.Errorf("invalid seconds in %q", s)
		}
	}
	total := (float64(hours)*3600 + float64(minutes)*60 + seconds) * float64(time.Second)
	if total > math.MaxInt64 {
		return 0, fmt.Errorf("duration overflow")
	}
	return time.Duration(math.Round(total)), nil
}

// Cutoff returns the instant before which a key counts as inactive at now
func (r Retention) Cutoff(now time.Time) time.Time {
	return now.AddDate(-r.years, -r.months, -r.days).Add(-r.clock)
}

// IsZero reports whether the retention was never parsed
func (r Retention) IsZero() bool {
	return r.text == ""
}

func (r Retention) String() string {
	return r.text
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}

func isASCIILetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}
