package domain

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	ErrEmptyDuration   = errors.New("empty duration")
	ErrInvalidDuration = errors.New("invalid duration")
	ErrTooSmall        = errors.New("duration too small")
)

var delayPart = regexp.MustCompile(`(?i)(\d+)\s*(w|d|h|m|s)`)

// ParseDelay parses human-friendly delays like "30m", "1h30m", "2d", "1w 3d".
// A plain number means minutes. The minimum is one second.
func ParseDelay(s string) (time.Duration, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return 0, ErrEmptyDuration
	}

	var total time.Duration
	if isAllDigits(s) {
		mins, err := strconv.Atoi(s)
		if err != nil {
			return 0, fmt.Errorf("%w: %s", ErrInvalidDuration, s)
		}
		total = time.Duration(mins) * time.Minute
	} else {
		matches := delayPart.FindAllStringSubmatch(s, -1)
		if len(matches) == 0 || strings.TrimSpace(delayPart.ReplaceAllString(s, "")) != "" {
			return 0, fmt.Errorf("%w: %s", ErrInvalidDuration, s)
		}
		for _, m := range matches {
			n, err := strconv.Atoi(m[1])
			if err != nil {
				return 0, fmt.Errorf("%w: %s", ErrInvalidDuration, s)
			}
			total += time.Duration(n) * unitDuration(m[2])
		}
	}

	if total < time.Second {
		return 0, fmt.Errorf("%w: min 1s", ErrTooSmall)
	}
	return total, nil
}

func unitDuration(u string) time.Duration {
	switch u {
	case "w":
		return 7 * 24 * time.Hour
	case "d":
		return 24 * time.Hour
	case "h":
		return time.Hour
	case "m":
		return time.Minute
	}
	return time.Second
}

func isAllDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

// ParseBirthday parses YYYY-MM-DD into UTC midnight.
func ParseBirthday(s string) (time.Time, error) {
	t, err := time.Parse(time.DateOnly, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, errors.New("expected YYYY-MM-DD")
	}
	return t.UTC(), nil
}

// ValidateTZ checks that the tz is a valid IANA location.
func ValidateTZ(tz string) (string, error) {
	tz = strings.TrimSpace(tz)
	if tz == "" {
		return "", errors.New("empty timezone")
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return "", err
	}
	return loc.String(), nil
}

// NormalizeTZ returns the canonical name of tz, or "UTC" when it is invalid.
func NormalizeTZ(tz string) string {
	name, err := ValidateTZ(tz)
	if err != nil {
		return "UTC"
	}
	return name
}

// LocalizeTime formats t in the given timezone.
func LocalizeTime(t time.Time, tz string) (string, error) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return "", err
	}
	return t.In(loc).Format("Mon Jan 2 2006 15:04 MST"), nil
}
