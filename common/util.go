package common

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

func ParseInt(s string) (int64, error) {
	return strconv.ParseInt(s, 10, 64)
}

// MustParseInt parses s, returning 0 when it doesn't parse. Only for input
// that is structurally guaranteed to be numeric (redis keys, own columns).
func MustParseInt(s string) int64 {
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}

func StrID(id int64) string {
	return strconv.FormatInt(id, 10)
}

type DurationPrecision int

const (
	DurationPrecisionSeconds DurationPrecision = iota
	DurationPrecisionMinutes
	DurationPrecisionHours
)

// HumanizeDuration renders d as e.g. "1 hour 5 minutes", cutting off below
// the given precision.
func HumanizeDuration(precision DurationPrecision, d time.Duration) string {
	if d < 0 {
		d = -d
	}

	names := []string{"day", "hour", "minute", "second"}
	units := []time.Duration{time.Hour * 24, time.Hour, time.Minute, time.Second}

	cutoff := len(units)
	switch precision {
	case DurationPrecisionMinutes:
		cutoff = 3
	case DurationPrecisionHours:
		cutoff = 2
	}

	var parts []string
	for i := 0; i < cutoff; i++ {
		n := int64(d / units[i])
		d -= time.Duration(n) * units[i]
		if n == 0 {
			continue
		}

		part := fmt.Sprintf("%d %s", n, names[i])
		if n != 1 {
			part += "s"
		}
		parts = append(parts, part)
	}

	if len(parts) == 0 {
		switch precision {
		case DurationPrecisionHours:
			return "less than an hour"
		case DurationPrecisionMinutes:
			return "less than a minute"
		default:
			return "less than a second"
		}
	}

	return strings.Join(parts, " ")
}

// ContainsInt64 returns whether s contains v.
func ContainsInt64(s []int64, v int64) bool {
	for _, e := range s {
		if e == v {
			return true
		}
	}

	return false
}
