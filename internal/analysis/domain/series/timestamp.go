package series

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// Month and day use the unpadded verbs so that both "2024-1-2" and
// "2024-01-02" parse with one layout.
var dateTimeLayouts = []string{
	"2006-1-2 15:04:05",
	"2006-1-2 15:04",
	"2006-1-2T15:04:05",
	"2006-1-2T15:04",
	time.RFC3339Nano,
	"2006/1/2 15:04:05",
	"2006/1/2 15:04",
	"2006.1.2 15:04:05",
	"2006.1.2 15:04",
	"2006年1月2日 15:04:05",
	"2006年1月2日 15:04",
	"2006年1月2日15:04:05",
	"2006年1月2日15:04",
	"1/2/2006 15:04:05",
	"1/2/2006 15:04",
	"1/2/06 15:04:05",
	"1/2/06 15:04",
	"20060102 15:04:05",
	"20060102150405",
}

var dateLayouts = []string{
	"2006-1-2",
	"2006/1/2",
	"2006.1.2",
	"2006年1月2日",
	"1/2/2006",
	"1/2/06",
	"20060102",
}

var clockLayouts = []string{
	"15:04:05",
	"15:04",
	"15时04分05秒",
	"15时04分",
	"3:04:05 PM",
	"3:04 PM",
}

// Excel stores dates as days since 1899-12-30.
var excelEpoch = time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)

const maxExcelSerial = 2958466 // 9999-12-31

// ParseTimestamp parses a combined date+time (or date-only) string as wall
// clock time in loc.
func ParseTimestamp(value string, loc *time.Location) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, ErrInvalidTimestamp
	}
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range dateTimeLayouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t.In(loc), nil
		}
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t, nil
		}
	}
	if t, ok := parseExcelSerial(value, loc); ok {
		return t, nil
	}
	return time.Time{}, ErrInvalidTimestamp
}

// ParseDateTime merges a date column and a time-of-day column into one
// instant. An empty clock falls back to ParseTimestamp on the date alone.
func ParseDateTime(date, clock string, loc *time.Location) (time.Time, error) {
	clock = strings.TrimSpace(clock)
	if clock == "" {
		return ParseTimestamp(date, loc)
	}
	if loc == nil {
		loc = time.UTC
	}
	day, err := ParseTimestamp(date, loc)
	if err != nil {
		return time.Time{}, err
	}
	offset, err := parseClock(clock)
	if err != nil {
		return time.Time{}, err
	}
	y, m, d := day.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc).Add(offset), nil
}

// parseClock returns the offset from midnight for a time-of-day value.
func parseClock(value string) (time.Duration, error) {
	for _, layout := range clockLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return time.Duration(t.Hour())*time.Hour +
				time.Duration(t.Minute())*time.Minute +
				time.Duration(t.Second())*time.Second +
				time.Duration(t.Nanosecond()), nil
		}
	}
	// Excel time-of-day cells are fractions of a day.
	if f, err := strconv.ParseFloat(value, 64); err == nil && f >= 0 && f < 1 {
		return time.Duration(math.Round(f*86400)) * time.Second, nil
	}
	// A full timestamp in the time column keeps only its clock part.
	for _, layout := range dateTimeLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return time.Duration(t.Hour())*time.Hour +
				time.Duration(t.Minute())*time.Minute +
				time.Duration(t.Second())*time.Second, nil
		}
	}
	return 0, ErrInvalidTimestamp
}

func parseExcelSerial(value string, loc *time.Location) (time.Time, bool) {
	f, err := strconv.ParseFloat(value, 64)
	if err != nil || math.IsNaN(f) || f <= 0 || f >= maxExcelSerial {
		return time.Time{}, false
	}
	days := math.Floor(f)
	seconds := math.Round((f - days) * 86400)
	base := excelEpoch.AddDate(0, 0, int(days))
	y, m, d := base.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc).Add(time.Duration(seconds) * time.Second), true
}

// ParseValue parses a numeric reading. Thousands separators are ignored.
func ParseValue(value string) (float64, error) {
	value = strings.TrimSpace(strings.ReplaceAll(value, ",", ""))
	if value == "" {
		return 0, ErrInvalidValue
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, ErrInvalidValue
	}
	return f, nil
}
