package statistic

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
)

// Optional is a numeric result that may be undefined.
// A missing value is never reported as zero.
type Optional struct {
	Value float64
	Valid bool
}

// Some wraps a defined value. NaN and infinities are treated as missing.
func Some(v float64) Optional {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Optional{}
	}
	return Optional{Value: v, Valid: true}
}

// Missing returns the undefined value.
func Missing() Optional { return Optional{} }

// Sub returns o - other, missing when either side is missing.
func (o Optional) Sub(other Optional) Optional {
	if !o.Valid || !other.Valid {
		return Optional{}
	}
	return Some(o.Value - other.Value)
}

// Format renders the value with prec decimals, or blank when missing.
func (o Optional) Format(prec int) string {
	if !o.Valid {
		return ""
	}
	return strconv.FormatFloat(o.Value, 'f', prec, 64)
}

// String renders the value, or NA when missing.
func (o Optional) String() string {
	if !o.Valid {
		return "NA"
	}
	return strconv.FormatFloat(o.Value, 'f', -1, 64)
}

// MarshalJSON encodes missing values as null.
func (o Optional) MarshalJSON() ([]byte, error) {
	if !o.Valid {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatFloat(o.Value, 'f', -1, 64)), nil
}

// UnmarshalJSON accepts a number or null.
func (o *Optional) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*o = Optional{}
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*o = Some(v)
	return nil
}

// ParseOptional parses an exported cell; blank and NA are missing.
func ParseOptional(value string) (Optional, error) {
	switch value {
	case "", "NA", "null":
		return Optional{}, nil
	}
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return Optional{}, err
	}
	return Some(v), nil
}
