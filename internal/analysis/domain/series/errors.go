package series

import "errors"

var (
	// ErrMissingColumn is returned when a required column is not in the table header.
	ErrMissingColumn = errors.New("series: missing column")
	// ErrInvalidColumns is returned when the column mapping is incomplete.
	ErrInvalidColumns = errors.New("series: invalid column mapping")
	// ErrEmptyTable is returned when the table has no header.
	ErrEmptyTable = errors.New("series: empty table")
	// ErrInvalidTimestamp is returned when a timestamp cannot be parsed.
	ErrInvalidTimestamp = errors.New("series: invalid timestamp")
	// ErrInvalidValue is returned when a reading value is blank or not numeric.
	ErrInvalidValue = errors.New("series: invalid value")
)
