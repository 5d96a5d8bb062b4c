package tariff

import "errors"

var (
	// ErrInvalidHour is returned when an hour is outside [0,24).
	ErrInvalidHour = errors.New("tariff: invalid hour")
	// ErrInvalidMonth is returned when a month is outside [1,12].
	ErrInvalidMonth = errors.New("tariff: invalid month")
	// ErrUnknownPeriod is returned when a period label is not recognised.
	ErrUnknownPeriod = errors.New("tariff: unknown period")
	// ErrMissingPrice is returned when a price table lacks a period.
	ErrMissingPrice = errors.New("tariff: missing price")
	// ErrNegativePrice is returned when a price table holds a negative price.
	ErrNegativePrice = errors.New("tariff: negative price")
	// ErrEmptyWindow is returned when no reading falls in the midday window.
	ErrEmptyWindow = errors.New("tariff: empty midday window")
	// ErrInvalidSweep is returned when sweep parameters are unusable.
	ErrInvalidSweep = errors.New("tariff: invalid sweep config")
)
