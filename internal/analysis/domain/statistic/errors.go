package statistic

import "errors"

var (
	// ErrUnknownMetric is returned when a metric name is not recognised.
	ErrUnknownMetric = errors.New("statistic: unknown metric")
	// ErrInvalidWindow is returned when a trend window is not positive.
	ErrInvalidWindow = errors.New("statistic: invalid window")
)
