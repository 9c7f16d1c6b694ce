package statistic

import "errors"

var (
	// ErrNoData is returned when a query window holds no readings.
	ErrNoData = errors.New("statistic: no data")
	// ErrInvalidWindow is returned for unparseable or non-positive windows.
	ErrInvalidWindow = errors.New("statistic: invalid window")
	// ErrInvalidRange is returned when end is not after start.
	ErrInvalidRange = errors.New("statistic: invalid range")
	// ErrEmptySensorID is returned when a per-sensor query has no identity.
	ErrEmptySensorID = errors.New("statistic: empty sensor id")
)
