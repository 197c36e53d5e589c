package anomaly

import "errors"

var (
	// ErrEmptyInput is returned when the series has no points.
	ErrEmptyInput = errors.New("anomaly: time series cannot be empty")
	// ErrInsufficientData is returned when the series is shorter than MinSeriesLength.
	ErrInsufficientData = errors.New("anomaly: insufficient data points")
)
