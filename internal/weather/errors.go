package weather

import "errors"

var (
	// ErrNetworkTransient is returned when every retry against the upstream failed
	// with a transient condition (network error, timeout, 5xx, rate limiting).
	ErrNetworkTransient = errors.New("upstream unavailable")

	// ErrNetworkClient is returned for non-retryable upstream failures such as a
	// 4xx status or a malformed response body.
	ErrNetworkClient = errors.New("upstream client error")

	// ErrLocationNotFound is returned when geocoding yields no match.
	ErrLocationNotFound = errors.New("location not found")

	// ErrForecastHorizonExceeded is returned when the requested day is outside the
	// dates covered by the upstream forecast.
	ErrForecastHorizonExceeded = errors.New("forecast horizon exceeded")

	// ErrCacheIO marks a cache read or write failure. The service treats it as a
	// miss and never fails a request because of it.
	ErrCacheIO = errors.New("cache io error")
)
