package aggregator

import "errors"

var (
	// ErrNoSourceEstimates indicates that no source estimates were provided.
	ErrNoSourceEstimates = errors.New("no source estimates provided")
	// ErrNoEstimatesComputed indicates that no aggregate could be computed.
	ErrNoEstimatesComputed = errors.New("no estimates computed")
	// ErrNoEstimatesForUnderlying indicates that no estimates are available for the underlying.
	ErrNoEstimatesForUnderlying = errors.New("no estimates for underlying")
	// ErrUnknownMode indicates that the aggregation mode is unknown.
	ErrUnknownMode = errors.New("unknown aggregation mode")
)
