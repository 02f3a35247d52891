package engine

import "errors"

var (
	// ErrNoSources is returned when the engine is built without sources.
	ErrNoSources = errors.New("no sources configured")

	// ErrNoUnderlyings is returned when the engine has nothing to compute.
	ErrNoUnderlyings = errors.New("no underlyings configured")

	// ErrNoSnapshots is recorded when no source delivered a snapshot.
	ErrNoSnapshots = errors.New("no snapshots fetched")

	// ErrNoEstimates is recorded when every snapshot failed to compute.
	ErrNoEstimates = errors.New("no source produced a variance")
)
