package index

import "errors"

var (
	// ErrParse indicates a symbol that does not match BASE-EXPIRY-STRIKE-{C|P}.
	ErrParse = errors.New("parse error")
	// ErrMissingData indicates a required quote field is absent.
	ErrMissingData = errors.New("missing data")
	// ErrEmptyBucket indicates an expiry bucket without a usable call/put pairing.
	ErrEmptyBucket = errors.New("empty bucket")
	// ErrNoATMStrike indicates no strike below the implied forward.
	ErrNoATMStrike = errors.New("no strike below implied forward")
	// ErrNoTerms indicates that no near or next term expiry is available.
	ErrNoTerms = errors.New("no near/next term expiry")
	// ErrInvalidParams indicates invalid computation parameters.
	ErrInvalidParams = errors.New("invalid parameters")
	// ErrUnknownVenue indicates a raw quote variant without an adapter.
	ErrUnknownVenue = errors.New("unknown venue")
	// ErrComputation indicates an unexpected failure recovered inside a cycle.
	ErrComputation = errors.New("index computation failed")
)
