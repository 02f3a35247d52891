// Package sources provides the market data source interface, the shared
// HTTP plumbing of venue adapters and the source registry.
package sources

import "errors"

var (
	// ErrUnexpectedStatus indicates an unexpected HTTP status code.
	ErrUnexpectedStatus = errors.New("unexpected HTTP status code")
	// ErrRateLimitExceeded indicates that a rate limit has been exceeded.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	// ErrAPIError indicates an API error.
	ErrAPIError = errors.New("API error")
	// ErrInvalidResponse indicates an invalid response from the source.
	ErrInvalidResponse = errors.New("invalid response")
	// ErrCircuitOpen indicates the source circuit breaker rejected the request.
	ErrCircuitOpen = errors.New("circuit breaker open")
	// ErrSourceStopped indicates that the source has been stopped.
	ErrSourceStopped = errors.New("source stopped")
	// ErrInvalidConfig indicates that the source configuration is invalid.
	ErrInvalidConfig = errors.New("invalid configuration")
	// ErrNoUnderlyingsConfigured indicates that no underlyings are configured for the source.
	ErrNoUnderlyingsConfigured = errors.New("no underlyings configured")
	// ErrUnsupportedUnderlying indicates a fetch for an underlying the source does not serve.
	ErrUnsupportedUnderlying = errors.New("unsupported underlying")
	// ErrNoQuotesInResponse indicates that the venue returned no option tickers.
	ErrNoQuotesInResponse = errors.New("no option quotes in response")
	// ErrUnknownSource indicates a type.name without a registered factory.
	ErrUnknownSource = errors.New("unknown source")
)
