// Package client provides HTTP and WebSocket clients for the index API.
package client

import "errors"

var (
	// ErrServerHTTPError indicates that the index server returned an HTTP error.
	ErrServerHTTPError = errors.New("index server returned HTTP error")
	// ErrNoConnection indicates that the stream has no open connection.
	ErrNoConnection = errors.New("no websocket connection")
	// ErrStreamError indicates an error message sent by the stream.
	ErrStreamError = errors.New("stream error")
)
