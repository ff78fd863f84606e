package hadiscovery

import "errors"

// Sentinel errors for Home Assistant discovery.
var (
	// ErrInvalidBaseURL indicates the configured REST URL is missing or
	// lacks a scheme/host.
	ErrInvalidBaseURL = errors.New("hadiscovery: invalid base URL")

	// ErrTokenRequired indicates websocket discovery was attempted without
	// a long-lived access token.
	ErrTokenRequired = errors.New("hadiscovery: access token required")

	// ErrRESTFailed indicates a REST endpoint returned a non-200 status
	// or could not be reached.
	ErrRESTFailed = errors.New("hadiscovery: REST discovery failed")

	// ErrWebsocketFailed indicates the websocket handshake or get_config
	// exchange failed.
	ErrWebsocketFailed = errors.New("hadiscovery: websocket discovery failed")
)
