package amp

import "errors"

// Sentinel errors for pipeline construction and runs.
var (
	ErrMissingURL  = errors.New("request URL is required for the canonical link")
	ErrInvalidURL  = errors.New("invalid request URL")
	ErrUnknownMode = errors.New("unknown conversion mode")
	ErrUnknownStep = errors.New("unknown pipeline step")
	ErrNoResolver  = errors.New("no image resolver configured")
)
