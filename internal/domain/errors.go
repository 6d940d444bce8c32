package domain

import "errors"

// request
var (
	ErrValidation = errors.New("invalid request")
)

// upstream engine
var (
	ErrUpstreamUnavailable = errors.New("inference engine unavailable")
	ErrUpstreamTimeout     = errors.New("inference engine timed out")
	ErrUpstreamError       = errors.New("inference engine error")
	// ErrStreamUnsupported is returned by engines that only answer whole.
	ErrStreamUnsupported = errors.New("engine has no native streaming")
)

// archive
var (
	ErrArchiveDisabled = errors.New("exchange archive is disabled")
)
