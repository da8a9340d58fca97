package project

import "errors"

var (
	// ErrMalformedSnapshot indicates a studio response that cannot be trusted.
	ErrMalformedSnapshot = errors.New("malformed project snapshot")
	// ErrFrameNotFound indicates the frame is not part of the project.
	ErrFrameNotFound = errors.New("frame not found")
)
