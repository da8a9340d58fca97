package repository

import "errors"

var (
	// ErrNotFound means no row exists for the requested key.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput means a required key was empty.
	ErrInvalidInput = errors.New("invalid input")
)
