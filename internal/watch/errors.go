package watch

import "errors"

var (
	ErrStopped    = errors.New("watch stopped")
	ErrNotWatched = errors.New("project not watched")
)
