package activity

import "errors"

// ErrInvalidInput indicates an entry or filter that cannot be stored or applied.
var ErrInvalidInput = errors.New("invalid activity input")
