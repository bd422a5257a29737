package membership

import "errors"

// ErrInvalidCollection reports a collection that cannot be evaluated.
var ErrInvalidCollection = errors.New("invalid collection")
