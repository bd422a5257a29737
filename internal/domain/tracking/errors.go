package tracking

import "errors"

// ErrStore wraps a store failure that survived every retry.
var ErrStore = errors.New("tracking store failure")
