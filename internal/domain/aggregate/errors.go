package aggregate

import "errors"

// ErrInvalidIdentity is returned when the identity key is missing or does
// not belong to the current entity.
var ErrInvalidIdentity = errors.New("invalid identity")
