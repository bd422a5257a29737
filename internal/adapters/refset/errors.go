package refset

import "errors"

// Sentinel errors.
var (
	ErrEmptyCollection   = errors.New("collection has no decodable images")
	ErrInvalidDefinition = errors.New("invalid collection definition")
)
