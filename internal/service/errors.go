package service

import "errors"

var (
	// ErrInvalidStrategy is returned for an unrecognized chunking strategy.
	ErrInvalidStrategy = errors.New("invalid chunking strategy")

	// ErrUnknownStrategy is returned for an unrecognized selection strategy.
	ErrUnknownStrategy = errors.New("unknown selection strategy")

	// ErrDimensionMismatch means two vectors of different length were compared.
	// It indicates a provider/config mismatch, not a transient fault.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	ErrEmptyQuery      = errors.New("query is required")
	ErrEmptyContent    = errors.New("context is required")
	ErrDuplicateItemID = errors.New("duplicate content item id")
)

// IsInputError reports whether err was caused by the request rather than by
// a collaborator or a bug.
func IsInputError(err error) bool {
	return errors.Is(err, ErrInvalidStrategy) ||
		errors.Is(err, ErrUnknownStrategy) ||
		errors.Is(err, ErrEmptyQuery) ||
		errors.Is(err, ErrEmptyContent) ||
		errors.Is(err, ErrDuplicateItemID)
}
