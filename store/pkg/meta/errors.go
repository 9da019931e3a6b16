package meta

import "errors"

var (
	// ErrMergeConflict means two metadata documents disagree on an
	// identity-defining field: they describe different builds and can never
	// be merged.
	ErrMergeConflict = errors.New("metadata documents describe different builds and cannot be merged")
	// ErrBadKeyPath means Set could not locate a settable location.
	ErrBadKeyPath = errors.New("cannot locate a settable location for key path")
)
