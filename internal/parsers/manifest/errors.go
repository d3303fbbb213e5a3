package manifest

import "errors"

// Terminal parse failures. Every other irregularity degrades to "no value".
var (
	ErrMissingDate   = errors.New("date not found")
	ErrMissingOrigin = errors.New("origin not found")
)
