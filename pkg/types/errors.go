package types

import "errors"

// Configuration errors fail fast before any work is scheduled
var (
	ErrEmptyPattern   = errors.New("search pattern cannot be empty")
	ErrInvalidPattern = errors.New("invalid search pattern")
	ErrRootNotFound   = errors.New("search root not found")
)
