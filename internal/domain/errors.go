package domain

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidRequest  = errors.New("invalid request")
	ErrMissingIdentity = errors.New("item is missing a name")
	ErrProviderFailure = errors.New("provider failure")
	ErrBatchTerminal   = errors.New("batch already finished")
)
