package store

import "errors"

var (
	// ErrNotFound is returned by delete/update operations when the target
	// row does not exist. Read operations return nil instead.
	ErrNotFound = errors.New("not found")

	// ErrInvalidStatus is returned for status values outside
	// {present, late, absent}.
	ErrInvalidStatus = errors.New("invalid attendance status")
)
