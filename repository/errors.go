package repository

import "errors"

var (
	// ErrNotFound is returned by mutating item operations when the id does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateUsername is returned by Register when the username is taken.
	ErrDuplicateUsername = errors.New("user already exists")
)
