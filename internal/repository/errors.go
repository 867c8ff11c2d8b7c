package repository

import "errors"

var (
	// ErrNotFound indicates an entity was not located.
	ErrNotFound = errors.New("repository: not found")
	// ErrEmailTaken indicates another live record already holds the email.
	ErrEmailTaken = errors.New("repository: email already taken")
)
