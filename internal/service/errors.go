package service

import "errors"

var (
	ErrNilConfig       = errors.New("data service started with nil configuration")
	ErrInvalidConfig   = errors.New("invalid data service configuration")
	ErrNoActiveSession = errors.New("no active simulation session")
)
