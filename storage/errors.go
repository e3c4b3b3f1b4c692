package storage

import "errors"

var (
	ErrNotFound    = errors.New("storage: not found")
	ErrUnavailable = errors.New("storage: backend unavailable")
	ErrInvalidKey  = errors.New("storage: invalid key")
)

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
