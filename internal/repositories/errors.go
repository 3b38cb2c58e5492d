package repositories

import (
	"errors"
)

var (
	ErrNotFound      = errors.New("record not found")
	ErrAlreadyExists = errors.New("record already exists")
	ErrOutOfRange    = errors.New("index out of range")
)

func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}
