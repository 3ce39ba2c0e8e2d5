package store

import "errors"

var (
	ErrValidation    = errors.New("invalid request")
	ErrNotJoined     = errors.New("not joined")
	ErrAlreadyExists = errors.New("room exists")
	ErrNameTaken     = errors.New("username taken in room")
	ErrNotFound      = errors.New("not found")
	ErrNotOwner      = errors.New("not owner")

	ErrUsernameRequired error = ValidationError("username required")
	ErrRoomRequired     error = ValidationError("room required")
	ErrEmptyMessage     error = ValidationError("empty message")
)

// ValidationError describes a missing or malformed field. It matches
// ErrValidation under errors.Is.
type ValidationError string

func (e ValidationError) Error() string {
	return string(e)
}

func (e ValidationError) Is(target error) bool {
	return target == ErrValidation
}
