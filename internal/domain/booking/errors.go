package booking

import "errors"

var (
	ErrNotFound     = errors.New("booking not found")
	ErrBadRequest   = errors.New("bad request")
	ErrForbidden    = errors.New("forbidden")
	ErrInvalidState = errors.New("invalid booking state")
)

func IsErrNotFound(err error) bool     { return errors.Is(err, ErrNotFound) }
func IsErrBadRequest(err error) bool   { return errors.Is(err, ErrBadRequest) }
func IsErrForbidden(err error) bool    { return errors.Is(err, ErrForbidden) }
func IsErrInvalidState(err error) bool { return errors.Is(err, ErrInvalidState) }
