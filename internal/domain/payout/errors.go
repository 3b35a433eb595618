package payout

import "errors"

var (
	ErrBadRequest          = errors.New("bad request")
	ErrNotFound            = errors.New("booking not found")
	ErrInvalidState        = errors.New("invalid state")
	ErrMissingPayeeAccount = errors.New("teacher has no payout account")
	ErrInProgress          = errors.New("payout already in progress")
	ErrFailed              = errors.New("payout failed")
	// ErrReservationLost means another actor released or settled the
	// reservation while a transfer was in flight.
	ErrReservationLost = errors.New("payout reservation lost")
)

func IsErrBadRequest(err error) bool          { return errors.Is(err, ErrBadRequest) }
func IsErrNotFound(err error) bool            { return errors.Is(err, ErrNotFound) }
func IsErrInvalidState(err error) bool        { return errors.Is(err, ErrInvalidState) }
func IsErrMissingPayeeAccount(err error) bool { return errors.Is(err, ErrMissingPayeeAccount) }
func IsErrInProgress(err error) bool          { return errors.Is(err, ErrInProgress) }
func IsErrFailed(err error) bool              { return errors.Is(err, ErrFailed) }

// TransferError is returned by processors so the engine can tell a transient
// failure from a terminal one.
type TransferError struct {
	Retriable bool
	Err       error
}

func (e *TransferError) Error() string { return e.Err.Error() }
func (e *TransferError) Unwrap() error { return e.Err }

// IsRetriable reports whether err is a processor failure worth retrying.
func IsRetriable(err error) bool {
	var te *TransferError
	if errors.As(err, &te) {
		return te.Retriable
	}
	return false
}
