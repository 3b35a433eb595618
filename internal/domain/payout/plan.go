package payout

import (
	"fmt"
	"math"
	"time"

	"tutormarket/backend/internal/domain/booking"
	"tutormarket/backend/internal/domain/user"
)

// DefaultShareRatio is the teacher's cut when a booking carries no explicit share.
const DefaultShareRatio = 0.8

// GroupingKey tags every transfer made for one lesson.
func GroupingKey(bookingID string) string {
	return "lesson_" + bookingID
}

// IdempotencyKey makes repeated transfer attempts for one lesson and payee
// account collapse into a single transfer at the processor. A teacher who
// reconnects a different account gets a fresh key, so a replayed terminal
// error for the old destination does not block the payout.
func IdempotencyKey(bookingID, destination string) string {
	return "payout_" + bookingID + "_" + destination
}

// TeacherShare is the booking's explicit share when it is a finite number,
// otherwise 80% of the amount paid.
func TeacherShare(b booking.Booking) float64 {
	if b.TeacherShare != nil && !math.IsNaN(*b.TeacherShare) && !math.IsInf(*b.TeacherShare, 0) {
		return *b.TeacherShare
	}
	return b.AmountPaid * DefaultShareRatio
}

// MinorUnits converts a major-unit amount to the smallest currency unit.
func MinorUnits(major float64) int64 {
	return int64(math.Round(major * 100))
}

// Decision is the outcome of a reservation attempt.
type Decision int

const (
	DecisionReserved Decision = iota
	DecisionAlreadySent
)

// Reserve claims the right to transfer money for cur.
func Reserve(cur booking.Booking, payee *user.Profile, token string, now time.Time) (booking.Booking, Decision, error) {
	if cur.PayoutSent || cur.PayoutState == booking.PayoutSent {
		return cur, DecisionAlreadySent, nil
	}
	if cur.Status != booking.StatusApproved {
		return cur, 0, fmt.Errorf("%w: payout allowed only when lesson is approved", ErrInvalidState)
	}
	// legacy bookings without a payment status predate checkout and count as paid
	if cur.PaymentStatus == booking.PaymentUnpaid {
		return cur, 0, fmt.Errorf("%w: lesson has not been paid", ErrInvalidState)
	}
	if cur.PayoutState == booking.PayoutReserved {
		return cur, 0, fmt.Errorf("%w: booking %s", ErrInProgress, cur.ID)
	}
	if payee == nil || !payee.CanReceivePayouts() {
		return cur, 0, fmt.Errorf("%w: teacher %s", ErrMissingPayeeAccount, cur.TeacherID)
	}

	minor := MinorUnits(TeacherShare(cur))
	if minor <= 0 {
		return cur, 0, fmt.Errorf("%w: payout amount must be positive", ErrInvalidState)
	}

	next := cur
	next.PayoutState = booking.PayoutReserved
	next.PayoutToken = token
	next.PayoutReservedAt = &now
	next.PayoutAmountMinor = minor
	next.UpdatedAt = &now
	return next, DecisionReserved, nil
}

// Commit settles a reservation held under token.
func Commit(cur booking.Booking, token, transferID string, now time.Time) (booking.Booking, error) {
	if cur.PayoutState != booking.PayoutReserved || cur.PayoutToken != token {
		return cur, fmt.Errorf("%w: booking %s", ErrReservationLost, cur.ID)
	}
	next := cur
	next.PayoutState = booking.PayoutSent
	next.PayoutSent = true
	next.PayoutAt = &now
	next.PayoutToken = ""
	next.TransferID = transferID
	next.UpdatedAt = &now
	return next, nil
}

// Release drops a reservation held under token. It reports false when the
// reservation is no longer held and nothing must be written.
func Release(cur booking.Booking, token string, now time.Time) (booking.Booking, bool) {
	if cur.PayoutState != booking.PayoutReserved || cur.PayoutToken != token {
		return cur, false
	}
	next := cur
	next.PayoutState = booking.PayoutNone
	next.PayoutToken = ""
	next.PayoutReservedAt = nil
	next.PayoutAmountMinor = 0
	next.UpdatedAt = &now
	return next, true
}

// Earnings is the amount credited to the teacher for minor units paid out.
func Earnings(minor int64) float64 {
	return float64(minor) / 100
}
