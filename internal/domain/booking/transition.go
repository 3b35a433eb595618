package booking

import (
	"fmt"
	"time"
)

// FreeCancellationWindow is how far ahead of the lesson a student may
// cancel and still get the lesson credited back.
const FreeCancellationWindow = 24 * time.Hour

// Effects describes what a transition did besides producing the next state.
type Effects struct {
	// Changed is false when the transition was a no-op and nothing must be written.
	Changed bool
	// Promoted is set when this transition moved the booking to approved.
	Promoted bool
	// StudentCredits is added to the student's lesson credits in the same write.
	StudentCredits int64
}

// Transition is a pure function from the stored booking to the next one.
type Transition func(cur Booking) (Booking, Effects, error)

// Authorize checks that actor may act on b as role.
func Authorize(b Booking, actor Actor, role Role) error {
	if actor.Admin {
		return nil
	}
	if !b.IsParty(actor.UID, role) {
		return fmt.Errorf("%w: caller is not the booking's %s", ErrForbidden, role)
	}
	return nil
}

// Confirm records role's confirmation. The booking is promoted to approved
// only when the other party had already confirmed in cur.
func Confirm(cur Booking, role Role, now time.Time) (Booking, Effects, error) {
	if !role.Valid() {
		return cur, Effects{}, fmt.Errorf("%w: role must be student or teacher", ErrBadRequest)
	}
	if cur.Status == StatusCancelled || cur.Status == StatusCompleted {
		return cur, Effects{}, fmt.Errorf("%w: booking is %s", ErrInvalidState, cur.Status)
	}

	next := cur
	var eff Effects
	otherConfirmed := false

	switch role {
	case RoleStudent:
		if !cur.StudentConfirmed {
			next.StudentConfirmed = true
			eff.Changed = true
		}
		otherConfirmed = cur.TeacherApproved
	case RoleTeacher:
		if !cur.TeacherApproved {
			next.TeacherApproved = true
			eff.Changed = true
		}
		otherConfirmed = cur.StudentConfirmed
	}

	if otherConfirmed && cur.Status != StatusApproved {
		next.Status = StatusApproved
		eff.Changed = true
		eff.Promoted = true
	}
	if eff.Changed {
		next.UpdatedAt = &now
	}
	return next, eff, nil
}

// Cancel moves a pending or approved booking to cancelled. Cancelling an
// already cancelled booking is a no-op.
func Cancel(cur Booking, role Role, now time.Time) (Booking, Effects, error) {
	if !role.Valid() {
		return cur, Effects{}, fmt.Errorf("%w: role must be student or teacher", ErrBadRequest)
	}
	switch cur.Status {
	case StatusCancelled:
		return cur, Effects{}, nil
	case StatusCompleted:
		return cur, Effects{}, fmt.Errorf("%w: completed lessons cannot be cancelled", ErrInvalidState)
	}
	if cur.PayoutSent || cur.PayoutState != PayoutNone {
		return cur, Effects{}, fmt.Errorf("%w: payout already reserved or sent", ErrInvalidState)
	}

	next := cur
	next.Status = StatusCancelled
	next.CancelledBy = role
	next.CancelledAt = &now
	next.UpdatedAt = &now
	eff := Effects{Changed: true}

	if refundable(cur, role, now) {
		next.CreditRefunded = true
		eff.StudentCredits = 1
	}
	return next, eff, nil
}

func refundable(b Booking, role Role, now time.Time) bool {
	if b.AmountPaid <= 0 || b.CreditRefunded || b.PaymentStatus == PaymentUnpaid {
		return false
	}
	if role == RoleTeacher {
		return true
	}
	start, err := b.StartsAt()
	if err != nil {
		return false
	}
	return start.Sub(now) >= FreeCancellationWindow
}

// Complete closes out a lesson whose teacher has been paid.
func Complete(cur Booking, now time.Time) (Booking, Effects, error) {
	if cur.Status == StatusCompleted {
		return cur, Effects{}, nil
	}
	if cur.Status != StatusApproved {
		return cur, Effects{}, fmt.Errorf("%w: only approved lessons can be completed", ErrInvalidState)
	}
	if !cur.PayoutSent {
		return cur, Effects{}, fmt.Errorf("%w: payout has not been sent", ErrInvalidState)
	}
	next := cur
	next.Status = StatusCompleted
	next.UpdatedAt = &now
	return next, Effects{Changed: true}, nil
}
