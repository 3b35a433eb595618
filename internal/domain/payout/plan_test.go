package payout

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tutormarket/backend/internal/domain/booking"
	"tutormarket/backend/internal/domain/user"
)

var planNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func ptr(f float64) *float64 { return &f }

func TestTeacherShare(t *testing.T) {
	tests := []struct {
		name string
		b    booking.Booking
		want int64
	}{
		{name: "fallback", b: booking.Booking{AmountPaid: 100}, want: 8000},
		{name: "explicit", b: booking.Booking{AmountPaid: 100, TeacherShare: ptr(65.5)}, want: 6550},
		{name: "nan falls back", b: booking.Booking{AmountPaid: 100, TeacherShare: ptr(math.NaN())}, want: 8000},
		{name: "inf falls back", b: booking.Booking{AmountPaid: 100, TeacherShare: ptr(math.Inf(1))}, want: 8000},
		{name: "rounds half cents", b: booking.Booking{AmountPaid: 33.33}, want: 2666},
		{name: "zero share honoured", b: booking.Booking{AmountPaid: 100, TeacherShare: ptr(0)}, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MinorUnits(TeacherShare(tt.b)))
		})
	}
	assert.Equal(t, 80.0, Earnings(8000))
	assert.Equal(t, 65.5, Earnings(6550))
}

func approvedBooking() booking.Booking {
	return booking.Booking{
		ID:               "b1",
		StudentID:        "stu",
		TeacherID:        "tea",
		Date:             "2024-05-10",
		Status:           booking.StatusApproved,
		StudentConfirmed: true,
		TeacherApproved:  true,
		AmountPaid:       100,
	}
}

var payee = &user.Profile{UID: "tea", StripeAccountID: "acct_123"}

func TestReserve(t *testing.T) {
	next, d, err := Reserve(approvedBooking(), payee, "tok", planNow)
	require.NoError(t, err)
	assert.Equal(t, DecisionReserved, d)
	assert.Equal(t, booking.PayoutReserved, next.PayoutState)
	assert.Equal(t, "tok", next.PayoutToken)
	assert.Equal(t, int64(8000), next.PayoutAmountMinor)
	assert.False(t, next.PayoutSent)
}

func TestReserveRejects(t *testing.T) {
	pending := approvedBooking()
	pending.Status = booking.StatusPending
	_, _, err := Reserve(pending, payee, "tok", planNow)
	assert.True(t, IsErrInvalidState(err))
	assert.Contains(t, err.Error(), "payout allowed only when lesson is approved")

	_, _, err = Reserve(approvedBooking(), nil, "tok", planNow)
	assert.True(t, IsErrMissingPayeeAccount(err))

	_, _, err = Reserve(approvedBooking(), &user.Profile{UID: "tea"}, "tok", planNow)
	assert.True(t, IsErrMissingPayeeAccount(err))

	held := approvedBooking()
	held.PayoutState = booking.PayoutReserved
	held.PayoutToken = "other"
	_, _, err = Reserve(held, payee, "tok", planNow)
	assert.True(t, IsErrInProgress(err))

	unpaid := approvedBooking()
	unpaid.PaymentStatus = booking.PaymentUnpaid
	_, _, err = Reserve(unpaid, payee, "tok", planNow)
	assert.True(t, IsErrInvalidState(err))
	assert.Contains(t, err.Error(), "lesson has not been paid")

	paid := approvedBooking()
	paid.PaymentStatus = booking.PaymentPaid
	_, d, err := Reserve(paid, payee, "tok", planNow)
	require.NoError(t, err)
	assert.Equal(t, DecisionReserved, d)

	free := approvedBooking()
	free.AmountPaid = 0
	_, _, err = Reserve(free, payee, "tok", planNow)
	assert.True(t, IsErrInvalidState(err))
}

func TestReserveAlreadySent(t *testing.T) {
	sent := approvedBooking()
	sent.PayoutSent = true
	sent.Status = booking.StatusCompleted

	next, d, err := Reserve(sent, nil, "tok", planNow)
	require.NoError(t, err)
	assert.Equal(t, DecisionAlreadySent, d)
	assert.Equal(t, sent, next)
}

func TestCommitAndRelease(t *testing.T) {
	reserved, _, err := Reserve(approvedBooking(), payee, "tok", planNow)
	require.NoError(t, err)

	_, err = Commit(reserved, "stale", "tr_1", planNow)
	assert.ErrorIs(t, err, ErrReservationLost)

	done, err := Commit(reserved, "tok", "tr_1", planNow)
	require.NoError(t, err)
	assert.True(t, done.PayoutSent)
	assert.Equal(t, booking.PayoutSent, done.PayoutState)
	assert.Equal(t, "tr_1", done.TransferID)
	require.NotNil(t, done.PayoutAt)

	_, ok := Release(done, "tok", planNow)
	assert.False(t, ok, "settled payouts cannot be released")

	released, ok := Release(reserved, "tok", planNow)
	assert.True(t, ok)
	assert.Equal(t, booking.PayoutNone, released.PayoutState)
	assert.Zero(t, released.PayoutAmountMinor)
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "lesson_b1", GroupingKey("b1"))
	assert.Equal(t, "payout_b1_acct_123", IdempotencyKey("b1", "acct_123"))
	assert.NotEqual(t, IdempotencyKey("b1", "acct_123"), IdempotencyKey("b1", "acct_456"))
}
