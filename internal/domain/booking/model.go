package booking

import (
	"fmt"
	"time"

	"tutormarket/backend/internal/store"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

// Role is the party acting on a booking.
type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
)

func (r Role) Valid() bool {
	return r == RoleStudent || r == RoleTeacher
}

// PayoutState tracks the reserve/commit protocol used to pay the teacher.
type PayoutState string

const (
	PayoutNone     PayoutState = ""
	PayoutReserved PayoutState = "reserved"
	PayoutSent     PayoutState = "sent"
)

const (
	PaymentUnpaid = "unpaid"
	PaymentPaid   = "paid"
)

// Booking is one scheduled lesson between a student and a teacher.
type Booking struct {
	ID        string `json:"id"`
	StudentID string `json:"studentId"`
	TeacherID string `json:"teacherId"`
	Date      string `json:"date"`
	StartTime string `json:"startTime"`
	Duration  int    `json:"duration"`

	StudentConfirmed bool   `json:"studentConfirmed"`
	TeacherApproved  bool   `json:"teacherApproved"`
	Status           Status `json:"status"`

	AmountPaid   float64  `json:"amountPaid"`
	TeacherShare *float64 `json:"teacherShare,omitempty"`

	PayoutSent        bool        `json:"payoutSent"`
	PayoutAt          *time.Time  `json:"payoutAt,omitempty"`
	PayoutState       PayoutState `json:"payoutState,omitempty"`
	PayoutToken       string      `json:"-"`
	PayoutReservedAt  *time.Time  `json:"payoutReservedAt,omitempty"`
	PayoutAmountMinor int64       `json:"payoutAmountMinor,omitempty"`
	TransferID        string      `json:"transferId,omitempty"`

	PaymentStatus     string `json:"paymentStatus,omitempty"`
	CheckoutSessionID string `json:"checkoutSessionId,omitempty"`
	PaymentIntentID   string `json:"paymentIntentId,omitempty"`

	CancelledBy    Role       `json:"cancelledBy,omitempty"`
	CancelledAt    *time.Time `json:"cancelledAt,omitempty"`
	CreditRefunded bool       `json:"creditRefunded,omitempty"`

	CreatedAt *time.Time `json:"createdAt,omitempty"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
}

// FromData decodes a bookings document. Older documents carry no status;
// theirs is derived from the two confirmation flags.
func FromData(id string, data map[string]any) Booking {
	b := Booking{
		ID:                id,
		StudentID:         store.String(data, "studentId"),
		TeacherID:         store.String(data, "teacherId"),
		Date:              store.String(data, "date"),
		StartTime:         store.String(data, "startTime"),
		Duration:          int(store.Int(data, "duration")),
		StudentConfirmed:  store.Bool(data, "studentConfirmed"),
		TeacherApproved:   store.Bool(data, "teacherApproved"),
		Status:            Status(store.String(data, "status")),
		PayoutSent:        store.Bool(data, "payoutSent"),
		PayoutAt:          store.TimePtr(data, "payoutAt"),
		PayoutState:       PayoutState(store.String(data, "payoutState")),
		PayoutToken:       store.String(data, "payoutToken"),
		PayoutReservedAt:  store.TimePtr(data, "payoutReservedAt"),
		PayoutAmountMinor: store.Int(data, "payoutAmountMinor"),
		TransferID:        store.String(data, "transferId"),
		PaymentStatus:     store.String(data, "paymentStatus"),
		CheckoutSessionID: store.String(data, "checkoutSessionId"),
		PaymentIntentID:   store.String(data, "paymentIntentId"),
		CancelledBy:       Role(store.String(data, "cancelledBy")),
		CancelledAt:       store.TimePtr(data, "cancelledAt"),
		CreditRefunded:    store.Bool(data, "creditRefunded"),
		CreatedAt:         store.TimePtr(data, "createdAt"),
		UpdatedAt:         store.TimePtr(data, "updatedAt"),
	}
	if amount, ok := store.Float(data, "amountPaid"); ok {
		b.AmountPaid = amount
	}
	if share, ok := store.Float(data, "teacherShare"); ok {
		b.TeacherShare = &share
	}
	if b.Status == "" {
		b.Status = StatusPending
		if b.StudentConfirmed && b.TeacherApproved {
			b.Status = StatusApproved
		}
	}
	if b.PayoutSent {
		b.PayoutState = PayoutSent
	}
	return b
}

// Fields is the document representation written back by transactions.
func (b Booking) Fields() map[string]any {
	f := map[string]any{
		"studentId":         b.StudentID,
		"teacherId":         b.TeacherID,
		"date":              b.Date,
		"startTime":         b.StartTime,
		"duration":          b.Duration,
		"studentConfirmed":  b.StudentConfirmed,
		"teacherApproved":   b.TeacherApproved,
		"status":            string(b.Status),
		"amountPaid":        b.AmountPaid,
		"payoutSent":        b.PayoutSent,
		"payoutState":       string(b.PayoutState),
		"payoutToken":       b.PayoutToken,
		"payoutAmountMinor": b.PayoutAmountMinor,
		"transferId":        b.TransferID,
		"creditRefunded":    b.CreditRefunded,
		"payoutAt":          timeOrNil(b.PayoutAt),
		"payoutReservedAt":  timeOrNil(b.PayoutReservedAt),
		"cancelledAt":       timeOrNil(b.CancelledAt),
		"updatedAt":         timeOrNil(b.UpdatedAt),
	}
	if b.TeacherShare != nil {
		f["teacherShare"] = *b.TeacherShare
	}
	if b.CancelledBy != "" {
		f["cancelledBy"] = string(b.CancelledBy)
	}
	if b.PaymentStatus != "" {
		f["paymentStatus"] = b.PaymentStatus
	}
	if b.CreatedAt != nil {
		f["createdAt"] = *b.CreatedAt
	}
	return f
}

func timeOrNil(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

// StartsAt combines date and startTime in UTC.
func (b Booking) StartsAt() (time.Time, error) {
	t, err := time.Parse("2006-01-02 15:04", b.Date+" "+b.StartTime)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: unparsable lesson start %q %q", ErrBadRequest, b.Date, b.StartTime)
	}
	return t, nil
}

// IsParty reports whether uid is the booking's holder of role.
func (b Booking) IsParty(uid string, role Role) bool {
	switch role {
	case RoleStudent:
		return uid != "" && uid == b.StudentID
	case RoleTeacher:
		return uid != "" && uid == b.TeacherID
	}
	return false
}

// Actor is the authenticated caller acting on a booking.
type Actor struct {
	UID   string
	Admin bool
}
