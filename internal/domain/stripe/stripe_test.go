package stripe

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v78"
	"go.uber.org/zap"

	"tutormarket/backend/internal/domain/booking"
	"tutormarket/backend/internal/domain/loyalty"
	"tutormarket/backend/internal/domain/payout"
	"tutormarket/backend/internal/domain/user"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retriable bool
	}{
		{name: "rate limited", err: &stripe.Error{HTTPStatusCode: 429}, retriable: true},
		{name: "server error", err: &stripe.Error{HTTPStatusCode: 503, Type: stripe.ErrorTypeAPI}, retriable: true},
		{name: "idempotency conflict", err: &stripe.Error{HTTPStatusCode: 409}, retriable: true},
		{name: "invalid request", err: &stripe.Error{HTTPStatusCode: 400, Type: stripe.ErrorTypeInvalidRequest}, retriable: false},
		{name: "insufficient funds", err: &stripe.Error{HTTPStatusCode: 400, Code: "balance_insufficient"}, retriable: false},
		{name: "transport", err: errors.New("connection reset"), retriable: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classify(tt.err)
			assert.Equal(t, tt.retriable, payout.IsRetriable(err))
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestQuoteLesson(t *testing.T) {
	q := QuoteLesson(50, nil, 80)
	assert.Equal(t, Quote{Amount: 50, TeacherShare: 40}, q)

	q = QuoteLesson(50, &loyalty.Info{Plan: loyalty.PlanVIP, LoyaltyMonths: 6, PermanentDiscount: 10}, 80)
	assert.Equal(t, 45.0, q.Amount)
	assert.Equal(t, 10, q.Discount)
	assert.Equal(t, 36.0, q.TeacherShare)

	q = QuoteLesson(49.99, &loyalty.Info{PermanentDiscount: 10}, 80)
	assert.Equal(t, 44.99, q.Amount)
	assert.Equal(t, 35.99, q.TeacherShare)
}

type stubUsers struct {
	profiles map[string]user.Profile
	plans    map[string]string
}

func (u *stubUsers) Get(_ context.Context, uid string) (*user.Profile, error) {
	p, ok := u.profiles[uid]
	if !ok {
		return nil, user.ErrNotFound
	}
	return &p, nil
}

func (u *stubUsers) FindByStripeCustomer(context.Context, string) (*user.Profile, error) {
	return nil, user.ErrNotFound
}

func (u *stubUsers) SetPlan(_ context.Context, uid, plan string) error {
	if u.plans == nil {
		u.plans = map[string]string{}
	}
	u.plans[uid] = plan
	return nil
}

type stubBookings struct {
	created []booking.Booking
	paid    []string
	markErr error
}

func (b *stubBookings) Create(_ context.Context, bk booking.Booking) (*booking.Booking, error) {
	bk.ID = "b1"
	b.created = append(b.created, bk)
	return &bk, nil
}

func (b *stubBookings) AttachCheckout(context.Context, string, string) error { return nil }

func (b *stubBookings) MarkPaid(_ context.Context, id, _, _ string) error {
	if b.markErr != nil {
		return b.markErr
	}
	b.paid = append(b.paid, id)
	return nil
}

func TestCreateLessonCheckoutValidation(t *testing.T) {
	users := &stubUsers{profiles: map[string]user.Profile{
		"tea": {UID: "tea", Role: user.RoleTeacher},
		"stu": {UID: "stu", Role: user.RoleStudent},
	}}
	bookings := &stubBookings{}
	svc := NewService(nil, bookings, users, nil, Config{Currency: "gbp", TeacherSharePercent: 80}, zap.NewNop(), nil)
	ctx := context.Background()

	valid := LessonCheckoutInput{TeacherID: "tea", Date: "2024-05-10", StartTime: "16:00", Duration: 60, Price: 50}

	_, err := svc.CreateLessonCheckout(ctx, "", valid)
	assert.True(t, IsErrUnauthorized(err))

	in := valid
	in.TeacherID = "ghost"
	_, err = svc.CreateLessonCheckout(ctx, "stu", in)
	assert.True(t, IsErrNotFound(err))

	in = valid
	in.TeacherID = "stu"
	_, err = svc.CreateLessonCheckout(ctx, "tea", in)
	assert.True(t, IsErrBadRequest(err), "students cannot be booked as teachers")

	_, err = svc.CreateLessonCheckout(ctx, "tea", valid)
	assert.True(t, IsErrBadRequest(err), "self booking")

	in = valid
	in.Price = 0
	_, err = svc.CreateLessonCheckout(ctx, "stu", in)
	assert.True(t, IsErrBadRequest(err))

	assert.Empty(t, bookings.created)
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	svc := NewService(nil, &stubBookings{}, &stubUsers{}, nil, Config{WebhookSecret: "whsec_test"}, zap.NewNop(), nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/stripe/webhook", strings.NewReader(`{"id":"evt_1"}`))
	req.Header.Set("Stripe-Signature", "t=1,v1=deadbeef")
	rec := httptest.NewRecorder()

	svc.HandleWebhook(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
