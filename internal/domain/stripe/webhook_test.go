package stripe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v78/webhook"
	"go.uber.org/zap"

	"tutormarket/backend/internal/domain/booking"
	"tutormarket/backend/internal/domain/user"
)

const testWebhookSecret = "whsec_test"

type memEvents struct {
	seen      map[string]bool
	forgotten []string
	recordErr error
}

func (m *memEvents) Record(_ context.Context, id, _ string) (bool, error) {
	if m.recordErr != nil {
		return false, m.recordErr
	}
	if m.seen[id] {
		return false, nil
	}
	m.seen[id] = true
	return true, nil
}

func (m *memEvents) Forget(_ context.Context, id string) error {
	delete(m.seen, id)
	m.forgotten = append(m.forgotten, id)
	return nil
}

type memPayments struct {
	records []Payment
}

func (m *memPayments) Record(_ context.Context, p Payment) error {
	m.records = append(m.records, p)
	return nil
}

type webhookFixture struct {
	svc      *Service
	events   *memEvents
	payments *memPayments
	bookings *stubBookings
	users    *stubUsers
}

func newWebhookFixture() *webhookFixture {
	f := &webhookFixture{
		events:   &memEvents{seen: map[string]bool{}},
		payments: &memPayments{},
		bookings: &stubBookings{},
		users: &stubUsers{profiles: map[string]user.Profile{
			"stu": {UID: "stu", Role: user.RoleStudent, SubscriptionPlan: "pro"},
		}},
	}
	f.svc = NewService(nil, f.bookings, f.users, nil, Config{WebhookSecret: testWebhookSecret}, zap.NewNop(), nil)
	f.svc.events = f.events
	f.svc.payments = f.payments
	return f
}

func (f *webhookFixture) deliver(t *testing.T, body string) *httptest.ResponseRecorder {
	t.Helper()
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(body),
		Secret:    testWebhookSecret,
		Timestamp: time.Now(),
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/stripe/webhook", bytes.NewReader(signed.Payload))
	req.Header.Set("Stripe-Signature", signed.Header)
	rec := httptest.NewRecorder()
	f.svc.HandleWebhook(rec, req)
	return rec
}

func eventJSON(id, eventType, object string) string {
	return fmt.Sprintf(`{"id":%q,"object":"event","type":%q,"data":{"object":%s}}`, id, eventType, object)
}

const checkoutCompleted = `{"id":"cs_1","object":"checkout.session","metadata":{"bookingId":"b1"},"payment_intent":"pi_1"}`

func TestWebhookEvents(t *testing.T) {
	tests := []struct {
		name      string
		eventType string
		object    string
		check     func(t *testing.T, f *webhookFixture)
	}{
		{
			name:      "checkout marks booking paid",
			eventType: "checkout.session.completed",
			object:    checkoutCompleted,
			check: func(t *testing.T, f *webhookFixture) {
				assert.Equal(t, []string{"b1"}, f.bookings.paid)
			},
		},
		{
			name:      "checkout falls back to client reference",
			eventType: "checkout.session.completed",
			object:    `{"id":"cs_2","object":"checkout.session","client_reference_id":"b2"}`,
			check: func(t *testing.T, f *webhookFixture) {
				assert.Equal(t, []string{"b2"}, f.bookings.paid)
			},
		},
		{
			name:      "subscription checkout has no booking",
			eventType: "checkout.session.completed",
			object:    `{"id":"cs_3","object":"checkout.session","mode":"subscription"}`,
			check: func(t *testing.T, f *webhookFixture) {
				assert.Empty(t, f.bookings.paid)
			},
		},
		{
			name:      "invoice paid writes payment record",
			eventType: "invoice.payment_succeeded",
			object:    `{"id":"in_1","object":"invoice","customer":"cus_1","amount_paid":1299,"currency":"gbp","created":1700000000,"metadata":{"uid":"stu","plan":"vip"}}`,
			check: func(t *testing.T, f *webhookFixture) {
				require.Len(t, f.payments.records, 1)
				p := f.payments.records[0]
				assert.Equal(t, "stu", p.UserID)
				assert.Equal(t, "vip", p.Plan)
				assert.Equal(t, 12.99, p.Amount)
				assert.Equal(t, "in_1", p.InvoiceID)
				assert.Equal(t, time.Unix(1700000000, 0).UTC(), p.CreatedAt)
			},
		},
		{
			name:      "invoice without plan uses profile plan",
			eventType: "invoice.payment_succeeded",
			object:    `{"id":"in_2","object":"invoice","amount_paid":999,"currency":"gbp","metadata":{"uid":"stu"}}`,
			check: func(t *testing.T, f *webhookFixture) {
				require.Len(t, f.payments.records, 1)
				assert.Equal(t, "pro", f.payments.records[0].Plan)
			},
		},
		{
			name:      "subscription deleted resets plan",
			eventType: "customer.subscription.deleted",
			object:    `{"id":"sub_1","object":"subscription","status":"canceled","customer":"cus_1","metadata":{"uid":"stu"}}`,
			check: func(t *testing.T, f *webhookFixture) {
				assert.Equal(t, user.PlanFree, f.users.plans["stu"])
			},
		},
		{
			name:      "active subscription sets plan",
			eventType: "customer.subscription.updated",
			object:    `{"id":"sub_1","object":"subscription","status":"active","customer":"cus_1","metadata":{"uid":"stu","plan":"vip"}}`,
			check: func(t *testing.T, f *webhookFixture) {
				assert.Equal(t, "vip", f.users.plans["stu"])
			},
		},
		{
			name:      "past due subscription leaves plan",
			eventType: "customer.subscription.updated",
			object:    `{"id":"sub_1","object":"subscription","status":"past_due","customer":"cus_1","metadata":{"uid":"stu","plan":"vip"}}`,
			check: func(t *testing.T, f *webhookFixture) {
				assert.Empty(t, f.users.plans)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newWebhookFixture()
			rec := f.deliver(t, eventJSON("evt_1", tt.eventType, tt.object))
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			tt.check(t, f)
			assert.True(t, f.events.seen["evt_1"])
		})
	}
}

func TestWebhookDuplicateSkipped(t *testing.T) {
	f := newWebhookFixture()
	body := eventJSON("evt_dup", "checkout.session.completed", checkoutCompleted)

	require.Equal(t, http.StatusOK, f.deliver(t, body).Code)
	require.Equal(t, http.StatusOK, f.deliver(t, body).Code)

	assert.Equal(t, []string{"b1"}, f.bookings.paid)
}

func TestWebhookHandlerFailureIsRedelivered(t *testing.T) {
	f := newWebhookFixture()
	body := eventJSON("evt_retry", "checkout.session.completed", checkoutCompleted)

	f.bookings.markErr = errors.New("context deadline exceeded")
	rec := f.deliver(t, body)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, []string{"evt_retry"}, f.events.forgotten)
	assert.False(t, f.events.seen["evt_retry"])

	f.bookings.markErr = nil
	rec = f.deliver(t, body)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"b1"}, f.bookings.paid)
	assert.True(t, f.events.seen["evt_retry"])
}

func TestWebhookUnknownBookingAcknowledged(t *testing.T) {
	f := newWebhookFixture()
	f.bookings.markErr = fmt.Errorf("%w: b1", booking.ErrNotFound)

	rec := f.deliver(t, eventJSON("evt_gone", "checkout.session.completed", checkoutCompleted))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, f.events.forgotten)
}

func TestWebhookEventLogUnavailable(t *testing.T) {
	f := newWebhookFixture()
	f.events.recordErr = errors.New("unavailable")

	rec := f.deliver(t, eventJSON("evt_1", "checkout.session.completed", checkoutCompleted))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Empty(t, f.bookings.paid)
}
