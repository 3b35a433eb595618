package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/webhook"
	"go.uber.org/zap"

	"tutormarket/backend/internal/domain/booking"
	"tutormarket/backend/internal/domain/user"
)

// errMalformed marks events whose payload cannot be decoded.
var errMalformed = errors.New("malformed event payload")

// HandleWebhook processes incoming Stripe webhooks
func (s *Service) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	const MaxBodyBytes = int64(65536)
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)

	payload, err := io.ReadAll(r.Body)
	if err != nil {
		s.logger.Warn("webhook: error reading request body", zap.Error(err))
		http.Error(w, "Error reading request body", http.StatusServiceUnavailable)
		return
	}

	event, err := webhook.ConstructEventWithOptions(payload, r.Header.Get("Stripe-Signature"), s.config.WebhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		s.logger.Warn("webhook: signature verification failed", zap.Error(err))
		http.Error(w, fmt.Sprintf("Webhook signature verification failed: %v", err), http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	log := s.logger.With(zap.String("event_id", event.ID), zap.String("event_type", string(event.Type)))

	first, err := s.events.Record(ctx, event.ID, string(event.Type))
	if err != nil {
		log.Error("webhook: failed to record event", zap.Error(err))
		http.Error(w, "temporarily unavailable", http.StatusServiceUnavailable)
		return
	}
	if !first {
		log.Info("webhook: duplicate event skipped")
		writeReceived(w)
		return
	}

	log.Info("webhook: received event")
	_ = s.metrics.Incr("stripe.webhook", []string{"type:" + string(event.Type)}, 1)

	err = s.dispatch(ctx, event)
	switch {
	case err == nil:
	case errors.Is(err, errMalformed):
		log.Warn("webhook: error parsing event", zap.Error(err))
		http.Error(w, fmt.Sprintf("Error parsing webhook JSON: %v", err), http.StatusBadRequest)
		return
	case isUnknownTarget(err):
		// redelivery cannot fix a reference to a booking or user we do not have
		log.Warn("webhook: event target not found, acknowledging", zap.Error(err))
	default:
		log.Error("webhook: handler failed, awaiting redelivery", zap.Error(err))
		_ = s.metrics.Incr("stripe.webhook.failed", []string{"type:" + string(event.Type)}, 1)
		if ferr := s.events.Forget(context.WithoutCancel(ctx), event.ID); ferr != nil {
			log.Error("webhook: failed to forget event", zap.Error(ferr))
		}
		http.Error(w, "event handling failed", http.StatusInternalServerError)
		return
	}

	writeReceived(w)
}

func (s *Service) dispatch(ctx context.Context, event stripe.Event) error {
	switch event.Type {
	case "checkout.session.completed":
		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			return fmt.Errorf("%w: %v", errMalformed, err)
		}
		return s.handleCheckoutCompleted(ctx, &session)

	case "customer.subscription.created", "customer.subscription.updated":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return fmt.Errorf("%w: %v", errMalformed, err)
		}
		return s.handleSubscriptionChanged(ctx, &sub)

	case "customer.subscription.deleted":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return fmt.Errorf("%w: %v", errMalformed, err)
		}
		return s.handleSubscriptionDeleted(ctx, &sub)

	case "invoice.payment_succeeded":
		var invoice stripe.Invoice
		if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
			return fmt.Errorf("%w: %v", errMalformed, err)
		}
		return s.handlePaymentSucceeded(ctx, &invoice)

	default:
		s.logger.Debug("webhook: unhandled event type", zap.String("event_type", string(event.Type)))
		return nil
	}
}

func isUnknownTarget(err error) bool {
	return booking.IsErrNotFound(err) || user.IsErrNotFound(err) || IsErrNotFound(err)
}

func writeReceived(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"received": true}`))
}

func (s *Service) handleCheckoutCompleted(ctx context.Context, session *stripe.CheckoutSession) error {
	bookingID := session.Metadata["bookingId"]
	if bookingID == "" {
		bookingID = session.ClientReferenceID
	}
	if bookingID == "" {
		// subscription checkouts carry no booking
		return nil
	}

	var paymentIntentID string
	if session.PaymentIntent != nil {
		paymentIntentID = session.PaymentIntent.ID
	}
	if err := s.bookings.MarkPaid(ctx, bookingID, session.ID, paymentIntentID); err != nil {
		return fmt.Errorf("failed to mark booking %s paid: %w", bookingID, err)
	}
	s.logger.Info("webhook: lesson paid", zap.String("booking_id", bookingID), zap.String("session_id", session.ID))
	return nil
}

func (s *Service) handleSubscriptionChanged(ctx context.Context, sub *stripe.Subscription) error {
	plan := sub.Metadata["plan"]
	if plan == "" {
		return nil
	}
	if sub.Status != stripe.SubscriptionStatusActive && sub.Status != stripe.SubscriptionStatusTrialing {
		return nil
	}
	p, err := s.subscriber(ctx, sub.Metadata, sub.Customer)
	if err != nil {
		return err
	}
	return s.users.SetPlan(ctx, p.UID, plan)
}

func (s *Service) handleSubscriptionDeleted(ctx context.Context, sub *stripe.Subscription) error {
	p, err := s.subscriber(ctx, sub.Metadata, sub.Customer)
	if err != nil {
		return err
	}
	s.logger.Info("webhook: subscription ended", zap.String("uid", p.UID), zap.String("subscription_id", sub.ID))
	return s.users.SetPlan(ctx, p.UID, user.PlanFree)
}

func (s *Service) handlePaymentSucceeded(ctx context.Context, invoice *stripe.Invoice) error {
	p, err := s.subscriber(ctx, invoice.Metadata, invoice.Customer)
	if err != nil {
		return err
	}

	plan := invoice.Metadata["plan"]
	if plan == "" {
		plan = p.SubscriptionPlan
	}
	createdAt := time.Now().UTC()
	if invoice.Created > 0 {
		createdAt = time.Unix(invoice.Created, 0).UTC()
	}

	err = s.payments.Record(ctx, Payment{
		UserID:    p.UID,
		Plan:      plan,
		Amount:    float64(invoice.AmountPaid) / 100,
		Currency:  string(invoice.Currency),
		InvoiceID: invoice.ID,
		CreatedAt: createdAt,
	})
	if err != nil {
		return fmt.Errorf("failed to record payment: %w", err)
	}
	return nil
}

// subscriber resolves the user behind a Stripe object, by uid metadata
// first and by customer id otherwise.
func (s *Service) subscriber(ctx context.Context, metadata map[string]string, customer *stripe.Customer) (*user.Profile, error) {
	if uid := metadata["uid"]; uid != "" {
		return s.users.Get(ctx, uid)
	}
	if customer == nil || customer.ID == "" {
		return nil, fmt.Errorf("%w: event has no uid or customer", ErrNotFound)
	}
	return s.users.FindByStripeCustomer(ctx, customer.ID)
}
