package stripe

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"

	"tutormarket/backend/internal/store"
)

// EventLog remembers which webhook events were already handled.
type EventLog interface {
	// Record reports whether id is seen for the first time.
	Record(ctx context.Context, id, eventType string) (bool, error)
	// Forget drops id so a redelivery is handled again.
	Forget(ctx context.Context, id string) error
}

// PaymentLog stores paid subscription invoices.
type PaymentLog interface {
	Record(ctx context.Context, p Payment) error
}

type firestoreEvents struct {
	fs *firestore.Client
}

func (e firestoreEvents) Record(ctx context.Context, id, eventType string) (bool, error) {
	_, err := e.fs.Collection(store.ColStripeEvents).Doc(id).Create(ctx, map[string]any{
		"type":       eventType,
		"receivedAt": time.Now().UTC(),
	})
	if store.IsAlreadyExists(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (e firestoreEvents) Forget(ctx context.Context, id string) error {
	_, err := e.fs.Collection(store.ColStripeEvents).Doc(id).Delete(ctx)
	return err
}

type firestorePayments struct {
	fs *firestore.Client
}

// Record is keyed by invoice id, so replays overwrite rather than duplicate.
func (p firestorePayments) Record(ctx context.Context, pay Payment) error {
	_, err := p.fs.Collection(store.ColPayments).Doc(pay.InvoiceID).Set(ctx, pay)
	return err
}
