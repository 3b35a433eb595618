package store

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	ColBookings     = "bookings"
	ColUsers        = "users"
	ColPayments     = "payments"
	ColPayouts      = "payouts"
	ColStripeEvents = "stripeEvents"
)

var ErrNotFound = errors.New("document not found")

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || status.Code(err) == codes.NotFound
}

func IsAlreadyExists(err error) bool {
	return status.Code(err) == codes.AlreadyExists
}

// Read loads ref inside tx. A missing document yields ErrNotFound.
func Read(tx *firestore.Transaction, ref *firestore.DocumentRef) (map[string]any, error) {
	snap, err := tx.Get(ref)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, ref.Path)
		}
		return nil, err
	}
	return snap.Data(), nil
}

// ReadOptional is Read for documents that may legitimately be absent.
func ReadOptional(tx *firestore.Transaction, ref *firestore.DocumentRef) (map[string]any, bool, error) {
	data, err := Read(tx, ref)
	if errors.Is(err, ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// Atomically runs fn as a single Firestore transaction. fn may be invoked
// more than once on contention, so it must not keep state between attempts.
func Atomically(ctx context.Context, fs *firestore.Client, fn func(ctx context.Context, tx *firestore.Transaction) error) error {
	return fs.RunTransaction(ctx, fn, firestore.MaxAttempts(8))
}
