package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"

	"tutormarket/backend/internal/store"
)

type Repo struct {
	fs *firestore.Client
}

func NewRepo(fs *firestore.Client) *Repo {
	return &Repo{fs: fs}
}

func (r *Repo) Get(ctx context.Context, id string) (*Booking, error) {
	doc, err := r.fs.Collection(store.ColBookings).Doc(id).Get(ctx)
	if err != nil {
		if store.IsNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, err
	}
	b := FromData(doc.Ref.ID, doc.Data())
	return &b, nil
}

// Create stores a new booking under a generated id.
func (r *Repo) Create(ctx context.Context, b Booking) (*Booking, error) {
	ref := r.fs.Collection(store.ColBookings).NewDoc()
	now := time.Now().UTC()
	b.ID = ref.ID
	b.CreatedAt = &now
	b.UpdatedAt = &now
	if b.Status == "" {
		b.Status = StatusPending
	}
	if _, err := ref.Create(ctx, b.Fields()); err != nil {
		return nil, err
	}
	return &b, nil
}

// Apply reads the booking and applies fn inside one transaction. Nothing is
// written unless fn reports a change; credit effects land in the same commit.
func (r *Repo) Apply(ctx context.Context, id string, fn Transition) (*Booking, Effects, error) {
	ref := r.fs.Collection(store.ColBookings).Doc(id)

	var (
		out Booking
		eff Effects
	)
	err := store.Atomically(ctx, r.fs, func(ctx context.Context, tx *firestore.Transaction) error {
		data, err := store.Read(tx, ref)
		if err != nil {
			return err
		}
		cur := FromData(id, data)

		next, e, err := fn(cur)
		if err != nil {
			return err
		}
		out, eff = next, e
		if !e.Changed {
			return nil
		}

		if err := tx.Set(ref, next.Fields(), firestore.MergeAll); err != nil {
			return err
		}
		if e.StudentCredits != 0 && next.StudentID != "" {
			userRef := r.fs.Collection(store.ColUsers).Doc(next.StudentID)
			return tx.Set(userRef, map[string]any{
				"credits":   firestore.Increment(e.StudentCredits),
				"updatedAt": time.Now().UTC(),
			}, firestore.MergeAll)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, Effects{}, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, Effects{}, err
	}
	return &out, eff, nil
}

// MarkPaid records a completed checkout on the booking. Unknown ids are
// reported as ErrNotFound rather than creating a document.
func (r *Repo) MarkPaid(ctx context.Context, id, sessionID, paymentIntentID string) error {
	updates := []firestore.Update{
		{Path: "paymentStatus", Value: PaymentPaid},
		{Path: "checkoutSessionId", Value: sessionID},
		{Path: "updatedAt", Value: time.Now().UTC()},
	}
	if paymentIntentID != "" {
		updates = append(updates, firestore.Update{Path: "paymentIntentId", Value: paymentIntentID})
	}
	_, err := r.fs.Collection(store.ColBookings).Doc(id).Update(ctx, updates)
	if store.IsNotFound(err) {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return err
}

// AttachCheckout links a created checkout session to the booking.
func (r *Repo) AttachCheckout(ctx context.Context, id, sessionID string) error {
	_, err := r.fs.Collection(store.ColBookings).Doc(id).Update(ctx, []firestore.Update{
		{Path: "checkoutSessionId", Value: sessionID},
		{Path: "updatedAt", Value: time.Now().UTC()},
	})
	if store.IsNotFound(err) {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return err
}
