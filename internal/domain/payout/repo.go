package payout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	"tutormarket/backend/internal/domain/booking"
	"tutormarket/backend/internal/domain/user"
	"tutormarket/backend/internal/store"
)

// Mutation computes the next booking from the stored one. write=false
// leaves the document untouched.
type Mutation func(cur booking.Booking) (next booking.Booking, write bool, err error)

// ReserveMutation also sees the payee profile, nil when it does not exist.
type ReserveMutation func(cur booking.Booking, payee *user.Profile) (next booking.Booking, write bool, err error)

// Record is the audit entry written with a committed payout.
type Record struct {
	BookingID   string
	TeacherID   string
	AmountMinor int64
	Currency    string
	TransferID  string
	GroupingKey string
	SentAt      time.Time
}

type Repository interface {
	Reserve(ctx context.Context, bookingID string, fn ReserveMutation) (*booking.Booking, *user.Profile, error)
	// Commit writes the settled booking, the payee's earnings increment and
	// the audit record in one transaction.
	Commit(ctx context.Context, bookingID string, fn Mutation, rec Record) (*booking.Booking, error)
	Release(ctx context.Context, bookingID string, fn Mutation) error
	StaleReservations(ctx context.Context, before time.Time, limit int) ([]booking.Booking, error)
}

type Repo struct {
	fs *firestore.Client
}

func NewRepo(fs *firestore.Client) *Repo {
	return &Repo{fs: fs}
}

func (r *Repo) bookingRef(id string) *firestore.DocumentRef {
	return r.fs.Collection(store.ColBookings).Doc(id)
}

func (r *Repo) Reserve(ctx context.Context, bookingID string, fn ReserveMutation) (*booking.Booking, *user.Profile, error) {
	ref := r.bookingRef(bookingID)

	var (
		out   booking.Booking
		payee *user.Profile
	)
	err := store.Atomically(ctx, r.fs, func(ctx context.Context, tx *firestore.Transaction) error {
		data, err := store.Read(tx, ref)
		if err != nil {
			return err
		}
		cur := booking.FromData(bookingID, data)

		payee = nil
		if cur.TeacherID != "" {
			userData, ok, err := store.ReadOptional(tx, r.fs.Collection(store.ColUsers).Doc(cur.TeacherID))
			if err != nil {
				return err
			}
			if ok {
				p := user.FromData(cur.TeacherID, userData)
				payee = &p
			}
		}

		next, write, err := fn(cur, payee)
		if err != nil {
			return err
		}
		out = next
		if !write {
			return nil
		}
		return tx.Set(ref, next.Fields(), firestore.MergeAll)
	})
	if err != nil {
		return nil, nil, translate(err, bookingID)
	}
	return &out, payee, nil
}

func (r *Repo) Commit(ctx context.Context, bookingID string, fn Mutation, rec Record) (*booking.Booking, error) {
	ref := r.bookingRef(bookingID)

	var out booking.Booking
	err := store.Atomically(ctx, r.fs, func(ctx context.Context, tx *firestore.Transaction) error {
		data, err := store.Read(tx, ref)
		if err != nil {
			return err
		}
		next, write, err := fn(booking.FromData(bookingID, data))
		if err != nil {
			return err
		}
		out = next
		if !write {
			return nil
		}

		if err := tx.Set(ref, next.Fields(), firestore.MergeAll); err != nil {
			return err
		}
		userRef := r.fs.Collection(store.ColUsers).Doc(rec.TeacherID)
		if err := tx.Set(userRef, map[string]any{
			"totalEarnings": firestore.Increment(Earnings(rec.AmountMinor)),
			"updatedAt":     rec.SentAt,
		}, firestore.MergeAll); err != nil {
			return err
		}
		return tx.Set(r.fs.Collection(store.ColPayouts).Doc(bookingID), map[string]any{
			"bookingId":   rec.BookingID,
			"teacherId":   rec.TeacherID,
			"amountMinor": rec.AmountMinor,
			"amount":      Earnings(rec.AmountMinor),
			"currency":    rec.Currency,
			"transferId":  rec.TransferID,
			"groupingKey": rec.GroupingKey,
			"createdAt":   rec.SentAt,
		})
	})
	if err != nil {
		return nil, translate(err, bookingID)
	}
	return &out, nil
}

func (r *Repo) Release(ctx context.Context, bookingID string, fn Mutation) error {
	ref := r.bookingRef(bookingID)
	err := store.Atomically(ctx, r.fs, func(ctx context.Context, tx *firestore.Transaction) error {
		data, err := store.Read(tx, ref)
		if err != nil {
			return err
		}
		next, write, err := fn(booking.FromData(bookingID, data))
		if err != nil || !write {
			return err
		}
		return tx.Set(ref, next.Fields(), firestore.MergeAll)
	})
	return translate(err, bookingID)
}

// StaleReservations lists bookings reserved before the given instant.
func (r *Repo) StaleReservations(ctx context.Context, before time.Time, limit int) ([]booking.Booking, error) {
	iter := r.fs.Collection(store.ColBookings).
		Where("payoutState", "==", string(booking.PayoutReserved)).
		Where("payoutReservedAt", "<", before).
		Limit(limit).
		Documents(ctx)
	defer iter.Stop()

	var out []booking.Booking
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		out = append(out, booking.FromData(doc.Ref.ID, doc.Data()))
	}
	return out, nil
}

func translate(err error, bookingID string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, bookingID)
	}
	return err
}
