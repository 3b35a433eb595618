package user

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	"tutormarket/backend/internal/store"
)

var ErrNotFound = errors.New("user not found")

func IsErrNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

type Repo struct {
	fs *firestore.Client
}

func NewRepo(fs *firestore.Client) *Repo {
	return &Repo{fs: fs}
}

func (r *Repo) Get(ctx context.Context, uid string) (*Profile, error) {
	doc, err := r.fs.Collection(store.ColUsers).Doc(uid).Get(ctx)
	if err != nil {
		if store.IsNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, uid)
		}
		return nil, err
	}
	p := FromData(doc.Ref.ID, doc.Data())
	return &p, nil
}

// FindByStripeCustomer resolves the profile billed under a Stripe customer id.
func (r *Repo) FindByStripeCustomer(ctx context.Context, customerID string) (*Profile, error) {
	iter := r.fs.Collection(store.ColUsers).
		Where("stripeCustomerId", "==", customerID).
		Limit(1).
		Documents(ctx)
	defer iter.Stop()

	doc, err := iter.Next()
	if err == iterator.Done {
		return nil, fmt.Errorf("%w: customer %s", ErrNotFound, customerID)
	}
	if err != nil {
		return nil, err
	}
	p := FromData(doc.Ref.ID, doc.Data())
	return &p, nil
}

func (r *Repo) SetPlan(ctx context.Context, uid, plan string) error {
	_, err := r.fs.Collection(store.ColUsers).Doc(uid).Set(ctx, map[string]any{
		"subscriptionPlan": plan,
		"updatedAt":        time.Now().UTC(),
	}, firestore.MergeAll)
	return err
}

func (r *Repo) SetRole(ctx context.Context, uid, role string) error {
	_, err := r.fs.Collection(store.ColUsers).Doc(uid).Set(ctx, map[string]any{
		"role":      role,
		"updatedAt": time.Now().UTC(),
	}, firestore.MergeAll)
	return err
}

func (r *Repo) UpsertMinimal(ctx context.Context, uid, email string) error {
	ref := r.fs.Collection(store.ColUsers).Doc(uid)
	_, err := ref.Set(ctx, map[string]any{
		"uid":       uid,
		"email":     email,
		"updatedAt": time.Now().UTC(),
	}, firestore.MergeAll)
	return err
}

// AddFCMToken registers a device for push notifications.
func (r *Repo) AddFCMToken(ctx context.Context, uid, token string) error {
	_, err := r.fs.Collection(store.ColUsers).Doc(uid).Set(ctx, map[string]any{
		"fcmTokens": firestore.ArrayUnion(token),
		"updatedAt": time.Now().UTC(),
	}, firestore.MergeAll)
	return err
}

func (r *Repo) RemoveFCMTokens(ctx context.Context, uid string, tokens []string) error {
	if len(tokens) == 0 {
		return nil
	}
	vals := make([]any, len(tokens))
	for i, t := range tokens {
		vals[i] = t
	}
	_, err := r.fs.Collection(store.ColUsers).Doc(uid).Update(ctx, []firestore.Update{
		{Path: "fcmTokens", Value: firestore.ArrayRemove(vals...)},
	})
	return err
}
