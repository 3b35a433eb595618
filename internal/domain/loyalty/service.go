package loyalty

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/firestore"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"

	"tutormarket/backend/internal/store"
)

// Repository reads what the calculator needs.
type Repository interface {
	// Plan returns the user's subscription plan; found is false when the
	// user does not exist.
	Plan(ctx context.Context, uid string) (plan string, found bool, err error)
	RecentPayments(ctx context.Context, uid, plan string, limit int) ([]Payment, error)
}

type Repo struct {
	fs *firestore.Client
}

func NewRepo(fs *firestore.Client) *Repo {
	return &Repo{fs: fs}
}

func (r *Repo) Plan(ctx context.Context, uid string) (string, bool, error) {
	doc, err := r.fs.Collection(store.ColUsers).Doc(uid).Get(ctx)
	if err != nil {
		if store.IsNotFound(err) {
			return "", false, nil
		}
		return "", false, err
	}
	plan := store.String(doc.Data(), "subscriptionPlan")
	if plan == "" {
		plan = PlanFree
	}
	return plan, true, nil
}

func (r *Repo) RecentPayments(ctx context.Context, uid, plan string, limit int) ([]Payment, error) {
	iter := r.fs.Collection(store.ColPayments).
		Where("userId", "==", uid).
		Where("plan", "==", plan).
		OrderBy("createdAt", firestore.Desc).
		Limit(limit).
		Documents(ctx)
	defer iter.Stop()

	var out []Payment
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		out = append(out, Payment{ID: doc.Ref.ID, CreatedAt: doc.Data()["createdAt"]})
	}
	return out, nil
}

type Service struct {
	repo   Repository
	logger *zap.Logger
}

func NewService(repo Repository, logger *zap.Logger) *Service {
	return &Service{repo: repo, logger: logger.Named("loyalty")}
}

// LoyaltyInfo returns nil without error when the user does not exist.
func (s *Service) LoyaltyInfo(ctx context.Context, uid string) (*Info, error) {
	uid = strings.TrimSpace(uid)
	if uid == "" {
		return nil, nil
	}

	plan, found, err := s.repo.Plan(ctx, uid)
	if err != nil {
		return nil, fmt.Errorf("load plan: %w", err)
	}
	if !found {
		return nil, nil
	}

	payments, err := s.repo.RecentPayments(ctx, uid, plan, HistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("load payments: %w", err)
	}

	info := Compute(plan, payments)
	s.logger.Debug("loyalty computed",
		zap.String("uid", uid),
		zap.String("plan", info.Plan),
		zap.Int("months", info.LoyaltyMonths),
		zap.Int("payments", len(payments)),
	)
	return &info, nil
}
