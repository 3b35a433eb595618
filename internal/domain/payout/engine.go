package payout

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/DataDog/datadog-go/v5/statsd"
	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"tutormarket/backend/internal/domain/booking"
	"tutormarket/backend/internal/domain/user"
)

// TransferRequest is one money movement to a teacher's connected account.
type TransferRequest struct {
	AmountMinor    int64
	Currency       string
	Destination    string
	GroupingKey    string
	Description    string
	IdempotencyKey string
}

// Processor moves money. Errors should be *TransferError so transient
// failures can be retried.
type Processor interface {
	CreateTransfer(ctx context.Context, req TransferRequest) (transferID string, err error)
	// FindTransfer looks up a transfer already made under groupingKey.
	FindTransfer(ctx context.Context, groupingKey string) (transferID string, found bool, err error)
}

// Notifier is told about teachers that were just paid.
type Notifier interface {
	PayoutSent(ctx context.Context, b booking.Booking, amountMinor int64)
}

type Config struct {
	Currency string
	// Lease is how long a reservation may stay unsettled before Reconcile
	// resolves it.
	Lease      time.Duration
	MaxRetries uint64
	RetryBase  time.Duration
}

type Result struct {
	BookingID   string  `json:"bookingId"`
	AlreadySent bool    `json:"alreadySent"`
	TransferID  string  `json:"transferId,omitempty"`
	AmountMinor int64   `json:"amountMinor"`
	Amount      float64 `json:"amount"`
	Currency    string  `json:"currency"`
}

type ReconcileResult struct {
	Committed int `json:"committed"`
	Released  int `json:"released"`
	Skipped   int `json:"skipped"`
}

type Engine struct {
	repo      Repository
	processor Processor
	notifier  Notifier
	metrics   statsd.ClientInterface
	logger    *zap.Logger
	cfg       Config
	now       func() time.Time
	newToken  func() string
}

func NewEngine(repo Repository, processor Processor, cfg Config, logger *zap.Logger, metrics statsd.ClientInterface) *Engine {
	if metrics == nil {
		metrics = &statsd.NoOpClient{}
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 200 * time.Millisecond
	}
	cfg.Currency = strings.ToLower(cfg.Currency)
	return &Engine{
		repo:      repo,
		processor: processor,
		metrics:   metrics,
		logger:    logger.Named("payout"),
		cfg:       cfg,
		now:       func() time.Time { return time.Now().UTC() },
		newToken:  func() string { return uuid.NewString() },
	}
}

func (e *Engine) SetNotifier(n Notifier) {
	e.notifier = n
}

// Payout transfers the teacher's share for an approved lesson exactly once.
// Preconditions are checked against the stored booking, not the caller's copy.
func (e *Engine) Payout(ctx context.Context, b booking.Booking) (*Result, error) {
	id := strings.TrimSpace(b.ID)
	if id == "" {
		return nil, fmt.Errorf("%w: booking id is required", ErrBadRequest)
	}
	log := e.logger.With(zap.String("booking_id", id))

	token := e.newToken()
	reservedAt := e.now()
	var decision Decision

	reserved, payee, err := e.repo.Reserve(ctx, id, func(cur booking.Booking, payee *user.Profile) (booking.Booking, bool, error) {
		next, d, err := Reserve(cur, payee, token, reservedAt)
		if err != nil {
			return cur, false, err
		}
		decision = d
		return next, d == DecisionReserved, nil
	})
	if err != nil {
		log.Warn("payout rejected", zap.Error(err))
		_ = e.metrics.Incr("payout.rejected", nil, 1)
		return nil, err
	}
	if decision == DecisionAlreadySent {
		log.Info("payout already sent")
		return &Result{
			BookingID:   id,
			AlreadySent: true,
			TransferID:  reserved.TransferID,
			AmountMinor: reserved.PayoutAmountMinor,
			Amount:      Earnings(reserved.PayoutAmountMinor),
			Currency:    e.cfg.Currency,
		}, nil
	}

	req := TransferRequest{
		AmountMinor:    reserved.PayoutAmountMinor,
		Currency:       e.cfg.Currency,
		Destination:    payee.StripeAccountID,
		GroupingKey:    GroupingKey(id),
		Description:    fmt.Sprintf("Lesson %s on %s", id, reserved.Date),
		IdempotencyKey: IdempotencyKey(id, payee.StripeAccountID),
	}

	transferID, err := e.transfer(ctx, req)
	if err != nil {
		log.Error("transfer failed", zap.Int64("amount_minor", req.AmountMinor), zap.Error(err))
		_ = e.metrics.Incr("payout.failed", nil, 1)
		_ = e.release(ctx, id, token)
		return nil, fmt.Errorf("%w: %v", ErrFailed, err)
	}

	committed, err := e.commit(ctx, id, token, transferID, reserved.TeacherID, req.AmountMinor)
	if err != nil {
		// money moved; the reservation stays until Reconcile finds the transfer
		log.Error("transfer sent but commit failed", zap.String("transfer_id", transferID), zap.Error(err))
		_ = e.metrics.Incr("payout.commit_failed", nil, 1)
		return nil, fmt.Errorf("%w: transfer %s recorded for reconciliation: %v", ErrFailed, transferID, err)
	}

	log.Info("payout sent",
		zap.String("transfer_id", transferID),
		zap.Int64("amount_minor", req.AmountMinor),
		zap.String("currency", req.Currency),
	)
	_ = e.metrics.Incr("payout.sent", []string{"currency:" + req.Currency}, 1)
	if e.notifier != nil {
		e.notifier.PayoutSent(ctx, *committed, req.AmountMinor)
	}

	return &Result{
		BookingID:   id,
		TransferID:  transferID,
		AmountMinor: req.AmountMinor,
		Amount:      Earnings(req.AmountMinor),
		Currency:    req.Currency,
	}, nil
}

// transfer retries transient processor errors with exponential backoff. The
// idempotency key stays the same across attempts.
func (e *Engine) transfer(ctx context.Context, req TransferRequest) (string, error) {
	var transferID string
	backoff := retry.WithMaxRetries(e.cfg.MaxRetries, retry.NewExponential(e.cfg.RetryBase))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		id, err := e.processor.CreateTransfer(ctx, req)
		if err != nil {
			if IsRetriable(err) {
				e.logger.Warn("transfer attempt failed, retrying",
					zap.String("grouping_key", req.GroupingKey),
					zap.Error(err),
				)
				return retry.RetryableError(err)
			}
			return err
		}
		transferID = id
		return nil
	})
	return transferID, err
}

func (e *Engine) commit(ctx context.Context, id, token, transferID, teacherID string, amountMinor int64) (*booking.Booking, error) {
	now := e.now()
	return e.repo.Commit(ctx, id, func(cur booking.Booking) (booking.Booking, bool, error) {
		next, err := Commit(cur, token, transferID, now)
		if err != nil {
			return cur, false, err
		}
		return next, true, nil
	}, Record{
		BookingID:   id,
		TeacherID:   teacherID,
		AmountMinor: amountMinor,
		Currency:    e.cfg.Currency,
		TransferID:  transferID,
		GroupingKey: GroupingKey(id),
		SentAt:      now,
	})
}

func (e *Engine) release(ctx context.Context, id, token string) error {
	now := e.now()
	err := e.repo.Release(context.WithoutCancel(ctx), id, func(cur booking.Booking) (booking.Booking, bool, error) {
		next, ok := Release(cur, token, now)
		return next, ok, nil
	})
	if err != nil {
		e.logger.Error("release reservation failed", zap.String("booking_id", id), zap.Error(err))
	}
	return err
}

// Reconcile settles reservations older than the lease: a transfer found at
// the processor is committed, anything else is released for a later retry.
func (e *Engine) Reconcile(ctx context.Context) (*ReconcileResult, error) {
	cutoff := e.now().Add(-e.cfg.Lease)
	stale, err := e.repo.StaleReservations(ctx, cutoff, 100)
	if err != nil {
		return nil, err
	}

	res := &ReconcileResult{}
	for _, b := range stale {
		log := e.logger.With(zap.String("booking_id", b.ID))

		transferID, found, err := e.processor.FindTransfer(ctx, GroupingKey(b.ID))
		if err != nil {
			log.Warn("reconcile lookup failed", zap.Error(err))
			res.Skipped++
			continue
		}

		if !found {
			if err := e.release(ctx, b.ID, b.PayoutToken); err != nil {
				res.Skipped++
				continue
			}
			log.Info("stale reservation released")
			res.Released++
			continue
		}

		committed, err := e.commit(ctx, b.ID, b.PayoutToken, transferID, b.TeacherID, b.PayoutAmountMinor)
		if err != nil {
			log.Warn("reconcile commit failed", zap.String("transfer_id", transferID), zap.Error(err))
			res.Skipped++
			continue
		}
		log.Info("stale reservation committed", zap.String("transfer_id", transferID))
		res.Committed++
		if e.notifier != nil {
			e.notifier.PayoutSent(ctx, *committed, b.PayoutAmountMinor)
		}
	}

	_ = e.metrics.Count("payout.reconciled", int64(res.Committed), []string{"outcome:committed"}, 1)
	_ = e.metrics.Count("payout.reconciled", int64(res.Released), []string{"outcome:released"}, 1)
	return res, nil
}
