package stripe

import (
	"context"
	"errors"
	"net/http"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/transfer"
	"go.uber.org/zap"

	"tutormarket/backend/internal/domain/payout"
)

// Transfers pays teachers through Stripe Connect transfers.
type Transfers struct {
	logger *zap.Logger
}

func NewTransfers(secretKey string, logger *zap.Logger) *Transfers {
	stripe.Key = secretKey
	return &Transfers{logger: logger.Named("stripe.transfers")}
}

func (t *Transfers) CreateTransfer(ctx context.Context, req payout.TransferRequest) (string, error) {
	params := &stripe.TransferParams{
		Amount:        stripe.Int64(req.AmountMinor),
		Currency:      stripe.String(req.Currency),
		Destination:   stripe.String(req.Destination),
		TransferGroup: stripe.String(req.GroupingKey),
		Description:   stripe.String(req.Description),
	}
	params.Context = ctx
	params.SetIdempotencyKey(req.IdempotencyKey)
	params.AddMetadata("groupingKey", req.GroupingKey)

	tr, err := transfer.New(params)
	if err != nil {
		return "", classify(err)
	}
	t.logger.Debug("transfer created", zap.String("transfer_id", tr.ID), zap.String("grouping_key", req.GroupingKey))
	return tr.ID, nil
}

func (t *Transfers) FindTransfer(ctx context.Context, groupingKey string) (string, bool, error) {
	params := &stripe.TransferListParams{TransferGroup: stripe.String(groupingKey)}
	params.Context = ctx
	params.Limit = stripe.Int64(1)

	iter := transfer.List(params)
	for iter.Next() {
		if tr := iter.Transfer(); tr != nil && !tr.Reversed {
			return tr.ID, true, nil
		}
	}
	if err := iter.Err(); err != nil {
		return "", false, classify(err)
	}
	return "", false, nil
}

// classify marks rate limiting, server errors, idempotency conflicts and
// transport failures as retriable. Anything Stripe rejected as invalid is terminal.
func classify(err error) error {
	var se *stripe.Error
	if !errors.As(err, &se) {
		return &payout.TransferError{Retriable: true, Err: err}
	}
	switch {
	case se.HTTPStatusCode == http.StatusTooManyRequests,
		se.HTTPStatusCode == http.StatusConflict,
		se.HTTPStatusCode >= http.StatusInternalServerError,
		se.Type == stripe.ErrorTypeAPI:
		return &payout.TransferError{Retriable: true, Err: err}
	}
	return &payout.TransferError{Retriable: false, Err: err}
}
