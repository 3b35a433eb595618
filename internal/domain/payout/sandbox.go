package payout

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SandboxProcessor logs transfers instead of moving money.
type SandboxProcessor struct {
	logger *zap.Logger
}

func NewSandboxProcessor(logger *zap.Logger) *SandboxProcessor {
	return &SandboxProcessor{logger: logger.Named("sandbox")}
}

func (p *SandboxProcessor) CreateTransfer(_ context.Context, req TransferRequest) (string, error) {
	id := "tr_sandbox_" + uuid.NewString()
	p.logger.Info("simulated transfer",
		zap.String("transfer_id", id),
		zap.Int64("amount_minor", req.AmountMinor),
		zap.String("currency", req.Currency),
		zap.String("destination", req.Destination),
		zap.String("grouping_key", req.GroupingKey),
	)
	return id, nil
}

// FindTransfer never finds anything, so stale sandbox reservations are released.
func (p *SandboxProcessor) FindTransfer(context.Context, string) (string, bool, error) {
	return "", false, nil
}
