package notify

import (
	"context"
	"fmt"
	"strings"

	"firebase.google.com/go/v4/messaging"
	"go.uber.org/zap"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"tutormarket/backend/internal/domain/booking"
	"tutormarket/backend/internal/domain/user"
)

// Sender is the slice of the FCM client we use.
type Sender interface {
	SendEachForMulticast(ctx context.Context, msg *messaging.MulticastMessage) (*messaging.BatchResponse, error)
}

// Profiles resolves device tokens and prunes the ones FCM rejects.
type Profiles interface {
	Get(ctx context.Context, uid string) (*user.Profile, error)
	RemoveFCMTokens(ctx context.Context, uid string, tokens []string) error
}

// Notifier pushes lesson updates to the devices of the people involved.
// Delivery is best effort; failures are logged and never returned.
type Notifier struct {
	sender   Sender
	profiles Profiles
	logger   *zap.Logger
	printer  *message.Printer
	unit     currency.Unit
}

func New(sender Sender, profiles Profiles, currencyCode string, logger *zap.Logger) (*Notifier, error) {
	unit, err := currency.ParseISO(strings.ToUpper(currencyCode))
	if err != nil {
		return nil, fmt.Errorf("currency %q: %w", currencyCode, err)
	}
	return &Notifier{
		sender:   sender,
		profiles: profiles,
		logger:   logger.Named("notify"),
		printer:  message.NewPrinter(language.BritishEnglish),
		unit:     unit,
	}, nil
}

// FormatAmount renders minor units in the configured currency.
func (n *Notifier) FormatAmount(minor int64) string {
	return n.printer.Sprint(currency.Symbol(n.unit.Amount(float64(minor) / 100)))
}

func (n *Notifier) LessonApproved(ctx context.Context, b booking.Booking) {
	title := "Lesson confirmed"
	body := fmt.Sprintf("Your lesson on %s at %s is confirmed.", b.Date, b.StartTime)
	data := map[string]string{"type": "lesson_approved", "bookingId": b.ID}

	n.push(ctx, b.StudentID, title, body, data)
	n.push(ctx, b.TeacherID, title, body, data)
}

func (n *Notifier) PayoutSent(ctx context.Context, b booking.Booking, amountMinor int64) {
	n.push(ctx, b.TeacherID,
		"Payout sent",
		fmt.Sprintf("%s for your lesson on %s is on its way.", n.FormatAmount(amountMinor), b.Date),
		map[string]string{"type": "payout_sent", "bookingId": b.ID},
	)
}

func (n *Notifier) push(ctx context.Context, uid, title, body string, data map[string]string) {
	if n.sender == nil || uid == "" {
		return
	}
	log := n.logger.With(zap.String("uid", uid), zap.String("type", data["type"]))

	p, err := n.profiles.Get(ctx, uid)
	if err != nil {
		log.Warn("push skipped: profile lookup failed", zap.Error(err))
		return
	}
	if len(p.FCMTokens) == 0 {
		return
	}

	resp, err := n.sender.SendEachForMulticast(ctx, &messaging.MulticastMessage{
		Tokens:       p.FCMTokens,
		Notification: &messaging.Notification{Title: title, Body: body},
		Data:         data,
	})
	if err != nil {
		log.Warn("push failed", zap.Error(err))
		return
	}

	var stale []string
	for i, r := range resp.Responses {
		if r.Success || i >= len(p.FCMTokens) {
			continue
		}
		if messaging.IsUnregistered(r.Error) || messaging.IsInvalidArgument(r.Error) {
			stale = append(stale, p.FCMTokens[i])
		}
	}
	if len(stale) > 0 {
		if err := n.profiles.RemoveFCMTokens(ctx, uid, stale); err != nil {
			log.Warn("prune fcm tokens failed", zap.Error(err))
		}
	}
	log.Debug("push sent", zap.Int("success", resp.SuccessCount), zap.Int("failure", resp.FailureCount))
}
