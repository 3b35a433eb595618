package booking

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/DataDog/datadog-go/v5/statsd"
	"go.uber.org/zap"
)

// Repository is the persistence the service needs. Apply must run the
// read, the transition and the write as one atomic unit.
type Repository interface {
	Get(ctx context.Context, id string) (*Booking, error)
	Apply(ctx context.Context, id string, fn Transition) (*Booking, Effects, error)
}

// Notifier is told about bookings that just became approved.
type Notifier interface {
	LessonApproved(ctx context.Context, b Booking)
}

type Service struct {
	repo     Repository
	notifier Notifier
	metrics  statsd.ClientInterface
	logger   *zap.Logger
	now      func() time.Time
}

func NewService(repo Repository, logger *zap.Logger, metrics statsd.ClientInterface) *Service {
	if metrics == nil {
		metrics = &statsd.NoOpClient{}
	}
	return &Service{
		repo:    repo,
		metrics: metrics,
		logger:  logger.Named("booking"),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// SetNotifier wires push notifications after construction.
func (s *Service) SetNotifier(n Notifier) {
	s.notifier = n
}

func (s *Service) Get(ctx context.Context, id string) (*Booking, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: bookingId is required", ErrBadRequest)
	}
	return s.repo.Get(ctx, id)
}

// Confirm records a party's confirmation of the lesson.
func (s *Service) Confirm(ctx context.Context, actor Actor, bookingID string, role Role) (*Booking, error) {
	bookingID = strings.TrimSpace(bookingID)
	if bookingID == "" {
		return nil, fmt.Errorf("%w: bookingId is required", ErrBadRequest)
	}
	if !role.Valid() {
		return nil, fmt.Errorf("%w: role must be student or teacher", ErrBadRequest)
	}

	now := s.now()
	b, eff, err := s.repo.Apply(ctx, bookingID, func(cur Booking) (Booking, Effects, error) {
		if err := Authorize(cur, actor, role); err != nil {
			return cur, Effects{}, err
		}
		return Confirm(cur, role, now)
	})
	if err != nil {
		s.logger.Warn("confirm rejected",
			zap.String("booking_id", bookingID),
			zap.String("role", string(role)),
			zap.String("uid", actor.UID),
			zap.Error(err),
		)
		return nil, err
	}

	s.logger.Info("booking confirmed",
		zap.String("booking_id", bookingID),
		zap.String("role", string(role)),
		zap.Bool("changed", eff.Changed),
		zap.Bool("promoted", eff.Promoted),
	)
	if eff.Promoted {
		_ = s.metrics.Incr("booking.approved", nil, 1)
		if s.notifier != nil {
			s.notifier.LessonApproved(ctx, *b)
		}
	}
	return b, nil
}

// Cancel cancels the lesson on behalf of one party and credits the student
// back when the cancellation qualifies.
func (s *Service) Cancel(ctx context.Context, actor Actor, bookingID string, role Role) (*Booking, error) {
	bookingID = strings.TrimSpace(bookingID)
	if bookingID == "" {
		return nil, fmt.Errorf("%w: bookingId is required", ErrBadRequest)
	}
	if !role.Valid() {
		return nil, fmt.Errorf("%w: role must be student or teacher", ErrBadRequest)
	}

	now := s.now()
	b, eff, err := s.repo.Apply(ctx, bookingID, func(cur Booking) (Booking, Effects, error) {
		if err := Authorize(cur, actor, role); err != nil {
			return cur, Effects{}, err
		}
		return Cancel(cur, role, now)
	})
	if err != nil {
		s.logger.Warn("cancel rejected", zap.String("booking_id", bookingID), zap.Error(err))
		return nil, err
	}

	if eff.Changed {
		s.logger.Info("booking cancelled",
			zap.String("booking_id", bookingID),
			zap.String("by", string(role)),
			zap.Int64("credits", eff.StudentCredits),
		)
		_ = s.metrics.Incr("booking.cancelled", []string{"by:" + string(role)}, 1)
	}
	return b, nil
}

// Complete marks a paid-out lesson as completed.
func (s *Service) Complete(ctx context.Context, bookingID string) (*Booking, error) {
	bookingID = strings.TrimSpace(bookingID)
	if bookingID == "" {
		return nil, fmt.Errorf("%w: bookingId is required", ErrBadRequest)
	}
	now := s.now()
	b, _, err := s.repo.Apply(ctx, bookingID, func(cur Booking) (Booking, Effects, error) {
		return Complete(cur, now)
	})
	if err != nil {
		return nil, err
	}
	return b, nil
}
