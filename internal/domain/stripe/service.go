package stripe

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/firestore"
	"github.com/DataDog/datadog-go/v5/statsd"
	"github.com/stripe/stripe-go/v78"
	checkoutsession "github.com/stripe/stripe-go/v78/checkout/session"
	"go.uber.org/zap"

	"tutormarket/backend/internal/domain/booking"
	"tutormarket/backend/internal/domain/loyalty"
	"tutormarket/backend/internal/domain/payout"
	"tutormarket/backend/internal/domain/user"
)

type Config struct {
	SecretKey           string
	WebhookSecret       string
	Currency            string
	TeacherSharePercent float64
	SuccessURL          string
	CancelURL           string
}

// Bookings is the booking persistence checkout and webhooks write to.
type Bookings interface {
	Create(ctx context.Context, b booking.Booking) (*booking.Booking, error)
	AttachCheckout(ctx context.Context, id, sessionID string) error
	MarkPaid(ctx context.Context, id, sessionID, paymentIntentID string) error
}

type Users interface {
	Get(ctx context.Context, uid string) (*user.Profile, error)
	FindByStripeCustomer(ctx context.Context, customerID string) (*user.Profile, error)
	SetPlan(ctx context.Context, uid, plan string) error
}

type Loyalty interface {
	LoyaltyInfo(ctx context.Context, uid string) (*loyalty.Info, error)
}

type Service struct {
	events   EventLog
	payments PaymentLog
	bookings Bookings
	users    Users
	loyalty  Loyalty
	config   Config
	logger   *zap.Logger
	metrics  statsd.ClientInterface
}

func NewService(fs *firestore.Client, bookings Bookings, users Users, loyalty Loyalty, cfg Config, logger *zap.Logger, metrics statsd.ClientInterface) *Service {
	stripe.Key = cfg.SecretKey
	if metrics == nil {
		metrics = &statsd.NoOpClient{}
	}
	cfg.Currency = strings.ToLower(cfg.Currency)
	return &Service{
		events:   firestoreEvents{fs: fs},
		payments: firestorePayments{fs: fs},
		bookings: bookings,
		users:    users,
		loyalty:  loyalty,
		config:   cfg,
		logger:   logger.Named("stripe"),
		metrics:  metrics,
	}
}

// CreateLessonCheckout books a pending lesson and opens a Stripe Checkout
// session for it. The payment is grouped under the lesson's transfer group
// so the later payout can be traced back to it.
func (s *Service) CreateLessonCheckout(ctx context.Context, studentUID string, input LessonCheckoutInput) (*LessonCheckout, error) {
	input.Trim()
	if studentUID == "" {
		return nil, ErrUnauthorized
	}
	if input.TeacherID == "" {
		return nil, fmt.Errorf("%w: teacherId is required", ErrBadRequest)
	}
	if input.TeacherID == studentUID {
		return nil, fmt.Errorf("%w: cannot book a lesson with yourself", ErrBadRequest)
	}
	if input.Price <= 0 {
		return nil, fmt.Errorf("%w: price must be positive", ErrBadRequest)
	}

	teacher, err := s.users.Get(ctx, input.TeacherID)
	if err != nil {
		if user.IsErrNotFound(err) {
			return nil, fmt.Errorf("%w: teacher not found", ErrNotFound)
		}
		return nil, err
	}
	if !teacher.HasRole(user.RoleTeacher) {
		return nil, fmt.Errorf("%w: %s is not a teacher", ErrBadRequest, input.TeacherID)
	}

	var info *loyalty.Info
	if s.loyalty != nil {
		info, err = s.loyalty.LoyaltyInfo(ctx, studentUID)
		if err != nil {
			s.logger.Warn("loyalty lookup failed, charging full price", zap.String("uid", studentUID), zap.Error(err))
			info = nil
		}
	}
	quote := QuoteLesson(input.Price, info, s.config.TeacherSharePercent)

	share := quote.TeacherShare
	b, err := s.bookings.Create(ctx, booking.Booking{
		StudentID:     studentUID,
		TeacherID:     input.TeacherID,
		Date:          input.Date,
		StartTime:     input.StartTime,
		Duration:      input.Duration,
		Status:        booking.StatusPending,
		AmountPaid:    quote.Amount,
		TeacherShare:  &share,
		PaymentStatus: booking.PaymentUnpaid,
	})
	if err != nil {
		return nil, fmt.Errorf("create booking: %w", err)
	}

	successURL := firstNonEmpty(input.SuccessURL, s.config.SuccessURL)
	cancelURL := firstNonEmpty(input.CancelURL, s.config.CancelURL)

	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(s.config.Currency),
					UnitAmount: stripe.Int64(payout.MinorUnits(quote.Amount)),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(fmt.Sprintf("%d minute lesson on %s at %s", input.Duration, input.Date, input.StartTime)),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			TransferGroup: stripe.String(payout.GroupingKey(b.ID)),
			Metadata:      map[string]string{"bookingId": b.ID},
		},
		ClientReferenceID: stripe.String(b.ID),
		SuccessURL:        stripe.String(successURL),
		CancelURL:         stripe.String(cancelURL),
		Metadata: map[string]string{
			"bookingId": b.ID,
			"studentId": studentUID,
			"teacherId": input.TeacherID,
		},
	}
	if student, err := s.users.Get(ctx, studentUID); err == nil && student.Email != "" {
		params.CustomerEmail = stripe.String(student.Email)
	}
	params.Context = ctx

	session, err := checkoutsession.New(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create checkout session: %w", err)
	}
	if err := s.bookings.AttachCheckout(ctx, b.ID, session.ID); err != nil {
		s.logger.Warn("failed to save checkout session id", zap.String("booking_id", b.ID), zap.Error(err))
	}

	s.logger.Info("lesson checkout created",
		zap.String("booking_id", b.ID),
		zap.Float64("amount", quote.Amount),
		zap.Int("discount", quote.Discount),
	)
	_ = s.metrics.Incr("checkout.created", []string{fmt.Sprintf("discounted:%t", quote.Discount > 0)}, 1)

	return &LessonCheckout{
		BookingID: b.ID,
		URL:       session.URL,
		Amount:    quote.Amount,
		Discount:  quote.Discount,
	}, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
