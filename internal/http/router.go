package http

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"tutormarket/backend/internal/domain/booking"
	"tutormarket/backend/internal/domain/loyalty"
	"tutormarket/backend/internal/domain/payout"
	stripedom "tutormarket/backend/internal/domain/stripe"
	"tutormarket/backend/internal/domain/user"
	"tutormarket/backend/internal/httpjson"
	"tutormarket/backend/internal/middleware"
	"tutormarket/backend/internal/ratelimit"
)

type BookingService interface {
	Get(ctx context.Context, id string) (*booking.Booking, error)
	Confirm(ctx context.Context, actor booking.Actor, bookingID string, role booking.Role) (*booking.Booking, error)
	Cancel(ctx context.Context, actor booking.Actor, bookingID string, role booking.Role) (*booking.Booking, error)
	Complete(ctx context.Context, bookingID string) (*booking.Booking, error)
}

type PayoutService interface {
	Payout(ctx context.Context, b booking.Booking) (*payout.Result, error)
	Reconcile(ctx context.Context) (*payout.ReconcileResult, error)
}

type LoyaltyService interface {
	LoyaltyInfo(ctx context.Context, uid string) (*loyalty.Info, error)
}

type CheckoutService interface {
	CreateLessonCheckout(ctx context.Context, studentUID string, input stripedom.LessonCheckoutInput) (*stripedom.LessonCheckout, error)
	HandleWebhook(w http.ResponseWriter, r *http.Request)
}

type UserService interface {
	Get(ctx context.Context, uid string) (*user.Profile, error)
	UpsertMinimal(ctx context.Context, uid, email string) error
	AddFCMToken(ctx context.Context, uid, token string) error
}

type RouterDeps struct {
	AllowedOrigins []string
	Verifier       middleware.TokenVerifier
	Limiter        *ratelimit.Limiter
	Logger         *zap.Logger

	Bookings BookingService
	Payouts  PayoutService
	Loyalty  LoyaltyService
	Users    UserService
	// Checkout is nil when Stripe is not configured.
	Checkout CheckoutService
}

type bookingActionInput struct {
	BookingID string `json:"bookingId" validate:"required"`
	Role      string `json:"role" validate:"required,oneof=student teacher"`
}

type payoutInput struct {
	Booking   *booking.Booking `json:"booking"`
	BookingID string           `json:"bookingId"`
}

type fcmTokenInput struct {
	Token string `json:"token" validate:"required"`
}

func NewRouter(d RouterDeps) http.Handler {
	log := d.Logger.Named("http")
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(log))
	r.Use(middleware.Recover(log))
	r.Use(middleware.CORS(d.AllowedOrigins, log))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		WriteJSON(w, 200, map[string]any{"ok": true, "ts": time.Now().UTC().Format(time.RFC3339)})
	})

	// ===== Stripe Webhook (no auth required) =====
	if d.Checkout != nil {
		r.With(middleware.RateLimit(d.Limiter, ratelimit.CategoryWebhook)).
			Post("/v1/stripe/webhook", d.Checkout.HandleWebhook)
	}

	// Protected routes
	r.Group(func(pr chi.Router) {
		pr.Use(middleware.WithAuth(d.Verifier))

		pr.With(middleware.RateLimit(d.Limiter, ratelimit.CategoryGeneral)).Get("/v1/me", func(w http.ResponseWriter, r *http.Request) {
			au, _ := middleware.GetAuthUser(r.Context())
			out := map[string]any{
				"uid":    au.UID,
				"email":  au.Email,
				"claims": au.Claims,
			}
			p, err := d.Users.Get(r.Context(), au.UID)
			switch {
			case err == nil:
				out["profile"] = p
			case user.IsErrNotFound(err):
				if err := d.Users.UpsertMinimal(r.Context(), au.UID, au.Email); err != nil {
					log.Warn("failed to create user profile", zap.String("uid", au.UID), zap.Error(err))
				}
			default:
				Fail(w, 500, err.Error())
				return
			}
			WriteJSON(w, 200, out)
		})

		pr.With(middleware.RateLimit(d.Limiter, ratelimit.CategoryGeneral)).Post("/v1/me/fcm-token", func(w http.ResponseWriter, r *http.Request) {
			au, _ := middleware.GetAuthUser(r.Context())

			var in fcmTokenInput
			if err := httpjson.Decode(r, &in); err != nil {
				Fail(w, 400, err.Error())
				return
			}
			if err := d.Users.AddFCMToken(r.Context(), au.UID, strings.TrimSpace(in.Token)); err != nil {
				Fail(w, 500, err.Error())
				return
			}
			WriteJSON(w, 200, map[string]any{"success": true})
		})

		// ===== Booking routes =====
		pr.Group(func(br chi.Router) {
			br.Use(middleware.RateLimit(d.Limiter, ratelimit.CategoryBooking))

			br.Post("/v1/bookings/confirm", func(w http.ResponseWriter, r *http.Request) {
				var in bookingActionInput
				if err := httpjson.Decode(r, &in); err != nil {
					Fail(w, 400, err.Error())
					return
				}
				if _, err := d.Bookings.Confirm(r.Context(), actorFrom(r), in.BookingID, booking.Role(in.Role)); err != nil {
					status, msg := mapBookingError(err)
					Fail(w, status, msg)
					return
				}
				WriteJSON(w, 200, map[string]any{"success": true})
			})

			br.Post("/v1/bookings/cancel", func(w http.ResponseWriter, r *http.Request) {
				var in bookingActionInput
				if err := httpjson.Decode(r, &in); err != nil {
					Fail(w, 400, err.Error())
					return
				}
				b, err := d.Bookings.Cancel(r.Context(), actorFrom(r), in.BookingID, booking.Role(in.Role))
				if err != nil {
					status, msg := mapBookingError(err)
					Fail(w, status, msg)
					return
				}
				WriteJSON(w, 200, map[string]any{"success": true, "creditRefunded": b.CreditRefunded})
			})

			br.With(middleware.RequireAdmin).Post("/v1/bookings/complete", func(w http.ResponseWriter, r *http.Request) {
				var in struct {
					BookingID string `json:"bookingId" validate:"required"`
				}
				if err := httpjson.Decode(r, &in); err != nil {
					Fail(w, 400, err.Error())
					return
				}
				if _, err := d.Bookings.Complete(r.Context(), in.BookingID); err != nil {
					status, msg := mapBookingError(err)
					Fail(w, status, msg)
					return
				}
				WriteJSON(w, 200, map[string]any{"success": true})
			})
		})

		// ===== Payout routes =====
		// payouts are triggered by operators or the scheduler, never by the parties
		pr.With(middleware.RequireAdmin, middleware.RateLimit(d.Limiter, ratelimit.CategoryPayment)).Post("/v1/payouts", func(w http.ResponseWriter, r *http.Request) {
			var in payoutInput
			if err := httpjson.Decode(r, &in); err != nil {
				Fail(w, 400, err.Error())
				return
			}
			var b booking.Booking
			if in.Booking != nil {
				b = *in.Booking
			}
			if b.ID == "" {
				b.ID = in.BookingID
			}
			b.ID = strings.TrimSpace(b.ID)
			if b.ID == "" {
				Fail(w, 400, "booking id is required")
				return
			}

			res, err := d.Payouts.Payout(r.Context(), b)
			if err != nil {
				status, msg := mapPayoutError(err)
				Fail(w, status, msg)
				return
			}
			WriteJSON(w, 200, map[string]any{
				"success":     true,
				"alreadySent": res.AlreadySent,
				"transferId":  res.TransferID,
				"amount":      res.Amount,
			})
		})

		pr.With(middleware.RequireAdmin).Post("/v1/admin/payouts/reconcile", func(w http.ResponseWriter, r *http.Request) {
			res, err := d.Payouts.Reconcile(r.Context())
			if err != nil {
				status, msg := mapPayoutError(err)
				Fail(w, status, msg)
				return
			}
			WriteJSON(w, 200, res)
		})

		// ===== Loyalty =====
		pr.With(middleware.RateLimit(d.Limiter, ratelimit.CategoryGeneral)).Get("/v1/users/{uid}/loyalty", func(w http.ResponseWriter, r *http.Request) {
			uid := strings.TrimSpace(chi.URLParam(r, "uid"))
			actor := actorFrom(r)
			if uid != actor.UID && !actor.Admin {
				Fail(w, 403, "forbidden")
				return
			}
			info, err := d.Loyalty.LoyaltyInfo(r.Context(), uid)
			if err != nil {
				Fail(w, 500, err.Error())
				return
			}
			if info == nil {
				Fail(w, 404, "user not found")
				return
			}
			WriteJSON(w, 200, info)
		})

		// ===== Lesson checkout =====
		if d.Checkout != nil {
			pr.With(middleware.RateLimit(d.Limiter, ratelimit.CategoryPayment)).Post("/v1/checkout/lesson", func(w http.ResponseWriter, r *http.Request) {
				au, _ := middleware.GetAuthUser(r.Context())

				var in stripedom.LessonCheckoutInput
				if err := httpjson.Decode(r, &in); err != nil {
					Fail(w, 400, err.Error())
					return
				}
				out, err := d.Checkout.CreateLessonCheckout(r.Context(), au.UID, in)
				if err != nil {
					status, msg := mapStripeError(err)
					Fail(w, status, msg)
					return
				}
				WriteJSON(w, 201, out)
			})
		}
	})

	return r
}

func actorFrom(r *http.Request) booking.Actor {
	au, ok := middleware.GetAuthUser(r.Context())
	if !ok {
		return booking.Actor{}
	}
	return booking.Actor{UID: au.UID, Admin: middleware.IsAdmin(au.Claims)}
}

func mapBookingError(err error) (int, string) {
	if err == nil {
		return 500, "unknown error"
	}
	switch {
	case booking.IsErrBadRequest(err):
		return 400, err.Error()
	case booking.IsErrForbidden(err):
		return 403, err.Error()
	case booking.IsErrNotFound(err):
		return 404, err.Error()
	case booking.IsErrInvalidState(err):
		return 409, err.Error()
	default:
		return 500, err.Error()
	}
}

// Precondition failures stay 500 with their message; clients match on it.
func mapPayoutError(err error) (int, string) {
	if err == nil {
		return 500, "unknown error"
	}
	switch {
	case payout.IsErrBadRequest(err):
		return 400, err.Error()
	case payout.IsErrNotFound(err):
		return 404, err.Error()
	case payout.IsErrInProgress(err):
		return 409, err.Error()
	default:
		return 500, err.Error()
	}
}

func mapStripeError(err error) (int, string) {
	if err == nil {
		return 500, "unknown error"
	}
	switch {
	case stripedom.IsErrUnauthorized(err):
		return 401, err.Error()
	case stripedom.IsErrNotFound(err):
		return 404, err.Error()
	case stripedom.IsErrBadRequest(err):
		return 400, err.Error()
	default:
		return 500, err.Error()
	}
}
