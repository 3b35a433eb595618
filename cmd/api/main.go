package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"tutormarket/backend/internal/config"
	"tutormarket/backend/internal/domain/booking"
	"tutormarket/backend/internal/domain/loyalty"
	"tutormarket/backend/internal/domain/payout"
	stripedom "tutormarket/backend/internal/domain/stripe"
	"tutormarket/backend/internal/domain/user"
	"tutormarket/backend/internal/firebase"
	apihttp "tutormarket/backend/internal/http"
	"tutormarket/backend/internal/logger"
	"tutormarket/backend/internal/metrics"
	"tutormarket/backend/internal/notify"
	"tutormarket/backend/internal/ratelimit"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	lg, err := logger.New(cfg.Env, cfg.LogPath)
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	defer func() { _ = lg.Sync() }()

	if err := run(cfg, lg); err != nil {
		lg.Fatal("application terminated with error", zap.Error(err))
	}
}

func run(cfg config.Config, lg *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := firebase.NewApp(ctx, cfg)
	if err != nil {
		return fmt.Errorf("firebase app init failed: %w", err)
	}
	authClient, err := firebase.NewAuthClient(ctx, app)
	if err != nil {
		return fmt.Errorf("firebase auth client init failed: %w", err)
	}
	fs, err := firebase.NewFirestore(ctx, app)
	if err != nil {
		return fmt.Errorf("firestore init failed: %w", err)
	}
	defer fs.Close()

	stats := metrics.New(cfg.StatsdAddr, cfg.Env, lg)
	defer func() { _ = stats.Close() }()

	// Repositories
	userRepo := user.NewRepo(fs.Client)
	bookingRepo := booking.NewRepo(fs.Client)
	payoutRepo := payout.NewRepo(fs.Client)
	loyaltyRepo := loyalty.NewRepo(fs.Client)

	// Services
	bookingSvc := booking.NewService(bookingRepo, lg, stats)
	loyaltySvc := loyalty.NewService(loyaltyRepo, lg)

	var processor payout.Processor
	if cfg.PayoutMode == config.PayoutModeLive {
		processor = stripedom.NewTransfers(cfg.StripeSecretKey, lg)
	} else {
		processor = payout.NewSandboxProcessor(lg)
	}
	payoutEngine := payout.NewEngine(payoutRepo, processor, payout.Config{
		Currency:   cfg.Currency,
		Lease:      cfg.PayoutLease,
		MaxRetries: cfg.PayoutRetries,
	}, lg, stats)
	lg.Info("payout engine ready", zap.String("mode", cfg.PayoutMode), zap.String("currency", cfg.Currency))

	var sender notify.Sender
	if msg, err := firebase.NewMessaging(ctx, app); err != nil {
		lg.Warn("firebase messaging unavailable, push notifications disabled", zap.Error(err))
	} else {
		sender = msg
	}
	notifier, err := notify.New(sender, userRepo, cfg.Currency, lg)
	if err != nil {
		return fmt.Errorf("notifier init failed: %w", err)
	}
	bookingSvc.SetNotifier(notifier)
	payoutEngine.SetNotifier(notifier)

	// Stripe checkout (optional - only if configured)
	var checkout apihttp.CheckoutService
	if cfg.StripeSecretKey != "" {
		checkout = stripedom.NewService(fs.Client, bookingRepo, userRepo, loyaltySvc, stripedom.Config{
			SecretKey:           cfg.StripeSecretKey,
			WebhookSecret:       cfg.StripeWebhookSecret,
			Currency:            cfg.Currency,
			TeacherSharePercent: cfg.TeacherSharePercent,
			SuccessURL:          cfg.CheckoutSuccessURL,
			CancelURL:           cfg.CheckoutCancelURL,
		}, lg, stats)
		lg.Info("stripe checkout initialized")
	} else {
		lg.Info("STRIPE_SECRET_KEY not set, checkout and webhooks disabled")
	}

	g, ctx := errgroup.WithContext(ctx)

	var store ratelimit.Store
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		defer func() { _ = rdb.Close() }()
		store = ratelimit.NewRedisStore(rdb)
		lg.Info("rate limits stored in redis", zap.String("addr", cfg.RedisAddr))
	} else {
		mem := ratelimit.NewMemoryStore()
		store = mem
		g.Go(func() error {
			return mem.Run(ctx, cfg.RateLimitSweep)
		})
	}
	limiter := ratelimit.New(store, ratelimit.DefaultRules(), lg, ratelimit.WithMetrics(stats))

	router := apihttp.NewRouter(apihttp.RouterDeps{
		AllowedOrigins: cfg.AllowedOrigins,
		Verifier:       authClient,
		Limiter:        limiter,
		Logger:         lg,
		Bookings:       bookingSvc,
		Payouts:        payoutEngine,
		Loyalty:        loyaltySvc,
		Users:          userRepo,
		Checkout:       checkout,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 20 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g.Go(func() error {
		lg.Info("API listening", zap.String("addr", srv.Addr), zap.String("project", cfg.ProjectID))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen failed: %w", err)
		}
		return nil
	})

	// graceful shutdown
	g.Go(func() error {
		<-ctx.Done()
		lg.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		lg.Info("server stopped gracefully")
		return nil
	})

	return g.Wait()
}
