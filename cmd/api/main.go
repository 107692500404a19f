package main

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"net/http/pprof"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"

	"github.com/Subash-08/iTech-compters-sub001/internal/address"
	"github.com/Subash-08/iTech-compters-sub001/internal/auth"
	"github.com/Subash-08/iTech-compters-sub001/internal/cart"
	"github.com/Subash-08/iTech-compters-sub001/internal/checkout"
	"github.com/Subash-08/iTech-compters-sub001/internal/common"
	"github.com/Subash-08/iTech-compters-sub001/internal/config"
	"github.com/Subash-08/iTech-compters-sub001/internal/coupon"
	"github.com/Subash-08/iTech-compters-sub001/internal/events"
	"github.com/Subash-08/iTech-compters-sub001/internal/health"
	"github.com/Subash-08/iTech-compters-sub001/internal/inventory"
	"github.com/Subash-08/iTech-compters-sub001/internal/obs"
	"github.com/Subash-08/iTech-compters-sub001/internal/payment"
	"github.com/Subash-08/iTech-compters-sub001/internal/ratelimit"
	"github.com/Subash-08/iTech-compters-sub001/internal/store"

	"github.com/go-playground/validator/v10"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("env", cfg.AppEnv).Logger()

	metricsNamespace := envOrDefault("OBS_METRICS_NAMESPACE", "itech")
	metricsEnabled := envBool("OBS_ENABLE_PROMETHEUS", true)
	obs.MustRegisterDomainMetrics(metricsNamespace, nil)

	tracingEnabled := envBool("OBS_ENABLE_TRACING", true)
	if tracingEnabled {
		sampling := envFloat("OBS_TRACING_SAMPLING_RATIO", 1.0)
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:   "itech-api",
			Endpoint:      envOrDefault("OBS_OTLP_ENDPOINT", ""),
			Exporter:      envOrDefault("OBS_TRACING_EXPORTER", "otlp"),
			SamplingRatio: sampling,
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			tracingEnabled = false
		} else {
			defer func() {
				ctx := context.Background()
				if err := shutdown(ctx); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse database config")
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = "itech-api"

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		logger.Fatal().Err(err).Msg("ping database")
	}

	queries := store.New(pool)

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	redisClient := redis.NewClient(redisOpts)
	if err := redisotel.InstrumentTracing(redisClient); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if metricsEnabled {
		if err := redisotel.InstrumentMetrics(redisClient); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}

	bus := &events.Bus{
		Store:     queries,
		Notifiers: []events.Notifier{events.LogNotifier{Logger: logger}},
	}

	verifier := auth.Verifier{
		Secret:    []byte(cfg.JWTSecret),
		Issuer:    envOrDefault("JWT_ISSUER", ""),
		Audience:  envOrDefault("JWT_AUDIENCE", ""),
		ClockSkew: envDurationMillis("JWT_CLOCK_SKEW_MS", 30000),
	}
	authMiddleware := auth.Middleware{Verifier: verifier}

	idem := common.Idem{R: redisClient, TTL: cfg.IdempotencyTTL}

	paymentLimiter, err := ratelimit.New(redisClient, cfg.PaymentRateLimit)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse payment rate limit")
	}

	cartSvc := &cart.Service{Q: queries}
	couponSvc := &coupon.Service{Q: queries}

	addressSvc := &address.Service{Q: queries, Validate: validator.New()}
	addressHandler := &address.Handler{Svc: addressSvc}

	checkoutSvc := &checkout.Service{
		Q:          queries,
		Pool:       pool,
		WithTx:     func(tx pgx.Tx) checkout.Querier { return queries.WithTx(tx) },
		Cart:       cartSvc,
		Coupons:    couponSvc,
		Events:     bus,
		Currency:   cfg.CurrencyCode,
		FreeShipAt: cfg.FreeShippingThreshold,
		FlatRate:   cfg.ShippingFlatRate,
		MaxRetries: cfg.OrderNumberMaxRetries,
	}
	checkoutHandler := &checkout.Handler{Svc: checkoutSvc, Addresses: addressSvc}

	inventorySvc := &inventory.Service{
		Q:      queries,
		Pool:   pool,
		WithTx: func(tx pgx.Tx) inventory.Querier { return queries.WithTx(tx) },
		Events: bus,
		Logger: logger,
	}

	gateway := &payment.Razorpay{
		KeyID:     cfg.RazorpayKeyID,
		KeySecret: cfg.RazorpayKeySecret,
		BaseURL:   cfg.RazorpayBaseURL,
		Timeout:   cfg.GatewayTimeout,
	}
	paymentSvc := &payment.Service{
		Q:           queries,
		Pool:        pool,
		WithTx:      func(tx pgx.Tx) payment.Querier { return queries.WithTx(tx) },
		Gateway:     gateway,
		KeyID:       cfg.RazorpayKeyID,
		KeySecret:   cfg.RazorpayKeySecret,
		Coupons:     couponSvc,
		Inventory:   inventorySvc,
		Events:      bus,
		Logger:      logger,
		MaxAttempts: cfg.PaymentMaxAttempts,
		AttemptTTL:  cfg.PaymentAttemptTTL,
	}
	paymentHandler := &payment.Handler{Svc: paymentSvc}
	webhookHandler := payment.Webhook{
		Svc:       paymentSvc,
		Secret:    cfg.RazorpayWebhookSecret,
		Replay:    redisClient,
		ReplayTTL: cfg.WebhookReplayTTL,
		Events:    bus,
	}

	var httpMetrics *obs.HTTPMetrics
	if metricsEnabled {
		buckets := obs.ParseBucketsCSV(envOrDefault("OBS_METRICS_BUCKETS_MS", ""))
		httpMetrics = obs.NewHTTPMetrics(metricsNamespace, buckets, nil)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(obs.RoutePatternMiddleware)
	if tracingEnabled {
		r.Use(obs.TracingMiddleware)
	}
	if metricsEnabled && httpMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}
	if envBool("OBS_ENABLE_PPROF", false) {
		user := envOrDefault("SECURE_PPROF_BASIC_AUTH_USER", "")
		pass := envOrDefault("SECURE_PPROF_BASIC_AUTH_PASS", "")
		r.Mount("/debug/pprof", protectPprof(newPprofMux(), user, pass))
	}

	healthHandler := health.Handler{
		Checker:      health.Probes{Pool: pool, Redis: redisClient},
		DBTimeout:    envDurationMillis("HEALTH_READY_DB_TIMEOUT_MS", 500),
		RedisTimeout: envDurationMillis("HEALTH_READY_REDIS_TIMEOUT_MS", 300),
	}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Route("/checkout", func(c chi.Router) {
		c.Use(authMiddleware.RequireAuth)
		c.Get("/", checkoutHandler.GetQuote)
		c.Post("/calculate", checkoutHandler.Calculate)
		c.With(idem.Middleware).Post("/create-order", checkoutHandler.CreateOrder)
		c.Post("/coupon", checkoutHandler.ApplyCoupon)
		c.Delete("/coupon", checkoutHandler.RemoveCoupon)
		c.Route("/address", addressHandler.Routes)
	})

	r.Route("/payment", func(p chi.Router) {
		p.Use(authMiddleware.RequireAuth)
		p.Group(func(g chi.Router) {
			g.Use(idem.Middleware)
			g.Use(ratelimit.Middleware(paymentLimiter))
			g.Post("/gateway/create-order", paymentHandler.CreateIntent)
		})
		p.Post("/gateway/verify", paymentHandler.Verify)
		p.Get("/order/{orderID}/status", paymentHandler.Status)
	})

	r.Post("/webhook/gateway", webhookHandler.Handle)

	srv := &http.Server{
		Addr:    cfg.HTTPAddr(),
		Handler: r,
	}

	logger.Info().Str("addr", srv.Addr).Msg("server starting")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("server exited unexpectedly")
	}
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "1", "t", "true", "yes", "on":
			return true
		case "0", "f", "false", "no", "off":
			return false
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			return parsed
		}
	}
	return fallback
}

func envDurationMillis(key string, fallback int) time.Duration {
	return time.Duration(envInt(key, fallback)) * time.Millisecond
}

func newPprofMux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", pprof.Index)
	mux.HandleFunc("/cmdline", pprof.Cmdline)
	mux.HandleFunc("/profile", pprof.Profile)
	mux.HandleFunc("/symbol", pprof.Symbol)
	mux.HandleFunc("/trace", pprof.Trace)
	mux.Handle("/allocs", pprof.Handler("allocs"))
	mux.Handle("/goroutine", pprof.Handler("goroutine"))
	mux.Handle("/heap", pprof.Handler("heap"))
	mux.Handle("/mutex", pprof.Handler("mutex"))
	return mux
}

func protectPprof(handler http.Handler, user, pass string) http.Handler {
	user = strings.TrimSpace(user)
	pass = strings.TrimSpace(pass)
	if user == "" {
		return handler
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || subtle.ConstantTimeCompare([]byte(u), []byte(user)) != 1 || subtle.ConstantTimeCompare([]byte(p), []byte(pass)) != 1 {
			w.Header().Set("WWW-Authenticate", "Basic realm=restricted")
			http.Error(w, "unauthorised", http.StatusUnauthorized)
			return
		}
		handler.ServeHTTP(w, r)
	})
}
