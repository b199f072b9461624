package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	cartapp "github.com/dmehra2102/storefront/internal/cart/application"
	carthttp "github.com/dmehra2102/storefront/internal/cart/infrastructure/http"
	cartpg "github.com/dmehra2102/storefront/internal/cart/infrastructure/postgres"
	catalogapp "github.com/dmehra2102/storefront/internal/catalog/application"
	cataloghttp "github.com/dmehra2102/storefront/internal/catalog/infrastructure/http"
	catalogpg "github.com/dmehra2102/storefront/internal/catalog/infrastructure/postgres"
	orderapp "github.com/dmehra2102/storefront/internal/order/application"
	orderhttp "github.com/dmehra2102/storefront/internal/order/infrastructure/http"
	ordermail "github.com/dmehra2102/storefront/internal/order/infrastructure/mail"
	orderpg "github.com/dmehra2102/storefront/internal/order/infrastructure/postgres"
	userpg "github.com/dmehra2102/storefront/internal/user/infrastructure/postgres"
	"github.com/dmehra2102/storefront/pkg/cache"
	"github.com/dmehra2102/storefront/pkg/config"
	"github.com/dmehra2102/storefront/pkg/events"
	"github.com/dmehra2102/storefront/pkg/health"
	"github.com/dmehra2102/storefront/pkg/httpx"
	"github.com/dmehra2102/storefront/pkg/idempotency"
	"github.com/dmehra2102/storefront/pkg/lock"
	"github.com/dmehra2102/storefront/pkg/logging"
	"github.com/dmehra2102/storefront/pkg/outbox"
	"github.com/dmehra2102/storefront/pkg/postgres"
	"github.com/dmehra2102/storefront/pkg/shutdown"
	"github.com/dmehra2102/storefront/pkg/tracing"
)

func main() {
	cfg := config.Load()
	log := logging.New(logging.Options{Service: "storefront", Env: cfg.AppEnv, Level: cfg.LogLevel})

	ctx, cancel := shutdown.WithSignals(context.Background(), log)
	defer cancel()

	providers, err := tracing.Init(ctx, "storefront", cfg.OTLPEndpoint, cfg.OTLPMetricsEndpoint, log)
	if err != nil {
		log.Error("otel init failed", "err", err)
		os.Exit(1)
	}
	defer func() {
		sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer scancel()
		_ = providers.Shutdown(sctx)
	}()

	// Postgres
	pool, err := postgres.Connect(ctx, log, cfg.PGURL)
	if err != nil {
		log.Error("pg connect failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()
	if err := postgres.Migrate(ctx, pool); err != nil {
		log.Error("pg migrate failed", "err", err)
		os.Exit(1)
	}

	// Redis: cache and lock both degrade to in-process stores
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()
	kv := cache.Connect(ctx, log, rdb)
	locks := lock.Connect(ctx, log, rdb)

	// Kafka
	syncWriter := events.NewSyncWriter(cfg.KafkaBrokers)
	defer syncWriter.Close()
	asyncWriter := events.NewAsyncWriter(cfg.KafkaBrokers, log)
	defer asyncWriter.Close()

	store := outbox.NewPGStore(log, pool)
	publisher := events.NewPublisher(log, syncWriter, asyncWriter, events.WithParker(store))
	relay := outbox.NewRelay(log, store, outbox.NewDispatcher(log, syncWriter, cfg.OrderTopic), "storefront-relay")

	// Repositories & services
	carts := cartpg.NewRepository(log, pool)
	products := catalogpg.NewRepository(log, pool)
	users := userpg.NewRepository(log, pool)
	orders := orderpg.NewRepository(log, pool)

	cartSvc := cartapp.NewService(log, carts, users, products, kv, locks, publisher, cfg.CartTopic)
	catalogSvc := catalogapp.NewService(log, products, kv, cfg.ProductCacheTTL)

	var orderOpts []orderapp.Option
	if cfg.SendGridAPIKey != "" {
		mailer := ordermail.NewSendGrid(cfg.SendGridAPIKey, cfg.SendGridFrom)
		orderOpts = append(orderOpts, orderapp.WithNotifier(ordermail.NewBestEffort(log, mailer)))
	} else {
		log.Info("sendgrid not configured, guest confirmations are disabled")
	}
	orderSvc := orderapp.NewService(log, orders, users, products, carts, kv, publisher, cfg.OrderTopic, orderOpts...)

	// HTTP server
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer, httpx.Identify)
	r.Mount("/cart", carthttp.NewHandler(log, cartSvc).Routes())
	r.Mount("/products", cataloghttp.NewHandler(log, catalogSvc).Routes())
	idem := idempotency.NewStore(rdb, 24*time.Hour)
	r.Route("/orders", func(r chi.Router) {
		r.Use(idempotency.Middleware(log, idem, "orders"))
		r.Mount("/", orderhttp.NewHandler(log, orderSvc).Routes())
	})

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      otelhttp.NewHandler(r, "storefront"),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	hs := health.NewServer(log,
		health.Check{Name: "postgres", Required: true, Probe: pool.Ping},
		health.Check{Name: "redis", Probe: func(ctx context.Context) error { return rdb.Ping(ctx).Err() }},
		health.Check{Name: "kafka", Probe: func(ctx context.Context) error {
			conn, err := kafka.DialContext(ctx, "tcp", cfg.KafkaBrokers[0])
			if err != nil {
				return err
			}
			return conn.Close()
		}},
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return relay.Run(gctx) })
	g.Go(func() error { return hs.Run(gctx, cfg.GRPCAddr) })
	g.Go(func() error {
		log.Info("http listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("storefront stopped with error", "err", err)
	}

	// Order events still being retried in the background must get their
	// chance before the writers close.
	orderSvc.Drain()
	log.Info("storefront shutdown complete")
}
