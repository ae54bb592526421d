package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/orderflow/api/routes"
	"github.com/angelmondragon/orderflow/internal/attachments"
	"github.com/angelmondragon/orderflow/internal/fees"
	"github.com/angelmondragon/orderflow/internal/ledger"
	"github.com/angelmondragon/orderflow/internal/orders"
	"github.com/angelmondragon/orderflow/internal/payments"
	"github.com/angelmondragon/orderflow/internal/revenue"
	"github.com/angelmondragon/orderflow/internal/settlement"
	"github.com/angelmondragon/orderflow/pkg/config"
	"github.com/angelmondragon/orderflow/pkg/db"
	"github.com/angelmondragon/orderflow/pkg/enums"
	"github.com/angelmondragon/orderflow/pkg/logger"
	"github.com/angelmondragon/orderflow/pkg/metrics"
	"github.com/angelmondragon/orderflow/pkg/migrate"
	"github.com/angelmondragon/orderflow/pkg/outbox"
	"github.com/angelmondragon/orderflow/pkg/redis"
	"github.com/angelmondragon/orderflow/pkg/storage/gcs"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, cfg.FeatureFlags.UseSQLite, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	params := routes.Params{Config: cfg, Logger: logg, DB: dbClient}

	var sequence orders.NumberSequence = orders.DBSequence{}
	if cfg.Redis.Enabled() {
		redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to bootstrap redis", err)
			os.Exit(1)
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing redis", err)
			}
		}()
		redisSequence, err := orders.NewRedisSequence(redisClient)
		if err != nil {
			logg.Error(context.Background(), "failed to build order number sequence", err)
			os.Exit(1)
		}
		if err := redisSequence.Seed(context.Background(), dbClient.DB()); err != nil {
			logg.Error(context.Background(), "failed to seed order number counter", err)
			os.Exit(1)
		}
		sequence = redisSequence
		params.Redis = redisClient
	} else {
		logg.Warn(context.Background(), "redis not configured; idempotency keys and rate limits disabled")
	}

	var resolver *attachments.Resolver
	if cfg.GCS.Enabled() {
		gcsClient, err := gcs.NewClient(context.Background(), cfg.GCS, cfg.GCP, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to bootstrap gcs", err)
			os.Exit(1)
		}
		defer func() {
			if err := gcsClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing gcs", err)
			}
		}()
		resolver = attachments.NewResolver(gcsClient, cfg.GCS.DownloadURLExpiry)
		params.GCS = gcsClient
	} else {
		resolver = attachments.NewResolver(nil, 0)
	}
	params.Resolver = resolver

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	orderMetrics := metrics.NewOrderMetrics(registry)
	params.Metrics = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	params.HTTPMetrics = metrics.NewHTTPMetrics(registry)

	loc, err := cfg.Revenue.Location()
	if err != nil {
		logg.Error(context.Background(), "invalid revenue timezone", err)
		os.Exit(1)
	}
	policyName, err := enums.ParseSplitPolicy(cfg.Fees.SplitPolicy)
	if err != nil {
		logg.Error(context.Background(), "invalid split policy", err)
		os.Exit(1)
	}
	calculator, err := fees.NewCalculator(cfg.Fees.AdminFeeBPS, fees.PolicyFor(policyName))
	if err != nil {
		logg.Error(context.Background(), "failed to build fee calculator", err)
		os.Exit(1)
	}

	ledgerSvc, err := ledger.NewService(ledger.NewRepository(dbClient.DB()), nil)
	if err != nil {
		logg.Error(context.Background(), "failed to create ledger service", err)
		os.Exit(1)
	}
	publisher := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)
	orderRepo := orders.NewRepository(dbClient.DB())

	settlementSvc, err := settlement.NewService(settlement.ServiceParams{
		Repo:       settlement.NewRepository(dbClient.DB()),
		Orders:     orderRepo,
		Tx:         dbClient,
		Outbox:     publisher,
		Ledger:     ledgerSvc,
		Calculator: calculator,
		Metrics:    orderMetrics,
		Logger:     logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create settlement service", err)
		os.Exit(1)
	}

	orderSvc, err := orders.NewService(orders.ServiceParams{
		Repo:        orderRepo,
		Tx:          dbClient,
		Outbox:      publisher,
		Sequence:    sequence,
		Calculator:  calculator,
		Settlements: settlementSvc,
		Ledger:      ledgerSvc,
		Metrics:     orderMetrics,
		Logger:      logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create order service", err)
		os.Exit(1)
	}

	paymentSvc, err := payments.NewService(orderSvc, publisher, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create payment service", err)
		os.Exit(1)
	}

	revenueSvc, err := revenue.NewService(orderRepo, loc, orderMetrics, logg, nil)
	if err != nil {
		logg.Error(context.Background(), "failed to create revenue service", err)
		os.Exit(1)
	}

	params.Orders = orderSvc
	params.Payments = paymentSvc
	params.Settlement = settlementSvc
	params.Revenue = revenueSvc

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":          cfg.App.Env,
		"addr":         addr,
		"split_policy": policyName,
		"fee_bps":      cfg.Fees.AdminFeeBPS,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:    addr,
		Handler: routes.NewRouter(params),
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(groupCtx), cfg.App.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "api server shut down gracefully")
}
