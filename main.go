package main

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/brewtopia/cafepos/internal/application/order"
	"github.com/brewtopia/cafepos/internal/application/report"
	"github.com/brewtopia/cafepos/internal/config"
	"github.com/brewtopia/cafepos/internal/domain/catalog"
	domainOrder "github.com/brewtopia/cafepos/internal/domain/order"
	"github.com/brewtopia/cafepos/internal/infrastructure/auth"
	"github.com/brewtopia/cafepos/internal/infrastructure/kafka"
	"github.com/brewtopia/cafepos/internal/infrastructure/memory"
	"github.com/brewtopia/cafepos/internal/infrastructure/menufile"
	"github.com/brewtopia/cafepos/internal/infrastructure/notify"
	infraobs "github.com/brewtopia/cafepos/internal/infrastructure/observability"
	"github.com/brewtopia/cafepos/internal/infrastructure/observability/oteltrace"
	"github.com/brewtopia/cafepos/internal/infrastructure/observability/prometrics"
	"github.com/brewtopia/cafepos/internal/infrastructure/observability/zaplogger"
	"github.com/brewtopia/cafepos/internal/infrastructure/outbox"
	"github.com/brewtopia/cafepos/internal/infrastructure/postgres"
	"github.com/brewtopia/cafepos/internal/infrastructure/rabbitmq"
	"github.com/brewtopia/cafepos/internal/infrastructure/realtime"
	"github.com/brewtopia/cafepos/internal/infrastructure/sqlite"
	"github.com/brewtopia/cafepos/internal/observability"
	"github.com/brewtopia/cafepos/internal/pkg/logging"
	httppresentation "github.com/brewtopia/cafepos/internal/presentation/http"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

//go:embed menu.yaml
var defaultMenu []byte

const devAdminPassword = "admin123"

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (or "+config.EnvConfigPath+")")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	baseLogger := logging.MustNewLogger(logging.Options{
		Service: cfg.ServiceName,
		Env:     cfg.Env,
		File:    cfg.LogFile,
	})
	defer func() { _ = baseLogger.Sync() }()
	zap.ReplaceGlobals(baseLogger)

	systemLogger := logging.WithTrace(baseLogger, logging.SystemTraceID, logging.SystemSpanID)

	if err := run(cfg, baseLogger); err != nil {
		systemLogger.Error("cafepos_exit", zap.Error(err))
		_ = baseLogger.Sync()
		os.Exit(1)
	}
	systemLogger.Info("cafepos_stopped")
}

type closer struct {
	name string
	fn   func() error
}

func run(cfg config.Config, baseLogger *zap.Logger) (err error) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := zaplogger.Wrap(baseLogger)
	sysLog := zaplogger.Wrap(logging.WithTrace(baseLogger, logging.SystemTraceID, logging.SystemSpanID))

	shutdownTracing, err := oteltrace.Setup(cfg.ServiceName, cfg.TracesExporter, os.Stdout)
	if err != nil {
		return err
	}
	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	inst := prometrics.RegisterDefaults(prometrics.New("", "", promReg))
	tel := infraobs.New(oteltrace.New(cfg.ServiceName), log, inst.Counters, inst.Histograms, inst.Gauges)

	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	var closers []closer
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if cerr := closers[i].fn(); cerr != nil {
				sysLog.Warn("shutdown_close_failed",
					observability.F("resource", closers[i].name),
					observability.F("error", cerr.Error()),
				)
			}
		}
	}()
	closers = append(closers, closer{"tracing", func() error {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return shutdownTracing(sctx)
	}})

	menu, err := loadMenu(cfg.Storage.MenuFile)
	if err != nil {
		return err
	}

	repo, lookup, closeStore, err := openStorage(ctx, cfg.Storage, menu)
	if err != nil {
		return err
	}
	closers = append(closers, closer{"storage", closeStore})
	sysLog.Info("storage_ready",
		observability.F("driver", cfg.Storage.Driver),
		observability.F("categories", len(menu)),
	)

	authn, err := newAuthenticator(cfg, sysLog)
	if err != nil {
		return err
	}

	bus := outbox.NewBus(log,
		outbox.WithQueueSize(cfg.EventQueueSize),
		outbox.WithHandlerTimeout(cfg.EventHandlerTimeout),
	)

	hub := realtime.NewHub(tel, realtime.WithCheckOrigin(realtime.AllowOrigins(cfg.AllowedOrigins)))
	closers = append(closers, closer{"realtime", func() error { hub.Close(); return nil }})
	sinks := []notify.Sink{hub}
	if cfg.RabbitMQ.URL != "" {
		rmq, err := rabbitmq.Dial(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange)
		if err != nil {
			return fmt.Errorf("rabbitmq: %w", err)
		}
		closers = append(closers, closer{"rabbitmq", rmq.Close})
		sinks = append(sinks, rmq)
	}
	if len(cfg.Kafka.Brokers) > 0 {
		ks, err := kafka.NewSink(strings.Join(cfg.Kafka.Brokers, ","), cfg.Kafka.Topic)
		if err != nil {
			return fmt.Errorf("kafka: %w", err)
		}
		closers = append(closers, closer{"kafka", ks.Close})
		sinks = append(sinks, ks)
	}
	relay := notify.NewRelay(tel, sinks...)
	relay.Register(bus)
	sysLog.Info("notification_sinks_ready", observability.F("sinks", relay.Sinks()))

	// Stopped before the sinks close so queued events still reach them.
	bus.Start(ctx)
	closers = append(closers, closer{"event_bus", func() error {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		bus.Stop(sctx)
		return nil
	}})

	orders := order.NewService(repo, lookup, bus,
		order.WithLocation(loc),
		order.WithObservability(tel),
	)
	reports := report.NewAggregator(repo, lookup,
		report.WithLocation(loc),
		report.WithObservability(tel),
	)

	handler := httppresentation.NewHandler(httppresentation.Deps{
		Orders:   orders,
		Reports:  reports,
		Menu:     lookup,
		Auth:     authn,
		Realtime: hub,
		Metrics:  promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}),
	}, tel)

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		sysLog.Info("http_server_start", observability.F("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		// Websocket connections are hijacked, so Shutdown does not wait for them.
		hub.Close()
		if err := server.Shutdown(shutdownCtx); err != nil {
			sysLog.Error("http_server_shutdown_error", observability.F("error", err.Error()))
		} else {
			sysLog.Info("http_server_stopped")
		}
		return nil
	})

	return g.Wait()
}

func loadMenu(path string) ([]catalog.Category, error) {
	if path == "" {
		return menufile.Parse(bytes.NewReader(defaultMenu))
	}
	return menufile.Load(path)
}

// openStorage returns the order repository and catalog for the configured
// driver, seeding the catalog from menu.
func openStorage(ctx context.Context, cfg config.Storage, menu []catalog.Category) (domainOrder.Repository, catalog.Lookup, func() error, error) {
	switch cfg.Driver {
	case config.DriverSQLite:
		db, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, nil, err
		}
		cat := sqlite.NewCatalog(db)
		if err := cat.Seed(ctx, menu); err != nil {
			_ = db.Close()
			return nil, nil, nil, err
		}
		return sqlite.NewOrderRepository(db), cat, db.Close, nil

	case config.DriverPostgres:
		pool, err := postgres.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, nil, err
		}
		if err := postgres.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, nil, err
		}
		cat := postgres.NewCatalog(pool)
		if err := cat.Seed(ctx, menu); err != nil {
			pool.Close()
			return nil, nil, nil, err
		}
		return postgres.NewOrderRepository(pool), cat, func() error { pool.Close(); return nil }, nil

	default:
		return memory.NewOrderRepository(), memory.NewCatalog(menu), func() error { return nil }, nil
	}
}

// newAuthenticator falls back to throwaway dev credentials when the secret or
// hash is missing; config validation already refused that outside dev.
func newAuthenticator(cfg config.Config, log observability.Logger) (*auth.Authenticator, error) {
	secret := cfg.Auth.JWTSecret
	if secret == "" {
		secret = uuid.NewString()
		log.Warn("auth_dev_secret", observability.F("detail", "AUTH_JWT_SECRET unset; tokens will not survive a restart"))
	}
	hash := cfg.Auth.AdminPasswordHash
	if hash == "" {
		h, err := auth.HashPassword(devAdminPassword)
		if err != nil {
			return nil, err
		}
		hash = h
		log.Warn("auth_dev_password", observability.F("user", cfg.Auth.AdminUser))
	}
	return auth.New(secret, cfg.Auth.AdminUser, hash, auth.WithTTL(cfg.Auth.TokenTTL))
}
