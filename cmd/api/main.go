package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ariefcatur/storefront-ledger/internal/catalog"
	"github.com/ariefcatur/storefront-ledger/internal/config"
	"github.com/ariefcatur/storefront-ledger/internal/events"
	"github.com/ariefcatur/storefront-ledger/internal/httpx"
	"github.com/ariefcatur/storefront-ledger/internal/inventory"
	kafkax "github.com/ariefcatur/storefront-ledger/internal/kafka"
	"github.com/ariefcatur/storefront-ledger/internal/logging"
	"github.com/ariefcatur/storefront-ledger/internal/memstore"
	"github.com/ariefcatur/storefront-ledger/internal/orders"
	"github.com/ariefcatur/storefront-ledger/internal/postgres"
	"github.com/ariefcatur/storefront-ledger/internal/redisx"
	"github.com/ariefcatur/storefront-ledger/internal/roles"
	"github.com/ariefcatur/storefront-ledger/internal/telemetry"
)

const shutdownTimeout = 10 * time.Second

func main() {
	app := &cli.App{
		Name:  "api",
		Usage: "storefront order and inventory API",
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the HTTP API",
				Action: serve,
			},
			{
				Name:  "migrate",
				Usage: "apply or roll back database migrations",
				Subcommands: []*cli.Command{
					{Name: "up", Action: migrate(true)},
					{Name: "down", Action: migrate(false)},
				},
			},
		},
	}
	if err := app.Run(os.Args); err != nil {
		// logger may not exist yet
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}
}

func setup() (config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, nil, err
	}
	log := logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat, Env: cfg.AppEnv, Production: cfg.Production()}).
		With(zap.String("service", cfg.ServiceName))
	return cfg, log, nil
}

func migrate(up bool) cli.ActionFunc {
	return func(*cli.Context) error {
		cfg, log, err := setup()
		if err != nil {
			return err
		}
		defer log.Sync()

		m, err := postgres.NewMigrator(cfg.PostgresDSN, log)
		if err != nil {
			return err
		}
		defer m.Close()
		if up {
			return m.Up()
		}
		return m.Down()
	}
}

// backend is the storage-dependent part of the wiring.
type backend struct {
	store interface {
		orders.Store
		catalog.Store
	}
	dir   roles.Directory
	close func()
}

func openBackend(ctx context.Context, cfg config.Config, log *zap.Logger) (backend, error) {
	if cfg.StoreDriver == config.DriverMemory {
		dir, err := roles.NewStaticDirectory(cfg.StaffRoles)
		if err != nil {
			return backend{}, err
		}
		log.Warn("using in-memory store, data is not persisted")
		return backend{store: memstore.New(), dir: dir, close: func() {}}, nil
	}
	db, err := postgres.Connect(ctx, cfg.PostgresDSN, cfg.PGMaxConns)
	if err != nil {
		return backend{}, err
	}
	return backend{store: postgres.NewStore(db), dir: &postgres.RoleDirectory{DB: db}, close: db.Close}, nil
}

func serve(c *cli.Context) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, telemetry.Config{
		Enabled:       cfg.OTelEnabled,
		Endpoint:      cfg.OTelEndpoint,
		SamplingRatio: cfg.OTelSamplingRatio,
		ServiceName:   cfg.ServiceName,
	}, log)
	if err != nil {
		return err
	}

	be, err := openBackend(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer be.close()

	access := httpx.Access{Dir: be.dir, Log: log}
	oh := &httpx.OrdersHandler{Access: access}

	if cfg.RedisAddr != "" {
		rdb := redisx.New(cfg.RedisAddr)
		defer rdb.Close()
		if err := redisx.Ping(ctx, rdb); err != nil {
			log.Warn("redis unavailable, idempotency keys disabled", zap.Error(err))
		} else {
			oh.Idem = &redisx.Idempotency{RDB: rdb}
		}
	}

	var publisher events.Publisher = events.Discard{}
	var prod *kafkax.Producer
	if len(cfg.KafkaBrokers) > 0 {
		prod = kafkax.NewProducer(cfg.KafkaBrokers, events.TopicOrderLifecycle, 1024, log)
		publisher = kafkax.EnvelopePublisher{P: prod}
	}

	gate := roles.DirectoryGate{Dir: be.dir}
	oh.Workflow = orders.NewWorkflow(be.store, gate, orders.WithPublisher(publisher, cfg.ServiceName))

	router := httpx.NewRouter(log, cfg.RequestTimeout)
	httpx.Mount(router,
		httpx.NewCatalogHandler(catalog.NewService(be.store), inventory.NewService(be.store), access),
		oh,
		&httpx.StaffHandler{Access: access, Workflow: oh.Workflow},
	)
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	prodCtx, stopProducer := context.WithCancel(context.Background())
	defer stopProducer()
	if prod != nil {
		prod.Start(prodCtx)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("http listening", zap.String("addr", cfg.HTTPAddr), zap.String("store", cfg.StoreDriver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "listen")
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			log.Error("http shutdown", zap.Error(err))
		}
		if prod != nil {
			// closing the inbox flushes buffered events before the writer closes
			prod.Close()
			prod.WaitClosed()
		}
		if err := shutdownTracing(sctx); err != nil {
			log.Error("tracer shutdown", zap.Error(err))
		}
		return nil
	})
	return g.Wait()
}
