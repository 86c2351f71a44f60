package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/ariefcatur/storefront-ledger/internal/config"
	"github.com/ariefcatur/storefront-ledger/internal/events"
	"github.com/ariefcatur/storefront-ledger/internal/inventory"
	kafkax "github.com/ariefcatur/storefront-ledger/internal/kafka"
	"github.com/ariefcatur/storefront-ledger/internal/logging"
	"github.com/ariefcatur/storefront-ledger/internal/postgres"
	"github.com/ariefcatur/storefront-ledger/internal/redisx"
	"github.com/ariefcatur/storefront-ledger/internal/telemetry"
)

func main() {
	app := &cli.App{
		Name:   "inventory",
		Usage:  "watch order lifecycle events and raise low-stock alerts",
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	service := cfg.ServiceName + "-inventory"
	log := logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat, Env: cfg.AppEnv, Production: cfg.Production()}).
		With(zap.String("service", service))
	defer log.Sync()

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, telemetry.Config{
		Enabled:       cfg.OTelEnabled,
		Endpoint:      cfg.OTelEndpoint,
		SamplingRatio: cfg.OTelSamplingRatio,
		ServiceName:   service,
	}, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			log.Error("tracer shutdown", zap.Error(err))
		}
	}()

	db, err := postgres.Connect(ctx, cfg.PostgresDSN, cfg.PGMaxConns)
	if err != nil {
		return err
	}
	defer db.Close()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()
	if err := redisx.Ping(ctx, rdb); err != nil {
		return err
	}

	prod := kafkax.NewProducer(cfg.KafkaBrokers, events.TopicStockLow, 1024, log)
	prod.Start(context.Background())
	defer func() {
		prod.Close()
		prod.WaitClosed()
	}()

	w := &inventory.Watcher{
		Items:    postgres.NewStore(db),
		Dedup:    &redisx.Dedup{RDB: rdb, Service: service},
		Events:   kafkax.EnvelopePublisher{P: prod},
		Producer: service,
		Log:      log,
	}

	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.InventoryGroup, events.TopicOrderLifecycle, cfg.InventoryWorkers, log)
	log.Info("inventory watcher started",
		zap.String("group", cfg.InventoryGroup),
		zap.String("topic", events.TopicOrderLifecycle),
		zap.Int("workers", cfg.InventoryWorkers),
	)
	err = cons.Start(ctx, w.HandleLifecycle)
	log.Info("inventory watcher stopped")
	if ctx.Err() != nil {
		return nil
	}
	return err
}
