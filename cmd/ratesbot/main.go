package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"max.ks1230/currency-rates/internal/bootstrap"
	"max.ks1230/currency-rates/internal/clients/kafka"
	"max.ks1230/currency-rates/internal/clients/tg"
	"max.ks1230/currency-rates/internal/config"
	"max.ks1230/currency-rates/internal/logger"
	"max.ks1230/currency-rates/internal/model/messages"
	"max.ks1230/currency-rates/internal/model/preference"
	"max.ks1230/currency-rates/internal/model/rates"
	"max.ks1230/currency-rates/internal/model/snapshots"
	"max.ks1230/currency-rates/internal/server"
)

const shutdownTimeout = 5 * time.Second

func main() {
	defer logger.Sync()
	logger.Info("Bot init - start")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	conf, err := config.New()
	if err != nil {
		logger.Fatal("failed to init config:", zap.Error(err))
	}

	closeTracer, err := initTracing(conf.Observability())
	if err != nil {
		logger.Fatal("failed to init tracing:", zap.Error(err))
	}
	defer closeTracer()

	defaults, err := bootstrap.Default()
	if err != nil {
		logger.Fatal("failed to load bundled rates:", zap.Error(err))
	}

	blobs, closeStorage, err := newBlobStorage(conf)
	if err != nil {
		logger.Fatal("failed to init storage:", zap.Error(err))
	}
	defer closeStorage()

	registry := snapshots.NewRegistry(blobs)
	prefs := preference.NewStore(blobs, conf.App())

	if err = bootstrap.Seed(ctx, registry, defaults); err != nil {
		logger.Error("failed to seed cache with bundled rates", zap.Error(err))
	}
	pair, err := prefs.Read(ctx)
	if err != nil {
		logger.Fatal("failed to read preference:", zap.Error(err))
	}
	initial := bootstrap.InitialRate(ctx, registry, pair)

	opts := []rates.Option{}
	if conf.Kafka().Enabled() {
		producer, err := kafka.NewProducer(conf.Kafka())
		if err != nil {
			logger.Fatal("failed to init kafka producer", zap.Error(err))
		}
		defer producer.Close()
		opts = append(opts, rates.WithPublisher(producer))
	}

	engine := rates.NewEngine(registry, newGateway(conf.Exchange()), prefs, initial, opts...)
	puller := rates.NewPuller(engine, conf.App())

	health, err := server.NewHealthServer(conf.Observability().HealthPort())
	if err != nil {
		logger.Fatal("failed to init health server", zap.Error(err))
	}

	logger.Info("Bot init - end")

	group, gctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return engine.Run(gctx)
	})
	group.Go(func() error {
		puller.Pull(gctx)
		return nil
	})
	group.Go(func() error {
		watchEngine(gctx, engine)
		return nil
	})

	group.Go(health.Serve)
	group.Go(func() error {
		select {
		case <-engine.Ready():
			health.SetServing()
		case <-gctx.Done():
		}
		<-gctx.Done()
		health.Shutdown()
		return nil
	})

	if addr := conf.Observability().MetricsAddr(); addr != "" {
		serveMetrics(gctx, group, addr)
	}

	if conf.Telegram().Enabled() {
		client, err := tg.New(conf.Telegram())
		if err != nil {
			logger.Fatal("failed to init client:", zap.Error(err))
		}
		msgService := messages.NewService(client, engine)
		group.Go(func() error {
			client.ListenUpdates(gctx, msgService)
			return nil
		})
	}

	if conf.Kafka().Enabled() && conf.Kafka().CommandsTopic() != "" {
		consumer, err := kafka.NewConsumer(conf.Kafka(), engine)
		if err != nil {
			logger.Fatal("failed to init kafka consumer", zap.Error(err))
		}
		group.Go(func() error {
			return consumer.StartConsuming(gctx)
		})
	}

	if err = group.Wait(); err != nil {
		logger.Error("bot stopped with error", zap.Error(err))
	}
}

func watchEngine(ctx context.Context, engine *rates.Engine) {
	for {
		select {
		case <-ctx.Done():
			return
		case rate := <-engine.Updates():
			logger.Info("current rate changed",
				zap.String("source", rate.Source), zap.String("target", rate.Target),
				zap.Float64("value", rate.Value), zap.Bool("fromCache", rate.FromCache))
		case <-engine.Signal().C():
			if outcome, ok := engine.PendingOutcome(); ok {
				logger.Info("refresh outcome pending", zap.Stringer("outcome", outcome.Kind))
			}
		}
	}
}

func serveMetrics(ctx context.Context, group *errgroup.Group, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: shutdownTimeout}

	group.Go(func() error {
		logger.Info("metrics server listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}
