package main

import (
	"context"
	"io"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"github.com/uber/jaeger-client-go"
	jaegercfg "github.com/uber/jaeger-client-go/config"
	"go.uber.org/zap"
	"max.ks1230/currency-rates/internal/clients/cache"
	"max.ks1230/currency-rates/internal/clients/exchangerate"
	"max.ks1230/currency-rates/internal/clients/fixer"
	"max.ks1230/currency-rates/internal/config"
	"max.ks1230/currency-rates/internal/entity/currency"
	"max.ks1230/currency-rates/internal/logger"
	"max.ks1230/currency-rates/internal/model/storage"
)

const serviceName = "currency-rates"

type gateway interface {
	Fetch(ctx context.Context, sourceCode string) (currency.Snapshot, error)
}

func newBlobStorage(conf *config.Service) (storage.BlobStorage, func(), error) {
	noop := func() {}

	switch conf.Storage().Backend() {
	case config.BackendMemory:
		return storage.NewInMemStorage(), noop, nil
	case config.BackendPostgres:
		db, err := storage.NewPostgresStorage(conf.Postgres())
		if err != nil {
			return nil, noop, errors.Wrap(err, "init postgres")
		}
		return db, closer(db, "postgres"), nil
	case config.BackendMemcached:
		mc, err := cache.NewMemcache(conf.Memcached())
		if err != nil {
			return nil, noop, errors.Wrap(err, "init memcached")
		}
		return mc, noop, nil
	default:
		fs, err := storage.NewFileStorage(conf.App())
		if err != nil {
			return nil, noop, errors.Wrap(err, "init file storage")
		}
		return fs, noop, nil
	}
}

func newGateway(conf *config.ExchangeConfig) gateway {
	if conf.ProviderName() == config.ProviderFixer {
		return fixer.New(conf)
	}
	return exchangerate.New(conf)
}

func initTracing(conf *config.ObservabilityConfig) (func(), error) {
	if !conf.TracingEnabled() {
		return func() {}, nil
	}

	cfg := jaegercfg.Configuration{
		ServiceName: serviceName,
		Sampler: &jaegercfg.SamplerConfig{
			Type:  jaeger.SamplerTypeConst,
			Param: 1,
		},
		Reporter: &jaegercfg.ReporterConfig{
			LocalAgentHostPort: conf.JaegerAgent(),
		},
	}
	tracer, tracerCloser, err := cfg.NewTracer()
	if err != nil {
		return nil, errors.Wrap(err, "new jaeger tracer")
	}
	opentracing.SetGlobalTracer(tracer)
	return closer(tracerCloser, "tracer"), nil
}

func closer(c io.Closer, name string) func() {
	return func() {
		if err := c.Close(); err != nil {
			logger.Error("failed to close "+name, zap.Error(err))
		}
	}
}
