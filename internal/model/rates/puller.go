package rates

import (
	"context"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"

	"go.uber.org/zap"
	"max.ks1230/currency-rates/internal/logger"
)

type resyncer interface {
	Resync(ctx context.Context) error
}

type pullerConfig interface {
	PullingDelayMinutes() int64
}

// Puller periodically re-resolves the current pair so the cache gets
// refreshed without user action. The freshness policy still decides whether
// anything is fetched.
type Puller struct {
	engine       resyncer
	pullingDelay time.Duration
}

func NewPuller(engine resyncer, config pullerConfig) *Puller {
	return &Puller{
		engine:       engine,
		pullingDelay: time.Duration(config.PullingDelayMinutes()) * time.Minute,
	}
}

func (p *Puller) Pull(ctx context.Context) {
	if p.pullingDelay <= 0 {
		logger.Info("Rates pulling disabled")
		return
	}

	ticker := time.NewTicker(p.pullingDelay)
	defer ticker.Stop()

	logger.Info("Start pulling rates", zap.Duration("delay", p.pullingDelay))
	for {
		select {
		case <-ctx.Done():
			logger.Info("Stop pulling rates")
			return
		case <-ticker.C:
			p.pullOnce(ctx)
		}
	}
}

func (p *Puller) pullOnce(ctx context.Context) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "pullRates")
	defer span.Finish()

	logger.Info("Pulling current rates...")
	if err := p.engine.Resync(ctx); err != nil {
		ext.Error.Set(span, true)
		logger.Error("cannot pull rates", zap.Error(err))
		return
	}
	logger.Info("Successfully pulled current rates")
}
