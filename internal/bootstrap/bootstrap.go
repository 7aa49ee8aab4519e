// Package bootstrap ships the rate table shown before anything was fetched.
package bootstrap

import (
	"context"
	_ "embed"
	"encoding/json"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"max.ks1230/currency-rates/internal/entity/currency"
	"max.ks1230/currency-rates/internal/logger"
	"max.ks1230/currency-rates/internal/model/customerr"
	"max.ks1230/currency-rates/internal/model/freshness"
	"max.ks1230/currency-rates/internal/model/snapshots"
)

//go:embed usd.json
var usdJSON []byte

// Default parses the bundled USD snapshot. A failure here is fatal for the
// process: there would be nothing to show.
func Default() (currency.Snapshot, error) {
	return parse(usdJSON)
}

func parse(data []byte) (currency.Snapshot, error) {
	var snap currency.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return currency.Snapshot{}, &customerr.NoDataError{Err: err}
	}
	if freshness.IsEmpty(snap) {
		return currency.Snapshot{}, &customerr.NoDataError{Err: errors.New("empty rate table")}
	}
	return snap, nil
}

// Seed stores snap as the cached table of its source unless something is
// cached already. The bundled table is old, so it never counts as fresh.
func Seed(ctx context.Context, registry *snapshots.Registry, snap currency.Snapshot) error {
	store := registry.Store(snap.SourceCode)
	if !freshness.IsEmpty(store.Read(ctx)) {
		return nil
	}
	logger.Info("seeding cache with bundled rates", zap.String("source", snap.SourceCode))
	return errors.Wrap(store.Write(ctx, snap), "seed cache")
}

// InitialRate projects whatever is cached for pair.Source, so the current
// rate is known before the first resolution. Zero when nothing is cached.
func InitialRate(ctx context.Context, registry *snapshots.Registry, pair currency.Pair) currency.Rate {
	cached := registry.Store(pair.Source).Read(ctx)
	if freshness.IsEmpty(cached) {
		return currency.Rate{}
	}
	rate := cached.Project(pair.Target)
	rate.FromCache = true
	return rate
}
