// Package exchangerate fetches rate tables from the exchangerate-api v4
// endpoint: GET {base-url}/{CODE}.
package exchangerate

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jinzhu/now"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"max.ks1230/currency-rates/internal/entity/currency"
	"max.ks1230/currency-rates/internal/logger"
	"max.ks1230/currency-rates/internal/model/customerr"
)

const maxErrBody = 512

type config interface {
	BaseURL() string
	Timeout() time.Duration
}

type Client struct {
	baseURL string
	http    *http.Client
	clock   func() time.Time
}

func New(config config) *Client {
	return &Client{
		baseURL: strings.TrimRight(config.BaseURL(), "/"),
		http:    &http.Client{Timeout: config.Timeout()},
		clock:   time.Now,
	}
}

func (c *Client) Fetch(ctx context.Context, sourceCode string) (currency.Snapshot, error) {
	snap, err := c.fetch(ctx, sourceCode)
	if err != nil {
		return currency.Snapshot{}, &customerr.NetworkError{Source: sourceCode, Err: err}
	}
	return snap, nil
}

func (c *Client) fetch(ctx context.Context, sourceCode string) (currency.Snapshot, error) {
	endpoint := c.baseURL + "/" + url.PathEscape(sourceCode)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return currency.Snapshot{}, errors.Wrap(err, "build request")
	}
	req.Header.Set("Accept", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return currency.Snapshot{}, errors.Wrap(err, "do request")
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(res.Body, maxErrBody))
		return currency.Snapshot{}, fmt.Errorf("api returned status %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}

	var snap currency.Snapshot
	if err = json.NewDecoder(res.Body).Decode(&snap); err != nil {
		return currency.Snapshot{}, errors.Wrap(err, "unmarshalling response")
	}
	if snap.SourceCode != sourceCode {
		return currency.Snapshot{}, fmt.Errorf("asked for %s, got table for %q", sourceCode, snap.SourceCode)
	}

	if snap.FetchedAt.IsZero() {
		snap.FetchedAt = c.clock().UTC().Truncate(time.Second)
	}
	if snap.AsOfDate.IsZero() {
		snap.AsOfDate = now.With(snap.FetchedAt).BeginningOfDay()
	}

	logger.Info("new response from exchangerate-api",
		zap.String("source", sourceCode),
		zap.Int("rates", len(snap.Rates)),
		zap.Time("updated", snap.FetchedAt))
	return snap, nil
}
