package fixer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jinzhu/now"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"max.ks1230/currency-rates/internal/entity/currency"
	"max.ks1230/currency-rates/internal/logger"
	"max.ks1230/currency-rates/internal/model/customerr"
)

const baseParam = "base"

type config interface {
	ApiKey() string
	BaseURL() string
	Timeout() time.Duration
}

type Client struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

type fixerError struct {
	Code int    `json:"code"`
	Info string `json:"info"`
}

type ratesResponse struct {
	Base      string             `json:"base"`
	Date      string             `json:"date"`
	Rates     map[string]float64 `json:"rates"`
	Success   bool               `json:"success"`
	Timestamp int64              `json:"timestamp"`
	Error     *fixerError        `json:"error"`
}

func New(config config) *Client {
	return &Client{
		apiKey:  config.ApiKey(),
		baseURL: config.BaseURL(),
		http:    &http.Client{Timeout: config.Timeout()},
	}
}

func (c *Client) Fetch(ctx context.Context, sourceCode string) (currency.Snapshot, error) {
	snap, err := c.getRates(ctx, sourceCode)
	if err != nil {
		return currency.Snapshot{}, &customerr.NetworkError{Source: sourceCode, Err: err}
	}
	return snap, nil
}

func (c *Client) getRates(ctx context.Context, baseRate string) (currency.Snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL, nil)
	if err != nil {
		return currency.Snapshot{}, err
	}

	req.Header.Set("apikey", c.apiKey)
	q := req.URL.Query()
	q.Add(baseParam, baseRate)
	req.URL.RawQuery = q.Encode()

	res, err := c.http.Do(req)
	if err != nil {
		return currency.Snapshot{}, errors.Wrap(err, "do request")
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return currency.Snapshot{}, errors.Wrap(err, "read body")
	}
	if res.StatusCode != http.StatusOK {
		return currency.Snapshot{}, fmt.Errorf("fixer returned status %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}
	logger.Debug("new response from fixer", zap.ByteString("body", body))

	rates := ratesResponse{}
	err = json.Unmarshal(body, &rates)
	if err != nil {
		return currency.Snapshot{}, errors.Wrap(err, "unmarshalling response")
	}

	if !rates.Success {
		if rates.Error != nil {
			return currency.Snapshot{}, fmt.Errorf("error from fixer: %d %s", rates.Error.Code, rates.Error.Info)
		}
		return currency.Snapshot{}, errors.New("error from fixer (success = false)")
	}
	if rates.Base != baseRate {
		return currency.Snapshot{}, fmt.Errorf("asked fixer for %s, got %q", baseRate, rates.Base)
	}

	return toSnapshot(rates)
}

func toSnapshot(rates ratesResponse) (currency.Snapshot, error) {
	snap := currency.Snapshot{
		SourceCode: rates.Base,
		FetchedAt:  time.Unix(rates.Timestamp, 0).UTC(),
		Rates:      rates.Rates,
	}
	if rates.Date != "" {
		date, err := time.Parse(currency.DateLayout, rates.Date)
		if err != nil {
			return currency.Snapshot{}, errors.Wrap(err, "parse date")
		}
		snap.AsOfDate = date
	} else {
		snap.AsOfDate = now.With(snap.FetchedAt).BeginningOfDay()
	}
	return snap, nil
}
