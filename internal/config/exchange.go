package config

import "time"

const (
	ProviderExchangeRateAPI = "exchangerate-api"
	ProviderFixer           = "fixer"

	defaultExchangeRateURL = "https://api.exchangerate-api.com/v4/latest"
	defaultFixerURL        = "https://api.apilayer.com/fixer/latest"
	defaultTimeoutSeconds  = 10
)

type ExchangeConfig struct {
	Provider       string `yaml:"provider"`
	URL            string `yaml:"base-url"`
	FixerApiKey    string `yaml:"api-key"`
	TimeoutSeconds int64  `yaml:"timeout-seconds"`
}

func (e *ExchangeConfig) ProviderName() string {
	if e.Provider == "" {
		return ProviderExchangeRateAPI
	}
	return e.Provider
}

func (e *ExchangeConfig) BaseURL() string {
	if e.URL != "" {
		return e.URL
	}
	if e.ProviderName() == ProviderFixer {
		return defaultFixerURL
	}
	return defaultExchangeRateURL
}

func (e *ExchangeConfig) ApiKey() string {
	return e.FixerApiKey
}

func (e *ExchangeConfig) Timeout() time.Duration {
	if e.TimeoutSeconds <= 0 {
		return defaultTimeoutSeconds * time.Second
	}
	return time.Duration(e.TimeoutSeconds) * time.Second
}
