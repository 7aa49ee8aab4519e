package config

import "max.ks1230/currency-rates/internal/entity/currency"

const defaultDataDir = "data/cache"

type AppConfig struct {
	DefaultSourceName       string `yaml:"default-source"`
	DefaultTargetName       string `yaml:"default-target"`
	CacheDir                string `yaml:"data-dir"`
	RatePullingDelayMinutes int64  `yaml:"rate-pulling-delay-minutes"`
}

func (s *AppConfig) DefaultSource() string {
	if s.DefaultSourceName == "" {
		return currency.USD
	}
	return currency.Normalize(s.DefaultSourceName)
}

// DefaultTarget stands in for the device locale currency.
func (s *AppConfig) DefaultTarget() string {
	if s.DefaultTargetName == "" {
		return currency.CNY
	}
	return currency.Normalize(s.DefaultTargetName)
}

func (s *AppConfig) DataDir() string {
	if s.CacheDir == "" {
		return defaultDataDir
	}
	return s.CacheDir
}

func (s *AppConfig) PullingDelayMinutes() int64 {
	return s.RatePullingDelayMinutes
}
