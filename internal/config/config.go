package config

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	configFile    = "data/config.yaml"
	configFileEnv = "CONFIG_FILE"
)

type config struct {
	App           AppConfig           `yaml:"app"`
	Exchange      ExchangeConfig      `yaml:"exchange"`
	Storage       StorageConfig       `yaml:"storage"`
	Postgres      PostgresConfig      `yaml:"postgres"`
	Memcached     MemcachedConfig     `yaml:"memcached"`
	Kafka         KafkaConfig         `yaml:"kafka"`
	Telegram      TelegramConfig      `yaml:"telegram"`
	Observability ObservabilityConfig `yaml:"observability"`
}

type Service struct {
	config config
}

// New reads the yaml config from CONFIG_FILE or data/config.yaml.
func New() (*Service, error) {
	path := os.Getenv(configFileEnv)
	if path == "" {
		path = configFile
	}

	rawYAML, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading config file")
	}
	return Parse(rawYAML)
}

func Parse(rawYAML []byte) (*Service, error) {
	s := &Service{}

	err := yaml.Unmarshal(rawYAML, &s.config)
	if err != nil {
		return nil, errors.Wrap(err, "parsing yaml")
	}

	if err = s.validate(); err != nil {
		return nil, errors.Wrap(err, "validating config")
	}
	return s, nil
}

func (s *Service) validate() error {
	switch s.config.Storage.Backend() {
	case BackendFile, BackendMemory, BackendPostgres, BackendMemcached:
	default:
		return errors.Errorf("unknown storage backend %q", s.config.Storage.Kind)
	}
	switch s.config.Exchange.ProviderName() {
	case ProviderExchangeRateAPI, ProviderFixer:
	default:
		return errors.Errorf("unknown exchange provider %q", s.config.Exchange.Provider)
	}
	if s.config.Exchange.ProviderName() == ProviderFixer && s.config.Exchange.FixerApiKey == "" {
		return errors.New("fixer provider needs api-key")
	}
	return nil
}

func (s *Service) App() *AppConfig {
	return &s.config.App
}

func (s *Service) Exchange() *ExchangeConfig {
	return &s.config.Exchange
}

func (s *Service) Storage() *StorageConfig {
	return &s.config.Storage
}

func (s *Service) Postgres() *PostgresConfig {
	return &s.config.Postgres
}

func (s *Service) Memcached() *MemcachedConfig {
	return &s.config.Memcached
}

func (s *Service) Kafka() *KafkaConfig {
	return &s.config.Kafka
}

func (s *Service) Telegram() *TelegramConfig {
	return &s.config.Telegram
}

func (s *Service) Observability() *ObservabilityConfig {
	return &s.config.Observability
}
