package config

type JaegerConfig struct {
	On        bool   `yaml:"enabled"`
	AgentAddr string `yaml:"agent-host-port"`
}

type ObservabilityConfig struct {
	Metrics string       `yaml:"metrics-addr"`
	Health  int          `yaml:"health-port"`
	Jaeger  JaegerConfig `yaml:"jaeger"`
}

func (o *ObservabilityConfig) MetricsAddr() string {
	return o.Metrics
}

func (o *ObservabilityConfig) HealthPort() int {
	return o.Health
}

func (o *ObservabilityConfig) TracingEnabled() bool {
	return o.Jaeger.On
}

func (o *ObservabilityConfig) JaegerAgent() string {
	return o.Jaeger.AgentAddr
}
