package config

const (
	BackendFile      = "file"
	BackendMemory    = "memory"
	BackendPostgres  = "postgres"
	BackendMemcached = "memcached"
)

type StorageConfig struct {
	Kind string `yaml:"backend"`
}

func (s *StorageConfig) Backend() string {
	if s.Kind == "" {
		return BackendFile
	}
	return s.Kind
}
