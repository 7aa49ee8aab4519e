package config

type TelegramConfig struct {
	ApiToken string `yaml:"token"`
}

func (t *TelegramConfig) Token() string {
	return t.ApiToken
}

// Enabled is false when no bot token is configured.
func (t *TelegramConfig) Enabled() bool {
	return t.ApiToken != ""
}
