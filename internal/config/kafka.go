package config

type KafkaConfig struct {
	On         bool     `yaml:"enabled"`
	BrokerList []string `yaml:"brokers"`
	Consumer   string   `yaml:"consumer-group"`
	UpdTopic   string   `yaml:"updates-topic"`
	CmdTopic   string   `yaml:"commands-topic"`
}

func (s *KafkaConfig) Enabled() bool {
	return s.On && len(s.BrokerList) > 0
}

func (s *KafkaConfig) Brokers() []string {
	return s.BrokerList
}

func (s *KafkaConfig) ConsumerGroup() string {
	return s.Consumer
}

func (s *KafkaConfig) UpdatesTopic() string {
	if s.UpdTopic == "" {
		return "rates.updated"
	}
	return s.UpdTopic
}

// CommandsTopic is empty when remote commands are disabled.
func (s *KafkaConfig) CommandsTopic() string {
	return s.CmdTopic
}
