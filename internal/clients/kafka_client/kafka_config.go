package kafka_client

import "github.com/spacesedan/sentiboard/config"

type KafkaConfig struct {
	Broker          string
	Topic           string
	TransactionalID string
}

func GetKafkaConfig(cfg config.StoreConfig) KafkaConfig {
	topic := cfg.KafkaResultsTopic
	if topic == "" {
		topic = KAFKA_TOPIC_SENTIMENT_RESULTS
	}
	return KafkaConfig{
		Broker:          cfg.KafkaBroker,
		Topic:           topic,
		TransactionalID: "sentiboard-store-results",
	}
}
