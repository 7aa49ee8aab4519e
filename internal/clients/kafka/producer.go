package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Shopify/sarama"
	"github.com/google/uuid"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"max.ks1230/currency-rates/internal/entity/currency"
	"max.ks1230/currency-rates/internal/logger"
)

type producerConfig interface {
	Brokers() []string
	UpdatesTopic() string
}

// RatesUpdated is published after every successful fetch.
type RatesUpdated struct {
	ID        string             `json:"id"`
	Source    string             `json:"source"`
	AsOfDate  string             `json:"as_of_date"`
	FetchedAt time.Time          `json:"fetched_at"`
	Rates     map[string]float64 `json:"rates"`
}

type Producer struct {
	producer sarama.SyncProducer
	topic    string
}

func NewProducer(cfg producerConfig) (*Producer, error) {
	config := sarama.NewConfig()
	config.Version = sarama.V2_5_0_0
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Return.Successes = true

	producer, err := sarama.NewSyncProducer(cfg.Brokers(), config)
	if err != nil {
		return nil, errors.Wrap(err, "new sync producer")
	}
	return NewProducerWithClient(producer, cfg.UpdatesTopic()), nil
}

func NewProducerWithClient(producer sarama.SyncProducer, topic string) *Producer {
	return &Producer{
		producer: producer,
		topic:    topic,
	}
}

// PublishUpdate sends snap keyed by its source code, so updates for one
// source stay ordered within a partition.
func (p *Producer) PublishUpdate(ctx context.Context, snap currency.Snapshot) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "publishUpdate")
	defer span.Finish()

	event := RatesUpdated{
		ID:        uuid.NewString(),
		Source:    snap.SourceCode,
		AsOfDate:  snap.AsOfDate.Format(currency.DateLayout),
		FetchedAt: snap.FetchedAt,
		Rates:     snap.Rates,
	}
	message, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, "marshal event")
	}

	partition, offset, err := p.producer.SendMessage(&sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(snap.SourceCode),
		Value: sarama.ByteEncoder(message),
	})
	if err != nil {
		return errors.Wrap(err, "send message")
	}
	logger.Debug("rates update published",
		zap.String("id", event.ID), zap.Int32("partition", partition), zap.Int64("offset", offset))
	return nil
}

func (p *Producer) Close() {
	err := p.producer.Close()
	if err != nil {
		logger.Error("failed to close producer", zap.Error(err))
	}
}
