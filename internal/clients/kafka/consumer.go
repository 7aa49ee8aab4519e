package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Shopify/sarama"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"max.ks1230/currency-rates/internal/logger"
	"max.ks1230/currency-rates/internal/model/rates"
)

const (
	commandRefresh = "refresh"
	commandSwap    = "swap"
	commandTarget  = "target"
	commandSource  = "source"
)

type consumerConfig interface {
	Brokers() []string
	ConsumerGroup() string
	CommandsTopic() string
}

type commander interface {
	Refresh(ctx context.Context) rates.RefreshOutcome
	Swap(ctx context.Context) error
	SetTarget(ctx context.Context, code string) error
	SetSource(ctx context.Context, code string) error
}

// Command is a remote request to the engine, e.g. {"command":"target","code":"EUR"}.
type Command struct {
	Command string `json:"command"`
	Code    string `json:"code,omitempty"`
}

type Consumer struct {
	consumerGroup sarama.ConsumerGroup
	topic         string
	engine        commander
}

func NewConsumer(cfg consumerConfig, engine commander) (*Consumer, error) {
	config := sarama.NewConfig()
	config.Version = sarama.V2_5_0_0
	config.Consumer.Offsets.Initial = sarama.OffsetNewest

	consumerGroup, err := sarama.NewConsumerGroup(cfg.Brokers(), cfg.ConsumerGroup(), config)
	if err != nil {
		return nil, errors.Wrap(err, "new consumer group")
	}
	return &Consumer{
		consumerGroup: consumerGroup,
		topic:         cfg.CommandsTopic(),
		engine:        engine,
	}, nil
}

func (c *Consumer) StartConsuming(ctx context.Context) error {
	defer c.close()
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
			err := c.consumerGroup.Consume(ctx, []string{c.topic}, c)
			if err != nil {
				return errors.Wrap(err, fmt.Sprintf("consume from %s", c.topic))
			}
		}
	}
}

func (c *Consumer) close() {
	if err := c.consumerGroup.Close(); err != nil {
		logger.Error("failed to close consumer group", zap.Error(err))
	}
}

func (c *Consumer) Setup(sarama.ConsumerGroupSession) error {
	logger.Info("consumer - setup")
	return nil
}

func (c *Consumer) Cleanup(sarama.ConsumerGroupSession) error {
	logger.Info("consumer - cleanup")
	return nil
}

func (c *Consumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for message := range claim.Messages() {
		var cmd Command
		err := json.Unmarshal(message.Value, &cmd)
		if err != nil {
			logger.Error("cannot unmarshal kafka message", zap.Error(err))
		} else {
			logger.Info(
				"received command",
				zap.ByteString("key", message.Key),
				zap.String("command", cmd.Command),
				zap.String("code", cmd.Code),
			)
			if err = c.processCommand(session.Context(), cmd); err != nil {
				logger.Error("failed to process command", zap.String("command", cmd.Command), zap.Error(err))
			}
		}
		session.MarkMessage(message, "")
	}

	return nil
}

func (c *Consumer) processCommand(ctx context.Context, cmd Command) error {
	switch cmd.Command {
	case commandRefresh:
		outcome := c.engine.Refresh(ctx)
		logger.Info("remote refresh done", zap.Stringer("outcome", outcome.Kind))
		return outcome.Err
	case commandSwap:
		return c.engine.Swap(ctx)
	case commandTarget:
		return c.engine.SetTarget(ctx, cmd.Code)
	case commandSource:
		return c.engine.SetSource(ctx, cmd.Code)
	default:
		return fmt.Errorf("unknown command %q", cmd.Command)
	}
}
