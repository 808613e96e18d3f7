package kafka

import (
	"context"
	"encoding/json"

	"github.com/IBM/sarama"
)

type Producer interface {
	SendFeedback(ctx context.Context, topic string, message *FeedbackMessage) error
	Close() error
}

type FeedbackMessage struct {
	DecisionID     string  `json:"decision_id"`
	Reward         float64 `json:"reward"`
	ActualThreat   bool    `json:"actual_threat"`
	FeedbackSource string  `json:"feedback_source"`
}

type producer struct {
	producer sarama.SyncProducer
}

func NewProducer(brokers []string) (Producer, error) {
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Return.Successes = true

	p, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, err
	}

	return &producer{producer: p}, nil
}

// NewProducerFrom wraps an existing sync producer, e.g. a sarama mock.
func NewProducerFrom(p sarama.SyncProducer) Producer {
	return &producer{producer: p}
}

func (p *producer) SendFeedback(ctx context.Context, topic string, message *FeedbackMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}

	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(message.DecisionID),
		Value: sarama.ByteEncoder(data),
	}

	_, _, err = p.producer.SendMessage(msg)
	return err
}

func (p *producer) Close() error {
	return p.producer.Close()
}
