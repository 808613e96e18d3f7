package feedback

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"threatAnalyzer/worker/config"
	"threatAnalyzer/worker/kafka"
)

// Emitter reports a confirmed threat back to the decision engine.
type Emitter interface {
	Emit(ctx context.Context, decisionID string, reward float64, isThreat bool) error
	Close() error
}

// New picks the backend named by cfg.Mode.
func New(cfg *config.Config, logger *zap.Logger) (Emitter, error) {
	switch cfg.Feedback.Mode {
	case "http":
		return NewHTTPEmitter(cfg.Feedback), nil
	case "kafka":
		p, err := kafka.NewProducer(cfg.KafkaBrokerList())
		if err != nil {
			return nil, fmt.Errorf("kafka producer: %w", err)
		}
		return NewKafkaEmitter(p, cfg.Feedback), nil
	case "log":
		return NewLogEmitter(cfg.Feedback.Source, logger), nil
	default:
		return nil, fmt.Errorf("unknown feedback mode %q", cfg.Feedback.Mode)
	}
}

type HTTPEmitter struct {
	url    string
	source string
	client *http.Client
}

func NewHTTPEmitter(cfg config.FeedbackConfig) *HTTPEmitter {
	return &HTTPEmitter{
		url:    cfg.EngineURL,
		source: cfg.Source,
		client: &http.Client{Timeout: cfg.Timeout.Duration},
	}
}

func (e *HTTPEmitter) Emit(ctx context.Context, decisionID string, reward float64, isThreat bool) error {
	body, err := json.Marshal(kafka.FeedbackMessage{
		DecisionID:     decisionID,
		Reward:         reward,
		ActualThreat:   isThreat,
		FeedbackSource: e.source,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("post feedback: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("feedback endpoint returned %d", resp.StatusCode)
	}
	return nil
}

func (e *HTTPEmitter) Close() error {
	e.client.CloseIdleConnections()
	return nil
}

type KafkaEmitter struct {
	producer kafka.Producer
	topic    string
	source   string
}

func NewKafkaEmitter(p kafka.Producer, cfg config.FeedbackConfig) *KafkaEmitter {
	return &KafkaEmitter{producer: p, topic: cfg.KafkaTopic, source: cfg.Source}
}

func (e *KafkaEmitter) Emit(ctx context.Context, decisionID string, reward float64, isThreat bool) error {
	return e.producer.SendFeedback(ctx, e.topic, &kafka.FeedbackMessage{
		DecisionID:     decisionID,
		Reward:         reward,
		ActualThreat:   isThreat,
		FeedbackSource: e.source,
	})
}

func (e *KafkaEmitter) Close() error {
	return e.producer.Close()
}

// LogEmitter only logs; used when no engine is reachable.
type LogEmitter struct {
	source string
	logger *zap.Logger
}

func NewLogEmitter(source string, logger *zap.Logger) *LogEmitter {
	return &LogEmitter{source: source, logger: logger}
}

func (e *LogEmitter) Emit(ctx context.Context, decisionID string, reward float64, isThreat bool) error {
	e.logger.Info("Feedback",
		zap.String("decision_id", decisionID),
		zap.Float64("reward", reward),
		zap.Bool("actual_threat", isThreat),
		zap.String("feedback_source", e.source),
	)
	return nil
}

func (e *LogEmitter) Close() error { return nil }
