package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/sirupsen/logrus"

	"agentorchestrator/src/model"
)

const (
	EventCEODecision = "ceo_decision"
	EventTrade       = "trade"

	source        = "agentorchestrator"
	schemaVersion = "1"
)

// Envelope wraps every published payload.
type Envelope struct {
	EventType     string      `json:"event_type"`
	Source        string      `json:"source"`
	SchemaVersion string      `json:"schema_version"`
	SessionID     string      `json:"session_id"`
	Timestamp     time.Time   `json:"timestamp"`
	Data          interface{} `json:"data"`
}

// Publisher mirrors the audit trail onto Kafka topics. Messages are keyed by
// session id so one session's events stay ordered within a partition.
type Publisher struct {
	producer       sarama.SyncProducer
	decisionsTopic string
	tradesTopic    string
	log            *logrus.Entry
	now            func() time.Time
}

// NewPublisher dials the brokers in cfg.
func NewPublisher(cfg Config, log *logrus.Entry) (*Publisher, error) {
	config := sarama.NewConfig()
	config.ClientID = cfg.ClientID
	config.Version = sarama.V2_8_0_0
	config.Producer.RequiredAcks = sarama.WaitForLocal
	config.Producer.Retry.Max = 3
	config.Producer.Return.Successes = true

	producer, err := sarama.NewSyncProducer(cfg.Brokers, config)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	return NewPublisherWithProducer(producer, cfg, log), nil
}

func NewPublisherWithProducer(producer sarama.SyncProducer, cfg Config, log *logrus.Entry) *Publisher {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Publisher{
		producer:       producer,
		decisionsTopic: cfg.DecisionsTopic,
		tradesTopic:    cfg.TradesTopic,
		log:            log.WithField("component", "events"),
		now:            time.Now,
	}
}

func (p *Publisher) SaveCEODecision(ctx context.Context, sessionID string, decision model.CEODecision) error {
	return p.publish(ctx, p.decisionsTopic, Envelope{
		EventType: EventCEODecision,
		SessionID: sessionID,
		Timestamp: decision.Timestamp,
		Data:      decision,
	})
}

func (p *Publisher) SaveTrade(ctx context.Context, trade *model.TradeRecord) error {
	return p.publish(ctx, p.tradesTopic, Envelope{
		EventType: EventTrade,
		SessionID: trade.SessionID,
		Timestamp: trade.CreatedAt,
		Data:      trade,
	})
}

func (p *Publisher) publish(ctx context.Context, topic string, env Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	env.Source = source
	env.SchemaVersion = schemaVersion
	if env.Timestamp.IsZero() {
		env.Timestamp = p.now().UTC()
	}

	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", env.EventType, err)
	}

	partition, offset, err := p.producer.SendMessage(&sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(env.SessionID),
		Value: sarama.ByteEncoder(payload),
	})
	if err != nil {
		return fmt.Errorf("publish %s event: %w", env.EventType, err)
	}

	p.log.WithFields(logrus.Fields{
		"topic":      topic,
		"event":      env.EventType,
		"session_id": env.SessionID,
		"partition":  partition,
		"offset":     offset,
	}).Debug("Published event")
	return nil
}

func (p *Publisher) Close() error {
	return p.producer.Close()
}
