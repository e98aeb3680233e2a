// Package events provides event publishing functionality.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"consult-transcript-service/internal/models"
	"consult-transcript-service/internal/observability/metrics"
)

// messageWriter is the subset of *kafka.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Mirror receives a copy of every published event.
type Mirror interface {
	Publish(eventType string, payload []byte) error
	Close() error
}

// Validator checks an event before it leaves the service.
type Validator interface {
	Validate(event any) error
}

// Publisher publishes consultation events to separate Kafka topics.
type Publisher struct {
	writerPartial  messageWriter
	writerFinal    messageWriter
	writerAnalysis messageWriter
	principal      string
	topicPartial   string
	topicFinal     string
	topicAnalysis  string
	enabled        bool
	mirror         Mirror
	validator      Validator
	metrics        *metrics.Metrics
}

// Config holds Kafka publisher configuration.
type Config struct {
	Brokers       []string
	TopicPartial  string
	TopicFinal    string
	TopicAnalysis string
	Principal     string
	Enabled       bool
}

// New creates a new Kafka event publisher with separate topics for partial
// transcripts, final transcripts and analysis results.
func New(cfg *Config) *Publisher {
	m := metrics.DefaultMetrics

	// Handle nil config case
	if cfg == nil {
		log.Info().Msg("Kafka disabled (nil config), using log-only mode")
		return &Publisher{
			enabled: false,
			metrics: m,
		}
	}

	p := &Publisher{
		principal:     cfg.Principal,
		topicPartial:  cfg.TopicPartial,
		topicFinal:    cfg.TopicFinal,
		topicAnalysis: cfg.TopicAnalysis,
		metrics:       m,
	}

	if !cfg.Enabled || len(cfg.Brokers) == 0 {
		log.Info().Msg("Kafka disabled, using log-only mode")
		return p
	}

	// Longer dial timeout for DNS resolution in Kubernetes
	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}
	transport := &kafka.Transport{
		Dial: dialer.DialFunc,
	}

	p.writerPartial = newWriter(cfg.Brokers, cfg.TopicPartial, transport)
	p.writerFinal = newWriter(cfg.Brokers, cfg.TopicFinal, transport)
	p.writerAnalysis = newWriter(cfg.Brokers, cfg.TopicAnalysis, transport)
	p.enabled = true

	log.Info().
		Strs("brokers", cfg.Brokers).
		Str("topicPartial", cfg.TopicPartial).
		Str("topicFinal", cfg.TopicFinal).
		Str("topicAnalysis", cfg.TopicAnalysis).
		Str("principal", cfg.Principal).
		Msg("Kafka publisher initialized")

	return p
}

func newWriter(brokers []string, topic string, transport *kafka.Transport) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireOne,
		Transport:    transport,
	}
}

// SetMirror attaches a secondary sink such as NATS.
func (p *Publisher) SetMirror(m Mirror) {
	p.mirror = m
}

// SetValidator makes every publish validate its event first. Invalid events
// are logged and not published.
func (p *Publisher) SetValidator(v Validator) {
	p.validator = v
}

// PublishPartial publishes an interim transcript keyed by consultation.
func (p *Publisher) PublishPartial(ctx context.Context, event *models.TranscriptEvent) error {
	return p.publish(ctx, p.writerPartial, p.topicPartial, models.EventTranscriptPartial, event.ConsultationID, event)
}

// PublishFinal publishes a final transcript keyed by consultation.
func (p *Publisher) PublishFinal(ctx context.Context, event *models.TranscriptEvent) error {
	return p.publish(ctx, p.writerFinal, p.topicFinal, models.EventTranscriptFinal, event.ConsultationID, event)
}

// PublishAnalysis publishes a completed or failed analysis.
func (p *Publisher) PublishAnalysis(ctx context.Context, event *models.AnalysisEvent) error {
	return p.publish(ctx, p.writerAnalysis, p.topicAnalysis, event.EventType, event.ConsultationID, event)
}

// publish writes to a specific Kafka writer and the mirror.
func (p *Publisher) publish(ctx context.Context, writer messageWriter, topic, eventType, key string, event any) error {
	start := time.Now()

	if p.validator != nil {
		if err := p.validator.Validate(event); err != nil {
			log.Error().Err(err).Str("topic", topic).Str("key", key).Msg("Dropping invalid event")
			p.metrics.RecordKafkaPublish(topic, eventType, err, time.Since(start).Seconds())
			return err
		}
	}

	payload, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("topic", topic).Msg("Failed to marshal event")
		return err
	}

	log.Debug().
		Str("principal", p.principal).
		Str("topic", topic).
		Str("key", key).
		RawJSON("payload", payload).
		Msg("Publishing event")

	if p.mirror != nil {
		if err := p.mirror.Publish(eventType, payload); err != nil {
			log.Warn().Err(err).Str("eventType", eventType).Msg("Failed to mirror event")
		}
	}

	// If Kafka is disabled, just log
	if !p.enabled || writer == nil {
		p.metrics.RecordKafkaPublish(topic, eventType, nil, time.Since(start).Seconds())
		return nil
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "eventType", Value: []byte(eventType)},
			{Key: "principal", Value: []byte(p.principal)},
		},
	}

	if err := writer.WriteMessages(ctx, msg); err != nil {
		log.Error().
			Err(err).
			Str("topic", topic).
			Str("key", key).
			Msg("Failed to write to Kafka")
		p.metrics.RecordKafkaPublish(topic, eventType, err, time.Since(start).Seconds())
		return err
	}

	p.metrics.RecordKafkaPublish(topic, eventType, nil, time.Since(start).Seconds())
	return nil
}

// Close closes the Kafka writers and the mirror.
func (p *Publisher) Close() error {
	var err error
	for name, w := range map[string]messageWriter{
		"partial":  p.writerPartial,
		"final":    p.writerFinal,
		"analysis": p.writerAnalysis,
	} {
		if w == nil {
			continue
		}
		if e := w.Close(); e != nil {
			log.Error().Err(e).Str("writer", name).Msg("Error closing Kafka writer")
			err = e
		}
	}
	if p.mirror != nil {
		if e := p.mirror.Close(); e != nil {
			log.Error().Err(e).Msg("Error closing event mirror")
			err = e
		}
	}
	return err
}
