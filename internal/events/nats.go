package events

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// NATSConfig configures the NATS event mirror.
type NATSConfig struct {
	Servers        []string
	SubjectPrefix  string
	Token          string
	ConnectTimeout time.Duration
}

// publisherConn is the subset of *nats.Conn the mirror uses.
type publisherConn interface {
	Publish(subject string, data []byte) error
	Drain() error
	Close()
}

// NATSMirror republishes events on "<prefix>.<eventType>".
type NATSMirror struct {
	conn   publisherConn
	prefix string
}

// ConnectNATS dials the configured servers.
func ConnectNATS(cfg NATSConfig) (*NATSMirror, error) {
	if len(cfg.Servers) == 0 {
		return nil, errors.New("no NATS servers configured")
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 2 * time.Second
	}

	options := []nats.Option{
		nats.Name("consult-transcript-service"),
		nats.Timeout(cfg.ConnectTimeout),
	}
	if cfg.Token != "" {
		options = append(options, nats.Token(cfg.Token))
	}

	url := strings.Join(cfg.Servers, ",")
	conn, err := nats.Connect(url, options...)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	log.Info().Str("servers", url).Str("prefix", cfg.SubjectPrefix).Msg("Connected to NATS")
	return newNATSMirror(conn, cfg.SubjectPrefix), nil
}

func newNATSMirror(conn publisherConn, prefix string) *NATSMirror {
	prefix = strings.TrimSuffix(prefix, ".")
	if prefix == "" {
		prefix = "consult"
	}
	return &NATSMirror{conn: conn, prefix: prefix}
}

// Subject returns the subject an event type is published on.
func (m *NATSMirror) Subject(eventType string) string {
	return m.prefix + "." + eventType
}

func (m *NATSMirror) Publish(eventType string, payload []byte) error {
	return m.conn.Publish(m.Subject(eventType), payload)
}

func (m *NATSMirror) Close() error {
	log.Info().Msg("Closing NATS connection")
	err := m.conn.Drain()
	m.conn.Close()
	return err
}
