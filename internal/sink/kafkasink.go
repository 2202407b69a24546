package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/confluentinc/confluent-kafka-go/v2/kafka"

	"github.com/shortontech/showfor/internal/event"
)

// KafkaConfig holds configuration for Kafka producer
type KafkaConfig struct {
	Brokers     []string `env:"KAFKA_BROKERS" envSeparator:"," envDefault:"localhost:9092"`
	Topic       string   `env:"KAFKA_TOPIC" envDefault:"showfor.events"`
	Acks        string   `env:"KAFKA_ACKS" envDefault:"all"`
	Compression string   `env:"KAFKA_COMPRESSION"`

	// SASL config
	SASLMechanism string `env:"KAFKA_SASL_MECHANISM"`
	SASLUser      string `env:"KAFKA_SASL_USER"`
	SASLPassword  string `env:"KAFKA_SASL_PASSWORD"`

	// TLS config
	TLSCAPath     string `env:"KAFKA_TLS_CA"`
	TLSSkipVerify bool   `env:"KAFKA_TLS_SKIP_VERIFY" envDefault:"false"`
}

// KafkaSink produces events to Kafka with key=event_id for idempotency
type KafkaSink struct {
	config   KafkaConfig
	producer *kafka.Producer
	logger   *slog.Logger
}

// NewKafkaSinkFromEnv creates a KafkaSink from environment variables
func NewKafkaSinkFromEnv(logger *slog.Logger) (*KafkaSink, error) {
	cfg, err := env.ParseAs[KafkaConfig]()
	if err != nil {
		return nil, fmt.Errorf("kafka sink config: %w", err)
	}
	brokers := cfg.Brokers[:0]
	for _, b := range cfg.Brokers {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	cfg.Brokers = brokers
	return NewKafkaSinkWithConfig(cfg, logger), nil
}

// NewKafkaSink creates a KafkaSink with explicit brokers and topic
func NewKafkaSink(brokers []string, topic string) *KafkaSink {
	return NewKafkaSinkWithConfig(KafkaConfig{Brokers: brokers, Topic: topic, Acks: "all"}, nil)
}

func NewKafkaSinkWithConfig(cfg KafkaConfig, logger *slog.Logger) *KafkaSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &KafkaSink{config: cfg, logger: logger.With("component", "sink", "sink", "kafka")}
}

func (s *KafkaSink) Name() string { return "kafka" }

// configMap builds the librdkafka producer settings.
func (s *KafkaSink) configMap() kafka.ConfigMap {
	configMap := kafka.ConfigMap{
		"bootstrap.servers": strings.Join(s.config.Brokers, ","),
		"acks":              s.config.Acks,
		"retries":           10,
		"retry.backoff.ms":  100,
		"batch.size":        16384,
		"linger.ms":         10,
	}

	if s.config.Compression != "" {
		configMap["compression.type"] = s.config.Compression
	}

	if s.config.SASLMechanism != "" {
		configMap["security.protocol"] = "SASL_SSL"
		configMap["sasl.mechanism"] = s.config.SASLMechanism
		if s.config.SASLUser != "" {
			configMap["sasl.username"] = s.config.SASLUser
		}
		if s.config.SASLPassword != "" {
			configMap["sasl.password"] = s.config.SASLPassword
		}
	}

	if s.config.TLSCAPath != "" {
		if s.config.SASLMechanism == "" {
			configMap["security.protocol"] = "SSL"
		}
		configMap["ssl.ca.location"] = s.config.TLSCAPath
	}

	if s.config.TLSSkipVerify {
		configMap["ssl.endpoint.identification.algorithm"] = "none"
	}
	return configMap
}

func (s *KafkaSink) Start(ctx context.Context) error {
	configMap := s.configMap()
	producer, err := kafka.NewProducer(&configMap)
	if err != nil {
		return fmt.Errorf("failed to create Kafka producer: %w", err)
	}
	s.producer = producer

	go s.handleDeliveryReports(ctx)
	return nil
}

func (s *KafkaSink) Enqueue(e event.Event) error {
	if s.producer == nil {
		return fmt.Errorf("kafka producer not initialized")
	}

	value, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to serialize event: %w", err)
	}

	msg := &kafka.Message{
		TopicPartition: kafka.TopicPartition{
			Topic:     &s.config.Topic,
			Partition: kafka.PartitionAny,
		},
		Key:   []byte(e.EventID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(e.Type)},
			{Key: "schema", Value: []byte("showfor.v1")},
		},
	}

	if err := s.producer.Produce(msg, nil); err != nil {
		return fmt.Errorf("failed to produce message: %w", err)
	}
	return nil
}

func (s *KafkaSink) Close() error {
	if s.producer == nil {
		return nil
	}

	// wait up to 10 seconds for outstanding messages
	remaining := s.producer.Flush(10 * 1000)
	if remaining > 0 {
		return fmt.Errorf("failed to flush %d remaining messages", remaining)
	}
	s.producer.Close()
	return nil
}

func (s *KafkaSink) handleDeliveryReports(ctx context.Context) {
	events := s.producer.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			switch e := ev.(type) {
			case *kafka.Message:
				if e.TopicPartition.Error != nil {
					s.logger.Warn("delivery failed", "key", string(e.Key), "err", e.TopicPartition.Error)
				}
			case kafka.Error:
				s.logger.Error("client error", "code", e.Code().String(), "err", e)
			}
		}
	}
}
