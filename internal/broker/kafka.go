package appkafka

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaWriter publishes domain events.
type KafkaWriter interface {
	WriteMessages(messages ...kafka.Message) error
	Close() error
}

// KafkaReader consumes domain events.
type KafkaReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

type KafkaConfig struct {
	Brokers      []string
	Topic        string
	Partition    int           // used for leader writes
	WriteTimeout time.Duration
	ReadTimeout  time.Duration // max wait per consumer-group fetch
	GroupID      string
}

// ParseBrokers splits a comma separated broker list.
func ParseBrokers(raw string) []string {
	var out []string
	for _, b := range strings.Split(raw, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// RealKafkaWriter writes to the partition leader over a single connection.
type RealKafkaWriter struct {
	conn   *kafka.Conn
	config KafkaConfig
}

func NewKafkaWriter(ctx context.Context, cfg KafkaConfig) (*RealKafkaWriter, error) {
	if len(cfg.Brokers) == 0 {
		cfg.Brokers = []string{"localhost:9092"}
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 10 * time.Second
	}

	conn, err := kafka.DialLeader(ctx, "tcp", cfg.Brokers[0], cfg.Topic, cfg.Partition)
	if err != nil {
		return nil, err
	}

	return &RealKafkaWriter{
		conn:   conn,
		config: cfg,
	}, nil
}

func (w *RealKafkaWriter) WriteMessages(messages ...kafka.Message) error {
	if w.conn == nil {
		return errors.New("kafka connection is nil")
	}
	w.conn.SetWriteDeadline(time.Now().Add(w.config.WriteTimeout))
	_, err := w.conn.WriteMessages(messages...)
	return err
}

func (w *RealKafkaWriter) Close() error {
	if w.conn != nil {
		return w.conn.Close()
	}
	return nil
}

// RealKafkaReader reads as a member of the activity consumer group.
type RealKafkaReader struct {
	reader *kafka.Reader
}

func NewKafkaReader(cfg KafkaConfig) KafkaReader {
	if len(cfg.Brokers) == 0 {
		cfg.Brokers = []string{"localhost:9092"}
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 10 * time.Second
	}

	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		GroupID:        cfg.GroupID,
		Topic:          cfg.Topic,
		MinBytes:       1,
		MaxBytes:       10e6, // 10MB
		MaxWait:        cfg.ReadTimeout,
		CommitInterval: time.Second,
	})
	return &RealKafkaReader{reader: r}
}

func (r *RealKafkaReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	return r.reader.ReadMessage(ctx)
}

func (r *RealKafkaReader) Close() error {
	return r.reader.Close()
}
