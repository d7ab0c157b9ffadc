package appkafka

import (
	"context"
	"errors"
	"sync"

	"github.com/segmentio/kafka-go"
)

// MockKafka records written messages and serves a queue of messages to read.
type MockKafka struct {
	mu              sync.Mutex
	WrittenMessages []kafka.Message // messages written via WriteMessages
	ReadMessages    []kafka.Message // queue of messages to be read via ReadMessage
	ShouldFail      bool            // simulate failures during write or read operations
}

func (m *MockKafka) WriteMessages(messages ...kafka.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ShouldFail {
		return errors.New("mock kafka write failed")
	}
	m.WrittenMessages = append(m.WrittenMessages, messages...)
	return nil
}

// ReadMessage pops the next queued message.
func (m *MockKafka) ReadMessage(ctx context.Context) (kafka.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ShouldFail {
		return kafka.Message{}, errors.New("mock kafka read failed")
	}
	if len(m.ReadMessages) == 0 {
		return kafka.Message{}, errors.New("no messages")
	}
	msg := m.ReadMessages[0]
	m.ReadMessages = m.ReadMessages[1:]
	return msg, nil
}

// Events decodes everything written so far, skipping undecodable messages.
func (m *MockKafka) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Event
	for _, msg := range m.WrittenMessages {
		if ev, err := Decode(msg.Value); err == nil {
			out = append(out, ev)
		}
	}
	return out
}

// Close is a no-op.
func (m *MockKafka) Close() error { return nil }

// MockKafkaFail always fails.
type MockKafkaFail struct{}

func (m *MockKafkaFail) WriteMessages(messages ...kafka.Message) error {
	return errors.New("mock kafka write failed")
}

func (m *MockKafkaFail) ReadMessage(ctx context.Context) (kafka.Message, error) {
	return kafka.Message{}, errors.New("mock kafka read failed")
}

func (m *MockKafkaFail) Close() error { return nil }
