package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"lxcdriver/internal/common"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Type 生命周期事件类型
type Type string

const (
	TypeCreated          Type = "created"
	TypeStarted          Type = "started"
	TypeHalted           Type = "halted"
	TypeDestroyed        Type = "destroyed"
	TypeFoldersShared    Type = "folders_shared"
	TypeRootfsCompressed Type = "rootfs_compressed"
)

// Event 生命周期事件
type Event struct {
	ID        string            `json:"id"`
	Container string            `json:"container"`
	Type      Type              `json:"type"`
	Time      time.Time         `json:"time"`
	Details   map[string]string `json:"details,omitempty"`
}

// NewEvent 创建事件
func NewEvent(container string, t Type, details map[string]string) Event {
	return Event{
		ID:        uuid.NewString(),
		Container: container,
		Type:      t,
		Time:      time.Now().UTC(),
		Details:   details,
	}
}

// Publisher 事件发布接口
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// NopPublisher 丢弃所有事件
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }
func (NopPublisher) Close() error                         { return nil }

// messageWriter kafka.Writer 的最小接口，便于测试替换
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher 将事件写入 Kafka 主题，以容器名作为消息键
type KafkaPublisher struct {
	writer messageWriter
	logger *zap.Logger
}

// NewKafkaPublisher 创建 Kafka 发布器
func NewKafkaPublisher(config common.EventsConfig) *KafkaPublisher {
	return newKafkaPublisher(&kafka.Writer{
		Addr:         kafka.TCP(config.Brokers...),
		Topic:        config.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
	})
}

func newKafkaPublisher(w messageWriter) *KafkaPublisher {
	return &KafkaPublisher{
		writer: w,
		logger: common.ComponentLogger("event-publisher"),
	}
}

// Publish 发布事件
func (p *KafkaPublisher) Publish(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	if err := p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.Container),
		Value: payload,
		Time:  event.Time,
	}); err != nil {
		return fmt.Errorf("failed to publish %s event for %s: %w", event.Type, event.Container, err)
	}
	p.logger.Debug("Event published",
		zap.String("container", event.Container),
		zap.String("type", string(event.Type)))
	return nil
}

// Close 关闭底层 writer
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// NewPublisher 根据配置创建发布器，未启用时返回 NopPublisher
func NewPublisher(config common.EventsConfig) Publisher {
	if !config.Enabled {
		return NopPublisher{}
	}
	return NewKafkaPublisher(config)
}

// MemoryPublisher 在内存中保存事件
type MemoryPublisher struct {
	mu     sync.Mutex
	events []Event
}

// Publish 保存事件
func (m *MemoryPublisher) Publish(_ context.Context, event Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

// Close 无操作
func (m *MemoryPublisher) Close() error { return nil }

// Events 返回已保存事件的副本
func (m *MemoryPublisher) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Event(nil), m.events...)
}
