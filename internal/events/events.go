// Package events publishes domain events (selection changes, indexing jobs)
// to an optional broker so other systems can follow what the bot does.
// Publishing is best effort: callers log failures and carry on.
package events

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"Sailor-Bot/internal/config"
	xerrors "Sailor-Bot/internal/errors"
)

// Type 是事件名称。
type Type string

const (
	TypeSelectionChanged Type = "selection.changed"
	TypeIndexingStarted  Type = "indexing.started"
)

// Event 是发送给订阅方的事件信封。
type Event struct {
	ID         string            `json:"id"`
	Type       Type              `json:"type"`
	OccurredAt time.Time         `json:"occurred_at"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// New 为事件生成 ID 并记录当前时间。
func New(t Type, attrs map[string]string) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       t,
		OccurredAt: time.Now().UTC(),
		Attributes: attrs,
	}
}

// Encode 把事件编码为 JSON。
func (e Event) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// Publisher 负责投递事件。
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// Noop 丢弃所有事件。
type Noop struct{}

func (Noop) Publish(context.Context, Event) error { return nil }
func (Noop) Close() error { return nil }

// Memory 按顺序保存已发布的事件，用于测试。
type Memory struct {
	mu     sync.Mutex
	events []Event
}

func (m *Memory) Publish(_ context.Context, event Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

func (m *Memory) Close() error { return nil }

// Events 返回已发布事件的副本。
func (m *Memory) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Event(nil), m.events...)
}

// Open 按 cfg.Driver 创建发布者。
func Open(cfg config.EventsConfig) (Publisher, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "none":
		return Noop{}, nil
	case "memory":
		return &Memory{}, nil
	case "rabbitmq":
		return NewRabbitMQ(cfg.RabbitMQ)
	default:
		return nil, xerrors.New(xerrors.CodeConfiguration, "unsupported events driver",
			xerrors.WithMetadata("reason", cfg.Driver))
	}
}
