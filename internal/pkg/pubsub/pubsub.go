package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"
)

const (
	ChannelAnalysisProgress = "analysis_progress"

	TypeJobProgress = "job_progress"
)

// 任务状态
const (
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// ProgressMessage 进度消息
type ProgressMessage struct {
	Type      string  `json:"type"`
	SessionID string  `json:"session_id"`
	JobID     string  `json:"job_id"`
	Filename  string  `json:"filename,omitempty"`
	Status    string  `json:"status"`
	Phase     string  `json:"phase"`
	Progress  float64 `json:"progress"`
	Message   string  `json:"message,omitempty"`
	Error     string  `json:"error,omitempty"`
	RecordID  int64   `json:"record_id,omitempty"`
}

// Terminal 是否为任务的最后一条消息
func (m *ProgressMessage) Terminal() bool {
	return m.Status == StatusSucceeded || m.Status == StatusFailed
}

// Publisher Redis 发布者
type Publisher struct {
	client  *redis.Client
	channel string
}

// NewPublisher 创建发布者
func NewPublisher(client *redis.Client) *Publisher {
	return &Publisher{client: client, channel: ChannelAnalysisProgress}
}

// PublishProgress 发布进度消息
func (p *Publisher) PublishProgress(ctx context.Context, msg *ProgressMessage) error {
	if msg.Type == "" {
		msg.Type = TypeJobProgress
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal progress message: %w", err)
	}

	return p.client.Publish(ctx, p.channel, data).Err()
}

// Subscriber Redis 订阅者
type Subscriber struct {
	client  *redis.Client
	channel string
}

// NewSubscriber 创建订阅者
func NewSubscriber(client *redis.Client) *Subscriber {
	return &Subscriber{client: client, channel: ChannelAnalysisProgress}
}

// Subscribe 订阅进度消息，阻塞直到 ctx 取消或连接关闭。
// ready 非空时在订阅确认后被关闭
func (s *Subscriber) Subscribe(ctx context.Context, handler func(*ProgressMessage), ready chan<- struct{}) error {
	ps := s.client.Subscribe(ctx, s.channel)
	defer ps.Close()

	// 等待订阅确认，避免之前发布的消息丢失
	if _, err := ps.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", s.channel, err)
	}
	if ready != nil {
		close(ready)
	}

	ch := ps.Channel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}

			var progressMsg ProgressMessage
			if err := json.Unmarshal([]byte(msg.Payload), &progressMsg); err != nil {
				log.Warn().Err(err).Str("channel", s.channel).Msg("drop malformed progress message")
				continue
			}

			handler(&progressMsg)
		}
	}
}
