// Package pubsub publishes run deltas to a Google Cloud Pub/Sub topic.
package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/JakeFAU/noticewatch/internal/notice"
)

// Attribute keys set on every message.
const (
	AttrRunID   = "run_id"
	AttrEntries = "entries"
)

// Config identifies the topic.
type Config struct {
	ProjectID string
	Topic     string
}

// Notifier publishes one message per delta.
type Notifier struct {
	client    *pubsub.Client
	publisher *pubsub.Publisher
	logger    *zap.Logger
}

// New wraps an existing topic publisher. The caller owns its lifecycle.
func New(publisher *pubsub.Publisher, logger *zap.Logger) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{publisher: publisher, logger: logger.Named("pubsub")}
}

// Dial connects to Pub/Sub, verifies the topic is active and returns a Notifier
// that owns the client. It authenticates with Application Default Credentials
// unless opts say otherwise.
func Dial(ctx context.Context, cfg Config, logger *zap.Logger, opts ...option.ClientOption) (*Notifier, error) {
	if cfg.ProjectID == "" || cfg.Topic == "" {
		return nil, errors.New("pubsub project_id and topic are required")
	}
	client, err := pubsub.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}

	name := fullTopicName(cfg.ProjectID, cfg.Topic)
	topic, err := client.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: name})
	if err != nil {
		closeClient(client, logger)
		return nil, fmt.Errorf("get pubsub topic %q: %w", cfg.Topic, err)
	}
	if topic.GetState() != pubsubpb.Topic_ACTIVE && topic.GetState() != pubsubpb.Topic_STATE_UNSPECIFIED {
		closeClient(client, logger)
		return nil, fmt.Errorf("pubsub topic %q is not active (state %s)", cfg.Topic, topic.GetState())
	}

	n := New(client.Publisher(name), logger)
	n.client = client
	return n, nil
}

// Notify marshals delta to JSON and waits for the server to acknowledge it.
func (n *Notifier) Notify(ctx context.Context, delta notice.Delta) error {
	if n.publisher == nil {
		return errors.New("pubsub publisher is not configured")
	}
	msg, err := buildMessage(ctx, delta)
	if err != nil {
		return err
	}
	id, err := n.publisher.Publish(ctx, msg).Get(ctx)
	if err != nil {
		return fmt.Errorf("publish delta: %w", err)
	}
	n.logger.Info("Published delta",
		zap.String("run_id", delta.RunID),
		zap.String("message_id", id),
		zap.Int("entries", delta.Len()))
	return nil
}

// Close flushes pending publishes and closes the client when Dial created it.
func (n *Notifier) Close() error {
	if n.publisher != nil {
		n.publisher.Stop()
	}
	if n.client == nil {
		return nil
	}
	if err := n.client.Close(); err != nil {
		return fmt.Errorf("close pubsub client: %w", err)
	}
	return nil
}

func buildMessage(ctx context.Context, delta notice.Delta) (*pubsub.Message, error) {
	if delta.Entries == nil {
		delta.Entries = []notice.DeltaEntry{}
	}
	data, err := json.Marshal(delta)
	if err != nil {
		return nil, fmt.Errorf("marshal delta: %w", err)
	}
	msg := &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			AttrRunID:   delta.RunID,
			AttrEntries: fmt.Sprint(delta.Len()),
		},
	}
	otel.GetTextMapPropagator().Inject(ctx, &pubsubCarrier{attrs: msg.Attributes})
	return msg, nil
}

func fullTopicName(projectID, topicID string) string {
	return fmt.Sprintf("projects/%s/topics/%s", projectID, topicID)
}

func closeClient(client *pubsub.Client, logger *zap.Logger) {
	if err := client.Close(); err != nil && logger != nil {
		logger.Warn("Failed to close pubsub client", zap.Error(err))
	}
}

// pubsubCarrier implements propagation.TextMapCarrier for Pub/Sub attributes.
type pubsubCarrier struct {
	attrs map[string]string
}

func (c *pubsubCarrier) Get(key string) string {
	return c.attrs[key]
}

func (c *pubsubCarrier) Set(key, value string) {
	c.attrs[key] = value
}

func (c *pubsubCarrier) Keys() []string {
	keys := make([]string, 0, len(c.attrs))
	for k := range c.attrs {
		keys = append(keys, k)
	}
	return keys
}
