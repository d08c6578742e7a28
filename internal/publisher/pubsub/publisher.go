// Package pubsub implements a Google Cloud Pub/Sub publisher.
package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"cloud.google.com/go/pubsub"
)

// Publisher sends JSON payloads to one Pub/Sub topic.
type Publisher struct {
	topic *pubsub.Topic
}

// New creates a Publisher for topicID on client.
func New(client *pubsub.Client, topicID string) (*Publisher, error) {
	if client == nil {
		return nil, errors.New("pubsub client is required")
	}
	if topicID == "" {
		return nil, errors.New("pubsub topic is required")
	}
	return &Publisher{topic: client.Topic(topicID)}, nil
}

// CheckTopic verifies the topic exists.
func (p *Publisher) CheckTopic(ctx context.Context) error {
	ok, err := p.topic.Exists(ctx)
	if err != nil {
		return fmt.Errorf("check topic %s: %w", p.topic.ID(), err)
	}
	if !ok {
		return fmt.Errorf("topic %s does not exist", p.topic.ID())
	}
	return nil
}

// Publish marshals payload to JSON and waits for the server ID. The topic
// argument is informational; messages always go to the configured topic.
func (p *Publisher) Publish(ctx context.Context, topic string, payload any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	msg := &pubsub.Message{
		Data:       data,
		Attributes: map[string]string{"kind": topic},
	}
	id, err := p.topic.Publish(ctx, msg).Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish message: %w", err)
	}
	return id, nil
}

// Close flushes pending messages.
func (p *Publisher) Close() error {
	p.topic.Stop()
	return nil
}
