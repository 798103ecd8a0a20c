package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"
)

// Envelope is the JSON body of every event published by the storefront.
type Envelope struct {
	Type       string    `json:"type"`
	Key        string    `json:"key,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
	Data       any       `json:"data"`
}

// TopicPublisher publishes storefront events (contact.submitted, order.created) to one topic.
type TopicPublisher struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
	now     func() time.Time
}

// NewTopicPublisher wraps topic. Messages carrying a key are published with it as the
// ordering key when the topic has message ordering enabled.
func NewTopicPublisher(topic *pubsub.Topic) (*TopicPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub publisher: topic is required")
	}
	return &TopicPublisher{topic: topic, marshal: json.Marshal, now: time.Now}, nil
}

// Publish sends payload as an Envelope and waits for the server id.
func (p *TopicPublisher) Publish(ctx context.Context, eventType, key string, payload any) (string, error) {
	if p == nil || p.topic == nil {
		return "", errors.New("pubsub publisher: not initialised")
	}
	eventType = strings.TrimSpace(eventType)
	if eventType == "" {
		return "", errors.New("pubsub publisher: event type is required")
	}
	key = strings.TrimSpace(key)

	data, err := p.marshal(Envelope{Type: eventType, Key: key, OccurredAt: p.now().UTC(), Data: payload})
	if err != nil {
		return "", fmt.Errorf("marshal %s event: %w", eventType, err)
	}

	msg := &pubsub.Message{
		Data:       data,
		Attributes: map[string]string{"eventType": eventType},
	}
	if key != "" {
		msg.Attributes["key"] = key
		if p.topic.EnableMessageOrdering {
			msg.OrderingKey = key
		}
	}

	id, err := p.topic.Publish(ctx, msg).Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish %s event: %w", eventType, err)
	}
	return id, nil
}
