package mq

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/foodshare/apiserver/config"
	"github.com/google/uuid"
	"google.golang.org/api/option"
)

// ephemeralExpiry is the shortest inactivity expiry Pub/Sub accepts. It
// reclaims per-instance subscriptions left behind by a crash.
const ephemeralExpiry = 24 * time.Hour

// PubSubClient wraps the Google Cloud Pub/Sub SDK client.
type PubSubClient struct {
	client             *pubsub.Client
	subscriptionSuffix string

	// ephemeral is set when the suffix was generated for this process; the
	// subscriptions it creates are deleted on Close.
	ephemeral bool
	mu        sync.Mutex
	created   []*pubsub.Subscription
}

// NewPubSubClient constructs a Pub/Sub client from config.
func NewPubSubClient(ctx context.Context, cfg config.PubSubConfig) (*PubSubClient, error) {
	if strings.TrimSpace(cfg.ProjectID) == "" {
		return nil, errors.New("pubsub project id is required")
	}

	var opts []option.ClientOption
	if strings.TrimSpace(cfg.CredentialsFile) != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := pubsub.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, err
	}

	// Each instance needs its own subscription to receive every event.
	suffix := cfg.SubscriptionSuffix
	ephemeral := suffix == ""
	if ephemeral {
		suffix = "-" + uuid.NewString()
	}

	return &PubSubClient{
		client:             client,
		subscriptionSuffix: suffix,
		ephemeral:          ephemeral,
	}, nil
}

// Publish sends a message to the named topic.
func (p *PubSubClient) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	if strings.TrimSpace(channel) == "" {
		return "", errors.New("pubsub channel is required")
	}

	topic, err := p.ensureTopic(ctx, channel)
	if err != nil {
		return "", err
	}
	result := topic.Publish(ctx, &pubsub.Message{Data: data, Attributes: attrs})
	return result.Get(ctx)
}

// Subscribe consumes messages from the named channel.
func (p *PubSubClient) Subscribe(ctx context.Context, channel string, handler Handler) error {
	if strings.TrimSpace(channel) == "" {
		return errors.New("pubsub channel is required")
	}

	topic, err := p.ensureTopic(ctx, channel)
	if err != nil {
		return err
	}

	subscriptionName := p.subscriptionName(channel)
	sub, err := p.ensureSubscription(ctx, subscriptionName, topic)
	if err != nil {
		return err
	}

	return sub.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		message := Message{
			ID:         msg.ID,
			Data:       msg.Data,
			Attributes: msg.Attributes,
		}
		if err := handler(ctx, message); err != nil {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

// Close deletes the subscriptions generated for this process and closes the
// underlying Pub/Sub client.
func (p *PubSubClient) Close() error {
	p.mu.Lock()
	created := p.created
	p.created = nil
	p.mu.Unlock()

	var errs []error
	for _, sub := range created {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := sub.Delete(ctx); err != nil {
			errs = append(errs, err)
		}
		cancel()
	}
	errs = append(errs, p.client.Close())
	return errors.Join(errs...)
}

func (p *PubSubClient) ensureTopic(ctx context.Context, name string) (*pubsub.Topic, error) {
	topic := p.client.Topic(name)
	exists, err := topic.Exists(ctx)
	if err != nil {
		return nil, err
	}
	if !exists {
		return p.client.CreateTopic(ctx, name)
	}
	return topic, nil
}

func (p *PubSubClient) ensureSubscription(ctx context.Context, name string, topic *pubsub.Topic) (*pubsub.Subscription, error) {
	sub := p.client.Subscription(name)
	exists, err := sub.Exists(ctx)
	if err != nil {
		return nil, err
	}
	if exists {
		return sub, nil
	}
	sub, err = p.client.CreateSubscription(ctx, name, p.subscriptionConfig(topic))
	if err != nil {
		return nil, err
	}
	if p.ephemeral {
		p.mu.Lock()
		p.created = append(p.created, sub)
		p.mu.Unlock()
	}
	return sub, nil
}

func (p *PubSubClient) subscriptionConfig(topic *pubsub.Topic) pubsub.SubscriptionConfig {
	cfg := pubsub.SubscriptionConfig{Topic: topic}
	if p.ephemeral {
		cfg.ExpirationPolicy = ephemeralExpiry
	}
	return cfg
}

func (p *PubSubClient) subscriptionName(channel string) string {
	if p.subscriptionSuffix == "" {
		return channel
	}
	return channel + p.subscriptionSuffix
}
