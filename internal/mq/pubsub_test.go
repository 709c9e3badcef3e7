package mq

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPubSubSubscriptionConfig(t *testing.T) {
	generated := &PubSubClient{subscriptionSuffix: "-abc", ephemeral: true}
	cfg := generated.subscriptionConfig(nil)
	assert.Equal(t, 24*time.Hour, cfg.ExpirationPolicy)

	named := &PubSubClient{subscriptionSuffix: "-api-1"}
	cfg = named.subscriptionConfig(nil)
	assert.Nil(t, cfg.ExpirationPolicy)
	assert.Equal(t, "posts.events-api-1", named.subscriptionName("posts.events"))
}
