package pubsub

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/angelmondragon/orderflow/pkg/config"
)

func TestResourceName(t *testing.T) {
	assert.Equal(t, "projects/p1/topics/orders", resourceName("p1", "topics", " orders "))
	assert.Equal(t, "projects/other/topics/orders", resourceName("p1", "topics", "projects/other/topics/orders"))
	assert.Empty(t, resourceName("", "topics", "orders"))
	assert.Empty(t, resourceName("p1", "topics", ""))
}

func TestTopicNamesSkipsBlank(t *testing.T) {
	names := topicNames(config.PubSubConfig{OrdersTopic: "orders", SettlementsTopic: "  "})
	assert.Equal(t, []string{"orders"}, names)
}

func TestNilClientPublisher(t *testing.T) {
	var c *Client
	assert.Nil(t, c.Publisher("orders"))
	assert.Error(t, c.Ping(context.Background()))
	assert.NoError(t, c.Close())
}

func TestClientOptionsPickCredentials(t *testing.T) {
	assert.Empty(t, clientOptions(config.GCPConfig{ProjectID: "p1"}))
	assert.Len(t, clientOptions(config.GCPConfig{CredentialsJSON: `{"type":"service_account"}`}), 1)
	assert.Len(t, clientOptions(config.GCPConfig{ApplicationCredentials: "/secrets/key.json"}), 1)
	assert.Len(t, clientOptions(config.GCPConfig{CredentialsJSON: "{}", ApplicationCredentials: "/k.json"}), 1)
}
