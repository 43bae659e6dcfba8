package rabbitmq

import (
	"context"
	"testing"

	"github.com/cuongbtq/agent-jobs/shared/logger"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_QueueArgs(t *testing.T) {
	t.Run("no priority", func(t *testing.T) {
		assert.Nil(t, (&Config{}).QueueArgs())
	})

	t.Run("max priority", func(t *testing.T) {
		args := (&Config{QueueMaxPriority: 4}).QueueArgs()
		assert.Equal(t, amqp.Table{"x-max-priority": uint8(4)}, args)
	})
}

func TestClient_NotConnected(t *testing.T) {
	c := &Client{config: &Config{}, logger: logger.Discard()}

	err := c.Publish(context.Background(), Message{Body: []byte(`{}`)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not connected")

	_, err = c.Consume("worker-1", 5)
	require.Error(t, err)
	assert.False(t, c.IsConnected())
}
