// Package queuetest provides an in-memory broker and a SQLite backed store
// for tests that need a working queue without RabbitMQ or a database server.
package queuetest

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/cuongbtq/agent-jobs/internal/queue"
	"github.com/cuongbtq/agent-jobs/internal/queue/storage"
	"github.com/cuongbtq/agent-jobs/migrations"
	"github.com/cuongbtq/agent-jobs/shared/database"
	"github.com/cuongbtq/agent-jobs/shared/logger"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
)

// ErrBrokerDown is returned by Publish while the broker is failing
var ErrBrokerDown = errors.New("broker unavailable")

// NewDB opens an in-memory SQLite database with the full schema applied
func NewDB(t testing.TB) *sqlx.DB {
	t.Helper()

	client, err := database.NewClient(&database.Config{Driver: database.DriverSQLite}, logger.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	require.NoError(t, migrations.Apply(context.Background(), client.GetDB(), database.DriverSQLite))
	return client.GetDB()
}

// NewStore returns a SQL store over a fresh in-memory database
func NewStore(t testing.TB) *storage.Storage {
	t.Helper()
	return storage.NewStorage(NewDB(t), logger.Discard())
}

// Broker is an in-memory FIFO broker
type Broker struct {
	mu        sync.Mutex
	ch        chan queue.Delivery
	published []queue.Message
	acked     []string
	nacked    []string
	failing   bool
	closed    bool
}

var _ queue.Broker = (*Broker)(nil)

// NewBroker creates a broker buffering up to 1024 messages
func NewBroker() *Broker {
	return &Broker{ch: make(chan queue.Delivery, 1024)}
}

// SetFailing makes Publish return ErrBrokerDown until reset
func (b *Broker) SetFailing(failing bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failing = failing
}

// Publish records msg and makes it available to consumers
func (b *Broker) Publish(_ context.Context, msg queue.Message) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.failing || b.closed {
		return ErrBrokerDown
	}
	b.published = append(b.published, msg)
	b.push(msg)
	return nil
}

// PublishRaw enqueues an arbitrary body, for malformed message tests
func (b *Broker) PublishRaw(body []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ch <- &delivery{broker: b, body: body}
}

func (b *Broker) push(msg queue.Message) {
	body, _ := json.Marshal(msg)
	b.ch <- &delivery{broker: b, body: body}
}

// Consume returns the shared delivery channel
func (b *Broker) Consume(_ context.Context, _ string, _ int) (<-chan queue.Delivery, error) {
	return b.ch, nil
}

// Close stops accepting publishes and closes the delivery channel
func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.closed {
		b.closed = true
		close(b.ch)
	}
	return nil
}

// Published returns every message accepted so far
func (b *Broker) Published() []queue.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]queue.Message(nil), b.published...)
}

// Pending returns the number of undelivered messages
func (b *Broker) Pending() int {
	return len(b.ch)
}

// Acked returns the bodies of acknowledged deliveries
func (b *Broker) Acked() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.acked...)
}

// Nacked returns the bodies of rejected deliveries
func (b *Broker) Nacked() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.nacked...)
}

type delivery struct {
	broker *Broker
	body   []byte
}

func (d *delivery) Body() []byte { return d.body }

func (d *delivery) Ack() error {
	d.broker.mu.Lock()
	defer d.broker.mu.Unlock()
	d.broker.acked = append(d.broker.acked, string(d.body))
	return nil
}

func (d *delivery) Nack(requeue bool) error {
	d.broker.mu.Lock()
	defer d.broker.mu.Unlock()
	d.broker.nacked = append(d.broker.nacked, string(d.body))
	if requeue && !d.broker.closed {
		d.broker.ch <- &delivery{broker: d.broker, body: d.body}
	}
	return nil
}
