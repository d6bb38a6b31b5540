package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/alecthomas/assert/v2"
	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"
)

type published struct {
	exchange, key string
	msg           amqp091.Publishing
}

type fakeChannel struct {
	declared   []string
	published  []published
	publishErr error
	closed     bool
}

func (c *fakeChannel) ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp091.Table) error {
	c.declared = append(c.declared, name+":"+kind)
	return nil
}

func (c *fakeChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error {
	if c.publishErr != nil {
		return c.publishErr
	}
	c.published = append(c.published, published{exchange: exchange, key: key, msg: msg})
	return nil
}

func (c *fakeChannel) Close() error {
	c.closed = true
	return nil
}

func TestPublisher(t *testing.T) {
	ch := &fakeChannel{}
	p, err := NewPublisher(ch, "logbook", nil)
	assert.NoError(t, err)
	assert.Equal(t, []string{"logbook:topic"}, ch.declared)

	source, sink := uuid.New(), uuid.New()
	e := New(TransferDetected, Transfer{SourceID: source, SinkID: sink, Fee: "0.00 EUR", Accuracy: "Exact"})
	assert.NoError(t, p.Publish(context.Background(), e))

	assert.Equal(t, 1, len(ch.published))
	got := ch.published[0]
	assert.Equal(t, "logbook", got.exchange)
	assert.Equal(t, TransferDetected, got.key)
	assert.Equal(t, "application/json", got.msg.ContentType)
	assert.Equal(t, amqp091.Persistent, got.msg.DeliveryMode)
	assert.Equal(t, e.ID.String(), got.msg.MessageId)

	var decoded struct {
		Kind    string   `json:"kind"`
		Payload Transfer `json:"payload"`
	}
	assert.NoError(t, json.Unmarshal(got.msg.Body, &decoded))
	assert.Equal(t, TransferDetected, decoded.Kind)
	assert.Equal(t, sink, decoded.Payload.SinkID)

	assert.NoError(t, p.Close())
	assert.True(t, ch.closed)
}

func TestPublisherError(t *testing.T) {
	ch := &fakeChannel{publishErr: errors.New("channel closed")}
	p, err := NewPublisher(ch, "logbook", nil)
	assert.NoError(t, err)
	err = p.Publish(context.Background(), New(TagsApplied, Tags{}))
	assert.EqualError(t, err, "publish tags.applied: channel closed")
}

type failing struct{ err error }

func (f failing) Publish(context.Context, Event) error { return f.err }
func (f failing) Close() error                         { return nil }

func TestFanout(t *testing.T) {
	rec := &Recorder{}
	boom := errors.New("boom")
	f := Fanout{Nop{}, rec, failing{boom}}

	err := f.Publish(context.Background(), New(DuplicatesFound, Duplicates{}))
	assert.IsError(t, err, boom)
	assert.Equal(t, []string{DuplicatesFound}, rec.Kinds())
	assert.NoError(t, f.Close())
}
