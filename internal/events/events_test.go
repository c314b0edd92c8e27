package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	config "github.com/Keoroanthony/orderflow/configs"
	"github.com/Keoroanthony/orderflow/internal/models"
)

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error { return nil }

func TestKafkaPublisher(t *testing.T) {
	w := &fakeWriter{}
	pub := &KafkaPublisher{writer: w}

	order := models.Order{ID: 42, UserID: 7, Status: models.StatusCreated, Items: []models.OrderItem{{ProductID: 3, Quantity: 2}}}
	require.NoError(t, pub.Publish(context.Background(), NewOrderEvent(OrderCreated, order)))

	require.Len(t, w.msgs, 1)
	assert.Equal(t, "order-created-42", string(w.msgs[0].Key))

	var ev OrderEvent
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &ev))
	assert.Equal(t, uint(7), ev.UserID)
	assert.Equal(t, []EventItem{{ProductID: 3, Quantity: 2}}, ev.Items)

	w.err = errors.New("broker down")
	assert.ErrorContains(t, pub.Publish(context.Background(), ev), "broker down")
}

func TestNewWithoutBrokers(t *testing.T) {
	pub := New(config.KafkaConfig{})
	assert.IsType(t, NopPublisher{}, pub)
	assert.NoError(t, pub.Publish(context.Background(), OrderEvent{Type: OrderCreated}))
}
