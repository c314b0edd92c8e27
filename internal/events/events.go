package events

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	config "github.com/Keoroanthony/orderflow/configs"
	"github.com/Keoroanthony/orderflow/internal/models"
)

var logger = zerolog.New(os.Stdout).With().Timestamp().Str("component", "events").Logger()

const (
	OrderCreated       = "created"
	OrderStatusChanged = "status"
	OrderReceipt       = "receipt"
)

type OrderEvent struct {
	Type           string             `json:"type"`
	OrderID        uint               `json:"order_id"`
	UserID         uint               `json:"user_id"`
	Status         models.OrderStatus `json:"status"`
	PreviousStatus models.OrderStatus `json:"previous_status,omitempty"`
	Items          []EventItem        `json:"items,omitempty"`
	At             time.Time          `json:"at"`
}

type EventItem struct {
	ProductID uint `json:"product_id"`
	Quantity  int  `json:"quantity"`
}

func NewOrderEvent(eventType string, order models.Order) OrderEvent {
	ev := OrderEvent{
		Type:    eventType,
		OrderID: order.ID,
		UserID:  order.UserID,
		Status:  order.Status,
		At:      time.Now().UTC(),
	}
	for _, it := range order.Items {
		ev.Items = append(ev.Items, EventItem{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	return ev
}

type Publisher interface {
	Publish(ctx context.Context, ev OrderEvent) error
	Close() error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaPublisher struct {
	writer messageWriter
}

func NewKafkaPublisher(cfg config.KafkaConfig) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(cfg.Brokers...),
			Topic:                  cfg.Topic,
			Balancer:               &kafka.Hash{},
			AllowAutoTopicCreation: true,
		},
	}
}

// Publish writes ev keyed "order-<type>-<id>".
func (p *KafkaPublisher) Publish(ctx context.Context, ev OrderEvent) error {
	value, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Key:   []byte(fmt.Sprintf("order-%s-%d", ev.Type, ev.OrderID)),
		Value: value,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish order event: %w", err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// NopPublisher only logs; used when no brokers are configured.
type NopPublisher struct{}

func (NopPublisher) Publish(_ context.Context, ev OrderEvent) error {
	logger.Debug().Str("type", ev.Type).Uint("order_id", ev.OrderID).Msg("order event (no broker configured)")
	return nil
}

func (NopPublisher) Close() error { return nil }

func New(cfg config.KafkaConfig) Publisher {
	if len(cfg.Brokers) == 0 {
		return NopPublisher{}
	}
	return NewKafkaPublisher(cfg)
}
