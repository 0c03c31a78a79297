package rabbitmq

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"tableside/internal/config"
	"tableside/internal/notify"
)

const DefaultExchange = "kitchen_events"

// KitchenFeed publishes kitchen events to a durable topic exchange so that
// kitchen displays and printers can consume them without a websocket.
type KitchenFeed struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
	logger   *zap.Logger

	mu sync.Mutex
}

func Dial(cfg config.AMQPConfig, logger *zap.Logger) (*KitchenFeed, error) {
	exchange := cfg.Exchange
	if exchange == "" {
		exchange = DefaultExchange
	}

	conn, err := amqp.DialConfig(cfg.URL, amqp.Config{Dial: amqp.DefaultDial(5 * time.Second)})
	if err != nil {
		return nil, fmt.Errorf("dialing amqp: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("opening amqp channel: %w", err)
	}

	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declaring exchange %s: %w", exchange, err)
	}

	logger.Info("kitchen feed connected", zap.String("exchange", exchange))
	return &KitchenFeed{conn: conn, ch: ch, exchange: exchange, logger: logger}, nil
}

// Deliver implements notify.Sink. Events for other groups are ignored.
func (f *KitchenFeed) Deliver(ctx context.Context, group, event string, body []byte) error {
	key, ok := RoutingKey(group, event)
	if !ok {
		return nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	return f.ch.PublishWithContext(ctx, f.exchange, key, false, false, amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		ContentType:  "application/json",
		Body:         body,
	})
}

// RoutingKey maps a kitchen group event to "kitchen.<event>", for example
// kitchen.new_order.
func RoutingKey(group, event string) (string, bool) {
	if group != notify.GroupKitchen || event == "" {
		return "", false
	}
	return "kitchen." + strings.ReplaceAll(event, ".", "_"), true
}

func (f *KitchenFeed) Close() {
	if f.ch != nil {
		_ = f.ch.Close()
	}
	if f.conn != nil {
		_ = f.conn.Close()
	}
}
