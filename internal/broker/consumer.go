// Package broker consumes telemetry samples from RabbitMQ and feeds them
// through the anomaly engine.
//
// Responsibilities:
//   - Declare the telemetry exchange, queue, and binding
//   - Decode and validate sample payloads
//   - Run each sample through the engine and fan results out to the sinks
//   - Acknowledge deliveries only after processing completes
package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/gridpulse/gridpulse-detector/internal/detector"
	"github.com/gridpulse/gridpulse-detector/internal/metrics"
	"github.com/gridpulse/gridpulse-detector/internal/telemetry"
)

// Config holds the AMQP wiring for the consumer.
type Config struct {
	URL        string
	Exchange   string
	Queue      string
	RoutingKey string
	Prefetch   int
}

// Sink receives the results of processing one sample. Implementations must
// not block for long; they run on the consumer goroutine.
type Sink interface {
	HandleSample(ctx context.Context, sample telemetry.Sample, findings []detector.Finding)
}

// Consumer pulls samples off the queue and runs them through the engine.
type Consumer struct {
	cfg    Config
	log    *zap.Logger
	engine *detector.Engine
	sinks  []Sink

	conn    *amqp.Connection
	channel *amqp.Channel
}

// NewConsumer connects to the broker and declares the queue topology.
func NewConsumer(cfg Config, engine *detector.Engine, log *zap.Logger, sinks ...Sink) (*Consumer, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("dial broker: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if err := channel.ExchangeDeclare(
		cfg.Exchange,
		"topic",
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		_ = channel.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", cfg.Exchange, err)
	}

	queue, err := channel.QueueDeclare(
		cfg.Queue,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		_ = channel.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare queue %s: %w", cfg.Queue, err)
	}

	if err := channel.QueueBind(queue.Name, cfg.RoutingKey, cfg.Exchange, false, nil); err != nil {
		_ = channel.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("bind queue %s: %w", queue.Name, err)
	}

	if cfg.Prefetch > 0 {
		if err := channel.Qos(cfg.Prefetch, 0, false); err != nil {
			_ = channel.Close()
			_ = conn.Close()
			return nil, fmt.Errorf("set prefetch: %w", err)
		}
	}

	return &Consumer{
		cfg:     cfg,
		log:     log,
		engine:  engine,
		sinks:   sinks,
		conn:    conn,
		channel: channel,
	}, nil
}

// Run consumes deliveries until the context is canceled or the channel
// closes. It always returns a non-nil reason.
func (c *Consumer) Run(ctx context.Context) error {
	deliveries, err := c.channel.Consume(
		c.cfg.Queue,
		"",    // consumer tag (auto-generated)
		false, // manual ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("start consume: %w", err)
	}

	c.log.Info("broker consumer started",
		zap.String("queue", c.cfg.Queue),
		zap.String("exchange", c.cfg.Exchange),
		zap.String("routing_key", c.cfg.RoutingKey))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case delivery, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("delivery channel closed")
			}
			c.handle(ctx, delivery)
		}
	}
}

// handle processes one delivery. Malformed payloads are rejected without
// requeue so they don't loop forever; processing failures are logged but the
// delivery is still acknowledged, since replaying a sample into a streaming
// baseline would skew it.
func (c *Consumer) handle(ctx context.Context, delivery amqp.Delivery) {
	var sample telemetry.Sample
	if err := json.Unmarshal(delivery.Body, &sample); err != nil {
		metrics.BrokerDeliveries.WithLabelValues("malformed").Inc()
		c.log.Warn("discarding malformed sample payload",
			zap.Error(err),
			zap.Int("bytes", len(delivery.Body)))
		_ = delivery.Nack(false, false)
		return
	}
	if sample.Timestamp.IsZero() {
		sample.Timestamp = time.Now().UTC()
	}

	findings, err := c.engine.Ingest(sample)
	if err != nil {
		metrics.BrokerDeliveries.WithLabelValues("malformed").Inc()
		c.log.Warn("discarding invalid sample",
			zap.String("device_id", sample.DeviceID),
			zap.Error(err))
		_ = delivery.Nack(false, false)
		return
	}

	for _, sink := range c.sinks {
		sink.HandleSample(ctx, sample, findings)
	}

	if len(findings) > 0 {
		c.log.Info("anomalies detected",
			zap.String("device_id", sample.DeviceID),
			zap.Int("count", len(findings)))
	}

	metrics.BrokerDeliveries.WithLabelValues("ok").Inc()
	_ = delivery.Ack(false)
}

// Close tears down the channel and connection.
func (c *Consumer) Close() error {
	if err := c.channel.Close(); err != nil {
		_ = c.conn.Close()
		return err
	}
	return c.conn.Close()
}
