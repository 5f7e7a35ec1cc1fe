package rabbitmq

import (
	"context"
	"errors"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

const (
	// RetryCountHeader counts how often a message was handed back for another attempt.
	RetryCountHeader = "x-retry-count"

	defaultRetryDelay = 5 * time.Second
	defaultMaxRetries = 5
)

// Consumer handles the connection and consumption of messages from RabbitMQ.
type Consumer struct {
	conn    *amqp091.Connection
	channel *amqp091.Channel
	logger  zerolog.Logger

	retryDelay time.Duration
	maxRetries int
	sleep      func(ctx context.Context, d time.Duration) error
	publish    func(ctx context.Context, queue string, msg amqp091.Publishing) error
}

// NewConsumer dials RabbitMQ and opens a consuming channel.
func NewConsumer(amqpURL string, logger zerolog.Logger) (*Consumer, error) {
	cleanURL, err := sanitizeAMQPURL(amqpURL)
	if err != nil {
		return nil, err
	}

	conn, err := amqp091.Dial(cleanURL)
	if err != nil {
		return nil, err
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}

	c := &Consumer{
		conn:       conn,
		channel:    channel,
		logger:     logger.With().Str("component", "rabbitmq_consumer").Logger(),
		retryDelay: defaultRetryDelay,
		maxRetries: defaultMaxRetries,
		sleep:      sleepContext,
	}
	c.publish = c.publishToQueue
	return c, nil
}

// DeadLetterQueue is where messages of queue go once their retries are spent.
func DeadLetterQueue(queue string) string {
	return queue + ".dead"
}

// MessageHandler processes a single message. Returning true acknowledges it.
// Returning false schedules another attempt after a delay; once the retries
// are spent the message is moved to the dead letter queue.
type MessageHandler func(ctx context.Context, body []byte) bool

// Consume binds queueName to exchange with routingKey and dispatches deliveries to
// handler until ctx is cancelled or the channel closes.
func (c *Consumer) Consume(ctx context.Context, exchange, queueName, routingKey string, handler MessageHandler) error {
	if err := c.channel.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		return err
	}

	q, err := c.channel.QueueDeclare(queueName, true, false, false, false, nil)
	if err != nil {
		return err
	}

	if err := c.channel.QueueBind(q.Name, routingKey, exchange, false, nil); err != nil {
		return err
	}
	if _, err := c.channel.QueueDeclare(DeadLetterQueue(q.Name), true, false, false, false, nil); err != nil {
		return err
	}

	// Manual acknowledgment.
	msgs, err := c.channel.Consume(q.Name, "", false, false, false, false, nil)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				return errors.New("rabbitmq delivery channel closed")
			}
			c.logger.Debug().Str("routing_key", d.RoutingKey).Msg("received message")
			c.handleDelivery(ctx, q.Name, d, handler)
		}
	}
}

// handleDelivery runs handler and settles d. A failed message is republished
// after retryDelay with an incremented retry count.
func (c *Consumer) handleDelivery(ctx context.Context, queue string, d amqp091.Delivery, handler MessageHandler) {
	if handler(ctx, d.Body) {
		_ = d.Ack(false)
		return
	}

	attempt := retryCount(d.Headers) + 1
	target := queue
	if attempt > c.maxRetries {
		target = DeadLetterQueue(queue)
		c.logger.Error().Str("queue", queue).Int("attempts", attempt).Msg("message retries exhausted; dead-lettering")
	} else {
		c.logger.Warn().Str("queue", queue).Int("attempt", attempt).Dur("delay", c.retryDelay).Msg("message handling failed; retrying later")
		if err := c.sleep(ctx, c.retryDelay); err != nil {
			_ = d.Nack(false, true)
			return
		}
	}

	headers := amqp091.Table{}
	for k, v := range d.Headers {
		headers[k] = v
	}
	headers[RetryCountHeader] = int32(attempt)

	err := c.publish(ctx, target, amqp091.Publishing{
		Headers:      headers,
		ContentType:  d.ContentType,
		DeliveryMode: amqp091.Persistent,
		Timestamp:    time.Now(),
		Body:         d.Body,
	})
	if err != nil {
		c.logger.Error().Err(err).Str("queue", target).Msg("failed to republish message; requeueing")
		_ = d.Nack(false, true)
		return
	}
	_ = d.Ack(false)
}

func (c *Consumer) publishToQueue(ctx context.Context, queue string, msg amqp091.Publishing) error {
	return c.channel.PublishWithContext(ctx, "", queue, false, false, msg)
}

func retryCount(headers amqp091.Table) int {
	switch v := headers[RetryCountHeader].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	}
	return 0
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Close gracefully closes the channel and connection.
func (c *Consumer) Close() {
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		c.conn.Close()
	}
}
