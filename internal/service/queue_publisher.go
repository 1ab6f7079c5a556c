// Package queue_publisher publishes markup events to RabbitMQ.  Errors are
// logged and returned so callers can ignore failures without interrupting
// the main request flow.
package queue_publisher

import (
    "context"
    "net"
    "time"

    amqp "github.com/rabbitmq/amqp091-go"
    "go.uber.org/zap"

    "github.com/iliyamo/rental-markup/internal/logger"
    "github.com/iliyamo/rental-markup/internal/model"
    q "github.com/iliyamo/rental-markup/internal/queue"
)

// AMQPPublisher implements markup.Publisher on top of the markup.events
// queue.  Each publish dials its own connection, bounded by the caller's
// context.
type AMQPPublisher struct {
    URL string
}

// NewAMQPPublisher returns a publisher for the broker at url.
func NewAMQPPublisher(url string) *AMQPPublisher {
    return &AMQPPublisher{URL: url}
}

// Publish sends ev to the markup.events queue as a persistent message.
func (p *AMQPPublisher) Publish(ctx context.Context, ev model.MarkupEvent) error {
    conn, err := amqp.DialConfig(p.URL, amqp.Config{
        Heartbeat: 10 * time.Second,
        Locale:    "en_US",
        Dial:      contextDialer(ctx),
    })
    if err != nil {
        logger.Warn("rabbitmq: dial failed", zap.Error(err))
        return err
    }
    defer func() { _ = conn.Close() }()

    ch, err := conn.Channel()
    if err != nil {
        logger.Warn("rabbitmq: channel open failed", zap.Error(err))
        return err
    }
    defer func() { _ = ch.Close() }()

    // Ensure the queue exists (idempotent). Durable so messages survive broker restarts.
    if _, err := ch.QueueDeclare(
        q.MarkupQueueName, // name
        true,              // durable
        false,             // autoDelete
        false,             // exclusive
        false,             // noWait
        nil,               // args
    ); err != nil {
        logger.Warn("rabbitmq: queue declare failed", zap.Error(err))
        return err
    }

    body, err := q.Encode(ev)
    if err != nil {
        return err
    }

    pub := amqp.Publishing{
        ContentType:  "application/json",
        DeliveryMode: amqp.Persistent, // store on disk
        Timestamp:    time.Now().UTC(),
        Type:         ev.Type,
        Body:         body,
    }

    if err := ch.PublishWithContext(ctx,
        "",                // default exchange
        q.MarkupQueueName, // routing key = queue name
        false,             // mandatory
        false,             // immediate
        pub,
    ); err != nil {
        logger.Warn("rabbitmq: publish failed", zap.Error(err))
        return err
    }
    return nil
}

// contextDialer opens the broker socket under ctx and carries ctx's
// deadline over to the AMQP handshake that follows.
func contextDialer(ctx context.Context) func(network, addr string) (net.Conn, error) {
    return func(network, addr string) (net.Conn, error) {
        var d net.Dialer
        conn, err := d.DialContext(ctx, network, addr)
        if err != nil {
            return nil, err
        }
        if dl, ok := ctx.Deadline(); ok {
            if err := conn.SetDeadline(dl); err != nil {
                _ = conn.Close()
                return nil, err
            }
        }
        return conn, nil
    }
}
