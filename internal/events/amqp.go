package events

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQP публикует события в очередь RabbitMQ через default exchange.
type AMQP struct {
	url    string
	queue  string
	logger *slog.Logger

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

// NewAMQP подключается к брокеру и объявляет durable-очередь.
func NewAMQP(url, queue string, logger *slog.Logger) (*AMQP, error) {
	p := &AMQP{
		url:    url,
		queue:  queue,
		logger: logger.With(slog.String("component", "events_amqp")),
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.connectLocked(); err != nil {
		return nil, err
	}

	p.logger.Info("Подключение к RabbitMQ установлено",
		slog.String("queue", queue),
	)
	return p, nil
}

// connectLocked (пере)открывает соединение и канал. Вызывается под mu.
func (p *AMQP) connectLocked() error {
	if p.conn == nil || p.conn.IsClosed() {
		conn, err := amqp.Dial(p.url)
		if err != nil {
			return fmt.Errorf("ошибка подключения к RabbitMQ: %w", err)
		}
		p.conn = conn
		p.ch = nil
	}

	if p.ch == nil || p.ch.IsClosed() {
		ch, err := p.conn.Channel()
		if err != nil {
			return fmt.Errorf("ошибка открытия канала RabbitMQ: %w", err)
		}
		if _, err := ch.QueueDeclare(
			p.queue,
			true,  // durable
			false, // autoDelete
			false, // exclusive
			false, // noWait
			nil,
		); err != nil {
			ch.Close()
			return fmt.Errorf("ошибка объявления очереди %s: %w", p.queue, err)
		}
		p.ch = ch
	}
	return nil
}

// PublishFolderCreated отправляет событие как persistent JSON-сообщение.
func (p *AMQP) PublishFolderCreated(ctx context.Context, ev FolderCreated) error {
	body, err := ev.Marshal()
	if err != nil {
		publishedTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("ошибка сериализации события: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.connectLocked(); err != nil {
		publishedTotal.WithLabelValues("error").Inc()
		return err
	}

	err = p.ch.PublishWithContext(ctx,
		"",      // default exchange
		p.queue, // routing key = имя очереди
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			Type:         ev.Type,
			MessageId:    ev.FolderID,
			Timestamp:    time.Now().UTC(),
			Body:         body,
		},
	)
	if err != nil {
		publishedTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("ошибка публикации события %s: %w", ev.Type, err)
	}

	publishedTotal.WithLabelValues("ok").Inc()
	p.logger.Debug("Событие опубликовано",
		slog.String("type", ev.Type),
		slog.String("folder_id", ev.FolderID),
	)
	return nil
}

// Close закрывает канал и соединение.
func (p *AMQP) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		err := p.conn.Close()
		p.conn = nil
		if err != nil && err != amqp.ErrClosed {
			return fmt.Errorf("ошибка закрытия соединения RabbitMQ: %w", err)
		}
	}
	return nil
}
