// Package events announces newly stored episodes on a RabbitMQ exchange.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/TobiSchelling/saintcast/internal/config"
	"github.com/TobiSchelling/saintcast/internal/database"
)

// EventEpisodeCreated is the event name carried in every message.
const EventEpisodeCreated = "episode.created"

type RabbitMQ struct {
	conn       *amqp.Connection
	channel    *amqp.Channel
	exchange   string
	routingKey string
	logger     *slog.Logger
}

// NewRabbitMQ connects to the broker and declares a durable direct exchange
// with one durable queue bound to the routing key.
func NewRabbitMQ(cfg config.Events, logger *slog.Logger) (*RabbitMQ, error) {
	if logger == nil {
		logger = slog.Default()
	}
	conn, err := amqp.Dial(cfg.AMQPURL)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if err := declare(ch, cfg); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	logger.Info("connected to rabbitmq",
		"exchange", cfg.Exchange,
		"queue", cfg.QueueName,
		"routing_key", cfg.RoutingKey,
	)

	return &RabbitMQ{
		conn:       conn,
		channel:    ch,
		exchange:   cfg.Exchange,
		routingKey: cfg.RoutingKey,
		logger:     logger,
	}, nil
}

func declare(ch *amqp.Channel, cfg config.Events) error {
	if err := ch.ExchangeDeclare(cfg.Exchange, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}
	q, err := ch.QueueDeclare(cfg.QueueName, true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}
	if err := ch.QueueBind(q.Name, cfg.RoutingKey, cfg.Exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}
	return nil
}

// EpisodeMessage is the JSON body of an episode.created event.
type EpisodeMessage struct {
	Event         string    `json:"event"`
	Podcast       string    `json:"podcast"`
	Episode       string    `json:"episode"`
	EpisodeNumber int       `json:"episode_number"`
	Date          string    `json:"date"`
	FileName      string    `json:"file_name"`
	Duration      *int      `json:"duration,omitempty"`
	PublishedAt   time.Time `json:"published_at"`
	Timestamp     time.Time `json:"timestamp"`
}

// NewEpisodeMessage builds the event body for episode in podcast.
func NewEpisodeMessage(podcast *database.Podcast, episode *database.Episode, now time.Time) EpisodeMessage {
	return EpisodeMessage{
		Event:         EventEpisodeCreated,
		Podcast:       podcast.Slug,
		Episode:       episode.Slug,
		EpisodeNumber: episode.EpisodeNumber,
		Date:          episode.Date,
		FileName:      episode.FileName,
		Duration:      episode.Duration,
		PublishedAt:   episode.PublishedAt.UTC(),
		Timestamp:     now.UTC(),
	}
}

// EpisodeCreated publishes a persistent episode.created message.
func (r *RabbitMQ) EpisodeCreated(ctx context.Context, podcast *database.Podcast, episode *database.Episode) error {
	body, err := json.Marshal(NewEpisodeMessage(podcast, episode, time.Now()))
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	err = r.channel.PublishWithContext(
		ctx,
		r.exchange,
		r.routingKey,
		false,
		false,
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			Type:         EventEpisodeCreated,
			Body:         body,
			Timestamp:    time.Now(),
		},
	)
	if err != nil {
		return fmt.Errorf("publish message: %w", err)
	}

	r.logger.Debug("published episode event",
		"podcast", podcast.Slug,
		"episode", episode.Slug,
	)
	return nil
}

func (r *RabbitMQ) Close() error {
	if r.channel != nil {
		r.channel.Close()
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}
