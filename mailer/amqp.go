package mailer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/MrEthical07/authcore"
)

const (
	DefaultExchange    = "authcore.email"
	DefaultDialTimeout = 10 * time.Second
)

// Envelope is the JSON body published for each message.
type Envelope struct {
	ID        string             `json:"id"`
	Kind      authcore.EmailKind `json:"kind"`
	To        string             `json:"to"`
	Data      map[string]string  `json:"data,omitempty"`
	CreatedAt time.Time          `json:"created_at"`
}

// channel is the subset of *amqp.Channel the sender uses.
type channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPConfig configures NewAMQPSender.
type AMQPConfig struct {
	URL         string
	Exchange    string
	DialTimeout time.Duration
	Logger      *slog.Logger
}

// AMQPSender publishes emails to a durable topic exchange. The routing key
// is "email.<kind>".
type AMQPSender struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	ch       channel
	reopen   func() (channel, error)
	exchange string
	logger   *slog.Logger
	now      func() time.Time
}

var _ authcore.EmailSender = (*AMQPSender)(nil)

// NewAMQPSender dials the broker, opens a channel and declares the exchange.
func NewAMQPSender(cfg AMQPConfig) (*AMQPSender, error) {
	cleanURL, err := sanitizeAMQPURL(cfg.URL)
	if err != nil {
		return nil, err
	}
	timeout := cfg.DialTimeout
	if timeout <= 0 {
		timeout = DefaultDialTimeout
	}

	conn, err := amqp.DialConfig(cleanURL, amqp.Config{Dial: amqp.DefaultDial(timeout)})
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}

	s, err := newAMQPSender(ch, func() (channel, error) { return conn.Channel() }, cfg.Exchange, cfg.Logger)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	s.conn = conn
	return s, nil
}

func newAMQPSender(ch channel, reopen func() (channel, error), exchange string, logger *slog.Logger) (*AMQPSender, error) {
	if exchange == "" {
		exchange = DefaultExchange
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := declare(ch, exchange); err != nil {
		return nil, fmt.Errorf("amqp declare exchange %q: %w", exchange, err)
	}
	return &AMQPSender{
		ch:       ch,
		reopen:   reopen,
		exchange: exchange,
		logger:   logger,
		now:      time.Now,
	}, nil
}

func declare(ch channel, exchange string) error {
	return ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil)
}

// Send publishes msg. A failed publish reopens the channel and retries once.
func (s *AMQPSender) Send(ctx context.Context, msg authcore.Email) error {
	env := Envelope{
		ID:        uuid.NewString(),
		Kind:      msg.Kind,
		To:        msg.To,
		Data:      msg.Data,
		CreatedAt: s.now().UTC(),
	}
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal email: %w", err)
	}
	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    env.ID,
		Timestamp:    env.CreatedAt,
		Type:         string(msg.Kind),
		Body:         body,
	}
	key := "email." + string(msg.Kind)

	s.mu.Lock()
	defer s.mu.Unlock()

	err = s.ch.PublishWithContext(ctx, s.exchange, key, false, false, pub)
	if err == nil {
		return nil
	}
	s.logger.WarnContext(ctx, "email publish failed, reopening channel",
		slog.String("exchange", s.exchange),
		slog.String("routing_key", key),
		slog.Any("error", err),
	)
	if s.reopen == nil {
		return fmt.Errorf("amqp publish: %w", err)
	}
	ch, reopenErr := s.reopen()
	if reopenErr != nil {
		return fmt.Errorf("amqp publish: %w", errors.Join(err, reopenErr))
	}
	_ = s.ch.Close()
	s.ch = ch
	if err := declare(s.ch, s.exchange); err != nil {
		return fmt.Errorf("amqp declare exchange %q: %w", s.exchange, err)
	}
	if err := s.ch.PublishWithContext(ctx, s.exchange, key, false, false, pub); err != nil {
		return fmt.Errorf("amqp publish: %w", err)
	}
	return nil
}

// Close closes the channel and the connection.
func (s *AMQPSender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs []error
	if s.ch != nil {
		errs = append(errs, s.ch.Close())
	}
	if s.conn != nil {
		errs = append(errs, s.conn.Close())
	}
	return errors.Join(errs...)
}

func sanitizeAMQPURL(raw string) (string, error) {
	clean := strings.Trim(strings.TrimSpace(raw), "\"'")
	u, err := url.Parse(clean)
	if err != nil {
		return "", fmt.Errorf("amqp url: %w", err)
	}
	if u.Scheme != "amqp" && u.Scheme != "amqps" {
		return "", errors.New("amqp url: scheme must be amqp:// or amqps://")
	}
	return clean, nil
}
