package kafka

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

const defaultWriteTimeout = 10 * time.Second

var errBrokersRequired = errors.New("kafka brokers are required")

// Client owns one writer per topic against the configured brokers.
type Client struct {
	brokers      []string
	writeTimeout time.Duration

	mu      sync.Mutex
	writers map[string]*kafkago.Writer
}

// NewClient validates the broker list. Connections are opened lazily by the writers.
func NewClient(ctx context.Context, cfg config.KafkaConfig, logg *logger.Logger) (*Client, error) {
	brokers := make([]string, 0, len(cfg.Brokers))
	for _, b := range cfg.Brokers {
		if trimmed := strings.TrimSpace(b); trimmed != "" {
			brokers = append(brokers, trimmed)
		}
	}
	if len(brokers) == 0 {
		return nil, errBrokersRequired
	}

	timeout := cfg.WriteTimeout
	if timeout <= 0 {
		timeout = defaultWriteTimeout
	}

	c := &Client{
		brokers:      brokers,
		writeTimeout: timeout,
		writers:      make(map[string]*kafkago.Writer),
	}

	if logg != nil {
		ctx = logg.WithField(ctx, "brokers", strings.Join(brokers, ","))
		logg.Info(ctx, "kafka client initialized")
	}
	return c, nil
}

// Writer returns the shared writer for topic, creating it on first use.
func (c *Client) Writer(topic string) *kafkago.Writer {
	if c == nil {
		return nil
	}
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if w, ok := c.writers[topic]; ok {
		return w
	}
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(c.brokers...),
		Topic:        topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
		WriteTimeout: c.writeTimeout,
	}
	c.writers[topic] = w
	return w
}

// Ping dials each broker until one answers.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil {
		return errors.New("kafka client not initialized")
	}
	var lastErr error
	for _, broker := range c.brokers {
		conn, err := kafkago.DialContext(ctx, "tcp", broker)
		if err != nil {
			lastErr = err
			continue
		}
		_ = conn.Close()
		return nil
	}
	return fmt.Errorf("no kafka broker reachable: %w", lastErr)
}

// Close flushes and closes every writer.
func (c *Client) Close() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	var errs []error
	for topic, w := range c.writers {
		if err := w.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close writer %s: %w", topic, err))
		}
		delete(c.writers, topic)
	}
	return errors.Join(errs...)
}
