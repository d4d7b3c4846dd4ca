package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// connect dials NATS with the connection hygiene every apgate process wants:
// unbounded reconnects and disconnect/reconnect logging, so a broker restart
// degrades to a warning instead of silently losing the event stream.
func connect(url string, logger *slog.Logger, opts ...nats.Option) (*nats.Conn, error) {
	defaults := []nats.Option{
		nats.Name("apgate"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("event bus disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("event bus reconnected", "url", nc.ConnectedUrl())
		}),
	}
	nc, err := nats.Connect(url, append(defaults, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", url, err)
	}
	return nc, nil
}

// NATSPublisher emits approval events on NATS subjects.
type NATSPublisher struct {
	conn   *nats.Conn
	logger *slog.Logger
}

func NewNATSPublisher(url string, logger *slog.Logger) (*NATSPublisher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	nc, err := connect(url, logger)
	if err != nil {
		return nil, err
	}
	return &NATSPublisher{conn: nc, logger: logger}, nil
}

func (p *NATSPublisher) Publish(ctx context.Context, topic string, event Event) error {
	if topic == "" {
		return fmt.Errorf("empty topic for request %s", requestID(event))
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling event for %s: %w", topic, err)
	}
	return p.conn.Publish(topic, data)
}

func (p *NATSPublisher) Close() error {
	p.conn.Close()
	return nil
}

func requestID(event Event) string {
	if r := event.EventRequest(); r != nil {
		return r.ID
	}
	return "unknown"
}

// NATSSubscriber consumes approval events from NATS subjects, decoding each
// payload into a Message before delivery.
type NATSSubscriber struct {
	conn   *nats.Conn
	logger *slog.Logger
}

// NewNATSSubscriber connects for consuming. Extra nats.Option values are
// appended after the defaults, so callers can stack their own handlers.
func NewNATSSubscriber(url string, logger *slog.Logger, opts ...nats.Option) (*NATSSubscriber, error) {
	if logger == nil {
		logger = slog.Default()
	}
	nc, err := connect(url, logger, opts...)
	if err != nil {
		return nil, err
	}
	return &NATSSubscriber{conn: nc, logger: logger}, nil
}

// Subscribe delivers decoded approval events for the topic. Payloads that do
// not carry a request snapshot are logged and dropped; a slow consumer drops
// messages rather than blocking the NATS client.
func (s *NATSSubscriber) Subscribe(topic string) (<-chan Message, func(), error) {
	ch := make(chan Message, 64)

	var (
		mu     sync.Mutex
		closed bool
		once   sync.Once
	)

	sub, err := s.conn.Subscribe(topic, func(msg *nats.Msg) {
		var envelope struct {
			Request *json.RawMessage `json:"request"`
		}
		m := Message{Topic: msg.Subject}
		if err := json.Unmarshal(msg.Data, &envelope); err != nil || envelope.Request == nil {
			s.logger.Warn("dropping malformed bus payload", "topic", msg.Subject)
			return
		}
		if err := json.Unmarshal(*envelope.Request, &m.Request); err != nil {
			s.logger.Warn("dropping malformed bus payload", "topic", msg.Subject)
			return
		}

		mu.Lock()
		defer mu.Unlock()
		if closed {
			return
		}
		select {
		case ch <- m:
		default:
			s.logger.Warn("dropping bus message, consumer too slow", "topic", msg.Subject)
		}
	})
	if err != nil {
		close(ch)
		return nil, nil, fmt.Errorf("subscribing to %s: %w", topic, err)
	}
	// Flush so the subscription is registered server-side before we return;
	// events published on other connections are routed from here on.
	if err := s.conn.Flush(); err != nil {
		_ = sub.Unsubscribe()
		close(ch)
		return nil, nil, fmt.Errorf("flushing subscription: %w", err)
	}

	cancel := func() {
		once.Do(func() {
			_ = sub.Unsubscribe()
			mu.Lock()
			closed = true
			mu.Unlock()
			// Drain whatever is buffered so in-flight sends finish, then close.
			for {
				select {
				case <-ch:
				default:
					close(ch)
					return
				}
			}
		})
	}

	return ch, cancel, nil
}

func (s *NATSSubscriber) Close() error {
	s.conn.Close()
	return nil
}
