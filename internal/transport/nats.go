package transport

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

type JetStreamOptions struct {
	URL     string
	Stream  string
	Subject string
	Durable string
}

// JetStreamSource is a durable push consumer with explicit acks.
type JetStreamSource struct {
	nc   *nats.Conn
	js   nats.JetStreamContext
	opts JetStreamOptions
}

// Connect dials NATS. The returned connection is shared with the publisher
// when both run in one process.
func Connect(url, name string, m ConnectionMetrics) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			log.Warn().Err(err).Msg("nats disconnected")
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(true)
			}
			log.Info().Str("url", c.ConnectedUrl()).Msg("nats reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			log.Info().Msg("nats closed")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	if m != nil {
		m.NATSSetConnected(true)
	}
	return nc, nil
}

func NewJetStreamSource(nc *nats.Conn, opts JetStreamOptions) (*JetStreamSource, error) {
	js, err := nc.JetStream()
	if err != nil {
		return nil, fmt.Errorf("jetstream context: %w", err)
	}
	return &JetStreamSource{nc: nc, js: js, opts: opts}, nil
}

func (s *JetStreamSource) Consume(ctx context.Context, h Handler) error {
	subOpts := []nats.SubOpt{
		nats.Durable(s.opts.Durable),
		nats.ManualAck(),
		nats.AckExplicit(),
	}
	if s.opts.Stream != "" {
		subOpts = append(subOpts, nats.BindStream(s.opts.Stream))
	}
	sub, err := s.js.Subscribe(s.opts.Subject, func(m *nats.Msg) {
		h(natsMessage{m})
	}, subOpts...)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", s.opts.Subject, err)
	}
	log.Info().
		Str("stream", s.opts.Stream).
		Str("subject", s.opts.Subject).
		Str("durable", s.opts.Durable).
		Msg("consuming from jetstream")

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		log.Warn().Err(err).Msg("drain jetstream subscription")
	}
	return nil
}

// Close leaves the connection open; its owner closes it.
func (s *JetStreamSource) Close() error { return nil }

type natsMessage struct{ m *nats.Msg }

func (n natsMessage) Schema() string { return n.m.Header.Get(SchemaHeader) }
func (n natsMessage) Data() []byte   { return n.m.Data }
func (n natsMessage) Ack() error     { return n.m.Ack() }
