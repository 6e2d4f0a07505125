// Package transport consumes inbound records from a message bus. Every
// delivered message must be acknowledged by the caller once processed.
package transport

import "context"

// SchemaHeader names the header that carries the record schema tag.
const SchemaHeader = "schema"

type Message interface {
	Schema() string
	Data() []byte
	Ack() error
}

// Handler is invoked for each delivered message. It may be called from a
// single goroutine and should hand work off quickly.
type Handler func(Message)

// Source delivers messages to a handler until ctx is done.
type Source interface {
	Consume(ctx context.Context, h Handler) error
	Close() error
}

// ConnectionMetrics receives connection state changes. It may be nil.
type ConnectionMetrics interface {
	NATSSetConnected(connected bool)
}
