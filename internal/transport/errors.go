package transport

import "errors"

var (
	// ErrSlowConsumer is returned when a non-droppable message could not
	// be enqueued before its deadline (§4.7): the connection is marked
	// slow and scheduled for disconnect.
	ErrSlowConsumer = errors.New("transport: slow consumer, non-droppable queue full past deadline")
	ErrTLSRequired  = errors.New("transport: tls_required is set but certificate material is missing or invalid")
	ErrClosed       = errors.New("transport: connection closed")
)
