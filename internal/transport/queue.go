package transport

import (
	"time"

	"github.com/gdoct/apexsim-sub001/internal/codec"
)

// outboundCapacity bounds each priority class independently (§4.7:
// "every outbound queue has a fixed capacity").
const outboundCapacity = 64

// nonDroppableDeadline is how long a producer waits for room in the
// non-droppable queue before the connection is marked slow.
const nonDroppableDeadline = 250 * time.Millisecond

// droppable classifies which message tags may be silently superseded
// under backpressure versus which must never be lost without marking
// the connection slow (§4.7).
func droppable(tag codec.Tag) bool {
	switch tag {
	case codec.TagTelemetry, codec.TagLobbyState, codec.TagHeartbeatAck:
		return true
	default:
		return false
	}
}

type outboundFrame struct {
	tag     codec.Tag
	payload []byte
}

// outboundQueue implements §4.7's priority-classified backpressure
// policy: a full droppable queue replaces its oldest entry; a full
// non-droppable queue blocks the producer up to a deadline and reports
// ErrSlowConsumer if that deadline expires.
type outboundQueue struct {
	droppableCh    chan outboundFrame
	nonDroppableCh chan outboundFrame
}

func newOutboundQueue() *outboundQueue {
	return &outboundQueue{
		droppableCh:    make(chan outboundFrame, outboundCapacity),
		nonDroppableCh: make(chan outboundFrame, outboundCapacity),
	}
}

func (q *outboundQueue) push(tag codec.Tag, payload []byte) error {
	frame := outboundFrame{tag: tag, payload: payload}

	if droppable(tag) {
		select {
		case q.droppableCh <- frame:
			return nil
		default:
			select {
			case <-q.droppableCh:
			default:
			}
			select {
			case q.droppableCh <- frame:
			default:
				// lost a race with another producer; dropping here is
				// acceptable since this is already the droppable class.
			}
			return nil
		}
	}

	select {
	case q.nonDroppableCh <- frame:
		return nil
	case <-time.After(nonDroppableDeadline):
		return ErrSlowConsumer
	}
}

// pop blocks until a frame is available or closeCh fires, favoring
// non-droppable frames so control messages never wait behind a burst of
// telemetry.
func (q *outboundQueue) pop(closeCh <-chan struct{}) (outboundFrame, bool) {
	select {
	case frame := <-q.nonDroppableCh:
		return frame, true
	default:
	}

	select {
	case frame := <-q.nonDroppableCh:
		return frame, true
	case frame := <-q.droppableCh:
		return frame, true
	case <-closeCh:
		return outboundFrame{}, false
	}
}
