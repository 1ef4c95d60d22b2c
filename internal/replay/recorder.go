// Package replay buffers a session's telemetry history in memory during
// Racing and flushes it to a durable artifact once the session finishes
// (§4.6). The worker goroutine owning the sink, independent of the tick
// loop, is grounded on the teacher's pattern of giving World.GameLoop
// and World.BroadcastLoop their own dedicated goroutines and tickers.
package replay

import (
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/gdoct/apexsim-sub001/internal/codec"
	"github.com/gdoct/apexsim-sub001/internal/model"
)

// Sink produces the io.Writer a finished recording is flushed to. The
// concrete implementation (a file under the replay output directory, one
// per finished session, named by session id and start timestamp per
// §6) lives in cmd/apexsim-server; the recorder only needs this seam so
// persistence stays swappable (§4.6a).
type Sink interface {
	Open(sessionID model.SessionID, startedAtUnix int64) (io.WriteCloser, error)
}

// Frame is one tick's recorded telemetry.
type Frame struct {
	Tick      int64
	Telemetry codec.Telemetry
}

// Header captures the artifact preamble written once, before any frames:
// session id, track id, participant list, start wall-clock, tick count.
type Header struct {
	SessionID      model.SessionID
	TrackConfigID  model.TrackConfigID
	ParticipantIDs []model.PlayerID
	StartedAtUnix  int64
}

const defaultBufferCapacity = 4096

// Recorder buffers one session's frames and flushes them on Finish. It
// never blocks the tick loop: Record appends to an in-memory ring and
// returns immediately, dropping the oldest frame on overflow.
type Recorder struct {
	sink     Sink
	log      zerolog.Logger
	capacity int

	header        Header
	frames        []Frame
	started       bool
	overflowCount int
}

func NewRecorder(sink Sink, logger zerolog.Logger) *Recorder {
	return &Recorder{
		sink:     sink,
		log:      logger.With().Str("component", "replay").Logger(),
		capacity: defaultBufferCapacity,
	}
}

// Begin starts recording on the Countdown->Racing transition (§4.6).
func (rec *Recorder) Begin(header Header) {
	rec.header = header
	rec.header.StartedAtUnix = time.Now().Unix()
	rec.frames = make([]Frame, 0, rec.capacity)
	rec.started = true
}

// Record appends one tick's telemetry snapshot. If the in-memory buffer
// is at capacity the oldest frame is dropped and the overflow is logged
// (§4.6: "the oldest in-memory frames may be dropped while continuing to
// record new ones, with the overflow event logged").
func (rec *Recorder) Record(tick int64, snapshot codec.Telemetry) {
	if !rec.started {
		return
	}
	if len(rec.frames) >= rec.capacity {
		rec.frames = rec.frames[1:]
		rec.overflowCount++
		if rec.overflowCount == 1 || rec.overflowCount%1000 == 0 {
			rec.log.Warn().
				Str("session_id", rec.header.SessionID.String()).
				Int("overflow_count", rec.overflowCount).
				Msg("replay buffer overflow, dropping oldest frame")
		}
	}
	rec.frames = append(rec.frames, Frame{Tick: tick, Telemetry: snapshot})
}

// Finish writes the durable artifact: header, then concatenated frames,
// through a sink-provided writer. It is safe to call even if Begin was
// never called (a no-op), matching "one recorder per Racing session".
func (rec *Recorder) Finish() error {
	if !rec.started {
		return nil
	}
	rec.started = false

	w, err := rec.sink.Open(rec.header.SessionID, rec.header.StartedAtUnix)
	if err != nil {
		return fmt.Errorf("replay: opening sink for session %s: %w", rec.header.SessionID, err)
	}
	defer w.Close()

	if err := writeHeader(w, rec.header, int64(len(rec.frames))); err != nil {
		return fmt.Errorf("replay: writing header: %w", err)
	}
	for _, frame := range rec.frames {
		if err := writeFrame(w, frame); err != nil {
			return fmt.Errorf("replay: writing frame at tick %d: %w", frame.Tick, err)
		}
	}

	rec.log.Info().
		Str("session_id", rec.header.SessionID.String()).
		Int("frame_count", len(rec.frames)).
		Int("dropped", rec.overflowCount).
		Msg("replay artifact written")
	return nil
}

func writeHeader(w io.Writer, h Header, frameCount int64) error {
	if _, err := w.Write(h.SessionID[:]); err != nil {
		return err
	}
	if _, err := w.Write(h.TrackConfigID[:]); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint16(len(h.ParticipantIDs))); err != nil {
		return err
	}
	for _, id := range h.ParticipantIDs {
		if _, err := w.Write(id[:]); err != nil {
			return err
		}
	}
	if err := binary.Write(w, binary.LittleEndian, h.StartedAtUnix); err != nil {
		return err
	}
	return binary.Write(w, binary.LittleEndian, frameCount)
}

func writeFrame(w io.Writer, frame Frame) error {
	payload, err := codec.Encode(frame.Telemetry)
	if err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, frame.Tick); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(payload))); err != nil {
		return err
	}
	_, err = w.Write(payload)
	return err
}
