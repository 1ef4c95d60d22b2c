package replay

import (
	"github.com/rs/zerolog"
)

// flushJob carries one finished recorder's buffered frames to the
// background worker.
type flushJob struct {
	recorder *Recorder
}

// Manager owns the background flush worker all recorders share, so the
// scheduler's housekeep step only has to hand off a pointer instead of
// performing file I/O itself (§4.6: "must never block the tick loop").
// This mirrors the teacher's dedicated-goroutine-per-loop shape applied
// to a work queue instead of a ticker.
type Manager struct {
	sink Sink
	log  zerolog.Logger
	jobs chan flushJob
	done chan struct{}
}

const flushQueueCapacity = 64

func NewManager(sink Sink, logger zerolog.Logger) *Manager {
	m := &Manager{
		sink: sink,
		log:  logger.With().Str("component", "replay-manager").Logger(),
		jobs: make(chan flushJob, flushQueueCapacity),
		done: make(chan struct{}),
	}
	go m.run()
	return m
}

// NewSessionRecorder returns a recorder wired to this manager's shared
// sink, ready for Begin.
func (m *Manager) NewSessionRecorder() *Recorder {
	return NewRecorder(m.sink, m.log)
}

// Enqueue hands a finished recorder to the background worker. It never
// blocks the caller beyond the channel send, which only waits if the
// flush queue itself is saturated (a condition that only arises under
// sustained session-churn well beyond normal operation).
func (m *Manager) Enqueue(rec *Recorder) {
	select {
	case m.jobs <- flushJob{recorder: rec}:
	case <-m.done:
	}
}

func (m *Manager) run() {
	for {
		select {
		case job := <-m.jobs:
			if err := job.recorder.Finish(); err != nil {
				m.log.Error().Err(err).Msg("replay flush failed")
			}
		case <-m.done:
			// drain whatever is already queued before exiting so a
			// shutdown does not silently lose buffered recordings.
			for {
				select {
				case job := <-m.jobs:
					if err := job.recorder.Finish(); err != nil {
						m.log.Error().Err(err).Msg("replay flush failed")
					}
				default:
					return
				}
			}
		}
	}
}

// Close signals the worker to drain its queue and stop. It does not
// close the jobs channel, since Enqueue callers may race with shutdown.
func (m *Manager) Close() {
	close(m.done)
}
