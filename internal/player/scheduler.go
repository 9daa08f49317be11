// ABOUTME: Gapless playback scheduler with barge-in interruption
// ABOUTME: Queues decoded buffers back to back on the output timeline
package player

import (
	"sync"

	"github.com/Resonate-Protocol/ose-go/pkg/audio"
	"github.com/rs/zerolog/log"
)

// Scheduler places playback units end to end on an output context.
// nextStartTime is the scheduled end of the last unit; it only moves
// backwards on Interrupt.
type Scheduler struct {
	ctx Context

	mu            sync.Mutex
	nextStartTime float64
	active        map[Source]struct{}

	stats Stats
}

// Stats tracks scheduler metrics
type Stats struct {
	Scheduled        int64
	Interruptions    int64
	Stopped          int64
	ScheduledSeconds float64
}

// NewScheduler creates a playback scheduler
func NewScheduler(ctx Context) *Scheduler {
	return &Scheduler{
		ctx:    ctx,
		active: make(map[Source]struct{}),
	}
}

// Schedule starts buf at max(cursor, now) and returns the start time.
// The cursor advances from the start the context actually used.
func (s *Scheduler) Schedule(buf *audio.Buffer) float64 {
	src := s.ctx.NewSource(buf)
	src.OnEnded(func() {
		s.mu.Lock()
		delete(s.active, src)
		s.mu.Unlock()
	})

	s.mu.Lock()
	now := s.ctx.CurrentTime()
	start := src.Start(max(s.nextStartTime, now))
	s.nextStartTime = start + src.Duration()
	s.active[src] = struct{}{}
	s.stats.Scheduled++
	s.stats.ScheduledSeconds += src.Duration()
	count := s.stats.Scheduled
	s.mu.Unlock()

	if count <= 3 {
		log.Debug().
			Float64("start", start).
			Float64("now", now).
			Float64("duration", src.Duration()).
			Msg("Scheduled playback unit")
	}

	return start
}

// Interrupt stops every active unit and rewinds the cursor to zero.
// It returns how many units were stopped.
func (s *Scheduler) Interrupt() int {
	s.mu.Lock()
	units := make([]Source, 0, len(s.active))
	for src := range s.active {
		units = append(units, src)
	}
	clear(s.active)
	s.nextStartTime = 0
	s.stats.Interruptions++
	s.stats.Stopped += int64(len(units))
	s.mu.Unlock()

	for _, src := range units {
		src.Stop()
	}

	log.Debug().Int("stopped", len(units)).Msg("Playback interrupted")
	return len(units)
}

// Cursor returns the output time at which the next unit will start
func (s *Scheduler) Cursor() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextStartTime
}

// Active returns the number of units started and not yet ended
func (s *Scheduler) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// Stats returns scheduler statistics
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}
