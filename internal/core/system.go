// File: internal/core/system.go
package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/librescoot/librefsm"
	"go.uber.org/atomic"

	"morse-service/internal/fsm"
	"morse-service/internal/keyer"
	"morse-service/internal/logger"
	"morse-service/internal/messaging"
	"morse-service/internal/transcript"
	"morse-service/internal/types"
)

// stateMachine is the part of the librefsm machine MorseSystem drives.
type stateMachine interface {
	Start(ctx context.Context) error
	SendSync(ev librefsm.Event) error
	CurrentState() librefsm.StateID
}

type MorseSystem struct {
	logger  *logger.Logger
	io      IndicatorDevice
	redis   MessagingClient
	keyer   *keyer.Keyer
	queue   *transcript.Queue
	machine stateMachine

	ctx    context.Context
	cancel context.CancelFunc

	// The machine outlives ctx so that a cancelled job can still report back.
	fsmCtx    context.Context
	fsmCancel context.CancelFunc

	// speakMu serialises transmissions; the keyer is single-producer.
	speakMu sync.Mutex

	mu           sync.RWMutex
	job          string
	jobStart     time.Time
	cancelJob    context.CancelFunc
	lastJob      string
	lastDuration time.Duration
	lastErr      error

	jobs atomic.Uint64
}

// NewMorseSystem wires the keyer to the indicator and the transcript queue.
// redis may be nil for one-shot use.
func NewMorseSystem(io IndicatorDevice, redis MessagingClient, queue *transcript.Queue, dotTimeMs int, l *logger.Logger, opts ...keyer.Option) *MorseSystem {
	ctx, cancel := context.WithCancel(context.Background())
	fsmCtx, fsmCancel := context.WithCancel(context.Background())
	return &MorseSystem{
		logger:    l,
		io:        io,
		redis:     redis,
		keyer:     keyer.New(dotTimeMs, io, queue, l, opts...),
		queue:     queue,
		ctx:       ctx,
		cancel:    cancel,
		fsmCtx:    fsmCtx,
		fsmCancel: fsmCancel,
	}
}

func (s *MorseSystem) Start() error {
	s.logger.Infof("Starting morse system")

	if s.redis != nil {
		s.redis.SetCallbacks(messaging.Callbacks{
			SpeakCallback:   s.handleSpeakRequest,
			ReadCallback:    s.handleReadRequest,
			ControlCallback: s.handleControlRequest,
		})
		if err := s.redis.Connect(); err != nil {
			return fmt.Errorf("failed to connect to Redis: %w", err)
		}
	}

	if err := s.io.Init(); err != nil {
		return fmt.Errorf("failed to initialize indicator: %w", err)
	}
	if err := s.initFSM(s.fsmCtx); err != nil {
		return fmt.Errorf("failed to start state machine: %w", err)
	}
	if err := s.sendEvent(fsm.EvReady); err != nil {
		return fmt.Errorf("failed to enter idle state: %w", err)
	}

	s.logger.Infof("Morse keyer ready: dot time %v, transcript capacity %s symbols (%s)",
		s.keyer.DotTime(), humanize.Comma(int64(s.queue.Cap())), s.queue.Policy())

	if s.redis != nil {
		if err := s.redis.StartListening(); err != nil {
			return fmt.Errorf("failed to start Redis listeners: %w", err)
		}
	}

	s.logger.Infof("System started successfully")
	return nil
}

// Speak transmits text as one job. Jobs never overlap; a second caller
// waits for the first to finish.
func (s *MorseSystem) Speak(ctx context.Context, text string) error {
	s.speakMu.Lock()
	defer s.speakMu.Unlock()

	if err := s.ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", keyer.ErrInterrupted, err)
	}

	jobCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	job := uuid.NewString()
	start := time.Now()

	s.mu.Lock()
	s.job = job
	s.jobStart = start
	s.cancelJob = cancel
	s.mu.Unlock()
	defer s.clearJob()

	if err := s.sendEvent(fsm.EvSpeak); err != nil {
		return fmt.Errorf("failed to start job %s: %w", job, err)
	}

	s.logger.Infof("Job %s: sending %d bytes", job, len(text))
	err := s.keyer.Speak(jobCtx, []byte(text))
	elapsed := time.Since(start)
	s.jobs.Inc()

	s.mu.Lock()
	s.lastJob = job
	s.lastDuration = elapsed
	s.lastErr = err
	s.mu.Unlock()

	event := fsm.EvDone
	if err != nil {
		event = fsm.EvFault
		if errors.Is(err, keyer.ErrInterrupted) {
			s.logger.Infof("Job %s interrupted after %v", job, elapsed)
		} else {
			s.logger.Warnf("Job %s failed after %v: %v", job, elapsed, err)
		}
	} else {
		s.logger.Infof("Job %s done in %v", job, elapsed)
	}

	if evErr := s.sendEvent(event); evErr != nil {
		s.logger.Warnf("Failed to report end of job %s: %v", job, evErr)
	}

	s.publishStats()
	return err
}

// Read drains up to max transcript symbols and publishes them. It never waits
// for new symbols.
func (s *MorseSystem) Read(ctx context.Context, max int) ([]byte, error) {
	data, err := s.queue.Drain(ctx, max)
	if err != nil {
		return data, fmt.Errorf("failed to drain transcript: %w", err)
	}
	if len(data) > 0 && s.redis != nil {
		if err := s.redis.PublishTranscript(data); err != nil {
			return data, err
		}
	}
	return data, nil
}

// Abort cancels the job in progress. It reports whether there was one.
func (s *MorseSystem) Abort() bool {
	if s.getCurrentState() != types.StateKeying {
		return false
	}
	if err := s.sendEvent(fsm.EvAbort); err != nil {
		s.logger.Warnf("Abort rejected: %v", err)
		return false
	}
	return true
}

// Stats returns a snapshot of the keyer counters.
func (s *MorseSystem) Stats() types.Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return types.Stats{
		Letters:      s.keyer.Letters(),
		WordGaps:     s.keyer.WordGaps(),
		Symbols:      s.queue.Written(),
		Dropped:      s.queue.Dropped(),
		Queued:       s.queue.Len(),
		Jobs:         s.jobs.Load(),
		LastJob:      s.lastJob,
		LastDuration: s.lastDuration,
	}
}

func (s *MorseSystem) publishStats() {
	stats := s.Stats()
	s.logger.Debugf("Stats: %s letters, %s symbols, %s dropped, %s queued, %s jobs",
		humanize.Comma(int64(stats.Letters)),
		humanize.Comma(int64(stats.Symbols)),
		humanize.Comma(int64(stats.Dropped)),
		humanize.Comma(int64(stats.Queued)),
		humanize.Comma(int64(stats.Jobs)))

	if s.redis == nil {
		return
	}
	if err := s.redis.PublishStats(stats); err != nil {
		s.logger.Warnf("Failed to publish stats: %v", err)
	}
}

func (s *MorseSystem) clearJob() {
	s.mu.Lock()
	s.job = ""
	s.cancelJob = nil
	s.mu.Unlock()
}

func (s *MorseSystem) Shutdown() {
	s.logger.Infof("Shutting down morse system")
	s.cancel()

	s.mu.RLock()
	cancelJob := s.cancelJob
	s.mu.RUnlock()
	if cancelJob != nil {
		cancelJob()
	}

	// Wait for a cancelled job to report back and hand back the indicator
	// while Redis is still open. Later Speak calls see ctx done and return
	// without keying, so the lock need not be held past this point.
	s.speakMu.Lock()
	s.logger.Debugf("No job running, closing messaging")
	s.speakMu.Unlock()

	if s.redis != nil {
		s.redis.Close()
	}

	if s.io != nil {
		if err := s.io.Deactivate(); err != nil {
			s.logger.Warnf("Failed to switch indicator off: %v", err)
		}
		s.io.Cleanup()
	}
	s.fsmCancel()
}
