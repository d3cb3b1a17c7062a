package core

import (
	"context"

	"github.com/dustin/go-humanize"
	"github.com/librescoot/librefsm"

	"morse-service/internal/fsm"
	"morse-service/internal/types"
)

// Ensure MorseSystem implements fsm.Actions
var _ fsm.Actions = (*MorseSystem)(nil)

// stateIDToKeyerState converts librefsm StateID to types.KeyerState
func stateIDToKeyerState(id librefsm.StateID) types.KeyerState {
	switch id {
	case fsm.StateInit:
		return types.StateInit
	case fsm.StateIdle:
		return types.StateIdle
	case fsm.StateKeying:
		return types.StateKeying
	case fsm.StateAborting:
		return types.StateAborting
	default:
		return types.KeyerState(string(id))
	}
}

// initFSM initializes and starts the librefsm machine
func (s *MorseSystem) initFSM(ctx context.Context) error {
	def := fsm.NewDefinition(s)
	machine, err := def.Build()
	if err != nil {
		return err
	}

	machine.OnStateChange(func(from, to librefsm.StateID) {
		newState := stateIDToKeyerState(to)
		oldState := stateIDToKeyerState(from)

		s.logger.Infof("State transition: %s -> %s", oldState, newState)

		if s.redis == nil {
			return
		}

		var job string
		if newState == types.StateKeying || newState == types.StateAborting {
			s.mu.RLock()
			job = s.job
			s.mu.RUnlock()
		}
		if err := s.redis.PublishState(newState, job); err != nil {
			s.logger.Errorf("Failed to publish state: %v", err)
		}
	})

	if err := machine.Start(ctx); err != nil {
		return err
	}
	s.machine = machine

	s.logger.Infof("librefsm state machine started")
	return nil
}

// === State Entry Actions ===

func (s *MorseSystem) EnterIdle(c *librefsm.Context) error {
	s.logger.Debugf("FSM: EnterIdle")

	if err := s.io.Deactivate(); err != nil {
		s.logger.Warnf("Failed to switch indicator off: %v", err)
	}
	return nil
}

func (s *MorseSystem) EnterKeying(c *librefsm.Context) error {
	s.mu.RLock()
	job := s.job
	s.mu.RUnlock()

	s.logger.Debugf("FSM: EnterKeying (job %s)", job)
	return nil
}

func (s *MorseSystem) EnterAborting(c *librefsm.Context) error {
	s.mu.RLock()
	job := s.job
	cancel := s.cancelJob
	s.mu.RUnlock()

	s.logger.Infof("Aborting job %s", job)
	if cancel != nil {
		cancel()
	}

	if s.redis != nil {
		if err := s.redis.ReportJobFailure(job, "aborted"); err != nil {
			s.logger.Warnf("Failed to report aborted job: %v", err)
		}
	}
	return nil
}

// === State Exit Actions ===

func (s *MorseSystem) ExitKeying(c *librefsm.Context) error {
	s.mu.RLock()
	job := s.job
	start := s.jobStart
	s.mu.RUnlock()

	s.logger.Debugf("FSM: ExitKeying (job %s started %s)", job, humanize.Time(start))
	return nil
}

// === Guards ===

func (s *MorseSystem) HasActiveJob(c *librefsm.Context) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cancelJob != nil
}

// === Transition Actions ===

func (s *MorseSystem) OnFault(c *librefsm.Context) error {
	s.mu.RLock()
	job := s.job
	lastErr := s.lastErr
	s.mu.RUnlock()

	reason := "unknown"
	if lastErr != nil {
		reason = lastErr.Error()
	}
	s.logger.Warnf("Job %s faulted: %s", job, reason)

	if s.redis != nil {
		if err := s.redis.ReportJobFailure(job, reason); err != nil {
			s.logger.Warnf("Failed to report job failure: %v", err)
		}
	}
	return nil
}

func (s *MorseSystem) OnAbortTimeout(c *librefsm.Context) error {
	s.logger.Errorf("Aborted job did not stop within %v, forcing indicator off", fsm.AbortTimeout)
	if err := s.io.Deactivate(); err != nil {
		s.logger.Errorf("Failed to force indicator off: %v", err)
	}
	return nil
}
