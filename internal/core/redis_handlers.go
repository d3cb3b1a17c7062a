package core

import (
	"errors"
	"fmt"

	"morse-service/internal/keyer"
)

// handleSpeakRequest handles text pushed to the speak list. The listener
// blocks until the transmission is over.
func (s *MorseSystem) handleSpeakRequest(text string) error {
	s.logger.Debugf("Handling speak request: %q", text)
	err := s.Speak(s.ctx, text)
	if errors.Is(err, keyer.ErrInterrupted) {
		return nil
	}
	return err
}

// handleReadRequest drains the transcript into the state hash
func (s *MorseSystem) handleReadRequest(max int) error {
	s.logger.Debugf("Handling read request: max %d", max)
	data, err := s.Read(s.ctx, max)
	if err != nil {
		return err
	}
	s.logger.Debugf("Read %d transcript bytes", len(data))
	return nil
}

// handleControlRequest handles keyer control commands
func (s *MorseSystem) handleControlRequest(cmd string) error {
	s.logger.Debugf("Handling control request: %s", cmd)
	switch cmd {
	case "abort":
		if !s.Abort() {
			s.logger.Infof("Abort requested but no job is running")
		}
		return nil
	default:
		return fmt.Errorf("invalid control command: %s", cmd)
	}
}
