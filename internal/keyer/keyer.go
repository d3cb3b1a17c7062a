// Package keyer turns text into timed actuator pulses and records what was
// sent in a transcript queue.
//
// All durations are multiples of one dot-time. A letter is flashed one slot at
// a time; the off slot after each letter already provides one dot-time of the
// inter-letter gap, so Speak only waits for the remainder.
package keyer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/atomic"

	"morse-service/internal/hardware"
	"morse-service/internal/logger"
	"morse-service/internal/morse"
	"morse-service/internal/transcript"
)

const (
	MinDotTimeMs     = 1
	MaxDotTimeMs     = 2000
	DefaultDotTimeMs = 200
)

var (
	ErrInvalidDotTime = errors.New("invalid dot time")

	// ErrInterrupted is returned when a sleep or a transcript access was
	// cancelled. It is the same value as transcript.ErrInterrupted.
	ErrInterrupted = transcript.ErrInterrupted
)

// EffectiveDotTime validates a dot time in milliseconds. Out of range values
// yield the default together with ErrInvalidDotTime.
func EffectiveDotTime(ms int) (time.Duration, error) {
	if ms < MinDotTimeMs || ms > MaxDotTimeMs {
		return DefaultDotTimeMs * time.Millisecond,
			fmt.Errorf("%w: %dms, valid range is [%d-%d]", ErrInvalidDotTime, ms, MinDotTimeMs, MaxDotTimeMs)
	}
	return time.Duration(ms) * time.Millisecond, nil
}

// SleepFunc waits for d or until ctx is done, whichever comes first.
type SleepFunc func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type Option func(*Keyer)

// WithSleep replaces the timed wait, mostly for tests.
func WithSleep(fn SleepFunc) Option {
	return func(k *Keyer) {
		k.sleep = fn
	}
}

// Keyer is the single producer of the transcript. It is not safe for
// concurrent Speak calls; callers serialise transmissions.
type Keyer struct {
	dotTime time.Duration
	led     hardware.Actuator
	queue   *transcript.Queue
	logger  *logger.Logger
	sleep   SleepFunc

	letters  atomic.Uint64
	wordGaps atomic.Uint64
}

// New builds a keyer. An out-of-range dot time falls back to the default and
// is reported as a warning.
func New(dotTimeMs int, led hardware.Actuator, queue *transcript.Queue, l *logger.Logger, opts ...Option) *Keyer {
	k := &Keyer{
		led:    led,
		queue:  queue,
		logger: l.WithTag("keyer"),
		sleep:  sleepContext,
	}
	dot, err := EffectiveDotTime(dotTimeMs)
	if err != nil {
		k.logger.Warnf("%v; defaulting to %dms", err, DefaultDotTimeMs)
	}
	k.dotTime = dot
	for _, opt := range opts {
		opt(k)
	}
	return k
}

func (k *Keyer) DotTime() time.Duration {
	return k.dotTime
}

// Letters counts letters flashed to completion.
func (k *Keyer) Letters() uint64 {
	return k.letters.Load()
}

// WordGaps counts word gaps inserted between words.
func (k *Keyer) WordGaps() uint64 {
	return k.wordGaps.Load()
}

// Speak flashes text. Leading bytes up to the first letter are ignored, runs
// of spaces and other bytes between words become one word gap, trailing
// non-letters are dropped, and any other byte is skipped without timing.
//
// It blocks for the whole transmission. On error the actuator is left off.
func (k *Keyer) Speak(ctx context.Context, text []byte) (err error) {
	defer func() {
		if err != nil {
			k.forceOff()
		}
	}()

	i := 0
	for i < len(text) && !morse.IsLetter(text[i]) {
		i++
	}

	first := true
	for ; i < len(text); i++ {
		ch := text[i]
		switch {
		case morse.IsLetter(ch):
			if !first {
				if err := k.put(ctx, transcript.Separator); err != nil {
					return err
				}
				if err := k.wait(ctx, morse.InterLetterGap-morse.IntraLetterGap); err != nil {
					return err
				}
			}
			code, _ := morse.Lookup(ch)
			k.logger.Debugf("Flashing %c %s", ch, code)
			if err := k.Flash(ctx, code); err != nil {
				return err
			}
			k.letters.Inc()
			first = false

		case ch == ' ':
			next := i + 1
			for next < len(text) && !morse.IsLetter(text[next]) {
				next++
			}
			if next >= len(text) {
				return nil
			}
			if err := k.put(ctx, transcript.Separator); err != nil {
				return err
			}
			if err := k.put(ctx, transcript.Separator); err != nil {
				return err
			}
			if err := k.wait(ctx, morse.InterWordGap-morse.InterLetterGap); err != nil {
				return err
			}
			k.wordGaps.Inc()
			i = next - 1
		}
	}
	return nil
}

// Flash sends one letter code and appends its dots and dashes to the
// transcript.
func (k *Keyer) Flash(ctx context.Context, code morse.Code) error {
	return k.flashPulses(ctx, code.Pulses())
}

// FlashPattern sends a 16-bit pattern, ignoring its zero padding.
func (k *Keyer) FlashPattern(ctx context.Context, p morse.Pattern) error {
	return k.flashPulses(ctx, p.Pulses())
}

// flashPulses walks the slots, one dot-time each. Every maximal on-run is
// classified when it ends: one slot is a dot, three a dash, anything else is
// not recorded. The final off slot lets the letter settle.
func (k *Keyer) flashPulses(ctx context.Context, pulses morse.Pulses) (err error) {
	defer func() {
		if err != nil {
			k.forceOff()
		}
	}()

	run := 0
	for _, on := range pulses {
		if on {
			k.activate()
			run++
		} else {
			if err := k.endRun(ctx, run); err != nil {
				return err
			}
			k.deactivate()
			run = 0
		}
		if err := k.wait(ctx, 1); err != nil {
			return err
		}
	}

	if err := k.endRun(ctx, run); err != nil {
		return err
	}
	k.deactivate()
	return k.wait(ctx, 1)
}

func (k *Keyer) endRun(ctx context.Context, run int) error {
	switch run {
	case morse.OnesInDot:
		return k.put(ctx, transcript.Dot)
	case morse.OnesInDash:
		return k.put(ctx, transcript.Dash)
	}
	return nil
}

// put records a symbol. A full queue is not a reason to stop keying.
func (k *Keyer) put(ctx context.Context, sym transcript.Symbol) error {
	err := k.queue.Put(ctx, sym)
	if errors.Is(err, transcript.ErrQueueOverflow) {
		k.logger.Debugf("Transcript full, dropped %q (total dropped %d)", byte(sym), k.queue.Dropped())
		return nil
	}
	return err
}

func (k *Keyer) wait(ctx context.Context, dots int) error {
	if err := k.sleep(ctx, time.Duration(dots)*k.dotTime); err != nil {
		return fmt.Errorf("%w: %w", ErrInterrupted, err)
	}
	return nil
}

func (k *Keyer) activate() {
	if err := k.led.Activate(); err != nil {
		k.logger.Warnf("Failed to switch indicator on: %v", err)
	}
}

func (k *Keyer) deactivate() {
	if err := k.led.Deactivate(); err != nil {
		k.logger.Warnf("Failed to switch indicator off: %v", err)
	}
}

func (k *Keyer) forceOff() {
	if err := k.led.Deactivate(); err != nil {
		k.logger.Errorf("Failed to force indicator off: %v", err)
	}
}
