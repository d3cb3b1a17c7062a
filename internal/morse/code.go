// Package morse holds the International Morse table for the Latin letters and
// the conversions between its run-length form and the 16-bit pulse patterns
// used by LED drivers.
package morse

import (
	"errors"
	"strings"
)

const (
	// PatternWidth is the number of dot-time slots in a Pattern.
	PatternWidth = 16

	OnesInDot  = 1
	OnesInDash = 3
)

var ErrCodeTooLong = errors.New("morse code does not fit in a 16-bit pattern")

// Code is one letter as the lengths of its "on" runs, in transmission order.
// Runs are separated by a single dot-time of darkness. R is {1, 3, 1}.
type Code []uint8

// Pattern is the fixed-width form of a Code: most significant bit first, one
// bit per dot-time, padded with zeros on the right.
type Pattern uint16

// Pulses is an explicit on/off sequence, one entry per dot-time. It always
// ends with the last "on" slot; padding is never part of it.
type Pulses []bool

// Pulses expands the code into its on/off slots.
func (c Code) Pulses() Pulses {
	var p Pulses
	for i, run := range c {
		if i > 0 {
			p = append(p, false)
		}
		for j := uint8(0); j < run; j++ {
			p = append(p, true)
		}
	}
	return trimPulses(p)
}

// Pattern packs the code into 16 bits.
func (c Code) Pattern() (Pattern, error) {
	p := c.Pulses()
	if len(p) > PatternWidth {
		return 0, ErrCodeTooLong
	}
	var bits Pattern
	for i, on := range p {
		if on {
			bits |= 1 << (PatternWidth - 1 - i)
		}
	}
	return bits, nil
}

// String renders the code as dots and dashes. Runs that are neither are
// shown as '?'.
func (c Code) String() string {
	var sb strings.Builder
	for _, run := range c {
		switch run {
		case OnesInDot:
			sb.WriteByte('.')
		case OnesInDash:
			sb.WriteByte('-')
		default:
			sb.WriteByte('?')
		}
	}
	return sb.String()
}

// Pulses unpacks the pattern, stopping at its last set bit.
func (p Pattern) Pulses() Pulses {
	var out Pulses
	for rest := p; rest != 0; rest <<= 1 {
		out = append(out, rest&(1<<(PatternWidth-1)) != 0)
	}
	return out
}

// Code recovers the run lengths of the pattern. Gaps longer than one slot
// are not representable in a Code and collapse to a single separator.
func (p Pattern) Code() Code {
	var c Code
	var run uint8
	for _, on := range p.Pulses() {
		if on {
			run++
			continue
		}
		if run > 0 {
			c = append(c, run)
			run = 0
		}
	}
	if run > 0 {
		c = append(c, run)
	}
	return c
}

// Len is the meaningful length of the pattern in dot-times.
func (p Pattern) Len() int {
	return len(p.Pulses())
}

func trimPulses(p Pulses) Pulses {
	n := len(p)
	for n > 0 && !p[n-1] {
		n--
	}
	return p[:n]
}
