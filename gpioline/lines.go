// SPDX-FileCopyrightText: 2023 Kent Gibson <warthog618@gmail.com>
//
// SPDX-License-Identifier: Apache-2.0 OR MIT

package gpioline

import (
	"sort"
	"sync"
	"syscall"

	"github.com/pkg/errors"
	"github.com/warthog618/go-gpiocdev"
	"github.com/warthog618/go-padmux"
)

// Chip describes a GPIO chip and the range of global GPIO numbers it serves.
type Chip struct {
	// The name or path of the chip, e.g. "gpiochip0" or "/dev/gpiochip0".
	Name string

	// The global GPIO number of offset 0 of the chip.
	Base int

	// The number of lines on the chip.
	//
	// If zero then it is read from the chip by NewLines.
	NumLines int
}

func (c Chip) contains(gpio int) bool {
	return gpio >= c.Base && gpio < c.Base+c.NumLines
}

// Lines is an implementation of padmux.GPIO backed by the GPIO character
// device.
//
// Each requested GPIO holds an open line request until freed.
//
// It is safe for concurrent use.
type Lines struct {
	chips []Chip

	mu     sync.Mutex
	reqs   map[int]*gpiocdev.Line
	closed bool
}

var _ padmux.GPIO = (*Lines)(nil)

// NewLines constructs a Lines serving the given chips.
//
// The ranges of GPIO numbers served by the chips must not overlap.
func NewLines(chips ...Chip) (*Lines, error) {
	if len(chips) == 0 {
		return nil, errors.New("no chips defined")
	}
	cc := make([]Chip, len(chips))
	for i, c := range chips {
		if len(c.Name) == 0 {
			return nil, errors.Errorf("chip %d has no name", i)
		}
		if c.Base < 0 {
			return nil, errors.Errorf("chip %s has negative base %d", c.Name, c.Base)
		}
		if c.NumLines == 0 {
			n, err := chipLines(c.Name)
			if err != nil {
				return nil, err
			}
			c.NumLines = n
		}
		if c.NumLines < 0 {
			return nil, errors.Errorf("chip %s has %d lines", c.Name, c.NumLines)
		}
		cc[i] = c
	}
	sort.Slice(cc, func(i, j int) bool { return cc[i].Base < cc[j].Base })
	for i := 1; i < len(cc); i++ {
		if cc[i].Base < cc[i-1].Base+cc[i-1].NumLines {
			return nil, errors.Errorf("chip %s overlaps chip %s", cc[i].Name, cc[i-1].Name)
		}
	}
	return &Lines{chips: cc, reqs: make(map[int]*gpiocdev.Line)}, nil
}

func chipLines(name string) (int, error) {
	c, err := gpiocdev.NewChip(name)
	if err != nil {
		return 0, errors.Wrapf(err, "open chip %s", name)
	}
	defer c.Close()
	return c.Lines(), nil
}

// Chips returns the chips served, ordered by base.
func (l *Lines) Chips() []Chip {
	return append([]Chip(nil), l.chips...)
}

// Locate maps a global GPIO number to its chip and offset.
func (l *Lines) Locate(gpio int) (Chip, int, error) {
	for _, c := range l.chips {
		if c.contains(gpio) {
			return c, gpio - c.Base, nil
		}
	}
	return Chip{}, 0, errors.Wrapf(ErrInvalidLine, "gpio %d", gpio)
}

// Request requests the line from the chip, configured to suit the direction.
func (l *Lines) Request(gpio int, d padmux.Direction, consumer string) error {
	c, offset, err := l.Locate(gpio)
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}
	if _, ok := l.reqs[gpio]; ok {
		return errors.Wrapf(ErrBusy, "gpio %d", gpio)
	}
	options := append(directionOptions(d), gpiocdev.WithConsumer(consumer))
	line, err := gpiocdev.RequestLine(c.Name, offset, options...)
	if err != nil {
		if errors.Is(err, syscall.EBUSY) {
			return errors.Wrapf(ErrBusy, "gpio %d (%s:%d)", gpio, c.Name, offset)
		}
		return errors.Wrapf(err, "request gpio %d (%s:%d)", gpio, c.Name, offset)
	}
	l.reqs[gpio] = line
	return nil
}

// Free releases a line previously requested.
func (l *Lines) Free(gpio int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	line, ok := l.reqs[gpio]
	if !ok {
		return errors.Wrapf(ErrNotRequested, "gpio %d", gpio)
	}
	delete(l.reqs, gpio)
	return line.Close()
}

// Requested returns the GPIO numbers of the lines currently requested.
func (l *Lines) Requested() []int {
	l.mu.Lock()
	gg := make([]int, 0, len(l.reqs))
	for g := range l.reqs {
		gg = append(gg, g)
	}
	l.mu.Unlock()
	sort.Ints(gg)
	return gg
}

// Close frees all requested lines.
//
// Any subsequent Request fails.
func (l *Lines) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	var first error
	for g, line := range l.reqs {
		if err := line.Close(); err != nil && first == nil {
			first = errors.Wrapf(err, "free gpio %d", g)
		}
		delete(l.reqs, g)
	}
	return first
}

// directionOptions maps a pad direction to the line configuration.
//
// Alternate function pads are driven by the peripheral, so the line is held
// as an input to reserve it.
func directionOptions(d padmux.Direction) []gpiocdev.LineReqOption {
	switch d {
	case padmux.DirectionIn, padmux.DirectionAltOut, padmux.DirectionAltBidir:
		return []gpiocdev.LineReqOption{gpiocdev.AsInput}
	case padmux.DirectionOut:
		return []gpiocdev.LineReqOption{gpiocdev.AsOutput(0)}
	case padmux.DirectionBidir:
		return []gpiocdev.LineReqOption{gpiocdev.AsOpenDrain, gpiocdev.AsOutput(1)}
	default:
		return []gpiocdev.LineReqOption{gpiocdev.AsIs}
	}
}
