// SPDX-FileCopyrightText: 2023 Kent Gibson <warthog618@gmail.com>
//
// SPDX-License-Identifier: Apache-2.0 OR MIT

package gpioline

import (
	"sort"
	"sync"

	"github.com/pkg/errors"
	"github.com/warthog618/go-padmux"
)

var (
	// ErrBusy indicates the line is already requested.
	ErrBusy = errors.New("line busy")

	// ErrNotRequested indicates a free of a line that is not requested.
	ErrNotRequested = errors.New("line not requested")

	// ErrInvalidLine indicates the GPIO number does not map to a line.
	ErrInvalidLine = errors.New("invalid line")

	// ErrClosed indicates use of the lines after they were closed.
	ErrClosed = errors.New("lines closed")
)

// LineInfo describes the state of a requested line.
type LineInfo struct {
	GPIO      int
	Consumer  string
	Direction padmux.Direction

	// Hogged lines were reserved at construction and cannot be freed.
	Hogged bool
}

// Table is an in-memory implementation of padmux.GPIO.
//
// It is safe for concurrent use.
type Table struct {
	mu       sync.Mutex
	numLines int
	lines    map[int]LineInfo
}

var _ padmux.GPIO = (*Table)(nil)

// NewTable constructs a Table based on the provided options.
//
// The available options are [WithNumLines] and [WithHoggedLine].
// Without WithNumLines any non-negative GPIO number is accepted.
func NewTable(options ...TableOption) *Table {
	t := &Table{lines: make(map[int]LineInfo)}
	for _, o := range options {
		o.applyTableOption(t)
	}
	return t
}

// Request records the line as requested by the consumer.
func (t *Table) Request(gpio int, d padmux.Direction, consumer string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if gpio < 0 || (t.numLines > 0 && gpio >= t.numLines) {
		return errors.Wrapf(ErrInvalidLine, "gpio %d", gpio)
	}
	if li, ok := t.lines[gpio]; ok {
		return errors.Wrapf(ErrBusy, "gpio %d requested by %q", gpio, li.Consumer)
	}
	t.lines[gpio] = LineInfo{GPIO: gpio, Consumer: consumer, Direction: d}
	return nil
}

// Free releases a line previously requested.
func (t *Table) Free(gpio int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	li, ok := t.lines[gpio]
	if !ok || li.Hogged {
		return errors.Wrapf(ErrNotRequested, "gpio %d", gpio)
	}
	delete(t.lines, gpio)
	return nil
}

// Line returns the state of a line, if requested.
func (t *Table) Line(gpio int) (LineInfo, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	li, ok := t.lines[gpio]
	return li, ok
}

// Requested returns the state of all requested lines, hogs included, ordered
// by GPIO number.
func (t *Table) Requested() []LineInfo {
	t.mu.Lock()
	lines := make([]LineInfo, 0, len(t.lines))
	for _, li := range t.lines {
		lines = append(lines, li)
	}
	t.mu.Unlock()
	sort.Slice(lines, func(i, j int) bool { return lines[i].GPIO < lines[j].GPIO })
	return lines
}

// TableOption defines the interface required to provide an option to NewTable.
type TableOption interface {
	applyTableOption(*Table)
}

// NumLinesOption limits the range of GPIO numbers accepted by a Table.
type NumLinesOption int

// WithNumLines returns an option that limits a Table to GPIOs 0..n-1.
func WithNumLines(n int) NumLinesOption {
	return NumLinesOption(n)
}

func (o NumLinesOption) applyTableOption(t *Table) {
	t.numLines = int(o)
}

// HoggedLine is an option that hogs a line.
type HoggedLine struct {
	GPIO     int
	Consumer string
}

// WithHoggedLine returns an option to hog a line.
//
// Hogging the line makes it appear requested by another consumer.
func WithHoggedLine(gpio int, consumer string) HoggedLine {
	return HoggedLine{gpio, consumer}
}

func (o HoggedLine) applyTableOption(t *Table) {
	t.lines[o.GPIO] = LineInfo{
		GPIO:      o.GPIO,
		Consumer:  o.Consumer,
		Direction: padmux.DirectionUnknown,
		Hogged:    true,
	}
}
