// SPDX-FileCopyrightText: 2023 Kent Gibson <warthog618@gmail.com>
//
// SPDX-License-Identifier: Apache-2.0 OR MIT

package padmux

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// MaxLabelLen is the maximum length of a canonical label, including the dots
// separating the hierarchy and the implicit terminator.
//
// So the longest usable canonical string is MaxLabelLen-1 bytes.
const MaxLabelLen = 32

// MaxLabelPads is the maximum number of pads a single label may describe.
const MaxLabelPads = 1024

// Label identifies a pad, or a set of pads, within the chip.
//
// A label is a dot separated hierarchy, "<group>[.<subgroup>...].<pad>",
// represented as a prefix and an optional suffix.
// Labels are always compared in their canonical string form, so differently
// constructed labels denoting the same pads are interchangeable.
//
// The following all describe the PIO3.7 pad:
//
//	padmux.NewLabel("PIO3.7")
//	padmux.LabelNumber("PIO3", 7)
//	padmux.LabelStrings("PIO3", "7")
//
// and these all describe the PIO3.5, PIO3.6 and PIO3.7 pads:
//
//	padmux.LabelRange("PIO3", 5, 7)
//	padmux.LabelList("PIO3", 5, 6, 7)
//	padmux.LabelStrings("PIO3", "5", "6", "7")
type Label struct {
	// The pad group name, e.g. "PIO3" or "VIDDIGOUT.YC".
	Prefix string

	// The optional suffix.
	//
	// If nil then the Prefix alone identifies the pad.
	Suffix Suffix
}

// Suffix is the optional pad identifier part of a Label.
//
// The available suffixes are Number, Range, List and Strings.
type Suffix interface {
	// elems returns the number of canonical strings the suffix expands to.
	//
	// Counts beyond MaxLabelPads may be reported as MaxLabelPads+1.
	elems() int

	// elem returns the string form of the suffix element at index i.
	elem(i int) string
}

// Number suffixes a label with a single pad number.
type Number int

func (s Number) elems() int {
	return 1
}

func (s Number) elem(int) string {
	return strconv.Itoa(int(s))
}

// Range suffixes a label with the pads numbered From to To, inclusive.
//
// A Range with From greater than To describes no pads.
type Range struct {
	From int
	To   int
}

func (s Range) elems() int {
	if s.From > s.To {
		return 0
	}
	// the span of any int range fits in a uint64, though the count may not
	span := uint64(s.To) - uint64(s.From)
	if span >= MaxLabelPads {
		return MaxLabelPads + 1
	}
	return int(span) + 1
}

func (s Range) elem(i int) string {
	return strconv.Itoa(s.From + i)
}

// List suffixes a label with an explicit list of pad numbers.
type List []int

func (s List) elems() int {
	return len(s)
}

func (s List) elem(i int) string {
	return strconv.Itoa(s[i])
}

// Strings suffixes a label with an explicit list of pad names.
type Strings []string

func (s Strings) elems() int {
	return len(s)
}

func (s Strings) elem(i int) string {
	return s[i]
}

// NewLabel returns a label fully identified by the string provided.
func NewLabel(label string) Label {
	return Label{Prefix: label}
}

// LabelNumber returns a label for a single numbered pad within a group.
func LabelNumber(prefix string, number int) Label {
	return Label{Prefix: prefix, Suffix: Number(number)}
}

// LabelRange returns a label for a contiguous range of numbered pads within
// a group.
func LabelRange(prefix string, from, to int) Label {
	return Label{Prefix: prefix, Suffix: Range{from, to}}
}

// LabelList returns a label for a list of numbered pads within a group.
func LabelList(prefix string, numbers ...int) Label {
	return Label{Prefix: prefix, Suffix: List(numbers)}
}

// LabelStrings returns a label for a list of named pads within a group.
func LabelStrings(prefix string, names ...string) Label {
	return Label{Prefix: prefix, Suffix: Strings(names)}
}

// ParseLabel returns the label for the given canonical string, after checking
// that it is a valid label.
func ParseLabel(label string) (Label, error) {
	l := NewLabel(label)
	if err := l.Validate(); err != nil {
		return Label{}, err
	}
	return l, nil
}

// Len returns the number of pads described by the label.
//
// Labels describing more than MaxLabelPads pads report MaxLabelPads+1.
func (l Label) Len() int {
	if l.Suffix == nil {
		return 1
	}
	return l.Suffix.elems()
}

// Canonical returns the canonical string for the pad at index i of the label.
func (l Label) Canonical(i int) (string, error) {
	if i < 0 || i >= l.Len() {
		return "", errors.Errorf("label %s has no pad %d", l, i)
	}
	s := l.Prefix
	if l.Suffix != nil {
		e := l.Suffix.elem(i)
		if len(e) == 0 {
			return "", errors.Wrapf(ErrInvalidLabel, "%s has an empty suffix", l.Prefix)
		}
		s = s + "." + e
	}
	if len(s) >= MaxLabelLen {
		return "", errors.Wrapf(ErrLabelTooLong, "%q", s)
	}
	return s, nil
}

// Expand returns the canonical strings of all the pads described by the
// label, in suffix order.
func (l Label) Expand() ([]string, error) {
	if len(l.Prefix) == 0 {
		return nil, errors.Wrap(ErrInvalidLabel, "empty prefix")
	}
	n := l.Len()
	if n > MaxLabelPads {
		return nil, errors.Wrapf(ErrInvalidLabel, "%s describes more than %d pads", l, MaxLabelPads)
	}
	pads := make([]string, 0, n)
	for i := 0; i < n; i++ {
		s, err := l.Canonical(i)
		if err != nil {
			return nil, err
		}
		pads = append(pads, s)
	}
	return pads, nil
}

// Validate checks that every pad of the label has a valid canonical form.
func (l Label) Validate() error {
	_, err := l.Expand()
	return err
}

// String returns a compact form of the label, e.g. "PIO3.[5..7]".
//
// For labels without a suffix or with a Number suffix, it is the canonical
// string.
func (l Label) String() string {
	switch s := l.Suffix.(type) {
	case nil:
		return l.Prefix
	case Number:
		return l.Prefix + "." + s.elem(0)
	case Range:
		return l.Prefix + ".[" + strconv.Itoa(s.From) + ".." + strconv.Itoa(s.To) + "]"
	default:
		elems := make([]string, s.elems())
		for i := range elems {
			elems[i] = s.elem(i)
		}
		return l.Prefix + ".{" + strings.Join(elems, ",") + "}"
	}
}

// SameSet returns true if the two labels describe the same set of pads,
// irrespective of order.
//
// Invalid labels describe no set, so never match any label, including
// themselves.
func SameSet(a, b Label) bool {
	ea, erra := a.Expand()
	eb, errb := b.Expand()
	if erra != nil || errb != nil {
		return false
	}
	set := make(map[string]bool, len(ea))
	for _, p := range ea {
		set[p] = true
	}
	other := make(map[string]bool, len(eb))
	for _, p := range eb {
		if !set[p] {
			return false
		}
		other[p] = true
	}
	return len(set) == len(other)
}
