// SPDX-FileCopyrightText: 2023 Kent Gibson <warthog618@gmail.com>
//
// SPDX-License-Identifier: Apache-2.0 OR MIT

package sysconf

import (
	"fmt"
	"os"
	"path"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/warthog618/go-padmux"
)

var (
	// ErrNoRegister indicates the requested register is not simulated.
	ErrNoRegister = errors.New("no such register")

	// ErrBusy indicates the register is hogged by another consumer.
	ErrBusy = errors.New("register busy")

	// ErrReserved indicates a write to a reserved field.
	ErrReserved = errors.New("field reserved")

	// ErrReleased indicates use of a register handle after it was released.
	ErrReleased = errors.New("register released")

	// ErrClosed indicates use of a Sim after it was closed.
	ErrClosed = errors.New("sim closed")
)

// Sim provides a simulated sysconf register subsystem.
//
// Each simulated bank is available through Banks, in the same order the banks
// were added to NewSim.
//
// It is safe for concurrent use.
type Sim struct {
	// The name of the simulator.
	//
	// This is only significant when mirroring, where it names the directory
	// containing the mirror.
	Name string

	// The details of the banks being simulated.
	Banks []RegFile

	// Path to the mirror of the registers, if any.
	mirrorPath string

	mu     sync.Mutex
	closed bool
}

// Ensure the Sim satisfies the padmux contract at compile time.
var _ padmux.Sysconf = (*Sim)(nil)

// NewSim constructs a Sim based on the provided options.
//
// The available options are [WithName], [WithBank] and [WithMirror].
//
// At least one WithBank option must be provided, and each bank must be of a
// different type.
// If no name is provided then a unique name is automatically generated.
func NewSim(options ...NewSimOption) (*Sim, error) {
	b := builder{}
	for _, o := range options {
		o.applySimOption(&b)
	}
	return b.live()
}

// Close deconstructs the sim, removing any mirror.
//
// Any subsequent use of the Sim, or register handles it provided, fails.
func (s *Sim) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.cleanupMirror()
}

// ClaimRegister claims a register on behalf of the owner.
//
// A register may be claimed several times, by different owners, so long as
// it is not hogged.  Each claim returns a separate handle.
func (s *Sim) ClaimRegister(t padmux.RegType, num int, owner string) (padmux.Register, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	f, err := s.regFile(t, num)
	if err != nil {
		return nil, err
	}
	if consumer, ok := f.cfg.Hogs[num]; ok {
		return nil, errors.Wrapf(ErrBusy, "%s%d hogged by %q", t, num, consumer)
	}
	f.users[num]++
	return &handle{s: s, f: f, num: num, owner: owner}, nil
}

// Value returns the current value of a register.
func (s *Sim) Value(t padmux.RegType, num int) (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := s.regFile(t, num)
	if err != nil {
		return 0, err
	}
	return f.values[num], nil
}

// Field returns the current value of bits lsb..msb of a register.
func (s *Sim) Field(t padmux.RegType, num, lsb, msb int) (int, error) {
	if lsb < 0 || msb < lsb || msb > 31 {
		return 0, errors.Errorf("invalid field: %d..%d", lsb, msb)
	}
	v, err := s.Value(t, num)
	if err != nil {
		return 0, err
	}
	return int((v & fieldMask(lsb, msb)) >> lsb), nil
}

// Users returns the number of outstanding claims on a register.
func (s *Sim) Users(t padmux.RegType, num int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := s.regFile(t, num)
	if err != nil {
		return 0, err
	}
	return f.users[num], nil
}

// regFile returns the bank containing the register.
//
// caller holds lock
func (s *Sim) regFile(t padmux.RegType, num int) (*RegFile, error) {
	for i := range s.Banks {
		f := &s.Banks[i]
		if f.cfg.Type != t {
			continue
		}
		if num < 0 || num >= f.cfg.NumRegs {
			return nil, errors.Wrapf(ErrNoRegister, "%s%d", t, num)
		}
		return f, nil
	}
	return nil, errors.Wrapf(ErrNoRegister, "no %s bank", t)
}

// write performs a read-modify-write of the field of the register.
func (s *Sim) write(f *RegFile, num, lsb, msb, value int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	mask := fieldMask(lsb, msb)
	for _, r := range f.cfg.Reserved[num] {
		if r.mask()&mask != 0 {
			return errors.Wrapf(ErrReserved, "%s%d bits %d..%d reserved by %q",
				f.cfg.Type, num, r.LSB, r.MSB, r.Consumer)
		}
	}
	v := (f.values[num] &^ mask) | ((uint32(value) << lsb) & mask)
	f.values[num] = v
	if len(s.mirrorPath) != 0 {
		return writeAttr(path.Join(s.mirrorPath, f.cfg.Type.String()), strconv.Itoa(num), formatValue(v))
	}
	return nil
}

// release drops a claim on the register.
func (s *Sim) release(f *RegFile, num int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f.users[num]--
}

// setupMirror creates the mirror of the sim, populated with the initial
// values of each register.
func (s *Sim) setupMirror() error {
	for _, f := range s.Banks {
		bankPath := path.Join(s.mirrorPath, f.cfg.Type.String())
		if err := os.MkdirAll(bankPath, 0755); err != nil {
			return err
		}
		for n, v := range f.values {
			if err := writeAttr(bankPath, strconv.Itoa(n), formatValue(v)); err != nil {
				return err
			}
		}
	}
	return nil
}

// cleanupMirror removes the mirror of the sim.
func (s *Sim) cleanupMirror() {
	if len(s.mirrorPath) == 0 {
		return
	}
	for _, f := range s.Banks {
		bankPath := path.Join(s.mirrorPath, f.cfg.Type.String())
		if _, err := os.Stat(bankPath); err != nil {
			continue
		}
		for n := range f.values {
			os.Remove(path.Join(bankPath, strconv.Itoa(n)))
		}
		os.Remove(bankPath)
	}
	os.Remove(s.mirrorPath)
}

// builder contains all the information required to build a sim.
type builder struct {
	// The name for the simulator.
	//
	// If empty when live is called then a unique name is generated.
	name string // optional

	// The directory to mirror the registers into.
	mirror string // optional

	// The details of the banks to be simulated.
	banks []Bank
}

// live builds the sim, and its mirror if requested.
func (b *builder) live() (*Sim, error) {
	if len(b.banks) == 0 {
		return nil, errors.New("no banks defined")
	}
	seen := make(map[padmux.RegType]bool)
	for _, k := range b.banks {
		if seen[k.Type] {
			return nil, errors.Errorf("multiple %s banks defined", k.Type)
		}
		if k.NumRegs <= 0 {
			return nil, errors.Errorf("%s bank has no registers", k.Type)
		}
		for reg, ff := range k.Reserved {
			for _, f := range ff {
				if reg < 0 || reg >= k.NumRegs || !validField(f.LSB, f.MSB) {
					return nil, errors.Wrapf(padmux.ErrInvalidField, "%s%d bits %d..%d reserved by %q",
						k.Type, reg, f.LSB, f.MSB, f.Consumer)
				}
			}
		}
		seen[k.Type] = true
	}
	if len(b.name) == 0 {
		b.name = uniqueName()
	}
	s := Sim{Name: b.name}
	for _, k := range b.banks {
		s.Banks = append(s.Banks, newRegFile(k))
	}
	if len(b.mirror) == 0 {
		return &s, nil
	}
	s.mirrorPath = path.Join(b.mirror, b.name)
	if _, err := os.Stat(s.mirrorPath); err == nil {
		return nil, errors.Errorf("sim with name '%s' already exists", b.name)
	}
	if err := s.setupMirror(); err != nil {
		s.cleanupMirror()
		return nil, err
	}
	return &s, nil
}

var simCounter uint32 = 0

// uniqueName returns a name for the sim that is very likely to be unique, using the
// appname, PID and a monotonic atomic counter.
func uniqueName() string {
	return fmt.Sprintf("%s-p%d-%d", appName(), os.Getpid(), atomic.AddUint32(&simCounter, 1))
}

// appName returns the name of the running executable.
//
// Falls back to "sysconf" if that can't be determined for some reason.
func appName() string {
	str, err := os.Executable()
	if err != nil {
		return "sysconf"
	}
	return path.Base(str)
}

func formatValue(v uint32) string {
	return fmt.Sprintf("0x%08x", v)
}

// ParseValue parses a register value as written to a mirror attribute.
func ParseValue(s string) (uint32, error) {
	v, err := strconv.ParseUint(strings.TrimPrefix(strings.TrimSpace(s), "0x"), 16, 32)
	if err != nil {
		return 0, errors.Wrapf(err, "unexpected register value: %s", s)
	}
	return uint32(v), nil
}

func readAttr(p, attr string) (string, error) {
	data, err := os.ReadFile(path.Join(p, attr))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func writeAttr(p, attr, value string) error {
	return os.WriteFile(path.Join(p, attr), []byte(value), 0666)
}
