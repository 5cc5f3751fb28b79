// SPDX-FileCopyrightText: 2023 Kent Gibson <warthog618@gmail.com>
//
// SPDX-License-Identifier: Apache-2.0 OR MIT

package sysconf

import (
	"path"
	"strconv"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/warthog618/go-padmux"
)

// RegFile provides the state of a simulated bank of registers.
//
// Registers are identified by number, in the range 0..Config().NumRegs-1.
type RegFile struct {
	// The current register values.
	values []uint32

	// The number of outstanding claims on each register.
	users []int

	// The configuration for this bank.
	cfg Bank
}

func newRegFile(cfg Bank) RegFile {
	f := RegFile{
		values: make([]uint32, cfg.NumRegs),
		users:  make([]int, cfg.NumRegs),
		cfg:    cfg,
	}
	for n, v := range cfg.Resets {
		if n >= 0 && n < cfg.NumRegs {
			f.values[n] = v
		}
	}
	return f
}

// Config returns the configuration used for the bank.
func (f *RegFile) Config() Bank {
	return f.cfg
}

// Type returns the type of the registers in the bank.
func (f *RegFile) Type() padmux.RegType {
	return f.cfg.Type
}

// MirrorPath returns the path of the directory mirroring the registers.
//
// Returns an empty string if the sim is not mirrored.
func (s *Sim) MirrorPath() string {
	return s.mirrorPath
}

// Mirrored returns the value of the register as recorded in the mirror.
func (s *Sim) Mirrored(t padmux.RegType, num int) (uint32, error) {
	if len(s.mirrorPath) == 0 {
		return 0, errors.New("sim is not mirrored")
	}
	v, err := readAttr(path.Join(s.mirrorPath, t.String()), strconv.Itoa(num))
	if err != nil {
		return 0, err
	}
	return ParseValue(v)
}

// handle is a claim on a simulated register.
type handle struct {
	s     *Sim
	f     *RegFile
	num   int
	owner string

	released atomic.Bool
}

// Write sets bits lsb..msb of the register to value.
func (h *handle) Write(lsb, msb, value int) error {
	if h.released.Load() {
		return errors.Wrapf(ErrReleased, "%s%d", h.f.cfg.Type, h.num)
	}
	if !validField(lsb, msb) {
		return errors.Wrapf(padmux.ErrInvalidField, "%d..%d", lsb, msb)
	}
	if value < 0 || uint64(value) > uint64(fieldMask(lsb, msb)>>lsb) {
		return errors.Errorf("value %#x does not fit bits %d..%d", value, lsb, msb)
	}
	return h.s.write(h.f, h.num, lsb, msb, value)
}

// Release drops the claim on the register.
func (h *handle) Release() error {
	if !h.released.CompareAndSwap(false, true) {
		return errors.Wrapf(ErrReleased, "%s%d", h.f.cfg.Type, h.num)
	}
	h.s.release(h.f, h.num)
	return nil
}
