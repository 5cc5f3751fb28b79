// SPDX-FileCopyrightText: 2023 Kent Gibson <warthog618@gmail.com>
//
// SPDX-License-Identifier: Apache-2.0 OR MIT

package sysconf

import "github.com/warthog618/go-padmux"

// Simpleton is a Sim with a single bank of SYS_CFG registers.
type Simpleton struct {
	*Sim
}

// NewSimpleton constructs a Sim with a single bank of numRegs SYS_CFG
// registers, and the bank options provided.
func NewSimpleton(numRegs int, options ...NewBankOption) (*Simpleton, error) {
	s, err := NewSim(WithBank(NewBank(padmux.SysCfg, numRegs, options...)))
	if s == nil {
		return nil, err
	}
	return &Simpleton{s}, err
}

// Config returns the configuration used for the bank.
func (s *Simpleton) Config() Bank {
	return s.Banks[0].cfg
}

// Field returns the current value of bits lsb..msb of the register.
func (s *Simpleton) Field(num, lsb, msb int) (int, error) {
	return s.Sim.Field(padmux.SysCfg, num, lsb, msb)
}

// Users returns the number of outstanding claims on the register.
func (s *Simpleton) Users(num int) (int, error) {
	return s.Sim.Users(padmux.SysCfg, num)
}

// Value returns the current value of the register.
func (s *Simpleton) Value(num int) (uint32, error) {
	return s.Sim.Value(padmux.SysCfg, num)
}
