// SPDX-FileCopyrightText: 2023 Kent Gibson <warthog618@gmail.com>
//
// SPDX-License-Identifier: Apache-2.0 OR MIT

package sysconf

import "github.com/warthog618/go-padmux"

// Bank contains the information required to configure a bank of registers
// in a Sim.
type Bank struct {
	// The type of registers in this bank.
	Type padmux.RegType

	// The number of registers simulated by this bank.
	NumRegs int

	// The initial values of registers.
	//
	// Registers not listed here reset to zero.
	Resets map[int]uint32

	// Fields that appear to be already in use by some other entity.
	//
	// Writes to these fields are refused.
	Reserved map[int][]Field

	// Registers that appear to be claimed by some other entity.
	//
	// Claims of these registers are refused.
	Hogs map[int]string
}

// NewBank constructs a Bank of the given type, with numRegs registers and the
// options provided.
//
// The available options are [WithResetValue], [WithReservedField] and
// [WithHoggedRegister].
func NewBank(t padmux.RegType, numRegs int, options ...NewBankOption) *Bank {
	b := &Bank{Type: t, NumRegs: numRegs}
	for _, o := range options {
		o.applyBankOption(b)
	}
	return b
}

// Field is a bitfield of a register, and the entity using it.
type Field struct {
	// The name of the consumer that appears to be using the field.
	Consumer string

	// The least significant bit of the field.
	LSB int

	// The most significant bit of the field.
	MSB int
}

// mask returns the bits covered by the field.
func (f Field) mask() uint32 {
	return fieldMask(f.LSB, f.MSB)
}

// validField returns true if lsb..msb lies within a 32-bit register.
func validField(lsb, msb int) bool {
	return lsb >= 0 && lsb <= msb && msb < 32
}

func fieldMask(lsb, msb int) uint32 {
	return uint32((uint64(1)<<(msb-lsb+1) - 1) << lsb)
}
