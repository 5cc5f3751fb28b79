// SPDX-FileCopyrightText: 2023 Kent Gibson <warthog618@gmail.com>
//
// SPDX-License-Identifier: Apache-2.0 OR MIT

package sysconf

// NewSimOption defines the interface required to provide an option to NewSim.
type NewSimOption interface {
	applySimOption(*builder)
}

// WithBank returns an option that adds the given bank to the Sim.
func WithBank(b *Bank) Bank {
	return *b
}

func (o Bank) applySimOption(b *builder) {
	b.banks = append(b.banks, Bank(o))
}

// NewBankOption defines the interface required to provide an option to NewBank.
type NewBankOption interface {
	applyBankOption(*Bank)
}

// HoggedRegister is an option that hogs a register.
type HoggedRegister struct {
	Reg      int
	Consumer string
}

// WithHoggedRegister returns an option to hog a simulated register.
//
// Hogging the register makes it appear claimed by another consumer.
func WithHoggedRegister(reg int, consumer string) HoggedRegister {
	return HoggedRegister{reg, consumer}
}

func (o HoggedRegister) applyBankOption(b *Bank) {
	if b.Hogs == nil {
		b.Hogs = make(map[int]string)
	}
	b.Hogs[o.Reg] = o.Consumer
}

// ReservedField is an option that reserves a bitfield of a register.
type ReservedField struct {
	reg int
	Field
}

// WithReservedField returns an option to reserve bits lsb..msb of a simulated
// register.
//
// The register may still be claimed, but writes to the reserved bits fail.
func WithReservedField(reg, lsb, msb int, consumer string) ReservedField {
	return ReservedField{reg, Field{Consumer: consumer, LSB: lsb, MSB: msb}}
}

func (o ReservedField) applyBankOption(b *Bank) {
	if b.Reserved == nil {
		b.Reserved = make(map[int][]Field)
	}
	b.Reserved[o.reg] = append(b.Reserved[o.reg], o.Field)
}

// ResetValue is an option that sets the initial value of a register.
type ResetValue struct {
	Reg   int
	Value uint32
}

// WithResetValue returns an option that defines the initial value of a
// simulated register.
func WithResetValue(reg int, value uint32) ResetValue {
	return ResetValue{reg, value}
}

func (o ResetValue) applyBankOption(b *Bank) {
	if b.Resets == nil {
		b.Resets = make(map[int]uint32)
	}
	b.Resets[o.Reg] = o.Value
}

// NameOption defines the name for a Sim.
type NameOption string

// WithName returns an option that defines the name of a Sim.
func WithName(name string) NameOption {
	return NameOption(name)
}

func (o NameOption) applySimOption(b *builder) {
	b.name = string(o)
}

// MirrorOption defines the directory a Sim mirrors its registers into.
type MirrorOption string

// WithMirror returns an option that mirrors the simulated registers into
// attribute files below the given directory.
//
// Each register is mirrored to "<dir>/<name>/<type>/<num>".
func WithMirror(dir string) MirrorOption {
	return MirrorOption(dir)
}

func (o MirrorOption) applySimOption(b *builder) {
	b.mirror = string(o)
}
