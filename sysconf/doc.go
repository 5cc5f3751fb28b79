// SPDX-FileCopyrightText: 2023 Kent Gibson <warthog618@gmail.com>
//
// SPDX-License-Identifier: Apache-2.0 OR MIT

/*
Package sysconf provides a simulated sysconf register subsystem for use with
padmux.

Simulators ([Sim]) contain one or more banks of 32-bit registers, each bank
holding registers of one [padmux.RegType].  Configuring a simulator involves
adding [Bank]s to [NewSim].

Registers are claimed using [Sim.ClaimRegister], which returns a handle
through which bitfields of the register may be written.  The current state of
the registers is available through [Sim.Value] and [Sim.Field].

To test the handling of contested resources, registers may be hogged, so they
appear claimed by some other entity, and fields may be reserved, so writes to
them fail.

For tests that only require a single bank of SYS_CFG registers, the
[Simpleton] provides a slightly simpler interface.

Optionally, the registers may be mirrored into a directory of attribute
files, one per register, so the register state can be inspected by other
processes.  Closing the [Sim] removes the mirror.

# Example Usage

Create a [Simpleton] with 64 registers:

	s, err := sysconf.NewSimpleton(64)
	v, err := s.Value(7)

Creating a simulator with SYS_CFG and SYS_STA banks, with a reserved field and
a hogged register:

	s, err := sysconf.NewSim(
		sysconf.WithName("board"),
		sysconf.WithMirror("/tmp/sysconf"),
		sysconf.WithBank(sysconf.NewBank(padmux.SysCfg, 64,
			sysconf.WithResetValue(3, 0x10),
			sysconf.WithReservedField(7, 4, 7, "bootloader"),
			sysconf.WithHoggedRegister(9, "secure-monitor"),
		)),
		sysconf.WithBank(sysconf.NewBank(padmux.SysSta, 16)),
	)
	defer s.Close()
	r, err := s.ClaimRegister(padmux.SysCfg, 7, "uart.2")
	err = r.Write(0, 3, 5)
*/
package sysconf
