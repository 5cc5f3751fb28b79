// SPDX-FileCopyrightText: 2023 Kent Gibson <warthog618@gmail.com>
//
// SPDX-License-Identifier: Apache-2.0 OR MIT

/*
Package padmux arbitrates ownership of the pins of a system-on-chip among
the drivers that would configure them.

Routing a function onto a pin involves several resources: the pads
themselves, bitfields in the sysconf registers that select the pin function,
and GPIO lines that must be set to a particular direction.
A [Config] bundles these, along with an optional [CustomHook], and [Pads]
claims the whole bundle on behalf of a device, or not at all.

Pads are identified by [Label]s, dot separated names such as "PIO3.7" or
"VIDDIGOUT.YC.0".  A label may describe several pads at once using a suffix,
so LabelRange("PIO3", 5, 7) is equivalent to LabelList("PIO3", 5, 6, 7).
Labels are compared in their canonical, fully expanded, form.

Ownership of every pad, sysconf register bit and GPIO line is recorded in a
[Registry], which ensures each has at most one owner at any time.  A Registry
may be shared by several Pads.

The sysconf and GPIO subsystems are provided to [New] via the [Sysconf] and
[GPIO] interfaces.  The sysconf package provides a simulated sysconf, and the
gpioline package provides GPIO implementations.

# Example Usage

Claiming a UART configuration:

	sim, err := sysconf.NewSimpleton(64)
	pads := padmux.New(sim, gpioline.NewTable())
	uart, err := padmux.NewConfig(
		padmux.WithName("uart2"),
		padmux.WithLabel(padmux.LabelRange("PIO4", 0, 1)),
		padmux.WithSysCfg(7, 0, 1, 3),
		padmux.WithPIO(4, 0, padmux.DirectionAltOut),
		padmux.WithPIO(4, 1, padmux.DirectionIn),
	)
	err = pads.Claim(uart, "uart.2")
	owner, ok := pads.Owner("PIO4.1")
	err = pads.Release(uart)

Switching a pin from one function to another without leaving it unclaimed:

	err = pads.Switch(uart, gpio, "uart.2")
*/
package padmux
