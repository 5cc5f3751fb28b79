// SPDX-FileCopyrightText: 2023 Kent Gibson <warthog618@gmail.com>
//
// SPDX-License-Identifier: Apache-2.0 OR MIT

/*
Package gpioline provides implementations of the padmux GPIO subsystem.

[Lines] requests lines from the Linux GPIO character device using
go-gpiocdev.  Global GPIO numbers are mapped to a chip and offset using the
base of each [Chip], so a board with two eight line chips based at 0 and 8
maps GPIO 11 to offset 3 of the second chip.

[Table] is an in-memory book-keeper that performs no I/O, for hosts without
GPIO hardware and for tests.  Lines may be hogged so they appear requested by
some other consumer.

# Example Usage

	l, err := gpioline.NewLines(
		gpioline.Chip{Name: "gpiochip0", Base: 0},
		gpioline.Chip{Name: "gpiochip1", Base: 32},
	)
	defer l.Close()
	pads := padmux.New(sc, l)

	t := gpioline.NewTable(gpioline.WithNumLines(64), gpioline.WithHoggedLine(7, "piggy"))
	pads := padmux.New(sc, t)
*/
package gpioline
