// SPDX-FileCopyrightText: 2023 Kent Gibson <warthog618@gmail.com>
//
// SPDX-License-Identifier: Apache-2.0 OR MIT

package padmux

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Sysconf is the system configuration register subsystem.
//
// It is implemented by sysconf.Sim.
type Sysconf interface {
	// ClaimRegister claims the register on behalf of the owner.
	ClaimRegister(t RegType, num int, owner string) (Register, error)
}

// Register is a handle to a claimed sysconf register.
type Register interface {
	// Write sets bits lsb..msb, inclusive, of the register to value.
	Write(lsb, msb, value int) error

	// Release releases the claim on the register.
	//
	// The register contents are unaffected.
	Release() error
}

// GPIO is the GPIO line subsystem.
//
// It is implemented by gpioline.Lines and gpioline.Table.
type GPIO interface {
	// Request requests the line on behalf of the consumer, and sets its
	// direction.
	Request(gpio int, d Direction, consumer string) error

	// Free releases a line previously requested.
	Free(gpio int) error
}

// RegType identifies a bank of sysconf registers.
type RegType int

const (
	// SysCfg is the bank of system configuration registers.
	SysCfg RegType = iota

	// SysSta is the bank of system status registers.
	SysSta
)

func (t RegType) String() string {
	switch t {
	case SysCfg:
		return "SYS_CFG"
	case SysSta:
		return "SYS_STA"
	default:
		return "REGTYPE" + strconv.Itoa(int(t))
	}
}

// ParseRegType returns the RegType with the given name.
//
// The name may be any of the forms returned by RegType.String, or a plain
// number.
func ParseRegType(s string) (RegType, error) {
	switch strings.ToUpper(s) {
	case "SYS_CFG", "SYSCFG":
		return SysCfg, nil
	case "SYS_STA", "SYSSTA":
		return SysSta, nil
	}
	n := strings.TrimPrefix(strings.ToUpper(s), "REGTYPE")
	v, err := strconv.Atoi(n)
	if err != nil || v < 0 {
		return 0, errors.Errorf("unknown register type: %s", s)
	}
	return RegType(v), nil
}

// Direction is the direction a pad configuration requires of a GPIO line.
type Direction int

const (
	// DirectionUnknown leaves the line direction unchanged.
	DirectionUnknown Direction = iota - 1

	// DirectionBidir is a bidirectional, open-drain, line.
	DirectionBidir

	// DirectionOut is an output line.
	DirectionOut

	// DirectionIn is an input line.
	DirectionIn

	// DirectionAltOut is an output driven by an alternate function.
	DirectionAltOut

	// DirectionAltBidir is a bidirectional line driven by an alternate
	// function.
	DirectionAltBidir
)

var directionNames = map[Direction]string{
	DirectionUnknown:  "unknown",
	DirectionBidir:    "bidir",
	DirectionOut:      "out",
	DirectionIn:       "in",
	DirectionAltOut:   "alt-out",
	DirectionAltBidir: "alt-bidir",
}

func (d Direction) String() string {
	if n, ok := directionNames[d]; ok {
		return n
	}
	return fmt.Sprintf("direction(%d)", int(d))
}

// ParseDirection returns the Direction with the given name, as returned by
// Direction.String.
func ParseDirection(s string) (Direction, error) {
	s = strings.ToLower(s)
	for d, n := range directionNames {
		if n == s {
			return d, nil
		}
	}
	return DirectionUnknown, errors.Errorf("unknown direction: %s", s)
}

// PinsPerPort is the number of GPIO lines in each PIO port.
const PinsPerPort = 8

// PIO returns the GPIO number of a pin within a PIO port.
func PIO(port, pin int) int {
	return port*PinsPerPort + pin
}
