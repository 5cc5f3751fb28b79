// SPDX-FileCopyrightText: 2023 Kent Gibson <warthog618@gmail.com>
//
// SPDX-License-Identifier: Apache-2.0 OR MIT

// Package board decodes board description files into the subsystems and pad
// configurations of a board.
//
// A board file may be YAML, TOML or JSON, e.g.
//
//	name: stx7105
//	sysconf:
//	  banks:
//	    - type: SYS_CFG
//	      registers: 64
//	      reserved:
//	        - {register: 7, lsb: 4, msb: 7, consumer: bootloader}
//	gpio:
//	  lines: 128
//	pads:
//	  - name: uart2
//	    labels:
//	      - {prefix: PIO4, range: [0, 3]}
//	      - PIO5.1
//	    sysconfs:
//	      - {register: 7, lsb: 0, msb: 3, value: 5}
//	    gpios:
//	      - {port: 4, pin: 0, direction: alt-out}
//	active:
//	  - {device: uart.2, config: uart2}
package board

import (
	"bytes"
	"reflect"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
	"github.com/warthog618/go-padmux"
	"github.com/warthog618/go-padmux/gpioline"
	"github.com/warthog618/go-padmux/sysconf"
)

// Board is the decoded form of a board file.
type Board struct {
	Name    string      `mapstructure:"name"`
	Sysconf SysconfSpec `mapstructure:"sysconf"`
	GPIO    GPIOSpec    `mapstructure:"gpio"`
	Pads    []PadSpec   `mapstructure:"pads"`
	Active  []Binding   `mapstructure:"active"`
}

// SysconfSpec describes the simulated sysconf registers.
type SysconfSpec struct {
	// Directory to mirror the registers into, if any.
	Mirror string     `mapstructure:"mirror"`
	Banks  []BankSpec `mapstructure:"banks"`
}

// BankSpec describes a bank of sysconf registers.
type BankSpec struct {
	Type      string      `mapstructure:"type"`
	Registers int         `mapstructure:"registers"`
	Resets    []ResetSpec `mapstructure:"resets"`
	Reserved  []FieldSpec `mapstructure:"reserved"`
	Hogs      []HogSpec   `mapstructure:"hogs"`
}

// ResetSpec is the initial value of a register.
type ResetSpec struct {
	Register int    `mapstructure:"register"`
	Value    uint32 `mapstructure:"value"`
}

// FieldSpec is a register field reserved by another consumer.
type FieldSpec struct {
	Register int    `mapstructure:"register"`
	LSB      int    `mapstructure:"lsb"`
	MSB      int    `mapstructure:"msb"`
	Consumer string `mapstructure:"consumer"`
}

// HogSpec is a register, or line, held by another consumer.
type HogSpec struct {
	Register int    `mapstructure:"register"`
	GPIO     int    `mapstructure:"gpio"`
	Consumer string `mapstructure:"consumer"`
}

// GPIOSpec describes the GPIO subsystem.
//
// If Chips are listed then lines are requested from the GPIO character
// devices, else they are book-kept in memory.
type GPIOSpec struct {
	Chips []ChipSpec `mapstructure:"chips"`

	// The number of lines of the in-memory subsystem, or 0 for unlimited.
	Lines int       `mapstructure:"lines"`
	Hogs  []HogSpec `mapstructure:"hogs"`
}

// ChipSpec describes a GPIO chip.
type ChipSpec struct {
	Name  string `mapstructure:"name"`
	Base  int    `mapstructure:"base"`
	Lines int    `mapstructure:"lines"`
}

// PadSpec describes a named pad configuration.
type PadSpec struct {
	Name     string      `mapstructure:"name"`
	Labels   []LabelSpec `mapstructure:"labels"`
	Sysconfs []ValueSpec `mapstructure:"sysconfs"`
	GPIOs    []LineSpec  `mapstructure:"gpios"`
}

// LabelSpec describes a label.
//
// Either Label is set, or Prefix and at most one of the suffix forms.
// A plain string decodes as Label.
type LabelSpec struct {
	Label   string   `mapstructure:"label"`
	Prefix  string   `mapstructure:"prefix"`
	Number  *int     `mapstructure:"number"`
	Range   []int    `mapstructure:"range"`
	List    []int    `mapstructure:"list"`
	Strings []string `mapstructure:"strings"`
}

// ValueSpec describes a sysconf register value.
type ValueSpec struct {
	// The register type, defaulting to SYS_CFG.
	Type     string `mapstructure:"type"`
	Register int    `mapstructure:"register"`
	LSB      int    `mapstructure:"lsb"`
	MSB      int    `mapstructure:"msb"`
	Value    int    `mapstructure:"value"`
}

// LineSpec describes a GPIO line, either by GPIO number or by PIO port and
// pin.
type LineSpec struct {
	GPIO      *int   `mapstructure:"gpio"`
	Port      *int   `mapstructure:"port"`
	Pin       *int   `mapstructure:"pin"`
	Direction string `mapstructure:"direction"`
}

// Binding assigns a pad configuration to a device.
type Binding struct {
	Device string `mapstructure:"device"`
	Config string `mapstructure:"config"`
}

// Load reads the board file at path.
//
// The format is determined by the file extension.
func Load(path string) (*Board, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "read board %s", path)
	}
	return Decode(v)
}

// Parse reads a board from data in the given format, e.g. "yaml".
func Parse(data []byte, format string) (*Board, error) {
	v := viper.New()
	v.SetConfigType(format)
	if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
		return nil, errors.Wrap(err, "read board")
	}
	return Decode(v)
}

// Decode decodes the board from a viper that has read a board file.
func Decode(v *viper.Viper) (*Board, error) {
	var b Board
	err := v.Unmarshal(&b, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		labelHook,
		mapstructure.StringToSliceHookFunc(","),
	)))
	if err != nil {
		return nil, errors.Wrap(err, "decode board")
	}
	return &b, nil
}

// labelHook allows labels to be given as plain strings.
func labelHook(from, to reflect.Type, data interface{}) (interface{}, error) {
	if from.Kind() != reflect.String || to != reflect.TypeOf(LabelSpec{}) {
		return data, nil
	}
	return LabelSpec{Label: data.(string)}, nil
}

// ToLabel converts the description to a padmux.Label.
func (s LabelSpec) ToLabel() (padmux.Label, error) {
	suffixes := 0
	if s.Number != nil {
		suffixes++
	}
	for _, set := range []bool{s.Range != nil, s.List != nil, s.Strings != nil} {
		if set {
			suffixes++
		}
	}
	if len(s.Label) != 0 {
		if len(s.Prefix) != 0 || suffixes != 0 {
			return padmux.Label{}, errors.Errorf("label %q has prefix or suffix", s.Label)
		}
		return padmux.ParseLabel(s.Label)
	}
	if suffixes > 1 {
		return padmux.Label{}, errors.Errorf("label %q has multiple suffixes", s.Prefix)
	}
	var l padmux.Label
	switch {
	case s.Number != nil:
		l = padmux.LabelNumber(s.Prefix, *s.Number)
	case s.Range != nil:
		if len(s.Range) != 2 {
			return padmux.Label{}, errors.Errorf("label %q range requires [from, to]", s.Prefix)
		}
		l = padmux.LabelRange(s.Prefix, s.Range[0], s.Range[1])
	case s.List != nil:
		l = padmux.LabelList(s.Prefix, s.List...)
	case s.Strings != nil:
		l = padmux.LabelStrings(s.Prefix, s.Strings...)
	default:
		l = padmux.NewLabel(s.Prefix)
	}
	return l, l.Validate()
}

// ToValue converts the description to a padmux.SysconfValue.
func (s ValueSpec) ToValue() (padmux.SysconfValue, error) {
	t := padmux.SysCfg
	if len(s.Type) != 0 {
		var err error
		if t, err = padmux.ParseRegType(s.Type); err != nil {
			return padmux.SysconfValue{}, err
		}
	}
	v := padmux.SysconfValue{RegType: t, RegNum: s.Register, LSB: s.LSB, MSB: s.MSB, Value: s.Value}
	return v, v.Validate()
}

// ToGPIO converts the description to a padmux.GPIOValue.
func (s LineSpec) ToGPIO() (padmux.GPIOValue, error) {
	d := padmux.DirectionUnknown
	if len(s.Direction) != 0 {
		var err error
		if d, err = padmux.ParseDirection(s.Direction); err != nil {
			return padmux.GPIOValue{}, err
		}
	}
	switch {
	case s.GPIO != nil && s.Port == nil && s.Pin == nil:
		return padmux.GPIOValue{GPIO: *s.GPIO, Direction: d}, nil
	case s.GPIO == nil && s.Port != nil && s.Pin != nil:
		if *s.Pin < 0 || *s.Pin >= padmux.PinsPerPort {
			return padmux.GPIOValue{}, errors.Errorf("pin %d out of range", *s.Pin)
		}
		return padmux.GPIOValue{GPIO: padmux.PIO(*s.Port, *s.Pin), Direction: d}, nil
	default:
		return padmux.GPIOValue{}, errors.New("gpio requires either gpio, or port and pin")
	}
}

// ToConfig builds the padmux.Config described by the pad description.
func (s PadSpec) ToConfig() (*padmux.Config, error) {
	options := []padmux.ConfigOption{padmux.WithName(s.Name)}
	for _, ls := range s.Labels {
		l, err := ls.ToLabel()
		if err != nil {
			return nil, errors.Wrapf(err, "pad %s", s.Name)
		}
		options = append(options, padmux.WithLabel(l))
	}
	for _, vs := range s.Sysconfs {
		v, err := vs.ToValue()
		if err != nil {
			return nil, errors.Wrapf(err, "pad %s", s.Name)
		}
		options = append(options, v)
	}
	for _, gs := range s.GPIOs {
		g, err := gs.ToGPIO()
		if err != nil {
			return nil, errors.Wrapf(err, "pad %s", s.Name)
		}
		options = append(options, g)
	}
	return padmux.NewConfig(options...)
}

// Configs builds the pad configurations of the board, in file order.
func (b *Board) Configs() ([]*padmux.Config, error) {
	seen := make(map[string]bool, len(b.Pads))
	cc := make([]*padmux.Config, 0, len(b.Pads))
	for i, ps := range b.Pads {
		if len(ps.Name) == 0 {
			return nil, errors.Errorf("pad %d has no name", i)
		}
		if seen[ps.Name] {
			return nil, errors.Errorf("pad %s defined multiple times", ps.Name)
		}
		seen[ps.Name] = true
		c, err := ps.ToConfig()
		if err != nil {
			return nil, err
		}
		cc = append(cc, c)
	}
	return cc, nil
}

// NewSysconf builds the simulated sysconf subsystem of the board.
//
// Returns nil if the board has no sysconf banks.
func (b *Board) NewSysconf() (*sysconf.Sim, error) {
	if len(b.Sysconf.Banks) == 0 {
		return nil, nil
	}
	options := []sysconf.NewSimOption{}
	if len(b.Name) != 0 {
		options = append(options, sysconf.WithName(b.Name))
	}
	if len(b.Sysconf.Mirror) != 0 {
		options = append(options, sysconf.WithMirror(b.Sysconf.Mirror))
	}
	for _, bs := range b.Sysconf.Banks {
		t, err := padmux.ParseRegType(bs.Type)
		if err != nil {
			return nil, err
		}
		var bo []sysconf.NewBankOption
		for _, r := range bs.Resets {
			bo = append(bo, sysconf.WithResetValue(r.Register, r.Value))
		}
		for _, f := range bs.Reserved {
			bo = append(bo, sysconf.WithReservedField(f.Register, f.LSB, f.MSB, f.Consumer))
		}
		for _, h := range bs.Hogs {
			bo = append(bo, sysconf.WithHoggedRegister(h.Register, h.Consumer))
		}
		options = append(options, sysconf.WithBank(sysconf.NewBank(t, bs.Registers, bo...)))
	}
	return sysconf.NewSim(options...)
}

// NewGPIO builds the GPIO subsystem of the board.
//
// If the board lists GPIO chips the result is a *gpioline.Lines, which must
// be closed, else it is a *gpioline.Table.
func (b *Board) NewGPIO() (padmux.GPIO, error) {
	if len(b.GPIO.Chips) == 0 {
		options := []gpioline.TableOption{gpioline.WithNumLines(b.GPIO.Lines)}
		for _, h := range b.GPIO.Hogs {
			options = append(options, gpioline.WithHoggedLine(h.GPIO, h.Consumer))
		}
		return gpioline.NewTable(options...), nil
	}
	if len(b.GPIO.Hogs) != 0 {
		return nil, errors.New("gpio hogs are only supported without chips")
	}
	chips := make([]gpioline.Chip, len(b.GPIO.Chips))
	for i, c := range b.GPIO.Chips {
		chips[i] = gpioline.Chip{Name: c.Name, Base: c.Base, NumLines: c.Lines}
	}
	l, err := gpioline.NewLines(chips...)
	if err != nil {
		return nil, err
	}
	return l, nil
}

// ActiveConfig returns the name of the config bound to the device.
func (b *Board) ActiveConfig(device string) (string, bool) {
	for _, a := range b.Active {
		if a.Device == device {
			return a.Config, true
		}
	}
	return "", false
}

// Validate checks the board is self consistent, without building any
// subsystem.
func (b *Board) Validate() error {
	cc, err := b.Configs()
	if err != nil {
		return err
	}
	names := make(map[string]bool, len(cc))
	for _, c := range cc {
		names[c.Name] = true
	}
	devices := make(map[string]bool, len(b.Active))
	for _, a := range b.Active {
		if len(strings.TrimSpace(a.Device)) == 0 {
			return errors.Errorf("active config %s has no device", a.Config)
		}
		if devices[a.Device] {
			return errors.Errorf("device %s bound multiple times", a.Device)
		}
		devices[a.Device] = true
		if !names[a.Config] {
			return errors.Errorf("device %s bound to unknown config %s", a.Device, a.Config)
		}
	}
	return nil
}
