// SPDX-FileCopyrightText: 2023 Kent Gibson <warthog618@gmail.com>
//
// SPDX-License-Identifier: Apache-2.0 OR MIT

package padmux

import (
	"sync"

	"github.com/pkg/errors"
)

// SysconfValue is a value to be written to a sysconf register bitfield.
type SysconfValue struct {
	// The bank containing the register.
	RegType RegType

	// The register number within the bank.
	RegNum int

	// The least significant bit of the field.
	LSB int

	// The most significant bit of the field.
	MSB int

	// The value to be written to the field.
	Value int
}

// Validate checks that the field lies within a 32-bit register and the value
// fits within the field.
func (v SysconfValue) Validate() error {
	if v.RegNum < 0 {
		return errors.Wrapf(ErrInvalidField, "register %s%d", v.RegType, v.RegNum)
	}
	if v.LSB < 0 || v.MSB < v.LSB || v.MSB > 31 {
		return errors.Wrapf(ErrInvalidField, "%s%d bits %d..%d", v.RegType, v.RegNum, v.LSB, v.MSB)
	}
	width := uint(v.MSB - v.LSB + 1)
	if v.Value < 0 || (width < 32 && uint64(v.Value) >= 1<<width) {
		return errors.Wrapf(ErrInvalidField, "value %#x does not fit %s%d bits %d..%d",
			v.Value, v.RegType, v.RegNum, v.LSB, v.MSB)
	}
	return nil
}

// resources returns the identity of each bit in the field.
func (v SysconfValue) resources() []Resource {
	rr := make([]Resource, 0, v.MSB-v.LSB+1)
	for b := v.LSB; b <= v.MSB; b++ {
		rr = append(rr, SysconfResource(v.RegType, v.RegNum, b))
	}
	return rr
}

// GPIOValue is a GPIO line and the direction it is to be requested with.
type GPIOValue struct {
	GPIO      int
	Direction Direction
}

// CustomHook performs additional setup and teardown as part of claiming and
// releasing a Config.
type CustomHook interface {
	// Claim is called after all the other Config resources are claimed.
	//
	// If it fails then the claim of the Config is rolled back.
	Claim() error

	// Release is called before any of the other Config resources are released.
	Release() error
}

// HookFuncs adapts a pair of functions to a CustomHook.
//
// Either function may be nil.
type HookFuncs struct {
	ClaimFunc   func() error
	ReleaseFunc func() error
}

// Claim calls ClaimFunc, if set.
func (h HookFuncs) Claim() error {
	if h.ClaimFunc == nil {
		return nil
	}
	return h.ClaimFunc()
}

// Release calls ReleaseFunc, if set.
func (h HookFuncs) Release() error {
	if h.ReleaseFunc == nil {
		return nil
	}
	return h.ReleaseFunc()
}

// Config is a pad configuration, the bundle of pads, sysconf register
// values and GPIO lines that must be claimed together to route a function
// onto the chip pins.
//
// A Config is built using NewConfig, or AllocConfig and the Add methods,
// and is then passed to Pads.Claim.
// It may not be modified while it is claimed.
type Config struct {
	// Name is informational, and is used to identify the Config in errors
	// and logs.
	Name string

	labels   []Label
	sysconfs []SysconfValue
	gpios    []GPIOValue
	hook     CustomHook

	// fixed capacity configs cannot grow beyond their initial allocation.
	fixed bool

	mu    sync.Mutex
	claim *claimState

	// busy is set while a claim, release or switch is in progress.
	busy bool
}

// claimState tracks the resources held by a claimed Config.
type claimState struct {
	owner string
	regs  []Register
}

// ConfigOption defines the interface required to provide an option to
// NewConfig.
type ConfigOption interface {
	applyConfigOption(*Config) error
}

// NewConfig constructs a Config from the provided options.
//
// The available options are [WithName], [WithLabel], [WithSysconf],
// [WithSysCfg], [WithGPIO], [WithPIO] and [WithHook].
func NewConfig(options ...ConfigOption) (*Config, error) {
	c := &Config{}
	for _, o := range options {
		if err := o.applyConfigOption(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// AllocConfig returns an empty fixed capacity Config.
//
// The Config can hold at most the given number of labels, sysconf values and
// GPIO values.  Adding more fails with ErrCapacityExceeded.
func AllocConfig(labels, sysconfs, gpios int) *Config {
	return &Config{
		labels:   make([]Label, 0, labels),
		sysconfs: make([]SysconfValue, 0, sysconfs),
		gpios:    make([]GPIOValue, 0, gpios),
		fixed:    true,
	}
}

// Labels returns a copy of the labels of the Config.
func (c *Config) Labels() []Label {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Label(nil), c.labels...)
}

// Sysconfs returns a copy of the sysconf values of the Config.
func (c *Config) Sysconfs() []SysconfValue {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]SysconfValue(nil), c.sysconfs...)
}

// GPIOs returns a copy of the GPIO values of the Config.
func (c *Config) GPIOs() []GPIOValue {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]GPIOValue(nil), c.gpios...)
}

// Owner returns the name of the owner of the Config, and true, if it is
// claimed.
func (c *Config) Owner() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.claim == nil {
		return "", false
	}
	return c.claim.owner, true
}

// AddLabel adds a label to the Config.
//
// The label is checked before it is added, so an invalid label leaves the
// Config unchanged.
func (c *Config) AddLabel(l Label) error {
	if err := l.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.mutable(len(c.labels), cap(c.labels)); err != nil {
		return err
	}
	c.labels = append(c.labels, l)
	return nil
}

// AddLabelNumber adds a label for a single numbered pad to the Config.
func (c *Config) AddLabelNumber(prefix string, number int) error {
	return c.AddLabel(LabelNumber(prefix, number))
}

// AddLabelRange adds a label for a range of numbered pads to the Config.
func (c *Config) AddLabelRange(prefix string, from, to int) error {
	return c.AddLabel(LabelRange(prefix, from, to))
}

// AddSysconf adds a sysconf register value to the Config.
func (c *Config) AddSysconf(t RegType, regnum, lsb, msb, value int) error {
	v := SysconfValue{RegType: t, RegNum: regnum, LSB: lsb, MSB: msb, Value: value}
	if err := v.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.mutable(len(c.sysconfs), cap(c.sysconfs)); err != nil {
		return err
	}
	c.sysconfs = append(c.sysconfs, v)
	return nil
}

// AddSysCfg adds a SYS_CFG register value to the Config.
func (c *Config) AddSysCfg(regnum, lsb, msb, value int) error {
	return c.AddSysconf(SysCfg, regnum, lsb, msb, value)
}

// AddGPIO adds a GPIO line to the Config.
func (c *Config) AddGPIO(gpio int, d Direction) error {
	if gpio < 0 {
		return errors.Errorf("invalid gpio: %d", gpio)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.mutable(len(c.gpios), cap(c.gpios)); err != nil {
		return err
	}
	c.gpios = append(c.gpios, GPIOValue{GPIO: gpio, Direction: d})
	return nil
}

// AddPIO adds the GPIO line for a pin of a PIO port to the Config.
func (c *Config) AddPIO(port, pin int, d Direction) error {
	if pin < 0 || pin >= PinsPerPort {
		return errors.Errorf("invalid pin: PIO%d.%d", port, pin)
	}
	return c.AddGPIO(PIO(port, pin), d)
}

// SetHook sets the custom hook of the Config.
//
// A nil hook removes any existing hook.
func (c *Config) SetHook(h CustomHook) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inUse() {
		return errors.Wrapf(ErrConfigInUse, "%s", c)
	}
	c.hook = h
	return nil
}

// String returns the name of the Config, or a placeholder if it is unnamed.
func (c *Config) String() string {
	if len(c.Name) == 0 {
		return "config"
	}
	return c.Name
}

// mutable checks that a collection, currently of size n and capacity max,
// may be appended to.
//
// caller holds lock
func (c *Config) mutable(n, max int) error {
	if c.inUse() {
		return errors.Wrapf(ErrConfigInUse, "%s", c)
	}
	if c.fixed && n >= max {
		return errors.Wrapf(ErrCapacityExceeded, "%s", c)
	}
	return nil
}

// inUse returns true if the Config is claimed, or a claim, release or switch
// is in progress.
//
// caller holds lock
func (c *Config) inUse() bool {
	return c.claim != nil || c.busy
}

// resources returns the registry identities of all the resources in the
// Config, in claim order.
//
// caller holds lock
func (c *Config) resources() ([]Resource, error) {
	var rr []Resource
	for _, l := range c.labels {
		pads, err := l.Expand()
		if err != nil {
			return nil, err
		}
		for _, p := range pads {
			rr = append(rr, PadResource(p))
		}
	}
	for _, v := range c.sysconfs {
		rr = append(rr, v.resources()...)
	}
	for _, g := range c.gpios {
		rr = append(rr, GPIOResource(g.GPIO))
	}
	return rr, nil
}

// NameOption defines the name of a Config.
type NameOption string

// WithName returns an option that names the Config.
func WithName(name string) NameOption {
	return NameOption(name)
}

func (o NameOption) applyConfigOption(c *Config) error {
	c.Name = string(o)
	return nil
}

// LabelOption adds a label to a Config.
type LabelOption struct {
	Label
}

// WithLabel returns an option that adds the label to the Config.
func WithLabel(l Label) LabelOption {
	return LabelOption{l}
}

func (o LabelOption) applyConfigOption(c *Config) error {
	return c.AddLabel(o.Label)
}

// WithSysconf returns an option that adds a sysconf register value to the
// Config.
func WithSysconf(t RegType, regnum, lsb, msb, value int) SysconfValue {
	return SysconfValue{RegType: t, RegNum: regnum, LSB: lsb, MSB: msb, Value: value}
}

// WithSysCfg returns an option that adds a SYS_CFG register value to the
// Config.
func WithSysCfg(regnum, lsb, msb, value int) SysconfValue {
	return WithSysconf(SysCfg, regnum, lsb, msb, value)
}

func (o SysconfValue) applyConfigOption(c *Config) error {
	return c.AddSysconf(o.RegType, o.RegNum, o.LSB, o.MSB, o.Value)
}

// WithGPIO returns an option that adds a GPIO line to the Config.
func WithGPIO(gpio int, d Direction) GPIOValue {
	return GPIOValue{GPIO: gpio, Direction: d}
}

// WithPIO returns an option that adds the GPIO line for a pin of a PIO port
// to the Config.
func WithPIO(port, pin int, d Direction) GPIOValue {
	return GPIOValue{GPIO: PIO(port, pin), Direction: d}
}

func (o GPIOValue) applyConfigOption(c *Config) error {
	return c.AddGPIO(o.GPIO, o.Direction)
}

// HookOption sets the custom hook of a Config.
type HookOption struct {
	CustomHook
}

// WithHook returns an option that sets the custom hook of the Config.
func WithHook(h CustomHook) HookOption {
	return HookOption{h}
}

func (o HookOption) applyConfigOption(c *Config) error {
	return c.SetHook(o.CustomHook)
}
