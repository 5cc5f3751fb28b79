// SPDX-FileCopyrightText: 2023 Kent Gibson <warthog618@gmail.com>
//
// SPDX-License-Identifier: Apache-2.0 OR MIT

package padmux_test

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/pkg/errors"
	"github.com/sourcegraph/conc/pool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warthog618/go-padmux"
	"github.com/warthog618/go-padmux/gpioline"
	"github.com/warthog618/go-padmux/sysconf"
)

type fixture struct {
	sc   *sysconf.Simpleton
	gpio *gpioline.Table
}

const (
	// register hogged by another subsystem
	hoggedReg = 15

	// register with bits 0..3 reserved
	reservedReg = 14

	// line hogged by another consumer
	hoggedLine = 127
)

func newPads(t *testing.T, options ...padmux.NewOption) (*padmux.Pads, *fixture) {
	t.Helper()
	sc, err := sysconf.NewSimpleton(16,
		sysconf.WithHoggedRegister(hoggedReg, "secure-monitor"),
		sysconf.WithReservedField(reservedReg, 0, 3, "bootloader"),
	)
	require.Nil(t, err)
	t.Cleanup(sc.Close)
	tbl := gpioline.NewTable(
		gpioline.WithNumLines(128),
		gpioline.WithHoggedLine(hoggedLine, "piggy"),
	)
	return padmux.New(sc, tbl, options...), &fixture{sc: sc, gpio: tbl}
}

// checkIdle checks that no resources remain claimed.
func (f *fixture) checkIdle(t *testing.T, pads *padmux.Pads) {
	t.Helper()
	assert.Zero(t, pads.Registry().Len())
	for n := 0; n < 16; n++ {
		u, err := f.sc.Users(n)
		assert.Nil(t, err)
		assert.Zero(t, u, "register %d", n)
	}
	// only the hog remains
	assert.Len(t, f.gpio.Requested(), 1)
}

func checkOwner(t *testing.T, pads *padmux.Pads, label, xowner string) {
	t.Helper()
	owner, ok := pads.Owner(label)
	if len(xowner) == 0 {
		assert.False(t, ok, "%s owned by %q", label, owner)
		return
	}
	assert.True(t, ok, "%s not owned", label)
	assert.Equal(t, xowner, owner)
}

func newUART(t *testing.T, hook padmux.CustomHook) *padmux.Config {
	t.Helper()
	options := []padmux.ConfigOption{
		padmux.WithName("uart1"),
		padmux.WithLabel(padmux.LabelRange("PIO1", 0, 3)),
		padmux.WithSysCfg(1, 0, 3, 5),
		padmux.WithSysCfg(2, 4, 7, 0xa),
		padmux.WithPIO(1, 2, padmux.DirectionOut),
		padmux.WithPIO(1, 3, padmux.DirectionIn),
	}
	if hook != nil {
		options = append(options, padmux.WithHook(hook))
	}
	c, err := padmux.NewConfig(options...)
	require.Nil(t, err)
	return c
}

func TestClaimRelease(t *testing.T) {
	pads, f := newPads(t)
	c := newUART(t, nil)

	err := pads.Claim(c, "uart.1")
	require.Nil(t, err)
	owner, ok := c.Owner()
	assert.True(t, ok)
	assert.Equal(t, "uart.1", owner)
	for i := 0; i < 4; i++ {
		checkOwner(t, pads, fmt.Sprintf("PIO1.%d", i), "uart.1")
	}
	checkOwner(t, pads, "PIO1.4", "")
	// 4 pads, 8 sysconf bits, 2 lines
	assert.Equal(t, 14, pads.Registry().Len())
	assert.Len(t, pads.Registry().Resources("uart.1"), 14)
	v, err := f.sc.Field(1, 0, 3)
	assert.Nil(t, err)
	assert.Equal(t, 5, v)
	v, err = f.sc.Field(2, 4, 7)
	assert.Nil(t, err)
	assert.Equal(t, 0xa, v)
	li, ok := f.gpio.Line(padmux.PIO(1, 2))
	assert.True(t, ok)
	assert.Equal(t, "uart.1", li.Consumer)
	assert.Equal(t, padmux.DirectionOut, li.Direction)

	err = pads.Release(c)
	require.Nil(t, err)
	_, ok = c.Owner()
	assert.False(t, ok)
	f.checkIdle(t, pads)
	// register values persist
	v, err = f.sc.Field(1, 0, 3)
	assert.Nil(t, err)
	assert.Equal(t, 5, v)

	// round trip
	err = pads.Claim(c, "uart.1")
	require.Nil(t, err)
	assert.Equal(t, 14, pads.Registry().Len())
	require.Nil(t, pads.Release(c))
	f.checkIdle(t, pads)
}

func TestClaimTwice(t *testing.T) {
	pads, _ := newPads(t)
	c := newUART(t, nil)

	require.Nil(t, pads.Claim(c, "uart.1"))
	err := pads.Claim(c, "uart.1")
	assert.True(t, errors.Is(err, padmux.ErrConfigInUse))
	err = pads.Claim(c, "uart.2")
	assert.True(t, errors.Is(err, padmux.ErrConfigInUse))
	checkOwner(t, pads, "PIO1.0", "uart.1")
	assert.Equal(t, 14, pads.Registry().Len())
}

func TestReleaseUnclaimed(t *testing.T) {
	pads, _ := newPads(t)
	c := newUART(t, nil)

	err := pads.Release(c)
	assert.True(t, errors.Is(err, padmux.ErrNotClaimed))

	require.Nil(t, pads.Claim(c, "uart.1"))
	require.Nil(t, pads.Release(c))
	err = pads.Release(c)
	assert.True(t, errors.Is(err, padmux.ErrNotClaimed))
}

func TestLabelEquivalence(t *testing.T) {
	for _, l := range []padmux.Label{
		padmux.NewLabel("PIO3.7"),
		padmux.LabelNumber("PIO3", 7),
		padmux.LabelStrings("PIO3", "7"),
	} {
		pp, err := l.Expand()
		require.Nil(t, err)
		assert.Equal(t, []string{"PIO3.7"}, pp)
	}

	// equivalent labels contend for the same pad
	pads, _ := newPads(t)
	a, err := padmux.NewConfig(padmux.WithLabel(padmux.NewLabel("PIO3.7")))
	require.Nil(t, err)
	b, err := padmux.NewConfig(padmux.WithLabel(padmux.LabelStrings("PIO3", "7")))
	require.Nil(t, err)
	require.Nil(t, pads.Claim(a, "A"))
	err = pads.Claim(b, "B")
	assert.True(t, errors.Is(err, padmux.ErrAlreadyOwned))
}

func TestClaimConflict(t *testing.T) {
	pads, f := newPads(t)
	a, err := padmux.NewConfig(padmux.WithLabel(padmux.LabelRange("PIO3", 5, 7)))
	require.Nil(t, err)
	b, err := padmux.NewConfig(
		padmux.WithLabel(padmux.LabelNumber("PIO3", 4)),
		padmux.WithLabel(padmux.LabelNumber("PIO3", 6)),
		padmux.WithPIO(3, 4, padmux.DirectionIn),
	)
	require.Nil(t, err)

	require.Nil(t, pads.Claim(a, "A"))
	err = pads.Claim(b, "B")
	var aoe *padmux.AlreadyOwnedError
	require.True(t, errors.As(err, &aoe))
	assert.Equal(t, padmux.PadResource("PIO3.6"), aoe.Resource)
	assert.Equal(t, "A", aoe.Owner)
	checkOwner(t, pads, "PIO3.6", "A")
	// partial claim rolled back
	checkOwner(t, pads, "PIO3.4", "")
	_, ok := f.gpio.Line(padmux.PIO(3, 4))
	assert.False(t, ok)
	_, ok = b.Owner()
	assert.False(t, ok)
	assert.Equal(t, 3, pads.Registry().Len())

	// B is claimable once A is released
	require.Nil(t, pads.Release(a))
	require.Nil(t, pads.Claim(b, "B"))
	checkOwner(t, pads, "PIO3.6", "B")
}

func TestClaimExternalFailure(t *testing.T) {
	pads, f := newPads(t)
	c, err := padmux.NewConfig(
		padmux.WithLabel(padmux.LabelList("X", 1, 2)),
		padmux.WithGPIO(hoggedLine, padmux.DirectionIn),
	)
	require.Nil(t, err)

	err = pads.Claim(c, "C")
	assert.True(t, errors.Is(err, padmux.ErrExternal))
	assert.True(t, errors.Is(err, gpioline.ErrBusy))
	var ee *padmux.ExternalError
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, padmux.GPIOResource(hoggedLine), ee.Resource)
	checkOwner(t, pads, "X.1", "")
	checkOwner(t, pads, "X.2", "")
	f.checkIdle(t, pads)
}

func TestClaimSysconfFailure(t *testing.T) {
	pads, f := newPads(t)

	// hogged register
	c, err := padmux.NewConfig(
		padmux.WithLabel(padmux.NewLabel("PIO2.0")),
		padmux.WithSysCfg(3, 0, 0, 1),
		padmux.WithSysCfg(hoggedReg, 0, 0, 1),
	)
	require.Nil(t, err)
	err = pads.Claim(c, "C")
	assert.True(t, errors.Is(err, padmux.ErrExternal))
	assert.True(t, errors.Is(err, sysconf.ErrBusy))
	f.checkIdle(t, pads)

	// reserved field
	c, err = padmux.NewConfig(
		padmux.WithLabel(padmux.NewLabel("PIO2.0")),
		padmux.WithSysCfg(reservedReg, 2, 5, 1),
	)
	require.Nil(t, err)
	err = pads.Claim(c, "C")
	assert.True(t, errors.Is(err, sysconf.ErrReserved))
	f.checkIdle(t, pads)
}

func TestClaimNoSubsystem(t *testing.T) {
	pads := padmux.New(nil, nil)
	c, err := padmux.NewConfig(
		padmux.WithLabel(padmux.NewLabel("PIO2.0")),
		padmux.WithSysCfg(3, 0, 0, 1),
	)
	require.Nil(t, err)
	err = pads.Claim(c, "C")
	assert.True(t, errors.Is(err, padmux.ErrExternal))
	assert.Zero(t, pads.Registry().Len())

	c, err = padmux.NewConfig(padmux.WithGPIO(3, padmux.DirectionIn))
	require.Nil(t, err)
	err = pads.Claim(c, "C")
	assert.True(t, errors.Is(err, padmux.ErrExternal))
	assert.Zero(t, pads.Registry().Len())

	// pads only configs need neither
	c, err = padmux.NewConfig(padmux.WithLabel(padmux.NewLabel("PIO2.0")))
	require.Nil(t, err)
	assert.Nil(t, pads.Claim(c, "C"))
	assert.Nil(t, pads.Release(c))
}

func TestClaimLabelTooLong(t *testing.T) {
	pads, _ := newPads(t)
	c := padmux.AllocConfig(2, 0, 0)
	require.Nil(t, c.AddLabelNumber("PIO5", 1))
	err := c.AddLabelNumber("PIO5_THIS_IS_A_VERY_LONG_PREFIX", 123)
	assert.True(t, errors.Is(err, padmux.ErrLabelTooLong))
	assert.Len(t, c.Labels(), 1)

	require.Nil(t, pads.Claim(c, "D"))
	assert.Equal(t, 1, pads.Registry().Len())
}

// faults injects a failure into the nth external operation.
type faults struct {
	mu     sync.Mutex
	n      int
	failAt int
}

var errInjected = errors.New("injected fault")

func (f *faults) step() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.n++
	if f.n == f.failAt {
		return errInjected
	}
	return nil
}

type faultySysconf struct {
	padmux.Sysconf
	f *faults
}

func (s faultySysconf) ClaimRegister(t padmux.RegType, num int, owner string) (padmux.Register, error) {
	if err := s.f.step(); err != nil {
		return nil, err
	}
	r, err := s.Sysconf.ClaimRegister(t, num, owner)
	if err != nil {
		return nil, err
	}
	return faultyRegister{r, s.f}, nil
}

type faultyRegister struct {
	padmux.Register
	f *faults
}

func (r faultyRegister) Write(lsb, msb, value int) error {
	if err := r.f.step(); err != nil {
		return err
	}
	return r.Register.Write(lsb, msb, value)
}

type faultyGPIO struct {
	padmux.GPIO
	f *faults
}

func (g faultyGPIO) Request(gpio int, d padmux.Direction, consumer string) error {
	if err := g.f.step(); err != nil {
		return err
	}
	return g.GPIO.Request(gpio, d, consumer)
}

func TestClaimAtomic(t *testing.T) {
	// claim register, write, claim register, write, request, request, hook
	steps := 7
	for k := 1; k <= steps; k++ {
		tf := func(t *testing.T) {
			_, fx := newPads(t)
			f := &faults{failAt: k}
			pads := padmux.New(faultySysconf{fx.sc, f}, faultyGPIO{fx.gpio, f})
			releases := 0
			c := newUART(t, padmux.HookFuncs{
				ClaimFunc: f.step,
				ReleaseFunc: func() error {
					releases++
					return nil
				},
			})

			err := pads.Claim(c, "uart.1")
			assert.True(t, errors.Is(err, errInjected))
			_, ok := c.Owner()
			assert.False(t, ok)
			fx.checkIdle(t, pads)
			assert.Zero(t, releases)
			assert.Equal(t, k, f.n)
		}
		t.Run(fmt.Sprintf("external%d", k), tf)
	}

	c := newUART(t, nil)
	pads, _ := newPads(t)
	rr := []padmux.Resource{
		padmux.PadResource("PIO1.0"),
		padmux.PadResource("PIO1.3"),
		padmux.SysconfResource(padmux.SysCfg, 1, 2),
		padmux.SysconfResource(padmux.SysCfg, 2, 7),
		padmux.GPIOResource(padmux.PIO(1, 2)),
		padmux.GPIOResource(padmux.PIO(1, 3)),
	}
	for _, res := range rr {
		tf := func(t *testing.T) {
			reg := pads.Registry()
			require.Nil(t, reg.TryClaim(res, "other"))
			err := pads.Claim(c, "uart.1")
			assert.True(t, errors.Is(err, padmux.ErrAlreadyOwned))
			assert.Equal(t, []padmux.Claim{{Resource: res, Owner: "other"}}, reg.Snapshot())
			require.Nil(t, reg.Release(res, "other"))
		}
		t.Run(res.String(), tf)
	}
}

func TestHookOrdering(t *testing.T) {
	pads, f := newPads(t)
	var c *padmux.Config
	var events []string
	hook := padmux.HookFuncs{
		ClaimFunc: func() error {
			// all other resources already claimed
			_, ok := f.gpio.Line(padmux.PIO(1, 3))
			assert.True(t, ok)
			v, err := f.sc.Field(2, 4, 7)
			assert.Nil(t, err)
			assert.Equal(t, 0xa, v)
			checkOwner(t, pads, "PIO1.0", "uart.1")
			events = append(events, "claim")
			return nil
		},
		ReleaseFunc: func() error {
			// nothing released yet
			_, ok := f.gpio.Line(padmux.PIO(1, 3))
			assert.True(t, ok)
			u, err := f.sc.Users(1)
			assert.Nil(t, err)
			assert.Equal(t, 1, u)
			checkOwner(t, pads, "PIO1.0", "uart.1")
			events = append(events, "release")
			return nil
		},
	}
	c = newUART(t, hook)
	require.Nil(t, pads.Claim(c, "uart.1"))
	require.Nil(t, pads.Release(c))
	assert.Equal(t, []string{"claim", "release"}, events)
	f.checkIdle(t, pads)
}

func TestHookFailure(t *testing.T) {
	pads, f := newPads(t)
	herr := errors.New("clock unavailable")
	c := newUART(t, padmux.HookFuncs{ClaimFunc: func() error { return herr }})

	err := pads.Claim(c, "uart.1")
	assert.True(t, errors.Is(err, padmux.ErrHook))
	assert.True(t, errors.Is(err, herr))
	var he *padmux.HookError
	require.True(t, errors.As(err, &he))
	assert.Equal(t, "uart1", he.Config)
	f.checkIdle(t, pads)

	// release hook failure does not prevent release
	c = newUART(t, padmux.HookFuncs{ReleaseFunc: func() error { return herr }})
	require.Nil(t, pads.Claim(c, "uart.1"))
	err = pads.Release(c)
	assert.True(t, errors.Is(err, padmux.ErrHook))
	var re *padmux.ReleaseError
	require.True(t, errors.As(err, &re))
	assert.Len(t, re.Errs, 1)
	_, ok := c.Owner()
	assert.False(t, ok)
	f.checkIdle(t, pads)
}

func TestReleaseBestEffort(t *testing.T) {
	pads, f := newPads(t)
	c := newUART(t, nil)
	require.Nil(t, pads.Claim(c, "uart.1"))

	// steal a pad
	reg := pads.Registry()
	res := padmux.PadResource("PIO1.1")
	require.Nil(t, reg.Release(res, "uart.1"))
	require.Nil(t, reg.TryClaim(res, "thief"))

	err := pads.Release(c)
	require.NotNil(t, err)
	assert.True(t, errors.Is(err, padmux.ErrNotOwner))
	var re *padmux.ReleaseError
	require.True(t, errors.As(err, &re))
	require.Len(t, re.Errs, 1)
	var noe *padmux.NotOwnerError
	require.True(t, errors.As(re.Errs[0], &noe))
	assert.Equal(t, "thief", noe.Owner)
	assert.Equal(t, "uart.1", noe.Caller)

	// everything else released
	_, ok := c.Owner()
	assert.False(t, ok)
	assert.Equal(t, []padmux.Claim{{Resource: res, Owner: "thief"}}, reg.Snapshot())
	assert.Len(t, f.gpio.Requested(), 1)
	u, err := f.sc.Users(1)
	assert.Nil(t, err)
	assert.Zero(t, u)
}

func TestSysconfOverlap(t *testing.T) {
	pads, f := newPads(t)
	a, err := padmux.NewConfig(padmux.WithSysCfg(4, 0, 3, 0x3))
	require.Nil(t, err)
	overlap, err := padmux.NewConfig(padmux.WithSysCfg(4, 3, 4, 0x1))
	require.Nil(t, err)
	disjoint, err := padmux.NewConfig(padmux.WithSysCfg(4, 4, 7, 0x9))
	require.Nil(t, err)

	require.Nil(t, pads.Claim(a, "a"))
	err = pads.Claim(overlap, "b")
	var aoe *padmux.AlreadyOwnedError
	require.True(t, errors.As(err, &aoe))
	assert.Equal(t, padmux.SysconfResource(padmux.SysCfg, 4, 3), aoe.Resource)

	// disjoint fields of the one register may be held by separate owners
	require.Nil(t, pads.Claim(disjoint, "c"))
	v, err := f.sc.Value(4)
	assert.Nil(t, err)
	assert.Equal(t, uint32(0x93), v)
	u, err := f.sc.Users(4)
	assert.Nil(t, err)
	assert.Equal(t, 2, u)
	owner, ok := pads.Registry().Owner(padmux.SysconfResource(padmux.SysCfg, 4, 5))
	assert.True(t, ok)
	assert.Equal(t, "c", owner)
}

func TestSwitchHandover(t *testing.T) {
	pads, f := newPads(t)
	old, err := padmux.NewConfig(
		padmux.WithName("old"),
		padmux.WithLabel(padmux.NewLabel("PIO1.0")),
		padmux.WithSysCfg(5, 0, 1, 1),
		padmux.WithPIO(1, 0, padmux.DirectionIn),
	)
	require.Nil(t, err)
	next, err := padmux.NewConfig(
		padmux.WithName("new"),
		padmux.WithLabel(padmux.LabelRange("PIO1", 0, 1)),
		padmux.WithSysCfg(5, 0, 1, 2),
		padmux.WithPIO(1, 0, padmux.DirectionOut),
	)
	require.Nil(t, err)

	require.Nil(t, pads.Claim(old, "dev"))
	err = pads.Switch(old, next, "dev")
	require.Nil(t, err)
	checkOwner(t, pads, "PIO1.0", "dev")
	checkOwner(t, pads, "PIO1.1", "dev")
	_, ok := old.Owner()
	assert.False(t, ok)
	owner, ok := next.Owner()
	assert.True(t, ok)
	assert.Equal(t, "dev", owner)
	// 2 pads, 2 bits, 1 line
	assert.Equal(t, 5, pads.Registry().Len())
	v, err := f.sc.Field(5, 0, 1)
	assert.Nil(t, err)
	assert.Equal(t, 2, v)
	u, err := f.sc.Users(5)
	assert.Nil(t, err)
	assert.Equal(t, 1, u)
	li, ok := f.gpio.Line(padmux.PIO(1, 0))
	assert.True(t, ok)
	assert.Equal(t, padmux.DirectionOut, li.Direction)

	// old holds nothing, so release of new leaves nothing
	require.Nil(t, pads.Release(next))
	f.checkIdle(t, pads)
}

func TestSwitchDisjoint(t *testing.T) {
	pads, f := newPads(t)
	old, err := padmux.NewConfig(padmux.WithLabel(padmux.NewLabel("PIO1.0")))
	require.Nil(t, err)
	next, err := padmux.NewConfig(
		padmux.WithLabel(padmux.NewLabel("PIO2.0")),
		padmux.WithPIO(2, 0, padmux.DirectionIn),
	)
	require.Nil(t, err)

	require.Nil(t, pads.Claim(old, "dev"))
	require.Nil(t, pads.Switch(old, next, "dev2"))
	checkOwner(t, pads, "PIO1.0", "")
	checkOwner(t, pads, "PIO2.0", "dev2")
	_, ok := old.Owner()
	assert.False(t, ok)
	require.Nil(t, pads.Release(next))
	f.checkIdle(t, pads)
}

func TestSwitchThirdParty(t *testing.T) {
	pads, f := newPads(t)
	old, err := padmux.NewConfig(padmux.WithLabel(padmux.NewLabel("PIO1.0")))
	require.Nil(t, err)
	other, err := padmux.NewConfig(padmux.WithLabel(padmux.NewLabel("PIO1.1")))
	require.Nil(t, err)
	next, err := padmux.NewConfig(
		padmux.WithLabel(padmux.LabelRange("PIO1", 0, 1)),
		padmux.WithPIO(1, 0, padmux.DirectionIn),
	)
	require.Nil(t, err)

	require.Nil(t, pads.Claim(old, "dev"))
	require.Nil(t, pads.Claim(other, "other"))
	err = pads.Switch(old, next, "dev")
	assert.True(t, errors.Is(err, padmux.ErrAlreadyOwned))
	checkOwner(t, pads, "PIO1.0", "dev")
	checkOwner(t, pads, "PIO1.1", "other")
	_, ok := old.Owner()
	assert.True(t, ok)
	_, ok = next.Owner()
	assert.False(t, ok)
	assert.Len(t, f.gpio.Requested(), 1)
	assert.Equal(t, 2, pads.Registry().Len())
}

func TestSwitchRestore(t *testing.T) {
	pads, f := newPads(t)
	oldClaims := 0
	old, err := padmux.NewConfig(
		padmux.WithLabel(padmux.NewLabel("PIO1.0")),
		padmux.WithSysCfg(5, 0, 1, 1),
		padmux.WithPIO(1, 0, padmux.DirectionIn),
		padmux.WithHook(padmux.HookFuncs{ClaimFunc: func() error {
			oldClaims++
			return nil
		}}),
	)
	require.Nil(t, err)
	next, err := padmux.NewConfig(
		padmux.WithLabel(padmux.LabelRange("PIO1", 0, 1)),
		padmux.WithSysCfg(5, 0, 1, 2),
		padmux.WithGPIO(hoggedLine, padmux.DirectionOut),
	)
	require.Nil(t, err)

	require.Nil(t, pads.Claim(old, "dev"))
	require.Equal(t, 1, oldClaims)
	err = pads.Switch(old, next, "dev")
	assert.True(t, errors.Is(err, padmux.ErrExternal))
	assert.True(t, errors.Is(err, gpioline.ErrBusy))

	// old restored
	owner, ok := old.Owner()
	assert.True(t, ok)
	assert.Equal(t, "dev", owner)
	_, ok = next.Owner()
	assert.False(t, ok)
	assert.Equal(t, 2, oldClaims)
	checkOwner(t, pads, "PIO1.0", "dev")
	checkOwner(t, pads, "PIO1.1", "")
	// 1 pad, 2 bits, 1 line
	assert.Equal(t, 4, pads.Registry().Len())
	_, ok = f.gpio.Line(padmux.PIO(1, 0))
	assert.True(t, ok)
	u, err := f.sc.Users(5)
	assert.Nil(t, err)
	assert.Equal(t, 1, u)
	v, err := f.sc.Field(5, 0, 1)
	assert.Nil(t, err)
	assert.Equal(t, 1, v)

	// old remains fully releasable
	require.Nil(t, pads.Release(old))
	f.checkIdle(t, pads)
}

func TestSwitchHandoverExclusive(t *testing.T) {
	pads, f := newPads(t)
	old, err := padmux.NewConfig(
		padmux.WithName("old"),
		padmux.WithLabel(padmux.NewLabel("PIO1.0")),
		padmux.WithPIO(1, 0, padmux.DirectionIn),
	)
	require.Nil(t, err)
	var intrusions []error
	next, err := padmux.NewConfig(
		padmux.WithName("new"),
		padmux.WithLabel(padmux.LabelRange("PIO1", 0, 1)),
		padmux.WithPIO(1, 0, padmux.DirectionOut),
		padmux.WithHook(padmux.HookFuncs{ClaimFunc: func() error {
			// mid handover, the shared and fresh pads are both held by new
			for _, label := range []string{"PIO1.0", "PIO1.1"} {
				intrusions = append(intrusions,
					pads.Registry().TryClaim(padmux.PadResource(label), "intruder"))
			}
			return nil
		}}),
	)
	require.Nil(t, err)

	require.Nil(t, pads.Claim(old, "dev"))
	require.Nil(t, pads.Switch(old, next, "dev"))
	require.Len(t, intrusions, 2)
	for _, err := range intrusions {
		assert.True(t, errors.Is(err, padmux.ErrAlreadyOwned), err)
	}
	checkOwner(t, pads, "PIO1.0", "dev")
	checkOwner(t, pads, "PIO1.1", "dev")
	assert.Empty(t, pads.Registry().Resources("intruder"))

	require.Nil(t, pads.Release(next))
	f.checkIdle(t, pads)
}

func TestSwitchDuplicateResource(t *testing.T) {
	pads, f := newPads(t)
	old, err := padmux.NewConfig(padmux.WithLabel(padmux.NewLabel("PIO1.0")))
	require.Nil(t, err)
	next, err := padmux.NewConfig(
		padmux.WithLabel(padmux.LabelRange("PIO1", 0, 1)),
		padmux.WithLabel(padmux.NewLabel("PIO1.1")),
	)
	require.Nil(t, err)

	// rejected by plain claim
	err = pads.Claim(next, "other")
	assert.True(t, errors.Is(err, padmux.ErrAlreadyOwned), err)
	assert.Zero(t, pads.Registry().Len())

	// and by handover
	require.Nil(t, pads.Claim(old, "dev"))
	err = pads.Switch(old, next, "dev")
	assert.True(t, errors.Is(err, padmux.ErrAlreadyOwned), err)
	_, ok := next.Owner()
	assert.False(t, ok)
	owner, ok := old.Owner()
	assert.True(t, ok)
	assert.Equal(t, "dev", owner)
	checkOwner(t, pads, "PIO1.0", "dev")
	checkOwner(t, pads, "PIO1.1", "")
	assert.Equal(t, 1, pads.Registry().Len())

	// overlapping sysconf fields within one config likewise
	overlap, err := padmux.NewConfig(
		padmux.WithLabel(padmux.NewLabel("PIO1.0")),
		padmux.WithSysCfg(5, 0, 3, 1),
		padmux.WithSysCfg(5, 2, 4, 1),
	)
	require.Nil(t, err)
	err = pads.Switch(old, overlap, "dev")
	assert.True(t, errors.Is(err, padmux.ErrAlreadyOwned), err)
	checkOwner(t, pads, "PIO1.0", "dev")

	require.Nil(t, pads.Release(old))
	f.checkIdle(t, pads)
}

func TestSwitchUnclaimed(t *testing.T) {
	pads, _ := newPads(t)
	old, err := padmux.NewConfig(padmux.WithLabel(padmux.NewLabel("PIO1.0")))
	require.Nil(t, err)
	next, err := padmux.NewConfig(padmux.WithLabel(padmux.NewLabel("PIO1.0")))
	require.Nil(t, err)

	// nil old
	require.Nil(t, pads.Switch(nil, next, "dev"))
	checkOwner(t, pads, "PIO1.0", "dev")
	require.Nil(t, pads.Release(next))

	// unclaimed old
	require.Nil(t, pads.Switch(old, next, "dev"))
	checkOwner(t, pads, "PIO1.0", "dev")

	// to itself
	err = pads.Switch(next, next, "dev")
	assert.True(t, errors.Is(err, padmux.ErrConfigInUse))
	_, ok := next.Owner()
	assert.True(t, ok)
}

func TestConcurrentClaims(t *testing.T) {
	pads, f := newPads(t)
	var holders atomic.Int32
	var maxHolders atomic.Int32
	configs := make([]*padmux.Config, 16)
	for i := range configs {
		c, err := padmux.NewConfig(
			padmux.WithName(fmt.Sprintf("cfg%d", i)),
			padmux.WithLabel(padmux.LabelRange("PIO6", i%4, i%4+4)),
			padmux.WithSysCfg(6, 0, 3, i),
			padmux.WithHook(padmux.HookFuncs{
				ClaimFunc: func() error {
					n := holders.Add(1)
					for {
						m := maxHolders.Load()
						if n <= m || maxHolders.CompareAndSwap(m, n) {
							break
						}
					}
					return nil
				},
				ReleaseFunc: func() error {
					holders.Add(-1)
					return nil
				},
			}),
		)
		require.Nil(t, err)
		configs[i] = c
	}

	var claims atomic.Int32
	p := pool.New().WithMaxGoroutines(8)
	for round := 0; round < 20; round++ {
		for i, c := range configs {
			dev := fmt.Sprintf("dev%d", i)
			p.Go(func() {
				if err := pads.Claim(c, dev); err != nil {
					return
				}
				claims.Add(1)
				owner, ok := pads.Owner("PIO6.4")
				if assert.True(t, ok) {
					assert.Equal(t, dev, owner)
				}
				assert.Nil(t, pads.Release(c))
			})
		}
	}
	p.Wait()

	// every config overlaps every other, so at most one held at a time
	assert.Equal(t, int32(1), maxHolders.Load())
	assert.NotZero(t, claims.Load())
	f.checkIdle(t, pads)
}
