// SPDX-FileCopyrightText: 2023 Kent Gibson <warthog618@gmail.com>
//
// SPDX-License-Identifier: Apache-2.0 OR MIT

package padmux

import (
	"fmt"
	"log/slog"

	"github.com/pkg/errors"
)

// Pads arbitrates the claiming of pad configurations.
//
// It records ownership of pads, sysconf register bits and GPIO lines in a
// Registry, and drives the sysconf and GPIO subsystems to apply each claim.
// It is safe for concurrent use.
type Pads struct {
	reg     *Registry
	sysconf Sysconf
	gpio    GPIO
	log     *slog.Logger
}

// NewOption defines the interface required to provide an option to New.
type NewOption interface {
	applyOption(*Pads)
}

// New creates a Pads using the provided subsystems.
//
// Either subsystem may be nil if no Config requires it.
//
// The available options are [WithRegistry] and [WithLogger].
func New(sc Sysconf, gpio GPIO, options ...NewOption) *Pads {
	p := &Pads{sysconf: sc, gpio: gpio}
	for _, o := range options {
		o.applyOption(p)
	}
	if p.reg == nil {
		p.reg = NewRegistry()
	}
	if p.log == nil {
		p.log = slog.New(slog.DiscardHandler)
	}
	return p
}

// RegistryOption provides the Registry used by a Pads.
type RegistryOption struct {
	*Registry
}

// WithRegistry returns an option that sets the Registry used to record
// ownership.
//
// By default each Pads has its own Registry.
func WithRegistry(r *Registry) RegistryOption {
	return RegistryOption{r}
}

func (o RegistryOption) applyOption(p *Pads) {
	p.reg = o.Registry
}

// LoggerOption provides the logger used by a Pads.
type LoggerOption struct {
	*slog.Logger
}

// WithLogger returns an option that sets the logger.
//
// By default nothing is logged.
func WithLogger(l *slog.Logger) LoggerOption {
	return LoggerOption{l}
}

func (o LoggerOption) applyOption(p *Pads) {
	p.log = o.Logger
}

// Registry returns the Registry recording resource ownership.
func (p *Pads) Registry() *Registry {
	return p.reg
}

// Owner returns the name of the owner of the pad with the given canonical
// label, and true if it is claimed.
func (p *Pads) Owner(label string) (string, bool) {
	return p.reg.Owner(PadResource(label))
}

// Claim claims all the resources of the Config on behalf of the named device.
//
// Resources are claimed in Config order: pads, then sysconf register values,
// which are written as they are claimed, then GPIO lines.
// The custom hook, if any, is called last.
//
// The claim is all or nothing.  If any resource is unavailable then all the
// resources already claimed are released, in reverse order, and the original
// error returned.  Register values already written are not restored.
func (p *Pads) Claim(cfg *Config, devName string) error {
	if err := cfg.begin(false); err != nil {
		return err
	}
	tx := p.newTxn(cfg, devName)
	err := tx.claimResources()
	if err == nil {
		err = tx.claimExternal()
	}
	if err != nil {
		tx.rollback()
		cfg.end(nil)
		p.log.Debug("claim failed", "config", cfg.String(), "owner", devName, "error", err)
		return err
	}
	cfg.end(&claimState{owner: devName, regs: tx.regs})
	p.log.Debug("claimed", "config", cfg.String(), "owner", devName)
	return nil
}

// Release releases all the resources of a claimed Config.
//
// The custom hook is called first, then GPIO lines, sysconf registers and
// pads are released.  Register values are left as is.
//
// Release is best effort; failures are logged and collected into a
// ReleaseError, but do not prevent the remaining resources being released.
func (p *Pads) Release(cfg *Config) error {
	if err := cfg.begin(true); err != nil {
		return err
	}
	cs := cfg.claim
	var errs []error
	errs = append(errs, p.releaseExternal(cfg, cs)...)
	errs = append(errs, p.releaseResources(cfg, cs.owner, nil)...)
	cfg.end(nil)
	if len(errs) != 0 {
		return &ReleaseError{Errs: errs}
	}
	p.log.Debug("released", "config", cfg.String(), "owner", cs.owner)
	return nil
}

// Switch moves the pins from the old Config to the new, which is claimed on
// behalf of the named device.
//
// The new Config is claimed before the old is released, so the pins are
// never left unclaimed.  If the new Config shares resources with the old,
// ownership of those resources is handed over from old to new without them
// being available to any other claimant in the interim.
//
// If the switch fails then the old Config remains claimed.
// If old is nil, or not claimed, Switch is equivalent to Claim.
func (p *Pads) Switch(old, next *Config, devName string) error {
	if old == next {
		return errors.Wrapf(ErrConfigInUse, "switch %s to itself", next)
	}
	if old == nil {
		return p.Claim(next, devName)
	}
	if _, claimed := old.Owner(); !claimed {
		return p.Claim(next, devName)
	}
	err := p.Claim(next, devName)
	if err == nil {
		if rerr := p.Release(old); rerr != nil {
			p.log.Warn("switch: release old config", "config", old.String(), "error", rerr)
		}
		p.log.Debug("switched", "from", old.String(), "to", next.String(), "owner", devName)
		return nil
	}
	var aoe *AlreadyOwnedError
	if !errors.As(err, &aoe) {
		return err
	}
	if h, ok := p.reg.holder(aoe.Resource); !ok || h != old {
		return err
	}
	return p.handover(old, next, devName)
}

// handover switches from old to new when they share resources.
func (p *Pads) handover(old, next *Config, devName string) error {
	if err := next.begin(false); err != nil {
		return err
	}
	if err := old.begin(true); err != nil {
		next.end(nil)
		return err
	}
	ocs := old.claim
	rr, err := next.resources()
	if err != nil {
		old.end(ocs)
		next.end(nil)
		return err
	}
	fresh, err := p.reg.transfer(rr, old, next, devName)
	if err != nil {
		old.end(ocs)
		next.end(nil)
		return err
	}
	// new now holds all its registry entries, old retains those not shared.
	if errs := p.releaseExternal(old, ocs); len(errs) != 0 {
		p.log.Warn("switch: release old config", "config", old.String(), "error", &ReleaseError{errs})
	}
	tx := p.newTxn(next, devName)
	if err = tx.claimExternal(); err == nil {
		keep := make(map[Resource]bool, len(rr))
		for _, res := range rr {
			keep[res] = true
		}
		if errs := p.releaseResources(old, ocs.owner, keep); len(errs) != 0 {
			p.log.Warn("switch: release old config", "config", old.String(), "error", &ReleaseError{errs})
		}
		old.end(nil)
		next.end(&claimState{owner: devName, regs: tx.regs})
		p.log.Debug("switched", "from", old.String(), "to", next.String(), "owner", devName, "handover", len(rr)-len(fresh))
		return nil
	}
	// restore old
	tx.rollback()
	p.restore(old, ocs, next, devName, rr, fresh)
	next.end(nil)
	p.log.Debug("switch failed", "from", old.String(), "to", next.String(), "owner", devName, "error", err)
	return err
}

// restore returns the resources handed over to new back to old, and
// reclaims the external resources of old.
//
// If old cannot be fully restored then it is released.
func (p *Pads) restore(old *Config, ocs *claimState, next *Config, devName string, rr, fresh []Resource) {
	isFresh := make(map[Resource]bool, len(fresh))
	for _, res := range fresh {
		isFresh[res] = true
	}
	var shared []Resource
	for _, res := range rr {
		if isFresh[res] {
			if err := p.reg.release(res, devName, next); err != nil {
				p.log.Error("switch: release new config", "config", next.String(), "error", err)
			}
			continue
		}
		shared = append(shared, res)
	}
	if _, err := p.reg.transfer(shared, next, old, ocs.owner); err != nil {
		p.log.Error("switch: restore old config", "config", old.String(), "error", err)
	}
	tx := p.newTxn(old, ocs.owner)
	if err := tx.claimExternal(); err != nil {
		tx.rollback()
		p.log.Error("switch: restore old config", "config", old.String(), "error", err)
		p.releaseResources(old, ocs.owner, nil)
		old.end(nil)
		return
	}
	old.end(&claimState{owner: ocs.owner, regs: tx.regs})
}

// releaseExternal calls the custom release hook and releases the GPIO lines
// and sysconf registers of a claimed Config.
func (p *Pads) releaseExternal(cfg *Config, cs *claimState) []error {
	var errs []error
	if cfg.hook != nil {
		if err := cfg.hook.Release(); err != nil {
			err = &HookError{Config: cfg.Name, Err: err}
			p.log.Warn("release hook failed", "config", cfg.String(), "error", err)
			errs = append(errs, err)
		}
	}
	for _, g := range cfg.gpios {
		if err := p.gpio.Free(g.GPIO); err != nil {
			err = &ExternalError{Resource: GPIOResource(g.GPIO), Err: err}
			p.log.Warn("free gpio failed", "config", cfg.String(), "error", err)
			errs = append(errs, err)
		}
	}
	for i, r := range cs.regs {
		if err := r.Release(); err != nil {
			err = &ExternalError{Resource: fieldResource(cfg.sysconfs[i]), Err: err}
			p.log.Warn("release register failed", "config", cfg.String(), "error", err)
			errs = append(errs, err)
		}
	}
	return errs
}

// releaseResources removes the registry entries of a claimed Config,
// other than those in keep.
func (p *Pads) releaseResources(cfg *Config, owner string, keep map[Resource]bool) []error {
	var errs []error
	rel := func(res Resource) {
		if keep[res] {
			return
		}
		if err := p.reg.release(res, owner, cfg); err != nil {
			p.log.Warn("release failed", "config", cfg.String(), "error", err)
			errs = append(errs, err)
		}
	}
	for _, g := range cfg.gpios {
		rel(GPIOResource(g.GPIO))
	}
	for _, v := range cfg.sysconfs {
		for _, res := range v.resources() {
			rel(res)
		}
	}
	for _, l := range cfg.labels {
		// labels were validated when added
		pads, _ := l.Expand()
		for _, pad := range pads {
			rel(PadResource(pad))
		}
	}
	return errs
}

// txn is an in-progress claim of a Config, recording how to undo each step.
type txn struct {
	p     *Pads
	cfg   *Config
	owner string
	regs  []Register
	undo  []func() error
}

func (p *Pads) newTxn(cfg *Config, owner string) *txn {
	return &txn{p: p, cfg: cfg, owner: owner}
}

// claimResources claims the registry entries for the Config.
func (tx *txn) claimResources() error {
	rr, err := tx.cfg.resources()
	if err != nil {
		return err
	}
	for _, res := range rr {
		if err := tx.p.reg.claim(res, tx.owner, tx.cfg); err != nil {
			return err
		}
		res := res
		tx.undo = append(tx.undo, func() error {
			return tx.p.reg.release(res, tx.owner, tx.cfg)
		})
	}
	return nil
}

// claimExternal claims the sysconf registers, and writes their values, then
// requests the GPIO lines and finally calls the custom claim hook.
func (tx *txn) claimExternal() error {
	cfg := tx.cfg
	for _, v := range cfg.sysconfs {
		res := fieldResource(v)
		if tx.p.sysconf == nil {
			return &ExternalError{Resource: res, Err: errors.New("no sysconf subsystem")}
		}
		r, err := tx.p.sysconf.ClaimRegister(v.RegType, v.RegNum, tx.owner)
		if err != nil {
			return &ExternalError{Resource: res, Err: err}
		}
		tx.regs = append(tx.regs, r)
		tx.undo = append(tx.undo, r.Release)
		if err := r.Write(v.LSB, v.MSB, v.Value); err != nil {
			return &ExternalError{Resource: res, Err: err}
		}
	}
	for _, g := range cfg.gpios {
		res := GPIOResource(g.GPIO)
		if tx.p.gpio == nil {
			return &ExternalError{Resource: res, Err: errors.New("no gpio subsystem")}
		}
		if err := tx.p.gpio.Request(g.GPIO, g.Direction, tx.owner); err != nil {
			return &ExternalError{Resource: res, Err: err}
		}
		gpio := g.GPIO
		tx.undo = append(tx.undo, func() error {
			return tx.p.gpio.Free(gpio)
		})
	}
	if cfg.hook != nil {
		if err := cfg.hook.Claim(); err != nil {
			return &HookError{Config: cfg.Name, Err: err}
		}
	}
	return nil
}

// rollback undoes the steps of the txn, in reverse order.
func (tx *txn) rollback() {
	for i := len(tx.undo) - 1; i >= 0; i-- {
		if err := tx.undo[i](); err != nil {
			tx.p.log.Warn("rollback failed", "config", tx.cfg.String(), "owner", tx.owner, "error", err)
		}
	}
	tx.undo = nil
	tx.regs = nil
}

// fieldResource identifies a sysconf field in errors.
func fieldResource(v SysconfValue) Resource {
	return Resource{KindSysconf, fmt.Sprintf("%s%d[%d:%d]", v.RegType, v.RegNum, v.MSB, v.LSB)}
}

// begin marks the Config as busy, ready for an operation.
//
// If claimed is true then the Config must be claimed, else it must not be.
func (c *Config) begin(claimed bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.busy {
		return errors.Wrapf(ErrConfigInUse, "%s", c)
	}
	if claimed && c.claim == nil {
		return errors.Wrapf(ErrNotClaimed, "%s", c)
	}
	if !claimed && c.claim != nil {
		return errors.Wrapf(ErrConfigInUse, "%s", c)
	}
	c.busy = true
	return nil
}

// end clears the busy state of the Config, leaving it claimed with the
// provided state, or unclaimed if cs is nil.
func (c *Config) end(cs *claimState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.claim = cs
	c.busy = false
}
