// SPDX-FileCopyrightText: 2023 Kent Gibson <warthog618@gmail.com>
//
// SPDX-License-Identifier: Apache-2.0 OR MIT

package board

import (
	"io"
	"log/slog"
	"sync"

	"github.com/pkg/errors"
	"github.com/warthog618/go-padmux"
	"github.com/warthog618/go-padmux/sysconf"
)

// System is a board brought up with its subsystems and pad configurations.
//
// It is safe for concurrent use.
type System struct {
	// The simulated sysconf subsystem, or nil if the board has none.
	Sysconf *sysconf.Sim

	// The GPIO subsystem.
	GPIO padmux.GPIO

	Pads *padmux.Pads

	log *slog.Logger

	mu      sync.Mutex
	board   *Board
	configs map[string]*padmux.Config

	// the config each device currently holds
	active map[string]*padmux.Config
}

// Open brings up the subsystems of the board and builds its pad
// configurations.
//
// No configs are claimed until Activate is called.
func (b *Board) Open(log *slog.Logger) (*System, error) {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	configs, err := configMap(b)
	if err != nil {
		return nil, err
	}
	s := &System{
		log:     log,
		board:   b,
		configs: configs,
		active:  make(map[string]*padmux.Config),
	}
	if s.Sysconf, err = b.NewSysconf(); err != nil {
		return nil, err
	}
	if s.GPIO, err = b.NewGPIO(); err != nil {
		s.Close()
		return nil, err
	}
	var sc padmux.Sysconf
	if s.Sysconf != nil {
		sc = s.Sysconf
	}
	s.Pads = padmux.New(sc, s.GPIO, padmux.WithLogger(log))
	return s, nil
}

func configMap(b *Board) (map[string]*padmux.Config, error) {
	cc, err := b.Configs()
	if err != nil {
		return nil, err
	}
	configs := make(map[string]*padmux.Config, len(cc))
	for _, c := range cc {
		configs[c.Name] = c
	}
	return configs, nil
}

// Board returns the board the system is currently configured from.
func (s *System) Board() *Board {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.board
}

// Config returns the named pad configuration.
func (s *System) Config(name string) (*padmux.Config, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.configs[name]
	return c, ok
}

// Configs returns the pad configurations, in board file order.
func (s *System) Configs() []*padmux.Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	cc := make([]*padmux.Config, 0, len(s.board.Pads))
	for _, ps := range s.board.Pads {
		cc = append(cc, s.configs[ps.Name])
	}
	return cc
}

// Active returns the config currently held by the device, if any.
func (s *System) Active(device string) (*padmux.Config, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.active[device]
	return c, ok
}

// Activate claims the configs bound to devices by the board.
//
// Failures are logged and the remaining bindings still attempted.
// Returns the first error encountered.
func (s *System) Activate() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var first error
	for _, a := range s.board.Active {
		if _, ok := s.active[a.Device]; ok {
			continue
		}
		c := s.configs[a.Config]
		if err := s.Pads.Claim(c, a.Device); err != nil {
			s.log.Error("activate", "device", a.Device, "config", a.Config, "error", err)
			if first == nil {
				first = errors.Wrapf(err, "activate %s", a.Device)
			}
			continue
		}
		s.active[a.Device] = c
		s.log.Info("activated", "device", a.Device, "config", a.Config)
	}
	return first
}

// Reload reconfigures the system from a revised board.
//
// The subsystems are unchanged.  Each device bound by the revised board is
// switched from the config it currently holds to the revised config, devices
// no longer bound are released, and newly bound devices are claimed.
// A device that fails to switch keeps its old config.
// Returns the first error encountered.
func (s *System) Reload(nb *Board) error {
	if err := nb.Validate(); err != nil {
		return err
	}
	configs, err := configMap(nb)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var first error
	fail := func(device string, err error) {
		s.log.Error("reload", "device", device, "error", err)
		if first == nil {
			first = errors.Wrapf(err, "reload %s", device)
		}
	}
	active := make(map[string]*padmux.Config, len(nb.Active))
	for device, old := range s.active {
		if _, ok := nb.ActiveConfig(device); ok {
			continue
		}
		if err := s.Pads.Release(old); err != nil {
			fail(device, err)
		}
		s.log.Info("deactivated", "device", device, "config", old.Name)
	}
	for _, a := range nb.Active {
		next := configs[a.Config]
		old := s.active[a.Device]
		if err := s.Pads.Switch(old, next, a.Device); err != nil {
			fail(a.Device, err)
			if old != nil {
				active[a.Device] = old
			}
			continue
		}
		active[a.Device] = next
		s.log.Info("switched", "device", a.Device, "config", a.Config)
	}
	s.board = nb
	s.configs = configs
	s.active = active
	return first
}

// Deactivate releases all the configs held by devices.
func (s *System) Deactivate() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var first error
	for device, c := range s.active {
		if err := s.Pads.Release(c); err != nil {
			s.log.Error("deactivate", "device", device, "error", err)
			if first == nil {
				first = errors.Wrapf(err, "deactivate %s", device)
			}
		}
		delete(s.active, device)
	}
	return first
}

// Close releases all held configs and shuts down the subsystems.
func (s *System) Close() error {
	err := s.Deactivate()
	if c, ok := s.GPIO.(io.Closer); ok {
		if cerr := c.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	if s.Sysconf != nil {
		s.Sysconf.Close()
	}
	return err
}
