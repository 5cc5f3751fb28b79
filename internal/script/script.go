// SPDX-FileCopyrightText: 2023 Kent Gibson <warthog618@gmail.com>
//
// SPDX-License-Identifier: Apache-2.0 OR MIT

// Package script runs scripts of pad claim commands against a Pads.
//
// Each line of a script is a command, tokenised using shell quoting rules.
// Blank lines and text following a # are ignored.
//
//	claim CONFIG DEVICE         claim the config on behalf of the device
//	release CONFIG              release the config
//	switch OLD|- NEW DEVICE     switch the device from the old config to the new
//	owner LABEL                 print the owner of the pad
//	owners                      print all claimed resources and their owners
//	expect-owner LABEL DEVICE|- fail unless the pad has the owner, or none
//	expect-fail COMMAND...      fail unless the command fails
package script

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/google/shlex"
	"github.com/pkg/errors"
	"github.com/warthog618/go-padmux"
)

var (
	// ErrUnknownCommand indicates a line does not start with a known command.
	ErrUnknownCommand = errors.New("unknown command")

	// ErrUsage indicates a command has the wrong number of arguments.
	ErrUsage = errors.New("wrong number of arguments")

	// ErrUnknownConfig indicates a command names a config that does not exist.
	ErrUnknownConfig = errors.New("unknown config")

	// ErrExpectation indicates an expect command was not satisfied.
	ErrExpectation = errors.New("expectation failed")
)

// None is the owner argument denoting an unclaimed pad, or no old config.
const None = "-"

// Configs provides the named configs a script refers to.
type Configs interface {
	Config(name string) (*padmux.Config, bool)
}

// ConfigMap is a Configs backed by a map.
type ConfigMap map[string]*padmux.Config

// Config returns the named config.
func (m ConfigMap) Config(name string) (*padmux.Config, bool) {
	c, ok := m[name]
	return c, ok
}

// LineError indicates the line of a script that failed.
type LineError struct {
	Line int
	Text string
	Err  error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("line %d: %s: %v", e.Line, e.Text, e.Err)
}

func (e *LineError) Unwrap() error {
	return e.Err
}

// Runner executes script commands.
type Runner struct {
	pads    *padmux.Pads
	configs Configs
	out     io.Writer
	log     *slog.Logger
}

// Option defines the interface required to provide an option to New.
type Option interface {
	applyOption(*Runner)
}

// LoggerOption provides the logger used by a Runner.
type LoggerOption struct {
	*slog.Logger
}

// WithLogger returns an option that sets the logger used to trace commands.
func WithLogger(l *slog.Logger) LoggerOption {
	return LoggerOption{l}
}

func (o LoggerOption) applyOption(r *Runner) {
	r.log = o.Logger
}

// New creates a Runner that resolves config names using configs, operates
// on pads and writes command output to out.
func New(pads *padmux.Pads, configs Configs, out io.Writer, options ...Option) *Runner {
	r := &Runner{pads: pads, configs: configs, out: out}
	for _, o := range options {
		o.applyOption(r)
	}
	if r.log == nil {
		r.log = slog.New(slog.DiscardHandler)
	}
	return r
}

// Run executes the script read from in, stopping at the first failing
// command.
//
// Failures are returned as a *LineError.
func (r *Runner) Run(ctx context.Context, in io.Reader) error {
	s := bufio.NewScanner(in)
	n := 0
	for s.Scan() {
		n++
		if err := ctx.Err(); err != nil {
			return err
		}
		text := strings.TrimSpace(s.Text())
		if err := r.Exec(text); err != nil {
			return &LineError{Line: n, Text: text, Err: err}
		}
	}
	return s.Err()
}

// Exec executes a single command line.
func (r *Runner) Exec(line string) error {
	args, err := shlex.Split(line)
	if err != nil {
		return errors.Wrap(err, "tokenise")
	}
	if len(args) == 0 {
		return nil
	}
	r.log.Debug("exec", "command", args[0], "args", args[1:])
	return r.exec(args)
}

func (r *Runner) exec(args []string) error {
	cmd, args := args[0], args[1:]
	switch cmd {
	case "claim":
		if len(args) != 2 {
			return usage(cmd)
		}
		c, err := r.config(args[0])
		if err != nil {
			return err
		}
		return r.pads.Claim(c, args[1])
	case "release":
		if len(args) != 1 {
			return usage(cmd)
		}
		c, err := r.config(args[0])
		if err != nil {
			return err
		}
		return r.pads.Release(c)
	case "switch":
		if len(args) != 3 {
			return usage(cmd)
		}
		var old *padmux.Config
		if args[0] != None {
			var err error
			if old, err = r.config(args[0]); err != nil {
				return err
			}
		}
		next, err := r.config(args[1])
		if err != nil {
			return err
		}
		return r.pads.Switch(old, next, args[2])
	case "owner":
		if len(args) != 1 {
			return usage(cmd)
		}
		owner, ok := r.pads.Owner(args[0])
		if !ok {
			owner = None
		}
		_, err := fmt.Fprintf(r.out, "%s %s\n", args[0], owner)
		return err
	case "owners":
		if len(args) != 0 {
			return usage(cmd)
		}
		for _, c := range r.pads.Registry().Snapshot() {
			if _, err := fmt.Fprintf(r.out, "%s %s %s\n", c.Resource.Kind, c.Resource.ID, c.Owner); err != nil {
				return err
			}
		}
		return nil
	case "expect-owner":
		if len(args) != 2 {
			return usage(cmd)
		}
		owner, ok := r.pads.Owner(args[0])
		if !ok {
			owner = None
		}
		if owner != args[1] {
			return errors.Wrapf(ErrExpectation, "%s owned by %s, expected %s", args[0], owner, args[1])
		}
		return nil
	case "expect-fail":
		if len(args) == 0 {
			return usage(cmd)
		}
		err := r.exec(args)
		if err == nil {
			return errors.Wrapf(ErrExpectation, "%s succeeded", args[0])
		}
		if errors.Is(err, ErrUnknownCommand) || errors.Is(err, ErrUsage) || errors.Is(err, ErrUnknownConfig) {
			return err
		}
		r.log.Debug("failed as expected", "command", args[0], "error", err)
		return nil
	default:
		return errors.Wrapf(ErrUnknownCommand, "%s", cmd)
	}
}

func (r *Runner) config(name string) (*padmux.Config, error) {
	c, ok := r.configs.Config(name)
	if !ok {
		return nil, errors.Wrapf(ErrUnknownConfig, "%s", name)
	}
	return c, nil
}

func usage(cmd string) error {
	return errors.Wrapf(ErrUsage, "%s", cmd)
}
