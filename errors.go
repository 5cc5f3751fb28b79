// SPDX-FileCopyrightText: 2023 Kent Gibson <warthog618@gmail.com>
//
// SPDX-License-Identifier: Apache-2.0 OR MIT

package padmux

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

var (
	// ErrLabelTooLong indicates a canonical label would exceed MaxLabelLen.
	ErrLabelTooLong = errors.New("label too long")

	// ErrInvalidLabel indicates a label is malformed, such as having an empty
	// prefix.
	ErrInvalidLabel = errors.New("invalid label")

	// ErrCapacityExceeded indicates a fixed capacity Config is full.
	ErrCapacityExceeded = errors.New("config capacity exceeded")

	// ErrInvalidField indicates a sysconf bitfield or value is out of range.
	ErrInvalidField = errors.New("invalid sysconf field")

	// ErrConfigInUse indicates an attempt to modify or claim a Config that is
	// currently claimed.
	ErrConfigInUse = errors.New("config is claimed")

	// ErrNotClaimed indicates an attempt to release a resource or Config
	// that is not claimed.
	ErrNotClaimed = errors.New("not claimed")

	// ErrAlreadyOwned is the error underlying all AlreadyOwnedErrors.
	ErrAlreadyOwned = errors.New("already owned")

	// ErrNotOwner is the error underlying all NotOwnerErrors.
	ErrNotOwner = errors.New("not owner")

	// ErrExternal is the error underlying all ExternalErrors.
	ErrExternal = errors.New("external resource unavailable")

	// ErrHook is the error underlying all HookErrors.
	ErrHook = errors.New("custom hook failed")
)

// AlreadyOwnedError indicates a resource is claimed by some other owner.
type AlreadyOwnedError struct {
	// The contested resource.
	Resource Resource

	// The name of the current owner of the resource.
	Owner string
}

func (e *AlreadyOwnedError) Error() string {
	return fmt.Sprintf("%s already owned by %q", e.Resource, e.Owner)
}

// Is allows errors.Is(err, ErrAlreadyOwned).
func (e *AlreadyOwnedError) Is(target error) bool {
	return target == ErrAlreadyOwned
}

// NotOwnerError indicates a release attempted by an entity other than the
// owner of the resource.
type NotOwnerError struct {
	Resource Resource

	// The name of the entity attempting the release.
	Caller string

	// The name of the actual owner.
	Owner string
}

func (e *NotOwnerError) Error() string {
	return fmt.Sprintf("%q does not own %s, %q does", e.Caller, e.Resource, e.Owner)
}

// Is allows errors.Is(err, ErrNotOwner).
func (e *NotOwnerError) Is(target error) bool {
	return target == ErrNotOwner
}

// ExternalError indicates the sysconf or GPIO subsystem refused a request.
type ExternalError struct {
	Resource Resource

	// The error returned by the subsystem.
	Err error
}

func (e *ExternalError) Error() string {
	return fmt.Sprintf("%s: %v", e.Resource, e.Err)
}

// Is allows errors.Is(err, ErrExternal).
func (e *ExternalError) Is(target error) bool {
	return target == ErrExternal
}

func (e *ExternalError) Unwrap() error {
	return e.Err
}

// HookError indicates a custom claim or release hook failed.
type HookError struct {
	// The name of the Config whose hook failed.
	Config string

	// The error returned by the hook.
	Err error
}

func (e *HookError) Error() string {
	if len(e.Config) == 0 {
		return fmt.Sprintf("custom hook: %v", e.Err)
	}
	return fmt.Sprintf("%s custom hook: %v", e.Config, e.Err)
}

// Is allows errors.Is(err, ErrHook).
func (e *HookError) Is(target error) bool {
	return target == ErrHook
}

func (e *HookError) Unwrap() error {
	return e.Err
}

// ReleaseError collects the errors encountered while releasing a Config.
//
// Release continues past individual failures, so there may be several.
type ReleaseError struct {
	Errs []error
}

func (e *ReleaseError) Error() string {
	msgs := make([]string, len(e.Errs))
	for i, err := range e.Errs {
		msgs[i] = err.Error()
	}
	return "release: " + strings.Join(msgs, "; ")
}

func (e *ReleaseError) Unwrap() []error {
	return e.Errs
}
