// SPDX-FileCopyrightText: 2023 Kent Gibson <warthog618@gmail.com>
//
// SPDX-License-Identifier: Apache-2.0 OR MIT

package padmux

import (
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/pkg/errors"
)

// Kind identifies the class of a Resource.
type Kind int

const (
	// KindPad is a pad, identified by its canonical label.
	KindPad Kind = iota

	// KindSysconf is a single bit of a sysconf register.
	KindSysconf

	// KindGPIO is a GPIO line, identified by its GPIO number.
	KindGPIO
)

func (k Kind) String() string {
	switch k {
	case KindPad:
		return "pad"
	case KindSysconf:
		return "sysconf"
	case KindGPIO:
		return "gpio"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Resource is the identity of a claimable resource.
type Resource struct {
	Kind Kind
	ID   string
}

func (r Resource) String() string {
	return fmt.Sprintf("%s %q", r.Kind, r.ID)
}

// PadResource returns the Resource for the pad with the canonical label.
func PadResource(label string) Resource {
	return Resource{KindPad, label}
}

// SysconfResource returns the Resource for a single bit of a sysconf register.
func SysconfResource(t RegType, num, bit int) Resource {
	return Resource{KindSysconf, fmt.Sprintf("%s%d.%d", t, num, bit)}
}

// GPIOResource returns the Resource for a GPIO line.
func GPIOResource(gpio int) Resource {
	return Resource{KindGPIO, strconv.Itoa(gpio)}
}

// Claim is an entry in the Registry.
type Claim struct {
	Resource Resource

	// The name of the owner, typically a device name.
	Owner string
}

type entry struct {
	owner string

	// The Config holding the claim, if any.
	//
	// Distinguishes Configs claimed under the same owner name.
	cfg *Config
}

// Registry records the owner of each claimed resource.
//
// Each resource has at most one owner at any time.
// It is safe for concurrent use.
type Registry struct {
	mu      sync.Mutex
	entries map[Resource]entry
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[Resource]entry)}
}

// TryClaim claims the resource for the owner, if it is not already claimed.
//
// Returns an AlreadyOwnedError if the resource is already claimed, even by
// the same owner.
func (r *Registry) TryClaim(res Resource, owner string) error {
	return r.claim(res, owner, nil)
}

func (r *Registry) claim(res Resource, owner string, cfg *Config) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[res]; ok {
		return &AlreadyOwnedError{Resource: res, Owner: e.owner}
	}
	r.entries[res] = entry{owner: owner, cfg: cfg}
	return nil
}

// Release removes the owner's claim on the resource.
//
// Only the owner name is checked, so this also strips a claim made by a Config
// under that name.
//
// Returns a NotOwnerError if the resource is claimed by a different owner,
// and ErrNotClaimed if it is not claimed at all.
func (r *Registry) Release(res Resource, owner string) error {
	return r.release(res, owner, nil)
}

func (r *Registry) release(res Resource, owner string, cfg *Config) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[res]
	if !ok {
		return errors.Wrapf(ErrNotClaimed, "%s", res)
	}
	if e.owner != owner || (cfg != nil && e.cfg != cfg) {
		return &NotOwnerError{Resource: res, Caller: owner, Owner: e.owner}
	}
	delete(r.entries, res)
	return nil
}

// Owner returns the owner of the resource, and true if it is claimed.
func (r *Registry) Owner(res Resource) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[res]
	return e.owner, ok
}

// holder returns the Config holding the resource, if any.
func (r *Registry) holder(res Resource) (*Config, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[res]
	return e.cfg, ok
}

// Len returns the number of claimed resources.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Resources returns the resources claimed by the owner, sorted.
func (r *Registry) Resources(owner string) []Resource {
	r.mu.Lock()
	var rr []Resource
	for res, e := range r.entries {
		if e.owner == owner {
			rr = append(rr, res)
		}
	}
	r.mu.Unlock()
	sortResources(rr)
	return rr
}

// Snapshot returns all the current claims, sorted by resource.
func (r *Registry) Snapshot() []Claim {
	r.mu.Lock()
	cc := make([]Claim, 0, len(r.entries))
	for res, e := range r.entries {
		cc = append(cc, Claim{Resource: res, Owner: e.owner})
	}
	r.mu.Unlock()
	sort.Slice(cc, func(i, j int) bool {
		return lessResource(cc[i].Resource, cc[j].Resource)
	})
	return cc
}

// transfer moves the resources to the to Config, provided each is either
// unclaimed or held by the from Config.
//
// The whole set is moved within a single hold of the lock, so no other
// claimant can slip in between from releasing and to claiming.
// Returns the resources that were previously unclaimed.
// If any resource is held by a third party, or is listed more than once,
// then nothing is changed and an AlreadyOwnedError is returned.
func (r *Registry) transfer(rr []Resource, from, to *Config, owner string) ([]Resource, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := make(map[Resource]bool, len(rr))
	for _, res := range rr {
		if e, ok := r.entries[res]; ok && e.cfg != from {
			return nil, &AlreadyOwnedError{Resource: res, Owner: e.owner}
		}
		// a resource listed twice conflicts with itself, as it does in claim
		if seen[res] {
			return nil, &AlreadyOwnedError{Resource: res, Owner: owner}
		}
		seen[res] = true
	}
	var fresh []Resource
	for _, res := range rr {
		if _, ok := r.entries[res]; !ok {
			fresh = append(fresh, res)
		}
		r.entries[res] = entry{owner: owner, cfg: to}
	}
	return fresh, nil
}

func sortResources(rr []Resource) {
	sort.Slice(rr, func(i, j int) bool {
		return lessResource(rr[i], rr[j])
	})
}

func lessResource(a, b Resource) bool {
	if a.Kind != b.Kind {
		return a.Kind < b.Kind
	}
	return a.ID < b.ID
}
