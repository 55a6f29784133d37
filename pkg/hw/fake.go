// Copyright 2021 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package hw

import (
	"fmt"
	"sync"
)

// Recorder collects what happened to a set of fakes in order, so tests
// can assert sequencing across capabilities.
type Recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *Recorder) Record(format string, args ...interface{}) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, fmt.Sprintf(format, args...))
}

func (r *Recorder) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

// FakeClock is a Clock for tests. It tracks its gate state and can be
// scripted to fail.
type FakeClock struct {
	Nm         string
	Rec        *Recorder
	EnableErr  error
	DisableErr error

	mu      sync.Mutex
	enabled bool
}

func (c *FakeClock) Name() string { return c.Nm }

func (c *FakeClock) Enable() error {
	c.Rec.Record("clock %s enable", c.Nm)
	if c.EnableErr != nil {
		return c.EnableErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enabled = true
	return nil
}

func (c *FakeClock) Disable() error {
	c.Rec.Record("clock %s disable", c.Nm)
	if c.DisableErr != nil {
		return c.DisableErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enabled = false
	return nil
}

func (c *FakeClock) Enabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enabled
}

// FakeReset is a Reset for tests.
type FakeReset struct {
	Nm          string
	Rec         *Recorder
	AssertErr   error
	DeassertErr error

	mu       sync.Mutex
	asserted bool
}

func (r *FakeReset) Name() string { return r.Nm }

func (r *FakeReset) Assert() error {
	r.Rec.Record("reset %s assert", r.Nm)
	if r.AssertErr != nil {
		return r.AssertErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.asserted = true
	return nil
}

func (r *FakeReset) Deassert() error {
	r.Rec.Record("reset %s deassert", r.Nm)
	if r.DeassertErr != nil {
		return r.DeassertErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.asserted = false
	return nil
}

func (r *FakeReset) Asserted() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.asserted
}

// FakeRail is a Rail for tests.
type FakeRail struct {
	Nm         string
	Rec        *Recorder
	EnableErr  error
	DisableErr error

	mu      sync.Mutex
	enabled bool
}

func (r *FakeRail) Name() string { return r.Nm }

func (r *FakeRail) Enable() error {
	r.Rec.Record("rail %s enable", r.Nm)
	if r.EnableErr != nil {
		return r.EnableErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.enabled = true
	return nil
}

func (r *FakeRail) Disable() error {
	r.Rec.Record("rail %s disable", r.Nm)
	if r.DisableErr != nil {
		return r.DisableErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.enabled = false
	return nil
}

func (r *FakeRail) IsEnabled() (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.enabled, nil
}

// FakeProvider hands out fakes by name and can stall rail lookups to
// exercise the not ready retry path.
type FakeProvider struct {
	Rec    *Recorder
	Clocks map[string]*FakeClock
	Resets map[string]*FakeReset
	Rails  map[string]*FakeRail

	// RailNotReady makes that many Rail calls fail with ErrNotReady
	// before lookups start succeeding.
	RailNotReady int

	mu        sync.Mutex
	railCalls int
}

func NewFakeProvider(rec *Recorder) *FakeProvider {
	return &FakeProvider{
		Rec:    rec,
		Clocks: make(map[string]*FakeClock),
		Resets: make(map[string]*FakeReset),
		Rails:  make(map[string]*FakeRail),
	}
}

func (p *FakeProvider) AddClock(name string) *FakeClock {
	c := &FakeClock{Nm: name, Rec: p.Rec}
	p.Clocks[name] = c
	return c
}

func (p *FakeProvider) AddReset(name string) *FakeReset {
	r := &FakeReset{Nm: name, Rec: p.Rec}
	p.Resets[name] = r
	return r
}

func (p *FakeProvider) AddRail(name string) *FakeRail {
	r := &FakeRail{Nm: name, Rec: p.Rec}
	p.Rails[name] = r
	return r
}

func (p *FakeProvider) Clock(name string) (Clock, error) {
	c, ok := p.Clocks[name]
	if !ok {
		return nil, fmt.Errorf("unknown clock %q", name)
	}
	return c, nil
}

func (p *FakeProvider) Reset(name string) (Reset, error) {
	r, ok := p.Resets[name]
	if !ok {
		return nil, fmt.Errorf("unknown reset %q", name)
	}
	return r, nil
}

func (p *FakeProvider) Rail(name string) (Rail, error) {
	p.mu.Lock()
	p.railCalls++
	stalled := p.railCalls <= p.RailNotReady
	p.mu.Unlock()
	if stalled {
		return nil, ErrNotReady
	}
	r, ok := p.Rails[name]
	if !ok {
		return nil, fmt.Errorf("unknown rail %q", name)
	}
	return r, nil
}

// RailCalls reports how many Rail lookups were made.
func (p *FakeProvider) RailCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.railCalls
}
