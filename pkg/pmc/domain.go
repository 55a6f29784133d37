// Copyright 2021 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pmc

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/u-root/u-pmc/pkg/hw"
	"github.com/u-root/u-pmc/pkg/mc"
	"github.com/u-root/u-pmc/pkg/soc"
)

// ErrAlwaysOn is returned when a power off request names a partition
// that must stay up.
var ErrAlwaysOn = errors.New("partition is always on")

// Hardware wants a short breather between sequencing steps.
const settleDelay = 10 * time.Microsecond

// State is the lifecycle position of one power domain. The transient
// values are visible to observers while a transition is in flight, a
// failed transition falls back to the stable state it started from.
type State int

const (
	Off State = iota
	PoweringOn
	On
	PoweringOff
)

func (s State) String() string {
	switch s {
	case Off:
		return "off"
	case PoweringOn:
		return "powering-on"
	case On:
		return "on"
	case PoweringOff:
		return "powering-off"
	}
	return fmt.Sprintf("state%d", int(s))
}

// Domain is one registered power domain: a partition plus the clocks,
// resets, client groups and the optional external rail its power
// sequences drive.
type Domain struct {
	pmc  *PMC
	id   soc.Powergate
	name string

	clocks []hw.Clock
	resets []hw.Reset
	groups []*mc.Group

	// Rail backed domains switch an external supply instead of the
	// partition gate. The rail driver may come up after us, so the
	// handle is fetched lazily when it was not ready at build time.
	rail     hw.Rail
	railName string
	rails    hw.RailProvider

	// externClocked marks partitions like pcie whose module clocks
	// belong to the peripheral driver. The sequencer must not touch
	// them.
	externClocked bool

	parent   *Domain
	children []*Domain

	// mu admits one transition at a time. stateMu guards the label so
	// observers can see the transient states without blocking on a
	// running transition.
	mu      sync.Mutex
	stateMu sync.Mutex
	state   State
}

func (d *Domain) Name() string {
	return d.name
}

func (d *Domain) ID() soc.Powergate {
	return d.id
}

// Parent returns the domain this one depends on, or nil. The link is
// bookkeeping from registration, power sequencing does not cascade.
func (d *Domain) Parent() *Domain {
	return d.parent
}

func (d *Domain) Children() []*Domain {
	return d.children
}

func (d *Domain) State() State {
	d.stateMu.Lock()
	defer d.stateMu.Unlock()
	return d.state
}

func (d *Domain) setState(s State) {
	d.stateMu.Lock()
	d.state = s
	d.stateMu.Unlock()
}

// IsPowered reports hardware truth, not the state label: rail backed
// domains report their rail, everything else the status register.
func (d *Domain) IsPowered() (bool, error) {
	if d.railName != "" {
		rail, err := d.getRail()
		if err != nil {
			return false, nil
		}
		return rail.IsEnabled()
	}
	return d.pmc.IsPowered(d.id)
}

// getRail returns the rail handle, retrying the acquisition once in
// case the driver was not ready when the domain was built.
func (d *Domain) getRail() (hw.Rail, error) {
	if d.rail != nil {
		return d.rail, nil
	}
	rail, err := d.rails.Rail(d.railName)
	if err != nil {
		return nil, fmt.Errorf("rail %s: %w", d.railName, err)
	}
	d.rail = rail
	return rail, nil
}

// PowerOn brings the partition up: ungate (or enable the rail), then
// with the module clocks running remove the clamps, release the
// resets and reopen the memory controller client groups. Each step
// gets a short settle delay. The first failing step aborts the
// sequence, except that clocks enabled by this sequence are stopped
// again.
func (d *Domain) PowerOn() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	prev := d.State()
	d.setState(PoweringOn)
	if err := d.powerOn(); err != nil {
		d.setState(prev)
		return fmt.Errorf("power on %s: %w", d.name, err)
	}
	d.setState(On)
	log.Debugf("Powered on domain %s", d.name)
	return nil
}

func (d *Domain) powerOn() error {
	p := d.pmc

	if d.railName != "" {
		rail, err := d.getRail()
		if err == nil {
			err = rail.Enable()
		}
		if err != nil {
			return err
		}
	} else {
		if err := p.setGate(d.id, true); err != nil {
			return err
		}
	}
	p.Clock.Sleep(settleDelay)

	// The older generations want the partition held in reset before
	// its clocks start.
	if p.profile.LegacyPowergate {
		if err := d.assertResets(); err != nil {
			return err
		}
		p.Clock.Sleep(settleDelay)
	}

	if d.externClocked {
		return d.release()
	}

	// The module clocks only run for the duration of the sequence.
	// They are stopped again whether the remaining steps work or not.
	if err := d.enableClocks(); err != nil {
		return err
	}
	p.Clock.Sleep(settleDelay)
	err := d.release()
	d.disableClocks()
	return err
}

// release finishes a bring up with the module clocks running: remove
// the clamps, release the resets and reopen the client groups.
func (d *Domain) release() error {
	p := d.pmc

	if err := p.RemoveClamping(d.id); err != nil {
		return err
	}
	p.Clock.Sleep(settleDelay)

	if err := d.deassertResets(); err != nil {
		return err
	}
	p.Clock.Sleep(settleDelay)

	for _, g := range d.groups {
		if err := g.FlushDone(); err != nil {
			return err
		}
	}
	p.Clock.Sleep(settleDelay)
	return nil
}

// PowerOff tears the partition down: flush its memory traffic with
// the clocks running, assert the resets, stop the clocks and gate the
// power (or cut the rail). Always on partitions are refused before
// any register is touched. There is no rollback on this path, a
// partition that failed half way down is in no shape to run anyway.
func (d *Domain) PowerOff() error {
	if d.id.AlwaysOn() {
		log.Debugf("Not disabling always-on partition %s", d.name)
		return fmt.Errorf("%s: %w", d.name, ErrAlwaysOn)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	prev := d.State()
	d.setState(PoweringOff)
	if err := d.powerOff(); err != nil {
		d.setState(prev)
		return fmt.Errorf("power off %s: %w", d.name, err)
	}
	d.setState(Off)
	log.Debugf("Powered off domain %s", d.name)
	return nil
}

func (d *Domain) powerOff() error {
	p := d.pmc

	if !p.profile.LegacyPowergate {
		if err := d.enableClocks(); err != nil {
			return err
		}
		p.Clock.Sleep(settleDelay)

		for _, g := range d.groups {
			if err := g.Flush(); err != nil {
				return err
			}
		}
		p.Clock.Sleep(settleDelay)
	}

	if err := d.assertResets(); err != nil {
		return err
	}
	p.Clock.Sleep(settleDelay)

	if !p.profile.LegacyPowergate {
		d.disableClocks()
		p.Clock.Sleep(settleDelay)
	}

	if d.railName != "" {
		rail, err := d.getRail()
		if err == nil {
			err = rail.Disable()
		}
		if err != nil {
			return err
		}
	} else {
		if err := p.setGate(d.id, false); err != nil {
			return err
		}
	}
	return nil
}

// Clocks come up in list order. When one fails the ones already
// started are stopped again before the error goes up.
func (d *Domain) enableClocks() error {
	for i, c := range d.clocks {
		if err := c.Enable(); err != nil {
			for j := i - 1; j >= 0; j-- {
				d.clocks[j].Disable()
			}
			return fmt.Errorf("clock %s: %w", c.Name(), err)
		}
	}
	return nil
}

func (d *Domain) disableClocks() {
	for _, c := range d.clocks {
		if err := c.Disable(); err != nil {
			log.Warnf("Failed to disable clock %s of %s: %v", c.Name(), d.name, err)
		}
	}
}

func (d *Domain) assertResets() error {
	for _, r := range d.resets {
		if err := r.Assert(); err != nil {
			return fmt.Errorf("reset %s: %w", r.Name(), err)
		}
	}
	return nil
}

func (d *Domain) deassertResets() error {
	for _, r := range d.resets {
		if err := r.Deassert(); err != nil {
			return fmt.Errorf("reset %s: %w", r.Name(), err)
		}
	}
	return nil
}
