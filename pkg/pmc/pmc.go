// Copyright 2021 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package pmc drives the power management controller of Tegra SoCs:
// partition power gates, clamp removal, IO rail deep power down and
// the warm boot scratch registers.
package pmc

import (
	"fmt"
	"sync"
	"time"

	"github.com/jmhodges/clock"

	"github.com/u-root/u-pmc/pkg/hw"
	"github.com/u-root/u-pmc/pkg/logger"
	"github.com/u-root/u-pmc/pkg/mmio"
	"github.com/u-root/u-pmc/pkg/soc"
)

var log = logger.LogContainer.GetSimpleLogger()

// DefaultGateTimeout bounds how long a partition may take to follow a
// gate toggle request.
const DefaultGateTimeout = 50 * time.Millisecond

const gatePollInterval = 10 * time.Microsecond

// PMC is one power management controller instance.
type PMC struct {
	// Clock paces status polls and settle delays. Tests swap in a
	// fake.
	Clock clock.Clock

	// GateTimeout bounds the wait for a partition to follow a toggle
	// request.
	GateTimeout time.Duration

	// PClkRate is the APB clock feeding the PMC, in Hz. IO rail
	// sample timing and the LP2 suspend timers are derived from it.
	PClkRate uint64

	profile *soc.Profile
	regs    mmio.Block

	// Serializes the toggle and status critical section. The lock is
	// held across the convergence poll so a second toggle cannot be
	// issued while the first partition is still in flight.
	mu sync.Mutex

	timing    SuspendTiming
	mode      SuspendMode
	timerRate uint64
}

// New builds a controller over the given register bank for one SoC
// generation.
func New(regs mmio.Block, profile *soc.Profile) *PMC {
	return &PMC{
		Clock:       clock.New(),
		GateTimeout: DefaultGateTimeout,
		profile:     profile,
		regs:        regs,
	}
}

func (p *PMC) Profile() *soc.Profile {
	return p.profile
}

// setGate toggles a partition and waits for the status register to
// follow. Partitions that are already in the requested state are left
// alone, the toggle register is strictly a state flip.
func (p *PMC) setGate(id soc.Powergate, on bool) error {
	var mask uint32
	if on {
		mask = 1 << uint(id)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	status := p.regs.Read32(PWRGATE_STATUS)
	if status&(1<<uint(id)) == mask {
		return nil
	}

	p.regs.Write32(PWRGATE_TOGGLE, PWRGATE_TOGGLE_START|uint32(id))

	start := p.Clock.Now()
	for {
		status = p.regs.Read32(PWRGATE_STATUS)
		if status&(1<<uint(id)) == mask {
			return nil
		}
		if p.Clock.Now().Sub(start) > p.GateTimeout {
			state := "off"
			if on {
				state = "on"
			}
			return fmt.Errorf("partition %s stuck turning %s: %w",
				p.profile.PowergateName(id), state, hw.ErrTimeout)
		}
		p.Clock.Sleep(gatePollInterval)
	}
}

// IsPowered reports the gate status of a partition straight from
// hardware.
func (p *PMC) IsPowered(id soc.Powergate) (bool, error) {
	if !p.profile.Valid(id) {
		return false, fmt.Errorf("%w: no partition %d on %s", hw.ErrInvalidArgument, id, p.profile.Name)
	}
	status := p.regs.Read32(PWRGATE_STATUS)
	return status&(1<<uint(id)) != 0, nil
}

// RemoveClamping releases the IO clamps of a partition once its gate
// reports powered. On generations with a GPU rail gate register the 3d
// partition uses that instead, and the vdec and pcie clamp bits sit in
// each others partition slot.
func (p *PMC) RemoveClamping(id soc.Powergate) error {
	if !p.profile.Valid(id) {
		return fmt.Errorf("%w: no partition %d on %s", hw.ErrInvalidArgument, id, p.profile.Name)
	}

	if id == soc.Powergate3D && p.profile.HasGPUClamps {
		p.regs.Write32(GPU_RG_CNTRL, 0)
		return nil
	}

	var mask uint32
	switch id {
	case soc.PowergateVDEC:
		mask = 1 << uint(soc.PowergatePCIE)
	case soc.PowergatePCIE:
		mask = 1 << uint(soc.PowergateVDEC)
	default:
		mask = 1 << uint(id)
	}

	p.regs.Write32(REMOVE_CLAMPING, mask)
	return nil
}

// CPUIsPowered reports whether a secondary CPU's partition is powered.
func (p *PMC) CPUIsPowered(cpu int) (bool, error) {
	id, ok := p.profile.CPUPowergate(cpu)
	if !ok {
		return false, fmt.Errorf("%w: no powergate for cpu %d on %s", hw.ErrInvalidArgument, cpu, p.profile.Name)
	}
	return p.IsPowered(id)
}

// CPUPowerOn ungates a secondary CPU partition for hotplug.
func (p *PMC) CPUPowerOn(cpu int) error {
	id, ok := p.profile.CPUPowergate(cpu)
	if !ok {
		return fmt.Errorf("%w: no powergate for cpu %d on %s", hw.ErrInvalidArgument, cpu, p.profile.Name)
	}
	return p.setGate(id, true)
}

// CPURemoveClamping releases the clamps of a secondary CPU partition.
func (p *PMC) CPURemoveClamping(cpu int) error {
	id, ok := p.profile.CPUPowergate(cpu)
	if !ok {
		return fmt.Errorf("%w: no powergate for cpu %d on %s", hw.ErrInvalidArgument, cpu, p.profile.Name)
	}
	p.Clock.Sleep(settleDelay)
	return p.RemoveClamping(id)
}

// SetInterruptPolarity inverts the PMC interrupt line when the board's
// interrupt controller expects that. This runs before anything else
// touches the controller.
func (p *PMC) SetInterruptPolarity(invert bool) {
	v := p.regs.Read32(PMC_CNTRL)
	if invert {
		v |= PMC_CNTRL_INTR_POLARITY
	} else {
		v &^= PMC_CNTRL_INTR_POLARITY
	}
	p.regs.Write32(PMC_CNTRL, v)
}

// Setup programs the base control register state: the CPU power
// request is always driven, and the system clock request comes up
// with the board's polarity before its output is enabled.
func (p *PMC) Setup(sysclkReqHigh bool) {
	v := p.regs.Read32(PMC_CNTRL)
	v |= PMC_CNTRL_CPU_PWRREQ_OE
	p.regs.Write32(PMC_CNTRL, v)

	v = p.regs.Read32(PMC_CNTRL)
	if sysclkReqHigh {
		v &^= PMC_CNTRL_SYSCLK_POLARITY
	} else {
		v |= PMC_CNTRL_SYSCLK_POLARITY
	}
	// Configure the polarity while the request is still tristated.
	p.regs.Write32(PMC_CNTRL, v)

	v = p.regs.Read32(PMC_CNTRL)
	v |= PMC_CNTRL_SYSCLK_OE
	p.regs.Write32(PMC_CNTRL, v)
}

// PowergateStatus is one row of the partition status table.
type PowergateStatus struct {
	Name    string
	ID      soc.Powergate
	Powered bool
}

// Status lists every partition of this generation with its current
// gate state.
func (p *PMC) Status() []PowergateStatus {
	var rows []PowergateStatus
	for i, name := range p.profile.Powergates {
		if name == "" {
			continue
		}
		powered, err := p.IsPowered(soc.Powergate(i))
		if err != nil {
			continue
		}
		rows = append(rows, PowergateStatus{
			Name:    name,
			ID:      soc.Powergate(i),
			Powered: powered,
		})
	}
	return rows
}
