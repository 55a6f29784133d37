// Copyright 2021 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package mc drives the memory controller side of partition power
// sequencing. Before a partition loses its clocks or resets, the
// traffic of its client groups has to be flushed out of the memory
// controller and held off until the partition is back.
package mc

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jmhodges/clock"

	"github.com/u-root/u-pmc/pkg/hw"
	"github.com/u-root/u-pmc/pkg/logger"
	"github.com/u-root/u-pmc/pkg/mmio"
)

var log = logger.LogContainer.GetSimpleLogger()

// DefaultFlushTimeout bounds the flush handshake. The hardware
// normally empties a client group in well under a millisecond, a
// group that is still dirty after this long is wedged and the caller
// needs to hear about it instead of hanging forever.
const DefaultFlushTimeout = 100 * time.Millisecond

const flushPollInterval = 10 * time.Microsecond

// MC is one memory controller instance.
type MC struct {
	// Clock paces the status polls. Tests swap in a fake.
	Clock clock.Clock

	// FlushTimeout bounds how long Flush waits for a group to drain.
	// Zero removes the bound.
	FlushTimeout time.Duration

	// Observe, when set, is told how long each successful flush took.
	Observe func(group string, d time.Duration)

	regs   mmio.Block
	mu     sync.Mutex
	groups map[Swgroup]*Group
}

// Group is one resolved client group. Power domains hold references
// to the groups whose traffic they are responsible for.
type Group struct {
	mc *MC
	hr *HotReset
}

func (g *Group) ID() Swgroup {
	return g.hr.Group
}

func (g *Group) Name() string {
	return g.hr.Group.String()
}

// Flush drains this group, see MC.Flush.
func (g *Group) Flush() error {
	if g == nil {
		return fmt.Errorf("%w: no flush group", hw.ErrInvalidArgument)
	}
	return g.mc.Flush(g)
}

// FlushDone reopens this group, see MC.FlushDone.
func (g *Group) FlushDone() error {
	if g == nil {
		return fmt.Errorf("%w: no flush group", hw.ErrInvalidArgument)
	}
	return g.mc.FlushDone(g)
}

// New builds a controller over the given register bank with the given
// handshake layout.
func New(regs mmio.Block, hotresets []HotReset) *MC {
	m := &MC{
		Clock:        clock.New(),
		FlushTimeout: DefaultFlushTimeout,
		regs:         regs,
		groups:       make(map[Swgroup]*Group),
	}
	for i := range hotresets {
		hr := &hotresets[i]
		m.groups[hr.Group] = &Group{mc: m, hr: hr}
	}
	return m
}

// LookupGroup returns the client group with the given id.
func (m *MC) LookupGroup(id Swgroup) (*Group, error) {
	g, ok := m.groups[id]
	if !ok {
		return nil, fmt.Errorf("%w: no client group %v", hw.ErrInvalidArgument, id)
	}
	return g, nil
}

// GroupByName resolves a client group name from board configuration.
func (m *MC) GroupByName(name string) (*Group, error) {
	for _, g := range m.groups {
		if g.Name() == name {
			return g, nil
		}
	}
	return nil, fmt.Errorf("%w: no client group %q", hw.ErrInvalidArgument, name)
}

// Groups returns all client groups in id order.
func (m *MC) Groups() []*Group {
	gs := make([]*Group, 0, len(m.groups))
	for _, g := range m.groups {
		gs = append(gs, g)
	}
	sort.Slice(gs, func(i, j int) bool { return gs[i].ID() < gs[j].ID() })
	return gs
}

// Flush asks the memory controller to stop accepting requests from
// the group and waits until everything in flight has drained. The
// lock stays held across the whole handshake so concurrent flushes
// cannot interleave their control register updates with each others
// status polls.
func (m *MC) Flush(g *Group) error {
	if g == nil || g.mc != m {
		return fmt.Errorf("%w: bad flush group", hw.ErrInvalidArgument)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	v := m.regs.Read32(g.hr.Ctrl)
	v |= 1 << g.hr.Bit
	m.regs.Write32(g.hr.Ctrl, v)
	// The read back makes sure the request reached the hardware
	// before the status poll starts.
	m.regs.Read32(g.hr.Ctrl)

	start := m.Clock.Now()
	for {
		m.Clock.Sleep(flushPollInterval)
		st, ok := m.stableStatus(g.hr.Status)
		if ok && st&(1<<g.hr.Bit) != 0 {
			break
		}
		if m.FlushTimeout > 0 && m.Clock.Now().Sub(start) > m.FlushTimeout {
			return fmt.Errorf("flush of %s: %w", g.Name(), hw.ErrTimeout)
		}
	}

	if m.Observe != nil {
		m.Observe(g.Name(), m.Clock.Now().Sub(start))
	}
	log.Debugf("Flushed client group %s", g.Name())
	return nil
}

// FlushDone lets the group's traffic through again. The hardware
// acknowledges this on its own, there is nothing to poll for.
func (m *MC) FlushDone(g *Group) error {
	if g == nil || g.mc != m {
		return fmt.Errorf("%w: bad flush group", hw.ErrInvalidArgument)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	v := m.regs.Read32(g.hr.Ctrl)
	v &^= 1 << g.hr.Bit
	m.regs.Write32(g.hr.Ctrl, v)
	m.regs.Read32(g.hr.Ctrl)

	log.Debugf("Reopened client group %s", g.Name())
	return nil
}

// The status register can glitch for a few cycles after the control
// register is written, so a sample only counts once five rereads
// agree with it.
func (m *MC) stableStatus(reg uint32) (uint32, bool) {
	prv := m.regs.Read32(reg)
	for i := 0; i < 5; i++ {
		cur := m.regs.Read32(reg)
		if cur != prv {
			return 0, false
		}
	}
	return prv, true
}
