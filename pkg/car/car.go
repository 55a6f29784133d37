// Copyright 2021 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package car drives the clock-and-reset controller block. It hands
// out module clock gates and module reset lines by peripheral name,
// which is all the power sequencer needs from the clock tree. Rates,
// parents and PLLs are out of scope here.
package car

import (
	"fmt"
	"sync"
	"time"

	"github.com/jmhodges/clock"

	"github.com/u-root/u-pmc/pkg/hw"
	"github.com/u-root/u-pmc/pkg/logger"
	"github.com/u-root/u-pmc/pkg/mmio"
)

var log = logger.LogContainer.GetSimpleLogger()

// Base and Size locate the controller block. Every supported
// generation keeps it at the same address.
const (
	Base int64 = 0x60006000
	Size       = 0x1000
)

// enableSettle is the clock propagation time after ungating a module,
// per the hardware manual.
const enableSettle = 2 * time.Microsecond

// Gate and reset bits live in up to six 32 bit banks. Each bank has a
// state register plus dedicated set and clear registers, so single
// bits flip without a read-modify-write cycle.
type bankRegs struct {
	enb    uint32
	enbSet uint32
	enbClr uint32
	rst    uint32
	rstSet uint32
	rstClr uint32
}

var bankTable = [...]bankRegs{
	{0x010, 0x320, 0x324, 0x004, 0x300, 0x304},
	{0x014, 0x328, 0x32c, 0x008, 0x308, 0x30c},
	{0x018, 0x330, 0x334, 0x00c, 0x310, 0x314},
	{0x360, 0x440, 0x444, 0x358, 0x430, 0x434},
	{0x364, 0x448, 0x44c, 0x35c, 0x438, 0x43c},
	{0x280, 0x284, 0x288, 0x28c, 0x290, 0x294},
}

// Gate bank counts per generation.
const (
	BanksTegra20  = 3
	BanksTegra30  = 5
	BanksTegra114 = 5
	BanksTegra124 = 6
)

// Module names one peripheral and its bit index across the gate
// banks. Bit n lives in bank n/32.
type Module struct {
	Name string
	Bit  uint
}

// CAR hands out clock gates and reset lines for the peripherals it
// was configured with. It serves as the board's hw.ClockProvider and
// hw.ResetProvider.
type CAR struct {
	regs    mmio.Block
	clk     clock.Clock
	mu      sync.Mutex
	modules map[string]Module
	users   map[uint]int
}

// New builds a controller over the given register block. nbanks is
// the generation's gate bank count and modules lists the peripherals
// boards may reference by name.
func New(regs mmio.Block, nbanks int, modules []Module) (*CAR, error) {
	if nbanks < 1 || nbanks > len(bankTable) {
		return nil, fmt.Errorf("%w: %d gate banks", hw.ErrInvalidArgument, nbanks)
	}
	c := &CAR{
		regs:    regs,
		clk:     clock.New(),
		modules: make(map[string]Module),
		users:   make(map[uint]int),
	}
	for _, m := range modules {
		if m.Name == "" {
			return nil, fmt.Errorf("%w: unnamed module", hw.ErrInvalidArgument)
		}
		if m.Bit >= uint(nbanks)*32 {
			return nil, fmt.Errorf("%w: module %s bit %d outside %d banks",
				hw.ErrInvalidArgument, m.Name, m.Bit, nbanks)
		}
		if _, ok := c.modules[m.Name]; ok {
			return nil, fmt.Errorf("%w: module %s listed twice", hw.ErrInvalidArgument, m.Name)
		}
		c.modules[m.Name] = m
	}
	return c, nil
}

func (c *CAR) lookup(name string) (Module, error) {
	m, ok := c.modules[name]
	if !ok {
		return Module{}, fmt.Errorf("%w: no module %q", hw.ErrInvalidArgument, name)
	}
	return m, nil
}

// Clock returns the gate of the named module clock.
func (c *CAR) Clock(name string) (hw.Clock, error) {
	m, err := c.lookup(name)
	if err != nil {
		return nil, err
	}
	return &moduleClock{car: c, m: m}, nil
}

// Reset returns the reset line of the named module.
func (c *CAR) Reset(name string) (hw.Reset, error) {
	m, err := c.lookup(name)
	if err != nil {
		return nil, err
	}
	return &moduleReset{car: c, m: m}, nil
}

// moduleClock is one gate bit. Gates are shared, the controller
// counts users per bit and only the first enable and the last
// disable touch the hardware.
type moduleClock struct {
	car *CAR
	m   Module
}

func (k *moduleClock) Name() string {
	return k.m.Name
}

func (k *moduleClock) Enable() error {
	c := k.car
	b := bankTable[k.m.Bit/32]

	c.mu.Lock()
	defer c.mu.Unlock()
	c.users[k.m.Bit]++
	if c.users[k.m.Bit] > 1 {
		return nil
	}
	c.regs.Write32(b.enbSet, 1<<(k.m.Bit%32))
	c.regs.Read32(b.enb)
	c.clk.Sleep(enableSettle)
	return nil
}

func (k *moduleClock) Disable() error {
	c := k.car
	b := bankTable[k.m.Bit/32]

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.users[k.m.Bit] == 0 {
		log.Warnf("Unbalanced disable of clock %s", k.m.Name)
		return nil
	}
	c.users[k.m.Bit]--
	if c.users[k.m.Bit] > 0 {
		return nil
	}
	c.regs.Write32(b.enbClr, 1<<(k.m.Bit%32))
	c.regs.Read32(b.enb)
	return nil
}

// Enabled reads the gate state back from hardware.
func (k *moduleClock) Enabled() bool {
	b := bankTable[k.m.Bit/32]
	return k.car.regs.Read32(b.enb)&(1<<(k.m.Bit%32)) != 0
}

// moduleReset is one reset line. Writes are followed by a state
// register read so the line has latched before the caller touches
// the peripheral again.
type moduleReset struct {
	car *CAR
	m   Module
}

func (r *moduleReset) Name() string {
	return r.m.Name
}

func (r *moduleReset) Assert() error {
	b := bankTable[r.m.Bit/32]
	r.car.regs.Write32(b.rstSet, 1<<(r.m.Bit%32))
	r.car.regs.Read32(b.rst)
	return nil
}

func (r *moduleReset) Deassert() error {
	b := bankTable[r.m.Bit/32]
	r.car.regs.Write32(b.rstClr, 1<<(r.m.Bit%32))
	r.car.regs.Read32(b.rst)
	return nil
}
