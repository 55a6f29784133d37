// Copyright 2021 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package platform

import (
	"errors"
	"testing"

	"github.com/jmhodges/clock"

	"github.com/u-root/u-pmc/config"
	"github.com/u-root/u-pmc/pkg/car"
	"github.com/u-root/u-pmc/pkg/hw"
	"github.com/u-root/u-pmc/pkg/mc"
	"github.com/u-root/u-pmc/pkg/mmio"
	"github.com/u-root/u-pmc/pkg/pmc"
	"github.com/u-root/u-pmc/pkg/soc"
)

func TestPartitionTable(t *testing.T) {
	p := Platform()
	for _, d := range p.Domains() {
		id := soc.Powergate(d.ID)
		if !soc.Tegra124.Valid(id) {
			t.Errorf("domain %s names partition %d, not on tegra124", d.Name, d.ID)
		}
		if id.AlwaysOn() {
			t.Errorf("domain %s sits on always-on partition %d", d.Name, d.ID)
		}
	}
}

func TestRailTable(t *testing.T) {
	p := Platform()
	for _, d := range p.Domains() {
		if d.Rail == "" {
			continue
		}
		if _, err := p.Rails().Rail(d.Rail); errors.Is(err, hw.ErrInvalidArgument) {
			t.Errorf("rail %s of domain %s not mapped on this board", d.Rail, d.Name)
		}
	}
}

// The whole table must come up against the real registry, with every
// clock, reset and client group name resolving.
func TestDomainsRegister(t *testing.T) {
	p := Platform()

	pregs := mmio.NewFake()
	mregs := mmio.NewFake()
	cregs := mmio.NewFake()
	mregs.Seed(mc.Tegra114HotResets[0].Status, 0xffffffff)

	pm := pmc.New(pregs, soc.Tegra124)
	pm.Clock = clock.NewFake()
	m := mc.New(mregs, mc.Tegra114HotResets)
	m.Clock = clock.NewFake()
	c, err := car.New(cregs, p.CARBanks(), p.CARModules())
	if err != nil {
		t.Fatalf("car.New failed: %v", err)
	}

	prov := pmc.Providers{Clocks: c, Resets: c, Rails: p.Rails()}
	reg, err := pmc.BuildRegistry(pm, m, prov, config.DomainConfigs(p.Domains()))
	if err != nil {
		t.Fatalf("BuildRegistry failed: %v", err)
	}

	want := []string{"gpu", "venc", "pcie", "vdec", "sata", "vic"}
	ds := reg.Domains()
	if len(ds) != len(want) {
		t.Fatalf("registered %d domains, want %d", len(ds), len(want))
	}
	for i, d := range ds {
		if d.Name() != want[i] {
			t.Errorf("domain %d is %s, want %s", i, d.Name(), want[i])
		}
	}
}
