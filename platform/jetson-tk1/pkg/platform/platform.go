// Copyright 2021 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package platform

import (
	"github.com/u-root/u-pmc/config"
	"github.com/u-root/u-pmc/pkg/car"
	"github.com/u-root/u-pmc/pkg/hw"
	"github.com/u-root/u-pmc/platform/jetson-tk1/pkg/rail"
)

type platform struct {
	rails *rail.Provider
}

func (p *platform) InitializeSystem() error {
	return nil
}

func (p *platform) CARBanks() int {
	return car.BanksTegra124
}

func (p *platform) CARModules() []car.Module {
	return []car.Module{
		{Name: "vde", Bit: 61},
		{Name: "pcie", Bit: 70},
		{Name: "afi", Bit: 72},
		{Name: "pciex", Bit: 74},
		{Name: "msenc", Bit: 91},
		{Name: "sata_oob", Bit: 123},
		{Name: "sata", Bit: 124},
		{Name: "sata_cold", Bit: 129},
		{Name: "entropy", Bit: 149},
		{Name: "vic03", Bit: 178},
		{Name: "gpu", Bit: 184},
	}
}

// Domains is the fallback table for boards booted without a usable
// device tree. The ids and capability names follow the Tegra124 TRM
// and the stock jetson-tk1 tree.
func (p *platform) Domains() []config.Domain {
	return []config.Domain{
		{
			Name:   "gpu",
			ID:     1,
			Clocks: []string{"gpu"},
			Resets: []string{"gpu"},
			Rail:   "vdd-gpu",
		},
		{
			Name:   "venc",
			ID:     2,
			Clocks: []string{"msenc"},
			Resets: []string{"msenc"},
			Groups: []string{"msenc"},
		},
		{
			Name:           "pcie",
			ID:             3,
			Clocks:         []string{"afi", "pcie"},
			Resets:         []string{"pcie", "afi", "pciex"},
			ExternalClocks: true,
		},
		{
			Name:   "vdec",
			ID:     4,
			Clocks: []string{"vde"},
			Resets: []string{"vde"},
			Groups: []string{"vde"},
		},
		{
			Name:   "sata",
			ID:     8,
			Clocks: []string{"sata", "sata_oob"},
			Resets: []string{"sata", "sata_oob", "sata_cold"},
		},
		{
			Name:   "vic",
			ID:     23,
			Clocks: []string{"vic03"},
			Resets: []string{"vic03"},
		},
	}
}

func (p *platform) Rails() hw.RailProvider {
	return p.rails
}

func Platform() *platform {
	return &platform{
		rails: rail.NewProvider(map[string]string{
			"vdd-gpu": "/sys/devices/platform/vdd-gpu-consumer",
		}),
	}
}
