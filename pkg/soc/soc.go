// Copyright 2021 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package soc describes the power partition layout of the supported
// Tegra generations.
package soc

// Powergate identifies one power partition of the SoC. The numbering
// is fixed by hardware and shared across generations, partitions that
// a generation lacks are holes in its name table.
type Powergate int

const (
	PowergateCPU   Powergate = 0
	Powergate3D    Powergate = 1
	PowergateVENC  Powergate = 2
	PowergatePCIE  Powergate = 3
	PowergateVDEC  Powergate = 4
	PowergateL2    Powergate = 5
	PowergateMPE   Powergate = 6
	PowergateHEG   Powergate = 7
	PowergateSATA  Powergate = 8
	PowergateCPU1  Powergate = 9
	PowergateCPU2  Powergate = 10
	PowergateCPU3  Powergate = 11
	PowergateCELP  Powergate = 12
	Powergate3D1   Powergate = 13
	PowergateCPU0  Powergate = 14
	PowergateC0NC  Powergate = 15
	PowergateC1NC  Powergate = 16
	PowergateSOR   Powergate = 17
	PowergateDIS   Powergate = 18
	PowergateDISB  Powergate = 19
	PowergateXUSBA Powergate = 20
	PowergateXUSBB Powergate = 21
	PowergateXUSBC Powergate = 22
	PowergateVIC   Powergate = 23
	PowergateIRAM  Powergate = 24
)

// Partitions that are never turned off, no matter what a caller asks
// for. Gating any of these kills the core the request runs on.
var alwaysOn = map[Powergate]bool{
	PowergateCPU:  true,
	PowergateCPU1: true,
	PowergateCPU2: true,
	PowergateCPU3: true,
	PowergateCPU0: true,
	PowergateC0NC: true,
	PowergateIRAM: true,
}

// AlwaysOn reports whether the partition must stay powered.
func (p Powergate) AlwaysOn() bool {
	return alwaysOn[p]
}

// Profile captures what one SoC generation can do and what its power
// partitions are called.
type Profile struct {
	Name          string
	Compatible    string
	Powergates    []string
	CPUPowergates []Powergate

	HasTsenseReset bool
	HasGPUClamps   bool

	// LegacyPowergate selects the older sequencing: resets are
	// asserted right after ungating on the way up, and there is no
	// memory controller flush handshake on the way down.
	LegacyPowergate bool
}

var Tegra20 = &Profile{
	Name:       "tegra20",
	Compatible: "nvidia,tegra20-pmc",
	Powergates: []string{
		PowergateCPU:  "cpu",
		Powergate3D:   "3d",
		PowergateVENC: "venc",
		PowergateVDEC: "vdec",
		PowergatePCIE: "pcie",
		PowergateL2:   "l2",
		PowergateMPE:  "mpe",
	},
	LegacyPowergate: true,
}

var Tegra30 = &Profile{
	Name:       "tegra30",
	Compatible: "nvidia,tegra30-pmc",
	Powergates: []string{
		PowergateCPU:  "cpu0",
		Powergate3D:   "3d0",
		PowergateVENC: "venc",
		PowergateVDEC: "vdec",
		PowergatePCIE: "pcie",
		PowergateL2:   "l2",
		PowergateMPE:  "mpe",
		PowergateHEG:  "heg",
		PowergateSATA: "sata",
		PowergateCPU1: "cpu1",
		PowergateCPU2: "cpu2",
		PowergateCPU3: "cpu3",
		PowergateCELP: "celp",
		Powergate3D1:  "3d1",
	},
	CPUPowergates: []Powergate{
		PowergateCPU,
		PowergateCPU1,
		PowergateCPU2,
		PowergateCPU3,
	},
	HasTsenseReset:  true,
	LegacyPowergate: true,
}

var Tegra114 = &Profile{
	Name:       "tegra114",
	Compatible: "nvidia,tegra114-pmc",
	Powergates: []string{
		PowergateCPU:   "crail",
		Powergate3D:    "3d",
		PowergateVENC:  "venc",
		PowergateVDEC:  "vdec",
		PowergateMPE:   "mpe",
		PowergateHEG:   "heg",
		PowergateCPU1:  "cpu1",
		PowergateCPU2:  "cpu2",
		PowergateCPU3:  "cpu3",
		PowergateCELP:  "celp",
		PowergateCPU0:  "cpu0",
		PowergateC0NC:  "c0nc",
		PowergateC1NC:  "c1nc",
		PowergateDIS:   "dis",
		PowergateDISB:  "disb",
		PowergateXUSBA: "xusba",
		PowergateXUSBB: "xusbb",
		PowergateXUSBC: "xusbc",
	},
	CPUPowergates: []Powergate{
		PowergateCPU0,
		PowergateCPU1,
		PowergateCPU2,
		PowergateCPU3,
	},
	HasTsenseReset: true,
}

var Tegra124 = &Profile{
	Name:       "tegra124",
	Compatible: "nvidia,tegra124-pmc",
	Powergates: []string{
		PowergateCPU:   "crail",
		Powergate3D:    "3d",
		PowergateVENC:  "venc",
		PowergatePCIE:  "pcie",
		PowergateVDEC:  "vdec",
		PowergateL2:    "l2",
		PowergateMPE:   "mpe",
		PowergateHEG:   "heg",
		PowergateSATA:  "sata",
		PowergateCPU1:  "cpu1",
		PowergateCPU2:  "cpu2",
		PowergateCPU3:  "cpu3",
		PowergateCELP:  "celp",
		PowergateCPU0:  "cpu0",
		PowergateC0NC:  "c0nc",
		PowergateC1NC:  "c1nc",
		PowergateSOR:   "sor",
		PowergateDIS:   "dis",
		PowergateDISB:  "disb",
		PowergateXUSBA: "xusba",
		PowergateXUSBB: "xusbb",
		PowergateXUSBC: "xusbc",
		PowergateVIC:   "vic",
		PowergateIRAM:  "iram",
	},
	CPUPowergates: []Powergate{
		PowergateCPU0,
		PowergateCPU1,
		PowergateCPU2,
		PowergateCPU3,
	},
	HasTsenseReset: true,
	HasGPUClamps:   true,
}

var profiles = []*Profile{Tegra124, Tegra114, Tegra30, Tegra20}

// Profiles returns all supported generations, newest first.
func Profiles() []*Profile {
	return profiles
}

// ByCompatible returns the profile matching a device tree compatible
// string, or nil when the generation is not supported.
func ByCompatible(compatible string) *Profile {
	for _, p := range profiles {
		if p.Compatible == compatible {
			return p
		}
	}
	return nil
}

// ByName returns the profile with the given short name, or nil.
func ByName(name string) *Profile {
	for _, p := range profiles {
		if p.Name == name {
			return p
		}
	}
	return nil
}

// Valid reports whether this generation has the given partition.
func (s *Profile) Valid(id Powergate) bool {
	return id >= 0 && int(id) < len(s.Powergates) && s.Powergates[id] != ""
}

// PowergateName returns the name of a partition, or "" for holes.
func (s *Profile) PowergateName(id Powergate) string {
	if !s.Valid(id) {
		return ""
	}
	return s.Powergates[id]
}

// PowergateByName resolves a partition name for this generation.
func (s *Profile) PowergateByName(name string) (Powergate, bool) {
	for i, n := range s.Powergates {
		if n != "" && n == name {
			return Powergate(i), true
		}
	}
	return 0, false
}

// CPUPowergate translates a CPU number to its partition. CPU 0 runs
// the system and never translates, only secondary CPUs can be gated.
func (s *Profile) CPUPowergate(cpu int) (Powergate, bool) {
	if cpu <= 0 || cpu >= len(s.CPUPowergates) {
		return 0, false
	}
	return s.CPUPowergates[cpu], true
}
