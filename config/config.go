// Copyright 2021 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package config

import (
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/u-root/u-pmc/pkg/logger"
	"github.com/u-root/u-pmc/pkg/pmc"
	"github.com/u-root/u-pmc/pkg/soc"
)

var log = logger.LogContainer.GetSimpleLogger()

// Overridden at build time through -ldflags.
var (
	gitVersion = "dev"
	gitHash    = "unknown"
)

type Version struct {
	Version string
	GitHash string
}

// Domain is one power domain entry the way board tables and
// configuration files write them down. The capability lists carry
// provider names, resolution happens when the registry is built.
type Domain struct {
	Name   string   `yaml:"name"`
	ID     uint32   `yaml:"id"`
	Clocks []string `yaml:"clocks"`
	Resets []string `yaml:"resets"`
	Groups []string `yaml:"groups"`

	DependsOn      string `yaml:"depends_on"`
	Rail           string `yaml:"rail"`
	ExternalClocks bool   `yaml:"external_clocks"`
}

// Suspend holds the board power sequencing delays in microseconds
// and the deepest sleep state the board supports.
type Suspend struct {
	Mode        string `yaml:"mode"`
	CPUGoodTime uint32 `yaml:"cpu_good_time_us"`
	CPUOffTime  uint32 `yaml:"cpu_off_time_us"`
	CoreOscTime uint32 `yaml:"core_osc_time_us"`
	CorePMUTime uint32 `yaml:"core_pmu_time_us"`
	CoreOffTime uint32 `yaml:"core_off_time_us"`
}

// Tsense describes the emergency thermal reset I2C transaction the
// boot ROM replays when the thermal sensor trips.
type Tsense struct {
	Enabled      bool   `yaml:"enabled"`
	ControllerID uint32 `yaml:"controller_id"`
	BusAddr      uint32 `yaml:"bus_addr"`
	RegAddr      uint32 `yaml:"reg_addr"`
	RegData      uint32 `yaml:"reg_data"`
	PinmuxID     uint32 `yaml:"pinmux_id"`
}

type Config struct {
	Machine string `yaml:"machine"`

	// Profile picks the SoC generation when the device tree scan
	// cannot, e.g. "tegra124".
	Profile string `yaml:"profile"`

	// DeviceTree is the flattened tree the board scan reads.
	DeviceTree string `yaml:"device_tree"`

	PMCBase int64 `yaml:"pmc_base"`
	PMCSize int   `yaml:"pmc_size"`
	MCBase  int64 `yaml:"mc_base"`
	MCSize  int   `yaml:"mc_size"`
	CARBase int64 `yaml:"car_base"`
	CARSize int   `yaml:"car_size"`

	// PClkRate is the APB clock feeding the PMC, in Hz. Boards must
	// set it before the IO rail operations work.
	PClkRate uint64 `yaml:"pclk_rate"`

	InvertInterrupt bool `yaml:"invert_interrupt"`
	SysclkReqHigh   bool `yaml:"sysclk_req_high"`

	Suspend Suspend  `yaml:"suspend"`
	Tsense  Tsense   `yaml:"tsense"`
	Domains []Domain `yaml:"domains"`

	// HTTPAddr serves the status pages and the OpenMetrics endpoint.
	HTTPAddr string `yaml:"http_addr"`

	Version Version `yaml:"-"`
}

var DefaultConfig = &Config{
	// The kernel re-exports the device tree it booted with here, so
	// on boards with a healthy firmware handoff nothing below needs
	// to be overridden, the scan finds the real values.
	DeviceTree: "/sys/firmware/fdt",

	// Fixed fallback region. Every supported generation keeps the PMC
	// here when the tree has nothing better to say.
	PMCBase: 0x7000e400,
	PMCSize: 0x400,

	MCBase: 0x70019000,
	MCSize: 0x1000,

	CARBase: 0x60006000,
	CARSize: 0x1000,

	HTTPAddr: "[::]:9372",

	Version: Version{
		Version: gitVersion,
		GitHash: gitHash,
	},
}

// Load reads a board configuration file over the compiled in
// defaults. A missing or broken file is not fatal, boards that never
// shipped one run the defaults plus whatever the device tree scan
// finds.
func Load(path string) *Config {
	return loadFs(afero.NewOsFs(), path)
}

func loadFs(fs afero.Fs, path string) *Config {
	c := *DefaultConfig
	b, err := afero.ReadFile(fs, path)
	if err != nil {
		log.Warnf("Failed to read configuration %s: %v", path, err)
		log.Warnf("Using default configuration")
		return &c
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		log.Warnf("Failed to parse configuration %s: %v", path, err)
		log.Warnf("Using default configuration")
		d := *DefaultConfig
		return &d
	}
	return &c
}

// DomainConfigs converts domain tables into registry input.
func DomainConfigs(ds []Domain) []pmc.DomainConfig {
	out := make([]pmc.DomainConfig, 0, len(ds))
	for _, d := range ds {
		out = append(out, pmc.DomainConfig{
			Name:           d.Name,
			ID:             soc.Powergate(d.ID),
			Clocks:         d.Clocks,
			Resets:         d.Resets,
			Groups:         d.Groups,
			DependsOn:      d.DependsOn,
			Rail:           d.Rail,
			ExternalClocks: d.ExternalClocks,
		})
	}
	return out
}

// DomainConfigs converts the configured domain tables.
func (c *Config) DomainConfigs() []pmc.DomainConfig {
	return DomainConfigs(c.Domains)
}

// SuspendTiming converts the suspend delay block for the PMC.
func (c *Config) SuspendTiming() pmc.SuspendTiming {
	return pmc.SuspendTiming{
		CPUGoodTime: c.Suspend.CPUGoodTime,
		CPUOffTime:  c.Suspend.CPUOffTime,
		CoreOscTime: c.Suspend.CoreOscTime,
		CorePMUTime: c.Suspend.CorePMUTime,
		CoreOffTime: c.Suspend.CoreOffTime,
	}
}

// TsenseReset converts the thermal reset block for the PMC.
func (c *Config) TsenseReset() pmc.TsenseReset {
	return pmc.TsenseReset{
		ControllerID: c.Tsense.ControllerID,
		BusAddr:      c.Tsense.BusAddr,
		RegAddr:      c.Tsense.RegAddr,
		RegData:      c.Tsense.RegData,
		PinmuxID:     c.Tsense.PinmuxID,
	}
}
