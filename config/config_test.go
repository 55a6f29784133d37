// Copyright 2021 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package config

import (
	"reflect"
	"testing"

	"github.com/spf13/afero"

	"github.com/u-root/u-pmc/pkg/pmc"
	"github.com/u-root/u-pmc/pkg/soc"
)

func TestDefaultConfigCoversFallbackRegion(t *testing.T) {
	c := DefaultConfig
	if c.PMCBase != 0x7000e400 || c.PMCSize != 0x400 {
		t.Errorf("Default PMC region is %#x/%#x, expected the fixed fallback", c.PMCBase, c.PMCSize)
	}
	if c.DeviceTree == "" {
		t.Error("Default configuration has no device tree path")
	}
	if c.HTTPAddr == "" {
		t.Error("Default configuration has no HTTP listen address")
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	fs := afero.NewMemMapFs()
	conf := `
machine: test-board
profile: tegra124
pclk_rate: 204000000
sysclk_req_high: true
suspend:
  mode: lp1
  cpu_good_time_us: 5000
  cpu_off_time_us: 10
domains:
  - name: vdec
    id: 4
    clocks: [vde]
    groups: [vde]
  - name: pcie
    id: 3
    clocks: [pcie, afi]
    resets: [pcie, afi, pciex]
    external_clocks: true
`
	if err := afero.WriteFile(fs, "/config/pmc.yaml", []byte(conf), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	c := loadFs(fs, "/config/pmc.yaml")
	if c.Machine != "test-board" || c.Profile != "tegra124" {
		t.Errorf("Board identity not loaded: %+v", c)
	}
	if c.PClkRate != 204000000 {
		t.Errorf("Expected pclk rate override, got %d", c.PClkRate)
	}
	if !c.SysclkReqHigh {
		t.Error("Expected sysclk polarity override")
	}
	if c.Suspend.Mode != "lp1" || c.Suspend.CPUGoodTime != 5000 {
		t.Errorf("Suspend block not loaded: %+v", c.Suspend)
	}
	// Untouched fields keep their defaults.
	if c.PMCBase != DefaultConfig.PMCBase || c.HTTPAddr != DefaultConfig.HTTPAddr {
		t.Errorf("Defaults lost on partial override: %+v", c)
	}

	want := []pmc.DomainConfig{
		{Name: "vdec", ID: soc.PowergateVDEC, Clocks: []string{"vde"}, Groups: []string{"vde"}},
		{Name: "pcie", ID: soc.PowergatePCIE, Clocks: []string{"pcie", "afi"},
			Resets: []string{"pcie", "afi", "pciex"}, ExternalClocks: true},
	}
	if got := c.DomainConfigs(); !reflect.DeepEqual(got, want) {
		t.Errorf("DomainConfigs mismatch:\ngot  %+v\nwant %+v", got, want)
	}
}

func TestLoadMissingFileKeepsDefaults(t *testing.T) {
	c := loadFs(afero.NewMemMapFs(), "/does/not/exist")
	if !reflect.DeepEqual(c, DefaultConfig) {
		t.Errorf("Expected pristine defaults, got %+v", c)
	}
}

func TestLoadBrokenFileKeepsDefaults(t *testing.T) {
	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, "/config/pmc.yaml", []byte("machine: [\n"), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	c := loadFs(fs, "/config/pmc.yaml")
	if !reflect.DeepEqual(c, DefaultConfig) {
		t.Errorf("Expected pristine defaults, got %+v", c)
	}
}

func TestDomainConfigsKeepLinksAndRails(t *testing.T) {
	c := &Config{Domains: []Domain{
		{Name: "gpu", ID: 1, Rail: "vdd-gpu"},
		{Name: "venc", ID: 2, Clocks: []string{"msenc"}, DependsOn: "gpu"},
	}}
	got := c.DomainConfigs()
	if len(got) != 2 {
		t.Fatalf("Expected two domains, got %d", len(got))
	}
	if got[0].ID != soc.Powergate3D || got[0].Rail != "vdd-gpu" {
		t.Errorf("Rail domain conversion lost values: %+v", got[0])
	}
	if got[1].DependsOn != "gpu" || !reflect.DeepEqual(got[1].Clocks, []string{"msenc"}) {
		t.Errorf("Dependent domain conversion lost values: %+v", got[1])
	}
	if got[1].Resets != nil {
		t.Errorf("Expected no resets, got %v", got[1].Resets)
	}
}

func TestSuspendAndTsenseConversion(t *testing.T) {
	c := &Config{
		Suspend: Suspend{CPUGoodTime: 2000, CPUOffTime: 100, CoreOscTime: 3845, CorePMUTime: 3845, CoreOffTime: 3875},
		Tsense:  Tsense{Enabled: true, ControllerID: 4, BusAddr: 0x40, RegAddr: 0x36, RegData: 0x2},
	}
	timing := c.SuspendTiming()
	if timing.CPUGoodTime != 2000 || timing.CoreOffTime != 3875 {
		t.Errorf("Suspend timing conversion lost values: %+v", timing)
	}
	ts := c.TsenseReset()
	if ts.ControllerID != 4 || ts.BusAddr != 0x40 || ts.RegAddr != 0x36 || ts.RegData != 0x2 {
		t.Errorf("Tsense conversion lost values: %+v", ts)
	}
}
