// Copyright 2021 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pmc

import (
	"errors"
	"testing"

	"github.com/jmhodges/clock"

	"github.com/u-root/u-pmc/pkg/hw"
	"github.com/u-root/u-pmc/pkg/mmio"
	"github.com/u-root/u-pmc/pkg/soc"
)

const (
	vdecBit = uint32(1 << soc.PowergateVDEC)
	pcieBit = uint32(1 << soc.PowergatePCIE)
)

func testPMC(t *testing.T, profile *soc.Profile) (*PMC, *mmio.Fake) {
	f := mmio.NewFake()
	p := New(f, profile)
	p.Clock = clock.NewFake()
	return p, f
}

func wantTrace(t *testing.T, f *mmio.Fake, want []mmio.Access) {
	t.Helper()
	got := f.Trace()
	if len(got) != len(want) {
		t.Fatalf("Expected %d accesses, got %d: %v", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Access %d: expected %v, got %v", i, want[i], got[i])
		}
	}
}

func TestGateTogglesAndWaits(t *testing.T) {
	p, f := testPMC(t, soc.Tegra124)
	f.Seed(PWRGATE_STATUS, vdecBit)
	// Off at request time, and the partition needs one extra poll
	// before the status follows.
	f.QueueRead(PWRGATE_STATUS, 0, 0)

	if err := p.setGate(soc.PowergateVDEC, true); err != nil {
		t.Fatalf("setGate failed: %v", err)
	}
	wantTrace(t, f, []mmio.Access{
		{Write: false, Off: PWRGATE_STATUS, Data: 0},
		{Write: true, Off: PWRGATE_TOGGLE, Data: PWRGATE_TOGGLE_START | uint32(soc.PowergateVDEC)},
		{Write: false, Off: PWRGATE_STATUS, Data: 0},
		{Write: false, Off: PWRGATE_STATUS, Data: vdecBit},
	})
}

func TestGateNoOpWhenConverged(t *testing.T) {
	p, f := testPMC(t, soc.Tegra124)
	f.Seed(PWRGATE_STATUS, vdecBit)

	if err := p.setGate(soc.PowergateVDEC, true); err != nil {
		t.Fatalf("setGate failed: %v", err)
	}
	trace := f.Trace()
	if len(trace) != 1 || trace[0].Write {
		t.Errorf("Converged gate must only read status, got %v", trace)
	}
}

func TestGateStopsPollingOnceConverged(t *testing.T) {
	p, f := testPMC(t, soc.Tegra124)
	f.Seed(PWRGATE_STATUS, vdecBit)
	f.QueueRead(PWRGATE_STATUS, 0)

	if err := p.setGate(soc.PowergateVDEC, true); err != nil {
		t.Fatalf("setGate failed: %v", err)
	}
	if n := len(f.Trace()); n != 3 {
		t.Errorf("Expected check, toggle and one successful poll, got %d accesses: %v", n, f.Trace())
	}
}

func TestGateTimesOut(t *testing.T) {
	p, f := testPMC(t, soc.Tegra124)
	f.Seed(PWRGATE_STATUS, 0)
	clk := p.Clock.(clock.FakeClock)
	start := clk.Now()

	err := p.setGate(soc.PowergateVDEC, true)
	if !errors.Is(err, hw.ErrTimeout) {
		t.Fatalf("Expected timeout, got %v", err)
	}
	if waited := clk.Now().Sub(start); waited < DefaultGateTimeout {
		t.Errorf("Gave up after %v, before the %v bound", waited, DefaultGateTimeout)
	}
}

func TestRemoveClampingSwapsBits(t *testing.T) {
	p, f := testPMC(t, soc.Tegra30)
	for _, tc := range []struct {
		id   soc.Powergate
		want uint32
	}{
		{soc.PowergateVDEC, pcieBit},
		{soc.PowergatePCIE, vdecBit},
		{soc.PowergateMPE, 1 << soc.PowergateMPE},
		{soc.Powergate3D, 1 << soc.Powergate3D},
	} {
		f.ResetTrace()
		if err := p.RemoveClamping(tc.id); err != nil {
			t.Fatalf("RemoveClamping(%d) failed: %v", tc.id, err)
		}
		wantTrace(t, f, []mmio.Access{
			{Write: true, Off: REMOVE_CLAMPING, Data: tc.want},
		})
	}
}

func TestRemoveClampingGPURailGate(t *testing.T) {
	p, f := testPMC(t, soc.Tegra124)
	if err := p.RemoveClamping(soc.Powergate3D); err != nil {
		t.Fatalf("RemoveClamping failed: %v", err)
	}
	wantTrace(t, f, []mmio.Access{
		{Write: true, Off: GPU_RG_CNTRL, Data: 0},
	})
}

func TestRemoveClampingRejectsHoles(t *testing.T) {
	for _, tc := range []struct {
		profile *soc.Profile
		id      soc.Powergate
	}{
		{soc.Tegra114, soc.PowergatePCIE},
		{soc.Tegra114, soc.PowergateSATA},
		{soc.Tegra20, soc.PowergateHEG},
		{soc.Tegra124, -1},
		{soc.Tegra124, 99},
	} {
		p, f := testPMC(t, tc.profile)
		err := p.RemoveClamping(tc.id)
		if !errors.Is(err, hw.ErrInvalidArgument) {
			t.Errorf("%s partition %d: expected invalid argument, got %v", tc.profile.Name, tc.id, err)
		}
		if n := len(f.Trace()); n != 0 {
			t.Errorf("%s partition %d: rejected request touched registers %v", tc.profile.Name, tc.id, f.Trace())
		}
	}
}

func TestIsPowered(t *testing.T) {
	p, f := testPMC(t, soc.Tegra124)
	f.Seed(PWRGATE_STATUS, 1<<soc.PowergateCPU|vdecBit)

	if on, err := p.IsPowered(soc.PowergateVDEC); err != nil || !on {
		t.Errorf("vdec: expected powered, got %v, %v", on, err)
	}
	if on, err := p.IsPowered(soc.PowergateVENC); err != nil || on {
		t.Errorf("venc: expected unpowered, got %v, %v", on, err)
	}
	if _, err := p.IsPowered(99); !errors.Is(err, hw.ErrInvalidArgument) {
		t.Errorf("Expected invalid argument for unknown partition, got %v", err)
	}
}

func TestCPUTranslation(t *testing.T) {
	p, f := testPMC(t, soc.Tegra124)
	f.Seed(PWRGATE_STATUS, 1<<soc.PowergateCPU2)
	f.QueueRead(PWRGATE_STATUS, 0)

	if err := p.CPUPowerOn(2); err != nil {
		t.Fatalf("CPUPowerOn failed: %v", err)
	}
	var toggle mmio.Access
	for _, a := range f.Trace() {
		if a.Write && a.Off == PWRGATE_TOGGLE {
			toggle = a
		}
	}
	if toggle.Data != PWRGATE_TOGGLE_START|uint32(soc.PowergateCPU2) {
		t.Errorf("Expected toggle of partition cpu2, got %v", toggle)
	}

	if on, err := p.CPUIsPowered(2); err != nil || !on {
		t.Errorf("cpu2: expected powered, got %v, %v", on, err)
	}

	// CPU 0 runs this code and the generation only has four cores.
	for _, cpu := range []int{0, -1, 4} {
		if err := p.CPUPowerOn(cpu); !errors.Is(err, hw.ErrInvalidArgument) {
			t.Errorf("cpu %d: expected invalid argument, got %v", cpu, err)
		}
	}

	legacy, _ := testPMC(t, soc.Tegra20)
	if err := legacy.CPUPowerOn(1); !errors.Is(err, hw.ErrInvalidArgument) {
		t.Errorf("tegra20 has no cpu partitions, got %v", err)
	}
}

func TestCPURemoveClamping(t *testing.T) {
	p, f := testPMC(t, soc.Tegra124)
	if err := p.CPURemoveClamping(1); err != nil {
		t.Fatalf("CPURemoveClamping failed: %v", err)
	}
	wantTrace(t, f, []mmio.Access{
		{Write: true, Off: REMOVE_CLAMPING, Data: 1 << soc.PowergateCPU1},
	})
}

func TestSetupSysclkPolarity(t *testing.T) {
	for _, tc := range []struct {
		reqHigh bool
		want    []uint32
	}{
		{false, []uint32{
			PMC_CNTRL_CPU_PWRREQ_OE,
			PMC_CNTRL_CPU_PWRREQ_OE | PMC_CNTRL_SYSCLK_POLARITY,
			PMC_CNTRL_CPU_PWRREQ_OE | PMC_CNTRL_SYSCLK_POLARITY | PMC_CNTRL_SYSCLK_OE,
		}},
		{true, []uint32{
			PMC_CNTRL_CPU_PWRREQ_OE,
			PMC_CNTRL_CPU_PWRREQ_OE,
			PMC_CNTRL_CPU_PWRREQ_OE | PMC_CNTRL_SYSCLK_OE,
		}},
	} {
		p, f := testPMC(t, soc.Tegra124)
		p.Setup(tc.reqHigh)
		writes := f.Writes()
		if len(writes) != len(tc.want) {
			t.Fatalf("reqHigh=%v: expected %d writes, got %v", tc.reqHigh, len(tc.want), writes)
		}
		for i, w := range writes {
			if w.Off != PMC_CNTRL || w.Data != tc.want[i] {
				t.Errorf("reqHigh=%v write %d: expected %08x, got %v", tc.reqHigh, i, tc.want[i], w)
			}
		}
	}
}

func TestSetInterruptPolarity(t *testing.T) {
	p, f := testPMC(t, soc.Tegra124)
	f.Seed(PMC_CNTRL, PMC_CNTRL_CPU_PWRREQ_OE)

	p.SetInterruptPolarity(true)
	if v := f.Peek(PMC_CNTRL); v != PMC_CNTRL_CPU_PWRREQ_OE|PMC_CNTRL_INTR_POLARITY {
		t.Errorf("Expected polarity bit set, got %08x", v)
	}
	p.SetInterruptPolarity(false)
	if v := f.Peek(PMC_CNTRL); v != PMC_CNTRL_CPU_PWRREQ_OE {
		t.Errorf("Expected polarity bit cleared, got %08x", v)
	}
}

func TestStatusSkipsHoles(t *testing.T) {
	p, f := testPMC(t, soc.Tegra114)
	f.Seed(PWRGATE_STATUS, 1<<soc.PowergateCPU|vdecBit)

	rows := p.Status()
	if len(rows) != 18 {
		t.Fatalf("Expected 18 partitions on tegra114, got %d", len(rows))
	}
	if rows[0].Name != "crail" || !rows[0].Powered {
		t.Errorf("Expected crail powered first, got %+v", rows[0])
	}
	for _, r := range rows {
		if r.Name == "" {
			t.Errorf("Hole leaked into status: %+v", r)
		}
		if r.ID == soc.PowergatePCIE || r.ID == soc.PowergateL2 {
			t.Errorf("Partition %d does not exist on tegra114: %+v", r.ID, r)
		}
		if r.Name == "vdec" && !r.Powered {
			t.Errorf("Expected vdec powered, got %+v", r)
		}
		if r.Name == "venc" && r.Powered {
			t.Errorf("Expected venc unpowered, got %+v", r)
		}
	}
}
