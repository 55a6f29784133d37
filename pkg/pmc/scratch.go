// Copyright 2021 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pmc

import (
	"fmt"

	"github.com/u-root/u-pmc/pkg/hw"
)

// RestartMode selects what the boot ROM and bootloader do after the
// reset that Restart triggers. The mode survives the reset in the
// scratch register.
type RestartMode int

const (
	RestartNormal RestartMode = iota
	RestartRecovery
	RestartBootloader
	RestartForcedRecovery
)

func (m RestartMode) String() string {
	switch m {
	case RestartNormal:
		return "normal"
	case RestartRecovery:
		return "recovery"
	case RestartBootloader:
		return "bootloader"
	case RestartForcedRecovery:
		return "forced-recovery"
	}
	return fmt.Sprintf("mode%d", int(m))
}

// RestartModeFromString maps a command line argument to a restart
// mode. The empty string means a normal restart.
func RestartModeFromString(s string) (RestartMode, error) {
	switch s {
	case "", "normal":
		return RestartNormal, nil
	case "recovery":
		return RestartRecovery, nil
	case "bootloader":
		return RestartBootloader, nil
	case "forced-recovery":
		return RestartForcedRecovery, nil
	}
	return RestartNormal, fmt.Errorf("%w: unknown restart mode %q", hw.ErrInvalidArgument, s)
}

// Restart stores the requested mode in the reboot reason scratch
// register and pulls the main system reset. On real hardware this
// does not return.
func (p *PMC) Restart(mode RestartMode) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	v := p.regs.Read32(PMC_SCRATCH0)
	v &^= PMC_SCRATCH0_MODE_MASK
	switch mode {
	case RestartNormal:
	case RestartRecovery:
		v |= PMC_SCRATCH0_MODE_RECOVERY
	case RestartBootloader:
		v |= PMC_SCRATCH0_MODE_BOOTLOADER
	case RestartForcedRecovery:
		v |= PMC_SCRATCH0_MODE_RCM
	default:
		return fmt.Errorf("%w: restart mode %d", hw.ErrInvalidArgument, mode)
	}
	p.regs.Write32(PMC_SCRATCH0, v)

	log.Infof("Restarting system in %s mode", mode)
	v = p.regs.Read32(PMC_CNTRL)
	p.regs.Write32(PMC_CNTRL, v|PMC_CNTRL_MAIN_RST)
	return nil
}

// TsenseReset programs the emergency thermal reset path: when the
// temperature sensor trips, the PMC writes RegData to RegAddr on the
// PMU behind the given I2C controller and pinmux setting, forcing a
// power cycle without software involvement.
type TsenseReset struct {
	ControllerID uint32
	BusAddr      uint32
	RegAddr      uint32
	RegData      uint32
	PinmuxID     uint32
}

// EnableTsenseReset arms the thermal reset. The scratch registers
// carry the I2C transaction, protected by a checksum the boot ROM
// verifies before replaying it.
func (p *PMC) EnableTsenseReset(t TsenseReset) error {
	if !p.profile.HasTsenseReset {
		return fmt.Errorf("%w: no thermal reset on %s", hw.ErrInvalidArgument, p.profile.Name)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	v := p.regs.Read32(PMC_SENSOR_CTRL)
	p.regs.Write32(PMC_SENSOR_CTRL, v|PMC_SENSOR_CTRL_SCRATCH_WRITE)

	v = t.RegData<<PMC_SCRATCH54_DATA_SHIFT | t.RegAddr<<PMC_SCRATCH54_ADDR_SHIFT
	p.regs.Write32(PMC_SCRATCH54, v)

	v = PMC_SCRATCH55_RESET_TEGRA
	v |= t.ControllerID << PMC_SCRATCH55_CNTRL_ID_SHIFT
	v |= t.PinmuxID << PMC_SCRATCH55_PINMUX_SHIFT
	v |= t.BusAddr << PMC_SCRATCH55_I2CSLV1_SHIFT

	// The boot ROM checks that the bytes of both scratch words sum to
	// zero with the checksum byte in place.
	checksum := t.RegAddr + t.RegData
	checksum += v & 0xff
	checksum += (v >> 8) & 0xff
	checksum += (v >> 24) & 0xff
	checksum &= 0xff
	checksum = 0x100 - checksum
	v |= checksum << PMC_SCRATCH55_CHECKSUM_SHIFT
	p.regs.Write32(PMC_SCRATCH55, v)

	v = p.regs.Read32(PMC_SENSOR_CTRL)
	p.regs.Write32(PMC_SENSOR_CTRL, v|PMC_SENSOR_CTRL_ENABLE_RST)

	log.Infof("Emergency thermal reset enabled")
	return nil
}

// SuspendMode is the deepest sleep state suspend entry will use.
type SuspendMode int

const (
	SuspendNone SuspendMode = iota
	SuspendLP2
	SuspendLP1
	SuspendLP0
)

func (m SuspendMode) String() string {
	switch m {
	case SuspendNone:
		return "none"
	case SuspendLP2:
		return "lp2"
	case SuspendLP1:
		return "lp1"
	case SuspendLP0:
		return "lp0"
	}
	return fmt.Sprintf("mode%d", int(m))
}

// SuspendModeFromString maps a configuration value to a suspend mode.
// The empty string means suspend stays disabled.
func SuspendModeFromString(s string) (SuspendMode, error) {
	switch s {
	case "", "none":
		return SuspendNone, nil
	case "lp2":
		return SuspendLP2, nil
	case "lp1":
		return SuspendLP1, nil
	case "lp0":
		return SuspendLP0, nil
	}
	return SuspendNone, fmt.Errorf("%w: unknown suspend mode %q", hw.ErrInvalidArgument, s)
}

// SuspendTiming holds the platform power sequencing delays in
// microseconds. The CPU values are programmed into the PMC timers,
// the core values are kept for the deeper states.
type SuspendTiming struct {
	CPUGoodTime uint32
	CPUOffTime  uint32

	CoreOscTime uint32
	CorePMUTime uint32
	CoreOffTime uint32
}

func (p *PMC) SetSuspendMode(mode SuspendMode) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.mode = mode
}

func (p *PMC) GetSuspendMode() SuspendMode {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.mode
}

func (p *PMC) SetSuspendTiming(t SuspendTiming) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.timing = t
}

// EnterSuspend programs the power good and power off timers for the
// requested sleep state and flips the PMC into CPU power request
// mode. The timers tick at 32 kHz in LP1 because the system runs off
// the slow clock there, at the current pclk rate otherwise.
func (p *PMC) EnterSuspend(mode SuspendMode) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var rate uint64
	switch mode {
	case SuspendLP1:
		rate = 32768
	case SuspendLP2:
		rate = p.PClkRate
	default:
	}
	if rate == 0 {
		log.Warnf("Unknown timer rate for suspend mode %s, assuming 100 MHz", mode)
		rate = 100000000
	}

	if rate != p.timerRate {
		ticks := uint64(p.timing.CPUGoodTime)*rate + 999999
		p.regs.Write32(PMC_CPUPWRGOOD_TIMER, uint32(ticks/1000000))

		ticks = uint64(p.timing.CPUOffTime)*rate + 999999
		p.regs.Write32(PMC_CPUPWROFF_TIMER, uint32(ticks/1000000))

		// Make sure the timers hit the hardware before the control
		// register arms them.
		p.regs.Read32(PMC_CPUPWRGOOD_TIMER)
		p.timerRate = rate
	}

	v := p.regs.Read32(PMC_CNTRL)
	v &^= PMC_CNTRL_SIDE_EFFECT_LP0
	v |= PMC_CNTRL_CPU_PWRREQ_OE
	p.regs.Write32(PMC_CNTRL, v)
	return nil
}

// SetResumeAddress records where the boot ROM should send the CPU
// when it wakes from deep sleep.
func (p *PMC) SetResumeAddress(addr uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.regs.Write32(PMC_SCRATCH41, addr)
}

func (p *PMC) ClearResumeAddress() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.regs.Write32(PMC_SCRATCH41, 0)
}
