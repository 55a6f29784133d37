// Copyright 2021 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pmc

import (
	"fmt"
	"time"

	"github.com/u-root/u-pmc/pkg/hw"
)

// IORail identifies one IO pad group that can be put into deep power
// down. The numbering matches the request register bit layout, with
// the second register bank starting at 32.
type IORail int

const (
	IORailCSIA     IORail = 0
	IORailCSIB     IORail = 1
	IORailDSI      IORail = 2
	IORailMIPIBias IORail = 3
	IORailPEXBias  IORail = 4
	IORailPEXClk1  IORail = 5
	IORailPEXClk2  IORail = 6
	IORailUSB0     IORail = 9
	IORailUSB1     IORail = 10
	IORailUSB2     IORail = 11
	IORailUSBBias  IORail = 12
	IORailNAND     IORail = 13
	IORailUART     IORail = 14
	IORailBB       IORail = 15
	IORailAudio    IORail = 17
	IORailHSIC     IORail = 19
	IORailComp     IORail = 22
	IORailHDMI     IORail = 28
	IORailPEXCntrl IORail = 32
	IORailSDMMC1   IORail = 33
	IORailSDMMC3   IORail = 34
	IORailSDMMC4   IORail = 35
	IORailCam      IORail = 36
	IORailResRail  IORail = 37
	IORailHV       IORail = 38
	IORailDSIB     IORail = 39
	IORailDSIC     IORail = 40
	IORailDSID     IORail = 41
	IORailCSIC     IORail = 42
	IORailCSID     IORail = 43
	IORailCSIE     IORail = 44
	IORailLVDS     IORail = 57
)

const (
	ioRailTimeout      = 250 * time.Millisecond
	ioRailPollInterval = 250 * time.Microsecond
)

// ioRailPrepare validates the rail id, selects the register bank and
// programs the deep power down sampling window. The sample window
// must cover at least 200 ns, expressed in pclk cycles.
func (p *PMC) ioRailPrepare(id IORail) (request, status, mask uint32, err error) {
	// Each bank selects rails in its low 30 bits, bits 30 and 31 are
	// the request code.
	bit := uint32(id) % 32
	if id < 0 || id > 63 || bit == 30 || bit == 31 {
		return 0, 0, 0, fmt.Errorf("%w: io rail %d", hw.ErrInvalidArgument, id)
	}

	if id < 32 {
		request = IO_DPD_REQ
		status = IO_DPD_STATUS
	} else {
		request = IO_DPD2_REQ
		status = IO_DPD2_STATUS
	}

	if p.PClkRate == 0 {
		return 0, 0, 0, fmt.Errorf("%w: pclk rate not configured", hw.ErrInvalidArgument)
	}

	p.regs.Write32(DPD_SAMPLE, DPD_SAMPLE_ENABLE)

	period := (1000000000 + p.PClkRate - 1) / p.PClkRate
	ticks := (200 + period - 1) / period
	p.regs.Write32(SEL_DPD_TIM, uint32(ticks))

	return request, status, 1 << bit, nil
}

func (p *PMC) ioRailUnprepare() {
	p.regs.Write32(DPD_SAMPLE, 0)
}

func (p *PMC) ioRailPoll(status, mask, want uint32) error {
	deadline := p.Clock.Now().Add(ioRailTimeout)
	for p.Clock.Now().Before(deadline) {
		if p.regs.Read32(status)&mask == want {
			return nil
		}
		p.Clock.Sleep(ioRailPollInterval)
	}
	return hw.ErrTimeout
}

// IORailPowerOn takes the IO pads of the given rail out of deep power
// down and waits for the hardware to acknowledge.
func (p *PMC) IORailPowerOn(id IORail) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	request, status, mask, err := p.ioRailPrepare(id)
	if err != nil {
		return err
	}

	v := p.regs.Read32(request)
	v |= mask
	v &^= IO_DPD_REQ_CODE_MASK
	v |= IO_DPD_REQ_CODE_OFF
	p.regs.Write32(request, v)

	if err := p.ioRailPoll(status, mask, 0); err != nil {
		return fmt.Errorf("power on io rail %d: %w", id, err)
	}

	p.ioRailUnprepare()
	log.Debugf("Powered on io rail %d", id)
	return nil
}

// IORailPowerOff puts the IO pads of the given rail into deep power
// down.
func (p *PMC) IORailPowerOff(id IORail) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	request, status, mask, err := p.ioRailPrepare(id)
	if err != nil {
		return err
	}

	v := p.regs.Read32(request)
	v |= mask
	v &^= IO_DPD_REQ_CODE_MASK
	v |= IO_DPD_REQ_CODE_ON
	p.regs.Write32(request, v)

	if err := p.ioRailPoll(status, mask, mask); err != nil {
		return fmt.Errorf("power off io rail %d: %w", id, err)
	}

	p.ioRailUnprepare()
	log.Debugf("Powered off io rail %d", id)
	return nil
}
