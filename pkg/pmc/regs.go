// Copyright 2021 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pmc

// PMC register map, offsets from the PMC base.
const (
	PMC_CNTRL                     uint32 = 0x000
	PMC_CNTRL_MAIN_RST            uint32 = 1 << 4
	PMC_CNTRL_SYSCLK_POLARITY     uint32 = 1 << 10
	PMC_CNTRL_SYSCLK_OE           uint32 = 1 << 11
	PMC_CNTRL_SIDE_EFFECT_LP0     uint32 = 1 << 14
	PMC_CNTRL_CPU_PWRREQ_POLARITY uint32 = 1 << 15
	PMC_CNTRL_CPU_PWRREQ_OE       uint32 = 1 << 16
	PMC_CNTRL_INTR_POLARITY       uint32 = 1 << 17

	DPD_SAMPLE        uint32 = 0x020
	DPD_SAMPLE_ENABLE uint32 = 1 << 0

	PWRGATE_TOGGLE       uint32 = 0x030
	PWRGATE_TOGGLE_START uint32 = 1 << 8

	REMOVE_CLAMPING uint32 = 0x034

	PWRGATE_STATUS uint32 = 0x038

	PMC_SCRATCH0                 uint32 = 0x050
	PMC_SCRATCH0_MODE_RECOVERY   uint32 = 1 << 31
	PMC_SCRATCH0_MODE_BOOTLOADER uint32 = 1 << 30
	PMC_SCRATCH0_MODE_RCM        uint32 = 1 << 1
	PMC_SCRATCH0_MODE_MASK       uint32 = PMC_SCRATCH0_MODE_RECOVERY |
		PMC_SCRATCH0_MODE_BOOTLOADER | PMC_SCRATCH0_MODE_RCM

	PMC_CPUPWRGOOD_TIMER uint32 = 0x0c8
	PMC_CPUPWROFF_TIMER  uint32 = 0x0cc

	PMC_SCRATCH41 uint32 = 0x140

	PMC_SENSOR_CTRL               uint32 = 0x1b0
	PMC_SENSOR_CTRL_ENABLE_RST    uint32 = 1 << 1
	PMC_SENSOR_CTRL_SCRATCH_WRITE uint32 = 1 << 2

	IO_DPD_REQ           uint32 = 0x1b8
	IO_DPD_REQ_CODE_OFF  uint32 = 1 << 30
	IO_DPD_REQ_CODE_ON   uint32 = 2 << 30
	IO_DPD_REQ_CODE_MASK uint32 = 3 << 30

	IO_DPD_STATUS  uint32 = 0x1bc
	IO_DPD2_REQ    uint32 = 0x1c0
	IO_DPD2_STATUS uint32 = 0x1c4
	SEL_DPD_TIM    uint32 = 0x1c8

	PMC_SCRATCH54            uint32 = 0x258
	PMC_SCRATCH54_DATA_SHIFT        = 8
	PMC_SCRATCH54_ADDR_SHIFT        = 0

	PMC_SCRATCH55                uint32 = 0x25c
	PMC_SCRATCH55_RESET_TEGRA    uint32 = 1 << 31
	PMC_SCRATCH55_CNTRL_ID_SHIFT        = 27
	PMC_SCRATCH55_PINMUX_SHIFT          = 24
	PMC_SCRATCH55_16BITOP        uint32 = 1 << 15
	PMC_SCRATCH55_CHECKSUM_SHIFT        = 16
	PMC_SCRATCH55_I2CSLV1_SHIFT         = 0

	GPU_RG_CNTRL uint32 = 0x2d4
)
