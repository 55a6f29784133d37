// Copyright 2018 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mmio

import (
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// DevMem is a Block backed by /dev/mem. The register bank is mapped
// once when opened and stays mapped until Close, mapping per access is
// too slow for the tight status polls the power sequencer runs.
type DevMem struct {
	f    *os.File
	mem  []byte
	head uint32
	size uint32
}

// Open maps size bytes of physical address space starting at base.
func Open(base int64, size int) (*DevMem, error) {
	f, err := os.OpenFile("/dev/mem", os.O_RDWR|os.O_SYNC, 0600)
	if err != nil {
		return nil, err
	}
	ps := int64(unix.Getpagesize())
	page := base & ^(ps - 1)
	head := int(base - page)
	mem, err := unix.Mmap(int(f.Fd()), page, head+size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("mmap of %#x failed: %w", base, err)
	}
	return &DevMem{f, mem, uint32(head), uint32(size)}, nil
}

func (m *DevMem) Read32(off uint32) uint32 {
	if off%4 != 0 || off+4 > m.size {
		panic(fmt.Sprintf("read outside register bank: %#x", off))
	}
	return *(*uint32)(unsafe.Pointer(&m.mem[m.head+off]))
}

func (m *DevMem) Write32(off uint32, v uint32) {
	if off%4 != 0 || off+4 > m.size {
		panic(fmt.Sprintf("write outside register bank: %#x", off))
	}
	*(*uint32)(unsafe.Pointer(&m.mem[m.head+off])) = v
}

func (m *DevMem) Close() error {
	if err := unix.Munmap(m.mem); err != nil {
		m.f.Close()
		return err
	}
	return m.f.Close()
}
