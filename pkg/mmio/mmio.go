// Copyright 2018 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package mmio accesses memory mapped hardware registers.
package mmio

// A Block is a bank of 32 bit hardware registers addressed by byte
// offset from the bank base. Implementations guarantee that a Read32
// issued after a Write32 on the same Block observes the completed
// write, so protocol code uses a register read back as its write fence.
type Block interface {
	Read32(off uint32) uint32
	Write32(off uint32, v uint32)
}
