// Copyright 2018 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mmio

import (
	"fmt"
	"sync"
)

// Access is one recorded register operation on a Fake.
type Access struct {
	Write bool
	Off   uint32
	Data  uint32
}

func (a Access) String() string {
	t := "read"
	if a.Write {
		t = "write"
	}
	return fmt.Sprintf("{%s @ %04x = %08x}", t, a.Off, a.Data)
}

// Fake is an in memory Block for tests. Writes land in a register map
// and every access is recorded so tests can verify exact ordering.
// QueueRead injects transient values that are consumed before the
// stable register value, which is how tests model status bits that
// settle late or glitch.
type Fake struct {
	mu    sync.Mutex
	regs  map[uint32]uint32
	queue map[uint32][]uint32
	trace []Access
}

func NewFake() *Fake {
	return &Fake{regs: make(map[uint32]uint32), queue: make(map[uint32][]uint32)}
}

// Seed sets the stable value of a register without recording an access.
func (f *Fake) Seed(off uint32, v uint32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.regs[off] = v
}

// Peek returns the stable value of a register without recording a read.
func (f *Fake) Peek(off uint32) uint32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.regs[off]
}

// QueueRead queues transient read results for one register. Reads
// consume the queue in order before falling back to the stable value.
func (f *Fake) QueueRead(off uint32, vs ...uint32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queue[off] = append(f.queue[off], vs...)
}

// Pending reports how many queued transient reads are left unconsumed.
func (f *Fake) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, q := range f.queue {
		n += len(q)
	}
	return n
}

func (f *Fake) Read32(off uint32) uint32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	v := f.regs[off]
	if q := f.queue[off]; len(q) > 0 {
		v = q[0]
		f.queue[off] = q[1:]
	}
	f.trace = append(f.trace, Access{false, off, v})
	return v
}

func (f *Fake) Write32(off uint32, v uint32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.regs[off] = v
	f.trace = append(f.trace, Access{true, off, v})
}

// Trace returns a copy of all accesses recorded so far.
func (f *Fake) Trace() []Access {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := make([]Access, len(f.trace))
	copy(t, f.trace)
	return t
}

// Writes returns only the recorded writes, for tests that assert on
// mutation order and do not care about polling reads.
func (f *Fake) Writes() []Access {
	f.mu.Lock()
	defer f.mu.Unlock()
	var w []Access
	for _, a := range f.trace {
		if a.Write {
			w = append(w, a)
		}
	}
	return w
}

// ResetTrace drops the recorded accesses but keeps register state.
func (f *Fake) ResetTrace() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.trace = nil
}
