// Copyright 2021 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package board discovers the register layout and power domain list
// of the running board from its flattened device tree. The scan runs
// before any controller is built, so everything here works on the raw
// tree without touching hardware.
package board

import (
	"encoding/binary"
	"fmt"
	"sort"
	"strings"

	"github.com/platinasystems/fdt"
	"github.com/spf13/afero"

	"github.com/u-root/u-pmc/config"
	"github.com/u-root/u-pmc/pkg/hw"
	"github.com/u-root/u-pmc/pkg/logger"
	"github.com/u-root/u-pmc/pkg/mc"
	"github.com/u-root/u-pmc/pkg/pmc"
	"github.com/u-root/u-pmc/pkg/soc"
)

var log = logger.LogContainer.GetSimpleLogger()

// Fixed PMC region used when the tree has no usable PMC node.
const (
	FallbackPMCBase int64 = 0x7000e400
	FallbackPMCSize       = 0x400
)

// The tree walker assumes a well formed blob, so the magic is checked
// before anything else touches the bytes.
const fdtMagic = 0xd00dfeed

// Memory controllers whose flush handshake layout the mc package
// speaks.
var mcCompatibles = map[string][]mc.HotReset{
	"nvidia,tegra114-mc": mc.Tegra114HotResets,
	"nvidia,tegra124-mc": mc.Tegra114HotResets,
}

// Discovery is everything the early board scan learned.
type Discovery struct {
	// Profile is nil when no PMC node was found. Powergating stays
	// disabled then, only the scratch register surface is usable.
	Profile *soc.Profile

	PMCBase int64
	PMCSize int

	// MCBase is zero when the tree has no supported memory
	// controller.
	MCBase      int64
	MCSize      int
	MCHotResets []mc.HotReset

	InvertInterrupt bool
	SysclkReqHigh   bool

	SuspendMode pmc.SuspendMode
	Timing      pmc.SuspendTiming

	Domains []config.Domain
}

// Discover reads and scans the flattened device tree at path.
func Discover(path string) (*Discovery, error) {
	return discoverFs(afero.NewOsFs(), path)
}

func discoverFs(fs afero.Fs, path string) (*Discovery, error) {
	b, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("device tree %s: %w", path, err)
	}
	return DiscoverBlob(b)
}

// DiscoverBlob scans an in memory flattened device tree.
func DiscoverBlob(b []byte) (*Discovery, error) {
	if len(b) < 40 || binary.BigEndian.Uint32(b) != fdtMagic {
		return nil, fmt.Errorf("%w: not a flattened device tree", hw.ErrInvalidArgument)
	}
	t := &fdt.Tree{Debug: false, IsLittleEndian: false}
	if err := t.Parse(b); err != nil {
		return nil, fmt.Errorf("device tree parse: %w", err)
	}
	return DiscoverTree(t)
}

// DiscoverTree scans an already parsed tree.
func DiscoverTree(t *fdt.Tree) (*Discovery, error) {
	d := &Discovery{}

	var pmcNode, mcNode *fdt.Node
	var mcTable []mc.HotReset
	var domainNodes []*fdt.Node
	t.EachProperty("compatible", "", func(n *fdt.Node, name, value string) {
		for _, compat := range t.PropStringSlice(n.Properties["compatible"]) {
			if compat == "nvidia,power-domains" {
				domainNodes = append(domainNodes, n)
				continue
			}
			if p := soc.ByCompatible(compat); p != nil && pmcNode == nil {
				pmcNode, d.Profile = n, p
				continue
			}
			if hr, ok := mcCompatibles[compat]; ok && mcNode == nil {
				mcNode, mcTable = n, hr
			}
		}
	})

	if pmcNode == nil {
		log.Warnf("PMC device node not found, disabling powergating")
		d.PMCBase = FallbackPMCBase
		d.PMCSize = FallbackPMCSize
		log.Warnf("Using memory region %#x-%#x", d.PMCBase, d.PMCBase+int64(d.PMCSize)-1)
		return d, nil
	}

	base, size, err := regRegion(t, pmcNode)
	if err != nil {
		return nil, err
	}
	d.PMCBase, d.PMCSize = base, size

	_, d.InvertInterrupt = pmcNode.Properties["nvidia,invert-interrupt"]
	_, d.SysclkReqHigh = pmcNode.Properties["nvidia,sys-clock-req-active-high"]
	d.SuspendMode, d.Timing = parseSuspend(t, pmcNode)

	if mcNode != nil {
		base, size, err := regRegion(t, mcNode)
		if err != nil {
			return nil, err
		}
		d.MCBase, d.MCSize, d.MCHotResets = base, size, mcTable
	}

	phandles := phandleIndex(t)
	for _, n := range domainNodes {
		dom, err := parseDomain(t, n, phandles)
		if err != nil {
			return nil, err
		}
		d.Domains = append(d.Domains, dom)
	}
	sort.Slice(d.Domains, func(i, j int) bool {
		if d.Domains[i].ID != d.Domains[j].ID {
			return d.Domains[i].ID < d.Domains[j].ID
		}
		return d.Domains[i].Name < d.Domains[j].Name
	})

	return d, nil
}

// ApplyEarly programs what has to hit the hardware before any other
// setup, which is just the interrupt polarity the firmware expects.
// Nothing is written when discovery ran on the fallback region, the
// polarity bit would be a guess there.
func (d *Discovery) ApplyEarly(p *pmc.PMC) {
	if d.Profile == nil {
		return
	}
	p.SetInterruptPolarity(d.InvertInterrupt)
}

// regRegion decodes a reg property with either one or two cells per
// address. Tegra buses map registers identity, so no ranges walk.
func regRegion(t *fdt.Tree, n *fdt.Node) (int64, int, error) {
	raw, ok := n.Properties["reg"]
	if !ok {
		return 0, 0, fmt.Errorf("%w: node %s has no reg property", hw.ErrInvalidArgument, n.Name)
	}
	cells := t.PropUint32Slice(raw)
	switch len(cells) {
	case 2:
		return int64(cells[0]), int(cells[1]), nil
	case 4:
		base := int64(cells[0])<<32 | int64(cells[1])
		size := int64(cells[2])<<32 | int64(cells[3])
		return base, int(size), nil
	}
	return 0, 0, fmt.Errorf("%w: node %s has an unsupported reg layout", hw.ErrInvalidArgument, n.Name)
}

func parseSuspend(t *fdt.Tree, n *fdt.Node) (pmc.SuspendMode, pmc.SuspendTiming) {
	mode := pmc.SuspendNone
	if raw, ok := n.Properties["nvidia,suspend-mode"]; ok && len(raw) == 4 {
		switch t.PropUint32(raw) {
		case 0:
			mode = pmc.SuspendLP0
		case 1:
			mode = pmc.SuspendLP1
		case 2:
			mode = pmc.SuspendLP2
		}
	}

	var timing pmc.SuspendTiming
	complete := true
	read := func(name string) uint32 {
		raw, ok := n.Properties[name]
		if !ok || len(raw) != 4 {
			complete = false
			return 0
		}
		return t.PropUint32(raw)
	}
	timing.CPUGoodTime = read("nvidia,cpu-pwr-good-time")
	timing.CPUOffTime = read("nvidia,cpu-pwr-off-time")
	if raw, ok := n.Properties["nvidia,core-pwr-good-time"]; ok && len(raw) == 8 {
		v := t.PropUint32Slice(raw)
		timing.CoreOscTime, timing.CorePMUTime = v[0], v[1]
	} else {
		complete = false
	}
	timing.CoreOffTime = read("nvidia,core-pwr-off-time")

	// Suspend without a full set of delays is not safe to attempt.
	if !complete {
		mode = pmc.SuspendNone
	}

	// The deepest state needs the warm boot vector from firmware.
	if mode == pmc.SuspendLP0 {
		if _, ok := n.Properties["nvidia,lp0-vec"]; !ok {
			mode = pmc.SuspendLP1
		}
	}
	return mode, timing
}

func phandleIndex(t *fdt.Tree) map[uint32]*fdt.Node {
	idx := make(map[uint32]*fdt.Node)
	add := func(n *fdt.Node, name, value string) {
		raw := n.Properties[name]
		if len(raw) == 4 {
			idx[t.PropUint32(raw)] = n
		}
	}
	t.EachProperty("phandle", "", add)
	t.EachProperty("linux,phandle", "", add)
	return idx
}

func parseDomain(t *fdt.Tree, n *fdt.Node, phandles map[uint32]*fdt.Node) (config.Domain, error) {
	var d config.Domain

	d.Name = nodeName(t, n)
	if d.Name == "" {
		return d, fmt.Errorf("%w: power domain node %s has no name", hw.ErrInvalidArgument, n.Name)
	}

	raw, ok := n.Properties["domain"]
	if !ok || len(raw) != 4 {
		return d, fmt.Errorf("%w: power domain %s has no partition id", hw.ErrInvalidArgument, d.Name)
	}
	d.ID = t.PropUint32(raw)

	d.Clocks = propNames(t, n, "clock-names")
	d.Resets = propNames(t, n, "reset-names")
	d.Groups = propNames(t, n, "swgroup-names")

	if _, ok := n.Properties["external-power-rail"]; ok {
		rail, err := railName(t, n, phandles)
		if err != nil {
			return d, err
		}
		d.Rail = rail
	}

	if raw, ok := n.Properties["depend-on"]; ok {
		if len(raw) != 4 {
			return d, fmt.Errorf("%w: domain %s has a malformed depend-on", hw.ErrInvalidArgument, d.Name)
		}
		pn, ok := phandles[t.PropUint32(raw)]
		if !ok {
			return d, fmt.Errorf("%w: depend-on of domain %s points outside the tree", hw.ErrInvalidArgument, d.Name)
		}
		d.DependsOn = nodeName(t, pn)
	}

	_, d.ExternalClocks = n.Properties["external-clocks"]

	return d, nil
}

// nodeName prefers the name property and falls back to the node name
// with the unit address stripped.
func nodeName(t *fdt.Tree, n *fdt.Node) string {
	if raw, ok := n.Properties["name"]; ok {
		if name := t.PropString(raw); name != "" {
			return name
		}
	}
	name := n.Name
	if i := strings.IndexByte(name, '@'); i >= 0 {
		name = name[:i]
	}
	return name
}

// railName resolves the standard regulator reference to the name the
// rail provider hands the supply out under.
func railName(t *fdt.Tree, n *fdt.Node, phandles map[uint32]*fdt.Node) (string, error) {
	raw, ok := n.Properties["vdd-supply"]
	if !ok || len(raw) != 4 {
		return "", fmt.Errorf("%w: domain %s has an external rail but no vdd-supply", hw.ErrInvalidArgument, nodeName(t, n))
	}
	rn, ok := phandles[t.PropUint32(raw)]
	if !ok {
		return "", fmt.Errorf("%w: vdd-supply of domain %s points outside the tree", hw.ErrInvalidArgument, nodeName(t, n))
	}
	if raw, ok := rn.Properties["regulator-name"]; ok {
		if name := t.PropString(raw); name != "" {
			return name, nil
		}
	}
	return nodeName(t, rn), nil
}

// propNames reads a device tree string list property. A trailing NUL
// in the raw value shows up as an empty element, which ends the list.
func propNames(t *fdt.Tree, n *fdt.Node, prop string) []string {
	raw, ok := n.Properties[prop]
	if !ok {
		return nil
	}
	var out []string
	for _, s := range t.PropStringSlice(raw) {
		if s == "" {
			break
		}
		out = append(out, s)
	}
	return out
}
