// Copyright 2021 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pmc

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jpillora/backoff"

	"github.com/u-root/u-pmc/pkg/hw"
	"github.com/u-root/u-pmc/pkg/mc"
	"github.com/u-root/u-pmc/pkg/soc"
)

// railRetries bounds how often registration waits for a rail driver
// that has not come up yet. After that the handle is fetched lazily
// on first use.
const railRetries = 5

// DomainConfig describes one power domain to register. The capability
// lists carry provider names, resolution happens at registry build
// time. An empty Rail means the domain switches its partition gate, a
// non empty one names an external supply instead.
type DomainConfig struct {
	Name string
	ID   soc.Powergate

	Clocks []string
	Resets []string
	Groups []string

	// DependsOn names the parent domain this one requires, for
	// bookkeeping and diagnostics.
	DependsOn string

	Rail           string
	ExternalClocks bool
}

// Providers bundles the capability sources domains are resolved
// against. Rails may be nil when no domain names a rail.
type Providers struct {
	Clocks hw.ClockProvider
	Resets hw.ResetProvider
	Rails  hw.RailProvider
}

// Registry holds the registered power domains of one PMC.
type Registry struct {
	pmc    *PMC
	byID   map[soc.Powergate]*Domain
	byName map[string]*Domain
	order  []*Domain
}

// DomainStatus is one row of the diagnostic listing.
type DomainStatus struct {
	Name    string
	Powered bool
}

// BuildRegistry resolves the configured domains against the providers
// and registers them. Every domain that can be sequenced is powered
// off once so that software and hardware state agree, then the
// initial state is taken from the hardware. A rail that is not ready
// yet only produces a warning, acquisition is retried on first use.
func BuildRegistry(p *PMC, m *mc.MC, prov Providers, configs []DomainConfig) (*Registry, error) {
	r := &Registry{
		pmc:    p,
		byID:   make(map[soc.Powergate]*Domain),
		byName: make(map[string]*Domain),
	}

	for i := range configs {
		cfg := &configs[i]
		if cfg.Name == "" {
			return nil, fmt.Errorf("%w: power domain without a name", hw.ErrInvalidArgument)
		}
		if !p.profile.Valid(cfg.ID) {
			return nil, fmt.Errorf("%w: no partition %d on %s for domain %s",
				hw.ErrInvalidArgument, cfg.ID, p.profile.Name, cfg.Name)
		}
		if _, ok := r.byID[cfg.ID]; ok {
			return nil, fmt.Errorf("%w: partition %s registered twice",
				hw.ErrInvalidArgument, p.profile.PowergateName(cfg.ID))
		}
		if _, ok := r.byName[cfg.Name]; ok {
			return nil, fmt.Errorf("%w: duplicate domain name %s", hw.ErrInvalidArgument, cfg.Name)
		}

		d := &Domain{
			pmc:           p,
			id:            cfg.ID,
			name:          cfg.Name,
			railName:      cfg.Rail,
			rails:         prov.Rails,
			externClocked: cfg.ExternalClocks,
		}

		if cfg.Rail != "" {
			if prov.Rails == nil {
				return nil, fmt.Errorf("domain %s: no rail provider for rail %s", cfg.Name, cfg.Rail)
			}
			rail, err := r.acquireRail(prov.Rails, cfg.Rail)
			if err != nil {
				// The rail driver might not be up yet. Warn and keep
				// going, the handle is fetched again on first use.
				log.Warnf("Couldn't locate rail %s for domain %s: %v", cfg.Rail, cfg.Name, err)
			} else {
				d.rail = rail
			}
		}

		for _, name := range cfg.Clocks {
			c, err := prov.Clocks.Clock(name)
			if err != nil {
				return nil, fmt.Errorf("domain %s: %w", cfg.Name, err)
			}
			d.clocks = append(d.clocks, c)
		}
		for _, name := range cfg.Resets {
			rst, err := prov.Resets.Reset(name)
			if err != nil {
				return nil, fmt.Errorf("domain %s: %w", cfg.Name, err)
			}
			d.resets = append(d.resets, rst)
		}
		for _, name := range cfg.Groups {
			if m == nil {
				return nil, fmt.Errorf("domain %s: no memory controller for client group %s", cfg.Name, name)
			}
			g, err := m.GroupByName(name)
			if err != nil {
				return nil, fmt.Errorf("domain %s: %w", cfg.Name, err)
			}
			d.groups = append(d.groups, g)
		}

		r.byID[d.id] = d
		r.byName[d.name] = d
		r.order = append(r.order, d)

		// Force a known state, except for rail domains whose rail is
		// still missing. Always on partitions refuse, that is fine.
		if d.railName == "" || d.rail != nil {
			if err := d.PowerOff(); err != nil {
				if errors.Is(err, ErrAlwaysOn) {
					log.Debugf("Leaving always-on domain %s powered", d.name)
				} else {
					log.Warnf("Couldn't normalize domain %s to off: %v", d.name, err)
				}
			}
		}

		powered, err := d.IsPowered()
		if err != nil {
			return nil, fmt.Errorf("domain %s: %w", d.name, err)
		}
		if powered {
			d.setState(On)
		} else {
			d.setState(Off)
		}

		log.Infof("Added power domain %s", d.name)
	}

	for i := range configs {
		cfg := &configs[i]
		if cfg.DependsOn == "" {
			continue
		}
		child := r.byName[cfg.Name]
		parent, ok := r.byName[cfg.DependsOn]
		if !ok || parent == child {
			return nil, fmt.Errorf("%w: domain %s depends on unknown domain %s",
				hw.ErrInvalidArgument, cfg.Name, cfg.DependsOn)
		}
		child.parent = parent
		parent.children = append(parent.children, child)
	}

	sort.Slice(r.order, func(i, j int) bool { return r.order[i].id < r.order[j].id })
	log.Infof("%d power domains added", len(r.order))
	return r, nil
}

func (r *Registry) acquireRail(rails hw.RailProvider, name string) (hw.Rail, error) {
	b := &backoff.Backoff{
		Min:    10 * time.Millisecond,
		Max:    160 * time.Millisecond,
		Factor: 2,
	}
	for {
		rail, err := rails.Rail(name)
		if err == nil {
			return rail, nil
		}
		if !errors.Is(err, hw.ErrNotReady) {
			return nil, err
		}
		if b.Attempt() >= railRetries {
			return nil, err
		}
		r.pmc.Clock.Sleep(b.Duration())
	}
}

// Domain returns the domain registered for the given partition, or an
// error when the id is unknown.
func (r *Registry) Domain(id soc.Powergate) (*Domain, error) {
	d, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: no domain for partition %d", hw.ErrInvalidArgument, id)
	}
	return d, nil
}

// DomainByName returns the domain with the given name, or an error.
func (r *Registry) DomainByName(name string) (*Domain, error) {
	d, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: no domain named %q", hw.ErrInvalidArgument, name)
	}
	return d, nil
}

// Domains lists the registered domains in partition id order.
func (r *Registry) Domains() []*Domain {
	out := make([]*Domain, len(r.order))
	copy(out, r.order)
	return out
}

// Status reports name and powered state of every registered domain,
// in partition id order.
func (r *Registry) Status() []DomainStatus {
	out := make([]DomainStatus, 0, len(r.order))
	for _, d := range r.order {
		powered, err := d.IsPowered()
		if err != nil {
			powered = false
		}
		out = append(out, DomainStatus{Name: d.name, Powered: powered})
	}
	return out
}
