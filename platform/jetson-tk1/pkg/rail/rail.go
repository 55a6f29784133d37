// Copyright 2021 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package rail drives board regulators through the kernel's userspace
// regulator consumer interface. Each rail maps to a platform device
// directory whose state file takes "enabled" or "disabled".
package rail

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/u-root/u-pmc/pkg/hw"
)

// Provider hands out the rails of one board by name.
type Provider struct {
	fs    afero.Fs
	paths map[string]string
}

// NewProvider builds a provider over the given rail name to device
// directory table.
func NewProvider(paths map[string]string) *Provider {
	return newProviderFs(afero.NewOsFs(), paths)
}

func newProviderFs(fs afero.Fs, paths map[string]string) *Provider {
	return &Provider{fs: fs, paths: paths}
}

// Rail looks up a board rail. A rail whose regulator driver has not
// bound yet reports ErrNotReady, callers retry the acquisition.
func (p *Provider) Rail(name string) (hw.Rail, error) {
	dir, ok := p.paths[name]
	if !ok {
		return nil, fmt.Errorf("%w: no rail %q on this board", hw.ErrInvalidArgument, name)
	}
	exists, err := afero.DirExists(p.fs, dir)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("regulator for rail %s: %w", name, hw.ErrNotReady)
	}
	return &sysfsRail{fs: p.fs, name: name, state: filepath.Join(dir, "state")}, nil
}

type sysfsRail struct {
	fs    afero.Fs
	name  string
	state string
}

func (r *sysfsRail) Name() string {
	return r.name
}

func (r *sysfsRail) Enable() error {
	return afero.WriteFile(r.fs, r.state, []byte("enabled\n"), 0644)
}

func (r *sysfsRail) Disable() error {
	return afero.WriteFile(r.fs, r.state, []byte("disabled\n"), 0644)
}

func (r *sysfsRail) IsEnabled() (bool, error) {
	b, err := afero.ReadFile(r.fs, r.state)
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(string(b)) == "enabled", nil
}
