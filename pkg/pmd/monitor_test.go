// Copyright 2021 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pmd

import (
	"context"
	"testing"

	"github.com/u-root/u-pmc/pkg/pmc"
)

func TestRefreshTracksOutsideChanges(t *testing.T) {
	s, mm := testSystem(t)
	defer s.Close()

	s.refresh()
	if s.lastPowered["vdec"] {
		t.Error("vdec tracked as powered after normalization")
	}
	if !s.lastPowered["cpu"] {
		t.Error("cpu tracked as unpowered")
	}

	// Someone powers vdec up behind our back.
	mm.fake(s.conf.PMCBase).Seed(pmc.PWRGATE_STATUS, 1<<0|1<<4)
	s.refresh()
	if !s.lastPowered["vdec"] {
		t.Error("refresh missed the outside power on")
	}
}

func TestMonitorIdlesWithoutRegistry(t *testing.T) {
	s := &System{}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.monitor(ctx) }()
	cancel()
	if err := <-done; err != nil {
		t.Errorf("monitor = %v", err)
	}
}
