// Copyright 2021 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pmd

import (
	"context"
	"time"
)

// monitorInterval paces the export of gate states to the metrics
// surface.
const monitorInterval = 10 * time.Second

// monitor keeps the exported gate states current and reports changes
// that did not come through this daemon, like a partition a firmware
// agent toggled behind our back.
func (s *System) monitor(ctx context.Context) error {
	if s.Registry == nil {
		<-ctx.Done()
		return nil
	}
	s.refresh()
	t := time.NewTicker(monitorInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			s.refresh()
		}
	}
}

func (s *System) refresh() {
	status := s.Registry.Status()

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, st := range status {
		v := 0.0
		if st.Powered {
			v = 1
		}
		poweredGauge.WithLabelValues(st.Name).Set(v)

		prev, seen := s.lastPowered[st.Name]
		if seen && prev != st.Powered {
			state := "off"
			if st.Powered {
				state = "on"
			}
			log.Infof("Power domain %s turned %s", st.Name, state)
			observedTransitions.WithLabelValues(st.Name, state).Inc()
		}
		s.lastPowered[st.Name] = st.Powered
	}
}
