// Copyright 2021 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/u-root/u-pmc/pkg/metric"
	"github.com/u-root/u-pmc/pkg/pmc"
)

var (
	poweredGauge = metric.GaugeVec(metric.MetricOpts{
		Namespace: "upmc",
		Subsystem: "domain",
		Name:      "powered",
		Help:      "Whether the power domain is powered right now.",
	}, []string{"domain"})

	requestedTransitions = metric.CounterVec(metric.MetricOpts{
		Namespace: "upmc",
		Subsystem: "domain",
		Name:      "requested_transitions_total",
		Help:      "Power transitions requested over the control surface.",
	}, []string{"domain", "state"})

	observedTransitions = metric.CounterVec(metric.MetricOpts{
		Namespace: "upmc",
		Subsystem: "domain",
		Name:      "observed_transitions_total",
		Help:      "Gate state changes the monitor noticed without a request.",
	}, []string{"domain", "state"})

	flushSeconds = metric.HistogramVec(metric.MetricOpts{
		Namespace: "upmc",
		Subsystem: "mc",
		Name:      "flush_seconds",
		Help:      "Time to drain one memory client group.",
	}, prometheus.ExponentialBuckets(1e-6, 4, 10), []string{"group"})
)

func observeFlush(group string, d time.Duration) {
	flushSeconds.WithLabelValues(group).Observe(d.Seconds())
}

// registerHandlers mounts the status and control surface next to the
// metrics handler.
func (s *System) registerHandlers(mux *http.ServeMux) {
	mux.HandleFunc("/powergates", s.handlePowergates)
	mux.HandleFunc("/domains", s.handleDomains)
	mux.HandleFunc("/domains/", s.handleDomainPower)
}

// handlePowergates prints the partition table in the layout the
// kernel exposes through debugfs, so existing tooling can keep
// scraping it.
func (s *System) handlePowergates(w http.ResponseWriter, r *http.Request) {
	if s.Registry == nil {
		http.Error(w, "powergating disabled", http.StatusServiceUnavailable)
		return
	}
	fmt.Fprint(w, " powergate powered\n")
	fmt.Fprint(w, "------------------\n")
	for _, st := range s.PMC.Status() {
		state := "no"
		if st.Powered {
			state = "yes"
		}
		fmt.Fprintf(w, " %9s %7s\n", st.Name, state)
	}
}

// handleDomains lists the registered domains as JSON.
func (s *System) handleDomains(w http.ResponseWriter, r *http.Request) {
	if s.Registry == nil {
		http.Error(w, "powergating disabled", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.Registry.Status()); err != nil {
		log.Warnf("Couldn't encode domain status: %v", err)
	}
}

// handleDomainPower drives one domain to a requested state:
// POST /domains/<name>/<on|off>.
func (s *System) handleDomainPower(w http.ResponseWriter, r *http.Request) {
	if s.Registry == nil {
		http.Error(w, "powergating disabled", http.StatusServiceUnavailable)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}
	parts := strings.SplitN(strings.TrimPrefix(r.URL.Path, "/domains/"), "/", 2)
	if len(parts) != 2 {
		http.Error(w, "want /domains/<name>/<on|off>", http.StatusNotFound)
		return
	}
	d, err := s.Registry.DomainByName(parts[0])
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	switch parts[1] {
	case "on":
		err = d.PowerOn()
	case "off":
		err = d.PowerOff()
	default:
		http.Error(w, "want /domains/<name>/<on|off>", http.StatusNotFound)
		return
	}
	if err != nil {
		if errors.Is(err, pmc.ErrAlwaysOn) {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	requestedTransitions.WithLabelValues(d.Name(), parts[1]).Inc()
	s.noteRequested(d.Name(), parts[1] == "on")
	fmt.Fprintf(w, "%s %s\n", d.Name(), parts[1])
}

// noteRequested folds a transition this daemon made into the exported
// state, so the monitor does not report it again as an outside change.
func (s *System) noteRequested(name string, on bool) {
	v := 0.0
	if on {
		v = 1
	}
	poweredGauge.WithLabelValues(name).Set(v)
	s.mu.Lock()
	s.lastPowered[name] = on
	s.mu.Unlock()
}
