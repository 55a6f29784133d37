// Copyright 2021 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pmd

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"

	"github.com/u-root/u-pmc/pkg/pmc"
)

func statusMux(s *System) *http.ServeMux {
	mux := http.NewServeMux()
	s.registerHandlers(mux)
	return mux
}

func do(mux *http.ServeMux, method, path string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(method, path, nil))
	return rr
}

func TestPowergateTable(t *testing.T) {
	s, _ := testSystem(t)
	defer s.Close()
	mux := statusMux(s)

	rr := do(mux, "GET", "/powergates")
	if rr.Code != http.StatusOK {
		t.Fatalf("GET /powergates = %d", rr.Code)
	}
	body := rr.Body.String()
	if !strings.HasPrefix(body, " powergate powered\n------------------\n") {
		t.Errorf("table header missing:\n%s", body)
	}
	if !strings.Contains(body, "     crail     yes\n") {
		t.Errorf("crail row missing:\n%s", body)
	}
	if !strings.Contains(body, "      vdec      no\n") {
		t.Errorf("vdec row missing:\n%s", body)
	}
}

func TestDomainListJSON(t *testing.T) {
	s, _ := testSystem(t)
	defer s.Close()
	mux := statusMux(s)

	rr := do(mux, "GET", "/domains")
	if rr.Code != http.StatusOK {
		t.Fatalf("GET /domains = %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	var got []pmc.DomainStatus
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	want := []pmc.DomainStatus{
		{Name: "cpu", Powered: true},
		{Name: "vdec", Powered: false},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("domains = %+v, want %+v", got, want)
	}
}

func TestDomainPowerCycle(t *testing.T) {
	s, mm := testSystem(t)
	defer s.Close()
	mux := statusMux(s)
	f := mm.fake(s.conf.PMCBase)

	// The gate follows the on request immediately.
	f.Seed(pmc.PWRGATE_STATUS, 1<<0|1<<4)
	rr := do(mux, "POST", "/domains/vdec/on")
	if rr.Code != http.StatusOK {
		t.Fatalf("POST on = %d: %s", rr.Code, rr.Body.String())
	}
	if rr.Body.String() != "vdec on\n" {
		t.Errorf("body = %q", rr.Body.String())
	}
	d, err := s.Registry.DomainByName("vdec")
	if err != nil {
		t.Fatalf("DomainByName: %v", err)
	}
	if d.State() != pmc.On {
		t.Errorf("state after on = %v", d.State())
	}

	// For the off request the first status read still shows the
	// partition up, after the toggle the gate reads off.
	f.Seed(pmc.PWRGATE_STATUS, 1<<0)
	f.QueueRead(pmc.PWRGATE_STATUS, 1<<0|1<<4)
	rr = do(mux, "POST", "/domains/vdec/off")
	if rr.Code != http.StatusOK {
		t.Fatalf("POST off = %d: %s", rr.Code, rr.Body.String())
	}
	if d.State() != pmc.Off {
		t.Errorf("state after off = %v", d.State())
	}
}

func TestDomainPowerErrors(t *testing.T) {
	s, _ := testSystem(t)
	defer s.Close()
	mux := statusMux(s)

	for _, tc := range []struct {
		method, path string
		code         int
	}{
		{"POST", "/domains/cpu/off", http.StatusConflict},
		{"POST", "/domains/nosuch/on", http.StatusNotFound},
		{"POST", "/domains/vdec/sideways", http.StatusNotFound},
		{"POST", "/domains/vdec", http.StatusNotFound},
		{"GET", "/domains/vdec/on", http.StatusMethodNotAllowed},
	} {
		if rr := do(mux, tc.method, tc.path); rr.Code != tc.code {
			t.Errorf("%s %s = %d, want %d", tc.method, tc.path, rr.Code, tc.code)
		}
	}
}

func TestHandlersWithoutRegistry(t *testing.T) {
	mux := statusMux(&System{})

	for _, path := range []string{"/powergates", "/domains"} {
		if rr := do(mux, "GET", path); rr.Code != http.StatusServiceUnavailable {
			t.Errorf("GET %s = %d, want 503", path, rr.Code)
		}
	}
	if rr := do(mux, "POST", "/domains/vdec/on"); rr.Code != http.StatusServiceUnavailable {
		t.Errorf("POST = %d, want 503", rr.Code)
	}
}
