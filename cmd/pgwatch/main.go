// Copyright 2021 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"flag"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/u-root/u-pmc/pkg/mmio"
	"github.com/u-root/u-pmc/pkg/pmc"
	"github.com/u-root/u-pmc/pkg/soc"
)

var (
	profile  = flag.String("profile", "tegra124", "SoC generation to watch")
	base     = flag.String("base", "0x7000e400", "Physical base address of the PMC registers")
	size     = flag.Int("size", 0x400, "Size of the PMC register block")
	interval = flag.Duration("interval", 100*time.Millisecond, "Delay between status polls")
)

type statusLog struct {
	powered map[soc.Powergate]bool
}

func newStatusLog(rows []pmc.PowergateStatus) *statusLog {
	l := &statusLog{powered: make(map[soc.Powergate]bool)}
	for _, row := range rows {
		state := "off"
		if row.Powered {
			state = "on"
		}
		log.Printf("%-9s %s\n", row.Name, state)
		l.powered[row.ID] = row.Powered
	}
	return l
}

func (l *statusLog) Log(rows []pmc.PowergateStatus) {
	for _, row := range rows {
		if l.powered[row.ID] == row.Powered {
			continue
		}
		state := "off"
		if row.Powered {
			state = "on"
		}
		log.Printf("%-9s turned %s\n", row.Name, state)
		l.powered[row.ID] = row.Powered
	}
}

func main() {
	flag.Parse()
	log.SetOutput(os.Stdout)

	s := soc.ByName(*profile)
	if s == nil {
		log.Fatalf("Unknown SoC profile %q", *profile)
	}
	addr, err := strconv.ParseInt(*base, 0, 64)
	if err != nil {
		log.Fatalf("Bad PMC base address %q: %v", *base, err)
	}

	m, err := mmio.Open(addr, *size)
	if err != nil {
		log.Fatalf("Failed to map PMC registers: %v", err)
	}
	defer m.Close()

	p := pmc.New(m, s)
	l := newStatusLog(p.Status())

	for {
		l.Log(p.Status())
		time.Sleep(*interval)
	}
}
