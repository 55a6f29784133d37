// Copyright 2021 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/u-root/u-pmc/pkg/mmio"
	"github.com/u-root/u-pmc/pkg/pmc"
	"github.com/u-root/u-pmc/pkg/soc"
)

var (
	profile = flag.String("profile", "tegra124", "SoC generation to drive")
	base    = flag.String("base", "0x7000e400", "Physical base address of the PMC registers")
	size    = flag.Int("size", 0x400, "Size of the PMC register block")
	pclk    = flag.Uint64("pclk", 204000000, "APB clock rate in Hz, used for the IO rail sample window")
)

func usage() {
	fmt.Fprintf(os.Stderr, "usage: pgctl [flags] [command]\n\n")
	fmt.Fprintf(os.Stderr, "commands:\n")
	fmt.Fprintf(os.Stderr, "  status                partition gate states (default)\n")
	fmt.Fprintf(os.Stderr, "  unclamp <partition>   release the IO clamps of a partition\n")
	fmt.Fprintf(os.Stderr, "  cpu on <n>            power up a secondary CPU partition\n")
	fmt.Fprintf(os.Stderr, "  rail on|off <id>      IO rail deep power down control\n")
	fmt.Fprintf(os.Stderr, "  restart [mode]        reboot in normal, recovery, bootloader or\n")
	fmt.Fprintf(os.Stderr, "                        forced-recovery mode\n\n")
	flag.PrintDefaults()
	os.Exit(2)
}

func main() {
	flag.Usage = usage
	flag.Parse()

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
	p.PClkRate = *pclk

	switch flag.Arg(0) {
	case "", "status":
		status(p)
	case "unclamp":
		unclamp(p, s, flag.Arg(1))
	case "cpu":
		cpu(p, flag.Arg(1), flag.Arg(2))
	case "rail":
		rail(p, flag.Arg(1), flag.Arg(2))
	case "restart":
		restart(p, flag.Arg(1))
	default:
		usage()
	}
}

func status(p *pmc.PMC) {
	fmt.Printf(" powergate powered\n")
	fmt.Printf("------------------\n")
	for _, row := range p.Status() {
		state := "no"
		if row.Powered {
			state = "yes"
		}
		fmt.Printf(" %9s %7s\n", row.Name, state)
	}
}

func unclamp(p *pmc.PMC, s *soc.Profile, name string) {
	if name == "" {
		usage()
	}
	id, ok := s.PowergateByName(name)
	if !ok {
		log.Fatalf("No partition %q on %s", name, s.Name)
	}
	if err := p.RemoveClamping(id); err != nil {
		log.Fatalf("Failed to remove clamping on %s: %v", name, err)
	}
	fmt.Printf("Removed clamping on %s\n", name)
}

func cpu(p *pmc.PMC, op, arg string) {
	if op != "on" || arg == "" {
		usage()
	}
	n, err := strconv.Atoi(arg)
	if err != nil {
		log.Fatalf("Bad CPU number %q: %v", arg, err)
	}
	if err := p.CPUPowerOn(n); err != nil {
		log.Fatalf("Failed to power on CPU %d: %v", n, err)
	}
	if err := p.CPURemoveClamping(n); err != nil {
		log.Fatalf("Failed to remove clamping on CPU %d: %v", n, err)
	}
	fmt.Printf("CPU %d powered on\n", n)
}

func rail(p *pmc.PMC, op, arg string) {
	if arg == "" {
		usage()
	}
	n, err := strconv.Atoi(arg)
	if err != nil {
		log.Fatalf("Bad IO rail id %q: %v", arg, err)
	}
	id := pmc.IORail(n)
	switch op {
	case "on":
		err = p.IORailPowerOn(id)
	case "off":
		err = p.IORailPowerOff(id)
	default:
		usage()
	}
	if err != nil {
		log.Fatalf("IO rail %d: %v", n, err)
	}
	fmt.Printf("IO rail %d %s\n", n, op)
}

func restart(p *pmc.PMC, arg string) {
	mode, err := pmc.RestartModeFromString(arg)
	if err != nil {
		log.Fatalf("%v", err)
	}
	if err := p.Restart(mode); err != nil {
		log.Fatalf("Failed to restart: %v", err)
	}
	// The main reset is in flight, hardware takes it from here.
}
