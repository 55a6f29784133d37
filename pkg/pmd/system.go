// Copyright 2021 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package pmd assembles and runs the power management daemon. It
// scans the board's device tree, maps the controller register banks,
// builds the power domain registry and serves the status and control
// surface.
package pmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/jpillora/backoff"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	"github.com/u-root/u-pmc/config"
	"github.com/u-root/u-pmc/pkg/board"
	"github.com/u-root/u-pmc/pkg/car"
	"github.com/u-root/u-pmc/pkg/hw"
	"github.com/u-root/u-pmc/pkg/logger"
	"github.com/u-root/u-pmc/pkg/mc"
	"github.com/u-root/u-pmc/pkg/metric"
	"github.com/u-root/u-pmc/pkg/mmio"
	"github.com/u-root/u-pmc/pkg/pmc"
	"github.com/u-root/u-pmc/pkg/soc"
)

var log = logger.LogContainer.GetSimpleLogger()

const banner = `
██╗   ██╗      ██████╗ ███╗   ███╗ ██████╗
██║   ██║      ██╔══██╗████╗ ████║██╔════╝
██║   ██║█████╗██████╔╝██╔████╔██║██║
██║   ██║╚════╝██╔═══╝ ██║╚██╔╝██║██║
╚██████╔╝      ██║     ██║ ╚═╝ ██║╚██████╗
 ╚═════╝       ╚═╝     ╚═╝     ╚═╝ ╚═════╝
 `

// Platform is what a board port provides to the daemon.
type Platform interface {
	// InitializeSystem runs early board setup, before any register
	// bank is mapped.
	InitializeSystem() error
	// CARBanks reports how many clock controller register banks this
	// SoC generation carries.
	CARBanks() int
	// CARModules lists the board's modules behind the clock
	// controller.
	CARModules() []car.Module
	// Domains returns the static power domain tables used when
	// neither the device tree nor the configuration carries any.
	Domains() []config.Domain
	// Rails hands out the board regulators, nil when the board has
	// none.
	Rails() hw.RailProvider
}

// System is the assembled controller stack of one running daemon.
// MC, CAR and Registry are nil when the board gives the daemon
// nothing to build them from.
type System struct {
	PMC      *pmc.PMC
	MC       *mc.MC
	CAR      *car.CAR
	Registry *pmc.Registry

	conf    *config.Config
	disc    *board.Discovery
	closers []io.Closer

	mu          sync.Mutex
	lastPowered map[string]bool
}

// mapper abstracts how register banks get into the process. Tests
// substitute fakes for /dev/mem.
type mapper interface {
	Map(base int64, size int) (mmio.Block, io.Closer, error)
}

type devMapper struct{}

func (devMapper) Map(base int64, size int) (mmio.Block, io.Closer, error) {
	m, err := mmio.Open(base, size)
	if err != nil {
		return nil, nil, err
	}
	return m, m, nil
}

func Startup(plat Platform) (error, chan error) {
	return StartupWithConfig(plat, config.DefaultConfig)
}

func StartupWithConfig(plat Platform, conf *config.Config) (error, chan error) {
	fmt.Print("\n" + banner)
	fmt.Printf("Welcome to u-pmc version %s\n\n", conf.Version.Version)
	systemVersion := metric.Counter(metric.MetricOpts{
		Namespace: "upmc",
		Subsystem: "system",
		Name:      "version",
	}, prometheus.Labels{"version": conf.Version.Version})
	systemVersion.Inc()

	if conf.Machine != "" {
		log.Infof("Board %s", conf.Machine)
	}
	log.Infof("Initialize system hardware")
	if err := plat.InitializeSystem(); err != nil {
		log.Errorf("platform.InitializeSystem: %v", err)
		return err, nil
	}

	log.Infof("Scanning device tree %s", conf.DeviceTree)
	disc, err := waitForTree(conf.DeviceTree)
	if err != nil {
		log.Warnf("Device tree scan failed: %v", err)
		log.Warnf("Running on configured register regions")
		disc = &board.Discovery{PMCBase: conf.PMCBase, PMCSize: conf.PMCSize}
	}

	sys, err := assemble(plat, conf, disc, devMapper{})
	if err != nil {
		log.Errorf("Bringing up controllers failed: %v", err)
		return err, nil
	}

	log.Infof("Starting status interface on %s", conf.HTTPAddr)
	l, err := net.Listen("tcp", conf.HTTPAddr)
	if err != nil {
		log.Errorf("net.Listen failed: %v", err)
		sys.Close()
		return err, nil
	}

	mux := http.NewServeMux()
	sys.registerHandlers(mux)
	metric.StartMetrics(mux)

	startupResult := make(chan error)
	go func() {
		startupResult <- sys.run(l, mux)
	}()
	return nil, startupResult
}

const treeRetries = 5

// waitForTree scans the device tree, waiting out the window where the
// kernel has not mounted sysfs yet when the daemon starts from early
// userspace.
func waitForTree(path string) (*board.Discovery, error) {
	b := &backoff.Backoff{
		Min:    50 * time.Millisecond,
		Max:    time.Second,
		Factor: 2,
	}
	for {
		disc, err := board.Discover(path)
		if err == nil || !errors.Is(err, os.ErrNotExist) {
			return disc, err
		}
		if b.Attempt() >= treeRetries {
			return disc, err
		}
		time.Sleep(b.Duration())
	}
}

// assemble wires the controller stack together. The device tree wins
// where it spoke, the configuration fills the rest, the platform
// tables are the last resort for the domain list.
func assemble(plat Platform, conf *config.Config, disc *board.Discovery, mm mapper) (*System, error) {
	s := &System{
		conf:        conf,
		disc:        disc,
		lastPowered: make(map[string]bool),
	}

	profile := disc.Profile
	if profile == nil && conf.Profile != "" {
		profile = soc.ByName(conf.Profile)
		if profile == nil {
			return nil, fmt.Errorf("%w: unknown SoC profile %q", hw.ErrInvalidArgument, conf.Profile)
		}
		log.Infof("Using configured SoC profile %s", profile.Name)
	}

	regs, cl, err := mm.Map(disc.PMCBase, disc.PMCSize)
	if err != nil {
		return nil, fmt.Errorf("map PMC registers: %w", err)
	}
	s.closers = append(s.closers, cl)
	s.PMC = pmc.New(regs, profile)
	if conf.PClkRate != 0 {
		s.PMC.PClkRate = conf.PClkRate
	}

	if profile == nil {
		log.Warnf("No SoC profile, only the scratch surface is live")
		return s, nil
	}

	disc.ApplyEarly(s.PMC)
	s.PMC.Setup(disc.SysclkReqHigh || conf.SysclkReqHigh)

	mode, timing := disc.SuspendMode, disc.Timing
	if conf.Suspend.Mode != "" {
		m, err := pmc.SuspendModeFromString(conf.Suspend.Mode)
		if err != nil {
			s.Close()
			return nil, err
		}
		mode, timing = m, conf.SuspendTiming()
	}
	s.PMC.SetSuspendMode(mode)
	s.PMC.SetSuspendTiming(timing)

	if conf.Tsense.Enabled {
		if err := s.PMC.EnableTsenseReset(conf.TsenseReset()); err != nil {
			log.Warnf("Couldn't arm thermal reset: %v", err)
		}
	}

	mcBase, mcSize, table := disc.MCBase, disc.MCSize, disc.MCHotResets
	if mcBase == 0 && conf.MCBase != 0 {
		mcBase, mcSize, table = conf.MCBase, conf.MCSize, hotResetsFor(profile)
	}
	if mcBase != 0 && len(table) > 0 {
		mregs, cl, err := mm.Map(mcBase, mcSize)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("map MC registers: %w", err)
		}
		s.closers = append(s.closers, cl)
		s.MC = mc.New(mregs, table)
		s.MC.Observe = observeFlush
	}

	if banks, modules := plat.CARBanks(), plat.CARModules(); banks > 0 && len(modules) > 0 {
		cregs, cl, err := mm.Map(conf.CARBase, conf.CARSize)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("map CAR registers: %w", err)
		}
		s.closers = append(s.closers, cl)
		s.CAR, err = car.New(cregs, banks, modules)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("clock controller: %w", err)
		}
	}

	domains := disc.Domains
	if len(domains) == 0 {
		domains = conf.Domains
	}
	if len(domains) == 0 {
		domains = plat.Domains()
	}
	cfgs := config.DomainConfigs(domains)

	for i := range cfgs {
		if s.MC == nil && len(cfgs[i].Groups) > 0 {
			log.Warnf("No memory controller, dropping flush groups of domain %s", cfgs[i].Name)
			cfgs[i].Groups = nil
		}
		if s.CAR == nil && len(cfgs[i].Clocks)+len(cfgs[i].Resets) > 0 {
			s.Close()
			return nil, fmt.Errorf("%w: domain %s needs the clock controller", hw.ErrInvalidArgument, cfgs[i].Name)
		}
	}

	prov := pmc.Providers{Rails: plat.Rails()}
	if s.CAR != nil {
		prov.Clocks, prov.Resets = s.CAR, s.CAR
	}

	reg, err := pmc.BuildRegistry(s.PMC, s.MC, prov, cfgs)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.Registry = reg
	return s, nil
}

// hotResetsFor picks the flush handshake table when a board runs
// without a device tree. The early generations flush through the
// legacy powergate path and have no table.
func hotResetsFor(p *soc.Profile) []mc.HotReset {
	if p == nil || p.LegacyPowergate {
		return nil
	}
	return mc.Tegra114HotResets
}

// Close releases the mapped register banks.
func (s *System) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i].Close(); err != nil {
			log.Warnf("Couldn't unmap register bank: %v", err)
		}
	}
	s.closers = nil
}

// run serves until a termination signal or a server failure.
func (s *System) run(l net.Listener, mux *http.ServeMux) error {
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	srv := &http.Server{Handler: mux}
	g.Go(func() error {
		if err := srv.Serve(l); err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return s.monitor(ctx)
	})
	g.Go(func() error {
		defer cancel()
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, unix.SIGINT, unix.SIGTERM)
		defer signal.Stop(sig)
		select {
		case v := <-sig:
			log.Infof("Received %v, shutting down", v)
		case <-ctx.Done():
		}
		return srv.Close()
	})
	return g.Wait()
}

// Reboot asks the kernel for an orderly restart. On Tegra the machine
// reset at the end of that path goes through the PMC main reset, so a
// restart mode latched beforehand is what the boot ROM reads.
func Reboot() {
	if err := unix.Reboot(unix.LINUX_REBOOT_CMD_RESTART); err != nil {
		log.Fatalf("reboot failed: %v", err)
	}
}
