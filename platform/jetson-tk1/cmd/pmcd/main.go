// Copyright 2021 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"flag"

	"github.com/u-root/u-pmc/config"
	"github.com/u-root/u-pmc/pkg/logger"
	"github.com/u-root/u-pmc/pkg/pmd"
	"github.com/u-root/u-pmc/platform/jetson-tk1/pkg/platform"
)

var (
	configPath = flag.String("config", "/etc/u-pmc/config.yaml", "Board configuration file")
)

var log = logger.LogContainer.GetSimpleLogger()

func main() {
	flag.Parse()

	p := platform.Platform()
	err, result := pmd.StartupWithConfig(p, config.Load(*configPath))
	if err != nil {
		log.Fatal(err)
	}
	if err := <-result; err != nil {
		log.Fatal(err)
	}
}
