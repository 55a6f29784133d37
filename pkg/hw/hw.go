// Copyright 2021 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package hw defines the capability interfaces the power sequencer
// drives: module clocks, reset lines and external power rails. The
// sequencer only cares about these verbs, who implements them is a
// board decision.
package hw

import (
	"errors"
)

var (
	// ErrInvalidArgument is returned before any register is touched
	// when a request names a partition or group the hardware does not
	// have.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrTimeout is returned when hardware does not converge within
	// the bound of a status poll.
	ErrTimeout = errors.New("timed out")

	// ErrNotReady is returned by a provider whose backing driver has
	// not come up yet. Callers may retry the acquisition.
	ErrNotReady = errors.New("provider not ready")
)

// A Clock gates one module clock.
type Clock interface {
	Name() string
	Enable() error
	Disable() error
}

// A Reset controls one module reset line.
type Reset interface {
	Name() string
	Assert() error
	Deassert() error
}

// A Rail switches an external power supply feeding a partition.
type Rail interface {
	Name() string
	Enable() error
	Disable() error
	IsEnabled() (bool, error)
}

// A ClockProvider hands out clocks by name.
type ClockProvider interface {
	Clock(name string) (Clock, error)
}

// A ResetProvider hands out reset lines by name.
type ResetProvider interface {
	Reset(name string) (Reset, error)
}

// A RailProvider hands out power rails by name. Rail drivers often
// come up late, providers signal that with ErrNotReady.
type RailProvider interface {
	Rail(name string) (Rail, error)
}
