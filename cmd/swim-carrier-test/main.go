// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// swim-carrier-test drives a pin with a raw modulated carrier, with no
// framing above it, so the emitter LED and receiver photodiode can be
// aimed and tuned with an oscilloscope before bringing up the full
// protocol stack.
package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"periph.io/x/conn/v3/gpio"

	"github.com/tve/swim"
	"github.com/tve/swim/hwport"
	"github.com/tve/swim/timing"
)

func mainImpl() error {
	if len(os.Args) != 3 {
		return errors.New("specify GPIO pin to write to and the carrier freq in Hz")
	}
	freqHz, err := strconv.Atoi(os.Args[2])
	if err != nil {
		return err
	}

	if err := hwport.Init(); err != nil {
		return err
	}
	pin, err := hwport.OpenPin(os.Args[1], gpio.PullNoChange)
	if err != nil {
		return err
	}
	if err := pin.SetDirection(swim.Output); err != nil {
		return err
	}

	cfg := timing.NewConfig(uint32(freqHz))
	period := time.Duration(cfg.PeriodUS()) * time.Microsecond
	high := time.Duration(cfg.HighPeriodUS()) * time.Microsecond

	fmt.Printf("Driving carrier at %dHz (period %s, high %s)\n", cfg.ModFreqHz(), period, high)
	for {
		pin.Write(1)
		time.Sleep(high)
		pin.Write(0)
		time.Sleep(period - high)
	}
}

func main() {
	if err := mainImpl(); err != nil {
		fmt.Fprintf(os.Stderr, "swim-carrier-test: %s.\n", err)
		os.Exit(1)
	}
}
