// Copyright (c) 2016 by Thorsten von Eicken, see LICENSE file for details

// swim-submerged runs the submerged-unit side of the optical link: it
// loops forever receiving command frames and answering each with the
// appropriate response, optionally sourcing READ_FPGA_TEMP from a real
// MAX31855 thermocouple and READ_BATT/READ_UPTIME from flag-supplied
// values, with an injector that periodically pushes synthetic ADC
// samples into the FIFO so READ_ALL/READ_ONE can be exercised without
// real acquisition hardware attached.
package main

import (
	"flag"
	"fmt"
	"math/bits"
	"os"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/spi/spireg"

	"github.com/tve/swim"
	"github.com/tve/swim/diag"
	"github.com/tve/swim/hwport"
	"github.com/tve/swim/swimproto"
	"github.com/tve/swim/thermo"
)

func mainImpl(pinName string, battery, uptimeSeed uint, thermoSPI string, inject bool, traceEvery int) error {
	if err := hwport.Init(); err != nil {
		return err
	}
	pin, err := hwport.OpenPin(pinName, gpio.PullNoChange)
	if err != nil {
		return err
	}

	opts := swimproto.DefaultProtocolOpts()
	opts.Realtime = true
	var trace *diag.Trace
	if traceEvery > 0 {
		trace = diag.NewTrace(1000)
		opts.Log = trace.LogPrintf
	}
	clock := hwport.NewClock()
	proto := swimproto.NewProtocol(pin, clock, opts)
	proto.SetBatteryLevel(uint8(battery))

	if thermoSPI != "" {
		dev, err := openThermo(thermoSPI)
		if err != nil {
			fmt.Fprintf(os.Stderr, "swim-submerged: no thermocouple available: %s\n", err)
		} else {
			go refreshTemperature(proto, dev)
		}
	}

	go trackUptime(proto, uint32(uptimeSeed), clock)
	if inject {
		go injectSyntheticSamples(proto)
	}
	if trace != nil {
		go dumpTrace(trace, time.Duration(traceEvery)*time.Second)
	}

	for {
		if status := proto.ReadCmd(); status != swim.Success {
			continue
		}
		proto.SendData()
	}
}

// dumpTrace flushes the accumulated link trace to stderr every period,
// so a field operator can tail the process's output for receiver
// state-machine activity without attaching a debugger.
func dumpTrace(trace *diag.Trace, period time.Duration) {
	for {
		time.Sleep(period)
		if trace.Len() == 0 {
			continue
		}
		trace.WriteTo(os.Stderr)
	}
}

func openThermo(busName string) (*thermo.Dev, error) {
	port, err := spireg.Open(busName)
	if err != nil {
		return nil, err
	}
	return thermo.New(port)
}

func refreshTemperature(proto *swimproto.Protocol, dev *thermo.Dev) {
	for {
		proto.SetTemperature(dev.ReadByte())
		time.Sleep(10 * time.Second)
	}
}

// trackUptime reports uptimeSeed plus elapsed seconds since this
// process started, refreshed once a second.
func trackUptime(proto *swimproto.Protocol, uptimeSeed uint32, clock *hwport.Clock) {
	for {
		elapsedSec := clock.NowMS() / 1000
		proto.SetUptime(uptimeSeed + uint32(elapsedSec))
		time.Sleep(time.Second)
	}
}

// injectSyntheticSamples pushes a rotating channel/ADC pair into the
// FIFO every second, for exercising READ_ALL/READ_ONE on a bench
// without real acquisition hardware wired up.
func injectSyntheticSamples(proto *swimproto.Protocol) {
	var n uint32
	for {
		chanAddr := n % 32
		adc := uint32(bits.RotateLeft32(n, 7)) & 0xFFF
		proto.FIFO().Push(chanAddr<<15 | adc)
		n++
		time.Sleep(time.Second)
	}
}

func main() {
	pin := flag.String("pin", "", "GPIO pin name shared for transmit and receive")
	battery := flag.Uint("battery", 0, "battery level reported by READ_BATT (0-255)")
	uptime := flag.Uint("uptime", 0, "uptime seconds counted from at startup, reported by READ_UPTIME")
	thermoSPI := flag.String("thermo-spi", "", "SPI bus name for a MAX31855 thermocouple feeding READ_FPGA_TEMP; empty disables it")
	inject := flag.Bool("inject-samples", false, "push synthetic ADC samples into the FIFO once a second, for bench testing")
	trace := flag.Int("trace", 0, "dump the link's receiver state-machine trace to stderr every N seconds (0 disables tracing)")
	flag.Parse()

	if *pin == "" {
		fmt.Fprintf(os.Stderr, "Usage: %s -pin <name> [-battery N] [-uptime N] [-thermo-spi bus] [-inject-samples] [-trace seconds]\n", os.Args[0])
		os.Exit(1)
	}
	if err := mainImpl(*pin, *battery, *uptime, *thermoSPI, *inject, *trace); err != nil {
		fmt.Fprintf(os.Stderr, "swim-submerged: %s.\n", err)
		os.Exit(1)
	}
}
