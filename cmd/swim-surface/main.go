// Copyright (c) 2016 by Thorsten von Eicken, see LICENSE file for details

// swim-surface is the standalone CLI counterpart to swim-gateway: it
// drives one optical link from the command line, issuing a single
// command and printing the decoded response, optionally appending
// every READ_ALL/READ_ONE poll to a varint-encoded recording file.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"periph.io/x/conn/v3/gpio"

	"github.com/tve/swim"
	"github.com/tve/swim/hwport"
	"github.com/tve/swim/reclog"
	"github.com/tve/swim/swimproto"
)

func mainImpl(pinName, cmdName string, chanAddr uint32, modFreqHz uint, recordPath string) error {
	cmd, err := parseCmdName(cmdName)
	if err != nil {
		return err
	}

	if err := hwport.Init(); err != nil {
		return err
	}
	pin, err := hwport.OpenPin(pinName, gpio.PullNoChange)
	if err != nil {
		return err
	}

	opts := swimproto.DefaultProtocolOpts()
	if modFreqHz > 0 {
		opts.ModFreqHz = uint32(modFreqHz)
	}
	clock := hwport.NewClock()
	proto := swimproto.NewProtocol(pin, clock, opts)

	var rec *reclog.Writer
	if recordPath != "" {
		f, err := os.OpenFile(recordPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return fmt.Errorf("cannot open recording file: %w", err)
		}
		defer f.Close()
		rec = reclog.NewWriter(f)
		defer rec.Flush()
	}

	proto.SendCmd(cmd, chanAddr)

	switch cmd {
	case swimproto.CmdReadAll, swimproto.CmdReadOne:
		var status swim.Status
		if cmd == swimproto.CmdReadAll {
			status = proto.ReadAll()
		} else {
			status = proto.ReadOne()
		}
		if status != swim.Success {
			return fmt.Errorf("read failed: %v", status)
		}

		var samples []reclog.Sample
		for proto.FIFO().Len() > 0 {
			entry := proto.FIFO().Pop()
			chAddr := uint8((entry & 0xF8000) >> 15)
			adc := uint16(entry & 0xFFF)
			fmt.Printf("chan=%d adc=%d\n", chAddr, adc)
			samples = append(samples, reclog.Sample{ChanAddr: chAddr, ADC: adc})
		}
		if rec != nil && len(samples) > 0 {
			if err := rec.WriteSamples(time.Now(), samples); err != nil {
				return err
			}
		}

	default:
		status := proto.ReadCmd()
		if status != swim.Success {
			return fmt.Errorf("read response failed: %v", status)
		}
		fmt.Println("ack received")
	}

	return nil
}

func parseCmdName(name string) (uint8, error) {
	switch name {
	case "sleep":
		return swimproto.CmdSleep, nil
	case "wakeup":
		return swimproto.CmdWakeup, nil
	case "read-all":
		return swimproto.CmdReadAll, nil
	case "read-one":
		return swimproto.CmdReadOne, nil
	case "read-batt":
		return swimproto.CmdReadBatt, nil
	case "read-temp":
		return swimproto.CmdReadFPGATemp, nil
	case "read-uptime":
		return swimproto.CmdReadUptime, nil
	default:
		return 0, errors.New("unknown command: " + name)
	}
}

func main() {
	pin := flag.String("pin", "", "GPIO pin name shared for transmit and receive")
	cmd := flag.String("cmd", "", "command to send: wakeup, sleep, read-batt, read-temp, read-uptime, read-one, read-all")
	chanAddr := flag.Uint("chan", 0, "channel address for read-one")
	modFreqHz := flag.Uint("freq", 0, "carrier modulation frequency in Hz (0 uses the protocol default)")
	record := flag.String("record", "", "append varint-encoded FIFO dumps from read-all/read-one to this file")
	flag.Parse()

	if *pin == "" || *cmd == "" {
		fmt.Fprintf(os.Stderr, "Usage: %s -pin <name> -cmd <command> [-chan N] [-freq Hz] [-record file]\n", os.Args[0])
		os.Exit(1)
	}
	if err := mainImpl(*pin, *cmd, uint32(*chanAddr), *modFreqHz, *record); err != nil {
		fmt.Fprintf(os.Stderr, "swim-surface: %s.\n", err)
		os.Exit(1)
	}
}
