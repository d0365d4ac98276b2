// Copyright (c) 2016 by Thorsten von Eicken, see LICENSE file for details

// swim-gateway runs the surface side of a SWIM optical link and bridges it
// to MQTT: it periodically polls channel samples and reports them as
// telemetry, and it accepts command requests published to a topic and
// forwards them to the submerged unit as SendCmd calls.
package main

import (
	"flag"
	"fmt"
	"io/ioutil"
	"log"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"periph.io/x/conn/v3/gpio"

	"github.com/tve/swim"
	"github.com/tve/swim/hwport"
	"github.com/tve/swim/swimproto"
)

// Config is the swim-gateway.toml shape: one optical line plus its
// polling schedule, and the MQTT broker to publish telemetry to.
type Config struct {
	Debug bool
	Mqtt  MqttConfig
	Link  LinkConfig
}

// LinkConfig describes the single GPIO pin the optical transceiver
// shares for transmit and receive, plus the protocol parameters.
type LinkConfig struct {
	Pin          string
	ModFreqHz    int    `toml:"mod_freq_hz"`
	ParityBits   int    `toml:"parity_bits"`
	RepeatCount  int    `toml:"repeat_count"`
	PollInterval string `toml:"poll_interval"`
	Prefix       string
}

func main() {
	help := flag.Bool("help", false, "print usage help")
	configFile := flag.String("config", "swim-gateway.toml", "path to config file")
	flag.Parse()

	if *help {
		fmt.Fprintf(os.Stderr, "Usage: %s -config <file>\n", os.Args[0])
		os.Exit(1)
	}

	config := &Config{}
	raw, err := ioutil.ReadFile(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Cannot access config file: %s\n", err)
		os.Exit(1)
	}
	if err := toml.Unmarshal(raw, config); err != nil {
		fmt.Fprintf(os.Stderr, "Cannot parse config file: %s\n", err)
		os.Exit(1)
	}

	logger := swim.LogPrintf(func(format string, v ...interface{}) {})
	if config.Debug {
		log.SetFlags(log.LstdFlags | log.Lmicroseconds)
		logger = log.Printf
	}

	mq, err := newMQ(config.Mqtt, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to MQTT broker: %s\n", err)
		os.Exit(2)
	}

	if err := hwport.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to init GPIO host: %s\n", err)
		os.Exit(1)
	}
	pin, err := hwport.OpenPin(config.Link.Pin, gpio.PullNoChange)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open link pin %s: %s\n", config.Link.Pin, err)
		os.Exit(1)
	}

	opts := swimproto.DefaultProtocolOpts()
	if config.Link.ModFreqHz != 0 {
		opts.ModFreqHz = uint32(config.Link.ModFreqHz)
	}
	if config.Link.ParityBits != 0 {
		opts.ParityBits = uint8(config.Link.ParityBits)
	}
	if config.Link.RepeatCount != 0 {
		opts.RepeatCount = uint8(config.Link.RepeatCount)
	}
	opts.Log = logger

	clock := hwport.NewClock()
	proto := swimproto.NewProtocol(pin, clock, opts)

	pollInterval := 5 * time.Second
	if config.Link.PollInterval != "" {
		d, err := time.ParseDuration(config.Link.PollInterval)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Invalid poll_interval %q: %s\n", config.Link.PollInterval, err)
			os.Exit(1)
		}
		pollInterval = d
	}

	log.Printf("Gateway starting, polling every %s", pollInterval)
	go pollLoop(proto, mq, config.Link.Prefix, pollInterval, logger)
	go commandLoop(proto, mq, config.Link.Prefix, logger)

	log.Printf("Gateway is ready")
	select {}
}

// pollLoop periodically sends WAKEUP, READ_ALL, and publishes every
// decoded sample as telemetry.
func pollLoop(proto *swimproto.Protocol, mq *mq, prefix string, interval time.Duration, debug swim.LogPrintf) {
	for {
		time.Sleep(interval)

		proto.SendWakeup()
		proto.SendCmd(swimproto.CmdReadAll, 0)
		if status := proto.ReadAll(); status != swim.Success {
			debug("swim-gateway: ReadAll failed: %v", status)
			continue
		}

		for proto.FIFO().Len() > 0 {
			entry := proto.FIFO().Pop()
			chanAddr := (entry & 0xF8000) >> 15
			adc := entry & 0xFFF
			mq.Publish(prefix+"/sample", SamplePacket{ChanAddr: int(chanAddr), ADC: int(adc), At: time.Now()})
		}
	}
}

// commandLoop drains the MQTT command channel and forwards each
// request as a SendCmd/ReadCmd/SendData round trip.
func commandLoop(proto *swimproto.Protocol, mq *mq, prefix string, debug swim.LogPrintf) {
	reqCh := make(chan CmdRequestMessage, 8)
	if err := mq.Subscribe(prefix+"/cmd", reqCh); err != nil {
		debug("swim-gateway: cannot subscribe to command topic: %v", err)
		return
	}
	for req := range reqCh {
		proto.SendCmd(uint8(req.Payload.Cmd), uint32(req.Payload.ChanAddr))
		if req.Payload.ExpectResponse {
			status := proto.ReadCmd()
			mq.Publish(prefix+"/cmd-ack", CmdAckPacket{Status: int(status), At: time.Now()})
		}
	}
}
