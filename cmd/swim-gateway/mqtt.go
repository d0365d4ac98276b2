// Copyright (c) 2016 by Thorsten von Eicken, see LICENSE file for details

package main

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"log"
	"os"
	"reflect"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/eclipse/paho.mqtt.golang"

	"github.com/tve/swim"
)

// MqttConfig is the broker connection info read from the TOML config.
type MqttConfig struct {
	Host     string
	Port     int
	User     string
	Password string
}

// SamplePacket is published for every channel sample read off the
// link.
type SamplePacket struct {
	ChanAddr int       `json:"chan_addr"`
	ADC      int       `json:"adc"`
	At       time.Time `json:"at"`
}

// CmdRequestMessage is the shape expected on the <prefix>/cmd topic.
type CmdRequestMessage struct {
	Topic   string
	Payload CmdRequest
}

type CmdRequest struct {
	Cmd            int  `json:"cmd"`
	ChanAddr       int  `json:"chan_addr"`
	ExpectResponse bool `json:"expect_response"`
}

// CmdAckPacket is published after a command that expects a response.
type CmdAckPacket struct {
	Status int       `json:"status"`
	At     time.Time `json:"at"`
}

// mq is a handle onto an MQTT broker connection: a dedup-then-forward
// Publish/Subscribe pair with an internal subscription-hook mechanism
// via reflection, carrying telemetry and command messages for one
// optical link.
type mq struct {
	conn     mqtt.Client
	subHooks []subHook
	dedupMu  sync.Mutex
	dedup    map[uint64]time.Time
}

type subHook struct {
	topic  string
	ch     reflect.Value
	chElem reflect.Type
}

func newMQ(conf MqttConfig, debug swim.LogPrintf) (*mq, error) {
	debug("Configuring MQTT: %+v", conf)
	mqtt.ERROR = log.New(os.Stderr, "", 0)
	opts := mqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("tcp://%s:%d", conf.Host, conf.Port))
	opts.ClientID = "swim-gateway"
	opts.Username = conf.User
	opts.Password = conf.Password

	mqConn := mqtt.NewClient(opts)
	if token := mqConn.Connect(); !token.WaitTimeout(10 * time.Second) {
		return nil, token.Error()
	}
	m := &mq{conn: mqConn, dedup: make(map[uint64]time.Time)}
	go m.gc()

	log.Printf("MQTT connected")
	return m, nil
}

func (m *mq) gc() {
	for {
		time.Sleep(time.Minute)
		m.dedupMu.Lock()
		tooOld := time.Now().Add(-10 * time.Minute)
		for h, t := range m.dedup {
			if t.Before(tooOld) {
				delete(m.dedup, h)
			}
		}
		m.dedupMu.Unlock()
	}
}

func (m *mq) Publish(topic string, payload interface{}) {
	payVal := reflect.Indirect(reflect.ValueOf(payload))
	for _, hook := range m.subHooks {
		if topic == hook.topic {
			chanMsg := reflect.Indirect(reflect.New(hook.chElem))
			chanMsg.FieldByName("Topic").SetString(topic)
			chanMsg.FieldByName("Payload").Set(payVal)
			hook.ch.Send(chanMsg)
		}
	}
	runtime.Gosched()

	jsonPayload, _ := json.Marshal(payload)
	m.conn.Publish(topic, 1, false, jsonPayload)
	m.dedupMu.Lock()
	hash := hashMessage(topic, string(jsonPayload))
	m.dedup[hash] = time.Now()
	m.dedupMu.Unlock()
}

func (m *mq) Subscribe(topic string, subChan interface{}) error {
	chanType := reflect.TypeOf(subChan)
	if chanType.Kind() != reflect.Chan {
		panic("subChan must be a channel")
	}
	chanElemType := chanType.Elem()
	if chanElemType.Kind() != reflect.Struct {
		panic("subChan element must be struct")
	}
	chanValue := reflect.ValueOf(subChan)

	m.subHooks = append(m.subHooks, subHook{topic, chanValue, chanElemType})

	handler := func(c mqtt.Client, msg mqtt.Message) {
		payload := string(msg.Payload())
		hash := hashMessage(topic, payload)
		m.dedupMu.Lock()
		_, dup := m.dedup[hash]
		delete(m.dedup, hash)
		m.dedupMu.Unlock()
		if dup {
			return
		}

		out := reflect.New(chanElemType)
		jsonMsg := fmt.Sprintf(`{"Topic":%q, "Payload":%s}`, msg.Topic(), payload)
		if err := json.Unmarshal([]byte(jsonMsg), out.Interface()); err != nil {
			log.Printf("cannot json decode payload for %s: %s", msg.Topic(), err)
		} else {
			chanValue.Send(reflect.Indirect(out))
		}
	}

	if token := m.conn.Subscribe(topic, 1, handler); !token.WaitTimeout(2 * time.Second) {
		return token.Error()
	}
	return nil
}

func hashMessage(s ...string) uint64 {
	key := strings.Join(s, "ǂ")
	h := fnv.New64()
	h.Write([]byte(key))
	return h.Sum64()
}
