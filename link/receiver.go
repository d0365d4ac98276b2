package link

import (
	"github.com/tve/swim"
	"github.com/tve/swim/thread"
	"github.com/tve/swim/timing"
)

// PulseTimeoutUS bounds how long a single symbol measurement may take
// before it is considered lost.
const PulseTimeoutUS = 25000

// PacketTimeoutPulses scales cfg.PeriodUS() into the millisecond budget
// recv_packet allows for the IDLE wait before giving up on a packet ever
// starting.
const PacketTimeoutPulses = 100000

type recvState int

const (
	stateIdle recvState = iota
	statePktArrived
	statePktRead
	statePktGap
	stateError
	stateFinish
)

// ReceiverOpts configures a Receiver beyond the pin/clock/timing it is
// built from.
type ReceiverOpts struct {
	Repeat   uint8 // 0 means DefaultRepeat
	Realtime bool  // lock the receiving goroutine's OS thread to realtime scheduling
	Log      swim.LogPrintf
}

// Receiver measures carrier pulse widths on the shared line, classifies
// them into symbols, and runs the packet state machine to reassemble R
// repeated frames into one majority-voted payload.
type Receiver struct {
	pin      swim.Pin
	clock    swim.Clock
	cfg      *timing.Config
	repeat   uint8
	realtime bool
	log      swim.LogPrintf
}

// NewReceiver builds a Receiver reading pin, timed against clock, using
// cfg's pulse counts and thresholds.
func NewReceiver(pin swim.Pin, clock swim.Clock, cfg *timing.Config, opts ReceiverOpts) *Receiver {
	repeat := opts.Repeat
	if repeat == 0 {
		repeat = DefaultRepeat
	}
	log := opts.Log
	if log == nil {
		log = swim.NoLog
	}
	return &Receiver{pin: pin, clock: clock, cfg: cfg, repeat: repeat, realtime: opts.Realtime, log: log}
}

// Init sets the shared line to INPUT. If the receiver was built with
// Realtime set, it also locks the calling goroutine to its own kernel
// thread at realtime priority, matching Transmitter.Init; RecvPacket's
// pulse-width measurements are sensitive to scheduling jitter in the
// same way sendBit's busy-wait is.
func (r *Receiver) Init() error {
	if r.realtime {
		if err := thread.Realtime(); err != nil {
			r.log("link: thread.Realtime failed: %v", err)
		}
	}
	return r.pin.SetDirection(swim.Input)
}

// PeriodUS returns the carrier's modulation period in microseconds.
func (r *Receiver) PeriodUS() uint32 { return r.cfg.PeriodUS() }

// PulseWidth measures one carrier burst: it waits for the line to carry
// (read as 1), marks the start, waits for the carrier to stop, and
// returns the elapsed microseconds. Either wait aborts and returns
// PulseTimeoutUS if it runs longer than that.
func (r *Receiver) PulseWidth() uint32 {
	waitStart := r.clock.NowUS()
	for r.pin.Read() == 0 {
		if uint32(r.clock.NowUS()-waitStart) > PulseTimeoutUS {
			return PulseTimeoutUS
		}
	}

	start := r.clock.NowUS()
	for r.pin.Read() == 1 {
		if uint32(r.clock.NowUS()-start) > PulseTimeoutUS {
			return PulseTimeoutUS
		}
	}

	return uint32(r.clock.NowUS() - start)
}

// RecvBit measures and classifies a single burst as 0 or 1. It returns
// (0|1, true) on success, or (0, false) if the measurement times out.
// Anything the measurement cannot place in {0,1} is an error — see
// spec.md §9's REDESIGN FLAG 2, which corrects the source's
// always-true `data != 0 || data != 1` check to `data != 0 && data !=
// 1`, i.e. genuinely exclude anything but 0 or 1.
func (r *Receiver) RecvBit() (bit int, ok bool) {
	width := r.PulseWidth()
	if width >= PulseTimeoutUS {
		return 0, false
	}
	if width >= r.cfg.ThresholdUS(timing.SymbolOne) {
		return 1, true
	}
	return 0, true
}

// ReadData reads bits successive 0/1 symbols MSB-first into a uint32,
// retrying a measurement that fails to classify cleanly. Retries are
// bounded per bit, since a line that cannot produce a classifiable
// pulse will not spontaneously heal by retrying forever; a bit whose
// attempts all fail is left 0 and reading goes on with the next bit.
func (r *Receiver) ReadData(bits uint8) uint32 {
	const maxRetriesPerBit = 8
	var result uint32
	for i := uint8(0); i < bits; i++ {
		var bit int
		var ok bool
		for attempt := 0; attempt < maxRetriesPerBit; attempt++ {
			bit, ok = r.RecvBit()
			if ok {
				break
			}
		}
		if ok && bit == 1 {
			result |= 1 << uint(bits-1-i)
		}
	}
	return result
}

// RecvPacket runs the packet state machine: it waits for the line to
// rise, confirms a header-width burst, reads the receiver's repeat count
// of frames of bits bits each separated by gaps, and majority-votes the
// repeats into a single payload. Header detection, timeouts, error
// exits and FINISH are reported through the receiver's Log.
//
// Per spec.md §9's REDESIGN FLAG 4, a frame is counted complete as soon
// as its bits data bits have been read — the state machine reaches
// FINISH after exactly repeat-count frames without requiring a trailing
// gap, since the transmitter does not send a gap after its last
// repeat. With bits == 0 every frame is complete without reading a
// symbol, so only the header and the gaps are read.
func (r *Receiver) RecvPacket(bits uint8) (uint64, swim.Status) {
	tmpBuf := make([]uint64, r.repeat)
	state := stateIdle
	bufIndex := 0
	dataIndex := 0
	var errStatus swim.Status
	idleStart := r.clock.NowMS()
	// PacketTimeoutPulses * period_us is a microsecond figure (spec.md §5:
	// "approximately 100000 x 27 ~ 2.7s"); divide by 1000 to compare
	// against the millisecond clock.
	idleBudgetMS := uint64(PacketTimeoutPulses) * uint64(r.cfg.PeriodUS()) / 1000

	for {
		switch state {
		case stateIdle:
			if r.pin.Read() == 1 {
				state = statePktArrived
				continue
			}
			if r.clock.NowMS()-idleStart > idleBudgetMS {
				r.log("link: IDLE: idle timeout")
				return 0, swim.ErrorIdleTimeout
			}

		case statePktArrived:
			width := r.PulseWidth()
			if width >= PulseTimeoutUS {
				r.log("link: PKT_ARRIVED -> IDLE: pulse timeout")
				state = stateIdle
				idleStart = r.clock.NowMS()
				continue
			}
			if width >= r.cfg.ThresholdUS(timing.SymbolHeader) {
				r.log("link: PKT_ARRIVED -> PKT_READ: header %dus", width)
				state = statePktRead
				bufIndex = 0
				dataIndex = 0
			}

		case statePktRead:
			if bits == 0 {
				bufIndex++
				if bufIndex >= int(r.repeat) {
					state = stateFinish
				} else {
					state = statePktGap
				}
				continue
			}
			width := r.PulseWidth()
			if width >= PulseTimeoutUS {
				errStatus = swim.ErrorPktRead
				state = stateError
				continue
			}
			bit := 0
			if width >= r.cfg.ThresholdUS(timing.SymbolOne) {
				bit = 1
			}
			if bit == 1 {
				tmpBuf[bufIndex] |= 1 << uint(int(bits)-1-dataIndex)
			}
			dataIndex++
			if dataIndex == int(bits) {
				dataIndex = 0
				bufIndex++
				if bufIndex >= int(r.repeat) {
					state = stateFinish
				} else {
					state = statePktGap
				}
			}

		case statePktGap:
			width := r.PulseWidth()
			if width >= PulseTimeoutUS {
				errStatus = swim.ErrorGapRead
				state = stateError
				continue
			}
			if width >= r.cfg.ThresholdUS(timing.SymbolGap) {
				state = statePktRead
			}

		case stateFinish:
			r.log("link: FINISH after %d frames", r.repeat)
			return Vote(tmpBuf, int(r.repeat), bits), swim.Success

		case stateError:
			r.log("link: ERROR: %v", errStatus)
			return 0, errStatus
		}
	}
}

// Vote majority-combines n repeated bits-wide samples into one value:
// bit i of the result is set iff at least ceil(n/2) of the samples have
// it set. For n<=1 it returns the sole sample unchanged.
func Vote(data []uint64, n int, bits uint8) uint64 {
	if n <= 1 {
		if len(data) == 0 {
			return 0
		}
		return data[0]
	}

	threshold := (n + 1) / 2
	var result uint64
	for i := int(bits) - 1; i >= 0; i-- {
		ones := 0
		for _, d := range data {
			if (d>>uint(i))&1 != 0 {
				ones++
			}
		}
		if ones >= threshold {
			result |= 1 << uint(i)
		}
	}
	return result
}
