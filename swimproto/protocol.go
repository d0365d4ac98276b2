// Package swimproto implements the SWIM application protocol: the
// command set, frame widths, parity checking, and per-command response
// behavior that ride on top of package link's optical transmitter and
// receiver, owning the lower layers and exposing a small
// command-oriented API.
package swimproto

import (
	"github.com/tve/swim"
	"github.com/tve/swim/fifo"
	"github.com/tve/swim/link"
	"github.com/tve/swim/timing"
)

// Command codes, the high-order field of the 8-bit command frame.
const (
	CmdSleep        uint8 = 0
	CmdReadAll      uint8 = 1
	CmdReadOne      uint8 = 2
	CmdReadBatt     uint8 = 3
	CmdReadFPGATemp uint8 = 4
	CmdReadUptime   uint8 = 5
	CmdReserved     uint8 = 6
	CmdWakeup       uint8 = 7
)

// Frame widths, in data bits (excluding parity).
const (
	CmdFrameDataBits  uint8 = 8
	ChanFrameDataBits uint8 = 17
	BattDataBits      uint8 = 8
	TempDataBits      uint8 = 8
	UptimeDataBits    uint8 = 32
	AckDataBits       uint8 = 3
	ChanAddrBits      uint8 = 5
	AdcDataBits       uint8 = 12

	// fifoAddrGapBits is the width of the zero gap separating the
	// channel address from the ADC sample in a packed FIFO entry; see
	// fifoPack/fifoUnpack.
	fifoAddrGapBits = 3
)

// Ack is the constant payload used as a generic acknowledgement.
const Ack uint64 = 0b111

// ProtocolOpts configures a Protocol's timing, FIFO, and framing.
// DefaultProtocolOpts returns sane defaults as a starting point.
type ProtocolOpts struct {
	ModFreqHz   uint32
	FIFODepth   uint32
	ParityBits  uint8 // 0, 1, or 2
	RepeatCount uint8
	Realtime    bool // see link.TransmitterOpts.Realtime / link.ReceiverOpts.Realtime
	Log         swim.LogPrintf
}

// DefaultProtocolOpts returns {38000Hz, depth 30, 1 parity bit, 3
// repeats}, the defaults spec.md's configuration surface lists.
func DefaultProtocolOpts() ProtocolOpts {
	return ProtocolOpts{
		ModFreqHz:   timing.DefaultModFreqHz,
		FIFODepth:   fifo.SWIMDepth,
		ParityBits:  1,
		RepeatCount: link.DefaultRepeat,
	}
}

// Protocol owns a transmitter, a receiver, and a sample FIFO, and
// multiplexes the half-duplex line between them. It holds the
// host-supplied battery level, uptime, and temperature pass-through
// fields that commands like READ_BATT and READ_UPTIME report.
type Protocol struct {
	tx   *link.Transmitter
	rx   *link.Receiver
	fifo *fifo.SampleFIFO

	cfgTx, cfgRx *timing.Config
	parityBits   uint8

	cmdCache    uint8
	lastChAddr  uint8
	batteryLvl  uint8
	uptime      uint32
	temperature uint8

	pinMode swim.Direction
	haveDir bool // false until the first Send/Read call sets the line direction

	log swim.LogPrintf
}

// NewProtocol builds a Protocol driving pin, timed against clock, with
// the given options. Per spec.md §3, TimingConfig is logically shared
// between the transmitter and receiver but each holds its own copy;
// NewProtocol creates two Config instances from the same ModFreqHz and
// keeps them in sync through SetModFreqHz.
func NewProtocol(pin swim.Pin, clock swim.Clock, opts ProtocolOpts) *Protocol {
	log := opts.Log
	if log == nil {
		log = swim.NoLog
	}
	cfgTx := timing.NewConfig(opts.ModFreqHz)
	cfgRx := timing.NewConfig(opts.ModFreqHz)

	tx := link.NewTransmitter(pin, clock, cfgTx, link.TransmitterOpts{
		Repeat:     opts.RepeatCount,
		ParityBits: opts.ParityBits,
		Realtime:   opts.Realtime,
		Log:        log,
	})
	rx := link.NewReceiver(pin, clock, cfgRx, link.ReceiverOpts{
		Repeat:   opts.RepeatCount,
		Realtime: opts.Realtime,
		Log:      log,
	})

	return &Protocol{
		tx:         tx,
		rx:         rx,
		fifo:       fifo.New(opts.FIFODepth),
		cfgTx:      cfgTx,
		cfgRx:      cfgRx,
		parityBits: opts.ParityBits,
		log:        log,
	}
}

// SetModFreqHz updates both the transmitter's and the receiver's
// TimingConfig, keeping the two copies in sync.
func (p *Protocol) SetModFreqHz(hz uint32) {
	p.cfgTx.SetFreq(hz)
	p.cfgRx.SetFreq(hz)
}

// SetBatteryLevel records the battery level a host process measured,
// reported verbatim by READ_BATT.
func (p *Protocol) SetBatteryLevel(level uint8) { p.batteryLvl = level }

// SetUptime records the uptime tick count a host process measured,
// reported verbatim by READ_UPTIME.
func (p *Protocol) SetUptime(ticks uint32) { p.uptime = ticks }

// SetTemperature records a pass-through temperature reading reported
// verbatim by READ_FPGA_TEMP; this protocol never interprets it. The
// zero value means "unsupported", matching spec.md's "temperature
// frame (0 if unsupported)".
func (p *Protocol) SetTemperature(t uint8) { p.temperature = t }

// FIFO returns the sample queue backing READ_ALL/READ_ONE, so a host
// process can push synthetic or hardware-sourced ADC samples into it.
func (p *Protocol) FIFO() *fifo.SampleFIFO { return p.fifo }

// LastCommand returns the most recently decoded command and the
// channel address that accompanied it, as captured by ReadCmd.
func (p *Protocol) LastCommand() (cmd, chanAddr uint8) {
	return p.cmdCache, p.lastChAddr
}

func (p *Protocol) ensureOutput() {
	if !p.haveDir || p.pinMode != swim.Output {
		p.tx.Init()
		p.pinMode = swim.Output
		p.haveDir = true
	}
}

func (p *Protocol) ensureInput() {
	if !p.haveDir || p.pinMode != swim.Input {
		p.rx.Init()
		p.pinMode = swim.Input
		p.haveDir = true
	}
}

// SendCmd transmits a command frame: 3 bits of command code followed by
// a 5-bit channel address.
func (p *Protocol) SendCmd(cmd uint8, chAddr uint32) swim.Status {
	p.ensureOutput()
	payload := (uint64(cmd&0x7) << ChanAddrBits) | uint64(chAddr&0x1F)
	p.tx.SendPacket(CmdFrameDataBits, payload)
	return swim.Success
}

// ReadCmd receives a command frame and, if it passes parity, caches the
// decoded command and channel address for the next SendData call.
//
// The command is extracted as (packet >> P) >> 5, per spec.md §9's
// REDESIGN FLAG 3: the source's `(SWIM_CMD_MASK<<1)>>1` mask is only
// correct for P=1; this is the general form for any parity width.
func (p *Protocol) ReadCmd() swim.Status {
	p.ensureInput()
	packet, status := p.rx.RecvPacket(CmdFrameDataBits + p.parityBits)
	if status != swim.Success {
		return swim.Failure
	}
	if !link.CheckParity(packet, CmdFrameDataBits, p.parityBits) {
		return swim.Failure
	}
	data := packet >> p.parityBits
	p.cmdCache = uint8(data>>ChanAddrBits) & 0x7
	p.lastChAddr = uint8(data) & 0x1F
	return swim.Success
}

// SendData dispatches on the command cached by ReadCmd and emits the
// corresponding response frame(s).
func (p *Protocol) SendData() swim.Status {
	p.ensureOutput()

	switch p.cmdCache {
	case CmdSleep, CmdWakeup:
		p.tx.SendPacket(AckDataBits, Ack)
		return swim.Success

	case CmdReadAll:
		if p.fifo.Len() == 0 {
			return swim.Failure
		}
		for p.fifo.Len() > 0 {
			entry := p.fifo.Pop()
			p.tx.SendPacket(ChanFrameDataBits, uint64(fifoToChanData(entry)))
		}
		return swim.Success

	case CmdReadOne:
		if p.fifo.Len() == 0 {
			return swim.Failure
		}
		entry := p.fifo.Pop()
		p.tx.SendPacket(ChanFrameDataBits, uint64(fifoToChanData(entry)))
		return swim.Success

	case CmdReadBatt:
		p.tx.SendPacket(BattDataBits, uint64(p.batteryLvl))
		return swim.Success

	case CmdReadFPGATemp:
		p.tx.SendPacket(TempDataBits, uint64(p.temperature))
		return swim.Success

	case CmdReadUptime:
		p.tx.SendPacket(UptimeDataBits, uint64(p.uptime))
		return swim.Success

	default:
		p.tx.SendPacket(AckDataBits, Ack)
		return swim.Success
	}
}

// ReadAll receives channel-data frames until the driving stream goes
// idle, pushing each one that passes parity into the FIFO. Frames that
// fail parity are silently dropped, per spec.md §7's integrity-error
// handling. It returns Success once the idle timeout fires — that is
// the expected way this loop ends, not an error condition for the
// caller.
func (p *Protocol) ReadAll() swim.Status {
	p.ensureInput()
	for {
		packet, status := p.rx.RecvPacket(ChanFrameDataBits + p.parityBits)
		if status == swim.ErrorIdleTimeout {
			return swim.Success
		}
		if status != swim.Success {
			continue
		}
		if !link.CheckParity(packet, ChanFrameDataBits, p.parityBits) {
			continue
		}
		p.fifo.Push(chanPacketToFIFO(packet, p.parityBits))
	}
}

// ReadOne receives a single channel-data frame and, if it passes
// parity, pushes the decoded entry into the FIFO.
func (p *Protocol) ReadOne() swim.Status {
	p.ensureInput()
	packet, status := p.rx.RecvPacket(ChanFrameDataBits + p.parityBits)
	if status != swim.Success {
		return swim.Failure
	}
	if !link.CheckParity(packet, ChanFrameDataBits, p.parityBits) {
		return swim.Failure
	}
	p.fifo.Push(chanPacketToFIFO(packet, p.parityBits))
	return swim.Success
}

// SendWakeup sends a WAKEUP command to the submerged unit.
func (p *Protocol) SendWakeup() swim.Status { return p.SendCmd(CmdWakeup, 0) }

// SendSleep sends a SLEEP command to the submerged unit.
func (p *Protocol) SendSleep() swim.Status { return p.SendCmd(CmdSleep, 0) }

// chanPacketToFIFO decodes a received [chan:5][adc:12] channel-data
// frame (still carrying its parity bits) into the packed 20-bit FIFO
// representation [chan:5][gap:3][adc:12]. The shift by (gap-parity)
// on the channel field both strips the parity bits and inserts the
// 3-bit gap in one step.
func chanPacketToFIFO(packet uint64, parityBits uint8) uint32 {
	chanMask := uint64(0x1F) << (uint(AdcDataBits) + uint(parityBits))
	adcMask := uint64(0xFFF) << parityBits

	chanShifted := (packet & chanMask) << (fifoAddrGapBits - uint(parityBits))
	adc := (packet & adcMask) >> parityBits
	return uint32(chanShifted | adc)
}

// fifoToChanData packs a 20-bit FIFO entry back into a 17-bit
// [chan:5][adc:12] value ready for SendPacket, which appends parity
// itself.
func fifoToChanData(entry uint32) uint32 {
	const chanMask = 0x1F << (AdcDataBits + fifoAddrGapBits) // bits 15..19
	const adcMask = 0xFFF                                    // bits 0..11
	chanAddr := (entry & chanMask) >> fifoAddrGapBits
	adc := entry & adcMask
	return chanAddr | adc
}
