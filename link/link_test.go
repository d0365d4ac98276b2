package link

import (
	"sync"
	"testing"
	"time"

	"github.com/tve/swim"
	"github.com/tve/swim/timing"
)

// wallClock is a Clock backed by the real monotonic clock, used for
// loopback tests since the transmitter and receiver busy-wait against
// wall-clock time by design (spec.md §5: best-effort, no interrupts).
type wallClock struct{ t0 time.Time }

func newWallClock() *wallClock { return &wallClock{t0: time.Now()} }

func (c *wallClock) NowUS() uint64 { return uint64(time.Since(c.t0).Microseconds()) }
func (c *wallClock) NowMS() uint64 { return uint64(time.Since(c.t0).Milliseconds()) }

// wire is the shared line a loopback txPin writes to and an rxPin reads
// from, connecting a Transmitter directly to a Receiver in memory.
type wire struct {
	mu       sync.Mutex
	level    int
	lastHigh time.Time
}

// demodHold is how long demodulated keeps reporting carrier after the
// last high write, bridging the short low phase of each carrier cycle
// the way the receiver's band-pass demodulator does.
const demodHold = 15 * time.Microsecond

func (w *wire) set(l int) {
	w.mu.Lock()
	w.level = l
	if l != 0 {
		w.lastHigh = time.Now()
	}
	w.mu.Unlock()
}

func (w *wire) get() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.level
}

// demodulated reports 1 while a carrier burst is on the line, as the
// swim.Pin contract requires of a receive-side Read.
func (w *wire) demodulated() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.level != 0 || time.Since(w.lastHigh) < demodHold {
		return 1
	}
	return 0
}

type txPin struct{ w *wire }

func (p *txPin) SetDirection(swim.Direction) error { return nil }
func (p *txPin) Read() int                         { return p.w.get() }
func (p *txPin) Write(level int)                   { p.w.set(level) }

type rxPin struct{ w *wire }

func (p *rxPin) SetDirection(swim.Direction) error { return nil }
func (p *rxPin) Read() int                         { return p.w.demodulated() }
func (p *rxPin) Write(level int)                   { p.w.set(level) }

func newLoopback(cfg *timing.Config, repeat, parityBits uint8) (*Transmitter, *Receiver) {
	w := &wire{}
	clk := newWallClock()
	tx := NewTransmitter(&txPin{w}, clk, cfg, TransmitterOpts{Repeat: repeat, ParityBits: parityBits})
	rx := NewReceiver(&rxPin{w}, clk, cfg, ReceiverOpts{Repeat: repeat})
	return tx, rx
}

func Test_RoundTrip_VariousWidths(t *testing.T) {
	cfg := timing.NewConfig(timing.DefaultModFreqHz)
	for _, dataBits := range []uint8{3, 8, 17, 32} {
		for _, parityBits := range []uint8{0, 1, 2} {
			tx, rx := newLoopback(cfg, 3, parityBits)
			var payload uint64
			if dataBits >= 64 {
				payload = ^uint64(0)
			} else {
				payload = (uint64(1) << dataBits) - 1 // all-ones payload
				payload ^= 0x2 // flip a bit so it isn't trivially all-ones
			}

			done := make(chan struct{ pkt uint64; status swim.Status })
			go func() {
				pkt, status := rx.RecvPacket(dataBits + parityBits)
				done <- struct {
					pkt    uint64
					status swim.Status
				}{pkt, status}
			}()
			time.Sleep(2 * time.Millisecond) // let the receiver reach IDLE wait
			tx.SendPacket(dataBits, payload)

			result := <-done
			if result.status != swim.Success {
				t.Fatalf("dataBits=%d parityBits=%d: recv status = %v, want Success",
					dataBits, parityBits, result.status)
			}
			if !CheckParity(result.pkt, dataBits, parityBits) {
				t.Fatalf("dataBits=%d parityBits=%d: parity check failed on %x",
					dataBits, parityBits, result.pkt)
			}
			gotData := (result.pkt >> parityBits) & ((uint64(1) << dataBits) - 1)
			wantData := payload
			if dataBits < 64 {
				wantData &= (uint64(1) << dataBits) - 1
			}
			if gotData != wantData {
				t.Fatalf("dataBits=%d parityBits=%d: got payload %x, want %x",
					dataBits, parityBits, gotData, wantData)
			}
		}
	}
}

func Test_SendPacket_ZeroDataBits(t *testing.T) {
	// spec.md §8: send_packet with D=0 emits header + R empty frames
	// separated by gaps. With D=0 and P=0 every frame has zero symbols,
	// but the header and gaps must still appear, so a receiver expecting
	// 0 bits per frame should finish once it has read the header and the
	// gaps, without reading any data symbol.
	cfg := timing.NewConfig(timing.DefaultModFreqHz)
	tx, rx := newLoopback(cfg, 3, 0)

	done := make(chan swim.Status)
	go func() {
		_, status := rx.RecvPacket(0)
		done <- status
	}()
	time.Sleep(2 * time.Millisecond)
	tx.SendPacket(0, 0)

	if status := <-done; status != swim.Success {
		t.Fatalf("zero-width packet: got status %v, want Success", status)
	}
}

func Test_IdleTimeout(t *testing.T) {
	// Use a very high modulation frequency so period_us is small and the
	// idle timeout (100000 * period_us / 1000 ms) completes quickly.
	cfg := timing.NewConfig(2_000_000)
	w := &wire{}
	clk := newWallClock()
	rx := NewReceiver(&rxPin{w}, clk, cfg, ReceiverOpts{Repeat: 3})

	status := make(chan swim.Status, 1)
	go func() {
		_, s := rx.RecvPacket(8)
		status <- s
	}()

	select {
	case s := <-status:
		if s != swim.ErrorIdleTimeout {
			t.Fatalf("expected ErrorIdleTimeout, got %v", s)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("recv_packet did not time out in time")
	}
}

func Test_Vote_MajorityWins(t *testing.T) {
	cases := []struct {
		name string
		data []uint64
		bits uint8
		want uint64
	}{
		{"unanimous", []uint64{0b101, 0b101, 0b101}, 3, 0b101},
		{"one dissenter per bit", []uint64{0b101, 0b101, 0b010}, 3, 0b101},
		{"single repeat passthrough", []uint64{0b110}, 3, 0b110},
		{"tie favors one (4 repeats, 2-2 split)", []uint64{0b1, 0b1, 0b0, 0b0}, 1, 0b1},
	}
	for _, tc := range cases {
		got := Vote(tc.data, len(tc.data), tc.bits)
		if got != tc.want {
			t.Fatalf("%s: Vote() = %b, want %b", tc.name, got, tc.want)
		}
	}
}

func Test_Parity_RoundTrip(t *testing.T) {
	for _, p := range []uint8{0, 1, 2} {
		for dataBits := uint8(1); dataBits <= 20; dataBits++ {
			for _, payload := range []uint64{0, 1, 0x5555, (1 << dataBits) - 1} {
				data := payload & ((uint64(1) << dataBits) - 1)
				parity := Parity(data, dataBits, p)
				frame := (data << p) | parity
				if !CheckParity(frame, dataBits, p) {
					t.Fatalf("parity=%d dataBits=%d payload=%x: CheckParity failed on frame %x",
						p, dataBits, payload, frame)
				}
			}
		}
	}
}

func Test_Parity_DetectsCorruption(t *testing.T) {
	data := uint64(0b10110)
	parity := Parity(data, 5, 1)
	frame := (data << 1) | parity
	corrupted := frame ^ (1 << 3) // flip a data bit
	if CheckParity(corrupted, 5, 1) {
		t.Fatal("expected CheckParity to reject a single-bit corruption")
	}
}
