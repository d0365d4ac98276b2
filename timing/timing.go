// Package timing computes the carrier modulation period and the
// per-symbol pulse counts the optical link frames its symbols with.
//
// Symbol widths are expressed in modulation pulses rather than
// microseconds so that the transmitter and receiver only ever need to
// count cycles of the carrier, not track wall-clock time directly;
// Config.PeriodUS converts one pulse into a microsecond count for the
// busy-wait loops in package link.
package timing

// Symbol identifies one of the four waveforms the optical link sends:
// a "1" bit, a "0" bit, the packet header, or the inter-repeat gap.
type Symbol int

const (
	SymbolOne Symbol = iota
	SymbolZero
	SymbolHeader
	SymbolGap
)

// Pulse counts per symbol, per the SWIM wire format. These are fixed
// by the protocol, not configurable.
const (
	pulsesOneBurst  = 23
	pulsesOneIdle   = 23
	pulsesZeroBurst = 12
	pulsesZeroIdle  = 23

	pulsesHeaderBurst = 46
	pulsesHeaderIdle  = 35

	pulsesGapBurst = 35
	pulsesGapIdle  = 23
)

// DefaultModFreqHz is the carrier frequency used unless a config
// overrides it, matched to the VSOP383x-class demodulator the
// photodiode receiver front end is built around.
const DefaultModFreqHz = 38000

// ToleranceNum/ToleranceDen scale a threshold burst width down to
// absorb emitter/receiver slew and clock skew between nodes (spec:
// 60% of the nominal burst width).
const (
	ToleranceNum = 6
	ToleranceDen = 10
)

// Config holds the modulation frequency and the pulse period derived
// from it. The zero value is not usable; call NewConfig.
type Config struct {
	modFreqHz uint32
	periodUS  uint32
}

// NewConfig builds a Config for the given nominal modulation
// frequency, in Hz (or kHz, see Recompute).
func NewConfig(modFreqHz uint32) *Config {
	c := &Config{modFreqHz: modFreqHz}
	c.Recompute()
	return c
}

// SetFreq changes the modulation frequency and recomputes the derived
// period.
func (c *Config) SetFreq(hz uint32) {
	c.modFreqHz = hz
	c.Recompute()
}

// Recompute derives period_us from mod_freq_hz. It is idempotent: calling
// it repeatedly without changing mod_freq_hz always yields the same
// result.
//
// A configured frequency under 1000 is interpreted as having been given
// in kHz (e.g. 38 meaning 38kHz) and is folded to Hz before the period is
// derived. A frequency of 0 is clamped to 1 rather than producing a
// divide-by-zero, and that 1 is then folded like any other value under
// 1000, giving 1000Hz.
func (c *Config) Recompute() {
	hz := c.modFreqHz
	if hz == 0 {
		hz = 1
	}
	if hz < 1000 {
		hz *= 1000
	}
	c.modFreqHz = hz
	period := (uint32(1e6) + hz/2) / hz
	if period < 1 {
		period = 1
	}
	c.periodUS = period
}

// PeriodUS returns the duration, in microseconds, of a single
// modulation-frequency cycle. Always >= 1.
func (c *Config) PeriodUS() uint32 {
	return c.periodUS
}

// ModFreqHz returns the (possibly kHz-folded) modulation frequency in Hz.
func (c *Config) ModFreqHz() uint32 {
	return c.modFreqHz
}

// HighPeriodUS returns the portion of one modulation pulse the carrier
// should be driven high for, an 80% duty cycle.
func (c *Config) HighPeriodUS() uint32 {
	return c.periodUS * 4 / 5
}

// PulsesFor returns the burst and idle pulse counts for a symbol.
func (c *Config) PulsesFor(s Symbol) (burst, idle uint32) {
	switch s {
	case SymbolOne:
		return pulsesOneBurst, pulsesOneIdle
	case SymbolZero:
		return pulsesZeroBurst, pulsesZeroIdle
	case SymbolHeader:
		return pulsesHeaderBurst, pulsesHeaderIdle
	case SymbolGap:
		return pulsesGapBurst, pulsesGapIdle
	default:
		return 0, 0
	}
}

// ThresholdUS returns the classification threshold, in microseconds, for
// a burst of the given symbol: a measured burst at or above this width
// is recognized as that symbol. It is the nominal burst width scaled by
// the tolerance factor described in spec.md §4.4.
func (c *Config) ThresholdUS(s Symbol) uint32 {
	burst, _ := c.PulsesFor(s)
	return burst * c.periodUS * ToleranceNum / ToleranceDen
}
