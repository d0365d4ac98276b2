// Package swim implements the core of the SWIM link-layer communication
// stack: carrier timing, symbol framing, the packet state machine and
// the command/response protocol that ties them together. The physical
// medium is a modulated LED/photodiode pair imitating a classical
// consumer-IR protocol between a surface controller and a submerged
// data-acquisition unit.
//
// The package itself only defines the shared vocabulary the rest of the
// stack depends on: the Clock and Pin ports, the Direction type, the
// LogPrintf hook and the Status codes; concrete hardware bindings live in hwport, device
// drivers that feed the protocol live in thermo, and the command set
// and packet layout live in swimproto.
package swim
