// Package telemetry packs orientation estimates into the fixed-size
// notification payload.
//
// The record is 12 bytes, big-endian:
//
//	0-1  sequence counter (wraps; lets the host detect dropped notifications)
//	2    flags (bit0: orientation valid)
//	3    reserved (zero)
//	4-11 unit quaternion w,x,y,z as Q1.14 fixed point
package telemetry

import "fmt"

const (
	// RecordLen is the wire size of one orientation record.
	RecordLen = 12

	flagValid = 0x01

	// Q1.14: one sign bit, one integer bit, fourteen fraction bits.
	fixedScale = 1 << 14
)

type Record struct {
	Seq   uint16
	Valid bool
	// Quaternion w,x,y,z.
	Q [4]float64
}

// Encode packs r into its wire form.
func Encode(r Record) []byte {
	out := make([]byte, RecordLen)
	out[0] = byte(r.Seq >> 8)
	out[1] = byte(r.Seq & 0xFF)
	if r.Valid {
		out[2] = flagValid
	}
	for i, c := range r.Q {
		v := q14(c)
		out[4+2*i] = byte(uint16(v) >> 8)
		out[5+2*i] = byte(uint16(v) & 0xFF)
	}
	return out
}

// Decode unpacks a wire record. Host-side aid; the firmware only encodes.
func Decode(b []byte) (Record, error) {
	if len(b) != RecordLen {
		return Record{}, fmt.Errorf("telemetry: record length %d, want %d", len(b), RecordLen)
	}
	r := Record{
		Seq:   uint16(b[0])<<8 | uint16(b[1]),
		Valid: b[2]&flagValid != 0,
	}
	for i := range r.Q {
		v := int16(uint16(b[4+2*i])<<8 | uint16(b[5+2*i]))
		r.Q[i] = float64(v) / fixedScale
	}
	return r, nil
}

func q14(v float64) int16 {
	scaled := v * fixedScale
	if scaled > 32767 {
		return 32767
	}
	if scaled < -32768 {
		return -32768
	}
	if scaled >= 0 {
		return int16(scaled + 0.5)
	}
	return int16(scaled - 0.5)
}
