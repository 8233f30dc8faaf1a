package firmata

import "math"

const maxSignificand = 1 << 23

// EncodeSigned32 packs a signed 32-bit value into five 7-bit bytes,
// least-significant first. The sign travels in bit 3 of the final byte
// (sign-magnitude, matching the AccelStepper feature of ConfigurableFirmata).
func EncodeSigned32(v int32) [5]byte {
	neg := v < 0
	u := uint32(v)
	if neg {
		u = uint32(-int64(v))
	}
	out := [5]byte{
		byte(u & 0x7F),
		byte((u >> 7) & 0x7F),
		byte((u >> 14) & 0x7F),
		byte((u >> 21) & 0x7F),
		byte((u >> 28) & 0x07),
	}
	if neg {
		out[4] |= 0x08
	}
	return out
}

// DecodeSigned32 is the inverse of EncodeSigned32. The slice must hold at
// least five bytes.
func DecodeSigned32(b []byte) int32 {
	u := uint32(b[0]&0x7F) |
		uint32(b[1]&0x7F)<<7 |
		uint32(b[2]&0x7F)<<14 |
		uint32(b[3]&0x7F)<<21 |
		uint32(b[4]&0x07)<<28
	v := int32(u)
	if b[4]&0x08 != 0 {
		v = -v
	}
	return v
}

// EncodeFloat packs a float into the AccelStepper custom float format: a
// 23-bit significand, a base-10 exponent biased by 11, and a sign bit,
// spread over four 7-bit bytes.
func EncodeFloat(v float64) [4]byte {
	if v == 0 {
		return [4]byte{}
	}
	var sign byte
	if v < 0 {
		sign = 1
		v = -v
	}
	exponent := int(math.Floor(math.Log10(v)))
	v /= math.Pow(10, float64(exponent))
	for v != math.Trunc(v) && v < maxSignificand {
		v *= 10
		exponent--
	}
	for v > maxSignificand {
		v /= 10
		exponent++
	}
	// Spend significand digits to pull the exponent into its 4-bit biased
	// range (-11..4).
	for exponent > 4 && v*10 < maxSignificand {
		v *= 10
		exponent--
	}
	if exponent > 4 {
		v = maxSignificand - 1
		exponent = 4
	}
	if exponent < -11 {
		return [4]byte{}
	}
	s := uint32(math.Trunc(v))
	exponent += 11
	return [4]byte{
		byte(s & 0x7F),
		byte((s >> 7) & 0x7F),
		byte((s >> 14) & 0x7F),
		byte((s>>21)&0x03) | byte(exponent&0x0F)<<2 | sign<<6,
	}
}

// DecodeFloat is the inverse of EncodeFloat. The slice must hold at least
// four bytes.
func DecodeFloat(b []byte) float64 {
	s := uint32(b[0]&0x7F) |
		uint32(b[1]&0x7F)<<7 |
		uint32(b[2]&0x7F)<<14 |
		uint32(b[3]&0x03)<<21
	exponent := int((b[3]>>2)&0x0F) - 11
	f := float64(s) * math.Pow(10, float64(exponent))
	if (b[3]>>6)&0x01 == 1 {
		f = -f
	}
	return f
}
