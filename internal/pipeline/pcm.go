// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package pipeline

import (
	"encoding/binary"
	"math"
)

// Float32ToPCM16 converts little-endian float32 samples to 16-bit PCM.
func Float32ToPCM16(in []byte) []byte {
	n := len(in) / 4
	out := make([]byte, n*2)
	for i := 0; i < n; i++ {
		f := math.Float32frombits(binary.LittleEndian.Uint32(in[i*4:]))
		if f > 1 {
			f = 1
		} else if f < -1 {
			f = -1
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(f*math.MaxInt16)))
	}
	return out
}

// HasSignal reports whether a float32 buffer contains any non-zero sample.
func HasSignal(in []byte) bool {
	for i := 0; i+4 <= len(in); i += 4 {
		if binary.LittleEndian.Uint32(in[i:])&0x7fffffff != 0 {
			return true
		}
	}
	return false
}

// Resample converts 16-bit mono PCM between sample rates with linear
// interpolation.
func Resample(in []byte, from, to int) []byte {
	if from == to || from <= 0 || to <= 0 || len(in) < 2 {
		return in
	}
	n := len(in) / 2
	outN := int(int64(n) * int64(to) / int64(from))
	out := make([]byte, outN*2)
	sample := func(i int) float64 {
		if i >= n {
			i = n - 1
		}
		return float64(int16(binary.LittleEndian.Uint16(in[i*2:])))
	}
	ratio := float64(from) / float64(to)
	for i := 0; i < outN; i++ {
		pos := float64(i) * ratio
		j := int(pos)
		frac := pos - float64(j)
		v := sample(j)*(1-frac) + sample(j+1)*frac
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(math.Round(v))))
	}
	return out
}
