package executor

import (
	"encoding/binary"
	"math"
	"math/rand"

	"github.com/zarrbench/zarrbench/pkg/models"
)

// syntheticSeed keeps generated volumes reproducible across runs
const syntheticSeed = 42

// GenerateVolume produces a synthetic dataset for the spec: a smooth
// low-frequency signal with additive noise, which compresses the way real
// microscopy volumes do (noticeably, but nowhere near all-zeros).
func GenerateVolume(spec models.BenchmarkSpec) []byte {
	elems := int(spec.TotalBytes()) / spec.ElementSize()
	rng := rand.New(rand.NewSource(syntheticSeed))

	switch spec.Dtype {
	case "uint8":
		buf := make([]byte, elems)
		for i := range buf {
			buf[i] = uint8(signalAt(i) + rng.Float64()*16)
		}
		return buf
	case "uint16":
		buf := make([]byte, elems*2)
		for i := 0; i < elems; i++ {
			v := uint16(signalAt(i)*16 + rng.Float64()*256)
			binary.LittleEndian.PutUint16(buf[i*2:], v)
		}
		return buf
	default: // float32
		buf := make([]byte, elems*4)
		for i := 0; i < elems; i++ {
			// Regions below the detection floor stay zero, like the empty
			// background surrounding a specimen. The runs of zeros are what
			// make real volumes compressible.
			s := signalAt(i)
			var v float32
			if s > 90 {
				v = float32(s + rng.NormFloat64()*4)
			}
			binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
		}
		return buf
	}
}

// signalAt is a cheap stand-in for structured image content: overlapping
// sinusoids with different wavelengths, in the range [0, ~200].
func signalAt(i int) float64 {
	x := float64(i)
	return 100 +
		50*math.Sin(x/173) +
		30*math.Sin(x/1031) +
		20*math.Sin(x/7919)
}
