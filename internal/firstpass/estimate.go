package firstpass

import (
	"math"

	"github.com/deepteams/vp8rd/internal/quant"
)

const (
	// MaxQ is the largest quantizer index.
	MaxQ = quant.NumQIndex - 1
	// bperMBNormBits is the fixed-point precision of the bits per
	// macroblock model.
	bperMBNormBits = 9
)

// bitsPerMB is the expected cost of an average inter macroblock at each
// quantizer, scaled by 1<<bperMBNormBits. The model is inverse in the AC
// step: doubling the step halves the bits.
var bitsPerMB = func() (t [quant.NumQIndex]int) {
	for q := range t {
		t[q] = 4500000 / int(quant.ACQLookup[q])
	}
	return t
}()

// correctionFactor scales the bits model by how hard the content is. The
// exponent grows with q because coarse quantization flattens the
// dependence on error.
func correctionFactor(errPerMB, errDivisor, powLow, powHigh float64, q int) float64 {
	errorTerm := errPerMB / errDivisor
	power := powLow + float64(q)*0.01
	if power > powHigh {
		power = powHigh
	}
	c := math.Pow(errorTerm, power)
	switch {
	case c < 0.05:
		return 0.05
	case c > 5:
		return 5
	}
	return c
}

// targetNormBits converts a per-frame budget to scaled bits per macroblock.
func targetNormBits(bitsPerFrame, mbs int) int {
	if bitsPerFrame > math.MaxInt32>>bperMBNormBits {
		return (bitsPerFrame / mbs) << bperMBNormBits
	}
	return (bitsPerFrame << bperMBNormBits) / mbs
}

// EstimateMaxQ returns the lowest quantizer in [minQ, maxQ] whose modelled
// cost for a frame with the given error per macroblock fits bitsPerFrame.
// correction is the rolling ratio of spent to target bits.
func EstimateMaxQ(errPerMB float64, bitsPerFrame, mbs, minQ, maxQ int, correction float64) int {
	if bitsPerFrame <= 0 || mbs <= 0 {
		return maxQ
	}
	target := targetNormBits(bitsPerFrame, mbs)
	q := minQ
	for ; q < maxQ; q++ {
		c := correctionFactor(errPerMB, 150, 0.40, 0.90, q)
		if int(0.5+c*correction*float64(bitsPerMB[q])) <= target {
			break
		}
	}
	return q
}

// EstimateKFGroupQ is EstimateMaxQ for a key frame group whose intra to
// inter error ratio is iiRatio. Easy to predict groups get a lower
// estimate. The result may exceed maxQ, up to twice MaxQ, to express how
// far the budget falls short.
func EstimateKFGroupQ(errPerMB float64, bitsPerFrame, mbs, minQ, maxQ int, iiRatio, correction float64) int {
	if bitsPerFrame <= 0 || mbs <= 0 {
		return maxQ * 2
	}
	target := targetNormBits(bitsPerFrame, mbs)
	iiCorrection := 1 - (iiRatio-6)*0.1
	if iiCorrection < 0.5 {
		iiCorrection = 0.5
	}
	combined := iiCorrection * correction

	q := minQ
	bits := math.MaxInt32
	for ; q < maxQ; q++ {
		c := correctionFactor(errPerMB, 150, 0.40, 0.90, q)
		if bits = int(0.5 + c*combined*float64(bitsPerMB[q])); bits <= target {
			return q
		}
	}
	for bits > target && q < MaxQ*2 {
		bits = int(0.96 * float64(bits))
		q++
	}
	return q
}

// EstimateCQ returns the quantizer a constrained quality clip can afford,
// clamped to [cqLevel, maxQ). clipIIRatio is the intra to inter error ratio
// of the whole clip.
func EstimateCQ(errPerMB float64, bitsPerFrame, mbs, cqLevel, maxQ int, clipIIRatio float64) int {
	iiFactor := 1 - (clipIIRatio-10)*0.025
	if iiFactor < 0.8 {
		iiFactor = 0.8
	}
	q := cqLevel
	if bitsPerFrame > 0 && mbs > 0 {
		target := targetNormBits(bitsPerFrame, mbs)
		for ; q < maxQ; q++ {
			c := correctionFactor(errPerMB, 100, 0.40, 0.90, q)
			if int(0.5+c*iiFactor*float64(bitsPerMB[q])) <= target {
				break
			}
		}
	}
	if q >= maxQ {
		q = maxQ - 1
	}
	if q < cqLevel {
		q = cqLevel
	}
	return q
}
