package quant

// MaxLevel bounds the magnitude of a quantized coefficient.
const MaxLevel = 2047

func clampLevel(y int) int {
	if y > MaxLevel {
		return MaxLevel
	}
	return y
}

// RegularQuantizeB quantizes a 4x4 block of raster-order coefficients.
// A coefficient is coded only when its magnitude reaches the zbin threshold,
// which grows along a run of zeros and resets after every nonzero level.
// It returns the end of block: one past the scan position of the last
// nonzero level, or 0 when every level is zero.
func RegularQuantizeB(coeff []int16, b *Block, zbinExtra int, qcoeff, dqcoeff []int16) int {
	_ = coeff[15]
	_ = qcoeff[15]
	_ = dqcoeff[15]
	clear(qcoeff[:16])
	clear(dqcoeff[:16])

	eob := -1
	boost := 0
	for i := 0; i < 16; i++ {
		rc := Zigzag[i]
		z := int(coeff[rc])
		zbin := int(b.Zbin[rc]) + int(b.ZrunBoost[boost]) + zbinExtra
		if boost < 15 {
			boost++
		}
		sz := z >> 31
		x := (z ^ sz) - sz
		if x < zbin {
			continue
		}
		x += int(b.Round[rc])
		y := clampLevel((((x * int(b.Quant[rc])) >> 16) + x) * int(b.QuantShift[rc]) >> 16)
		v := (y ^ sz) - sz
		qcoeff[rc] = int16(v)
		dqcoeff[rc] = int16(v * int(b.Dequant[rc]))
		if y != 0 {
			eob = i
			boost = 0
		}
	}
	return eob + 1
}

// FastQuantizeB quantizes without a dead zone, rounding every coefficient
// with a single reciprocal multiply.
func FastQuantizeB(coeff []int16, b *Block, qcoeff, dqcoeff []int16) int {
	_ = coeff[15]
	_ = qcoeff[15]
	_ = dqcoeff[15]

	eob := -1
	for i := 0; i < 16; i++ {
		rc := Zigzag[i]
		z := int(coeff[rc])
		sz := z >> 31
		x := (z ^ sz) - sz
		y := clampLevel(((x + int(b.Round[rc])) * int(b.QuantFast[rc])) >> 16)
		v := (y ^ sz) - sz
		qcoeff[rc] = int16(v)
		dqcoeff[rc] = int16(v * int(b.Dequant[rc]))
		if y != 0 {
			eob = i
		}
	}
	return eob + 1
}

// Dequantize scales levels back into the coefficient domain.
func Dequantize(qcoeff []int16, b *Block, dqcoeff []int16) {
	_ = qcoeff[15]
	_ = dqcoeff[15]
	for i := 0; i < 16; i++ {
		dqcoeff[i] = int16(int(qcoeff[i]) * int(b.Dequant[i]))
	}
}

// RDCost combines a rate in 1/256 bits and a distortion into a single
// comparable score.
func RDCost(rdMult, rdDiv, rate, dist int) int {
	return ((128 + rate*rdMult) >> 8) + rdDiv*dist
}

// RDTrunc is the fractional part dropped by RDCost, used to break exact ties.
func RDTrunc(rdMult, rdDiv, rate, dist int) int {
	return (128 + rate*rdMult) & 0xff
}
