package dsp

// BilinearFilters holds the two-tap filters for the eight 1/8-pel offsets.
// Taps sum to 128 (7-bit precision).
var BilinearFilters = [8][2]int{
	{128, 0}, {112, 16}, {96, 32}, {80, 48},
	{64, 64}, {48, 80}, {32, 96}, {16, 112},
}

const (
	filterShift    = 7
	filterRounding = 1 << (filterShift - 1)
)

// sumSSE returns the signed sum and the sum of squares of src - ref.
func sumSSE(src []byte, srcOff, srcStride int, ref []byte, refOff, refStride, w, h int) (sum, sse int) {
	for y := 0; y < h; y++ {
		s := src[srcOff : srcOff+w]
		r := ref[refOff : refOff+w]
		for x := range s {
			d := int(s[x]) - int(r[x])
			sum += d
			sse += d * d
		}
		srcOff += srcStride
		refOff += refStride
	}
	return sum, sse
}

// log2Area returns log2(w*h) for the supported power-of-two block sizes.
func log2Area(w, h int) uint {
	n := uint(0)
	for a := w * h; a > 1; a >>= 1 {
		n++
	}
	return n
}

// VarianceSum returns the block variance (sse - sum^2/N), the raw SSE and
// the signed sum of differences used for the mean subtraction.
func VarianceSum(src []byte, srcOff, srcStride int, ref []byte, refOff, refStride, w, h int) (variance, sse, sum int) {
	sum, sse = sumSSE(src, srcOff, srcStride, ref, refOff, refStride, w, h)
	return sse - (sum*sum)>>log2Area(w, h), sse, sum
}

// Variance is VarianceSum without the sum.
func Variance(src []byte, srcOff, srcStride int, ref []byte, refOff, refStride, w, h int) (variance, sse int) {
	variance, sse, _ = VarianceSum(src, srcOff, srcStride, ref, refOff, refStride, w, h)
	return variance, sse
}

// Variance16x16 is Variance for a luma macroblock.
func Variance16x16(src []byte, srcOff, srcStride int, ref []byte, refOff, refStride int) (int, int) {
	return Variance(src, srcOff, srcStride, ref, refOff, refStride, 16, 16)
}

// Variance8x8 is Variance for a chroma block or luma quadrant.
func Variance8x8(src []byte, srcOff, srcStride int, ref []byte, refOff, refStride int) (int, int) {
	return Variance(src, srcOff, srcStride, ref, refOff, refStride, 8, 8)
}

// MSE16x16 returns the plain SSE of a luma macroblock.
func MSE16x16(src []byte, srcOff, srcStride int, ref []byte, refOff, refStride int) int {
	_, sse := sumSSE(src, srcOff, srcStride, ref, refOff, refStride, 16, 16)
	return sse
}

// SSE returns the sum of squared differences of a w x h block.
func SSE(src []byte, srcOff, srcStride int, ref []byte, refOff, refStride, w, h int) int {
	_, sse := sumSSE(src, srcOff, srcStride, ref, refOff, refStride, w, h)
	return sse
}

// BilinearPredict writes the w x h block of ref displaced by (xoff, yoff)
// eighth-pels into dst (stride dstStride). When yoff is fractional the
// horizontal pass produces h+1 rows which the vertical pass then filters.
func BilinearPredict(ref []byte, refOff, refStride, xoff, yoff int, dst []byte, dstOff, dstStride, w, h int) {
	var tmp [17 * 16]int
	hf := BilinearFilters[xoff&7]
	vf := BilinearFilters[yoff&7]

	rows := h
	if vf[1] != 0 {
		rows++
	}
	for y := 0; y < rows; y++ {
		row := refOff + y*refStride
		for x := 0; x < w; x++ {
			if hf[1] == 0 {
				tmp[y*w+x] = int(ref[row+x])
				continue
			}
			tmp[y*w+x] = (int(ref[row+x])*hf[0] + int(ref[row+x+1])*hf[1] + filterRounding) >> filterShift
		}
	}
	for y := 0; y < h; y++ {
		out := dstOff + y*dstStride
		for x := 0; x < w; x++ {
			if vf[1] == 0 {
				dst[out+x] = uint8(tmp[y*w+x])
				continue
			}
			dst[out+x] = uint8((tmp[y*w+x]*vf[0] + tmp[(y+1)*w+x]*vf[1] + filterRounding) >> filterShift)
		}
	}
}

// SubPixelVariance returns the variance and SSE of src against ref displaced
// by a fractional (xoff, yoff) offset in 1/8-pel units (0..7 each).
func SubPixelVariance(ref []byte, refOff, refStride, xoff, yoff int, src []byte, srcOff, srcStride, w, h int) (variance, sse int) {
	var pred [16 * 16]byte
	BilinearPredict(ref, refOff, refStride, xoff, yoff, pred[:], 0, w, w, h)
	return Variance(src, srcOff, srcStride, pred[:], 0, w, w, h)
}

// HalfPixVarianceH is SubPixelVariance at the horizontal half-pel position.
func HalfPixVarianceH(ref []byte, refOff, refStride int, src []byte, srcOff, srcStride, w, h int) (int, int) {
	return SubPixelVariance(ref, refOff, refStride, 4, 0, src, srcOff, srcStride, w, h)
}

// HalfPixVarianceV is SubPixelVariance at the vertical half-pel position.
func HalfPixVarianceV(ref []byte, refOff, refStride int, src []byte, srcOff, srcStride, w, h int) (int, int) {
	return SubPixelVariance(ref, refOff, refStride, 0, 4, src, srcOff, srcStride, w, h)
}

// HalfPixVarianceHV is SubPixelVariance at the diagonal half-pel position.
func HalfPixVarianceHV(ref []byte, refOff, refStride int, src []byte, srcOff, srcStride, w, h int) (int, int) {
	return SubPixelVariance(ref, refOff, refStride, 4, 4, src, srcOff, srcStride, w, h)
}

// BlockError returns the squared error between transform coefficients and
// their dequantized values.
func BlockError(coeff, dqcoeff []int16) int {
	_ = coeff[15]
	_ = dqcoeff[15]
	err := 0
	for i := 0; i < 16; i++ {
		d := int(coeff[i]) - int(dqcoeff[i])
		err += d * d
	}
	return err
}
