package dsp

// SAD returns the sum of absolute differences between a w x h block of src
// and ref. Offsets are the indices of the top-left pixel in each buffer.
func SAD(src []byte, srcOff, srcStride int, ref []byte, refOff, refStride, w, h int) int {
	sad := 0
	for y := 0; y < h; y++ {
		s := src[srcOff : srcOff+w]
		r := ref[refOff : refOff+w]
		for x := range s {
			d := int(s[x]) - int(r[x])
			if d < 0 {
				d = -d
			}
			sad += d
		}
		srcOff += srcStride
		refOff += refStride
	}
	return sad
}

// SADMax is SAD with an early exit: once the running sum exceeds limit the
// partial sum is returned. Rows are checked as a whole, so the result may
// overshoot limit by up to one row.
func SADMax(src []byte, srcOff, srcStride int, ref []byte, refOff, refStride, w, h, limit int) int {
	sad := 0
	for y := 0; y < h; y++ {
		s := src[srcOff : srcOff+w]
		r := ref[refOff : refOff+w]
		for x := range s {
			d := int(s[x]) - int(r[x])
			if d < 0 {
				d = -d
			}
			sad += d
		}
		if sad > limit {
			return sad
		}
		srcOff += srcStride
		refOff += refStride
	}
	return sad
}

// SAD16x16 is SAD for a full luma macroblock.
func SAD16x16(src []byte, srcOff, srcStride int, ref []byte, refOff, refStride int) int {
	_ = src[srcOff+15*srcStride+15]
	_ = ref[refOff+15*refStride+15]
	return SAD(src, srcOff, srcStride, ref, refOff, refStride, 16, 16)
}

// SAD16x8 is SAD for the upper or lower half of a macroblock.
func SAD16x8(src []byte, srcOff, srcStride int, ref []byte, refOff, refStride int) int {
	return SAD(src, srcOff, srcStride, ref, refOff, refStride, 16, 8)
}

// SAD8x16 is SAD for the left or right half of a macroblock.
func SAD8x16(src []byte, srcOff, srcStride int, ref []byte, refOff, refStride int) int {
	return SAD(src, srcOff, srcStride, ref, refOff, refStride, 8, 16)
}

// SAD8x8 is SAD for a macroblock quadrant or a chroma block.
func SAD8x8(src []byte, srcOff, srcStride int, ref []byte, refOff, refStride int) int {
	return SAD(src, srcOff, srcStride, ref, refOff, refStride, 8, 8)
}

// SAD4x4 is SAD for a single transform sub-block.
func SAD4x4(src []byte, srcOff, srcStride int, ref []byte, refOff, refStride int) int {
	sad := 0
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			d := int(src[srcOff+x]) - int(ref[refOff+x])
			if d < 0 {
				d = -d
			}
			sad += d
		}
		srcOff += srcStride
		refOff += refStride
	}
	return sad
}

// SADFunc is the signature shared by the fixed-size SAD helpers.
type SADFunc func(src []byte, srcOff, srcStride int, ref []byte, refOff, refStride int) int

// SADBySize indexes the fixed-size SAD helpers by block size constant.
var SADBySize = [NumBlockSizes]SADFunc{SAD16x16, SAD16x8, SAD8x16, SAD8x8, SAD4x4}
