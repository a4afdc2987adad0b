package dsp

// 4x4 transforms used by the encoder: forward DCT and Walsh-Hadamard on the
// residual, and the inverse pair used to rebuild the reconstruction.

const (
	cospi8sqrt2minus1 = 20091
	sinpi8sqrt2       = 35468
)

func b2i(cond bool) int {
	if cond {
		return 1
	}
	return 0
}

// Subtract writes src - pred for a 4x4 block into diff (16 entries, raster).
func Subtract(src []byte, srcOff, srcStride int, pred []byte, predOff, predStride int, diff []int16) {
	_ = diff[15]
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			diff[y*4+x] = int16(int(src[srcOff+x]) - int(pred[predOff+x]))
		}
		srcOff += srcStride
		predOff += predStride
	}
}

// FDCT4x4 is the forward 4x4 DCT of a raster-ordered residual block.
func FDCT4x4(in, out []int16) {
	_ = in[15]
	_ = out[15]
	var tmp [16]int
	for i := 0; i < 4; i++ {
		ip := in[i*4 : i*4+4]
		a1 := (int(ip[0]) + int(ip[3])) * 8
		b1 := (int(ip[1]) + int(ip[2])) * 8
		c1 := (int(ip[1]) - int(ip[2])) * 8
		d1 := (int(ip[0]) - int(ip[3])) * 8
		tmp[i*4+0] = a1 + b1
		tmp[i*4+2] = a1 - b1
		tmp[i*4+1] = (c1*2217 + d1*5352 + 14500) >> 12
		tmp[i*4+3] = (d1*2217 - c1*5352 + 7500) >> 12
	}
	for i := 0; i < 4; i++ {
		a1 := tmp[i] + tmp[12+i]
		b1 := tmp[4+i] + tmp[8+i]
		c1 := tmp[4+i] - tmp[8+i]
		d1 := tmp[i] - tmp[12+i]
		out[i] = int16((a1 + b1 + 7) >> 4)
		out[8+i] = int16((a1 - b1 + 7) >> 4)
		out[4+i] = int16(((c1*2217 + d1*5352 + 12000) >> 16) + b2i(d1 != 0))
		out[12+i] = int16((d1*2217 - c1*5352 + 51000) >> 16)
	}
}

// WalshHadamard4x4 is the forward second-order transform applied to the 16
// luma DC coefficients of a macroblock.
func WalshHadamard4x4(in, out []int16) {
	_ = in[15]
	_ = out[15]
	var tmp [16]int
	for i := 0; i < 4; i++ {
		ip := in[i*4 : i*4+4]
		a1 := (int(ip[0]) + int(ip[2])) << 2
		d1 := (int(ip[1]) + int(ip[3])) << 2
		c1 := (int(ip[1]) - int(ip[3])) << 2
		b1 := (int(ip[0]) - int(ip[2])) << 2
		tmp[i*4+0] = a1 + d1 + b2i(a1 != 0)
		tmp[i*4+1] = b1 + c1
		tmp[i*4+2] = b1 - c1
		tmp[i*4+3] = a1 - d1
	}
	for i := 0; i < 4; i++ {
		a1 := tmp[i] + tmp[8+i]
		d1 := tmp[4+i] + tmp[12+i]
		c1 := tmp[4+i] - tmp[12+i]
		b1 := tmp[i] - tmp[8+i]
		a2 := a1 + d1
		b2 := b1 + c1
		c2 := b1 - c1
		d2 := a1 - d1
		a2 += b2i(a2 < 0)
		b2 += b2i(b2 < 0)
		c2 += b2i(c2 < 0)
		d2 += b2i(d2 < 0)
		out[i] = int16((a2 + 3) >> 3)
		out[4+i] = int16((b2 + 3) >> 3)
		out[8+i] = int16((c2 + 3) >> 3)
		out[12+i] = int16((d2 + 3) >> 3)
	}
}

// InverseWalshHadamard4x4 undoes WalshHadamard4x4; out[i] is the DC value of
// luma sub-block i.
func InverseWalshHadamard4x4(in, out []int16) {
	_ = in[15]
	_ = out[15]
	var tmp [16]int
	for i := 0; i < 4; i++ {
		a1 := int(in[i]) + int(in[12+i])
		b1 := int(in[4+i]) + int(in[8+i])
		c1 := int(in[4+i]) - int(in[8+i])
		d1 := int(in[i]) - int(in[12+i])
		tmp[i] = a1 + b1
		tmp[4+i] = c1 + d1
		tmp[8+i] = a1 - b1
		tmp[12+i] = d1 - c1
	}
	for i := 0; i < 4; i++ {
		t := tmp[i*4 : i*4+4]
		a1 := t[0] + t[3]
		b1 := t[1] + t[2]
		c1 := t[1] - t[2]
		d1 := t[0] - t[3]
		out[i*4+0] = int16((a1 + b1 + 3) >> 3)
		out[i*4+1] = int16((c1 + d1 + 3) >> 3)
		out[i*4+2] = int16((a1 - b1 + 3) >> 3)
		out[i*4+3] = int16((d1 - c1 + 3) >> 3)
	}
}

// IDCT4x4Add inverse-transforms in and adds the result to the 4x4 prediction
// at pred, writing clipped pixels to dst.
func IDCT4x4Add(in []int16, pred []byte, predOff, predStride int, dst []byte, dstOff, dstStride int) {
	_ = in[15]
	var tmp [16]int
	for i := 0; i < 4; i++ {
		a1 := int(in[i]) + int(in[8+i])
		b1 := int(in[i]) - int(in[8+i])
		t1 := (int(in[4+i]) * sinpi8sqrt2) >> 16
		t2 := int(in[12+i]) + ((int(in[12+i]) * cospi8sqrt2minus1) >> 16)
		c1 := t1 - t2
		t1 = int(in[4+i]) + ((int(in[4+i]) * cospi8sqrt2minus1) >> 16)
		t2 = (int(in[12+i]) * sinpi8sqrt2) >> 16
		d1 := t1 + t2
		tmp[i] = a1 + d1
		tmp[12+i] = a1 - d1
		tmp[4+i] = b1 + c1
		tmp[8+i] = b1 - c1
	}
	for i := 0; i < 4; i++ {
		t := tmp[i*4 : i*4+4]
		a1 := t[0] + t[2]
		b1 := t[0] - t[2]
		c1 := ((t[1] * sinpi8sqrt2) >> 16) - (t[3] + ((t[3] * cospi8sqrt2minus1) >> 16))
		d1 := (t[1] + ((t[1] * cospi8sqrt2minus1) >> 16)) + ((t[3] * sinpi8sqrt2) >> 16)
		p := predOff + i*predStride
		o := dstOff + i*dstStride
		dst[o+0] = Clip8b(int(pred[p+0]) + ((a1 + d1 + 4) >> 3))
		dst[o+3] = Clip8b(int(pred[p+3]) + ((a1 - d1 + 4) >> 3))
		dst[o+1] = Clip8b(int(pred[p+1]) + ((b1 + c1 + 4) >> 3))
		dst[o+2] = Clip8b(int(pred[p+2]) + ((b1 - c1 + 4) >> 3))
	}
}
