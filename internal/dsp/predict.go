package dsp

// Intra predictors. Each predictor writes its block into dst at dstOff with
// stride BPS from explicit edge arrays, so callers can assemble edges from the
// reconstructed frame (or from the 127/129 frame-border convention) without
// keeping them in the destination buffer.

// Whole-block intra modes (16x16 luma and 8x8 chroma).
const (
	PredDC = iota
	PredV
	PredH
	PredTM
	NumBlockPredModes
)

// Sub-block (4x4) intra modes, in bitstream order.
const (
	PredBDC = iota
	PredBTM
	PredBVE
	PredBHE
	PredBLD
	PredBRD
	PredBVR
	PredBVL
	PredBHD
	PredBHU
	NumSubPredModes
)

func avg3(a, b, c uint8) uint8 {
	return uint8((int(a) + 2*int(b) + int(c) + 2) >> 2)
}

func avg2(a, b uint8) uint8 {
	return uint8((int(a) + int(b) + 1) >> 1)
}

// PredictBlock fills a size x size block (size 16 or 8) for one of the
// whole-block modes. above holds size pixels, left holds size pixels and
// topLeft is the corner. haveAbove/haveLeft select the DC variant.
func PredictBlock(mode, size int, above, left []byte, topLeft byte, haveAbove, haveLeft bool, dst []byte, dstOff int) {
	switch mode {
	case PredDC:
		v := 128
		shift := 2
		if size == 16 {
			shift = 3
		}
		sum := 0
		if haveAbove {
			for _, a := range above[:size] {
				sum += int(a)
			}
			shift++
		}
		if haveLeft {
			for _, l := range left[:size] {
				sum += int(l)
			}
			shift++
		}
		if haveAbove || haveLeft {
			v = (sum + (1 << (shift - 1))) >> shift
		}
		fill(dst, dstOff, size, uint8(v))
	case PredV:
		for y := 0; y < size; y++ {
			copy(dst[dstOff+y*BPS:dstOff+y*BPS+size], above[:size])
		}
	case PredH:
		for y := 0; y < size; y++ {
			row := dst[dstOff+y*BPS : dstOff+y*BPS+size]
			for x := range row {
				row[x] = left[y]
			}
		}
	case PredTM:
		for y := 0; y < size; y++ {
			base := int(left[y]) - int(topLeft)
			row := dst[dstOff+y*BPS : dstOff+y*BPS+size]
			for x := range row {
				row[x] = Clip8b(base + int(above[x]))
			}
		}
	}
}

func fill(dst []byte, off, size int, v uint8) {
	for y := 0; y < size; y++ {
		row := dst[off+y*BPS : off+y*BPS+size]
		for x := range row {
			row[x] = v
		}
	}
}

// Sub-block edge layout: L3 L2 L1 L0 TL A0 .. A7.
const (
	edgeTL  = 4
	edgeA0  = 5
	edgeLen = 13
)

type subOp uint8

const (
	opAvg3 subOp = iota
	opAvg2
	opCopy
)

type subTap struct {
	op subOp
	i  int8
}

// subTaps describes the directional 4x4 modes as per-pixel taps on the edge
// array. avg3 taps are centred on i and clamp at both ends of the array.
var subTaps [NumSubPredModes][16]subTap

func init() {
	a3 := func(i int) subTap { return subTap{opAvg3, int8(i)} }
	a2 := func(i int) subTap { return subTap{opAvg2, int8(i)} }
	cp := func(i int) subTap { return subTap{opCopy, int8(i)} }
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			subTaps[PredBVE][r*4+c] = a3(edgeA0 + c)
			subTaps[PredBLD][r*4+c] = a3(6 + r + c)
			subTaps[PredBRD][r*4+c] = a3(edgeTL + c - r)
			subTaps[PredBHE][r*4+c] = a3(3 - r)
		}
	}
	subTaps[PredBVR] = [16]subTap{
		a2(4), a2(5), a2(6), a2(7),
		a3(4), a3(5), a3(6), a3(7),
		a3(3), a2(4), a2(5), a2(6),
		a3(2), a3(4), a3(5), a3(6),
	}
	subTaps[PredBVL] = [16]subTap{
		a2(5), a2(6), a2(7), a2(8),
		a3(6), a3(7), a3(8), a3(9),
		a2(6), a2(7), a2(8), a3(10),
		a3(7), a3(8), a3(9), a3(11),
	}
	subTaps[PredBHD] = [16]subTap{
		a2(3), a3(4), a3(5), a3(6),
		a2(2), a3(3), a2(3), a3(4),
		a2(1), a3(2), a2(2), a3(3),
		a2(0), a3(1), a2(1), a3(2),
	}
	subTaps[PredBHU] = [16]subTap{
		a2(2), a3(2), a2(1), a3(1),
		a2(1), a3(1), a2(0), a3(0),
		a2(0), a3(0), cp(0), cp(0),
		cp(0), cp(0), cp(0), cp(0),
	}
}

// SubEdges packs the neighbours of a 4x4 block into the edge array used by
// PredictSubBlock: above holds A0..A7 (four above plus four above-right),
// left holds L0..L3.
func SubEdges(above []byte, left []byte, topLeft byte) [edgeLen]byte {
	var e [edgeLen]byte
	e[0], e[1], e[2], e[3] = left[3], left[2], left[1], left[0]
	e[edgeTL] = topLeft
	copy(e[edgeA0:], above[:8])
	return e
}

// PredictSubBlock fills a 4x4 block for one of the sub-block modes.
func PredictSubBlock(mode int, e *[edgeLen]byte, dst []byte, dstOff int) {
	switch mode {
	case PredBDC:
		sum := 4
		for i := 0; i < 4; i++ {
			sum += int(e[edgeA0+i]) + int(e[i])
		}
		fill(dst, dstOff, 4, uint8(sum>>3))
		return
	case PredBTM:
		for r := 0; r < 4; r++ {
			for c := 0; c < 4; c++ {
				dst[dstOff+r*BPS+c] = Clip8b(int(e[3-r]) + int(e[edgeA0+c]) - int(e[edgeTL]))
			}
		}
		return
	}
	taps := &subTaps[mode]
	for k, t := range taps {
		i := int(t.i)
		var v uint8
		switch t.op {
		case opAvg3:
			lo, hi := i-1, i+1
			if lo < 0 {
				lo = 0
			}
			if hi >= edgeLen {
				hi = edgeLen - 1
			}
			v = avg3(e[lo], e[i], e[hi])
		case opAvg2:
			v = avg2(e[i], e[i+1])
		default:
			v = e[i]
		}
		dst[dstOff+(k>>2)*BPS+(k&3)] = v
	}
}
