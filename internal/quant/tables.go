// Package quant converts transform coefficients into quantized levels.
//
// Tables for a quantizer index are built once and never mutated afterwards,
// so a *Tables value may be shared by every encoding thread of a frame.
package quant

import "sync"

// NumQIndex is the number of quantizer indices.
const NumQIndex = 128

// DCQLookup maps a quantizer index to the DC step size.
var DCQLookup = [NumQIndex]int{
	4, 5, 6, 7, 8, 9, 10, 10, 11, 12, 13, 14, 15, 16, 17, 17,
	18, 19, 20, 20, 21, 21, 22, 22, 23, 23, 24, 25, 25, 26, 27, 28,
	29, 30, 31, 32, 33, 34, 35, 36, 37, 37, 38, 39, 40, 41, 42, 43,
	44, 45, 46, 46, 47, 48, 49, 50, 51, 52, 53, 54, 55, 56, 57, 58,
	59, 60, 61, 62, 63, 64, 65, 66, 67, 68, 69, 70, 71, 72, 73, 74,
	75, 76, 76, 77, 78, 79, 80, 81, 82, 83, 84, 85, 86, 87, 88, 89,
	91, 93, 95, 96, 98, 100, 101, 102, 104, 106, 108, 110, 112, 114, 116, 118,
	122, 124, 126, 128, 130, 132, 134, 136, 138, 140, 143, 145, 148, 151, 154, 157,
}

// ACQLookup maps a quantizer index to the AC step size.
var ACQLookup = [NumQIndex]int{
	4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16, 17, 18, 19,
	20, 21, 22, 23, 24, 25, 26, 27, 28, 29, 30, 31, 32, 33, 34, 35,
	36, 37, 38, 39, 40, 41, 42, 43, 44, 45, 46, 47, 48, 49, 50, 51,
	52, 53, 54, 55, 56, 57, 58, 60, 62, 64, 66, 68, 70, 72, 74, 76,
	78, 80, 82, 84, 86, 88, 90, 92, 94, 96, 98, 100, 102, 104, 106, 108,
	110, 112, 114, 116, 119, 122, 125, 128, 131, 134, 137, 140, 143, 146, 149, 152,
	155, 158, 161, 164, 167, 170, 173, 177, 181, 185, 189, 193, 197, 201, 205, 209,
	213, 217, 221, 225, 229, 234, 239, 245, 249, 254, 259, 264, 269, 274, 279, 284,
}

// Zigzag is the coefficient scan order: Zigzag[i] is the raster position of
// the i-th coefficient in scan order.
var Zigzag = [16]int{0, 1, 4, 8, 5, 2, 3, 6, 9, 12, 13, 10, 7, 11, 14, 15}

// zbinBoost grows the dead zone along a run of zero coefficients, indexed by
// scan position.
var zbinBoost = [16]int{0, 0, 8, 10, 12, 14, 16, 20, 24, 28, 32, 36, 40, 44, 44, 44}

const (
	roundFactor = 48
	maxUVDC     = 132
	minY2AC     = 8
)

func zbinFactor(q int) int {
	if q < 48 {
		return 84
	}
	return 80
}

// Deltas are the per-frame quantizer index offsets carried in the frame
// header.
type Deltas struct {
	Y1DC, Y2DC, Y2AC, UVDC, UVAC int
}

// Block holds the quantizer for one plane type. All arrays except ZrunBoost
// are indexed by raster coefficient position.
type Block struct {
	Quant      [16]int32
	QuantShift [16]int32
	QuantFast  [16]int32
	Zbin       [16]int32
	Round      [16]int32
	Dequant    [16]int32
	// ZrunBoost is indexed by scan position.
	ZrunBoost [16]int32
}

// Tables are the quantizers of a single quantizer index.
type Tables struct {
	QIndex int
	Deltas Deltas
	Y1     Block
	Y2     Block
	UV     Block
}

func clampQ(q int) int {
	if q < 0 {
		return 0
	}
	if q > NumQIndex-1 {
		return NumQIndex - 1
	}
	return q
}

// StepSizes returns the DC and AC step sizes of the three plane types.
func StepSizes(q int, d Deltas) (y1, y2, uv [2]int) {
	y1[0] = DCQLookup[clampQ(q+d.Y1DC)]
	y1[1] = ACQLookup[clampQ(q)]

	y2[0] = DCQLookup[clampQ(q+d.Y2DC)] * 2
	// 155/100 in 16-bit fixed point.
	y2[1] = ACQLookup[clampQ(q+d.Y2AC)] * 101581 >> 16
	if y2[1] < minY2AC {
		y2[1] = minY2AC
	}

	uv[0] = DCQLookup[clampQ(q+d.UVDC)]
	if uv[0] > maxUVDC {
		uv[0] = maxUVDC
	}
	uv[1] = ACQLookup[clampQ(q+d.UVAC)]
	return
}

// invertQuant returns a multiplier/shift pair so that
// ((x*quant>>16)+x)*shift>>16 == x/d for the coefficient range.
func invertQuant(d int) (quant, shift int32) {
	l := 0
	for t := d; t > 1; t >>= 1 {
		l++
	}
	m := 1 + (1<<(16+l))/d
	return int32(m - (1 << 16)), int32(1 << (16 - l))
}

func (b *Block) set(q, rc, scan, step int) {
	b.Quant[rc], b.QuantShift[rc] = invertQuant(step)
	b.QuantFast[rc] = int32((1 << 16) / step)
	b.Zbin[rc] = int32((zbinFactor(q)*step + 64) >> 7)
	b.Round[rc] = int32((roundFactor * step) >> 7)
	b.Dequant[rc] = int32(step)
	b.ZrunBoost[scan] = int32((step * zbinBoost[scan]) >> 7)
}

func (b *Block) fill(q int, steps [2]int) {
	b.set(q, 0, 0, steps[0])
	for i := 1; i < 16; i++ {
		b.set(q, Zigzag[i], i, steps[1])
	}
}

// BuildTables computes the quantizers for index q.
func BuildTables(q int, d Deltas) *Tables {
	q = clampQ(q)
	y1, y2, uv := StepSizes(q, d)
	t := &Tables{QIndex: q, Deltas: d}
	t.Y1.fill(q, y1)
	t.Y2.fill(q, y2)
	t.UV.fill(q, uv)
	return t
}

// ZbinExtra returns the additional dead zone applied on top of the table
// zbin, given an over-quant or mode boost in 1/128 units of the AC step.
func (b *Block) ZbinExtra(boost int) int {
	return int(b.Dequant[1]) * boost >> 7
}

type cacheKey struct {
	q int
	d Deltas
}

// Cache memoizes Tables per quantizer index and delta set.
type Cache struct {
	m sync.Map
}

// Get returns the tables for q, building them on first use.
func (c *Cache) Get(q int, d Deltas) *Tables {
	k := cacheKey{clampQ(q), d}
	if v, ok := c.m.Load(k); ok {
		return v.(*Tables)
	}
	v, _ := c.m.LoadOrStore(k, BuildTables(k.q, d))
	return v.(*Tables)
}
