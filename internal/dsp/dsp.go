// Package dsp provides the pixel-level primitives used by the VP8 mode
// decision engine: block error metrics (SAD, SSE, variance), bilinear
// sub-pixel variance, 4x4 transforms, intra predictors and the bit-cost
// table used to price boolean-coded symbols.
//
// All functions are pure. Buffers and strides are supplied by the caller and
// are not bounds-checked beyond Go's own slice checks.
package dsp

// BPS is the stride of the per-macroblock working buffers (prediction,
// reconstruction). A 16x16 luma block followed by two 8x8 chroma blocks fits
// in 16 rows of BPS bytes when chroma is laid side by side at column 16.
const BPS = 32

// Block dimensions supported by the error metric tables.
const (
	Block16x16 = iota
	Block16x8
	Block8x16
	Block8x8
	Block4x4
	NumBlockSizes
)

// BlockWidth and BlockHeight give the pixel extent of each block size.
var (
	BlockWidth  = [NumBlockSizes]int{16, 16, 8, 8, 4}
	BlockHeight = [NumBlockSizes]int{16, 8, 16, 8, 4}
)

// Init fills the lookup tables. It is called from the package init and is
// safe to call again.
func Init() {
	initClipTables()
	initProbCost()
}

func init() {
	Init()
}
