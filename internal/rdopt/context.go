package rdopt

import "github.com/deepteams/vp8rd/internal/quant"

// Block is one 4x4 transform block of a macroblock.
type Block struct {
	Coeff   [16]int16 // forward transform output
	QCoeff  [16]int16
	DQCoeff [16]int16
	EOB     int
	// Ctx is the token context the block was coded under.
	Ctx uint8
}

// Block group layout inside Coeffs.
const (
	firstY   = 0
	firstU   = 16
	firstV   = 20
	y2Block  = 24
	numBlock = 25
)

// Coeffs are the 25 transform blocks of a macroblock, in coding order:
// 16 luma blocks in raster order, four U, four V and the second-order luma
// DC block.
type Coeffs struct {
	Blocks [numBlock]Block
	// HasY2 is set when the luma DCs are carried by the second-order block.
	HasY2 bool
}

// Y returns luma block i (0-15, raster order).
func (c *Coeffs) Y(i int) *Block { return &c.Blocks[firstY+i] }

// U returns chroma block i (0-3) of the U plane.
func (c *Coeffs) U(i int) *Block { return &c.Blocks[firstU+i] }

// V returns chroma block i (0-3) of the V plane.
func (c *Coeffs) V(i int) *Block { return &c.Blocks[firstV+i] }

// Y2 returns the second-order luma DC block.
func (c *Coeffs) Y2() *Block { return &c.Blocks[y2Block] }

// BlockType returns the token probability set used by block b.
func (c *Coeffs) BlockType(b int) int {
	switch {
	case b == y2Block:
		return quant.TypeY2
	case b >= firstU:
		return quant.TypeUV
	case c.HasY2:
		return quant.TypeYNoDC
	}
	return quant.TypeYWithDC
}

// Empty reports whether no block carries a nonzero level.
func (c *Coeffs) Empty() bool {
	for i := range c.Blocks {
		if i == y2Block && !c.HasY2 {
			continue
		}
		if c.Blocks[i].EOB > 0 {
			return false
		}
	}
	return true
}

// EntropyPlanes are the nonzero flags one macroblock edge passes to its
// neighbour: four luma, two U, two V and the second-order block.
type EntropyPlanes [9]uint8

const (
	ctxY  = 0
	ctxU  = 4
	ctxV  = 6
	ctxY2 = 8
)

// ctxSlots returns the above and left slots of block b.
func ctxSlots(b int) (above, left int) {
	switch {
	case b == y2Block:
		return ctxY2, ctxY2
	case b >= firstV:
		j := b - firstV
		return ctxV + j&1, ctxV + j>>1
	case b >= firstU:
		j := b - firstU
		return ctxU + j&1, ctxU + j>>1
	}
	return ctxY + b&3, ctxY + b>>2
}

// TrialContext is a private copy of the above/left entropy contexts that a
// candidate mode codes against. It is merged back into the persistent
// contexts only when that candidate is committed.
type TrialContext struct {
	Above EntropyPlanes
	Left  EntropyPlanes
}

// Speculate starts a trial from the committed contexts.
func Speculate(above, left *EntropyPlanes) TrialContext {
	return TrialContext{Above: *above, Left: *left}
}

// Ctx returns the token context of block b: the number of nonzero
// neighbours above and to the left.
func (t *TrialContext) Ctx(b int) int {
	a, l := ctxSlots(b)
	return int(t.Above[a] + t.Left[l])
}

// Set records whether block b coded any level.
func (t *TrialContext) Set(b int, nonzero bool) {
	a, l := ctxSlots(b)
	v := uint8(b2i(nonzero))
	t.Above[a] = v
	t.Left[l] = v
}

// Commit publishes the trial into the persistent contexts.
func (t *TrialContext) Commit(above, left *EntropyPlanes) {
	*above = t.Above
	*left = t.Left
}

// Skip resets the contexts a skipped macroblock leaves behind. The
// second-order flag survives when the mode has no second-order block.
func (t *TrialContext) Skip(hasY2 bool) {
	y2a, y2l := t.Above[ctxY2], t.Left[ctxY2]
	t.Above = EntropyPlanes{}
	t.Left = EntropyPlanes{}
	if !hasY2 {
		t.Above[ctxY2], t.Left[ctxY2] = y2a, y2l
	}
}
