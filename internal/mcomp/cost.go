package mcomp

import (
	"math"

	"github.com/deepteams/vp8rd/internal/dsp"
)

// Motion vector entropy model layout, per component.
const (
	mvpIsShort = 0
	mvpSign    = 1
	mvpShort   = 2
	mvNumShort = 8
	mvpBits    = mvpShort + mvNumShort - 1
	mvLongBits = 10
	// NumMVProbs is the number of probabilities per vector component.
	NumMVProbs = mvpBits + mvLongBits

	// MaxMVComponent is the largest codable component in quarter pels.
	MaxMVComponent = (1 << mvLongBits) - 1
	// MaxFullPelRange is MaxMVComponent in whole pixels.
	MaxFullPelRange = MaxMVComponent >> 2

	sadCostCenter = 300
)

// MVProbs holds the entropy model for the row and column components.
type MVProbs [2][NumMVProbs]uint8

// DefaultMVProbs is the model every key frame starts from.
var DefaultMVProbs = MVProbs{
	{162, 128, 225, 146, 172, 147, 214, 39, 156, 128, 129, 132, 75, 145, 178, 206, 239, 254, 254},
	{164, 128, 204, 170, 119, 235, 140, 230, 228, 128, 130, 130, 74, 148, 180, 203, 236, 254, 254},
}

// CostTables prices vector components. MV holds the exact coding cost of
// quarter-pel component differences (1/256 bit units), SAD a smooth
// log-shaped approximation over full-pel differences used during integer
// searches. Tables are immutable once built and may be shared.
type CostTables struct {
	mv  [2][2*MaxMVComponent + 1]int
	sad [2][2*MaxFullPelRange + 1]int
}

// NewCostTables builds the tables for probs.
func NewCostTables(probs *MVProbs) *CostTables {
	t := &CostTables{}
	for comp := 0; comp < 2; comp++ {
		p := &probs[comp]
		for v := -MaxMVComponent; v <= MaxMVComponent; v++ {
			t.mv[comp][v+MaxMVComponent] = componentCost(v, p)
		}
		t.sad[comp][MaxFullPelRange] = sadCostCenter
		for i := 1; i <= MaxFullPelRange; i++ {
			z := int(256 * (2 * (math.Log2(float64(8*i)) + 0.6)))
			t.sad[comp][MaxFullPelRange+i] = z
			t.sad[comp][MaxFullPelRange-i] = z
		}
	}
	return t
}

func componentCost(v int, p *[NumMVProbs]uint8) int {
	x := v
	if x < 0 {
		x = -x
	}
	cost := 0
	if x < mvNumShort {
		cost = dsp.BitCost(0, p[mvpIsShort])
		b2, b1, b0 := (x>>2)&1, (x>>1)&1, x&1
		cost += dsp.BitCost(b2, p[mvpShort])
		cost += dsp.BitCost(b1, p[mvpShort+1+3*b2])
		cost += dsp.BitCost(b0, p[mvpShort+2+3*b2+b1])
		if x == 0 {
			return cost
		}
	} else {
		cost = dsp.BitCost(1, p[mvpIsShort])
		for i := 0; i < 3; i++ {
			cost += dsp.BitCost((x>>i)&1, p[mvpBits+i])
		}
		for i := mvLongBits - 1; i > 3; i-- {
			cost += dsp.BitCost((x>>i)&1, p[mvpBits+i])
		}
		if x&0xFFF0 != 0 {
			cost += dsp.BitCost((x>>3)&1, p[mvpBits+3])
		}
	}
	return cost + dsp.BitCost(b2i(v < 0), p[mvpSign])
}

func b2i(b bool) int {
	if b {
		return 1
	}
	return 0
}

func clampIndex(v, limit int) int {
	if v < -limit {
		return -limit
	}
	if v > limit {
		return limit
	}
	return v
}

// Component returns the coding cost of a quarter-pel component difference.
func (t *CostTables) Component(comp, diff int) int {
	return t.mv[comp][clampIndex(diff, MaxMVComponent)+MaxMVComponent]
}

// bits returns the raw cost of coding mv against ref.
func (t *CostTables) bits(mv, ref MV) int {
	return t.Component(0, (int(mv.Row)-int(ref.Row))>>1) + t.Component(1, (int(mv.Col)-int(ref.Col))>>1)
}

// ErrCost converts the cost of coding mv against ref into the distortion
// domain using errPerBit.
func (t *CostTables) ErrCost(mv, ref MV, errPerBit int) int {
	return (t.bits(mv, ref)*errPerBit + 128) >> 8
}

// SADCost is the full-pel approximation of ErrCost used inside integer
// searches; row, col and the centre are in whole pixels.
func (t *CostTables) SADCost(row, col, centerRow, centerCol, sadPerBit int) int {
	r := t.sad[0][clampIndex(row-centerRow, MaxFullPelRange)+MaxFullPelRange]
	c := t.sad[1][clampIndex(col-centerCol, MaxFullPelRange)+MaxFullPelRange]
	return ((r+c)*sadPerBit + 128) >> 8
}

// BitCost returns the weighted cost of mv against ref in 1/256 bit units,
// scaled by weight/128.
func (t *CostTables) BitCost(mv, ref MV, weight int) int {
	return (t.bits(mv, ref) * weight) >> 7
}

// Lambda constants that relate quantizer strength to the vector cost
// weighting, indexed by quantizer index.
var (
	sadPerBit16 [128]int
	sadPerBit4  [128]int
)

func init() {
	// Both weights grow linearly with q: 2..14 for 16x16, 2..20 for 4x4.
	for q := 0; q < 128; q++ {
		sadPerBit16[q] = 2 + q*12/127
		sadPerBit4[q] = 2 + q*18/127
	}
}

// SADPerBit16 returns the full-macroblock SAD weight for a quantizer index.
func SADPerBit16(qIndex int) int { return sadPerBit16[clampQ(qIndex)] }

// SADPerBit4 returns the sub-block SAD weight for a quantizer index.
func SADPerBit4(qIndex int) int { return sadPerBit4[clampQ(qIndex)] }

func clampQ(q int) int {
	if q < 0 {
		return 0
	}
	if q > 127 {
		return 127
	}
	return q
}
