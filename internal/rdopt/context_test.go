package rdopt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepteams/vp8rd/internal/mcomp"
	"github.com/deepteams/vp8rd/internal/quant"
)

func TestCoeffsAccessors(t *testing.T) {
	var c Coeffs
	assert.Same(t, &c.Blocks[3], c.Y(3))
	assert.Same(t, &c.Blocks[16], c.U(0))
	assert.Same(t, &c.Blocks[23], c.V(3))
	assert.Same(t, &c.Blocks[24], c.Y2())

	assert.Equal(t, quant.TypeYWithDC, c.BlockType(0))
	c.HasY2 = true
	assert.Equal(t, quant.TypeYNoDC, c.BlockType(15))
	assert.Equal(t, quant.TypeUV, c.BlockType(16))
	assert.Equal(t, quant.TypeUV, c.BlockType(23))
	assert.Equal(t, quant.TypeY2, c.BlockType(24))
}

func TestCoeffsEmptyIgnoresUnusedY2(t *testing.T) {
	var c Coeffs
	assert.True(t, c.Empty())
	c.Y2().EOB = 3
	assert.True(t, c.Empty())
	c.HasY2 = true
	assert.False(t, c.Empty())
	c.Y2().EOB = 0
	c.V(2).EOB = 1
	assert.False(t, c.Empty())
}

func TestContextSlots(t *testing.T) {
	for _, tt := range []struct {
		block, above, left int
	}{
		{0, 0, 0}, {5, 1, 1}, {15, 3, 3}, {7, 3, 1},
		{16, 4, 4}, {19, 5, 5}, {21, 7, 6}, {22, 6, 7}, {24, 8, 8},
	} {
		a, l := ctxSlots(tt.block)
		assert.Equal(t, tt.above, a, "block %d", tt.block)
		assert.Equal(t, tt.left, l, "block %d", tt.block)
	}
}

func TestTrialContextIsolation(t *testing.T) {
	var above, left EntropyPlanes
	above[1] = 1

	tc := Speculate(&above, &left)
	assert.Equal(t, 1, tc.Ctx(1))
	assert.Equal(t, 1, tc.Ctx(5))
	tc.Set(5, true)
	assert.Equal(t, 2, tc.Ctx(5))
	assert.Equal(t, 1, tc.Ctx(6), "left of block 6 is block 5")

	// A losing trial leaves the committed contexts untouched.
	other := Speculate(&above, &left)
	other.Set(0, true)
	assert.Equal(t, EntropyPlanes{0, 1}, above)
	assert.Equal(t, EntropyPlanes{}, left)

	tc.Commit(&above, &left)
	assert.Equal(t, uint8(1), above[1])
	assert.Equal(t, uint8(1), left[1])
	assert.Equal(t, uint8(0), left[0])
}

func TestTrialContextSkip(t *testing.T) {
	var above, left EntropyPlanes
	for i := range above {
		above[i], left[i] = 1, 1
	}
	tc := Speculate(&above, &left)
	tc.Skip(false)
	assert.Equal(t, EntropyPlanes{8: 1}, tc.Above)
	assert.Equal(t, EntropyPlanes{8: 1}, tc.Left)

	tc = Speculate(&above, &left)
	tc.Skip(true)
	assert.Equal(t, EntropyPlanes{}, tc.Above)
}

func inter(mv mcomp.MV, ref RefFrame) ModeInfo {
	return ModeInfo{Mode: NewMV, Ref: ref, MV: mv}
}

func TestFindNearMVsVotes(t *testing.T) {
	g := NewModeInfoGrid(3, 3)
	v := mcomp.MV{Row: 8, Col: 8}
	g.Set(0, 1, inter(v, LastFrame))
	g.Set(1, 0, inter(v, LastFrame))
	var bias [NumRefFrames]bool
	n := FindNearMVs(g, 1, 1, LastFrame, &bias, mcomp.MBBounds(1, 1, 3, 3))

	assert.Equal(t, v, n.Best)
	assert.Equal(t, v, n.Nearest)
	assert.True(t, n.Near.IsZero())
	assert.Equal(t, [4]int{0, 4, 0, 0}, n.Counts)
}

func TestFindNearMVsRanksByVotes(t *testing.T) {
	g := NewModeInfoGrid(3, 3)
	a := mcomp.MV{Row: 8}
	b := mcomp.MV{Col: -16}
	g.Set(0, 1, inter(a, LastFrame))
	g.Set(1, 0, inter(b, LastFrame))
	g.Set(0, 0, inter(b, LastFrame))
	var bias [NumRefFrames]bool
	n := FindNearMVs(g, 1, 1, LastFrame, &bias, mcomp.MBBounds(1, 1, 3, 3))

	assert.Equal(t, b, n.Nearest)
	assert.Equal(t, a, n.Near)
	assert.Equal(t, 3, n.Counts[cntNearest])
	assert.Equal(t, 2, n.Counts[cntNear])
}

func TestFindNearMVsSignBias(t *testing.T) {
	g := NewModeInfoGrid(3, 3)
	g.Set(0, 1, inter(mcomp.MV{Row: 8, Col: 8}, GoldenFrame))
	var bias [NumRefFrames]bool
	bias[GoldenFrame] = true
	n := FindNearMVs(g, 1, 1, LastFrame, &bias, mcomp.MBBounds(1, 1, 3, 3))
	assert.Equal(t, mcomp.MV{Row: -8, Col: -8}, n.Nearest)
}

func TestFindNearMVsClampsToWindow(t *testing.T) {
	g := NewModeInfoGrid(2, 2)
	g.Set(0, 0, inter(mcomp.MV{Row: 8 * 100}, LastFrame))
	var bias [NumRefFrames]bool
	b := mcomp.MBBounds(1, 0, 2, 2)
	n := FindNearMVs(g, 1, 0, LastFrame, &bias, b)
	assert.Equal(t, int16(b.RowMax*8), n.Nearest.Row)
	assert.True(t, b.Contains(n.Best))
}

func TestModeInfoGridOutside(t *testing.T) {
	g := NewModeInfoGrid(2, 2)
	mi := g.At(-1, 0)
	assert.Equal(t, IntraFrame, mi.Ref)
	assert.Equal(t, DCPred, mi.Mode)
	g.Set(1, 1, inter(mcomp.MV{Col: 8}, LastFrame))
	assert.Equal(t, LastFrame, g.At(1, 1).Ref)
	g.Reset()
	assert.Equal(t, IntraFrame, g.At(1, 1).Ref)
}

func TestSearchStatsThresholds(t *testing.T) {
	sf := NewSpeedFeatures(GoodQuality, 0)
	rc := NewRDConsts(testQ, &sf)
	s := NewSearchStats(&rc, &sf)
	s.BeginMB()

	th := s.Threshes[ThrNew1]
	require.Positive(t, th)
	assert.False(t, s.ShouldTest(ThrNew1, th))
	assert.True(t, s.ShouldTest(ThrNew1, th+1))
	assert.True(t, s.ShouldTest(ThrZero1, 1), "zero thresholds always test")

	s.Lost(ThrNew1)
	assert.Equal(t, 132, s.ThreshMult[ThrNew1])
	s.Improved(ThrNew1)
	assert.Equal(t, 130, s.ThreshMult[ThrNew1])
	s.Won(ThrNew1)
	assert.Equal(t, 130-130/4, s.ThreshMult[ThrNew1])
	assert.Equal(t, 1, s.ModeWins[ThrNew1])

	for i := 0; i < 200; i++ {
		s.Lost(ThrNew1)
	}
	assert.Equal(t, MaxThreshMult, s.ThreshMult[ThrNew1])
	// Each improvement lowers the multiplier by 2, so the floor takes more
	// than 240 steps from the ceiling.
	for i := 0; i < 300; i++ {
		s.Improved(ThrNew1)
	}
	assert.Equal(t, MinThreshMult, s.ThreshMult[ThrNew1])
	s.Improved(ThrNew1)
	assert.Equal(t, MinThreshMult, s.ThreshMult[ThrNew1], "floor holds")
}

func TestSearchStatsDisabled(t *testing.T) {
	sf := NewSpeedFeatures(Realtime, 0)
	rc := NewRDConsts(testQ, &sf)
	s := NewSearchStats(&rc, &sf)
	s.BeginMB()
	assert.False(t, s.ShouldTest(ThrSplit1, 1<<40))
	s.Lost(ThrSplit1)
	assert.Equal(t, ThreshDisabled, s.Threshes[ThrSplit1])
}

func TestSearchStatsCheckFrequency(t *testing.T) {
	sf := NewSpeedFeatures(GoodQuality, 1)
	rc := NewRDConsts(testQ, &sf)
	s := NewSearchStats(&rc, &sf)
	const big = 1 << 40

	s.BeginMB()
	assert.True(t, s.ShouldTest(ThrSplit1, big))
	s.BeginMB()
	assert.False(t, s.ShouldTest(ThrSplit1, big), "tested once already in two macroblocks")
	s.BeginMB()
	assert.True(t, s.ShouldTest(ThrSplit1, big))

	s.Rebase(&rc, &sf)
	assert.Zero(t, s.MBsTested)
	assert.Zero(t, s.HitCounts[ThrSplit1])
}

func TestRDConsts(t *testing.T) {
	sf := NewSpeedFeatures(GoodQuality, 0)
	rc := NewRDConsts(testQ, &sf)
	qv := float64(quant.DCQLookup[testQ])
	assert.Equal(t, 1, rc.Div)
	assert.Equal(t, int(2.80*qv*qv)/100, rc.Mult)
	assert.Equal(t, 0, rc.Baseline[ThrZero1])
	assert.Greater(t, rc.Baseline[ThrSplit1], rc.Baseline[ThrNew1])

	low := NewRDConsts(0, &sf)
	assert.Equal(t, 100, low.Div)
	assert.Equal(t, 1, low.ErrPerBit)
}

func TestSpeedFeatureLadder(t *testing.T) {
	best := NewSpeedFeatures(BestQuality, 0)
	assert.True(t, best.FullSearchFallback)
	assert.True(t, best.Trellis)

	fast := NewSpeedFeatures(GoodQuality, 4)
	assert.False(t, fast.Split)
	assert.False(t, fast.Trellis)
	assert.Equal(t, SearchHex, fast.Search)
	assert.Equal(t, ThreshDisabled, fast.ThreshMult[ThrSplit2])

	rt := NewSpeedFeatures(Realtime, 9)
	assert.False(t, rt.RDSearch)
	assert.Equal(t, mcomp.SubPelSkip, rt.SubPel)
}
