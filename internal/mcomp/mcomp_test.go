package mcomp

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepteams/vp8rd/internal/dsp"
)

const (
	planeSize = 96
	blockPos  = 24
)

// bowlPlane is a paraboloid centred on the test block; SAD against a shifted
// copy grows with the distance from the true shift in every direction, so
// greedy searches converge.
func bowlPlane() []byte {
	p := make([]byte, planeSize*planeSize)
	for y := 0; y < planeSize; y++ {
		for x := 0; x < planeSize; x++ {
			v := ((x-32)*(x-32) + (y-32)*(y-32)) / 2
			if v > 255 {
				v = 255
			}
			p[y*planeSize+x] = byte(v)
		}
	}
	return p
}

func randomPlane(seed int64) []byte {
	rng := rand.New(rand.NewSource(seed))
	p := make([]byte, planeSize*planeSize)
	for i := range p {
		p[i] = byte(rng.Intn(256))
	}
	return p
}

// shiftedTarget returns a target whose source is the reference block moved
// by (dr, dc) whole pixels.
func shiftedTarget(ref []byte, dr, dc int) *Target {
	src := make([]byte, 16*16)
	for y := 0; y < 16; y++ {
		copy(src[y*16:y*16+16], ref[(blockPos+dr+y)*planeSize+blockPos+dc:])
	}
	return &Target{
		Src: src, SrcStride: 16,
		Ref: ref, RefOff: blockPos*planeSize + blockPos, RefStride: planeSize,
		Size: dsp.Block16x16,
	}
}

func testParams() *Params {
	return &Params{
		Bounds:    Bounds{RowMin: -16, RowMax: 16, ColMin: -16, ColMax: 16},
		Costs:     NewCostTables(&DefaultMVProbs),
		SADPerBit: 2,
		ErrPerBit: 1,
	}
}

func TestMBBounds(t *testing.T) {
	b := MBBounds(0, 0, 4, 5)
	assert.Equal(t, Bounds{RowMin: -16, RowMax: 3*16 + 16, ColMin: -16, ColMax: 4*16 + 16}, b)
	b = MBBounds(3, 4, 4, 5)
	assert.Equal(t, -(3*16 + 16), b.RowMin)
	assert.Equal(t, 16, b.RowMax)
	assert.Equal(t, 16, b.ColMax)
}

func TestBoundsClampAndContains(t *testing.T) {
	b := Bounds{RowMin: -16, RowMax: 16, ColMin: -8, ColMax: 8}
	mv := b.Clamp(MV{Row: 500, Col: -500})
	assert.Equal(t, MV{Row: 128, Col: -64}, mv)
	assert.True(t, b.Contains(mv))
	assert.False(t, b.Contains(MV{Row: 128 + 2, Col: 0}))
	assert.True(t, b.Contains(MV{Row: 126, Col: 0}))
}

func TestMVHelpers(t *testing.T) {
	mv := MV{Row: -9, Col: 12}
	assert.Equal(t, -2, mv.FullRow())
	assert.Equal(t, 7, mv.FracRow())
	assert.Equal(t, 1, mv.FullCol())
	assert.Equal(t, 4, mv.FracCol())
	assert.Equal(t, MV{Row: -8, Col: 16}, mv.RoundToFullPel())
	assert.Equal(t, FullPel(-1, 2), MV{Row: -8, Col: 16})
}

func TestCostTables(t *testing.T) {
	ct := NewCostTables(&DefaultMVProbs)
	zero := ct.Component(0, 0)
	for _, d := range []int{1, 3, 7, 8, 100, MaxMVComponent} {
		assert.Greater(t, ct.Component(0, d), zero, "diff %d", d)
		assert.Greater(t, ct.Component(1, -d), ct.Component(1, 0), "diff %d", -d)
	}
	assert.Equal(t, ct.Component(0, MaxMVComponent), ct.Component(0, 5*MaxMVComponent))
	assert.Less(t, ct.SADCost(0, 0, 0, 0, 4), ct.SADCost(3, 0, 0, 0, 4))
	assert.Equal(t, 0, ct.ErrCost(FullPel(1, 1), FullPel(1, 1), 0))
}

func TestSADPerBit(t *testing.T) {
	assert.Equal(t, 2, SADPerBit16(0))
	assert.Equal(t, 14, SADPerBit16(127))
	assert.Equal(t, 2, SADPerBit4(0))
	assert.Equal(t, 20, SADPerBit4(127))
	assert.Equal(t, SADPerBit16(127), SADPerBit16(300))
	assert.Equal(t, SADPerBit4(0), SADPerBit4(-5))
	for q := 1; q < 128; q++ {
		assert.GreaterOrEqual(t, SADPerBit16(q), SADPerBit16(q-1), "q %d", q)
		assert.GreaterOrEqual(t, SADPerBit4(q), SADPerBit4(q-1), "q %d", q)
		assert.GreaterOrEqual(t, SADPerBit4(q), SADPerBit16(q), "q %d", q)
	}
}

func TestSiteSets(t *testing.T) {
	d := NewDiamondSites(100)
	assert.Equal(t, MaxSearchSteps, d.Steps())
	assert.Equal(t, Site{Row: -MaxFirstStep, Offset: -MaxFirstStep * 100}, d.Sites[1])
	assert.Equal(t, Site{Col: 1, Offset: 1}, d.Sites[len(d.Sites)-1])
	s := NewThreeStepSites(100)
	assert.Equal(t, MaxSearchSteps, s.Steps())
	assert.Len(t, s.Sites, 1+8*MaxSearchSteps)
}

func TestDiamondSearchHorizontalShift(t *testing.T) {
	ref := bowlPlane()
	tgt := shiftedTarget(ref, 0, 1)
	p := testParams()
	r := DiamondSearch(tgt, NewDiamondSites(planeSize), MV{}, 5, p)
	assert.Equal(t, MV{Row: 0, Col: 8}, r.MV)
	assert.Equal(t, 0, tgt.sad(r.MV.FullRow(), r.MV.FullCol()))
	assert.Equal(t, 0, r.Distortion)
}

func TestNStepDiamondFindsShift(t *testing.T) {
	ref := bowlPlane()
	tgt := shiftedTarget(ref, 2, -3)
	p := testParams()
	r := NStepDiamond(tgt, NewThreeStepSites(planeSize), MV{}, 4, MaxSearchSteps-1-4, p)
	assert.Equal(t, FullPel(2, -3), r.MV)
	assert.Equal(t, 0, r.Distortion)
}

func TestHexSearchHorizontalShift(t *testing.T) {
	ref := bowlPlane()
	tgt := shiftedTarget(ref, 0, 1)
	r := HexSearch(tgt, MV{}, testParams())
	assert.Equal(t, MV{Row: 0, Col: 8}, r.MV)
	assert.Equal(t, 0, tgt.sad(0, 1))
}

func TestHexSearchLongerMove(t *testing.T) {
	ref := bowlPlane()
	tgt := shiftedTarget(ref, -5, 6)
	r := HexSearch(tgt, MV{}, testParams())
	assert.Equal(t, FullPel(-5, 6), r.MV)
}

func TestFullSearchRandomTexture(t *testing.T) {
	ref := randomPlane(7)
	tgt := shiftedTarget(ref, -2, 3)
	r := FullSearch(tgt, MV{}, 4, testParams())
	assert.Equal(t, FullPel(-2, 3), r.MV)
	assert.Equal(t, 0, r.Distortion)
}

func TestFullSearchRespectsBounds(t *testing.T) {
	ref := randomPlane(8)
	tgt := shiftedTarget(ref, 0, 6)
	p := testParams()
	p.Bounds.ColMax = 4
	r := FullSearch(tgt, MV{}, 8, p)
	assert.LessOrEqual(t, r.MV.FullCol(), 4)
}

func TestRefiningSearch(t *testing.T) {
	ref := bowlPlane()
	tgt := shiftedTarget(ref, 1, 1)
	r := RefiningSearch(tgt, MV{}, 8, testParams())
	assert.Equal(t, FullPel(1, 1), r.MV)

	r = RefiningSearch(tgt, MV{}, 1, testParams())
	assert.NotEqual(t, FullPel(1, 1), r.MV, "a single step cannot reach a diagonal")
}

func TestSearchStartOutsideBoundsIsClamped(t *testing.T) {
	ref := bowlPlane()
	tgt := shiftedTarget(ref, 0, 0)
	p := testParams()
	r := HexSearch(tgt, FullPel(40, -40), p)
	assert.True(t, p.Bounds.ContainsFull(r.MV.FullRow(), r.MV.FullCol()))
}

func TestRefineSubPelKeepsExactMatch(t *testing.T) {
	ref := bowlPlane()
	tgt := shiftedTarget(ref, 0, 1)
	p := testParams()
	full := FullSearch(tgt, MV{}, 2, p)
	for _, m := range []SubPelMethod{SubPelIterative, SubPelStep, SubPelHalf, SubPelSkip} {
		r := RefineSubPel(m, tgt, full, p)
		assert.Equal(t, MV{Col: 8}, r.MV, m.String())
		assert.Equal(t, 0, r.Distortion, m.String())
	}
}

func TestRefineSubPelFindsHalfPel(t *testing.T) {
	ref := bowlPlane()
	src := make([]byte, 16*16)
	dsp.BilinearPredict(ref, blockPos*planeSize+blockPos, planeSize, 4, 0, src, 0, 16, 16, 16)
	tgt := &Target{
		Src: src, SrcStride: 16,
		Ref: ref, RefOff: blockPos*planeSize + blockPos, RefStride: planeSize,
		Size: dsp.Block16x16,
	}
	p := testParams()
	start := finish(tgt, p, 0, 0, 0, 0)
	for _, m := range []SubPelMethod{SubPelIterative, SubPelStep, SubPelHalf} {
		r := RefineSubPel(m, tgt, start, p)
		require.Equal(t, MV{Col: 4}, r.MV, m.String())
		assert.Equal(t, 0, r.SSE, m.String())
	}
}

func TestSubVarianceHalfPelShortcuts(t *testing.T) {
	ref := bowlPlane()
	tgt := shiftedTarget(ref, 1, 2)
	off := tgt.RefOff
	for _, mv := range []MV{{Col: 4}, {Row: 4}, {Row: 4, Col: 4}, {Row: -4, Col: 12}, {Row: 2, Col: 6}} {
		o := off + mv.FullRow()*tgt.RefStride + mv.FullCol()
		wantV, wantSSE := dsp.SubPixelVariance(ref, o, tgt.RefStride, mv.FracCol(), mv.FracRow(), tgt.Src, tgt.SrcOff, tgt.SrcStride, 16, 16)
		v, sse := tgt.subVariance(mv)
		assert.Equal(t, wantV, v, "mv %+v", mv)
		assert.Equal(t, wantSSE, sse, "mv %+v", mv)
	}
}

func BenchmarkDiamondSearch(b *testing.B) {
	ref := bowlPlane()
	tgt := shiftedTarget(ref, 3, -2)
	sites := NewDiamondSites(planeSize)
	p := testParams()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		DiamondSearch(tgt, sites, MV{}, 3, p)
	}
}
