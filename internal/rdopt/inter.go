package rdopt

import (
	"math"

	"github.com/deepteams/vp8rd/internal/dsp"
	"github.com/deepteams/vp8rd/internal/mcomp"
	"github.com/deepteams/vp8rd/internal/yuv"
)

const (
	// mvCostWeight scales vector bit costs when pricing a candidate.
	mvCostWeight = 96
	// breakoutRate is the nominal rate of a macroblock skipped by the
	// encode breakout.
	breakoutRate = 500
	// fullSearchVariance triggers the exhaustive fallback search.
	fullSearchVariance = 4000
)

// chromaMV derives the chroma vector of a whole-block luma vector.
func chromaMV(mv mcomp.MV) mcomp.MV {
	return mcomp.MV{Row: halveRound(mv.Row), Col: halveRound(mv.Col)}
}

func halveRound(v int16) int16 {
	x := int(v)
	return int16((x + (1 | x>>31)) / 2)
}

// predictInter builds the prediction of a whole-block vector from ref.
func (m *mb) predictInter(ref *yuv.Frame, mv mcomp.MV, pred *mbPred) {
	off := ref.MBYOff(m.col, m.row) + mv.FullRow()*ref.YStride + mv.FullCol()
	dsp.BilinearPredict(ref.Y, off, ref.YStride, mv.FracCol(), mv.FracRow(), pred[:], 0, dsp.BPS, 16, 16)
	uv := chromaMV(mv)
	uvOff := ref.MBUVOff(m.col, m.row) + uv.FullRow()*ref.UVStride + uv.FullCol()
	dsp.BilinearPredict(ref.U, uvOff, ref.UVStride, uv.FracCol(), uv.FracRow(), pred[:], predU, dsp.BPS, 8, 8)
	dsp.BilinearPredict(ref.V, uvOff, ref.UVStride, uv.FracCol(), uv.FracRow(), pred[:], predV, dsp.BPS, 8, 8)
}

// chromaSSE is the prediction SSE of both chroma planes.
func (m *mb) chromaSSE(pred *mbPred) int {
	src := m.fc.Src
	return dsp.SSE(src.U, m.srcUV, src.UVStride, pred[:], predU, dsp.BPS, 8, 8) +
		dsp.SSE(src.V, m.srcUV, src.UVStride, pred[:], predV, dsp.BPS, 8, 8)
}

// breakout ends the search on a prediction too close to the source to be
// worth a residual.
func (m *mb) breakout(c *candidate, variance, sse int) bool {
	fc := m.fc
	if fc.EncodeBreakout == 0 {
		return false
	}
	ac := int(fc.Quant.Y1.Dequant[1])
	threshold := ac * ac >> 4
	if threshold < fc.EncodeBreakout {
		threshold = fc.EncodeBreakout
	}
	if sse >= threshold {
		return false
	}
	q2dc := int(fc.Quant.Y2.Dequant[0])
	if !(sse-variance < q2dc*q2dc>>4 || (sse/2 > variance && sse-variance < 64)) {
		return false
	}
	uvSSE := m.chromaSSE(&c.pred)
	if uvSSE*2 >= threshold {
		return false
	}
	c.breakout = true
	c.coeffs.HasY2 = true
	c.tc.Skip(true)
	c.dist = sse + uvSSE
	return true
}

// prepareInter checks mv against the window and builds its prediction. It
// returns nil for a vector outside the window, along with the luma
// prediction variance.
func (m *mb) prepareInter(idx ModeIndex, base TrialContext, mv mcomp.MV, mvRate int) (*candidate, int) {
	if !m.bounds.Contains(mv) {
		return nil, 0
	}
	mode, ref := ModeOrder[idx].Mode, ModeOrder[idx].Ref
	c := newCandidate(idx, base)
	c.info.MV = mv
	for i := range c.info.BMVs {
		c.info.BMVs[i] = mv
	}
	m.predictInter(m.fc.Refs[ref], mv, &c.pred)

	src := m.fc.Src
	variance, sse := dsp.Variance16x16(src.Y, m.srcY, src.YStride, c.pred[:], 0, dsp.BPS)
	c.sse = sse
	if mode == ZeroMV && ref == LastFrame {
		m.zeroSSE = sse
	}
	c.modeRate = m.near[ref].MVRefCost(mode) + mvRate
	return c, variance
}

// priceInter is the tail shared by every whole-block inter candidate: the
// vector is checked against the window, the prediction built and the
// residual coded and priced.
func (m *mb) priceInter(idx ModeIndex, base TrialContext, mv mcomp.MV, mvRate int) *candidate {
	c, variance := m.prepareInter(idx, base, mv, mvRate)
	if c == nil || m.breakout(c, variance, c.sse) {
		return c
	}
	m.codeInter(c)
	return c
}

// codeInter codes the residual of an inter prediction.
func (m *mb) codeInter(c *candidate) {
	k := coder{m: m, c: &c.coeffs, tc: &c.tc, boost: zbinBoostFor(c.info.Mode)}
	yr, yd := k.luma16(&c.pred)
	ur, ud := k.chroma(&c.pred)
	c.tokenRate = yr + ur
	c.dist = yd + ud
}

// nearVector returns the vector ZEROMV, NEARESTMV or NEARMV codes. A zero
// NEAREST or NEAR vector duplicates ZEROMV and is reported as unusable.
func (m *mb) nearVector(idx ModeIndex) (mcomp.MV, bool) {
	mode, ref := ModeOrder[idx].Mode, ModeOrder[idx].Ref
	mv := m.near[ref].Vector(mode)
	return mv, mode == ZeroMV || !mv.IsZero()
}

// evalNearMode prices ZEROMV, NEARESTMV or NEARMV.
func (m *mb) evalNearMode(idx ModeIndex, base TrialContext) *candidate {
	mv, ok := m.nearVector(idx)
	if !ok {
		return nil
	}
	return m.priceInter(idx, base, mv, 0)
}

// lumaTarget is the search target of the whole luma block against ref.
func (m *mb) lumaTarget(ref *yuv.Frame) *mcomp.Target {
	src := m.fc.Src
	return &mcomp.Target{
		Src:       src.Y,
		SrcOff:    m.srcY,
		SrcStride: src.YStride,
		Ref:       ref.Y,
		RefOff:    ref.MBYOff(m.col, m.row),
		RefStride: ref.YStride,
		Size:      dsp.Block16x16,
	}
}

// searchStart picks the integer search origin. With ImprovedMVPred the
// neighbour candidate with the lowest SAD wins; otherwise the best
// reference vector is used.
func (m *mb) searchStart(t *mcomp.Target, ref RefFrame, b mcomp.Bounds) mcomp.MV {
	n := &m.near[ref]
	start := n.Best.RoundToFullPel()
	if !m.fc.Speed.ImprovedMVPred {
		return start
	}
	bestSAD := math.MaxInt
	cands := [...]mcomp.MV{n.Best, n.Nearest, n.Near,
		m.fc.Modes.At(m.row-1, m.col).MV, m.fc.Modes.At(m.row, m.col-1).MV}
	for _, mv := range cands {
		mv = b.Clamp(mv.RoundToFullPel())
		if !b.ContainsFull(mv.FullRow(), mv.FullCol()) {
			continue
		}
		sad := dsp.SAD16x16(t.Src, t.SrcOff, t.SrcStride, t.Ref, t.RefOff+mv.FullRow()*t.RefStride+mv.FullCol(), t.RefStride)
		if sad < bestSAD {
			bestSAD, start = sad, mv
		}
	}
	return start
}

// motionSearch runs the configured integer search from start and refines
// the result to sub-pixel precision.
func (m *mb) motionSearch(t *mcomp.Target, start mcomp.MV, p *mcomp.Params) mcomp.Result {
	sf := m.fc.Speed
	var res mcomp.Result
	switch sf.Search {
	case SearchDiamond:
		res = mcomp.DiamondSearch(t, m.fc.Diamond, start, sf.FirstStep, p)
	case SearchNStep:
		res = mcomp.NStepDiamond(t, m.fc.Diamond, start, sf.FirstStep, sf.FurtherSteps, p)
	case SearchHex:
		res = mcomp.HexSearch(t, start, p)
	default:
		res = mcomp.FullSearch(t, start, sf.FullSearchDist, p)
	}
	if sf.FullSearchFallback && sf.Search != SearchFull && res.Distortion > fullSearchVariance {
		if full := mcomp.FullSearch(t, start, sf.FullSearchDist, p); full.Err < res.Err {
			res = full
		}
	}
	if sf.SubPel != mcomp.SubPelSkip {
		m.rs.Stats.SubPelSearches++
		res = mcomp.RefineSubPel(sf.SubPel, t, res, p)
	}
	return res
}

// newMV searches a vector against ref and returns it with its bit cost.
func (m *mb) newMV(ref RefFrame) (mcomp.MV, int) {
	n := &m.near[ref]
	fc := m.fc
	t := m.lumaTarget(fc.Refs[ref])
	p := &mcomp.Params{
		Bounds:    m.bounds.Intersect(n.Best),
		Costs:     fc.MVCosts,
		Center:    n.Best,
		SADPerBit: fc.RD.SADPerBit16,
		ErrPerBit: fc.RD.ErrPerBit,
	}
	res := m.motionSearch(t, m.searchStart(t, ref, p.Bounds), p)
	return res.MV, fc.MVCosts.BitCost(res.MV, n.Best, mvCostWeight)
}

// evalNewMV searches a new vector and prices it through the shared inter
// tail.
func (m *mb) evalNewMV(idx ModeIndex, base TrialContext) *candidate {
	mv, mvRate := m.newMV(ModeOrder[idx].Ref)
	return m.priceInter(idx, base, mv, mvRate)
}
