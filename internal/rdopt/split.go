package rdopt

import (
	"math"

	"github.com/deepteams/vp8rd/internal/dsp"
	"github.com/deepteams/vp8rd/internal/mcomp"
	"github.com/deepteams/vp8rd/internal/yuv"
)

// splitMVCostWeight scales sub-block vector bit costs.
const splitMVCostWeight = 102

// subNeighbours returns the vectors left of and above luma block b, reading
// the neighbouring macroblocks across the macroblock edge.
func (m *mb) subNeighbours(c *candidate, b int) (left, above mcomp.MV) {
	if b&3 != 0 {
		left = c.info.BMVs[b-1]
	} else {
		left = m.fc.Modes.At(m.row, m.col-1).BMVs[b+3]
	}
	if b>>2 != 0 {
		above = c.info.BMVs[b-4]
	} else {
		above = m.fc.Modes.At(m.row-1, m.col).BMVs[b+12]
	}
	return left, above
}

// searchLabel finds a vector for the partition whose top-left luma block is
// first, starting the search at start.
func (m *mb) searchLabel(ref RefFrame, part, first int, start mcomp.MV) mcomp.MV {
	fc := m.fc
	sf := fc.Speed
	src, rf := fc.Src, fc.Refs[ref]
	bx, by := (first&3)*4, (first>>2)*4
	t := &mcomp.Target{
		Src:       src.Y,
		SrcOff:    m.srcY + by*src.YStride + bx,
		SrcStride: src.YStride,
		Ref:       rf.Y,
		RefOff:    rf.MBYOff(m.col, m.row) + by*rf.YStride + bx,
		RefStride: rf.YStride,
		Size:      splitSizes[part],
	}
	n := &m.near[ref]
	p := &mcomp.Params{
		Bounds:    m.bounds.Intersect(n.Best),
		Costs:     fc.MVCosts,
		Center:    n.Best,
		SADPerBit: fc.RD.SADPerBit16,
		ErrPerBit: fc.RD.ErrPerBit,
	}
	var res mcomp.Result
	if part == Split4x4 {
		p.SADPerBit = fc.RD.SADPerBit4
		res = mcomp.RefiningSearch(t, start.RoundToFullPel(), sf.RefineRange, p)
	} else {
		res = mcomp.DiamondSearch(t, fc.Diamond, start.RoundToFullPel(), sf.FirstStep, p)
	}
	if sf.SubPel != mcomp.SubPelSkip {
		m.rs.Stats.SubPelSearches++
		res = mcomp.RefineSubPel(sf.SubPel, t, res, p)
	}
	return res.MV
}

// codeLabel predicts, codes and prices every luma block of one partition
// with vector mv.
func (m *mb) codeLabel(k *coder, ref *yuv.Frame, labels *[16]uint8, label uint8, mv mcomp.MV, pred *mbPred) (rate, dist int) {
	src := m.fc.Src
	base := ref.MBYOff(m.col, m.row)
	for b := 0; b < 16; b++ {
		if labels[b] != label {
			continue
		}
		bx, by := (b&3)*4, (b>>2)*4
		off := by*dsp.BPS + bx
		refOff := base + (by+mv.FullRow())*ref.YStride + bx + mv.FullCol()
		dsp.BilinearPredict(ref.Y, refOff, ref.YStride, mv.FracCol(), mv.FracRow(), pred[:], off, dsp.BPS, 4, 4)
		transform(k.c.Y(b), src.Y, m.srcY+by*src.YStride+bx, src.YStride, pred[:], off)
		r, d := k.block(firstY+b, &m.fc.Quant.Y1)
		rate += r
		dist += d
	}
	return rate, dist >> 2
}

// labelChoice is the winning sub-vector of one partition.
type labelChoice struct {
	mv     mcomp.MV
	rate   int // sub-mv reference and vector bits
	tokens int
	dist   int
	tc     TrialContext
	blocks [16]Block
	pix    [16][16]byte
}

func (lc *labelChoice) save(c *candidate, labels *[16]uint8, label uint8) {
	for b := 0; b < 16; b++ {
		if labels[b] != label {
			continue
		}
		lc.blocks[b] = *c.coeffs.Y(b)
		off := (b>>2)*4*dsp.BPS + (b&3)*4
		for y := 0; y < 4; y++ {
			copy(lc.pix[b][y*4:y*4+4], c.pred[off+y*dsp.BPS:])
		}
	}
}

func (lc *labelChoice) restore(c *candidate, labels *[16]uint8, label uint8) {
	for b := 0; b < 16; b++ {
		if labels[b] != label {
			continue
		}
		*c.coeffs.Y(b) = lc.blocks[b]
		c.info.BMVs[b] = lc.mv
		off := (b>>2)*4*dsp.BPS + (b&3)*4
		for y := 0; y < 4; y++ {
			copy(c.pred[off+y*dsp.BPS:off+y*dsp.BPS+4], lc.pix[b][y*4:])
		}
	}
	c.tc = lc.tc
}

// trySegmentation prices one partitioning. Each partition picks the
// cheapest of its four sub-vector references. It returns nil once the
// running cost reaches limit.
func (m *mb) trySegmentation(idx ModeIndex, base TrialContext, part int, limit int) *candidate {
	ref := ModeOrder[idx].Ref
	rf := m.fc.Refs[ref]
	n := &m.near[ref]
	labels := &splitLabels[part]
	c := newCandidate(idx, base)
	c.info.Partition = uint8(part)
	modeRate := dsp.TreeCost(splitPaths[part], mbSplitProbs[:])
	tokens, dist := 0, 0
	prev := n.Best

	for l := 0; l < splitCounts[part]; l++ {
		label := uint8(l)
		first := 0
		for labels[first] != label {
			first++
		}
		left, above := m.subNeighbours(c, first)
		ctx := subMVContext(left, above)

		var best labelChoice
		bestRD := math.MaxInt
		start := c.tc
		for sm := subMVLeft; sm < numSubMVRefs; sm++ {
			var mv mcomp.MV
			mvRate := 0
			switch sm {
			case subMVLeft:
				mv = left
			case subMVAbove:
				mv = above
			case subMVNew:
				mv = m.searchLabel(ref, part, first, prev)
				mvRate = m.fc.MVCosts.BitCost(mv, n.Best, splitMVCostWeight)
			}
			if !m.bounds.Contains(mv) {
				continue
			}
			tc := start
			k := coder{m: m, c: &c.coeffs, tc: &tc}
			r, d := m.codeLabel(&k, rf, labels, label, mv, &c.pred)
			rate := dsp.TreeCost(subMVRefPaths[sm], subMVRefProbs[ctx][:]) + mvRate
			if rd := m.fc.RD.Cost(rate+r, d); rd < bestRD {
				bestRD = rd
				best.mv, best.rate, best.tokens, best.dist, best.tc = mv, rate, r, d, tc
				best.save(c, labels, label)
			}
		}
		if bestRD == math.MaxInt {
			return nil
		}
		best.restore(c, labels, label)
		prev = best.mv
		modeRate += best.rate
		tokens += best.tokens
		dist += best.dist
		if m.fc.RD.Cost(modeRate+tokens, dist) >= limit {
			return nil
		}
	}
	c.info.MV = c.info.BMVs[15]
	c.modeRate = modeRate
	c.tokenRate = tokens
	c.dist = dist
	return c
}

// splitChromaMV rounds the sum of four luma sub-vector components to a
// chroma component.
func splitChromaMV(a, b, c, d int16) int16 {
	s := int(a) + int(b) + int(c) + int(d)
	if s < 0 {
		s -= 4
	} else {
		s += 4
	}
	return int16(s / 8)
}

// predictSplitChroma predicts each 4x4 chroma block with the vector of its
// four co-located luma blocks.
func (m *mb) predictSplitChroma(ref *yuv.Frame, c *candidate) {
	base := ref.MBUVOff(m.col, m.row)
	v := &c.info.BMVs
	for i := 0; i < 4; i++ {
		r, cc := i>>1, i&1
		b0 := r*8 + cc*2
		mv := mcomp.MV{
			Row: splitChromaMV(v[b0].Row, v[b0+1].Row, v[b0+4].Row, v[b0+5].Row),
			Col: splitChromaMV(v[b0].Col, v[b0+1].Col, v[b0+4].Col, v[b0+5].Col),
		}
		bx, by := cc*4, r*4
		off := base + (by+mv.FullRow())*ref.UVStride + bx + mv.FullCol()
		dsp.BilinearPredict(ref.U, off, ref.UVStride, mv.FracCol(), mv.FracRow(), c.pred[:], by*dsp.BPS+predU+bx, dsp.BPS, 4, 4)
		dsp.BilinearPredict(ref.V, off, ref.UVStride, mv.FracCol(), mv.FracRow(), c.pred[:], by*dsp.BPS+predV+bx, dsp.BPS, 4, 4)
	}
}

// evalSplitMV tries the partitionings from coarse to fine, keeping a finer
// one only when it is strictly cheaper than everything before it, including
// bestRD of the whole-block candidates.
func (m *mb) evalSplitMV(idx ModeIndex, base TrialContext, bestRD int) *candidate {
	ref := ModeOrder[idx].Ref
	var best *candidate
	limit := bestRD
	for part := Split16x8; part < NumSplitPartitions; part++ {
		c := m.trySegmentation(idx, base, part, limit)
		if c == nil {
			continue
		}
		if rd := m.fc.RD.Cost(c.modeRate+c.tokenRate, c.dist); rd < limit {
			best, limit = c, rd
		}
	}
	if best == nil {
		return nil
	}
	m.predictSplitChroma(m.fc.Refs[ref], best)
	k := coder{m: m, c: &best.coeffs, tc: &best.tc}
	ur, ud := k.chroma(&best.pred)
	best.tokenRate += ur
	best.dist += ud
	best.modeRate += m.near[ref].MVRefCost(SplitMV)
	return best
}
