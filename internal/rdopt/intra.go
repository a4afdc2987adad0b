package rdopt

import (
	"math"

	"github.com/deepteams/vp8rd/internal/dsp"
)

// predictLuma16 fills the luma of pred for a whole-block intra mode.
func (m *mb) predictLuma16(mode PredictionMode, pred *mbPred) {
	e := &m.edges
	dsp.PredictBlock(int(mode), 16, e.yAbove[:16], e.yLeft[:], e.yTL, e.haveAbove, e.haveLeft, pred[:], 0)
}

// predictChromaIntra fills both chroma planes of pred for an intra mode.
func (m *mb) predictChromaIntra(uvMode int, pred *mbPred) {
	e := &m.edges
	dsp.PredictBlock(uvMode, 8, e.uAbove[:], e.uLeft[:], e.uTL, e.haveAbove, e.haveLeft, pred[:], predU)
	dsp.PredictBlock(uvMode, 8, e.vAbove[:], e.vLeft[:], e.vTL, e.haveAbove, e.haveLeft, pred[:], predV)
}

// chromaChoice is the best intra chroma mode of a macroblock, shared by
// every intra luma candidate.
type chromaChoice struct {
	mode      int
	modeRate  int
	tokenRate int
	dist      int
	pred      mbPred
	coeffs    Coeffs
	tc        TrialContext
}

// bestIntraChroma tries the four chroma modes against base.
func (m *mb) bestIntraChroma(base TrialContext) *chromaChoice {
	var best *chromaChoice
	bestRD := math.MaxInt
	for mode := dsp.PredDC; mode < dsp.NumBlockPredModes; mode++ {
		ch := &chromaChoice{mode: mode, tc: base, modeRate: uvModeCost(mode, m.fc.KeyFrame)}
		m.predictChromaIntra(mode, &ch.pred)
		k := coder{m: m, c: &ch.coeffs, tc: &ch.tc, intra: true}
		ch.tokenRate, ch.dist = k.chroma(&ch.pred)
		if rd := m.fc.RD.Cost(ch.modeRate+ch.tokenRate, ch.dist); rd < bestRD {
			best, bestRD = ch, rd
		}
	}
	return best
}

// applyChroma copies a chroma choice into a candidate.
func (c *candidate) applyChroma(ch *chromaChoice) {
	c.uvMode = ch.mode
	copy(c.coeffs.Blocks[firstU:y2Block], ch.coeffs.Blocks[firstU:y2Block])
	for y := 0; y < 8; y++ {
		copy(c.pred[y*dsp.BPS+predU:y*dsp.BPS+dsp.BPS], ch.pred[y*dsp.BPS+predU:])
	}
	copy(c.tc.Above[ctxU:ctxY2], ch.tc.Above[ctxU:ctxY2])
	copy(c.tc.Left[ctxU:ctxY2], ch.tc.Left[ctxU:ctxY2])
	c.modeRate += ch.modeRate
	c.tokenRate += ch.tokenRate
	c.dist += ch.dist
}

// evalIntra16 prices a whole-block luma intra mode.
func (m *mb) evalIntra16(idx ModeIndex, base TrialContext, uv *chromaChoice) *candidate {
	mode := ModeOrder[idx].Mode
	c := newCandidate(idx, base)
	m.predictLuma16(mode, &c.pred)
	k := coder{m: m, c: &c.coeffs, tc: &c.tc, intra: true}
	c.tokenRate, c.dist = k.luma16(&c.pred)
	c.modeRate = ymodeCost(mode, m.fc.KeyFrame)
	c.applyChroma(uv)
	return c
}

// subBlockEdges gathers the neighbours of luma block i from the macroblock
// edges and the blocks already reconstructed in rec. Blocks on the right
// column take their above-right pixels from the macroblock above-right.
func (m *mb) subBlockEdges(i int, rec *mbPred) [13]byte {
	e := &m.edges
	r, c := i>>2, i&3
	var above [8]byte
	var left [4]byte
	var tl byte

	if r == 0 {
		copy(above[:], e.yAbove[c*4:c*4+8])
	} else {
		row := (r*4 - 1) * dsp.BPS
		copy(above[:4], rec[row+c*4:])
		if c < 3 {
			copy(above[4:], rec[row+c*4+4:])
		} else {
			copy(above[4:], e.yAbove[16:20])
		}
	}
	for j := range left {
		if c == 0 {
			left[j] = e.yLeft[r*4+j]
		} else {
			left[j] = rec[(r*4+j)*dsp.BPS+c*4-1]
		}
	}
	switch {
	case r == 0 && c == 0:
		tl = e.yTL
	case r == 0:
		tl = e.yAbove[c*4-1]
	case c == 0:
		tl = e.yLeft[r*4-1]
	default:
		tl = rec[(r*4-1)*dsp.BPS+c*4-1]
	}
	return dsp.SubEdges(above[:], left[:], tl)
}

// evalBPred picks a 4x4 mode for every luma block in raster order,
// reconstructing each block before moving to the next. It gives up and
// returns nil once the running cost reaches bestRD.
func (m *mb) evalBPred(idx ModeIndex, base TrialContext, uv *chromaChoice, bestRD int) *candidate {
	c := newCandidate(idx, base)
	c.lumaDone = true
	rate := ymodeCost(BPred, m.fc.KeyFrame)
	tokenRate, dist := 0, 0
	for i := 0; i < 16; i++ {
		edges := m.subBlockEdges(i, &c.pred)
		off := (i>>2)*4*dsp.BPS + (i&3)*4

		var bestBlk Block
		var bestTC TrialContext
		var bestPix [16]byte
		bestMode, bestBlkRD := 0, math.MaxInt
		bestRate, bestTok, bestDist := 0, 0, 0
		for mode := dsp.PredBDC; mode < dsp.NumSubPredModes; mode++ {
			dsp.PredictSubBlock(mode, &edges, c.pred[:], off)
			tc := c.tc
			k := coder{m: m, c: &c.coeffs, tc: &tc, intra: true}
			tr, d := k.lumaBlock(i, c.pred[:], off)
			mr := bmodeCost(mode)
			if rd := m.fc.RD.Cost(mr+tr, d); rd < bestBlkRD {
				bestBlkRD, bestMode = rd, mode
				bestRate, bestTok, bestDist = mr, tr, d
				bestBlk, bestTC = *c.coeffs.Y(i), tc
				for y := 0; y < 4; y++ {
					copy(bestPix[y*4:y*4+4], c.pred[off+y*dsp.BPS:])
				}
			}
		}
		*c.coeffs.Y(i) = bestBlk
		c.tc = bestTC
		c.info.BModes[i] = uint8(bestMode)
		for y := 0; y < 4; y++ {
			copy(c.pred[off+y*dsp.BPS:off+y*dsp.BPS+4], bestPix[y*4:])
		}
		dsp.IDCT4x4Add(bestBlk.DQCoeff[:], c.pred[:], off, dsp.BPS, c.pred[:], off, dsp.BPS)

		rate += bestRate
		tokenRate += bestTok
		dist += bestDist
		if m.fc.RD.Cost(rate+tokenRate, dist) >= bestRD {
			return nil
		}
	}
	c.modeRate = rate
	c.tokenRate = tokenRate
	c.dist = dist
	c.applyChroma(uv)
	return c
}
