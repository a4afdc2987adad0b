package rdopt

import (
	"github.com/deepteams/vp8rd/internal/dsp"
	"github.com/deepteams/vp8rd/internal/mcomp"
)

// Vote slots of NearMVs.Counts.
const (
	cntIntra = iota
	cntNearest
	cntNear
	cntSplit
)

// NearMVs are the neighbour-derived vector candidates of a macroblock.
type NearMVs struct {
	Best    mcomp.MV
	Nearest mcomp.MV
	Near    mcomp.MV
	// Counts are the neighbour votes that select the inter mode
	// probabilities.
	Counts [4]int
}

// FindNearMVs ranks the distinct vectors of the above, left and above-left
// neighbours by a weighted vote (2, 2 and 1). Vectors of neighbours whose
// reference has the opposite sign bias to ref are mirrored. The returned
// vectors are clamped to bounds.
func FindNearMVs(g *ModeInfoGrid, row, col int, ref RefFrame, signBias *[NumRefFrames]bool, bounds mcomp.Bounds) NearMVs {
	var mvs [4]mcomp.MV
	var cnt [4]int
	idx := 0

	bias := func(mi ModeInfo) mcomp.MV {
		if signBias[mi.Ref] != signBias[ref] {
			return mi.MV.Neg()
		}
		return mi.MV
	}

	above := g.At(row-1, col)
	left := g.At(row, col-1)
	aboveLeft := g.At(row-1, col-1)

	if above.Ref != IntraFrame {
		if !above.MV.IsZero() {
			idx++
			mvs[idx] = bias(above)
		}
		cnt[idx] += 2
	}
	if left.Ref != IntraFrame {
		if !left.MV.IsZero() {
			mv := bias(left)
			if mv != mvs[idx] {
				idx++
				mvs[idx] = mv
			}
			cnt[idx] += 2
		} else {
			cnt[cntIntra] += 2
		}
	}
	if aboveLeft.Ref != IntraFrame {
		if !aboveLeft.MV.IsZero() {
			mv := bias(aboveLeft)
			if mv != mvs[idx] {
				idx++
				mvs[idx] = mv
			}
			cnt[idx]++
		} else {
			cnt[cntIntra]++
		}
	}

	// Three distinct vectors where the last matches the first.
	if cnt[cntSplit] > 0 && mvs[idx] == mvs[cntNearest] {
		cnt[cntNearest]++
	}
	cnt[cntSplit] = 2*(b2i(above.Mode == SplitMV)+b2i(left.Mode == SplitMV)) + b2i(aboveLeft.Mode == SplitMV)

	if cnt[cntNear] > cnt[cntNearest] {
		cnt[cntNearest], cnt[cntNear] = cnt[cntNear], cnt[cntNearest]
		mvs[cntNearest], mvs[cntNear] = mvs[cntNear], mvs[cntNearest]
	}
	if cnt[cntNearest] >= cnt[cntIntra] {
		mvs[cntIntra] = mvs[cntNearest]
	}
	return NearMVs{
		Best:    bounds.Clamp(mvs[cntIntra]),
		Nearest: bounds.Clamp(mvs[cntNearest]),
		Near:    bounds.Clamp(mvs[cntNear]),
		Counts:  cnt,
	}
}

// ModeProbs returns the inter mode probabilities selected by the votes.
func (n *NearMVs) ModeProbs() [4]uint8 {
	var p [4]uint8
	for i := range p {
		c := n.Counts[i]
		if c > len(modeContexts)-1 {
			c = len(modeContexts) - 1
		}
		p[i] = modeContexts[c][i]
	}
	return p
}

// MVRefCost returns the cost of signalling an inter mode.
func (n *NearMVs) MVRefCost(m PredictionMode) int {
	p := n.ModeProbs()
	return dsp.TreeCost(mvRefPaths[m], p[:])
}

// Vector returns the candidate vector an inter mode codes without search.
func (n *NearMVs) Vector(m PredictionMode) mcomp.MV {
	switch m {
	case NearestMV:
		return n.Nearest
	case NearMV:
		return n.Near
	}
	return mcomp.MV{}
}

func b2i(b bool) int {
	if b {
		return 1
	}
	return 0
}
