package mcomp

import (
	"math"

	"github.com/deepteams/vp8rd/internal/dsp"
)

// Target is the block being matched and the reference plane it is matched
// against. RefOff addresses the reference pixel co-located with the block
// (the zero vector); the reference plane must carry a border wide enough
// for every vector inside the search Bounds.
type Target struct {
	Src       []byte
	SrcOff    int
	SrcStride int
	Ref       []byte
	RefOff    int
	RefStride int
	Size      int // dsp.Block16x16 .. dsp.Block4x4
}

func (t *Target) sad(row, col int) int {
	return dsp.SADBySize[t.Size](t.Src, t.SrcOff, t.SrcStride, t.Ref, t.RefOff+row*t.RefStride+col, t.RefStride)
}

func (t *Target) variance(row, col int) (int, int) {
	w, h := dsp.BlockWidth[t.Size], dsp.BlockHeight[t.Size]
	return dsp.Variance(t.Src, t.SrcOff, t.SrcStride, t.Ref, t.RefOff+row*t.RefStride+col, t.RefStride, w, h)
}

// subVariance scores mv (1/8 pel, possibly fractional).
func (t *Target) subVariance(mv MV) (int, int) {
	w, h := dsp.BlockWidth[t.Size], dsp.BlockHeight[t.Size]
	off := t.RefOff + mv.FullRow()*t.RefStride + mv.FullCol()
	switch fr, fc := mv.FracRow(), mv.FracCol(); {
	case fr == 0 && fc == 0:
		return dsp.Variance(t.Src, t.SrcOff, t.SrcStride, t.Ref, off, t.RefStride, w, h)
	case fr == 0 && fc == 4:
		return dsp.HalfPixVarianceH(t.Ref, off, t.RefStride, t.Src, t.SrcOff, t.SrcStride, w, h)
	case fr == 4 && fc == 0:
		return dsp.HalfPixVarianceV(t.Ref, off, t.RefStride, t.Src, t.SrcOff, t.SrcStride, w, h)
	case fr == 4 && fc == 4:
		return dsp.HalfPixVarianceHV(t.Ref, off, t.RefStride, t.Src, t.SrcOff, t.SrcStride, w, h)
	}
	return dsp.SubPixelVariance(t.Ref, off, t.RefStride, mv.FracCol(), mv.FracRow(), t.Src, t.SrcOff, t.SrcStride, w, h)
}

// Params carries the cost model for a search.
type Params struct {
	Bounds    Bounds
	Costs     *CostTables
	Center    MV  // predictor the vector will be coded against
	SADPerBit int // weight of SADCost during integer search
	ErrPerBit int // weight of ErrCost in the returned error
}

// Result is the outcome of a motion search.
type Result struct {
	MV MV
	// SAD is the best SAD plus the full-pel vector cost.
	SAD int
	// Err is the variance at MV plus the exact vector cost; this is what
	// callers compare across searches.
	Err int
	// Distortion and SSE are the variance and raw SSE at MV.
	Distortion int
	SSE        int
	// Num00 counts diamond steps that left the start position unmoved.
	Num00 int
}

// finish computes the error terms of the integer-pel best position.
func finish(t *Target, p *Params, row, col, bestSAD, num00 int) Result {
	mv := FullPel(row, col)
	v, sse := t.variance(row, col)
	return Result{
		MV:         mv,
		SAD:        bestSAD,
		Err:        v + p.Costs.ErrCost(mv, p.Center, p.ErrPerBit),
		Distortion: v,
		SSE:        sse,
		Num00:      num00,
	}
}

// DiamondSearch walks the site set from start, moving to the best improving
// site of each step. searchParam skips the largest steps: 0 starts at
// MaxFirstStep, each increment halves the first step.
func DiamondSearch(t *Target, sites *SiteSet, start MV, searchParam int, p *Params) Result {
	cr, cc := p.Center.FullRow(), p.Center.FullCol()
	br, bc := p.Bounds.clampFull(start.FullRow(), start.FullCol())
	startR, startC := br, bc
	best := t.sad(br, bc) + p.Costs.SADCost(br, bc, cr, cc, p.SADPerBit)

	num00 := 0
	i := 1 + searchParam*sites.PerStep
	lastSite := 0
	for step := searchParam; step < sites.Steps(); step++ {
		bestSite := lastSite
		for j := 0; j < sites.PerStep; j++ {
			s := &sites.Sites[i]
			i++
			r, c := br+s.Row, bc+s.Col
			if !p.Bounds.ContainsFull(r, c) {
				continue
			}
			sad := t.sad(r, c)
			if sad < best {
				sad += p.Costs.SADCost(r, c, cr, cc, p.SADPerBit)
				if sad < best {
					best = sad
					bestSite = i - 1
				}
			}
		}
		if bestSite != lastSite {
			br += sites.Sites[bestSite].Row
			bc += sites.Sites[bestSite].Col
			lastSite = bestSite
		} else if br == startR && bc == startC {
			num00++
		}
	}
	return finish(t, p, br, bc, best, num00)
}

// NStepDiamond runs DiamondSearch from searchParam and then restarts it at
// progressively smaller first steps, skipping restarts that the num00 count
// shows would retrace an unmoved path. The best result wins.
func NStepDiamond(t *Target, sites *SiteSet, start MV, searchParam, furtherSteps int, p *Params) Result {
	best := DiamondSearch(t, sites, start, searchParam, p)
	n := best.Num00
	num00 := 0
	for n < furtherSteps {
		n++
		if num00 > 0 {
			num00--
			continue
		}
		r := DiamondSearch(t, sites, start, searchParam+n, p)
		num00 = r.Num00
		if r.Err < best.Err {
			best = r
		}
	}
	return best
}

var hexPattern = [6][2]int{{-1, -2}, {1, -2}, {2, 0}, {1, 2}, {-1, 2}, {-2, 0}}

// hexNext lists the three new hexagon points after a move in direction k.
var hexNext = [6][3][2]int{
	{{-2, 0}, {-1, -2}, {1, -2}},
	{{-1, -2}, {1, -2}, {2, 0}},
	{{1, -2}, {2, 0}, {1, 2}},
	{{2, 0}, {1, 2}, {-1, 2}},
	{{1, 2}, {-1, 2}, {-2, 0}},
	{{-1, 2}, {-2, 0}, {-1, -2}},
}

var crossPattern = [4][2]int{{0, -1}, {-1, 0}, {1, 0}, {0, 1}}

// Default search ranges of HexSearch.
const (
	HexRange     = 127
	DiamondRange = 8
)

// HexSearch climbs a six-point hexagon until no point improves, then refines
// with a four-point cross.
func HexSearch(t *Target, start MV, p *Params) Result {
	cr, cc := p.Center.FullRow(), p.Center.FullCol()
	br, bc := p.Bounds.clampFull(start.FullRow(), start.FullCol())
	best := t.sad(br, bc) + p.Costs.SADCost(br, bc, cr, cc, p.SADPerBit)

	// check scores a candidate; inside reports whether the whole
	// neighbourhood of radius 2 is in bounds so per-point checks can be
	// skipped.
	check := func(r, c int, inside bool) bool {
		if !inside && !p.Bounds.ContainsFull(r, c) {
			return false
		}
		sad := t.sad(r, c)
		if sad >= best {
			return false
		}
		sad += p.Costs.SADCost(r, c, cr, cc, p.SADPerBit)
		if sad >= best {
			return false
		}
		best = sad
		return true
	}
	allInside := func(r, c, d int) bool {
		return r-d >= p.Bounds.RowMin && r+d <= p.Bounds.RowMax &&
			c-d >= p.Bounds.ColMin && c+d <= p.Bounds.ColMax
	}

	bestSite := -1
	inside := allInside(br, bc, 2)
	for i, d := range hexPattern {
		if check(br+d[0], bc+d[1], inside) {
			bestSite = i
		}
	}
	if bestSite >= 0 {
		br += hexPattern[bestSite][0]
		bc += hexPattern[bestSite][1]
		k := bestSite
		for j := 1; j < HexRange; j++ {
			next := -1
			inside = allInside(br, bc, 2)
			for i, d := range hexNext[k] {
				if check(br+d[0], bc+d[1], inside) {
					next = i
				}
			}
			if next < 0 {
				break
			}
			br += hexNext[k][next][0]
			bc += hexNext[k][next][1]
			k += 5 + next
			if k >= 12 {
				k -= 12
			} else if k >= 6 {
				k -= 6
			}
		}
	}

	for j := 0; j < DiamondRange; j++ {
		next := -1
		inside = allInside(br, bc, 1)
		for i, d := range crossPattern {
			if check(br+d[0], bc+d[1], inside) {
				next = i
			}
		}
		if next < 0 {
			break
		}
		br += crossPattern[next][0]
		bc += crossPattern[next][1]
	}
	return finish(t, p, br, bc, best, 0)
}

// FullSearch scans every full-pel position within distance of center in
// raster order.
func FullSearch(t *Target, center MV, distance int, p *Params) Result {
	cr, cc := p.Center.FullRow(), p.Center.FullCol()
	r0, c0 := p.Bounds.clampFull(center.FullRow(), center.FullCol())
	br, bc := r0, c0
	best := t.sad(br, bc) + p.Costs.SADCost(br, bc, cr, cc, p.SADPerBit)

	rowMin, rowMax := maxInt(r0-distance, p.Bounds.RowMin), minInt(r0+distance, p.Bounds.RowMax)
	colMin, colMax := maxInt(c0-distance, p.Bounds.ColMin), minInt(c0+distance, p.Bounds.ColMax)
	for r := rowMin; r <= rowMax; r++ {
		for c := colMin; c <= colMax; c++ {
			sad := t.sad(r, c)
			if sad >= best {
				continue
			}
			sad += p.Costs.SADCost(r, c, cr, cc, p.SADPerBit)
			if sad < best {
				best, br, bc = sad, r, c
			}
		}
	}
	return finish(t, p, br, bc, best, 0)
}

// RefiningSearch applies up to searchRange single-pixel cross steps from
// start, stopping as soon as no neighbour improves. Vector costs use
// ErrPerBit since the search refines an already good estimate.
func RefiningSearch(t *Target, start MV, searchRange int, p *Params) Result {
	cr, cc := p.Center.FullRow(), p.Center.FullCol()
	br, bc := p.Bounds.clampFull(start.FullRow(), start.FullCol())
	best := t.sad(br, bc) + p.Costs.SADCost(br, bc, cr, cc, p.ErrPerBit)

	for i := 0; i < searchRange; i++ {
		next := -1
		for j, d := range crossPattern {
			r, c := br+d[0], bc+d[1]
			if !p.Bounds.ContainsFull(r, c) {
				continue
			}
			sad := t.sad(r, c)
			if sad >= best {
				continue
			}
			sad += p.Costs.SADCost(r, c, cr, cc, p.ErrPerBit)
			if sad < best {
				best = sad
				next = j
			}
		}
		if next < 0 {
			break
		}
		br += crossPattern[next][0]
		bc += crossPattern[next][1]
	}
	return finish(t, p, br, bc, best, 0)
}

// NoMatch is the error reported for candidates that cannot be evaluated.
const NoMatch = math.MaxInt32

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
