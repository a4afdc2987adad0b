package firstpass

import (
	"github.com/deepteams/vp8rd/internal/dsp"
	"github.com/deepteams/vp8rd/internal/mcomp"
	"github.com/deepteams/vp8rd/internal/yuv"
)

const (
	// intraPenalty is added to every macroblock's intra error.
	intraPenalty = 256
	// newMVPenalty is charged to a search started away from the zero vector.
	newMVPenalty = 256
	// firstPassStep is the diamond search parameter of the first pass.
	firstPassStep = 3
	// FirstPassQ is the quantizer index the first pass prices vectors at.
	FirstPassQ = 26
)

// Analyzer runs the first pass. It keeps the vector cost tables and search
// sites between frames; it is not safe for concurrent use.
type Analyzer struct {
	costs  *mcomp.CostTables
	sites  *mcomp.SiteSet
	stride int
	frame  int
}

// NewAnalyzer returns an analyzer starting at frame 0.
func NewAnalyzer() *Analyzer {
	return &Analyzer{costs: mcomp.NewCostTables(&mcomp.DefaultMVProbs)}
}

// frameCounts are the per-frame sums of the first pass.
type frameCounts struct {
	intraError, codedError int64
	inter, secondRef       int
	neutral, mvs, newMVs   int
	sumMVr, sumMVc         int
	sumMVrAbs, sumMVcAbs   int
	sumMVrSq, sumMVcSq     int
	inVectors              int
}

// FrameStats analyses src, predicting from last and golden where present
// (either may be nil), and returns the frame's record. duration is the
// display time of the frame in seconds.
func (a *Analyzer) FrameStats(src, last, golden *yuv.Frame, duration float64) Stats {
	if a.sites == nil || a.stride != src.YStride {
		a.sites = mcomp.NewDiamondSites(src.YStride)
		a.stride = src.YStride
	}
	var fc frameCounts
	for row := 0; row < src.MBRows; row++ {
		var bestRef mcomp.MV
		var lastMV mcomp.MV
		for col := 0; col < src.MBCols; col++ {
			a.analyzeMB(&fc, src, last, golden, row, col, &bestRef, &lastMV)
		}
	}

	mbs := float64(src.MBRows * src.MBCols)
	s := Stats{
		Frame:         float64(a.frame),
		IntraError:    float64(fc.intraError >> 8),
		CodedError:    float64(fc.codedError >> 8),
		PcntInter:     float64(fc.inter) / mbs,
		PcntSecondRef: float64(fc.secondRef) / mbs,
		PcntNeutral:   float64(fc.neutral) / mbs,
		Duration:      duration,
		Count:         1,
	}
	s.SSIMWeightedPredErr = s.CodedError * simpleWeight(src)
	if fc.mvs > 0 {
		n := float64(fc.mvs)
		s.MVr = float64(fc.sumMVr) / n
		s.MVrAbs = float64(fc.sumMVrAbs) / n
		s.MVc = float64(fc.sumMVc) / n
		s.MVcAbs = float64(fc.sumMVcAbs) / n
		s.MVrv = (float64(fc.sumMVrSq) - s.MVr*s.MVr*n) / n
		s.MVcv = (float64(fc.sumMVcSq) - s.MVc*s.MVc*n) / n
		s.MVInOutCount = float64(fc.inVectors) / (n * 2)
		s.NewMVCount = float64(fc.newMVs)
		s.PcntMotion = n / mbs
	}
	a.frame++
	return s
}

// analyzeMB codes one macroblock as DC-only intra and, with a reference,
// as the best of a zero vector and a diamond search.
func (a *Analyzer) analyzeMB(fc *frameCounts, src, last, golden *yuv.Frame, row, col int, bestRef, lastMV *mcomp.MV) {
	intraErr := intraDCError(src, row, col) + intraPenalty
	fc.intraError += int64(intraErr)
	thisErr := intraErr
	if last == nil {
		fc.codedError += int64(thisErr)
		return
	}

	srcOff := src.MBYOff(col, row)
	zeroErr := dsp.MSE16x16(src.Y, srcOff, src.YStride, last.Y, last.MBYOff(col, row), last.YStride)
	mv, motionErr := a.search(src, last, row, col, mcomp.MV{})
	if zeroErr <= motionErr {
		mv, motionErr = mcomp.MV{}, zeroErr
	}
	if !bestRef.IsZero() {
		if m, e := a.search(src, last, row, col, *bestRef); e+newMVPenalty < motionErr {
			mv, motionErr = m, e+newMVPenalty
		}
	}
	if golden != nil {
		_, gfErr := a.search(src, golden, row, col, mcomp.MV{})
		if gfErr < motionErr && gfErr < thisErr {
			fc.secondRef++
		}
	}

	// Inter and intra were close and both low.
	if (thisErr-intraPenalty)*9 <= motionErr*10 && thisErr < 2*intraPenalty {
		fc.neutral++
	}

	if motionErr <= thisErr {
		thisErr = motionErr
		fc.inter++
		*bestRef = mv
		if !mv.IsZero() {
			r, c := int(mv.Row), int(mv.Col)
			fc.mvs++
			fc.sumMVr += r
			fc.sumMVc += c
			fc.sumMVrAbs += absInt(r)
			fc.sumMVcAbs += absInt(c)
			fc.sumMVrSq += r * r
			fc.sumMVcSq += c * c
			if mv != *lastMV {
				fc.newMVs++
			}
			*lastMV = mv
			fc.inVectors += inOut(r, row, src.MBRows) + inOut(c, col, src.MBCols)
		}
	}
	fc.codedError += int64(thisErr)
}

// inOut scores one vector component: +1 for motion towards the frame
// centre, -1 away from it.
func inOut(v, pos, n int) int {
	switch {
	case pos < n/2 && v > 0, pos > n/2 && v < 0:
		return -1
	case pos < n/2 && v < 0, pos > n/2 && v > 0:
		return 1
	}
	return 0
}

// search runs the first-pass diamond search from start and returns the
// vector and its luma SSE.
func (a *Analyzer) search(src, ref *yuv.Frame, row, col int, start mcomp.MV) (mcomp.MV, int) {
	t := &mcomp.Target{
		Src:       src.Y,
		SrcOff:    src.MBYOff(col, row),
		SrcStride: src.YStride,
		Ref:       ref.Y,
		RefOff:    ref.MBYOff(col, row),
		RefStride: ref.YStride,
		Size:      dsp.Block16x16,
	}
	p := &mcomp.Params{
		Bounds:    mcomp.MBBounds(row, col, src.MBRows, src.MBCols),
		Costs:     a.costs,
		SADPerBit: mcomp.SADPerBit16(FirstPassQ),
		ErrPerBit: 1,
	}
	res := mcomp.NStepDiamond(t, a.sites, p.Bounds.Clamp(start).RoundToFullPel(), firstPassStep, mcomp.MaxSearchSteps-1-firstPassStep, p)
	return res.MV, res.SSE
}

// intraDCError is the SSE of a 16x16 DC prediction built from the source
// neighbours.
func intraDCError(f *yuv.Frame, row, col int) int {
	off := f.MBYOff(col, row)
	var above, left [16]byte
	haveAbove, haveLeft := row > 0, col > 0
	if haveAbove {
		copy(above[:], f.Y[off-f.YStride:off-f.YStride+16])
	}
	if haveLeft {
		for i := range left {
			left[i] = f.Y[off+i*f.YStride-1]
		}
	}
	var pred [16 * dsp.BPS]byte
	dsp.PredictBlock(dsp.PredDC, 16, above[:], left[:], 0, haveAbove, haveLeft, pred[:], 0)
	return dsp.SSE(f.Y, off, f.YStride, pred[:], 0, dsp.BPS, 16, 16)
}

// simpleWeight is the mean per-pixel weight of the visible luma: dark
// pixels count less because errors there are less visible.
func simpleWeight(f *yuv.Frame) float64 {
	sum := 0.0
	for y := 0; y < f.Height; y++ {
		off := f.YOff(0, y)
		for _, v := range f.Y[off : off+f.Width] {
			sum += lumaWeight[v]
		}
	}
	return sum / float64(f.Width*f.Height)
}

// lumaWeight ramps from 0.02 at black to 1 at luma 32.
var lumaWeight = func() (w [256]float64) {
	for i := range w {
		switch {
		case i <= 8:
			w[i] = 0.02
		case i < 32:
			w[i] = 0.02 + 0.98*float64(i-8)/24
		default:
			w[i] = 1
		}
	}
	return w
}()

func absInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
